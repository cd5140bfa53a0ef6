// Package logger is the process-wide logger.
package logger

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

var Logger = log.NewWithOptions(os.Stderr, log.Options{
	Prefix: "stylepack",
})

// Setup switches to debug output with timestamps when verbose is set.
func Setup(verbose bool) {
	SetOutput(os.Stderr, verbose)
}

// SetOutput redirects the logger, e.g. to a buffer in tests.
func SetOutput(w io.Writer, verbose bool) {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	Logger = log.NewWithOptions(w, log.Options{
		Prefix:          "stylepack",
		Level:           level,
		ReportTimestamp: verbose,
	})
}

func Infof(format string, args ...any) {
	Logger.Infof(format, args...)
}

func Errorf(format string, args ...any) {
	Logger.Errorf(format, args...)
}

func Debugf(format string, args ...any) {
	Logger.Debugf(format, args...)
}

func Warnf(format string, args ...any) {
	Logger.Warnf(format, args...)
}

func Debug(msg string, keyvals ...any) {
	Logger.Debug(msg, keyvals...)
}

func Info(msg string, keyvals ...any) {
	Logger.Info(msg, keyvals...)
}

func Warn(msg string, keyvals ...any) {
	Logger.Warn(msg, keyvals...)
}

func Error(msg string, keyvals ...any) {
	Logger.Error(msg, keyvals...)
}

// Clear clears the terminal, used between watch rebuilds.
func Clear() {
	os.Stderr.WriteString("\033[H\033[2J")
}
