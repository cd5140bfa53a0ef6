package processor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path"
	"regexp"
	"strings"

	"github.com/cli/safeexec"
)

// cliProcessor pipes the source through an external compiler and reads
// CSS back from stdout. These compilers are run without source maps, so
// the previous map is kept.
type cliProcessor struct {
	name    string
	binary  string
	engine  string
	files   string
	hint    string
	pattern *regexp.Regexp
	args    func(in Input) []string
}

func newLessProcessor(binary string) Processor {
	if binary == "" {
		binary = "lessc"
	}
	return &cliProcessor{
		name:    "less",
		binary:  binary,
		engine:  "less (" + binary + ")",
		files:   ".less",
		hint:    "npm install -g less",
		pattern: regexp.MustCompile(`\.less$`),
		args: func(in Input) []string {
			return []string{"--include-path=" + path.Dir(in.Path), "-"}
		},
	}
}

func newStylusProcessor(binary string) Processor {
	if binary == "" {
		binary = "stylus"
	}
	return &cliProcessor{
		name:    "stylus",
		binary:  binary,
		engine:  "stylus (" + binary + ")",
		files:   ".styl/.stylus",
		hint:    "npm install -g stylus",
		pattern: regexp.MustCompile(`\.styl(us)?$`),
		args: func(in Input) []string {
			return []string{"--include", path.Dir(in.Path)}
		},
	}
}

func (p *cliProcessor) Name() string { return p.name }

func (p *cliProcessor) Test(path string) bool { return p.pattern.MatchString(path) }

func (p *cliProcessor) Process(ctx context.Context, in Input) (Output, error) {
	bin, err := safeexec.LookPath(p.binary)
	if err != nil {
		return Output{}, &MissingDependencyError{Engine: p.engine, Files: p.files, Hint: p.hint}
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, p.args(in)...)
	cmd.Dir = path.Dir(in.Path)
	cmd.Stdin = strings.NewReader(in.CSS)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return Output{}, fmt.Errorf("%s: %w", msg, err)
		}
		return Output{}, err
	}
	return Output{CSS: stdout.String()}, nil
}
