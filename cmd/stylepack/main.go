package main

import (
	"os"

	"github.com/tain335/stylepack/internal/cmd"
	"github.com/tain335/stylepack/internal/logger"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
