package cmd

import (
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/cobra"

	"github.com/tain335/stylepack/internal/config"
	"github.com/tain335/stylepack/internal/logger"
)

func newBuildCmd(getConfig func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build the project once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newProject(getConfig(), true)
			if err != nil {
				return err
			}
			start := time.Now()
			result := api.Build(p.options)
			if err := p.report(result); err != nil {
				return err
			}
			logger.Infof("built in %s", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
