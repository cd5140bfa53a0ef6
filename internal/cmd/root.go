// Package cmd implements the stylepack command line.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tain335/stylepack/internal/config"
	"github.com/tain335/stylepack/internal/logger"
)

type globalFlags struct {
	config  string
	dir     string
	verbose bool
}

// NewRootCmd creates the stylepack command.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}
	loader := config.NewLoader()
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           "stylepack",
		Short:         "Bundle the styles of an esbuild project",
		Long:          "stylepack builds an esbuild project whose scripts import Sass, Less, Stylus or CSS, and emits one stylesheet per chunk along with the assets the styles reference.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.Setup(flags.verbose)
			dir := flags.dir
			if dir == "" {
				cwd, err := os.Getwd()
				if err != nil {
					return err
				}
				dir = cwd
			}
			loaded, err := loader.Load(dir, flags.config)
			if err != nil {
				return err
			}
			cfg = loaded
			logger.Debug("config loaded", "root", cfg.Root, "outdir", cfg.Outdir, "entries", cfg.EntryPoints)
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.config, "config", "", "Path to the config file (default ./stylepack.yaml)")
	pf.StringVarP(&flags.dir, "dir", "C", "", "Project directory")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug output")
	pf.String("outdir", "", "Output directory (env: STYLEPACK_OUTDIR)")
	pf.String("public-path", "", "URL prefix of emitted files (env: STYLEPACK_ASSETS_PUBLICPATH)")
	pf.String("css-for-chunks", "", "off, extract or inject")
	pf.Bool("minify", false, "Minify scripts and styles")
	pf.Bool("sourcemap", false, "Emit source maps")

	v := loader.Viper()
	_ = v.BindPFlag("outdir", pf.Lookup("outdir"))
	_ = v.BindPFlag("assets.publicPath", pf.Lookup("public-path"))
	_ = v.BindPFlag("output.cssForChunks", pf.Lookup("css-for-chunks"))
	_ = v.BindPFlag("output.minify", pf.Lookup("minify"))
	_ = v.BindPFlag("output.sourcemap", pf.Lookup("sourcemap"))

	getConfig := func() *config.Config { return cfg }
	rootCmd.AddCommand(newBuildCmd(getConfig))
	rootCmd.AddCommand(newWatchCmd(getConfig))
	rootCmd.AddCommand(newServeCmd(getConfig))
	return rootCmd
}
