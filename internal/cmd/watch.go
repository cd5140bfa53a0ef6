package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tain335/stylepack/internal/config"
	"github.com/tain335/stylepack/internal/devserver"
	"github.com/tain335/stylepack/internal/logger"
	"github.com/tain335/stylepack/internal/watch"
)

func newWatchCmd(getConfig func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Rebuild whenever a source file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			p, err := newProject(getConfig(), true)
			if err != nil {
				return err
			}
			return runWatch(ctx, p, func(result api.BuildResult) {
				_ = p.report(result)
			})
		},
	}
}

func newServeCmd(getConfig func() *config.Config) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the build from memory and push style updates to the page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cfg := getConfig()
			p, err := newProject(cfg, false)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Serve.Addr
			}
			server := devserver.New(30 * time.Second)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.ListenAndServe(ctx, addr)
			})
			g.Go(func() error {
				return runWatch(ctx, p, func(result api.BuildResult) {
					if err := p.report(result); err != nil {
						server.Errors(messageText(result.Errors))
						return
					}
					files := make(map[string][]byte, len(result.OutputFiles))
					for _, f := range result.OutputFiles {
						rel, err := filepath.Rel(p.options.Outdir, f.Path)
						if err != nil {
							continue
						}
						files[filepath.ToSlash(rel)] = f.Contents
					}
					server.Update(files)
				})
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from serve.addr)")
	return cmd
}

// runWatch builds once, then rebuilds on every change of the files the
// last build read, until ctx is done.
func runWatch(ctx context.Context, p *project, onBuild func(api.BuildResult)) error {
	buildCtx, ctxErr := api.Context(p.options)
	if ctxErr != nil {
		return ctxErr
	}
	defer buildCtx.Dispose()

	var watcher *watch.Watcher
	rebuild := func() {
		start := time.Now()
		result := buildCtx.Rebuild()
		onBuild(result)
		logger.Infof("rebuilt in %s", time.Since(start).Round(time.Millisecond))
		paths := p.watchPaths(result)
		if len(result.Errors) > 0 {
			// Keep watching what the last good build read, plus the files
			// that failed.
			paths = watcher.Paths()
			for _, m := range result.Errors {
				if file := messageFile(m); file != "" {
					paths = append(paths, p.cfg.Path(file))
				}
			}
		}
		if err := watcher.SetPaths(paths); err != nil {
			logger.Warnf("updating watched files: %s", err)
		}
	}

	var err error
	watcher, err = watch.New(func(ctx context.Context, dirty []string) {
		logger.Clear()
		logger.Info("files changed", "paths", dirty)
		rebuild()
	}, watch.DefaultDebounce)
	if err != nil {
		return err
	}
	defer watcher.Close()

	rebuild()
	logger.Infof("watching %d files", len(watcher.Paths()))
	if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
