package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/tain335/stylepack/internal/config"
	"github.com/tain335/stylepack/internal/logger"
	"github.com/tain335/stylepack/pkg/plugin"
)

// project is the esbuild build of a loaded config.
type project struct {
	cfg     *config.Config
	styles  *plugin.Styles
	options api.BuildOptions
}

func newProject(cfg *config.Config, write bool) (*project, error) {
	if cfg == nil {
		return nil, errors.New("no configuration loaded")
	}
	if len(cfg.EntryPoints) == 0 {
		return nil, errors.New("no entry points, set entryPoints in stylepack.yaml")
	}
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	searchPaths := make([]string, len(cfg.Resolve.SearchPaths))
	for i, p := range cfg.Resolve.SearchPaths {
		searchPaths[i] = filepath.ToSlash(cfg.Path(p))
	}
	styles, err := plugin.NewStyles(opts, searchPaths...)
	if err != nil {
		return nil, err
	}

	var aliases []plugin.ResolveModulesOption
	for module, target := range cfg.Resolve.Alias {
		aliases = append(aliases, plugin.ResolveModulesOption{Module: module, Path: cfg.Path(target)})
	}
	// Longer prefixes first, so "@ui/icons" wins over "@ui".
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i].Module) != len(aliases[j].Module) {
			return len(aliases[i].Module) > len(aliases[j].Module)
		}
		return aliases[i].Module < aliases[j].Module
	})

	plugins := []api.Plugin{}
	if len(aliases) > 0 {
		plugins = append(plugins, plugin.ResolveModulePathPlugin(aliases))
	}
	plugins = append(plugins, styles.Plugin())
	if len(cfg.HTML) > 0 {
		entries := make([]plugin.TemplateEntry, len(cfg.HTML))
		for i, h := range cfg.HTML {
			entries[i] = plugin.TemplateEntry{FileName: h.FileName, Template: cfg.Path(h.Template), Chunks: h.Chunks}
		}
		plugins = append(plugins, plugin.HTMLTemplatePlugin(plugin.HTMLTemplatePluginOptions{
			Styles:     styles,
			Entries:    entries,
			PublicPath: cfg.Assets.PublicPath,
		}))
	}

	options := api.BuildOptions{
		AbsWorkingDir: cfg.Root,
		EntryPoints:   cfg.EntryPoints,
		Bundle:        true,
		Outdir:        cfg.Path(cfg.Outdir),
		Format:        api.FormatESModule,
		Splitting:     cfg.Output.Splitting,
		AssetNames:    cfg.Output.AssetNames,
		Write:         write,
		LogLevel:      api.LogLevelSilent,
		Plugins:       plugins,
	}
	if cfg.Output.Sourcemap {
		options.Sourcemap = api.SourceMapLinked
	}
	if cfg.Output.Minify {
		options.MinifyWhitespace = true
		options.MinifyIdentifiers = true
		options.MinifySyntax = true
	}
	return &project{cfg: cfg, styles: styles, options: options}, nil
}

// report logs the outcome of a build and returns an error when it failed.
func (p *project) report(result api.BuildResult) error {
	for _, w := range result.Warnings {
		logger.Warn(w.Text, "file", messageFile(w))
	}
	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			logger.Error(e.Text, "file", messageFile(e))
		}
		return fmt.Errorf("build failed with %d error(s)", len(result.Errors))
	}
	outdir := p.options.Outdir
	for _, f := range result.OutputFiles {
		rel, err := filepath.Rel(outdir, f.Path)
		if err != nil {
			rel = f.Path
		}
		size, unit := formatFileSize(len(f.Contents))
		logger.Infof("  %s %.2f%s", filepath.ToSlash(rel), size, unit)
	}
	return nil
}

// watchPaths are the files a rebuild depends on: every script input and
// the files the style engines read.
func (p *project) watchPaths(result api.BuildResult) []string {
	paths, err := plugin.InputFiles(result.Metafile, p.cfg.Root)
	if err != nil {
		logger.Warnf("reading build inputs: %s", err)
	}
	for _, f := range p.styles.Compiler().Store().WatchFiles() {
		paths = append(paths, filepath.FromSlash(f))
	}
	return paths
}

func messageText(messages []api.Message) []string {
	texts := make([]string, 0, len(messages))
	for _, m := range messages {
		if file := messageFile(m); file != "" {
			texts = append(texts, file+": "+m.Text)
		} else {
			texts = append(texts, m.Text)
		}
	}
	return texts
}

func messageFile(m api.Message) string {
	if m.Location == nil {
		return ""
	}
	return m.Location.File
}

var fileUnits = []string{"KB", "MB", "GB"}

func formatFileSize(size int) (float64, string) {
	i := 0
	fsize := float64(size) / 1000
	for fsize > 1000 && i < len(fileUnits)-1 {
		fsize /= 1000
		i++
	}
	return fsize, fileUnits[i]
}
