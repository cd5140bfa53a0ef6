// Package config reads the stylepack.yaml project file.
package config

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/tain335/stylepack/internal/processor"
	stylepack "github.com/tain335/stylepack/pkg/api"
)

// Config mirrors stylepack.yaml. Relative paths are relative to Root.
type Config struct {
	Root        string          `mapstructure:"root"`
	EntryPoints []string        `mapstructure:"entryPoints"`
	Outdir      string          `mapstructure:"outdir"`
	Include     []string        `mapstructure:"include"`
	Exclude     []string        `mapstructure:"exclude"`
	Output      OutputConfig    `mapstructure:"output"`
	Assets      AssetsConfig    `mapstructure:"assets"`
	Transform   TransformConfig `mapstructure:"transform"`
	Resolve     ResolveConfig   `mapstructure:"resolve"`
	HTML        []HTMLConfig    `mapstructure:"html"`
	Serve       ServeConfig     `mapstructure:"serve"`
}

type OutputConfig struct {
	// CSSForChunks is off, extract or inject.
	CSSForChunks string `mapstructure:"cssForChunks"`
	Sourcemap    bool   `mapstructure:"sourcemap"`
	Minify       bool   `mapstructure:"minify"`
	ModuleAssets bool   `mapstructure:"moduleAssets"`
	AssetNames   string `mapstructure:"assetNames"`
	Splitting    bool   `mapstructure:"splitting"`
}

type AssetsConfig struct {
	// PreserveDir is false, true, css or assets.
	PreserveDir interface{} `mapstructure:"preserveDir"`
	PublicPath  string      `mapstructure:"publicPath"`
	// Inline is a boolean, a size limit in bytes or a path pattern.
	Inline interface{} `mapstructure:"inline"`
}

type SassConfig struct {
	Implementation string   `mapstructure:"implementation"`
	Binary         string   `mapstructure:"binary"`
	IncludePaths   []string `mapstructure:"includePaths"`
}

type ModulesConfig struct {
	Pattern string `mapstructure:"pattern"`
	Disable bool   `mapstructure:"disable"`
}

type TransformConfig struct {
	Sass    SassConfig    `mapstructure:"sass"`
	Less    string        `mapstructure:"less"`
	Stylus  string        `mapstructure:"stylus"`
	Modules ModulesConfig `mapstructure:"modules"`
}

type ResolveConfig struct {
	SearchPaths []string          `mapstructure:"searchPaths"`
	Alias       map[string]string `mapstructure:"alias"`
}

type HTMLConfig struct {
	Template string   `mapstructure:"template"`
	FileName string   `mapstructure:"fileName"`
	Chunks   []string `mapstructure:"chunks"`
}

type ServeConfig struct {
	Addr string `mapstructure:"addr"`
}

// Path resolves p against the project root.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// Options converts the file schema to compiler options.
func (c *Config) Options() (stylepack.Options, error) {
	var opts stylepack.Options
	var err error
	if opts.Include, err = compileAll("include", c.Include); err != nil {
		return opts, err
	}
	if opts.Exclude, err = compileAll("exclude", c.Exclude); err != nil {
		return opts, err
	}

	if opts.Output.CSSForChunks, err = stylepack.ParseCSSForChunks(c.Output.CSSForChunks); err != nil {
		return opts, err
	}
	opts.Output.Sourcemap = c.Output.Sourcemap
	opts.Output.Minify = c.Output.Minify
	opts.Output.ModuleAssets = c.Output.ModuleAssets

	if opts.Assets.PreserveDir, err = stylepack.ParsePreserveDir(scalar(c.Assets.PreserveDir)); err != nil {
		return opts, err
	}
	if opts.Assets.Inline, err = stylepack.ParseInline(scalar(c.Assets.Inline)); err != nil {
		return opts, err
	}
	opts.Assets.PublicPath = c.Assets.PublicPath

	includePaths := make([]string, len(c.Transform.Sass.IncludePaths))
	for i, p := range c.Transform.Sass.IncludePaths {
		includePaths[i] = c.Path(p)
	}
	opts.Transform.Sass = processor.SassOptions{
		Implementation: c.Transform.Sass.Implementation,
		Binary:         c.Transform.Sass.Binary,
		IncludePaths:   includePaths,
	}
	opts.Transform.LessBinary = c.Transform.Less
	opts.Transform.StylusBinary = c.Transform.Stylus
	opts.Transform.Modules.Disable = c.Transform.Modules.Disable
	if c.Transform.Modules.Pattern != "" {
		if opts.Transform.Modules.Pattern, err = regexp.Compile(c.Transform.Modules.Pattern); err != nil {
			return opts, fmt.Errorf("invalid transform.modules.pattern: %w", err)
		}
	}
	return opts, nil
}

func compileAll(key string, patterns []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern %q: %w", key, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func scalar(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
