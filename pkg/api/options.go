package api

import (
	"fmt"
	"regexp"

	"github.com/tain335/stylepack/internal/assets"
	"github.com/tain335/stylepack/internal/extract"
	"github.com/tain335/stylepack/internal/graph"
	"github.com/tain335/stylepack/internal/processor"
	"github.com/tain335/stylepack/internal/render"
)

// DefaultInclude matches every style language handled by the built-in
// processors.
var DefaultInclude = regexp.MustCompile(`\.(css|s[ac]ss|less|styl|stylus)$`)

// CSSForChunks selects how chunk CSS is produced. Inject implies Extract.
type CSSForChunks struct {
	Extract bool
	Inject  bool
}

// ParseCSSForChunks reads "off", "extract", "inject" or "extract,inject".
func ParseCSSForChunks(s string) (CSSForChunks, error) {
	switch s {
	case "", "off", "false":
		return CSSForChunks{}, nil
	case "extract", "true":
		return CSSForChunks{Extract: true}, nil
	case "inject", "extract,inject", "inject,extract":
		return CSSForChunks{Extract: true, Inject: true}, nil
	}
	return CSSForChunks{}, fmt.Errorf("invalid cssForChunks %q, want off, extract or inject", s)
}

type OutputOptions struct {
	CSSForChunks CSSForChunks
	Sourcemap    bool
	Minify       bool
	// ModuleAssets also emits one stylesheet per module when chunk CSS is
	// extracted.
	ModuleAssets bool
}

type AssetsOptions struct {
	PreserveDir assets.PreserveDir
	PublicPath  string
	Inline      assets.Inline
	File        assets.FileHook
	URL         render.URLFormatter
}

type TransformOptions struct {
	Processors   processor.UserStrategy
	Sass         processor.SassOptions
	LessBinary   string
	StylusBinary string
	Modules      processor.ModulesOptions
}

type Options struct {
	// Include defaults to DefaultInclude. A file must match one Include
	// pattern and no Exclude pattern.
	Include   []*regexp.Regexp
	Exclude   []*regexp.Regexp
	Output    OutputOptions
	Assets    AssetsOptions
	Transform TransformOptions
	Extract   extract.Strategy
	// Resolver replaces the host resolver.
	Resolver graph.Resolver
}

func (o Options) extracting() bool {
	return o.Output.CSSForChunks.Extract || o.Output.CSSForChunks.Inject
}

func (o Options) matches(id string) bool {
	include := o.Include
	if len(include) == 0 {
		include = []*regexp.Regexp{DefaultInclude}
	}
	matched := false
	for _, re := range include {
		if re.MatchString(id) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, re := range o.Exclude {
		if re.MatchString(id) {
			return false
		}
	}
	return true
}
