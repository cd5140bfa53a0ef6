// Package extract aggregates the CSS of the modules reachable from each
// chunk into one style artifact per chunk.
package extract

import (
	"context"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"golang.org/x/sync/errgroup"

	"github.com/tain335/stylepack/internal/assets"
	"github.com/tain335/stylepack/internal/graph"
	"github.com/tain335/stylepack/internal/logger"
	"github.com/tain335/stylepack/internal/meta"
)

// Module is one style module reachable from a chunk.
type Module struct {
	ID string
	// Dynamic is set for modules reachable only through a dynamically
	// imported chunk.
	Dynamic bool
	Meta    *meta.ModuleMeta
}

// Result is the style artifact extracted for a chunk.
type Result struct {
	Name   string
	Source string
	Inputs []meta.InputItem
}

// Partial overrides some fields of the suggested Result. Nil fields keep
// the suggestion.
type Partial struct {
	Name   *string
	Source *string
	Inputs []meta.InputItem
}

type decisionKind uint8

const (
	decisionAccept decisionKind = iota
	decisionOverride
	decisionSuppress
)

type Decision struct {
	kind     decisionKind
	override Partial
}

// Accept keeps the suggested result.
func Accept() Decision { return Decision{kind: decisionAccept} }

// Override replaces the fields set in p.
func Override(p Partial) Decision { return Decision{kind: decisionOverride, override: p} }

// Suppress emits nothing for the chunk.
func Suppress() Decision { return Decision{kind: decisionSuppress} }

func (d Decision) Suppressed() bool { return d.kind == decisionSuppress }

func (d Decision) apply(r Result) Result {
	if d.kind != decisionOverride {
		return r
	}
	if d.override.Name != nil {
		r.Name = *d.override.Name
	}
	if d.override.Source != nil {
		r.Source = *d.override.Source
	}
	if d.override.Inputs != nil {
		r.Inputs = d.override.Inputs
	}
	return r
}

// StrategyFunc decides the extraction of one chunk given its reachable
// modules and the suggested result.
type StrategyFunc func(chunk graph.Chunk, modules []Module, suggested Result) (Decision, error)

type strategyKind uint8

const (
	strategyDefault strategyKind = iota
	strategyCustom
	strategyDisabled
)

// Strategy is the extraction policy. The zero value accepts every
// suggestion.
type Strategy struct {
	kind strategyKind
	fn   StrategyFunc
}

func Default() Strategy  { return Strategy{} }
func Disabled() Strategy { return Strategy{kind: strategyDisabled} }

func Custom(fn StrategyFunc) Strategy {
	if fn == nil {
		return Default()
	}
	return Strategy{kind: strategyCustom, fn: fn}
}

func (s Strategy) Enabled() bool {
	return s.kind != strategyDisabled
}

type Options struct {
	Strategy Strategy
}

// ChunkResult pairs a chunk with its extracted artifact.
type ChunkResult struct {
	Chunk  graph.Chunk
	Result Result
}

// Reachable lists the style modules of chunk: its own modules in chunk
// order, then the modules only reachable through the chunks it imports
// dynamically. Dynamic modules keep the position of their first
// appearance, walking the dynamic imports in chunks order.
func Reachable(chunk graph.Chunk, chunks []graph.Chunk, store *meta.Store) []Module {
	var modules []Module
	static := make(map[string]bool, len(chunk.Modules))
	for _, id := range chunk.Modules {
		m, ok := store.Get(id)
		if !ok || static[id] {
			continue
		}
		static[id] = true
		modules = append(modules, Module{ID: id, Meta: m})
	}

	dynamic := make(map[string]bool, len(chunk.DynamicImports))
	for _, name := range chunk.DynamicImports {
		dynamic[name] = true
	}
	seen := make(map[string]bool)
	for _, c := range chunks {
		if !dynamic[c.Name] && !dynamic[c.FileName] {
			continue
		}
		for _, id := range c.Modules {
			if static[id] || seen[id] {
				continue
			}
			m, ok := store.Get(id)
			if !ok {
				continue
			}
			seen[id] = true
			modules = append(modules, Module{ID: id, Dynamic: true, Meta: m})
		}
	}
	return modules
}

// Suggest builds the default result for chunk.
func Suggest(chunk graph.Chunk, modules []Module) Result {
	sources := make([]string, 0, len(modules))
	var inputs []meta.InputItem
	for _, m := range modules {
		sources = append(sources, m.Meta.CSS)
		inputs = append(inputs, m.Meta.Inputs...)
	}
	return Result{
		Name:   chunk.Name + ".css",
		Source: strings.Join(sources, "\n"),
		Inputs: inputs,
	}
}

// blank reports whether source holds nothing but whitespace and
// comments.
func blank(source string) bool {
	lexer := css.NewLexer(parse.NewInputString(source))
	for {
		tt, _ := lexer.Next()
		switch tt {
		case css.ErrorToken:
			return lexer.Err() == io.EOF
		case css.WhitespaceToken, css.CommentToken:
		default:
			return false
		}
	}
}

// Extract computes the artifact of every chunk. Chunks run concurrently;
// the results keep chunk order, and chunks with an empty or suppressed
// result are left out.
func Extract(ctx context.Context, chunks []graph.Chunk, store *meta.Store, opts Options) ([]ChunkResult, error) {
	if !opts.Strategy.Enabled() {
		return nil, nil
	}
	results := make([]*Result, len(chunks))
	g, ctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			modules := Reachable(chunk, chunks, store)
			if len(modules) == 0 {
				return nil
			}
			suggested := Suggest(chunk, modules)
			decision := Accept()
			if opts.Strategy.kind == strategyCustom {
				var err error
				decision, err = opts.Strategy.fn(chunk, modules, suggested)
				if err != nil {
					return err
				}
			}
			if decision.Suppressed() {
				logger.Debug("extraction suppressed", "chunk", chunk.Name)
				return nil
			}
			result := decision.apply(suggested)
			if blank(result.Source) {
				logger.Debug("chunk has no css", "chunk", chunk.Name)
				return nil
			}
			results[i] = &result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []ChunkResult
	for i, r := range results {
		if r != nil {
			out = append(out, ChunkResult{Chunk: chunks[i], Result: *r})
		}
	}
	return out, nil
}

// Emit registers the extracted artifacts with the host in chunk order.
func Emit(results []ChunkResult, emitter *assets.Emitter) ([]graph.EmittedStyle, error) {
	styles := make([]graph.EmittedStyle, 0, len(results))
	for _, r := range results {
		id := r.Chunk.FileName
		if id == "" {
			id = r.Chunk.Name
		}
		style, err := emitter.EmitStyle(id, r.Result.Name, r.Result.Source, r.Result.Inputs)
		if err != nil {
			return nil, err
		}
		styles = append(styles, style)
	}
	return styles, nil
}
