// Package api compiles style sources for a host bundler in two phases.
// CompileFile runs per source file and records its compiled CSS with
// placeholders for the assets it references. FinalizeBundle runs once the
// host's chunk graph is final: it extracts chunk CSS, emits assets and
// styles, and renders every placeholder to its final URL.
package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tain335/stylepack/internal/assets"
	"github.com/tain335/stylepack/internal/cssbundle"
	"github.com/tain335/stylepack/internal/extract"
	"github.com/tain335/stylepack/internal/graph"
	"github.com/tain335/stylepack/internal/logger"
	"github.com/tain335/stylepack/internal/meta"
	"github.com/tain335/stylepack/internal/pathutil"
	"github.com/tain335/stylepack/internal/processor"
	"github.com/tain335/stylepack/internal/render"
	"github.com/tain335/stylepack/internal/resolve"
)

// ErrFiltered is returned for files the include and exclude patterns
// leave out.
var ErrFiltered = errors.New("file is not handled by stylepack")

type Compiler struct {
	opts     Options
	host     graph.Host
	store    *meta.Store
	pipeline *processor.Pipeline
	resolver *resolve.Resolver
}

// ChunkStyle is the stylesheet extracted for a chunk.
type ChunkStyle struct {
	Chunk graph.Chunk
	Style graph.EmittedStyle
}

// Bundle is what FinalizeBundle emitted.
type Bundle struct {
	Assets []graph.EmittedAsset
	// Modules holds the per-module stylesheets.
	Modules []graph.EmittedStyle
	Chunks  []ChunkStyle
}

// ChunkStyle returns the stylesheet extracted for the chunk named name.
func (b *Bundle) ChunkStyle(name string) (graph.EmittedStyle, bool) {
	if b == nil {
		return graph.EmittedStyle{}, false
	}
	for _, c := range b.Chunks {
		if c.Chunk.Name == name || c.Chunk.FileName == name {
			return c.Style, true
		}
	}
	return graph.EmittedStyle{}, false
}

func New(opts Options, host graph.Host) (*Compiler, error) {
	if host == nil {
		return nil, errors.New("stylepack: a host is required")
	}
	var resolver graph.Resolver = host
	if opts.Resolver != nil {
		resolver = opts.Resolver
	}
	return &Compiler{
		opts:  opts,
		host:  host,
		store: meta.NewStore(),
		pipeline: processor.New(processor.Options{
			Sass:         opts.Transform.Sass,
			LessBinary:   opts.Transform.LessBinary,
			StylusBinary: opts.Transform.StylusBinary,
			Modules:      opts.Transform.Modules,
			User:         opts.Transform.Processors,
		}),
		resolver: resolve.New(resolver),
	}, nil
}

func (c *Compiler) Options() Options {
	return c.opts
}

// Filter reports whether id is compiled by stylepack.
func (c *Compiler) Filter(id string) bool {
	return c.opts.matches(id)
}

// Store holds the metadata of every compiled module.
func (c *Compiler) Store() *meta.Store {
	return c.store
}

// Forget drops the metadata of id, e.g. when the file was deleted.
func (c *Compiler) Forget(id string) {
	c.store.Delete(pathutil.Normalize(id))
}

// Reset drops every module record, before a rebuild.
func (c *Compiler) Reset() {
	for _, id := range c.store.IDs() {
		c.store.Delete(id)
	}
}

// Close stops the style engines.
func (c *Compiler) Close() error {
	return c.pipeline.Close()
}

// CompileFile compiles the style source of id and records the result.
// Compiling a file again replaces its record. It is safe to call
// concurrently for different files.
func (c *Compiler) CompileFile(ctx context.Context, id, source string) (*meta.ModuleMeta, error) {
	id = pathutil.Normalize(id)
	if !c.opts.matches(id) {
		return nil, ErrFiltered
	}
	start := time.Now()
	compiled, err := c.pipeline.Compile(ctx, id, source, c.opts.Output.Sourcemap, c.resolver)
	if err != nil {
		return nil, err
	}
	bundled, err := cssbundle.Bundle(ctx, cssbundle.Input{ID: id, CSS: compiled.CSS, Map: compiled.Map}, cssbundle.Options{
		SourceMap: c.opts.Output.Sourcemap,
		Minify:    c.opts.Output.Minify,
		Resolver:  c.resolver,
		Inline:    c.opts.Assets.Inline,
	})
	if err != nil {
		return nil, err
	}

	watchFiles := append([]string(nil), compiled.WatchFiles...)
	for _, f := range bundled.WatchFiles {
		if !contains(watchFiles, f) {
			watchFiles = append(watchFiles, f)
		}
	}
	m := &meta.ModuleMeta{
		ID:         id,
		CSS:        bundled.CSS,
		Map:        bundled.Map,
		Inputs:     bundled.Inputs,
		WatchFiles: watchFiles,
		Data:       compiled.Data,
	}
	c.store.Put(m)
	logger.Debug("compiled", "file", id, "inputs", len(m.Inputs), "took", time.Since(start))
	return m, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// FinalizeBundle emits the styles and assets of the compiled modules for
// the given chunk graph. It must run after every CompileFile call of the
// build has returned. On error the artifacts emitted by this call are
// withdrawn from hosts that implement graph.Discarder; other hosts keep
// them and should be discarded by the caller.
func (c *Compiler) FinalizeBundle(ctx context.Context, chunks []graph.Chunk) (*Bundle, error) {
	ids := c.store.IDs()
	metas := make([]*meta.ModuleMeta, 0, len(ids))
	for _, id := range ids {
		if m, ok := c.store.Get(id); ok {
			metas = append(metas, m)
		}
	}

	var extracted []extract.ChunkResult
	if c.opts.extracting() {
		var err error
		extracted, err = extract.Extract(ctx, chunks, c.store, extract.Options{Strategy: c.opts.Extract})
		if err != nil {
			return nil, fmt.Errorf("extracting chunk css: %w", err)
		}
	}

	emitter := assets.NewEmitter(c.host, assets.NameOptions{
		PreserveDir: c.opts.Assets.PreserveDir,
		File:        c.opts.Assets.File,
	})
	bundle, err := c.emit(ctx, emitter, pathutil.CommonDir(ids), metas, extracted)
	if err != nil {
		if emitter.Discard() {
			logger.Debug("bundle discarded", "error", err)
		}
		return nil, err
	}
	logger.Debug("bundle finalized", "assets", len(bundle.Assets), "modules", len(bundle.Modules), "chunks", len(bundle.Chunks))
	return bundle, nil
}

func (c *Compiler) emit(ctx context.Context, emitter *assets.Emitter, base string, metas []*meta.ModuleMeta, extracted []extract.ChunkResult) (*Bundle, error) {
	inputs := make([][]meta.InputItem, 0, len(metas)+len(extracted))
	for _, m := range metas {
		inputs = append(inputs, m.Inputs)
	}
	for _, r := range extracted {
		inputs = append(inputs, r.Result.Inputs)
	}

	bundle := &Bundle{}
	var err error
	bundle.Assets, err = emitter.EmitAssets(ctx, base, assets.Dependencies(inputs...))
	if err != nil {
		return nil, err
	}
	if !c.opts.extracting() || c.opts.Output.ModuleAssets {
		bundle.Modules, err = emitter.EmitModuleStyles(base, metas)
		if err != nil {
			return nil, err
		}
	}
	chunkStyles, err := extract.Emit(extracted, emitter)
	if err != nil {
		return nil, err
	}
	for i, style := range chunkStyles {
		bundle.Chunks = append(bundle.Chunks, ChunkStyle{Chunk: extracted[i].Chunk, Style: style})
	}

	styles := append(append([]graph.EmittedStyle(nil), bundle.Modules...), chunkStyles...)
	if err := render.Render(ctx, styles, bundle.Assets, c.host, render.Options{
		PublicPath: c.opts.Assets.PublicPath,
		URL:        c.opts.Assets.URL,
	}); err != nil {
		return nil, err
	}
	return bundle, nil
}
