// Package assets names and emits the files referenced by compiled styles
// and, when styles are not only extracted per chunk, the styles themselves.
package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tain335/stylepack/internal/graph"
	"github.com/tain335/stylepack/internal/logger"
	"github.com/tain335/stylepack/internal/meta"
	"github.com/tain335/stylepack/internal/pathutil"
	"github.com/tain335/stylepack/internal/placeholder"
)

var stylePattern = regexp.MustCompile(`\.(css|s[ac]ss|less|styl|stylus)$`)

// IsStyle reports whether id is a style source file.
func IsStyle(id string) bool {
	return stylePattern.MatchString(id)
}

// FileHook renames an asset before emission. Returning false suppresses
// it.
type FileHook func(name, id string) (string, bool)

type NameOptions struct {
	PreserveDir PreserveDir
	File        FileHook
}

// Name returns the emission name of id relative to base and whether it
// is emitted at all.
func Name(base, id string, isStyle bool, opts NameOptions) (string, bool) {
	suggested := pathutil.Rel(base, id)
	if !opts.PreserveDir.keep(suggested, id, isStyle) {
		suggested = path.Base(suggested)
	}
	if opts.File != nil {
		return opts.File(suggested, id)
	}
	return suggested, true
}

// Dependencies lists, in first-seen order, the ids the placeholders of
// the given input lists stand for.
func Dependencies(inputs ...[]meta.InputItem) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, list := range inputs {
		for _, in := range list {
			if in.Placeholder == "" || seen[in.Path] {
				continue
			}
			seen[in.Path] = true
			ids = append(ids, in.Path)
		}
	}
	return ids
}

// Substitutions builds the placeholder table of inputs.
func Substitutions(inputs []meta.InputItem) placeholder.Table {
	var table placeholder.Table
	for _, in := range inputs {
		if in.Placeholder != "" {
			table = table.Add(in.Placeholder, in.Path)
		}
	}
	return table
}

type Emitter struct {
	Host    graph.Emitter
	Options NameOptions

	mutex sync.Mutex
	refs  []string
}

func NewEmitter(host graph.Emitter, opts NameOptions) *Emitter {
	return &Emitter{Host: host, Options: opts}
}

type asset struct {
	id     string
	name   string
	source []byte
}

// EmitAssets reads the files behind ids and registers them with the host.
// Reads run concurrently and a failed read does not stop the others; the
// host sees the files in the order of ids.
func (e *Emitter) EmitAssets(ctx context.Context, base string, ids []string) ([]graph.EmittedAsset, error) {
	pending := make([]*asset, 0, len(ids))
	for _, id := range ids {
		name, ok := Name(base, id, IsStyle(id), e.Options)
		if !ok {
			logger.Debug("asset suppressed", "id", id)
			continue
		}
		pending = append(pending, &asset{id: id, name: name})
	}

	var (
		g     errgroup.Group
		mutex sync.Mutex
		errs  []error
	)
	g.SetLimit(16)
	for _, a := range pending {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			source, err := os.ReadFile(a.id)
			if err != nil {
				mutex.Lock()
				errs = append(errs, fmt.Errorf("reading asset %s: %w", a.id, err))
				mutex.Unlock()
				return nil
			}
			a.source = source
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	emitted := make([]graph.EmittedAsset, 0, len(pending))
	for _, a := range pending {
		out, err := e.emit(a.id, a.name, pathutil.Rel(base, a.id), a.source)
		if err != nil {
			return nil, err
		}
		emitted = append(emitted, out)
	}
	return emitted, nil
}

// EmitModuleStyles emits one style artifact per module, named after its
// source with a .css extension.
func (e *Emitter) EmitModuleStyles(base string, metas []*meta.ModuleMeta) ([]graph.EmittedStyle, error) {
	styles := make([]graph.EmittedStyle, 0, len(metas))
	for _, m := range metas {
		name, ok := Name(base, m.ID, true, e.Options)
		if !ok {
			logger.Debug("style suppressed", "id", m.ID)
			continue
		}
		name = pathutil.TrimExt(name) + ".css"
		out, err := e.emit(m.ID, name, pathutil.TrimExt(pathutil.Rel(base, m.ID))+".css", []byte(m.CSS))
		if err != nil {
			return nil, err
		}
		styles = append(styles, graph.EmittedStyle{
			EmittedAsset:  out,
			Source:        m.CSS,
			Substitutions: Substitutions(m.Inputs),
		})
	}
	return styles, nil
}

// EmitStyle registers a style artifact that has no single source module,
// such as the extracted CSS of a chunk.
func (e *Emitter) EmitStyle(id, name, source string, inputs []meta.InputItem) (graph.EmittedStyle, error) {
	out, err := e.emit(id, name, name, []byte(source))
	if err != nil {
		return graph.EmittedStyle{}, err
	}
	return graph.EmittedStyle{
		EmittedAsset:  out,
		Source:        source,
		Substitutions: Substitutions(inputs),
	}, nil
}

func (e *Emitter) emit(id, name, defaultName string, source []byte) (graph.EmittedAsset, error) {
	ref, err := e.Host.EmitAsset(graph.Artifact{Name: name, Source: source})
	if err != nil {
		return graph.EmittedAsset{}, fmt.Errorf("emitting %s: %w", id, err)
	}
	e.mutex.Lock()
	e.refs = append(e.refs, ref)
	e.mutex.Unlock()
	fileName, err := e.Host.FileName(ref)
	if err != nil {
		return graph.EmittedAsset{}, fmt.Errorf("emitting %s: %w", id, err)
	}
	return graph.EmittedAsset{
		ID:              id,
		Ref:             ref,
		EmitName:        name,
		EmitDefaultName: defaultName,
		EmitFileName:    fileName,
	}, nil
}

// Discard withdraws everything this emitter registered, when the host
// supports it. It reports whether the host did.
func (e *Emitter) Discard() bool {
	d, ok := e.Host.(graph.Discarder)
	if !ok {
		return false
	}
	e.mutex.Lock()
	refs := e.refs
	e.refs = nil
	e.mutex.Unlock()
	d.Discard(refs...)
	return true
}
