// Package render rewrites the placeholders of emitted style artifacts to
// the URLs of the assets they reference.
package render

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tain335/stylepack/internal/graph"
	"github.com/tain335/stylepack/internal/pathutil"
	"github.com/tain335/stylepack/internal/placeholder"
)

// MissingAssetError reports a placeholder whose dependency was not
// emitted, usually because a file hook suppressed it.
type MissingAssetError struct {
	Artifact   string
	Dependency string
}

func (e *MissingAssetError) Error() string {
	return fmt.Sprintf("%s references %s, which was not emitted", e.Artifact, e.Dependency)
}

// UnresolvedPlaceholderError reports a placeholder in an artifact that its
// substitution table does not list.
type UnresolvedPlaceholderError struct {
	Artifact string
	Err      error
}

func (e *UnresolvedPlaceholderError) Error() string {
	return fmt.Sprintf("rendering %s: %v", e.Artifact, e.Err)
}

func (e *UnresolvedPlaceholderError) Unwrap() error {
	return e.Err
}

// URLContext describes one reference being rendered.
type URLContext struct {
	Asset      graph.EmittedAsset
	Style      graph.EmittedAsset
	DefaultURL string
}

// URLFormatter returns the URL written for a reference.
type URLFormatter func(ctx URLContext) (string, error)

type Options struct {
	PublicPath string
	URL        URLFormatter
}

// DefaultURL is the URL of asset as seen from style. publicPath is a
// plain prefix: "/static/" gives "/static/a.png", "cdn/v1-" gives
// "cdn/v1-a.png".
func DefaultURL(publicPath string, style, asset graph.EmittedAsset) string {
	rel := pathutil.Rel(path.Dir(style.EmitFileName), asset.EmitFileName)
	if publicPath == "" {
		return rel
	}
	return publicPath + strings.TrimPrefix(rel, "./")
}

// Artifact renders the source of one style. Nothing is returned unless
// every placeholder has a value.
func Artifact(style graph.EmittedStyle, byID map[string]graph.EmittedAsset, opts Options) (string, error) {
	values := make(map[string]string, len(style.Substitutions))
	for _, sub := range style.Substitutions {
		asset, ok := byID[sub.DependencyID]
		if !ok {
			return "", &MissingAssetError{Artifact: style.EmitFileName, Dependency: sub.DependencyID}
		}
		url := DefaultURL(opts.PublicPath, style.EmittedAsset, asset)
		if opts.URL != nil {
			var err error
			url, err = opts.URL(URLContext{Asset: asset, Style: style.EmittedAsset, DefaultURL: url})
			if err != nil {
				return "", fmt.Errorf("formatting url of %s in %s: %w", asset.ID, style.EmitFileName, err)
			}
		}
		values[sub.Token] = url
	}
	source, err := placeholder.Replace(style.Source, values)
	if err != nil {
		return "", &UnresolvedPlaceholderError{Artifact: style.EmitFileName, Err: err}
	}
	return source, nil
}

// Render renders every style concurrently and writes the results back
// through emitter. Every failed artifact is reported; if any fails,
// nothing is written.
func Render(ctx context.Context, styles []graph.EmittedStyle, emitted []graph.EmittedAsset, emitter graph.Emitter, opts Options) error {
	byID := make(map[string]graph.EmittedAsset, len(emitted))
	for _, a := range emitted {
		byID[a.ID] = a
	}

	rendered := make([]string, len(styles))
	var (
		g     errgroup.Group
		mutex sync.Mutex
		errs  []error
	)
	for i, style := range styles {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			source, err := Artifact(style, byID, opts)
			if err != nil {
				mutex.Lock()
				errs = append(errs, err)
				mutex.Unlock()
				return nil
			}
			rendered[i] = source
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for i, style := range styles {
		if rendered[i] == style.Source {
			continue
		}
		if err := emitter.SetSource(style.Ref, []byte(rendered[i])); err != nil {
			return fmt.Errorf("writing %s: %w", style.EmitFileName, err)
		}
	}
	return nil
}
