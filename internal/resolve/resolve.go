// Package resolve resolves the paths referenced by style sources through a
// host resolver, with a fallback for the root-relative or ambiguous import
// syntax of the style languages (`@import "foo"` without "./").
package resolve

import (
	"fmt"
	"path"
	"strings"

	"github.com/tain335/stylepack/internal/graph"
	"github.com/tain335/stylepack/internal/pathutil"
)

// Error reports a path that could not be resolved through any candidate
// importer.
type Error struct {
	Path     string
	Importer string
}

func (e *Error) Error() string {
	return fmt.Sprintf("could not resolve %q imported from %q", e.Path, e.Importer)
}

// Resolver wraps a host resolver.
type Resolver struct {
	Host graph.Resolver
}

func New(host graph.Resolver) *Resolver {
	return &Resolver{Host: host}
}

// IsExternalURL reports whether p is never resolved: remote and protocol
// relative URLs, data URLs and fragment ids.
func IsExternalURL(p string) bool {
	lower := strings.ToLower(p)
	return strings.HasPrefix(lower, "http:") ||
		strings.HasPrefix(lower, "https:") ||
		strings.HasPrefix(lower, "data:") ||
		strings.HasPrefix(p, "//") ||
		strings.HasPrefix(p, "#")
}

// Resolve resolves p as imported from importer. A bare path that the host
// cannot resolve is retried with every ancestor directory of the importer
// standing in for the importer's own directory. Failure after the last
// candidate returns *Error.
func (r *Resolver) Resolve(p, importer string) (*graph.Resolved, error) {
	if IsExternalURL(p) {
		return &graph.Resolved{ID: p, External: true}, nil
	}
	resolved, err := r.Host.Resolve(p, importer)
	if err != nil {
		return nil, fmt.Errorf("resolving %q from %q: %w", p, importer, err)
	}
	if resolved != nil {
		return normalized(resolved), nil
	}
	if isBare(p) && importer != "" {
		for _, candidate := range candidateImporters(importer) {
			resolved, err = r.Host.Resolve(p, candidate)
			if err != nil {
				return nil, fmt.Errorf("resolving %q from %q: %w", p, candidate, err)
			}
			if resolved != nil {
				return normalized(resolved), nil
			}
		}
	}
	return nil, &Error{Path: p, Importer: importer}
}

func normalized(r *graph.Resolved) *graph.Resolved {
	if r.External {
		return r
	}
	return &graph.Resolved{ID: pathutil.Normalize(r.ID)}
}

// candidateImporters lists importer moved into each ancestor directory of
// its own directory, nearest first.
func candidateImporters(importer string) []string {
	importer = pathutil.Normalize(importer)
	name := path.Base(importer)
	dir := path.Dir(importer)
	var candidates []string
	for {
		parent := path.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
		candidates = append(candidates, path.Join(dir, name))
	}
	return candidates
}

func isBare(p string) bool {
	return !strings.HasPrefix(p, "./") &&
		!strings.HasPrefix(p, "../") &&
		!strings.HasPrefix(p, "~") &&
		!pathutil.IsAbs(p)
}
