// Package graph defines the boundary between the style pipeline and the
// host bundler: module resolution, artifact emission and the final chunk
// graph.
package graph

import (
	"github.com/tain335/stylepack/internal/placeholder"
)

// Resolved is the result of resolving an import path.
type Resolved struct {
	ID       string
	External bool
}

// Resolver resolves path as imported from importer. A nil result with a
// nil error means the path could not be resolved.
type Resolver interface {
	Resolve(path, importer string) (*Resolved, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(path, importer string) (*Resolved, error)

func (f ResolverFunc) Resolve(path, importer string) (*Resolved, error) {
	return f(path, importer)
}

// Artifact is an output file handed to the host. Exactly one of Name (a
// suggestion the host may rewrite) or FileName (a fixed name) is set.
type Artifact struct {
	Name     string
	FileName string
	Source   []byte
}

// Emitter registers output artifacts with the host.
type Emitter interface {
	// EmitAsset registers a and returns the host's handle for it.
	EmitAsset(a Artifact) (ref string, err error)
	// FileName returns the final output path, relative to the output
	// directory, of an emitted artifact.
	FileName(ref string) (string, error)
	// SetSource overwrites the bytes of an emitted artifact.
	SetSource(ref string, source []byte) error
}

// Host is everything the pipeline needs from the surrounding bundler.
type Host interface {
	Resolver
	Emitter
}

// Discarder is implemented by hosts that can drop artifacts they were
// given, so a failed bundle leaves nothing behind.
type Discarder interface {
	Discard(refs ...string)
}

// Chunk is one output unit of the host's final chunk graph. Modules is in
// the host's module order, DynamicImports holds the names of chunks this
// chunk loads dynamically and Imports those it loads statically.
type Chunk struct {
	Name           string
	FileName       string
	Modules        []string
	DynamicImports []string
	Imports        []string
}

// EmittedAsset describes an artifact emitted for a non-style asset, or for
// a style file treated as a plain asset.
type EmittedAsset struct {
	ID              string
	Ref             string
	EmitName        string
	EmitDefaultName string
	EmitFileName    string
}

// EmittedStyle is an emitted style artifact together with the placeholders
// its source still contains.
type EmittedStyle struct {
	EmittedAsset
	Source        string
	Substitutions placeholder.Table
}
