package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/tain335/stylepack/internal/pathutil"
)

// DefaultAssetFileNames keeps the suggested name as is.
const DefaultAssetFileNames = "[name][extname]"

// Output is an artifact held by a MemoryHost.
type Output struct {
	Ref      string
	FileName string
	Source   []byte
}

// MemoryHost is a Host that keeps emitted artifacts in memory. Suggested
// names go through AssetFileNames, which understands [name] (the name
// without its extension, directories included), [ext], [extname] and
// [hash]. Colliding file names get a numeric suffix: a.css, a2.css, ...
type MemoryHost struct {
	Resolver       Resolver
	AssetFileNames string

	mutex   sync.Mutex
	outputs []*Output
	byRef   map[string]*Output
	used    map[string]bool
}

func NewMemoryHost(resolver Resolver) *MemoryHost {
	if resolver == nil {
		resolver = &FileResolver{}
	}
	return &MemoryHost{
		Resolver:       resolver,
		AssetFileNames: DefaultAssetFileNames,
		byRef:          make(map[string]*Output),
		used:           make(map[string]bool),
	}
}

func (h *MemoryHost) Resolve(p, importer string) (*Resolved, error) {
	return h.Resolver.Resolve(p, importer)
}

func (h *MemoryHost) EmitAsset(a Artifact) (string, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	var fileName string
	switch {
	case a.FileName != "":
		fileName = pathutil.Normalize(a.FileName)
		if h.used[strings.ToLower(fileName)] {
			return "", fmt.Errorf("an artifact named %q was already emitted", fileName)
		}
	case a.Name != "":
		fileName = h.uniqueName(h.applyPattern(pathutil.Normalize(a.Name), a.Source))
	default:
		return "", fmt.Errorf("artifact has neither a name nor a file name")
	}
	if !inOutputDir(fileName) {
		return "", fmt.Errorf("artifact name %q must be relative to the output directory and may not contain \"..\"", fileName)
	}
	h.used[strings.ToLower(fileName)] = true
	out := &Output{
		Ref:      "asset-" + strconv.Itoa(len(h.outputs)),
		FileName: fileName,
		Source:   a.Source,
	}
	h.outputs = append(h.outputs, out)
	h.byRef[out.Ref] = out
	return out.Ref, nil
}

func (h *MemoryHost) FileName(ref string) (string, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	out, ok := h.byRef[ref]
	if !ok {
		return "", fmt.Errorf("unknown artifact %q", ref)
	}
	return out.FileName, nil
}

func (h *MemoryHost) SetSource(ref string, source []byte) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	out, ok := h.byRef[ref]
	if !ok {
		return fmt.Errorf("unknown artifact %q", ref)
	}
	out.Source = source
	return nil
}

// Outputs returns the emitted artifacts in emission order.
func (h *MemoryHost) Outputs() []Output {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	outputs := make([]Output, len(h.outputs))
	for i, out := range h.outputs {
		outputs[i] = *out
	}
	return outputs
}

// Output returns the artifact emitted under fileName.
func (h *MemoryHost) Output(fileName string) (Output, bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for _, out := range h.outputs {
		if out.FileName == fileName {
			return *out, true
		}
	}
	return Output{}, false
}

// Discard drops the artifacts behind refs. Unknown refs are ignored.
func (h *MemoryHost) Discard(refs ...string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	drop := make(map[string]bool, len(refs))
	for _, ref := range refs {
		out, ok := h.byRef[ref]
		if !ok {
			continue
		}
		drop[ref] = true
		delete(h.byRef, ref)
		delete(h.used, strings.ToLower(out.FileName))
	}
	kept := h.outputs[:0]
	for _, out := range h.outputs {
		if !drop[out.Ref] {
			kept = append(kept, out)
		}
	}
	h.outputs = kept
}

// Reset drops every emitted artifact, e.g. before a rebuild.
func (h *MemoryHost) Reset() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.outputs = nil
	h.byRef = make(map[string]*Output)
	h.used = make(map[string]bool)
}

// inOutputDir reports whether fileName stays inside the output directory.
func inOutputDir(fileName string) bool {
	if path.IsAbs(fileName) || (len(fileName) > 1 && fileName[1] == ':') {
		return false
	}
	cleaned := path.Clean(fileName)
	return cleaned != ".." && !strings.HasPrefix(cleaned, "../")
}

func (h *MemoryHost) applyPattern(name string, source []byte) string {
	pattern := h.AssetFileNames
	if pattern == "" {
		pattern = DefaultAssetFileNames
	}
	ext := path.Ext(name)
	sum := sha256.Sum256(source)
	return strings.NewReplacer(
		"[name]", strings.TrimSuffix(name, ext),
		"[extname]", ext,
		"[ext]", strings.TrimPrefix(ext, "."),
		"[hash]", hex.EncodeToString(sum[:4]),
	).Replace(pattern)
}

func (h *MemoryHost) uniqueName(fileName string) string {
	if !h.used[strings.ToLower(fileName)] {
		return fileName
	}
	ext := path.Ext(fileName)
	stem := strings.TrimSuffix(fileName, ext)
	for i := 2; ; i++ {
		candidate := stem + strconv.Itoa(i) + ext
		if !h.used[strings.ToLower(candidate)] {
			return candidate
		}
	}
}
