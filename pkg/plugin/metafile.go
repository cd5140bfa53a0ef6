package plugin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/tain335/stylepack/internal/graph"
	"github.com/tain335/stylepack/internal/pathutil"
)

type metafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external"`
}

type metafileOutput struct {
	Imports    []metafileImport `json:"imports"`
	EntryPoint string           `json:"entryPoint"`
	Inputs     json.RawMessage  `json:"inputs"`
}

var scriptExts = map[string]bool{".js": true, ".mjs": true, ".cjs": true}

// ChunksFromMetafile reads the chunk graph of an esbuild metafile. Every
// script output is a chunk whose modules are its inputs in output order.
// Imports of shared chunks become Imports, dynamic imports DynamicImports.
// Paths in the metafile are relative to workingDir; chunk file names are
// relative to outdir.
func ChunksFromMetafile(metafile, workingDir, outdir string) ([]graph.Chunk, error) {
	if metafile == "" {
		return nil, fmt.Errorf("the build has no metafile")
	}
	var top struct {
		Outputs json.RawMessage `json:"outputs"`
	}
	if err := json.Unmarshal([]byte(metafile), &top); err != nil {
		return nil, fmt.Errorf("reading metafile: %w", err)
	}
	keys, values, err := orderedObject(top.Outputs)
	if err != nil {
		return nil, fmt.Errorf("reading metafile outputs: %w", err)
	}

	abs := func(p string) string {
		return pathutil.Normalize(filepath.Join(workingDir, filepath.FromSlash(p)))
	}
	fileName := func(p string) string {
		return pathutil.Rel(pathutil.Normalize(outdir), abs(p))
	}

	var chunks []graph.Chunk
	for i, key := range keys {
		if !scriptExts[path.Ext(key)] {
			continue
		}
		var out metafileOutput
		if err := json.Unmarshal(values[i], &out); err != nil {
			return nil, fmt.Errorf("reading metafile output %s: %w", key, err)
		}
		inputs, _, err := orderedObject(out.Inputs)
		if err != nil {
			return nil, fmt.Errorf("reading inputs of %s: %w", key, err)
		}
		name := fileName(key)
		chunk := graph.Chunk{
			Name:     strings.TrimSuffix(name, path.Ext(name)),
			FileName: name,
		}
		for _, input := range inputs {
			chunk.Modules = append(chunk.Modules, abs(input))
		}
		for _, imp := range out.Imports {
			if imp.External {
				continue
			}
			switch imp.Kind {
			case "dynamic-import":
				chunk.DynamicImports = append(chunk.DynamicImports, fileName(imp.Path))
			case "import-statement":
				chunk.Imports = append(chunk.Imports, fileName(imp.Path))
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// orderedObject splits a JSON object into its keys, in document order,
// and their raw values.
func orderedObject(raw json.RawMessage) ([]string, []json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected an object")
	}
	var keys []string
	var values []json.RawMessage
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected an object key")
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		values = append(values, value)
	}
	return keys, values, nil
}

// InputFiles lists the absolute paths of every input of the build that
// lives on disk, in metafile order.
func InputFiles(metafile, workingDir string) ([]string, error) {
	if metafile == "" {
		return nil, nil
	}
	var top struct {
		Inputs json.RawMessage `json:"inputs"`
	}
	if err := json.Unmarshal([]byte(metafile), &top); err != nil {
		return nil, fmt.Errorf("reading metafile: %w", err)
	}
	keys, _, err := orderedObject(top.Inputs)
	if err != nil {
		return nil, fmt.Errorf("reading metafile inputs: %w", err)
	}
	files := make([]string, 0, len(keys))
	for _, key := range keys {
		// Inputs of other namespaces are spelled "namespace:path".
		if i := strings.Index(key, ":"); i > 0 && !filepath.IsAbs(key) {
			continue
		}
		files = append(files, filepath.Join(workingDir, filepath.FromSlash(key)))
	}
	return files, nil
}
