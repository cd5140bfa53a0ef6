package graph

import "fmt"

// Dependencies returns the chunk named name followed by every chunk it
// loads statically, depth first, each once.
func Dependencies(chunks []Chunk, name string) ([]Chunk, error) {
	byName := make(map[string]*Chunk, len(chunks)*2)
	for i := range chunks {
		byName[chunks[i].Name] = &chunks[i]
		if chunks[i].FileName != "" {
			byName[chunks[i].FileName] = &chunks[i]
		}
	}
	var deps []Chunk
	seen := make(map[*Chunk]bool)
	var walk func(name string) error
	walk = func(name string) error {
		chunk := byName[name]
		if chunk == nil {
			return fmt.Errorf("no chunk named %s", name)
		}
		if seen[chunk] {
			return nil
		}
		seen[chunk] = true
		deps = append(deps, *chunk)
		for _, dep := range chunk.Imports {
			if err := walk(dep); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(name); err != nil {
		return nil, err
	}
	return deps, nil
}
