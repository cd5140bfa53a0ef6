package meta

import (
	"sync"
)

// InputItem is one dependency discovered while bundling a style file.
// Placeholder is set if and only if the item is neither external nor
// inlined.
type InputItem struct {
	Path        string
	External    bool
	Inlined     bool
	Placeholder string
}

// ModuleMeta is the compiled record of one style source file. Its CSS
// still contains placeholders for every item of Inputs that has one.
type ModuleMeta struct {
	ID         string
	CSS        string
	Map        string
	Inputs     []InputItem
	WatchFiles []string
	Data       map[string]interface{}
}

// Store owns the ModuleMeta of every compiled file, keyed by module id.
// It is safe for concurrent use.
type Store struct {
	mutex sync.RWMutex
	order []string
	byID  map[string]*ModuleMeta
}

func NewStore() *Store {
	return &Store{byID: make(map[string]*ModuleMeta)}
}

// Put records m, replacing any previous record with the same id. The id
// keeps its original position in IDs.
func (s *Store) Put(m *ModuleMeta) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.byID[m.ID]; !ok {
		s.order = append(s.order, m.ID)
	}
	s.byID[m.ID] = m
}

func (s *Store) Get(id string) (*ModuleMeta, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	m, ok := s.byID[id]
	return m, ok
}

// Delete forgets id, e.g. after the file was removed in watch mode.
func (s *Store) Delete(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
}

// IDs returns the ids in first-insertion order.
func (s *Store) IDs() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

func (s *Store) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.order)
}

// WatchFiles returns the union of every module's watch files, in module
// order.
func (s *Store) WatchFiles() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	seen := make(map[string]bool)
	var files []string
	for _, id := range s.order {
		for _, f := range append([]string{id}, s.byID[id].WatchFiles...) {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	return files
}
