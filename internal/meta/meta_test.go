package meta

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutKeepsOrder(t *testing.T) {
	s := NewStore()
	s.Put(&ModuleMeta{ID: "/b.css", CSS: "b1"})
	s.Put(&ModuleMeta{ID: "/a.css", CSS: "a"})
	s.Put(&ModuleMeta{ID: "/b.css", CSS: "b2"})

	assert.Equal(t, []string{"/b.css", "/a.css"}, s.IDs())
	m, ok := s.Get("/b.css")
	require.True(t, ok)
	assert.Equal(t, "b2", m.CSS)

	_, ok = s.Get("/c.css")
	assert.False(t, ok)
}

func TestStoreDelete(t *testing.T) {
	s := NewStore()
	s.Put(&ModuleMeta{ID: "/a.css"})
	s.Put(&ModuleMeta{ID: "/b.css"})
	s.Put(&ModuleMeta{ID: "/c.css"})
	s.Delete("/b.css")
	s.Delete("/missing.css")

	assert.Equal(t, []string{"/a.css", "/c.css"}, s.IDs())
	assert.Equal(t, 2, s.Len())
}

func TestStoreWatchFiles(t *testing.T) {
	s := NewStore()
	s.Put(&ModuleMeta{ID: "/a.scss", WatchFiles: []string{"/a.scss", "/_vars.scss"}})
	s.Put(&ModuleMeta{ID: "/b.scss", WatchFiles: []string{"/_vars.scss"}})

	assert.Equal(t, []string{"/a.scss", "/_vars.scss", "/b.scss"}, s.WatchFiles())
}

func TestStoreConcurrentPut(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Put(&ModuleMeta{ID: fmt.Sprintf("/m%d.css", i)})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}
