// Package watch triggers rebuilds when the files a build read change.
package watch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/exp/slices"

	"github.com/tain335/stylepack/internal/logger"
)

// DefaultDebounce is how long the watcher waits for more changes before
// rebuilding.
const DefaultDebounce = 50 * time.Millisecond

// RebuildFunc is called with the changed paths, sorted.
type RebuildFunc func(ctx context.Context, dirty []string)

type Watcher struct {
	rebuild  RebuildFunc
	debounce time.Duration

	mutex   sync.Mutex
	watcher *fsnotify.Watcher
	paths   map[string]bool
}

func New(rebuild RebuildFunc, debounce time.Duration) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		rebuild:  rebuild,
		debounce: debounce,
		watcher:  watcher,
		paths:    make(map[string]bool),
	}, nil
}

// SetPaths replaces the watched files. Files inside node_modules are
// skipped.
func (w *Watcher) SetPaths(paths []string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	next := make(map[string]bool, len(paths))
	for _, p := range paths {
		p = filepath.Clean(filepath.FromSlash(p))
		if !watchable(p) {
			continue
		}
		next[p] = true
		if w.paths[p] {
			continue
		}
		if err := w.watcher.Add(p); err != nil {
			logger.Warnf("cannot watch %s: %s", p, err)
			delete(next, p)
		}
	}
	for p := range w.paths {
		if !next[p] {
			_ = w.watcher.Remove(p)
		}
	}
	w.paths = next
	return nil
}

// Paths returns the watched files, sorted.
func (w *Watcher) Paths() []string {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	paths := make([]string, 0, len(w.paths))
	for p := range w.paths {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// Run delivers debounced changes to the rebuild function until ctx is
// done. Rebuilds run on the caller's goroutine, one at a time.
func (w *Watcher) Run(ctx context.Context) error {
	dirty := map[string]bool{}
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Create) {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				// Editors that save by rename drop the watch; SetPaths
				// adds it back after the rebuild.
				w.mutex.Lock()
				delete(w.paths, filepath.Clean(event.Name))
				w.mutex.Unlock()
			}
			dirty[event.Name] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			paths := make([]string, 0, len(dirty))
			for p := range dirty {
				paths = append(paths, p)
			}
			slices.Sort(paths)
			dirty = map[string]bool{}
			logger.Debug("files changed", "paths", paths)
			w.rebuild(ctx, paths)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watch", "err", err)
		}
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func watchable(p string) bool {
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == "node_modules" {
			return false
		}
	}
	return true
}
