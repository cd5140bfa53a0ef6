package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebuildOnChange(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.scss")
	b := filepath.Join(dir, "b.scss")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0o644))

	calls := make(chan []string, 4)
	w, err := New(func(ctx context.Context, dirty []string) { calls <- dirty }, 100*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.SetPaths([]string{a, b}))
	assert.Equal(t, []string{a, b}, w.Paths())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(b, []byte("b2"), 0o644))
	require.NoError(t, os.WriteFile(a, []byte("a2"), 0o644))

	select {
	case dirty := <-calls:
		assert.Equal(t, []string{a, b}, dirty)
	case <-time.After(5 * time.Second):
		t.Fatal("no rebuild")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSetPathsReplacesWatches(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.css")
	b := filepath.Join(dir, "b.css")
	vendored := filepath.Join(dir, "node_modules", "lib", "x.css")
	for _, p := range []string{a, b, vendored} {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}

	w, err := New(func(context.Context, []string) {}, 0)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.SetPaths([]string{a, vendored}))
	assert.Equal(t, []string{a}, w.Paths())
	require.NoError(t, w.SetPaths([]string{b, filepath.Join(dir, "missing.css")}))
	assert.Equal(t, []string{b}, w.Paths())
}
