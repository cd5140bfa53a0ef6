package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tain335/stylepack/internal/assets"
	"github.com/tain335/stylepack/internal/graph"
	"github.com/tain335/stylepack/internal/meta"
)

func storeOf(metas ...*meta.ModuleMeta) *meta.Store {
	store := meta.NewStore()
	for _, m := range metas {
		store.Put(m)
	}
	return store
}

func TestStaticBeforeDynamic(t *testing.T) {
	// Insert in reverse to make sure store order plays no part.
	store := storeOf(
		&meta.ModuleMeta{ID: "/c.css", CSS: ".c{}"},
		&meta.ModuleMeta{ID: "/b.css", CSS: ".b{}"},
		&meta.ModuleMeta{ID: "/a.css", CSS: ".a{}"},
	)
	chunks := []graph.Chunk{
		{Name: "main", FileName: "main.js", Modules: []string{"/main.js", "/a.css", "/b.css"}, DynamicImports: []string{"lazy.js"}},
		{Name: "lazy", FileName: "lazy.js", Modules: []string{"/lazy.js", "/c.css"}},
	}
	results, err := Extract(context.Background(), chunks, store, Options{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "main.css", results[0].Result.Name)
	assert.Equal(t, ".a{}\n.b{}\n.c{}", results[0].Result.Source)
	assert.Equal(t, "lazy.css", results[1].Result.Name)
	assert.Equal(t, ".c{}", results[1].Result.Source)
}

func TestReachableMarksDynamicOnlyModules(t *testing.T) {
	store := storeOf(
		&meta.ModuleMeta{ID: "/a.css", CSS: ".a{}"},
		&meta.ModuleMeta{ID: "/shared.css", CSS: ".s{}"},
		&meta.ModuleMeta{ID: "/x.css", CSS: ".x{}"},
		&meta.ModuleMeta{ID: "/y.css", CSS: ".y{}"},
	)
	chunks := []graph.Chunk{
		{Name: "main", Modules: []string{"/a.css", "/shared.css"}, DynamicImports: []string{"two", "one"}},
		{Name: "one", Modules: []string{"/x.css", "/shared.css"}},
		{Name: "two", Modules: []string{"/y.css", "/x.css"}},
	}
	modules := Reachable(chunks[0], chunks, store)
	var ids []string
	for _, m := range modules {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"/a.css", "/shared.css", "/x.css", "/y.css"}, ids)
	assert.False(t, modules[1].Dynamic)
	assert.True(t, modules[2].Dynamic)
	assert.True(t, modules[3].Dynamic)
}

func TestSuggestConcatenatesInputs(t *testing.T) {
	modules := []Module{
		{ID: "/a.css", Meta: &meta.ModuleMeta{CSS: "a", Inputs: []meta.InputItem{{Path: "/1.png", Placeholder: "1"}}}},
		{ID: "/b.css", Meta: &meta.ModuleMeta{CSS: "b", Inputs: []meta.InputItem{{Path: "/2.png", Placeholder: "2"}}}},
	}
	r := Suggest(graph.Chunk{Name: "entry"}, modules)
	assert.Equal(t, "entry.css", r.Name)
	assert.Equal(t, "a\nb", r.Source)
	assert.Equal(t, []meta.InputItem{{Path: "/1.png", Placeholder: "1"}, {Path: "/2.png", Placeholder: "2"}}, r.Inputs)
}

func TestCustomStrategy(t *testing.T) {
	store := storeOf(
		&meta.ModuleMeta{ID: "/a.css", CSS: ".a{}"},
		&meta.ModuleMeta{ID: "/b.css", CSS: ".b{}"},
		&meta.ModuleMeta{ID: "/c.css", CSS: ".c{}"},
	)
	chunks := []graph.Chunk{
		{Name: "a", Modules: []string{"/a.css"}},
		{Name: "b", Modules: []string{"/b.css"}},
		{Name: "c", Modules: []string{"/c.css"}},
	}
	name := "renamed.css"
	strategy := Custom(func(chunk graph.Chunk, modules []Module, suggested Result) (Decision, error) {
		switch chunk.Name {
		case "a":
			return Suppress(), nil
		case "b":
			return Override(Partial{Name: &name}), nil
		}
		return Accept(), nil
	})
	results, err := Extract(context.Background(), chunks, store, Options{Strategy: strategy})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].Chunk.Name)
	assert.Equal(t, "renamed.css", results[0].Result.Name)
	assert.Equal(t, ".b{}", results[0].Result.Source)
	assert.Equal(t, "c.css", results[1].Result.Name)
}

func TestEmptySourceIsDropped(t *testing.T) {
	store := storeOf(&meta.ModuleMeta{ID: "/a.css", CSS: ".a{}"})
	empty := ""
	chunks := []graph.Chunk{
		{Name: "a", Modules: []string{"/a.css"}},
		{Name: "js", Modules: []string{"/index.js"}},
	}
	results, err := Extract(context.Background(), chunks, store, Options{Strategy: Custom(
		func(graph.Chunk, []Module, Result) (Decision, error) {
			return Override(Partial{Source: &empty}), nil
		})})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCommentOnlySourceIsDropped(t *testing.T) {
	store := storeOf(
		&meta.ModuleMeta{ID: "/a.css", CSS: "/* a.css */\n"},
		&meta.ModuleMeta{ID: "/b.css", CSS: "\n/* b.css */\n"},
		&meta.ModuleMeta{ID: "/c.css", CSS: "/* c.css */\n.c{}"},
	)
	chunks := []graph.Chunk{
		{Name: "empty", Modules: []string{"/a.css", "/b.css"}},
		{Name: "c", Modules: []string{"/a.css", "/c.css"}},
	}
	results, err := Extract(context.Background(), chunks, store, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c", results[0].Chunk.Name)

	assert.True(t, blank(" \n/* x */\n"))
	assert.False(t, blank(`.a{content:"/*"}`))
	assert.True(t, blank(""))
}

func TestStrategyError(t *testing.T) {
	store := storeOf(&meta.ModuleMeta{ID: "/a.css", CSS: ".a{}"})
	boom := errors.New("boom")
	_, err := Extract(context.Background(), []graph.Chunk{{Name: "a", Modules: []string{"/a.css"}}}, store,
		Options{Strategy: Custom(func(graph.Chunk, []Module, Result) (Decision, error) { return Decision{}, boom })})
	assert.ErrorIs(t, err, boom)
}

func TestDisabledStrategy(t *testing.T) {
	store := storeOf(&meta.ModuleMeta{ID: "/a.css", CSS: ".a{}"})
	results, err := Extract(context.Background(), []graph.Chunk{{Name: "a", Modules: []string{"/a.css"}}}, store,
		Options{Strategy: Disabled()})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEmitInChunkOrder(t *testing.T) {
	host := graph.NewMemoryHost(nil)
	results := []ChunkResult{
		{Chunk: graph.Chunk{Name: "b", FileName: "b.js"}, Result: Result{Name: "b.css", Source: ".b{}", Inputs: []meta.InputItem{{Path: "/x.png", Placeholder: "x"}}}},
		{Chunk: graph.Chunk{Name: "a", FileName: "a.js"}, Result: Result{Name: "a.css", Source: ".a{}"}},
	}
	styles, err := Emit(results, assets.NewEmitter(host, assets.NameOptions{}))
	require.NoError(t, err)
	require.Len(t, styles, 2)
	assert.Equal(t, "b.css", styles[0].EmitFileName)
	assert.Equal(t, "b.js", styles[0].ID)
	require.Len(t, styles[0].Substitutions, 1)
	assert.Equal(t, "/x.png", styles[0].Substitutions[0].DependencyID)

	outputs := host.Outputs()
	require.Len(t, outputs, 2)
	assert.Equal(t, "b.css", outputs[0].FileName)
	assert.Equal(t, "a.css", outputs[1].FileName)
}
