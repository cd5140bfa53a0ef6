package cssbundle

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tain335/stylepack/internal/assets"
	"github.com/tain335/stylepack/internal/graph"
	"github.com/tain335/stylepack/internal/placeholder"
	"github.com/tain335/stylepack/internal/resolve"
)

func fixture(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return filepath.ToSlash(dir)
}

func options() Options {
	return Options{Resolver: resolve.New(&graph.FileResolver{})}
}

func TestBundlePlaceholders(t *testing.T) {
	dir := fixture(t, map[string]string{
		"img/a.png": "a",
		"img/b.png": "b",
	})
	out, err := Bundle(context.Background(), Input{
		ID:  dir + "/main.css",
		CSS: ".a{background:url(./img/a.png)}\n.b{background:url(img/b.png)}\n.c{background:url(./img/a.png)}\n",
	}, options())
	require.NoError(t, err)

	tokens := placeholder.Scan(out.CSS)
	assert.Len(t, tokens, 2)
	require.Len(t, out.Inputs, 2)
	for _, in := range out.Inputs {
		assert.NotEmpty(t, in.Placeholder)
		assert.False(t, in.Inlined)
		assert.False(t, in.External)
		assert.Contains(t, tokens, in.Placeholder)
		id, err := placeholder.Decode(in.Placeholder)
		require.NoError(t, err)
		assert.Equal(t, in.Path, id)
	}
	assert.Equal(t, dir+"/img/a.png", out.Inputs[0].Path)
	assert.Equal(t, dir+"/img/b.png", out.Inputs[1].Path)
}

func TestBundleKeepsURLSuffix(t *testing.T) {
	dir := fixture(t, map[string]string{"font.eot": "f"})
	out, err := Bundle(context.Background(), Input{
		ID:  dir + "/main.css",
		CSS: `@font-face{src:url("./font.eot?#iefix")}`,
	}, options())
	require.NoError(t, err)
	_, text := placeholder.New(dir + "/font.eot")
	assert.Contains(t, out.CSS, text+"?#iefix")
}

func TestBundleLeavesExternalReferences(t *testing.T) {
	dir := fixture(t, nil)
	out, err := Bundle(context.Background(), Input{
		ID:  dir + "/main.css",
		CSS: ".a{background:url(https://cdn.example.com/x.png)}\n.b{background:url(/static/y.png)}\n.c{filter:url(#blur)}\n",
	}, options())
	require.NoError(t, err)
	assert.False(t, placeholder.Contains(out.CSS))
	assert.Contains(t, out.CSS, "https://cdn.example.com/x.png")
	assert.Contains(t, out.CSS, "/static/y.png")
	assert.Empty(t, out.Inputs)
}

func TestBundleInlinedAssetsGetNoPlaceholder(t *testing.T) {
	dir := fixture(t, map[string]string{
		"icon.svg": "<svg/>",
		"big.png":  "png",
	})
	opts := options()
	opts.Inline = assets.InlineMatching(regexp.MustCompile(`\.svg$`))
	out, err := Bundle(context.Background(), Input{
		ID:  dir + "/main.css",
		CSS: ".a{background:url(./icon.svg)}\n.b{background:url(./big.png)}\n",
	}, opts)
	require.NoError(t, err)

	assert.Contains(t, out.CSS, "data:image/svg+xml;base64,"+base64.StdEncoding.EncodeToString([]byte("<svg/>")))
	require.Len(t, out.Inputs, 2)
	assert.Equal(t, dir+"/big.png", out.Inputs[0].Path)
	assert.NotEmpty(t, out.Inputs[0].Placeholder)
	assert.Equal(t, dir+"/icon.svg", out.Inputs[1].Path)
	assert.True(t, out.Inputs[1].Inlined)
	assert.Empty(t, out.Inputs[1].Placeholder)

	_, svgText := placeholder.New(dir + "/icon.svg")
	assert.NotContains(t, out.CSS, svgText)
	assert.Len(t, placeholder.Scan(out.CSS), 1)
}

func TestBundleMergesImports(t *testing.T) {
	dir := fixture(t, map[string]string{
		"base.css":     ".base{color:red;background:url(./img/bg.png)}",
		"img/bg.png":   "bg",
		"theme/x.css":  ".x{color:blue}",
		"unrelated.md": "",
	})
	out, err := Bundle(context.Background(), Input{
		ID:  dir + "/main.css",
		CSS: "@import \"./base.css\";\n@import \"./theme/x.css\";\n.main{color:green}\n",
	}, options())
	require.NoError(t, err)
	assert.Contains(t, out.CSS, ".base")
	assert.Contains(t, out.CSS, ".x")
	assert.NotContains(t, out.CSS, "@import")
	assert.Equal(t, []string{dir + "/base.css", dir + "/theme/x.css"}, out.WatchFiles)

	require.Len(t, out.Inputs, 1)
	assert.Equal(t, dir+"/img/bg.png", out.Inputs[0].Path)
}

func TestBundleOutputIndependentOfWorkingDir(t *testing.T) {
	dir := fixture(t, map[string]string{
		"base.css": ".base{color:red}",
	})
	in := Input{ID: dir + "/main.css", CSS: "@import \"./base.css\";\n.main{color:green}\n"}
	first, err := Bundle(context.Background(), in, options())
	require.NoError(t, err)
	assert.NotContains(t, first.CSS, "../")
	assert.NotContains(t, first.CSS, filepath.Base(filepath.Dir(dir)))

	t.Chdir(t.TempDir())
	second, err := Bundle(context.Background(), in, options())
	require.NoError(t, err)
	assert.Equal(t, first.CSS, second.CSS)
}

func TestBundleIsDeterministic(t *testing.T) {
	dir := fixture(t, map[string]string{
		"a.css": ".a{background:url(./a.png)}",
		"b.css": ".b{background:url(./b.png)}",
		"a.png": "a",
		"b.png": "b",
	})
	in := Input{
		ID:  dir + "/main.css",
		CSS: "@import \"./a.css\";\n@import \"./b.css\";\n.m{background:url(./a.png)}\n",
	}
	opts := options()
	opts.SourceMap = true
	first, err := Bundle(context.Background(), in, opts)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Bundle(context.Background(), in, opts)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.NotEmpty(t, first.Map)
}

func TestBundleSourceMapOnlyWhenEnabled(t *testing.T) {
	dir := fixture(t, nil)
	out, err := Bundle(context.Background(), Input{ID: dir + "/main.css", CSS: ".a{color:red}"}, options())
	require.NoError(t, err)
	assert.Empty(t, out.Map)
}

func TestBundleMinify(t *testing.T) {
	dir := fixture(t, nil)
	opts := options()
	opts.Minify = true
	out, err := Bundle(context.Background(), Input{ID: dir + "/main.css", CSS: ".a {\n  color: red;\n}\n"}, opts)
	require.NoError(t, err)
	assert.Equal(t, ".a{color:red}", strings.TrimSpace(out.CSS))
}

func TestBundleMissingDependency(t *testing.T) {
	dir := fixture(t, nil)
	_, err := Bundle(context.Background(), Input{
		ID:  dir + "/main.css",
		CSS: ".a{background:url(./missing.png)}",
	}, options())
	require.Error(t, err)

	var resolveErr *resolve.Error
	require.True(t, errors.As(err, &resolveErr))
	assert.Equal(t, "./missing.png", resolveErr.Path)
	assert.Equal(t, dir+"/main.css", resolveErr.Importer)
}

func TestBundleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Bundle(ctx, Input{ID: "/main.css"}, options())
	assert.ErrorIs(t, err, context.Canceled)
}
