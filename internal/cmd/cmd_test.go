package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tain335/stylepack/internal/config"
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestBuildCommand(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"stylepack.yaml": `
entryPoints: [src/index.js]
outdir: out
resolve:
  alias:
    "@img": ./images
html:
  - template: public/index.html
    chunks: [index]
`,
		"src/index.js":      "import styles from './app.css';\nconsole.log(styles);\n",
		"src/app.css":       ".app{background:url(@img/bg.png)}",
		"images/bg.png":     "png",
		"public/index.html": "<!DOCTYPE html><html><head><title>{{.PROCESS_ENV.STYLEPACK_TEST_TITLE}}</title><!--style_output--></head><body><!--script_output--></body></html>",
	})
	t.Setenv("STYLEPACK_TEST_TITLE", "hello")

	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"build", "-C", dir})
	require.NoError(t, root.Execute())

	css, err := os.ReadFile(filepath.Join(dir, "out", "index.css"))
	require.NoError(t, err)
	assert.Contains(t, string(css), "url(bg.png)")
	assert.FileExists(t, filepath.Join(dir, "out", "bg.png"))
	assert.FileExists(t, filepath.Join(dir, "out", "index.js"))

	page, err := os.ReadFile(filepath.Join(dir, "out", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "<title>hello</title>")
	assert.Contains(t, string(page), `<link rel="stylesheet" href="index.css"/>`)
	assert.Contains(t, string(page), `<script type="module" src="index.js"></script>`)
}

func TestBuildCommandFailsWithoutOutput(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"stylepack.yaml": "entryPoints: [src/index.js]\n",
		"src/index.js":   "import s from './a.css';\nconsole.log(s);\n",
		"src/a.css":      ".a{background:url(./missing.png)}",
	})
	root := NewRootCmd()
	root.SetArgs([]string{"build", "-C", dir})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build failed")
	assert.NoDirExists(t, filepath.Join(dir, "dist"))
}

func TestNewProjectRequiresEntryPoints(t *testing.T) {
	_, err := newProject(&config.Config{Root: t.TempDir()}, true)
	assert.Error(t, err)
}

func TestWatchPathsIncludeStyleDependencies(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"src/index.js": "import s from './a.css';\nconsole.log(s);\n",
		"src/a.css":    "@import './b.css';\n.a{color:red}",
		"src/b.css":    ".b{color:blue}",
	})
	p, err := newProject(&config.Config{
		Root:        dir,
		EntryPoints: []string{"src/index.js"},
		Outdir:      "dist",
		Output:      config.OutputConfig{CSSForChunks: "extract"},
	}, false)
	require.NoError(t, err)

	result := api.Build(p.options)
	require.NoError(t, p.report(result))
	paths := p.watchPaths(result)
	assert.Contains(t, paths, filepath.Join(dir, "src", "index.js"))
	assert.Contains(t, paths, filepath.Join(dir, "src", "b.css"))
}

func TestFormatFileSize(t *testing.T) {
	size, unit := formatFileSize(1500)
	assert.InDelta(t, 1.5, size, 0.001)
	assert.Equal(t, "KB", unit)
	size, unit = formatFileSize(2_500_000)
	assert.InDelta(t, 2.5, size, 0.001)
	assert.Equal(t, "MB", unit)
}
