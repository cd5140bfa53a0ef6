package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stylepack.yaml"), []byte(content), 0o644))
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeConfig(t, `
entryPoints: [src/index.js]
outdir: build
exclude: ["vendor/"]
output:
  cssForChunks: inject
  sourcemap: true
assets:
  preserveDir: css
  publicPath: /static/
  inline: 4096
transform:
  sass:
    implementation: libsass
    includePaths: [styles]
  less: /opt/bin/lessc
  modules:
    pattern: "\\.m\\.css$"
resolve:
  alias:
    "@theme": ./theme
html:
  - template: public/index.html
    chunks: [index]
`)
	cfg, err := NewLoader().Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/index.js"}, cfg.EntryPoints)
	assert.Equal(t, "build", cfg.Outdir)
	assert.Equal(t, "localhost:8080", cfg.Serve.Addr)
	assert.True(t, cfg.Output.Splitting)
	assert.Equal(t, "./theme", cfg.Resolve.Alias["@theme"])
	require.Len(t, cfg.HTML, 1)
	assert.Equal(t, []string{"index"}, cfg.HTML[0].Chunks)

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.True(t, opts.Output.CSSForChunks.Inject)
	assert.True(t, opts.Output.CSSForChunks.Extract)
	assert.True(t, opts.Output.Sourcemap)
	assert.Equal(t, "/static/", opts.Assets.PublicPath)
	assert.True(t, opts.Assets.Inline.Match("a.png", 100))
	assert.False(t, opts.Assets.Inline.Match("a.png", 5000))
	require.Len(t, opts.Exclude, 1)
	assert.True(t, opts.Exclude[0].MatchString("/x/vendor/a.css"))
	assert.Equal(t, "libsass", opts.Transform.Sass.Implementation)
	assert.Equal(t, []string{filepath.Join(cfg.Root, "styles")}, opts.Transform.Sass.IncludePaths)
	assert.Equal(t, "/opt/bin/lessc", opts.Transform.LessBinary)
	assert.True(t, opts.Transform.Modules.Pattern.MatchString("a.m.css"))
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := NewLoader().Load(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, "dist", cfg.Outdir)

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.True(t, opts.Output.CSSForChunks.Extract)
	assert.False(t, opts.Output.CSSForChunks.Inject)
	assert.False(t, opts.Assets.Inline.Enabled())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := NewLoader().Load(t.TempDir(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := writeConfig(t, "outdir: build\nassets:\n  publicPath: /a/\n")
	t.Setenv("STYLEPACK_OUTDIR", "out")
	t.Setenv("STYLEPACK_ASSETS_PUBLICPATH", "/b/")

	cfg, err := NewLoader().Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "out", cfg.Outdir)
	assert.Equal(t, "/b/", cfg.Assets.PublicPath)
}

func TestInvalidOptions(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"css for chunks", "output:\n  cssForChunks: sometimes\n"},
		{"preserve dir", "assets:\n  preserveDir: sometimes\n"},
		{"include pattern", "include: [\"(\"]\n"},
		{"modules pattern", "transform:\n  modules:\n    pattern: \"(\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewLoader().Load(writeConfig(t, tt.content), "")
			require.NoError(t, err)
			_, err = cfg.Options()
			assert.Error(t, err)
		})
	}
}

func TestPath(t *testing.T) {
	cfg := &Config{Root: "/project"}
	assert.Equal(t, filepath.Join("/project", "src"), cfg.Path("src"))
	assert.Equal(t, "/abs", cfg.Path("/abs"))
	assert.Equal(t, "", cfg.Path(""))
}
