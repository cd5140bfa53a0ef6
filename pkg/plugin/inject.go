package plugin

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/tain335/stylepack/internal/graph"
	"github.com/tain335/stylepack/internal/pathutil"
	"github.com/tain335/stylepack/internal/render"
	stylepack "github.com/tain335/stylepack/pkg/api"
)

const loaderTemplate = `(function(){var h=new URL({{href}},document.currentScript?document.currentScript.src:location.href).href;` +
	`if(document.querySelector('link[rel="stylesheet"][href="'+h+'"]'))return;` +
	`var l=document.createElement("link");l.rel="stylesheet";l.href=h;document.head.appendChild(l);})();`

const sourceMappingURL = "//# sourceMappingURL="

// injectLoaders adds a stylesheet loader to every script output whose
// chunk was given a stylesheet. The loader goes before the source map
// comment so the mappings of the script stay valid. outputFiles is
// updated in place and the changed files are returned.
func injectLoaders(outputFiles []api.OutputFile, bundle *stylepack.Bundle, outdir, publicPath string) []api.OutputFile {
	var changed []api.OutputFile
	for i, f := range outputFiles {
		if !scriptExts[filepath.Ext(f.Path)] {
			continue
		}
		fileName := pathutil.Rel(pathutil.Normalize(outdir), pathutil.Normalize(f.Path))
		style, ok := bundle.ChunkStyle(fileName)
		if !ok {
			continue
		}
		href := render.DefaultURL(publicPath, graph.EmittedAsset{EmitFileName: fileName}, style.EmittedAsset)
		outputFiles[i].Contents = []byte(withLoader(string(f.Contents), href))
		changed = append(changed, outputFiles[i])
	}
	return changed
}

func withLoader(script, href string) string {
	encoded, _ := json.Marshal(href)
	loader := strings.ReplaceAll(loaderTemplate, "{{href}}", string(encoded)) + "\n"
	if i := strings.LastIndex(script, sourceMappingURL); i >= 0 && (i == 0 || script[i-1] == '\n') {
		return script[:i] + loader + script[i:]
	}
	if script != "" && !strings.HasSuffix(script, "\n") {
		script += "\n"
	}
	return script + loader
}
