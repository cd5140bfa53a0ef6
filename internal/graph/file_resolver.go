package graph

import (
	"os"
	"path"
	"strings"

	"github.com/tain335/stylepack/internal/pathutil"
)

var styleExts = []string{".css", ".scss", ".sass", ".less", ".styl"}

var matchPatternWithUnderscore = [...]string{"{{file}}.scss", "{{file}}.sass", "{{file}}/index.scss", "{{file}}/index.sass", "{{file}}/_index.scss", "{{file}}/_index.sass"}
var matchPatternNormal = [...]string{"{{file}}.css", "{{file}}.scss", "{{file}}.sass", "{{file}}.less", "{{file}}.styl", "_{{file}}.scss", "_{{file}}.sass", "{{file}}/index.css", "{{file}}/index.scss", "{{file}}/index.sass", "{{file}}/_index.scss", "{{file}}/_index.sass"}

// FileResolver resolves imports against the local file system. Paths
// without an extension are tried with the style extensions and the Sass
// partial and index conventions. A leading "~" and bare paths that are not
// found next to the importer are looked up in the node_modules directories
// of the importer's ancestors, then in SearchPaths.
type FileResolver struct {
	SearchPaths []string
}

func (r *FileResolver) Resolve(p, importer string) (*Resolved, error) {
	p = strings.TrimPrefix(p, "file://")
	if strings.HasPrefix(p, "~") {
		return r.found(r.lookupFromNodeModules(p[1:], importer)), nil
	}
	if pathutil.IsAbs(p) {
		return r.found(r.tryResolveLocalFile(path.Dir(pathutil.Normalize(p)), path.Base(p))), nil
	}
	base := path.Dir(pathutil.Normalize(importer))
	target := pathutil.Normalize(path.Join(base, p))
	if resolved := r.tryResolveLocalFile(path.Dir(target), path.Base(target)); resolved != "" {
		return r.found(resolved), nil
	}
	if isBare(p) {
		return r.found(r.lookupFromNodeModules(p, importer)), nil
	}
	return nil, nil
}

func (r *FileResolver) found(p string) *Resolved {
	if p == "" {
		return nil
	}
	return &Resolved{ID: p}
}

func (r *FileResolver) localFileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func (r *FileResolver) tryResolveLocalFile(base string, filename string) string {
	direct := path.Join(base, filename)
	if r.localFileExists(direct) {
		return direct
	}
	if hasStyleExt(filename) {
		return ""
	}
	patterns := matchPatternNormal[:]
	if strings.HasPrefix(filename, "_") {
		patterns = matchPatternWithUnderscore[:]
	}
	for _, pattern := range patterns {
		maybePath := path.Join(base, strings.ReplaceAll(pattern, "{{file}}", filename))
		if r.localFileExists(maybePath) {
			return maybePath
		}
	}
	return ""
}

func (r *FileResolver) lookupFromNodeModules(url string, importer string) string {
	dir := path.Dir(pathutil.Normalize(importer))
	filename := path.Base(url)
	for {
		resolvedFile := r.tryResolveLocalFile(path.Join(dir, "node_modules", path.Dir(url)), filename)
		if resolvedFile != "" {
			return resolvedFile
		}
		parent := path.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	for _, p := range r.SearchPaths {
		resolvedFile := r.tryResolveLocalFile(path.Join(pathutil.Normalize(p), path.Dir(url)), filename)
		if resolvedFile != "" {
			return resolvedFile
		}
	}
	return ""
}

func hasStyleExt(p string) bool {
	ext := path.Ext(p)
	for _, e := range styleExts {
		if e == ext {
			return true
		}
	}
	return false
}

func isBare(p string) bool {
	return !strings.HasPrefix(p, "./") && !strings.HasPrefix(p, "../") && !strings.HasPrefix(p, "/")
}
