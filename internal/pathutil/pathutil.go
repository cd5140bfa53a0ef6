package pathutil

import (
	"path"
	"path/filepath"
	"strings"
)

// Normalize converts p to forward slashes and cleans it. Windows volume
// names are kept as the first segment ("C:/x/y").
func Normalize(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(filepath.ToSlash(p))
}

// IsAbs reports whether p is absolute in either slash or OS form.
func IsAbs(p string) bool {
	return strings.HasPrefix(p, "/") || filepath.IsAbs(p)
}

// CommonDir returns the deepest directory that contains every file in
// paths. It returns "" for an empty input.
func CommonDir(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	common := splitDir(Normalize(paths[0]))
	for _, p := range paths[1:] {
		segments := splitDir(Normalize(p))
		n := 0
		for n < len(common) && n < len(segments) && common[n] == segments[n] {
			n++
		}
		common = common[:n]
	}
	dir := strings.Join(common, "/")
	if dir != "" {
		return dir
	}
	if IsAbs(paths[0]) {
		return "/"
	}
	return "."
}

func splitDir(file string) []string {
	return strings.Split(path.Dir(file), "/")
}

// Rel returns target relative to base using forward slashes. When no
// relative path exists (different volumes) the normalized target is
// returned unchanged.
func Rel(base, target string) string {
	rel, err := filepath.Rel(filepath.FromSlash(base), filepath.FromSlash(target))
	if err != nil {
		return Normalize(target)
	}
	return filepath.ToSlash(rel)
}

// TrimExt returns p without its extension.
func TrimExt(p string) string {
	return strings.TrimSuffix(p, path.Ext(p))
}
