package plugin

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// ResolveModulesOption maps the import prefix Module to the directory or
// file Path.
type ResolveModulesOption struct {
	Module string
	Path   string
}

// ResolveModulePathPlugin rewrites aliased imports. Style urls and
// imports resolve through esbuild, so they see the aliases too.
func ResolveModulePathPlugin(modules []ResolveModulesOption) api.Plugin {
	return api.Plugin{
		Name: "ResolveModulePathPlugin",
		Setup: func(pb api.PluginBuild) {
			for _, module := range modules {
				module := module
				pb.OnResolve(api.OnResolveOptions{
					Filter: "^" + regexp.QuoteMeta(module.Module) + "(/.*)?$",
				}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{Path: aliasPath(module, args.Path)}, nil
				})
			}
		},
	}
}

func aliasPath(module ResolveModulesOption, p string) string {
	rest := strings.TrimPrefix(strings.TrimPrefix(p, module.Module), "/")
	if rest == "" {
		return module.Path
	}
	return filepath.Join(module.Path, filepath.FromSlash(rest))
}
