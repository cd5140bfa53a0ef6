// Package cssbundle bundles one compiled style file with esbuild. @import
// rules are merged into the file; url() dependencies are either inlined
// as data URLs or replaced by placeholders that are rendered once the
// final asset names are known.
package cssbundle

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/exp/slices"

	"github.com/tain335/stylepack/internal/assets"
	"github.com/tain335/stylepack/internal/meta"
	"github.com/tain335/stylepack/internal/pathutil"
	"github.com/tain335/stylepack/internal/placeholder"
	"github.com/tain335/stylepack/internal/resolve"
)

const stdinImporter = "<stdin>"

type Input struct {
	ID  string
	CSS string
	Map string
}

type Options struct {
	SourceMap bool
	Minify    bool
	Resolver  *resolve.Resolver
	Inline    assets.Inline
}

type Output struct {
	CSS    string
	Map    string
	Inputs []meta.InputItem
	// WatchFiles are the files merged through @import.
	WatchFiles []string
}

// InvariantError reports an esbuild result that does not have the shape a
// single CSS entry must produce.
type InvariantError struct {
	ID      string
	Message string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("bundling %s: %s", e.ID, e.Message)
}

// BuildError carries the messages of a failed esbuild run.
type BuildError struct {
	ID       string
	Messages []api.Message
}

func (e *BuildError) Error() string {
	texts := make([]string, 0, len(e.Messages))
	for _, msg := range e.Messages {
		text := msg.Text
		if msg.Location != nil {
			text = fmt.Sprintf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text)
		}
		texts = append(texts, text)
	}
	return fmt.Sprintf("bundling %s: %s", e.ID, strings.Join(texts, "; "))
}

// collector records what the resolve plugin sees. esbuild resolves the
// imports of different files in parallel.
type collector struct {
	id   string
	opts Options

	mutex    sync.Mutex
	inputs   map[string]meta.InputItem
	imported map[string]bool
	firstErr error
}

func (c *collector) fail(err error) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.firstErr == nil {
		c.firstErr = err
	}
	return err
}

func (c *collector) record(item meta.InputItem) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.inputs[item.Path] = item
}

func (c *collector) importer(args api.OnResolveArgs) string {
	if args.Importer == "" || args.Importer == stdinImporter {
		return c.id
	}
	return pathutil.Normalize(args.Importer)
}

func (c *collector) plugin() api.Plugin {
	return api.Plugin{
		Name: "stylepack-resolve",
		Setup: func(pb api.PluginBuild) {
			pb.OnResolve(api.OnResolveOptions{Filter: ".*"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				switch args.Kind {
				case api.ResolveCSSURLToken:
					return c.resolveURL(args)
				case api.ResolveCSSImportRule:
					return c.resolveImport(args)
				}
				return api.OnResolveResult{}, nil
			})
		},
	}
}

func isRootedOrRemote(p string) bool {
	return strings.HasPrefix(p, "/") || resolve.IsExternalURL(p)
}

// splitSuffix separates the query and fragment of a url() path, as in
// font.eot?#iefix.
func splitSuffix(p string) (string, string) {
	if i := strings.IndexAny(p, "?#"); i > 0 {
		return p[:i], p[i:]
	}
	return p, ""
}

func (c *collector) resolveURL(args api.OnResolveArgs) (api.OnResolveResult, error) {
	if isRootedOrRemote(args.Path) {
		return api.OnResolveResult{Path: args.Path, External: true}, nil
	}
	target, suffix := splitSuffix(args.Path)
	res, err := c.opts.Resolver.Resolve(target, c.importer(args))
	if err != nil {
		return api.OnResolveResult{}, c.fail(err)
	}
	if res.External {
		c.record(meta.InputItem{Path: res.ID, External: true})
		return api.OnResolveResult{Path: args.Path, External: true}, nil
	}
	if c.opts.Inline.Enabled() {
		info, err := os.Stat(res.ID)
		if err != nil {
			return api.OnResolveResult{}, c.fail(fmt.Errorf("inlining %s: %w", res.ID, err))
		}
		if c.opts.Inline.Match(res.ID, info.Size()) {
			dataURL, err := readDataURL(res.ID)
			if err != nil {
				return api.OnResolveResult{}, c.fail(err)
			}
			c.record(meta.InputItem{Path: res.ID, Inlined: true})
			return api.OnResolveResult{Path: dataURL, External: true}, nil
		}
	}
	token, text := placeholder.New(res.ID)
	c.record(meta.InputItem{Path: res.ID, Placeholder: token})
	return api.OnResolveResult{Path: text + suffix, External: true}, nil
}

func (c *collector) resolveImport(args api.OnResolveArgs) (api.OnResolveResult, error) {
	if isRootedOrRemote(args.Path) {
		return api.OnResolveResult{Path: args.Path, External: true}, nil
	}
	res, err := c.opts.Resolver.Resolve(args.Path, c.importer(args))
	if err != nil {
		return api.OnResolveResult{}, c.fail(err)
	}
	if res.External {
		return api.OnResolveResult{Path: res.ID, External: true}, nil
	}
	c.mutex.Lock()
	c.imported[res.ID] = true
	c.mutex.Unlock()
	return api.OnResolveResult{Path: res.ID}, nil
}

func readDataURL(p string) (string, error) {
	content, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("inlining %s: %w", p, err)
	}
	mimeType := mime.TypeByExtension(path.Ext(p))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	// Drop parameters such as "; charset=utf-8".
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(content), nil
}

// Bundle merges the imports of in and replaces its url() dependencies.
// The result depends only on the input files and options.
func Bundle(ctx context.Context, in Input, opts Options) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	if opts.Resolver == nil {
		return Output{}, fmt.Errorf("bundling %s: no resolver", in.ID)
	}
	c := &collector{
		id:       in.ID,
		opts:     opts,
		inputs:   make(map[string]meta.InputItem),
		imported: make(map[string]bool),
	}

	contents := in.CSS
	if opts.SourceMap && in.Map != "" {
		contents += "\n/*# sourceMappingURL=data:application/json;base64," +
			base64.StdEncoding.EncodeToString([]byte(in.Map)) + " */\n"
	}
	dir := path.Dir(in.ID)
	outfile := path.Join(dir, pathutil.TrimExt(path.Base(in.ID))+".css")
	sourcemap := api.SourceMapNone
	if opts.SourceMap {
		sourcemap = api.SourceMapExternal
	}

	workingDir := ""
	if pathutil.IsAbs(dir) {
		// File comments and source map paths are relative to the file, not
		// to where the process runs.
		workingDir = filepath.FromSlash(dir)
	}
	result := api.Build(api.BuildOptions{
		AbsWorkingDir: workingDir,
		Stdin: &api.StdinOptions{
			Contents:   contents,
			ResolveDir: dir,
			Sourcefile: in.ID,
			Loader:     api.LoaderCSS,
		},
		Bundle:            true,
		Write:             false,
		Outfile:           outfile,
		Sourcemap:         sourcemap,
		LogLevel:          api.LogLevelSilent,
		MinifyWhitespace:  opts.Minify,
		MinifySyntax:      opts.Minify,
		MinifyIdentifiers: opts.Minify,
		Plugins:           []api.Plugin{c.plugin()},
	})

	if len(result.Errors) > 0 {
		if c.firstErr != nil {
			return Output{}, c.firstErr
		}
		return Output{}, &BuildError{ID: in.ID, Messages: result.Errors}
	}

	var out Output
	var cssCount, mapCount int
	for _, file := range result.OutputFiles {
		switch {
		case strings.HasSuffix(file.Path, ".css.map"):
			mapCount++
			out.Map = string(file.Contents)
		case strings.HasSuffix(file.Path, ".css"):
			cssCount++
			out.CSS = string(file.Contents)
		default:
			return Output{}, &InvariantError{ID: in.ID, Message: "unexpected output " + file.Path}
		}
	}
	if cssCount != 1 {
		return Output{}, &InvariantError{ID: in.ID, Message: fmt.Sprintf("expected one css output, got %d", cssCount)}
	}
	wantMaps := 0
	if opts.SourceMap {
		wantMaps = 1
	}
	if mapCount != wantMaps {
		return Output{}, &InvariantError{ID: in.ID, Message: fmt.Sprintf("expected %d source map outputs, got %d", wantMaps, mapCount)}
	}

	out.Inputs = c.sortedInputs()
	for file := range c.imported {
		out.WatchFiles = append(out.WatchFiles, file)
	}
	slices.Sort(out.WatchFiles)
	return out, nil
}

// sortedInputs orders the inputs by path so the result does not depend on
// the order esbuild resolved them in.
func (c *collector) sortedInputs() []meta.InputItem {
	inputs := make([]meta.InputItem, 0, len(c.inputs))
	for _, item := range c.inputs {
		inputs = append(inputs, item)
	}
	slices.SortFunc(inputs, func(a, b meta.InputItem) int {
		return strings.Compare(a.Path, b.Path)
	})
	return inputs
}
