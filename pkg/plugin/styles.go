// Package plugin runs stylepack inside an esbuild build.
package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/tain335/stylepack/internal/graph"
	"github.com/tain335/stylepack/internal/logger"
	"github.com/tain335/stylepack/internal/pathutil"
	"github.com/tain335/stylepack/internal/processor"
	"github.com/tain335/stylepack/internal/render"
	"github.com/tain335/stylepack/internal/resolve"
	stylepack "github.com/tain335/stylepack/pkg/api"
)

// Styles is the esbuild host of a stylepack compiler. Style imports load
// as JS modules exporting their CSS modules class map; the stylesheets
// are emitted when the build ends, from the chunk graph of the metafile.
type Styles struct {
	opts     stylepack.Options
	compiler *stylepack.Compiler
	outputs  *graph.MemoryHost
	files    *graph.FileResolver

	mutex      sync.Mutex
	build      *api.PluginBuild
	workingDir string
	outdir     string
	write      bool
	bundle     *stylepack.Bundle
	chunks     []graph.Chunk
}

// NewStyles creates the host. searchPaths are where bare style imports
// are looked up after node_modules.
func NewStyles(opts stylepack.Options, searchPaths ...string) (*Styles, error) {
	s := &Styles{
		opts:    opts,
		outputs: graph.NewMemoryHost(nil),
		files:   &graph.FileResolver{SearchPaths: searchPaths},
	}
	compiler, err := stylepack.New(opts, s)
	if err != nil {
		return nil, err
	}
	s.compiler = compiler
	return s, nil
}

func (s *Styles) Compiler() *stylepack.Compiler {
	return s.compiler
}

// Bundle returns what the last successful build emitted.
func (s *Styles) Bundle() *stylepack.Bundle {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.bundle
}

// Chunks returns the chunk graph of the last successful build.
func (s *Styles) Chunks() []graph.Chunk {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.chunks
}

// Writes reports whether the build writes its outputs to disk.
func (s *Styles) Writes() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.write
}

// Outdir is the absolute output directory of the build.
func (s *Styles) Outdir() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.outdir
}

// Resolve resolves through esbuild first, so aliases and packages
// resolve the way they do for scripts, then through the file system
// conventions of the style languages.
func (s *Styles) Resolve(p, importer string) (*graph.Resolved, error) {
	s.mutex.Lock()
	pb := s.build
	s.mutex.Unlock()
	if pb != nil {
		result := pb.Resolve(p, api.ResolveOptions{
			Importer:   importer,
			ResolveDir: path.Dir(importer),
			Kind:       api.ResolveCSSURLToken,
		})
		if len(result.Errors) == 0 && result.Path != "" {
			return &graph.Resolved{ID: result.Path, External: result.External}, nil
		}
	}
	return s.files.Resolve(p, importer)
}

func (s *Styles) EmitAsset(a graph.Artifact) (string, error) { return s.outputs.EmitAsset(a) }

func (s *Styles) FileName(ref string) (string, error) { return s.outputs.FileName(ref) }

func (s *Styles) SetSource(ref string, source []byte) error { return s.outputs.SetSource(ref, source) }

func (s *Styles) Discard(refs ...string) { s.outputs.Discard(refs...) }

func (s *Styles) Plugin() api.Plugin {
	return api.Plugin{
		Name: "StylepackPlugin",
		Setup: func(pb api.PluginBuild) {
			// Scripts are written here, once their stylesheet loaders are in.
			pb.InitialOptions.Metafile = true
			write := pb.InitialOptions.Write
			pb.InitialOptions.Write = false
			workingDir := pb.InitialOptions.AbsWorkingDir
			if workingDir == "" {
				cwd, err := os.Getwd()
				if err != nil {
					panic(err)
				}
				workingDir = cwd
			}
			outdir := pb.InitialOptions.Outdir
			if outdir == "" && pb.InitialOptions.Outfile != "" {
				outdir = filepath.Dir(pb.InitialOptions.Outfile)
			}
			if !filepath.IsAbs(outdir) {
				outdir = filepath.Join(workingDir, outdir)
			}
			s.outputs.AssetFileNames = assetFileNames(pb.InitialOptions.AssetNames)

			s.mutex.Lock()
			s.build = &pb
			s.workingDir = workingDir
			s.outdir = outdir
			s.write = write
			s.mutex.Unlock()

			pb.OnStart(func() (api.OnStartResult, error) {
				s.outputs.Reset()
				s.compiler.Reset()
				return api.OnStartResult{}, nil
			})

			pb.OnLoad(api.OnLoadOptions{Filter: loadFilter(s.opts.Include), Namespace: "file"}, s.onLoad)

			pb.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				if len(result.Errors) > 0 {
					return api.OnEndResult{}, nil
				}
				files, err := s.finalize(result)
				if err != nil {
					s.outputs.Reset()
					return api.OnEndResult{Errors: messages(err)}, nil
				}
				result.OutputFiles = append(result.OutputFiles, files...)
				if write {
					for _, f := range result.OutputFiles {
						if err := writeOutputFile(f); err != nil {
							return api.OnEndResult{Errors: messages(err)}, nil
						}
					}
				}
				return api.OnEndResult{}, nil
			})

			pb.OnDispose(func() {
				if err := s.compiler.Close(); err != nil {
					logger.Warnf("closing style engines: %s", err)
				}
			})
		},
	}
}

// assetFileNames turns an esbuild asset name template into a MemoryHost
// pattern. [name] of the MemoryHost carries the directories, so [dir] is
// dropped.
func assetFileNames(template string) string {
	if template == "" {
		return graph.DefaultAssetFileNames
	}
	template = strings.ReplaceAll(template, "[dir]/", "")
	template = strings.ReplaceAll(template, "[dir]", "")
	return template + "[extname]"
}

// loadFilter is the esbuild filter covering every include pattern. The
// exclude patterns are applied in onLoad.
func loadFilter(include []*regexp.Regexp) string {
	if len(include) == 0 {
		return stylepack.DefaultInclude.String()
	}
	parts := make([]string, len(include))
	for i, re := range include {
		parts[i] = "(?:" + re.String() + ")"
	}
	return strings.Join(parts, "|")
}

func (s *Styles) onLoad(args api.OnLoadArgs) (api.OnLoadResult, error) {
	id := pathutil.Normalize(args.Path)
	if !s.compiler.Filter(id) {
		return api.OnLoadResult{}, nil
	}
	source, err := os.ReadFile(args.Path)
	if err != nil {
		return api.OnLoadResult{}, err
	}
	m, err := s.compiler.CompileFile(context.Background(), id, string(source))
	if err != nil {
		return api.OnLoadResult{}, err
	}
	contents, err := moduleSource(m.Data)
	if err != nil {
		return api.OnLoadResult{}, err
	}
	return api.OnLoadResult{
		Contents:   &contents,
		Loader:     api.LoaderJS,
		ResolveDir: path.Dir(id),
		WatchFiles: m.WatchFiles,
	}, nil
}

// finalize emits the stylesheets of the build and returns them as
// output files. Script outputs are given their stylesheet loaders in
// place.
func (s *Styles) finalize(result *api.BuildResult) ([]api.OutputFile, error) {
	s.mutex.Lock()
	workingDir, outdir := s.workingDir, s.outdir
	s.mutex.Unlock()

	chunks, err := ChunksFromMetafile(result.Metafile, workingDir, outdir)
	if err != nil {
		return nil, err
	}
	bundle, err := s.compiler.FinalizeBundle(context.Background(), chunks)
	if err != nil {
		return nil, err
	}
	if s.opts.Output.CSSForChunks.Inject {
		injected := injectLoaders(result.OutputFiles, bundle, outdir, s.opts.Assets.PublicPath)
		logger.Debug("stylesheet loaders injected", "scripts", len(injected))
	}

	s.mutex.Lock()
	s.bundle = bundle
	s.chunks = chunks
	s.mutex.Unlock()

	var files []api.OutputFile
	for _, out := range s.outputs.Outputs() {
		files = append(files, api.OutputFile{
			Path:     filepath.Join(outdir, filepath.FromSlash(out.FileName)),
			Contents: out.Source,
		})
	}
	return files, nil
}

func writeOutputFile(f api.OutputFile) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(f.Path, f.Contents, 0o644)
}

// messages turns a finalization error into esbuild messages, one per
// joined error, located at the file that caused it when known.
func messages(err error) []api.Message {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}
	msgs := make([]api.Message, 0, len(errs))
	for _, e := range errs {
		msg := api.Message{PluginName: "StylepackPlugin", Text: e.Error()}
		if file := errorFile(e); file != "" {
			msg.Location = &api.Location{File: file}
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func errorFile(err error) string {
	var procErr *processor.Error
	if errors.As(err, &procErr) {
		return procErr.Path
	}
	var resolveErr *resolve.Error
	if errors.As(err, &resolveErr) {
		return resolveErr.Importer
	}
	var missing *render.MissingAssetError
	if errors.As(err, &missing) {
		return missing.Artifact
	}
	var unresolved *render.UnresolvedPlaceholderError
	if errors.As(err, &unresolved) {
		return unresolved.Artifact
	}
	return ""
}

// moduleSource is the JS module a style import loads as.
func moduleSource(data map[string]interface{}) (string, error) {
	classes, _ := data[processor.ModulesDataKey].(map[string]string)
	if classes == nil {
		classes = map[string]string{}
	}
	encoded, err := json.Marshal(classes)
	if err != nil {
		return "", fmt.Errorf("encoding class names: %w", err)
	}
	return "export default " + string(encoded) + ";\n", nil
}
