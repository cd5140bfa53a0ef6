package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	godartsass "github.com/bep/godartsass/v2"
	"github.com/cli/safeexec"
	libsass "github.com/wellington/go-libsass"

	"github.com/tain335/stylepack/internal/logger"
	"github.com/tain335/stylepack/internal/resolve"
)

const (
	SassDart    = "dart"
	SassLibsass = "libsass"
)

var sassPattern = regexp.MustCompile(`\.s[ac]ss$`)

type SassOptions struct {
	// Implementation is SassDart (the default) or SassLibsass.
	Implementation string
	// Binary is the Dart Sass executable, looked up in PATH. Defaults to
	// "sass".
	Binary       string
	IncludePaths []string
	Compressed   bool
	Timeout      time.Duration
}

func newSassProcessor(opts SassOptions) Processor {
	if opts.Implementation == SassLibsass {
		return &libsassProcessor{opts: opts}
	}
	if opts.Binary == "" {
		opts.Binary = "sass"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	return &dartSassProcessor{opts: opts}
}

type dartSassProcessor struct {
	opts       SassOptions
	once       sync.Once
	transpiler *godartsass.Transpiler
	startErr   error
}

func (p *dartSassProcessor) Name() string { return "sass" }

func (p *dartSassProcessor) Test(path string) bool { return sassPattern.MatchString(path) }

func (p *dartSassProcessor) start() (*godartsass.Transpiler, error) {
	p.once.Do(func() {
		bin, err := safeexec.LookPath(p.opts.Binary)
		if err != nil {
			p.startErr = &MissingDependencyError{
				Engine: "Dart Sass (" + p.opts.Binary + ")",
				Files:  ".scss/.sass",
				Hint:   "https://sass-lang.com/install",
			}
			return
		}
		p.transpiler, p.startErr = godartsass.Start(godartsass.Options{
			DartSassEmbeddedFilename: bin,
			Timeout:                  p.opts.Timeout,
			LogEventHandler: func(e godartsass.LogEvent) {
				logger.Warn("sass", "message", e.Message)
			},
		})
	})
	return p.transpiler, p.startErr
}

type sourceMapSources struct {
	Sources []string `json:"sources"`
}

func (p *dartSassProcessor) Process(ctx context.Context, in Input) (Output, error) {
	t, err := p.start()
	if err != nil {
		return Output{}, err
	}
	importResolver := &sassImportResolver{path: in.Path, resolver: in.Resolver}
	outputStyle := godartsass.OutputStyleExpanded
	if p.opts.Compressed {
		outputStyle = godartsass.OutputStyleCompressed
	}
	result, err := t.Execute(godartsass.Args{
		URL:             "file://" + in.Path,
		Source:          in.CSS,
		SourceSyntax:    sassSyntax(in.Path),
		OutputStyle:     outputStyle,
		IncludePaths:    p.opts.IncludePaths,
		ImportResolver:  importResolver,
		EnableSourceMap: in.SourceMap,
	})
	if err != nil {
		if resolveErr := importResolver.err(); resolveErr != nil {
			return Output{}, resolveErr
		}
		return Output{}, err
	}
	watchFiles := importResolver.loadedFiles()
	if result.SourceMap != "" {
		var sourcemap sourceMapSources
		if json.Unmarshal([]byte(result.SourceMap), &sourcemap) == nil {
			for _, s := range sourcemap.Sources {
				if strings.HasPrefix(s, "file://") {
					watchFiles = append(watchFiles, strings.TrimPrefix(s, "file://"))
				}
			}
		}
	}
	return Output{
		CSS:        result.CSS,
		Map:        result.SourceMap,
		WatchFiles: watchFiles,
	}, nil
}

func (p *dartSassProcessor) Close() error {
	if p.transpiler != nil {
		return p.transpiler.Close()
	}
	return nil
}

// sassImportResolver routes the imports of one compilation through the
// pipeline resolver. Canonical URLs are file:// URLs of resolved files.
type sassImportResolver struct {
	path     string
	resolver *resolve.Resolver

	mutex    sync.Mutex
	loaded   []string
	firstErr error
}

func (r *sassImportResolver) CanonicalizeURL(url string) (string, error) {
	if strings.HasPrefix(url, "file://") {
		// A URL already joined with the importing file's location by Sass;
		// returning "" lets Sass retry with the URL as written.
		res, err := r.resolver.Resolve(strings.TrimPrefix(url, "file://"), r.path)
		if err != nil || res == nil || res.External {
			return "", nil
		}
		return "file://" + res.ID, nil
	}
	res, err := r.resolver.Resolve(url, r.path)
	if err != nil {
		r.mutex.Lock()
		if r.firstErr == nil {
			r.firstErr = err
		}
		r.mutex.Unlock()
		return "", err
	}
	if res.External {
		return "", nil
	}
	return "file://" + res.ID, nil
}

func (r *sassImportResolver) Load(canonicalizedURL string) (godartsass.Import, error) {
	p := strings.TrimPrefix(canonicalizedURL, "file://")
	content, err := os.ReadFile(p)
	if err != nil {
		return godartsass.Import{}, err
	}
	r.mutex.Lock()
	r.loaded = append(r.loaded, p)
	r.mutex.Unlock()
	return godartsass.Import{Content: string(content), SourceSyntax: sassSyntax(p)}, nil
}

func (r *sassImportResolver) loadedFiles() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string(nil), r.loaded...)
}

func (r *sassImportResolver) err() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.firstErr
}

func sassSyntax(p string) godartsass.SourceSyntax {
	switch path.Ext(p) {
	case ".sass":
		return godartsass.SourceSyntaxSASS
	case ".css":
		return godartsass.SourceSyntaxCSS
	}
	return godartsass.SourceSyntaxSCSS
}

// libsassProcessor compiles in process through libsass. It does not
// produce source maps.
type libsassProcessor struct {
	opts SassOptions
}

func (p *libsassProcessor) Name() string { return "sass" }

func (p *libsassProcessor) Test(path string) bool { return sassPattern.MatchString(path) }

func (p *libsassProcessor) Process(ctx context.Context, in Input) (Output, error) {
	var (
		mutex    sync.Mutex
		loaded   []string
		firstErr error
	)
	imports := libsass.NewImportsWithResolver(func(url, prev string) (newURL string, body string, resolved bool) {
		if prev == "" || prev == "stdin" {
			prev = in.Path
		}
		res, err := in.Resolver.Resolve(url, prev)
		if err == nil && res.External {
			return "", "", false
		}
		var content []byte
		if err == nil {
			content, err = os.ReadFile(res.ID)
		}
		mutex.Lock()
		defer mutex.Unlock()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return "", "", false
		}
		loaded = append(loaded, res.ID)
		return res.ID, string(content), true
	})

	output := new(bytes.Buffer)
	comp, err := libsass.New(output, strings.NewReader(in.CSS),
		libsass.Path(in.Path),
		libsass.IncludePaths(p.opts.IncludePaths),
		libsass.ImportsOption(imports),
	)
	if err != nil {
		return Output{}, err
	}
	if err := comp.Run(); err != nil {
		if firstErr != nil {
			return Output{}, errors.Join(firstErr, err)
		}
		return Output{}, err
	}
	if firstErr != nil {
		return Output{}, firstErr
	}
	return Output{CSS: output.String(), WatchFiles: loaded}, nil
}
