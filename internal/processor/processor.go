// Package processor runs the style-language compilers over one source
// file. Built-in processors run in a fixed order, each only for the files
// its pattern matches; a user strategy runs last. Every stage receives the
// CSS and source map produced by the previous one.
package processor

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/tain335/stylepack/internal/logger"
	"github.com/tain335/stylepack/internal/resolve"
)

// Input is the state handed to one processor.
type Input struct {
	Path      string
	CSS       string
	Map       string
	SourceMap bool
	Resolver  *resolve.Resolver
}

// Output is what a processor returns. An empty Map keeps the previous
// stage's map.
type Output struct {
	CSS        string
	Map        string
	WatchFiles []string
	Data       map[string]interface{}
}

type Processor interface {
	Name() string
	Test(path string) bool
	Process(ctx context.Context, in Input) (Output, error)
}

// Result is the outcome of running the whole pipeline over one file.
type Result struct {
	CSS        string
	Map        string
	WatchFiles []string
	Data       map[string]interface{}
}

// Error wraps a failure of one processor with the file it was compiling.
type Error struct {
	Path      string
	Processor string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s processor failed on %s: %v", e.Processor, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// MissingDependencyError reports a processor whose engine is not
// installed. It only fails the files that processor matches.
type MissingDependencyError struct {
	Engine string
	Files  string
	Hint   string
}

func (e *MissingDependencyError) Error() string {
	msg := fmt.Sprintf("install %s to support %s files", e.Engine, e.Files)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

// ProcessFunc is a user-supplied processor.
type ProcessFunc func(ctx context.Context, in Input) (Output, error)

// PatternFunc runs Process for the files matching Pattern.
type PatternFunc struct {
	Pattern *regexp.Regexp
	Process ProcessFunc
}

type strategyKind uint8

const (
	strategyDisabled strategyKind = iota
	strategySingle
	strategyPatterned
)

// UserStrategy is the user processor stage. The zero value is disabled.
type UserStrategy struct {
	kind      strategyKind
	single    ProcessFunc
	patterned []PatternFunc
}

func Disabled() UserStrategy {
	return UserStrategy{}
}

// Single runs fn for every file.
func Single(fn ProcessFunc) UserStrategy {
	if fn == nil {
		return UserStrategy{}
	}
	return UserStrategy{kind: strategySingle, single: fn}
}

// Patterned runs, in order, every function whose pattern matches the file.
func Patterned(fns ...PatternFunc) UserStrategy {
	if len(fns) == 0 {
		return UserStrategy{}
	}
	return UserStrategy{kind: strategyPatterned, patterned: fns}
}

func (s UserStrategy) Enabled() bool {
	return s.kind != strategyDisabled
}

func (s UserStrategy) funcsFor(path string) []ProcessFunc {
	switch s.kind {
	case strategySingle:
		return []ProcessFunc{s.single}
	case strategyPatterned:
		var fns []ProcessFunc
		for _, p := range s.patterned {
			if p.Pattern.MatchString(path) {
				fns = append(fns, p.Process)
			}
		}
		return fns
	}
	return nil
}

// Options configures the built-in processors.
type Options struct {
	Sass         SassOptions
	LessBinary   string
	StylusBinary string
	Modules      ModulesOptions
	User         UserStrategy
}

type Pipeline struct {
	builtins []Processor
	user     UserStrategy
}

// New builds the pipeline. Built-ins are declared in their run order.
func New(opts Options) *Pipeline {
	return &Pipeline{
		builtins: []Processor{
			newSassProcessor(opts.Sass),
			newLessProcessor(opts.LessBinary),
			newStylusProcessor(opts.StylusBinary),
			newModulesProcessor(opts.Modules),
		},
		user: opts.User,
	}
}

// Compile runs every matching stage over source.
func (p *Pipeline) Compile(ctx context.Context, path, source string, sourceMap bool, resolver *resolve.Resolver) (Result, error) {
	state := &chainState{
		result: Result{CSS: source, Data: make(map[string]interface{})},
		seen:   make(map[string]bool),
	}
	state.addWatchFiles(path)

	for _, proc := range p.builtins {
		if !proc.Test(path) {
			continue
		}
		if err := state.run(ctx, proc.Name(), path, sourceMap, resolver, proc.Process); err != nil {
			return Result{}, err
		}
	}
	for _, fn := range p.user.funcsFor(path) {
		if err := state.run(ctx, "user", path, sourceMap, resolver, fn); err != nil {
			return Result{}, err
		}
	}
	return state.result, nil
}

// Close stops the engines the pipeline started.
func (p *Pipeline) Close() error {
	for _, proc := range p.builtins {
		if c, ok := proc.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}

type chainState struct {
	result Result
	seen   map[string]bool
}

func (s *chainState) run(ctx context.Context, name, path string, sourceMap bool, resolver *resolve.Resolver, fn ProcessFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	out, err := fn(ctx, Input{
		Path:      path,
		CSS:       s.result.CSS,
		Map:       s.result.Map,
		SourceMap: sourceMap,
		Resolver:  resolver,
	})
	if err != nil {
		return &Error{Path: path, Processor: name, Err: err}
	}
	s.result.CSS = out.CSS
	if out.Map != "" && sourceMap {
		s.result.Map = out.Map
	}
	s.addWatchFiles(out.WatchFiles...)
	for k, v := range out.Data {
		s.result.Data[k] = v
	}
	logger.Debug("processed", "processor", name, "file", path, "took", time.Since(start))
	return nil
}

func (s *chainState) addWatchFiles(files ...string) {
	for _, f := range files {
		if f != "" && !s.seen[f] {
			s.seen[f] = true
			s.result.WatchFiles = append(s.result.WatchFiles, f)
		}
	}
}
