package processor

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"hash/adler32"
	"io"
	"regexp"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// ModulesDataKey is the Data key holding the class name mapping of a CSS
// module.
const ModulesDataKey = "modules"

var defaultModulesPattern = regexp.MustCompile(`\.module\.[a-z]+$`)

// ModulesOptions configures class name scoping for CSS modules.
type ModulesOptions struct {
	// Pattern selects the module files. Defaults to `\.module\.[a-z]+$`.
	Pattern *regexp.Regexp
	// ScopedName returns the scoped class name of name declared in path.
	// Defaults to name + "_" + a hash of path.
	ScopedName func(name, path string) string
	Disable    bool
}

type modulesProcessor struct {
	opts ModulesOptions
}

func newModulesProcessor(opts ModulesOptions) Processor {
	if opts.Pattern == nil {
		opts.Pattern = defaultModulesPattern
	}
	if opts.ScopedName == nil {
		opts.ScopedName = defaultScopedName
	}
	return &modulesProcessor{opts: opts}
}

func (p *modulesProcessor) Name() string { return "modules" }

func (p *modulesProcessor) Test(path string) bool {
	return !p.opts.Disable && p.opts.Pattern.MatchString(path)
}

func (p *modulesProcessor) Process(ctx context.Context, in Input) (Output, error) {
	out, classes, err := scopeClasses(in.CSS, func(name string) string {
		return p.opts.ScopedName(name, in.Path)
	})
	if err != nil {
		return Output{}, err
	}
	return Output{
		CSS:  out,
		Data: map[string]interface{}{ModulesDataKey: classes},
	}, nil
}

func defaultScopedName(name, path string) string {
	hash := adler32.New()
	hash.Write([]byte(path))
	checksum := make([]byte, 4)
	binary.BigEndian.PutUint32(checksum, hash.Sum32())
	return name + "_" + base64.RawURLEncoding.EncodeToString(checksum)
}

type wrapper uint8

const (
	wrapPlain wrapper = iota
	wrapGlobal
	wrapLocal
)

// scopeClasses renames every class selector through scoped. Selectors
// wrapped in :global(...) are written unwrapped and keep their names;
// :local(...) is unwrapped and scoped like the rest.
func scopeClasses(source string, scoped func(string) string) (string, map[string]string, error) {
	lexer := css.NewLexer(parse.NewInputString(source))
	classes := map[string]string{}
	var out strings.Builder

	var parens []wrapper
	inGlobal := func() bool {
		for _, w := range parens {
			if w == wrapGlobal {
				return true
			}
		}
		return false
	}
	// write emits one token, tracking the parentheses it opens or closes.
	write := func(tt css.TokenType, data []byte) {
		switch tt {
		case css.FunctionToken, css.LeftParenthesisToken:
			parens = append(parens, wrapPlain)
		case css.RightParenthesisToken:
			if n := len(parens); n > 0 {
				w := parens[n-1]
				parens = parens[:n-1]
				if w != wrapPlain {
					return
				}
			}
		}
		out.Write(data)
	}

	for {
		tt, data := lexer.Next()
		if tt == css.ErrorToken {
			if err := lexer.Err(); err != nil && err != io.EOF {
				return "", nil, err
			}
			return out.String(), classes, nil
		}

		switch {
		case tt == css.ColonToken:
			next, nextData := lexer.Next()
			if next == css.FunctionToken {
				switch strings.ToLower(string(nextData)) {
				case "global(":
					parens = append(parens, wrapGlobal)
					continue
				case "local(":
					parens = append(parens, wrapLocal)
					continue
				}
			}
			out.Write(data)
			if next != css.ErrorToken {
				write(next, nextData)
			}
		case tt == css.DelimToken && string(data) == ".":
			out.Write(data)
			next, nextData := lexer.Next()
			if next == css.ErrorToken {
				continue
			}
			if next != css.IdentToken || inGlobal() {
				write(next, nextData)
				continue
			}
			name := string(nextData)
			scopedName, ok := classes[name]
			if !ok {
				scopedName = scoped(name)
				classes[name] = scopedName
			}
			out.WriteString(scopedName)
		default:
			write(tt, data)
		}
	}
}
