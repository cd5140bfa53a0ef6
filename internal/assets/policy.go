package assets

import (
	"fmt"
	"regexp"
	"strconv"
)

type preserveKind uint8

const (
	preserveNever preserveKind = iota
	preserveAlways
	preserveStyles
	preserveAssets
	preserveFunc
)

// PreserveDir decides whether an emitted name keeps the directories of
// its suggested name. The zero value flattens every name.
type PreserveDir struct {
	kind preserveKind
	fn   func(suggested, id string) bool
}

func Never() PreserveDir  { return PreserveDir{kind: preserveNever} }
func Always() PreserveDir { return PreserveDir{kind: preserveAlways} }

// StylesOnly keeps directories for style files and flattens other assets.
func StylesOnly() PreserveDir { return PreserveDir{kind: preserveStyles} }

// AssetsOnly keeps directories for assets and flattens style files.
func AssetsOnly() PreserveDir { return PreserveDir{kind: preserveAssets} }

func PreserveFunc(fn func(suggested, id string) bool) PreserveDir {
	if fn == nil {
		return Never()
	}
	return PreserveDir{kind: preserveFunc, fn: fn}
}

// ParsePreserveDir reads the configuration spelling of a policy:
// "true", "false", "css" or "assets".
func ParsePreserveDir(s string) (PreserveDir, error) {
	switch s {
	case "", "false":
		return Never(), nil
	case "true":
		return Always(), nil
	case "css":
		return StylesOnly(), nil
	case "assets":
		return AssetsOnly(), nil
	}
	return PreserveDir{}, fmt.Errorf("invalid preserveDir %q, want true, false, css or assets", s)
}

func (p PreserveDir) keep(suggested, id string, isStyle bool) bool {
	switch p.kind {
	case preserveAlways:
		return true
	case preserveStyles:
		return isStyle
	case preserveAssets:
		return !isStyle
	case preserveFunc:
		return p.fn(suggested, id)
	}
	return false
}

type inlineKind uint8

const (
	inlineNever inlineKind = iota
	inlineAlways
	inlineSize
	inlinePattern
	inlineFunc
)

// Inline decides which url() dependencies are embedded as data URLs
// instead of being emitted. The zero value inlines nothing.
type Inline struct {
	kind    inlineKind
	limit   int64
	pattern *regexp.Regexp
	fn      func(path string, size int64) bool
}

func InlineNever() Inline  { return Inline{} }
func InlineAlways() Inline { return Inline{kind: inlineAlways} }

// InlineUnder inlines files smaller than limit bytes.
func InlineUnder(limit int64) Inline { return Inline{kind: inlineSize, limit: limit} }

func InlineMatching(pattern *regexp.Regexp) Inline {
	if pattern == nil {
		return Inline{}
	}
	return Inline{kind: inlinePattern, pattern: pattern}
}

func InlineFunc(fn func(path string, size int64) bool) Inline {
	if fn == nil {
		return Inline{}
	}
	return Inline{kind: inlineFunc, fn: fn}
}

// ParseInline reads the configuration spelling of a policy: "true",
// "false", a byte limit, or a regular expression.
func ParseInline(s string) (Inline, error) {
	switch s {
	case "", "false":
		return InlineNever(), nil
	case "true":
		return InlineAlways(), nil
	}
	if limit, err := strconv.ParseInt(s, 10, 64); err == nil {
		return InlineUnder(limit), nil
	}
	re, err := regexp.Compile(s)
	if err != nil {
		return Inline{}, fmt.Errorf("invalid inline pattern %q: %w", s, err)
	}
	return InlineMatching(re), nil
}

// Enabled reports whether any file can be inlined, so callers can skip
// the stat.
func (i Inline) Enabled() bool {
	return i.kind != inlineNever
}

func (i Inline) Match(path string, size int64) bool {
	switch i.kind {
	case inlineAlways:
		return true
	case inlineSize:
		return size < i.limit
	case inlinePattern:
		return i.pattern.MatchString(path)
	case inlineFunc:
		return i.fn(path, size)
	}
	return false
}
