// Package placeholder generates the opaque tokens that stand in for
// unresolved asset URLs inside compiled CSS, and substitutes them once the
// final URLs are known.
//
// A placeholder is always Prefix + Symbol + token + Suffix where the token
// is the unpadded base64url encoding of a dependency id. The delimiters
// are reserved: they never occur in legitimate CSS.
package placeholder

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

const (
	Prefix = "__STYLEPACK_"
	Symbol = "REF_"
	Suffix = "_STYLEPACK__"
)

var pattern = regexp.MustCompile(regexp.QuoteMeta(Prefix+Symbol) + `([A-Za-z0-9_-]+?)` + regexp.QuoteMeta(Suffix))

// Encode returns the token for a dependency id. Equal ids give equal
// tokens, so recompiling a file yields the same text.
func Encode(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// Decode returns the dependency id a token was generated from.
func Decode(token string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("invalid placeholder token %q: %w", token, err)
	}
	return string(b), nil
}

// Wrap returns the full placeholder text for token.
func Wrap(token string) string {
	return Prefix + Symbol + token + Suffix
}

// New returns the token and the placeholder text for a dependency id.
func New(id string) (token string, text string) {
	token = Encode(id)
	return token, Wrap(token)
}

// Contains reports whether text holds any placeholder delimiter.
func Contains(text string) bool {
	return strings.Contains(text, Prefix+Symbol)
}

// Scan returns the distinct tokens present in text in order of first
// appearance.
func Scan(text string) []string {
	matches := pattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			tokens = append(tokens, m[1])
		}
	}
	return tokens
}

// Entry pairs a token with the id of the dependency it resolves to.
type Entry struct {
	Token        string
	DependencyID string
}

// Table is the substitution list of one emitted style artifact.
type Table []Entry

// Add appends an entry unless the token is already present.
func (t Table) Add(token, dependencyID string) Table {
	for _, e := range t {
		if e.Token == token {
			return t
		}
	}
	return append(t, Entry{Token: token, DependencyID: dependencyID})
}

// Has reports whether the table holds token.
func (t Table) Has(token string) bool {
	for _, e := range t {
		if e.Token == token {
			return true
		}
	}
	return false
}

// MissingValueError is returned by Replace for a placeholder without a
// value.
type MissingValueError struct {
	Token string
}

func (e *MissingValueError) Error() string {
	id, err := Decode(e.Token)
	if err != nil {
		id = e.Token
	}
	return fmt.Sprintf("no value for placeholder of %q", id)
}

// Replace substitutes every placeholder in text with values[token]. It is
// all-or-nothing: if any placeholder has no value the original text is
// returned together with a *MissingValueError.
func Replace(text string, values map[string]string) (string, error) {
	var missing string
	out := pattern.ReplaceAllStringFunc(text, func(m string) string {
		token := m[len(Prefix)+len(Symbol) : len(m)-len(Suffix)]
		v, ok := values[token]
		if !ok {
			if missing == "" {
				missing = token
			}
			return m
		}
		return v
	})
	if missing != "" {
		return text, &MissingValueError{Token: missing}
	}
	return out, nil
}
