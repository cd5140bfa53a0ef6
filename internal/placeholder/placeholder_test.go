package placeholder

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsDeterministic(t *testing.T) {
	tok1, text1 := New("/src/img/a.png")
	tok2, text2 := New("/src/img/a.png")
	assert.Equal(t, tok1, tok2)
	assert.Equal(t, text1, text2)
	assert.True(t, strings.HasPrefix(text1, Prefix+Symbol))
	assert.True(t, strings.HasSuffix(text1, Suffix))

	other, _ := New("/src/img/b.png")
	assert.NotEqual(t, tok1, other)

	id, err := Decode(tok1)
	require.NoError(t, err)
	assert.Equal(t, "/src/img/a.png", id)
}

func TestScan(t *testing.T) {
	a, pa := New("/a.png")
	b, pb := New("/b.woff2")
	css := ".x{background:url(" + pa + ")}\n.y{src:url(" + pb + ")}\n.z{background:url(" + pa + ")}"

	assert.Equal(t, []string{a, b}, Scan(css))
	assert.True(t, Contains(css))
	assert.Empty(t, Scan(".x{color:red}"))
	assert.False(t, Contains(".x{color:red}"))
}

func TestReplace(t *testing.T) {
	a, pa := New("/a.png")
	b, pb := New("/b.png")
	css := "url(" + pa + ") url(" + pb + ") url(" + pa + ")"

	out, err := Replace(css, map[string]string{a: "img/a.png", b: "../b.png"})
	require.NoError(t, err)
	assert.Equal(t, "url(img/a.png) url(../b.png) url(img/a.png)", out)
	assert.False(t, Contains(out))
}

func TestReplaceIsAllOrNothing(t *testing.T) {
	a, pa := New("/a.png")
	_, pb := New("/missing.png")
	css := "url(" + pa + ") url(" + pb + ")"

	out, err := Replace(css, map[string]string{a: "a.png"})
	require.Error(t, err)
	assert.Equal(t, css, out)

	var missing *MissingValueError
	require.True(t, errors.As(err, &missing))
	assert.Contains(t, err.Error(), "/missing.png")
}

func TestTableAdd(t *testing.T) {
	var table Table
	table = table.Add("t1", "/a")
	table = table.Add("t2", "/b")
	table = table.Add("t1", "/a")
	assert.Len(t, table, 2)
	assert.True(t, table.Has("t2"))
	assert.False(t, table.Has("t3"))
}
