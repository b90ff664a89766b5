package mapper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readToken struct {
	tok  Token
	name string
	text string
}

func drain(t *testing.T, r TokenReader) []readToken {
	t.Helper()
	var out []readToken
	for {
		tok, err := r.NextToken()
		require.NoError(t, err)
		if tok == TokenNone {
			return out
		}
		rt := readToken{tok: tok, name: r.CurrentName()}
		if tok.IsValue() || tok == TokenFieldName {
			rt.text = r.Text()
		}
		out = append(out, rt)
	}
}

func TestJSONReaderTokens(t *testing.T) {
	r := NewJSONReader(strings.NewReader(`{"a": [1, 2.5, "x", true, null], "b": {"c": "d"}}`))
	got := drain(t, r)

	want := []readToken{
		{tok: TokenStartObject},
		{tok: TokenFieldName, name: "a", text: "a"},
		{tok: TokenStartArray, name: "a"},
		{tok: TokenValueNumber, name: "a", text: "1"},
		{tok: TokenValueNumber, name: "a", text: "2.5"},
		{tok: TokenValueString, name: "a", text: "x"},
		{tok: TokenValueBoolean, name: "a", text: "true"},
		{tok: TokenValueNull, name: "a"},
		{tok: TokenEndArray, name: "a"},
		{tok: TokenFieldName, name: "b", text: "b"},
		{tok: TokenStartObject, name: "b"},
		{tok: TokenFieldName, name: "c", text: "c"},
		{tok: TokenValueString, name: "c", text: "d"},
		{tok: TokenEndObject, name: "b"},
		{tok: TokenEndObject},
	}
	assert.Equal(t, want, got)
}

func TestJSONReaderNumberTypes(t *testing.T) {
	tests := []struct {
		text string
		want NumberType
	}{
		{"42", NumberInt},
		{"-2147483648", NumberInt},
		{"2147483648", NumberLong},
		{"1.5", NumberDouble},
		{"1e3", NumberDouble},
		{"99999999999999999999", NumberDouble},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			r := NewJSONBytesReader([]byte(tt.text))
			tok, err := r.NextToken()
			require.NoError(t, err)
			require.Equal(t, TokenValueNumber, tok)
			assert.Equal(t, tt.want, r.NumberType())
		})
	}
}

func TestParseIntTextRange(t *testing.T) {
	v, err := parseIntText("-9223372036854775808")
	require.NoError(t, err)
	assert.Equal(t, int64(-9223372036854775808), v)

	v, err = parseIntText("12.0")
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)

	for _, text := range []string{"9223372036854775808", "9.3e18", "-9.3e18", "1e300"} {
		_, err := parseIntText(text)
		assert.ErrorIs(t, err, errLongRange, text)
	}
}

func TestJSONReaderSkipChildren(t *testing.T) {
	r := NewJSONBytesReader([]byte(`{"skip": {"a": [1, {"b": 2}]}, "keep": 1}`))
	for _, want := range []Token{TokenStartObject, TokenFieldName, TokenStartObject} {
		tok, err := r.NextToken()
		require.NoError(t, err)
		require.Equal(t, want, tok)
	}
	require.NoError(t, r.SkipChildren())
	assert.Equal(t, TokenEndObject, r.CurrentToken())

	tok, err := r.NextToken()
	require.NoError(t, err)
	assert.Equal(t, TokenFieldName, tok)
	assert.Equal(t, "keep", r.CurrentName())
}

func TestJSONReaderBinary(t *testing.T) {
	r := NewJSONBytesReader([]byte(`"aGVsbG8="`))
	_, err := r.NextToken()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), r.Binary())
}

func TestJSONReaderTruncated(t *testing.T) {
	r := NewJSONBytesReader([]byte(`{"a": [1`))
	toks := drain(t, r)
	assert.Len(t, toks, 4)

	skip := NewJSONBytesReader([]byte(`{"a": [1`))
	_, err := skip.NextToken()
	require.NoError(t, err)
	assert.ErrorIs(t, skip.SkipChildren(), errUnexpectedEOF)
}

func TestYAMLReaderTokens(t *testing.T) {
	src := "name: x\ncount: 7\nratio: 1.5\nok: true\nnone: null\nlist: [a, b]\nobj:\n  k: v\nraw: !!binary aGVsbG8=\n"
	r, err := NewYAMLReader(strings.NewReader(src))
	require.NoError(t, err)

	got := drain(t, r)
	want := []readToken{
		{tok: TokenStartObject},
		{tok: TokenFieldName, name: "name", text: "name"},
		{tok: TokenValueString, name: "name", text: "x"},
		{tok: TokenFieldName, name: "count", text: "count"},
		{tok: TokenValueNumber, name: "count", text: "7"},
		{tok: TokenFieldName, name: "ratio", text: "ratio"},
		{tok: TokenValueNumber, name: "ratio", text: "1.5"},
		{tok: TokenFieldName, name: "ok", text: "ok"},
		{tok: TokenValueBoolean, name: "ok", text: "true"},
		{tok: TokenFieldName, name: "none", text: "none"},
		{tok: TokenValueNull, name: "none"},
		{tok: TokenFieldName, name: "list", text: "list"},
		{tok: TokenStartArray, name: "list"},
		{tok: TokenValueString, name: "list", text: "a"},
		{tok: TokenValueString, name: "list", text: "b"},
		{tok: TokenEndArray, name: "list"},
		{tok: TokenFieldName, name: "obj", text: "obj"},
		{tok: TokenStartObject, name: "obj"},
		{tok: TokenFieldName, name: "k", text: "k"},
		{tok: TokenValueString, name: "k", text: "v"},
		{tok: TokenEndObject, name: "obj"},
		{tok: TokenFieldName, name: "raw", text: "raw"},
		{tok: TokenValueEmbedded, name: "raw", text: "aGVsbG8="},
		{tok: TokenEndObject},
	}
	assert.Equal(t, want, got)
}

func TestYAMLReaderNumberTypesAndBinary(t *testing.T) {
	r, err := NewYAMLReader(strings.NewReader("a: 5\nb: 2.0\nc: !!binary aGVsbG8=\n"))
	require.NoError(t, err)

	kinds := map[string]NumberType{}
	var bin []byte
	for {
		tok, err := r.NextToken()
		require.NoError(t, err)
		if tok == TokenNone {
			break
		}
		switch tok {
		case TokenValueNumber:
			kinds[r.CurrentName()] = r.NumberType()
		case TokenValueEmbedded:
			bin = r.Binary()
		}
	}
	assert.Equal(t, map[string]NumberType{"a": NumberInt, "b": NumberDouble}, kinds)
	assert.Equal(t, []byte("hello"), bin)
}

func TestYAMLReaderEmpty(t *testing.T) {
	r, err := NewYAMLReader(strings.NewReader(""))
	require.NoError(t, err)
	tok, err := r.NextToken()
	require.NoError(t, err)
	assert.Equal(t, TokenNone, tok)
}

func TestContentPath(t *testing.T) {
	p := NewContentPath()
	assert.Equal(t, "a", p.PathAsText("a"))

	p.Add("x")
	p.Add("y")
	assert.Equal(t, 2, p.Depth())
	assert.Equal(t, "x.y.a", p.PathAsText("a"))

	p.Remove()
	p.Remove()
	p.Remove()
	assert.Equal(t, 0, p.Depth())
}
