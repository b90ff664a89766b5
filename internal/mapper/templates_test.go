package mapper

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
)

func TestSimpleMatch(t *testing.T) {
	tests := []struct {
		pattern, value string
		want           bool
	}{
		{"*", "anything", true},
		{"foo", "foo", true},
		{"foo", "foobar", false},
		{"foo*", "foobar", true},
		{"*bar", "foobar", true},
		{"*_i", "count_i", true},
		{"*_i", "count_s", false},
		{"a*c", "abbbc", true},
		{"a*c", "abbb", false},
		{"*mid*", "xxmidyy", true},
		{"*mid*", "xxmiyy", false},
		{"user.*", "user.name", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, simpleMatch(tt.pattern, tt.value), "%s ~ %s", tt.pattern, tt.value)
	}
}

func TestDynamicTemplateMatches(t *testing.T) {
	tmpl, err := NewDynamicTemplate("t", map[string]any{
		"path_match":         "user.*",
		"path_unmatch":       "user.secret*",
		"match_mapping_type": "string",
		"mapping":            map[string]any{"type": "keyword"},
	})
	require.NoError(t, err)

	assert.True(t, tmpl.Matches("user.name", "name", "string"))
	assert.False(t, tmpl.Matches("user.secret_key", "secret_key", "string"))
	assert.False(t, tmpl.Matches("user.age", "age", "long"))
	assert.False(t, tmpl.Matches("user.name", "name", ""), "empty kind never matches a typed template")
	assert.False(t, tmpl.Matches("other.name", "name", "string"))
}

func TestDynamicTemplateRegex(t *testing.T) {
	tmpl, err := NewDynamicTemplate("re", map[string]any{
		"match":         `[a-z+_\d`,
		"match_pattern": "regex",
		"mapping":       map[string]any{"type": "long"},
	})
	require.Error(t, err, "invalid pattern is rejected")
	assert.Nil(t, tmpl)

	tmpl, err = NewDynamicTemplate("re", map[string]any{
		"match":         `[a-z]+_\d+`,
		"match_pattern": "regex",
		"mapping":       map[string]any{"type": "long"},
	})
	require.NoError(t, err)
	assert.True(t, tmpl.Matches("field_12", "field_12", "long"))
	assert.False(t, tmpl.Matches("x.field_12a", "field_12a", "long"))
}

func TestDynamicTemplateValidation(t *testing.T) {
	tests := []struct {
		name string
		conf map[string]any
	}{
		{name: "no mapping", conf: map[string]any{"match": "*"}},
		{name: "no condition", conf: map[string]any{"mapping": map[string]any{}}},
		{name: "unknown key", conf: map[string]any{"match": "*", "mapping": map[string]any{}, "extra": 1}},
		{name: "bad pattern kind", conf: map[string]any{"match": "*", "match_pattern": "glob", "mapping": map[string]any{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDynamicTemplate("t", tt.conf)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrIllegalArgument))
		})
	}
}

func TestDynamicTemplateSubstitution(t *testing.T) {
	tmpl, err := NewDynamicTemplate("t", map[string]any{
		"match": "*",
		"mapping": map[string]any{
			"type":    "{dynamic_type}",
			"copy_to": []any{"all_{name}"},
			"fields":  map[string]any{"raw": map[string]any{"type": "keyword"}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "long", tmpl.MappingType("long"))
	def := tmpl.MappingForName("price", "long")
	assert.Equal(t, "long", def["type"])
	assert.Equal(t, []any{"all_price"}, def["copy_to"])
	assert.Equal(t, "{dynamic_type}", tmpl.Mapping["type"], "template body is not modified")
}

func TestLoadTemplates(t *testing.T) {
	src := `
dynamic_templates:
  - ints:
      match: "*_i"
      mapping:
        type: integer
  - strings:
      match_mapping_type: string
      mapping:
        type: keyword
        ignore_above: 64
`
	templates, err := LoadTemplates(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "ints", templates[0].Name)
	assert.Equal(t, "strings", templates[1].Name)
	assert.Equal(t, float64(64), templates[1].Mapping["ignore_above"])

	list, err := LoadTemplates(strings.NewReader("- any:\n    match: '*'\n    mapping: {type: keyword}\n"))
	require.NoError(t, err)
	require.Len(t, list, 1)

	none, err := LoadTemplates(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTemplatesThroughRootMapping(t *testing.T) {
	reg := NewRegistry()
	templates, err := LoadTemplates(strings.NewReader("- ints:\n    match: '*_i'\n    mapping: {type: integer}\n"))
	require.NoError(t, err)

	b := NewRootBuilder("doc")
	b.Settings().Templates = templates
	root, err := b.BuildRoot()
	require.NoError(t, err)
	dm, err := NewDocumentMapper(root, 1)
	require.NoError(t, err)

	p := NewDocumentParser(reg, nil, ParserConfig{})
	doc, err := parseBody(p, dm, `{"n_i": 4}`)
	require.NoError(t, err)
	f, ok := doc.DynamicUpdate.Mapper("n_i").(*FieldMapper)
	require.True(t, ok)
	assert.Equal(t, TypeInteger, f.TypeName())
}

func TestLoadShippedTemplates(t *testing.T) {
	f, err := os.Open(filepath.Join("..", "..", "configs", "templates.yaml"))
	require.NoError(t, err)
	defer f.Close()

	templates, err := LoadTemplates(f)
	require.NoError(t, err)
	require.Len(t, templates, 3)
	assert.Equal(t, "ids_as_keywords", templates[0].Name)
	assert.True(t, templates[2].Matches("stats.views", "views", "long"))
}
