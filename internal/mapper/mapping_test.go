package mapper

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
)

const fullMapping = `{"doc": {
	"dynamic": "strict",
	"date_detection": false,
	"numeric_detection": true,
	"dynamic_date_formats": ["yyyy-MM-dd"],
	"dynamic_templates": [{"ints": {"match": "*_i", "mapping": {"type": "integer"}}}],
	"properties": {
		"title": {"type": "text", "analyzer": "english", "copy_to": ["all"],
			"fields": {"raw": {"type": "keyword", "ignore_above": 128}}},
		"all": {"type": "text", "store": true},
		"status": {"type": "keyword", "null_value": "none"},
		"created": {"type": "date", "format": "yyyy/MM/dd"},
		"views": {"type": "long", "coerce": false},
		"price": {"type": "double", "doc_values": false},
		"flag": {"type": "boolean", "index": "no"},
		"blob": {"type": "binary"},
		"loc": {"type": "geo_point"},
		"meta": {"dynamic": true, "properties": {"owner": {"type": "keyword"}}},
		"off": {"type": "object", "enabled": false},
		"items": {"type": "nested", "include_in_parent": true, "properties": {"v": {"type": "short"}}}
	}
}}`

func TestParseMappingRoundTrip(t *testing.T) {
	reg := NewRegistry()
	root, err := reg.ParseMapping("doc", []byte(fullMapping))
	require.NoError(t, err)

	dm, err := NewDocumentMapper(root, 1)
	require.NoError(t, err)
	assert.Equal(t, "doc", dm.Type())
	assert.Equal(t, DynamicStrict, root.Dynamic())
	assert.Equal(t, []string{"items", "meta", "off"}, dm.ObjectPaths())

	title, ok := dm.LookupField("title")
	require.True(t, ok)
	assert.Equal(t, "english", title.Options().Analyzer)
	assert.Equal(t, []string{"all"}, title.CopyTo())
	raw, ok := dm.LookupField("title.raw")
	require.True(t, ok)
	assert.Equal(t, 128, raw.Options().IgnoreAbove)

	flag, _ := dm.LookupField("flag")
	assert.False(t, flag.Options().Index)
	items, ok := dm.ObjectMapper("items")
	require.True(t, ok)
	assert.Equal(t, Nested{Nested: true, IncludeInParent: true}, items.Nested())

	src, err := dm.Source()
	require.NoError(t, err)
	again, err := reg.ParseMapping("doc", src)
	require.NoError(t, err)
	assert.Equal(t, root.ToMap(), again.ToMap())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(src, &decoded))
	assert.Contains(t, decoded, "doc")
}

func TestParseMappingErrors(t *testing.T) {
	reg := NewRegistry()
	tests := []struct {
		name     string
		mapping  string
		contains string
	}{
		{name: "not json", mapping: `{`, contains: "not a json object"},
		{name: "unknown type", mapping: `{"properties": {"a": {"type": "nope"}}}`, contains: "no handler for type [nope]"},
		{name: "unknown param", mapping: `{"properties": {"a": {"type": "long", "analyzer": "x"}}}`, contains: "unsupported parameters: [analyzer]"},
		{name: "dotted name", mapping: `{"properties": {"a.b": {"type": "long"}}}`, contains: "cannot contain '.'"},
		{name: "root param", mapping: `{"bogus": 1}`, contains: "unsupported parameters: [bogus]"},
		{name: "bad dynamic", mapping: `{"dynamic": "sometimes"}`, contains: "unknown dynamic value"},
		{name: "include on object", mapping: `{"properties": {"o": {"include_in_root": true}}}`, contains: "unsupported parameters: [include_in_root]"},
		{name: "null null_value", mapping: `{"properties": {"a": {"type": "keyword", "null_value": null}}}`, contains: "cannot be null"},
		{name: "object multi-field", mapping: `{"properties": {"a": {"type": "text", "fields": {"o": {"properties": {}}}}}}`, contains: "cannot be an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.ParseMapping("doc", []byte(tt.mapping))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestValidateTypeName(t *testing.T) {
	assert.NoError(t, ValidateTypeName("doc"))
	assert.NoError(t, ValidateTypeName(DefaultMappingType))
	for _, name := range []string{"", ".hidden", "_private", "a#b", strings.Repeat("x", 256)} {
		err := ValidateTypeName(name)
		assert.True(t, errors.Is(err, apperrors.ErrIllegalArgument), "name %q", name)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.Contains(t, reg.Names(), TypeGeoPoint)

	legacy, ok := reg.Lookup("string")
	require.True(t, ok)
	assert.Equal(t, TypeText, legacy.Name())

	assert.Error(t, reg.Register(&scalarType{name: TypeObject}))
	assert.Error(t, reg.Register(&scalarType{name: TypeLong}))

	ip := &scalarType{name: "ip", defaults: indexed(), convert: keywordValue}
	require.NoError(t, reg.Register(ip))
	b, err := reg.NewFieldBuilder("addr", "ip")
	require.NoError(t, err)
	m, err := b.Build(NewBuilderContext(nil))
	require.NoError(t, err)
	assert.Equal(t, "ip", m.(*FieldMapper).TypeName())
}

func TestMergeConflicts(t *testing.T) {
	reg := NewRegistry()
	base := newTestMapper(t, reg, `{"properties": {"a": {"type": "long"}, "o": {"properties": {}}, "n": {"type": "nested"}}}`)

	tests := []struct {
		name  string
		patch string
		msg   string
	}{
		{name: "field type", patch: `{"properties": {"a": {"type": "keyword"}}}`, msg: "mapper [a] of different type, current_type [long], merged_type [keyword]"},
		{name: "object to field", patch: `{"properties": {"o": {"type": "long"}}}`, msg: "can't merge a non object mapping [o] with an object mapping [o]"},
		{name: "field to object", patch: `{"properties": {"a": {"properties": {}}}}`, msg: "can't merge a non object mapping"},
		{name: "nested to object", patch: `{"properties": {"n": {"properties": {}}}}`, msg: "can't be changed from nested to non-nested"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch, err := reg.ParseMapping("doc", []byte(tt.patch))
			require.NoError(t, err)
			_, err = base.Merge(patch)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrMappingConflict))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	other, err := reg.ParseMapping("other", []byte(`{}`))
	require.NoError(t, err)
	_, err = base.Merge(other)
	assert.True(t, errors.Is(err, apperrors.ErrIllegalArgument))
}

func TestMergeIdempotentAndImmutable(t *testing.T) {
	reg := NewRegistry()
	base := newTestMapper(t, reg, `{"properties": {"a": {"properties": {"x": {"type": "long"}}}}}`)
	before := base.Mapping()

	patch, err := reg.ParseMapping("doc", []byte(`{
		"dynamic": "strict",
		"date_detection": false,
		"properties": {"a": {"properties": {"y": {"type": "keyword"}}}, "b": {"type": "text"}}
	}`))
	require.NoError(t, err)

	once, err := base.Merge(patch)
	require.NoError(t, err)
	twice, err := once.Merge(patch)
	require.NoError(t, err)

	assert.Equal(t, once.Mapping(), twice.Mapping())
	assert.Equal(t, before, base.Mapping(), "merge leaves the receiver untouched")
	assert.Equal(t, []string{"a.x", "a.y", "b"}, once.FieldNames())
	assert.Equal(t, 4, once.FieldCount())
	assert.Equal(t, DynamicStrict, once.Root().Dynamic())
	assert.False(t, once.Root().Root().dateDetection())
}

func TestRootSettingsMergeTemplates(t *testing.T) {
	first, err := NewDynamicTemplate("t", map[string]any{"match": "a*", "mapping": map[string]any{"type": "long"}})
	require.NoError(t, err)
	replaced, err := NewDynamicTemplate("t", map[string]any{"match": "b*", "mapping": map[string]any{"type": "long"}})
	require.NoError(t, err)
	added, err := NewDynamicTemplate("u", map[string]any{"match": "c*", "mapping": map[string]any{"type": "long"}})
	require.NoError(t, err)

	s := &RootSettings{Templates: []*DynamicTemplate{first}}
	out := s.merge(&RootSettings{Templates: []*DynamicTemplate{replaced, added}, DynamicDateFormats: []string{}})
	require.Len(t, out.Templates, 2)
	assert.Equal(t, "b*", out.Templates[0].Match)
	assert.Equal(t, "u", out.Templates[1].Name)
	assert.Empty(t, out.dateFormats(), "explicit empty formats disable detection formats")
	assert.Same(t, first, s.Templates[0])
}

func TestFieldMapperToMapDefaults(t *testing.T) {
	reg := NewRegistry()
	dm := newTestMapper(t, reg, `{"properties": {"k": {"type": "keyword"}}}`)
	k, ok := dm.LookupField("k")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"type": "keyword"}, k.ToMap())
	assert.Equal(t, "k[keyword]", k.String())
}
