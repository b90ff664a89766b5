package mapper

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
)

func newTestMapper(t testing.TB, reg *Registry, mapping string) *DocumentMapper {
	t.Helper()
	root, err := reg.ParseMapping("doc", []byte(mapping))
	require.NoError(t, err)
	dm, err := NewDocumentMapper(root, 1)
	require.NoError(t, err)
	return dm
}

func newTestParser() (*Registry, *DocumentParser) {
	reg := NewRegistry()
	return reg, NewDocumentParser(reg, nil, ParserConfig{})
}

func parseBody(p *DocumentParser, dm *DocumentMapper, body string) (*ParsedDocument, error) {
	return p.Parse(dm, SourceToParse{Index: "test", Type: "doc", ID: "1", Source: []byte(body)})
}

func values(doc *Document, name string) []any {
	var out []any
	for _, f := range doc.GetAll(name) {
		out = append(out, f.Value)
	}
	return out
}

func TestParseDiscoversTextWithKeyword(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{}`)

	doc, err := parseBody(p, dm, `{"foo": "bar"}`)
	require.NoError(t, err)
	require.Len(t, doc.Docs, 1)

	require.NotNil(t, doc.DynamicUpdate)
	assert.Equal(t, map[string]any{
		"properties": map[string]any{
			"foo": map[string]any{
				"type": "text",
				"fields": map[string]any{
					"keyword": map[string]any{"type": "keyword", "ignore_above": 256},
				},
			},
		},
	}, doc.DynamicUpdate.ToMap())

	root := doc.RootDoc()
	assert.Equal(t, []any{"bar"}, values(root, "foo"))
	assert.Equal(t, []any{"bar"}, values(root, "foo.keyword"))
}

func TestParseMetadataFields(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{}`)

	doc, err := p.Parse(dm, SourceToParse{Type: "doc", ID: "42", Version: 3, Source: []byte(`{"a": 1}`)})
	require.NoError(t, err)
	assert.Equal(t, "doc#42", doc.UID)

	root := doc.RootDoc()
	assert.Equal(t, []any{"doc#42"}, values(root, FieldUID))
	assert.Equal(t, []any{"42"}, values(root, FieldID))
	assert.Equal(t, []any{"doc"}, values(root, FieldTypeName))
	assert.Equal(t, []any{int64(3)}, values(root, FieldVersion))
	assert.Equal(t, []any{[]byte(`{"a": 1}`)}, values(root, FieldSource))
}

func TestParseNumberFamilies(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType string
		want     any
	}{
		{name: "int", body: `{"foo": 42}`, wantType: TypeLong, want: int64(42)},
		{name: "long", body: `{"foo": 9007199254740993}`, wantType: TypeLong, want: int64(9007199254740993)},
		{name: "double", body: `{"foo": 4.5}`, wantType: TypeFloat, want: 4.5},
		{name: "boolean", body: `{"foo": true}`, wantType: TypeBoolean, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, p := newTestParser()
			dm := newTestMapper(t, reg, `{}`)

			doc, err := parseBody(p, dm, tt.body)
			require.NoError(t, err)
			require.NotNil(t, doc.DynamicUpdate)

			f, ok := doc.DynamicUpdate.Mapper("foo").(*FieldMapper)
			require.True(t, ok)
			assert.Equal(t, tt.wantType, f.TypeName())
			assert.Equal(t, []any{tt.want}, values(doc.RootDoc(), "foo"))
		})
	}
}

func TestParseEmptyObject(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{}`)

	doc, err := parseBody(p, dm, `{}`)
	require.NoError(t, err)
	assert.Empty(t, doc.Docs)
	assert.Nil(t, doc.DynamicUpdate)
	assert.Nil(t, doc.RootDoc())
}

func TestParseMergesSiblingObjects(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{}`)

	doc, err := parseBody(p, dm, `{"a": {"b": "x"}, "a": {"c": "y"}}`)
	require.NoError(t, err)
	require.NotNil(t, doc.DynamicUpdate)

	a, ok := doc.DynamicUpdate.Mapper("a").(*ObjectMapper)
	require.True(t, ok)
	assert.Len(t, a.Children(), 2)
	assert.NotNil(t, a.Mapper("b"))
	assert.NotNil(t, a.Mapper("c"))
	assert.Equal(t, "a.b", a.Mapper("b").Name())
}

func TestParseUpdateOrderIndependent(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{}`)

	first, err := parseBody(p, dm, `{"a": {"b": "x", "c": 1}}`)
	require.NoError(t, err)
	second, err := parseBody(p, dm, `{"a": {"c": 1, "b": "x"}}`)
	require.NoError(t, err)

	assert.Equal(t, first.DynamicUpdate.ToMap(), second.DynamicUpdate.ToMap())
}

func TestParseUpdateUnderExistingObject(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{"properties": {
		"a": {"properties": {"known": {"type": "keyword"}, "inner": {"properties": {"k": {"type": "long"}}}}}
	}}`)

	doc, err := parseBody(p, dm, `{"a": {"known": "x", "new": "y", "inner": {"k": 1, "z": true}}}`)
	require.NoError(t, err)
	require.NotNil(t, doc.DynamicUpdate)

	a, ok := doc.DynamicUpdate.Mapper("a").(*ObjectMapper)
	require.True(t, ok)
	assert.Nil(t, a.Mapper("known"), "patch must only hold new branches")
	assert.NotNil(t, a.Mapper("new"))
	inner, ok := a.Mapper("inner").(*ObjectMapper)
	require.True(t, ok)
	assert.Nil(t, inner.Mapper("k"))
	assert.NotNil(t, inner.Mapper("z"))

	merged, err := dm.Merge(doc.DynamicUpdate)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.inner.k", "a.inner.z", "a.known", "a.new", "a.new.keyword"}, merged.FieldNames())
}

func TestParseStrict(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{"properties": {
		"obj": {"dynamic": "strict", "properties": {
			"known": {"type": "keyword"},
			"inner": {"properties": {}}
		}}
	}}`)

	t.Run("sibling", func(t *testing.T) {
		_, err := parseBody(p, dm, `{"obj": {"known": "a", "extra": "b"}}`)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrStrictDynamicMapping))
		assert.Contains(t, err.Error(), "dynamic introduction of [extra] within [obj] is not allowed")

		var pe *ParsingError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "obj.extra", pe.Field)
		assert.Equal(t, KindPolicy, pe.Kind)
		assert.True(t, IsRetryable(err))
	})

	t.Run("inherited", func(t *testing.T) {
		_, err := parseBody(p, dm, `{"obj": {"inner": {"x": 1}}}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "within [obj.inner]")
	})

	t.Run("object", func(t *testing.T) {
		_, err := parseBody(p, dm, `{"obj": {"sub": {"x": 1}}}`)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrStrictDynamicMapping))
	})

	t.Run("null", func(t *testing.T) {
		_, err := parseBody(p, dm, `{"obj": {"missing": null}}`)
		require.Error(t, err)
	})

	t.Run("mapped fields pass", func(t *testing.T) {
		doc, err := parseBody(p, dm, `{"obj": {"known": "a"}, "other": 1}`)
		require.NoError(t, err)
		require.NotNil(t, doc.DynamicUpdate)
		assert.NotNil(t, doc.DynamicUpdate.Mapper("other"))
	})
}

func TestParseDynamicFalse(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{"dynamic": false, "properties": {"kept": {"type": "keyword"}}}`)

	doc, err := parseBody(p, dm, `{"kept": "k", "foo": "bar", "obj": {"x": 1}, "arr": [1, {"y": 2}], "n": null}`)
	require.NoError(t, err)
	assert.Nil(t, doc.DynamicUpdate)

	root := doc.RootDoc()
	assert.Equal(t, []any{"k"}, values(root, "kept"))
	assert.Empty(t, root.GetAll("foo"))
	assert.Empty(t, root.GetAll("obj.x"))
	assert.Empty(t, root.GetAll("arr"))
}

func TestParseNullValues(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{"properties": {"status": {"type": "keyword", "null_value": "NULL"}}}`)

	doc, err := parseBody(p, dm, `{"status": null, "unmapped": null}`)
	require.NoError(t, err)
	assert.Nil(t, doc.DynamicUpdate)
	assert.Equal(t, []any{"NULL"}, values(doc.RootDoc(), "status"))
}

func TestParseArrays(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{}`)

	doc, err := parseBody(p, dm, `{"tags": ["a", "b"], "objs": [{"x": 1}, {"y": "s"}], "nested": [[1, 2], [3]]}`)
	require.NoError(t, err)
	require.NotNil(t, doc.DynamicUpdate)

	root := doc.RootDoc()
	assert.Equal(t, []any{"a", "b"}, values(root, "tags"))
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, values(root, "nested"))

	objs, ok := doc.DynamicUpdate.Mapper("objs").(*ObjectMapper)
	require.True(t, ok)
	assert.NotNil(t, objs.Mapper("x"))
	assert.NotNil(t, objs.Mapper("y"))
}

func TestParseArrayTypeConflict(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{}`)

	_, err := parseBody(p, dm, `{"mixed": [1, "x"]}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrMappingConflict))
	assert.Contains(t, err.Error(), "of different type")
	assert.True(t, IsRetryable(err))
}

func TestParseNested(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{"properties": {
		"users": {"type": "nested", "include_in_root": true, "properties": {"name": {"type": "keyword"}}}
	}}`)

	doc, err := parseBody(p, dm, `{"title": "t", "users": [{"name": "a"}, {"name": "b"}]}`)
	require.NoError(t, err)
	require.Len(t, doc.Docs, 3)

	root := doc.RootDoc()
	assert.Same(t, root, doc.Docs[2])
	assert.False(t, root.IsNested())
	assert.ElementsMatch(t, []any{"a", "b"}, values(root, "users.name"))

	for _, nested := range doc.Docs[:2] {
		assert.True(t, nested.IsNested())
		assert.Same(t, root, nested.Parent())
		assert.Equal(t, "users.", nested.Prefix())
		assert.Equal(t, []any{"__users"}, values(nested, FieldTypeName))
		assert.Equal(t, []any{"doc#1"}, values(nested, FieldUID))
		assert.Len(t, nested.GetAll("users.name"), 1)
	}
}

func TestParseNestedIncludedOnceInRoot(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{"properties": {
		"users": {"type": "nested", "include_in_parent": true, "include_in_root": true,
			"properties": {"name": {"type": "keyword"}}}
	}}`)

	doc, err := parseBody(p, dm, `{"users": {"name": "a"}}`)
	require.NoError(t, err)
	require.Len(t, doc.Docs, 2)
	assert.Equal(t, []any{"a"}, values(doc.RootDoc(), "users.name"))
}

func TestParseParentLast(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{"properties": {
		"a": {"type": "nested", "properties": {
			"b": {"type": "nested", "properties": {"v": {"type": "long"}}}
		}}
	}}`)

	doc, err := parseBody(p, dm, `{"a": [{"b": [{"v": 1}, {"v": 2}]}, {"b": {"v": 3}}]}`)
	require.NoError(t, err)
	require.Len(t, doc.Docs, 6)
	assert.Same(t, doc.RootDoc(), doc.Docs[len(doc.Docs)-1])
	assert.False(t, doc.RootDoc().IsNested())
	for _, d := range doc.Docs[:5] {
		assert.True(t, d.IsNested())
	}
}

func TestParseCopyTo(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{"properties": {
		"first": {"type": "text", "copy_to": ["full", "meta.name"]},
		"full": {"type": "text"}
	}}`)

	doc, err := parseBody(p, dm, `{"first": "John"}`)
	require.NoError(t, err)

	root := doc.RootDoc()
	assert.Equal(t, []any{"John"}, values(root, "first"))
	assert.Equal(t, []any{"John"}, values(root, "full"))
	assert.Equal(t, []any{"John"}, values(root, "meta.name"))

	require.NotNil(t, doc.DynamicUpdate)
	meta, ok := doc.DynamicUpdate.Mapper("meta").(*ObjectMapper)
	require.True(t, ok)
	assert.Equal(t, "meta.name", meta.Mapper("name").Name())
	assert.Nil(t, doc.DynamicUpdate.Mapper("full"))
}

func TestParseCopyToNull(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{"properties": {
		"first": {"type": "keyword", "copy_to": ["full", "meta.name"]},
		"full": {"type": "keyword", "null_value": "NONE"}
	}}`)

	doc, err := parseBody(p, dm, `{"first": null}`)
	require.NoError(t, err)

	root := doc.RootDoc()
	assert.Empty(t, values(root, "first"))
	assert.Equal(t, []any{"NONE"}, values(root, "full"))
	assert.Empty(t, values(root, "meta.name"))
	assert.Nil(t, doc.DynamicUpdate, "a null creates no copy_to target")
}

func TestParseCopyToNestedTarget(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{"properties": {
		"src": {"type": "keyword", "copy_to": "items.all"},
		"items": {"type": "nested", "properties": {
			"v": {"type": "keyword", "copy_to": "items.all"},
			"all": {"type": "keyword"}
		}}
	}}`)

	doc, err := parseBody(p, dm, `{"src": "s", "items": [{"v": "x"}]}`)
	require.NoError(t, err)
	require.Len(t, doc.Docs, 2)

	nested := doc.Docs[0]
	assert.Equal(t, []any{"x"}, values(nested, "items.all"))
	assert.Equal(t, []any{"s"}, values(doc.RootDoc(), "items.all"))
}

func TestParseCopyToCannotCreateNested(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{
		"dynamic_templates": [{"nests": {"match": "nest", "mapping": {"type": "nested"}}}],
		"properties": {"src": {"type": "keyword", "copy_to": "nest.x"}}
	}`)

	_, err := parseBody(p, dm, `{"src": "s"}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrIllegalArgument))
	assert.Contains(t, err.Error(), "forbidden to create dynamic nested objects ([nest]) through `copy_to`")
}

func TestParseDynamicTemplates(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{"dynamic_templates": [
		{"ints": {"match": "*_i", "mapping": {"type": "integer"}}},
		{"doubles": {"match_mapping_type": "double", "mapping": {"type": "double"}}},
		{"labels": {"path_match": "labels.*", "mapping": {"type": "keyword", "ignore_above": 10}}},
		{"strings": {"match_mapping_type": "string", "mapping": {"type": "keyword"}}},
		{"points": {"match": "loc", "mapping": {"type": "geo_point"}}}
	]}`)

	doc, err := parseBody(p, dm, `{
		"count_i": 5, "ratio": 1.5, "name": "n",
		"labels": {"env": "prod"},
		"loc": [-71.34, 41.12]
	}`)
	require.NoError(t, err)
	require.NotNil(t, doc.DynamicUpdate)

	typeOf := func(m Mapper) string {
		f, ok := m.(*FieldMapper)
		require.True(t, ok)
		return f.TypeName()
	}
	patch := doc.DynamicUpdate
	assert.Equal(t, TypeInteger, typeOf(patch.Mapper("count_i")))
	assert.Equal(t, TypeDouble, typeOf(patch.Mapper("ratio")))
	assert.Equal(t, TypeKeyword, typeOf(patch.Mapper("name")))
	assert.Equal(t, TypeGeoPoint, typeOf(patch.Mapper("loc")))

	labels, ok := patch.Mapper("labels").(*ObjectMapper)
	require.True(t, ok)
	env, ok := labels.Mapper("env").(*FieldMapper)
	require.True(t, ok)
	assert.Equal(t, 10, env.Options().IgnoreAbove)

	assert.Equal(t, []any{GeoPoint{Lat: 41.12, Lon: -71.34}}, values(doc.RootDoc(), "loc"))
}

func TestParseDateAndNumericDetection(t *testing.T) {
	reg, p := newTestParser()

	t.Run("date detection", func(t *testing.T) {
		dm := newTestMapper(t, reg, `{}`)
		doc, err := parseBody(p, dm, `{"when": "2015-01-01T12:10:30Z", "plain": "hello"}`)
		require.NoError(t, err)

		when, ok := doc.DynamicUpdate.Mapper("when").(*FieldMapper)
		require.True(t, ok)
		assert.Equal(t, TypeDate, when.TypeName())
		assert.Equal(t, "strict_date_optional_time", when.Options().Format)
		assert.Equal(t, []any{int64(1420114230000)}, values(doc.RootDoc(), "when"))
	})

	t.Run("date detection off", func(t *testing.T) {
		dm := newTestMapper(t, reg, `{"date_detection": false}`)
		doc, err := parseBody(p, dm, `{"when": "2015-01-01T12:10:30Z"}`)
		require.NoError(t, err)
		when, ok := doc.DynamicUpdate.Mapper("when").(*FieldMapper)
		require.True(t, ok)
		assert.Equal(t, TypeText, when.TypeName())
	})

	t.Run("numeric detection", func(t *testing.T) {
		dm := newTestMapper(t, reg, `{"numeric_detection": true}`)
		doc, err := parseBody(p, dm, `{"n": "12", "f": "1.5"}`)
		require.NoError(t, err)
		n, ok := doc.DynamicUpdate.Mapper("n").(*FieldMapper)
		require.True(t, ok)
		assert.Equal(t, TypeLong, n.TypeName())
		f, ok := doc.DynamicUpdate.Mapper("f").(*FieldMapper)
		require.True(t, ok)
		assert.Equal(t, TypeFloat, f.TypeName())
		assert.Equal(t, []any{int64(12)}, values(doc.RootDoc(), "n"))
	})
}

type staticLookup map[string]*FieldMapper

func (l staticLookup) LookupField(name string) (*FieldMapper, bool) {
	f, ok := l[name]
	return f, ok
}

func TestParseReusesIndexWideFieldType(t *testing.T) {
	reg := NewRegistry()
	other := newTestMapper(t, reg, `{"properties": {"foo": {"type": "keyword", "ignore_above": 5}}}`)
	existing, ok := other.LookupField("foo")
	require.True(t, ok)

	p := NewDocumentParser(reg, staticLookup{"foo": existing}, ParserConfig{})
	dm := newTestMapper(t, reg, `{}`)

	doc, err := parseBody(p, dm, `{"foo": "toolongvalue"}`)
	require.NoError(t, err)
	foo, ok := doc.DynamicUpdate.Mapper("foo").(*FieldMapper)
	require.True(t, ok)
	assert.Equal(t, TypeKeyword, foo.TypeName())
	assert.Equal(t, 5, foo.Options().IgnoreAbove)
	assert.Empty(t, doc.RootDoc().GetAll("foo"), "value above ignore_above is not indexed")
}

func TestParseErrors(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{"properties": {
		"obj": {"properties": {"x": {"type": "long"}}},
		"n": {"type": "integer"},
		"big": {"type": "long"},
		"off": {"enabled": false}
	}}`)

	tests := []struct {
		name     string
		body     string
		sentinel error
		contains string
	}{
		{name: "empty", body: "", sentinel: apperrors.ErrMalformedContent, contains: "document is empty"},
		{name: "not an object", body: `[1, 2]`, sentinel: apperrors.ErrMalformedContent, contains: "must start with an object"},
		{name: "trailing data", body: `{"a": 1} {"b": 2}`, sentinel: apperrors.ErrMalformedContent, contains: "found extra data after parsing"},
		{name: "value for object", body: `{"obj": "str"}`, sentinel: apperrors.ErrMalformedContent, contains: "tried to parse field [obj] as object, but found a concrete value"},
		{name: "truncated", body: `{"obj": {"x": 1}`, sentinel: apperrors.ErrMalformedContent, contains: "but got EOF"},
		{name: "bad number", body: `{"n": "abc"}`, sentinel: apperrors.ErrMalformedContent, contains: "failed to parse [n]"},
		{name: "out of range", body: `{"n": 3000000000}`, sentinel: apperrors.ErrMalformedContent, contains: "out of range"},
		{name: "long overflow", body: `{"big": 9223372036854775808}`, sentinel: apperrors.ErrMalformedContent, contains: "out of range for [long]"},
		{name: "coerced long overflow", body: `{"big": "9.3e18"}`, sentinel: apperrors.ErrMalformedContent, contains: "out of range for [long]"},
		{name: "metadata field", body: `{"_id": "x"}`, sentinel: apperrors.ErrIllegalArgument, contains: "is a metadata field"},
		{name: "dotted key under object", body: `{"obj.x": 1}`, sentinel: apperrors.ErrMalformedContent, contains: "field name [obj.x]"},
		{name: "dotted new key", body: `{"q.r": 1}`, sentinel: apperrors.ErrMalformedContent, contains: "cannot contain '.'"},
		{name: "dotted inner key", body: `{"obj": {"y.z": "v"}}`, sentinel: apperrors.ErrMalformedContent, contains: "field name [y.z] in [obj] cannot contain '.'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseBody(p, dm, tt.body)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Contains(t, err.Error(), "index [test], type [doc], id [1]")
			assert.False(t, IsRetryable(err))
		})
	}

	t.Run("disabled object is skipped", func(t *testing.T) {
		doc, err := parseBody(p, dm, `{"off": {"anything": [1, {"deep": true}]}}`)
		require.NoError(t, err)
		assert.Nil(t, doc.DynamicUpdate)
	})
}

func TestParseTypeValidation(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{}`)

	_, err := p.Parse(dm, SourceToParse{Type: "other", Source: []byte(`{"a": 1}`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type mismatch, provide type [other] but mapper is of type [doc]")

	root, err := reg.ParseMapping(DefaultMappingType, []byte(`{}`))
	require.NoError(t, err)
	def, err := NewDocumentMapper(root, 1)
	require.NoError(t, err)
	_, err = p.Parse(def, SourceToParse{Source: []byte(`{"a": 1}`)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrIllegalArgument))
}

func TestParseDisabledRoot(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{"enabled": false}`)

	doc, err := parseBody(p, dm, `{"a": {"b": [1, 2]}}`)
	require.NoError(t, err)
	require.Len(t, doc.Docs, 1)
	assert.Nil(t, doc.DynamicUpdate)
	assert.Empty(t, doc.RootDoc().GetAll("a.b"))
}

func TestParseYAMLSource(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{}`)

	src := []byte("title: hello\ncount: 3\nratio: 0.5\ntags:\n  - a\n  - b\nowner:\n  name: x\n")
	doc, err := p.Parse(dm, SourceToParse{Type: "doc", ID: "y", Format: FormatYAML, Source: src})
	require.NoError(t, err)

	root := doc.RootDoc()
	assert.Equal(t, []any{"hello"}, values(root, "title"))
	assert.Equal(t, []any{int64(3)}, values(root, "count"))
	assert.Equal(t, []any{"a", "b"}, values(root, "tags"))
	assert.Equal(t, []any{"x"}, values(root, "owner.name"))
}

func TestParseWithExternalReader(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{}`)

	r := NewJSONBytesReader([]byte(`{"a": 1} {"ignored": true}`))
	doc, err := p.Parse(dm, SourceToParse{Type: "doc", Reader: r})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1)}, values(doc.RootDoc(), "a"))
	assert.Empty(t, doc.UID)
}

func TestParseDiscoveryMergesIntoSchema(t *testing.T) {
	reg, p := newTestParser()
	dm := newTestMapper(t, reg, `{}`)

	doc, err := parseBody(p, dm, `{"a": {"b": "x"}, "n": 1}`)
	require.NoError(t, err)

	next, err := dm.Merge(doc.DynamicUpdate)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.Version())

	again, err := next.Merge(doc.DynamicUpdate)
	require.NoError(t, err)
	assert.Equal(t, next.Mapping(), again.Mapping())

	doc, err = parseBody(p, next, `{"a": {"b": "y"}, "n": 2}`)
	require.NoError(t, err)
	assert.Nil(t, doc.DynamicUpdate, "known fields produce no update")
}

func TestParseConcurrent(t *testing.T) {
	reg := NewRegistry()
	p := NewDocumentParser(reg, nil, ParserConfig{ContextPoolSize: 4})
	dm := newTestMapper(t, reg, `{"properties": {"items": {"type": "nested"}}}`)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := fmt.Sprintf(`{"id": %d, "items": [{"v": "x%d"}], "obj": {"k": "v"}}`, i, i)
			doc, err := p.Parse(dm, SourceToParse{Type: "doc", ID: fmt.Sprint(i), Source: []byte(body)})
			if err != nil {
				errs <- err
				return
			}
			if len(doc.Docs) != 2 || doc.DynamicUpdate == nil {
				errs <- fmt.Errorf("doc %d: unexpected result", i)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.LessOrEqual(t, p.pool.Len(), 4)
}
