package mapper

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
)

// Kind identifies the variant of a mapper.
type Kind int

const (
	KindField Kind = iota
	KindObject
	KindRoot
)

func (k Kind) String() string {
	switch k {
	case KindField:
		return "field"
	case KindObject:
		return "object"
	case KindRoot:
		return "root"
	}
	return "unknown"
}

// Mapper is an immutable schema node. The set of implementations is closed:
// *FieldMapper and *ObjectMapper.
type Mapper interface {
	// Name is the full dotted path of the mapper.
	Name() string
	SimpleName() string
	Kind() Kind
	isMapper()
}

// Dynamic controls how unmapped fields below an object are handled.
type Dynamic int

const (
	// DynamicInherit defers to the nearest ancestor that sets a mode.
	DynamicInherit Dynamic = iota
	DynamicTrue
	DynamicFalse
	DynamicStrict
)

func (d Dynamic) String() string {
	switch d {
	case DynamicTrue:
		return "true"
	case DynamicFalse:
		return "false"
	case DynamicStrict:
		return "strict"
	}
	return "inherit"
}

// ParseDynamic accepts true, false or strict as a bool or a string.
func ParseDynamic(v any) (Dynamic, error) {
	switch t := v.(type) {
	case bool:
		if t {
			return DynamicTrue, nil
		}
		return DynamicFalse, nil
	case string:
		switch strings.ToLower(t) {
		case "true":
			return DynamicTrue, nil
		case "false":
			return DynamicFalse, nil
		case "strict":
			return DynamicStrict, nil
		}
	}
	return DynamicInherit, fmt.Errorf("%w: unknown dynamic value [%v]", apperrors.ErrIllegalArgument, v)
}

func dynamicOrDefault(d Dynamic) Dynamic {
	if d == DynamicInherit {
		return DynamicTrue
	}
	return d
}

func (d Dynamic) value() any {
	switch d {
	case DynamicTrue:
		return true
	case DynamicFalse:
		return false
	case DynamicStrict:
		return "strict"
	}
	return nil
}

// Nested describes whether an object produces its own sub-document.
type Nested struct {
	Nested          bool
	IncludeInParent bool
	IncludeInRoot   bool
}

// RootSettings holds the schema-wide options carried by the root object.
// Nil pointers mean the option was never set explicitly.
type RootSettings struct {
	Templates          []*DynamicTemplate
	DateDetection      *bool
	NumericDetection   *bool
	DynamicDateFormats []string
}

var defaultDynamicDateFormats = []string{
	"strict_date_optional_time",
	"yyyy/MM/dd HH:mm:ss Z||yyyy/MM/dd Z",
}

// DefaultDynamicDateFormats returns the formats tried by date detection when
// the root does not override them.
func DefaultDynamicDateFormats() []string {
	return append([]string(nil), defaultDynamicDateFormats...)
}

func (s *RootSettings) dateDetection() bool {
	if s == nil || s.DateDetection == nil {
		return true
	}
	return *s.DateDetection
}

func (s *RootSettings) numericDetection() bool {
	if s == nil || s.NumericDetection == nil {
		return false
	}
	return *s.NumericDetection
}

func (s *RootSettings) dateFormats() []string {
	if s == nil || s.DynamicDateFormats == nil {
		return defaultDynamicDateFormats
	}
	return s.DynamicDateFormats
}

func (s *RootSettings) clone() *RootSettings {
	if s == nil {
		return nil
	}
	c := *s
	c.Templates = append([]*DynamicTemplate(nil), s.Templates...)
	if s.DynamicDateFormats != nil {
		c.DynamicDateFormats = append(make([]string, 0, len(s.DynamicDateFormats)), s.DynamicDateFormats...)
	}
	return &c
}

// merge applies other on top of s. Templates with the same name are
// replaced in place, new ones are appended.
func (s *RootSettings) merge(other *RootSettings) *RootSettings {
	out := s.clone()
	if out == nil {
		out = &RootSettings{}
	}
	if other == nil {
		return out
	}
	for _, t := range other.Templates {
		replaced := false
		for i, cur := range out.Templates {
			if cur.Name == t.Name {
				out.Templates[i] = t
				replaced = true
				break
			}
		}
		if !replaced {
			out.Templates = append(out.Templates, t)
		}
	}
	if other.DateDetection != nil {
		out.DateDetection = other.DateDetection
	}
	if other.NumericDetection != nil {
		out.NumericDetection = other.NumericDetection
	}
	if other.DynamicDateFormats != nil {
		out.DynamicDateFormats = append(make([]string, 0, len(other.DynamicDateFormats)), other.DynamicDateFormats...)
	}
	return out
}

// ObjectMapper is an inner node of the mapping tree. The root of a type is an
// ObjectMapper with non-nil root settings and an empty full name.
type ObjectMapper struct {
	name       string
	simpleName string
	dynamic    Dynamic
	enabled    bool
	nested     Nested
	children   map[string]Mapper
	root       *RootSettings
}

func (o *ObjectMapper) isMapper() {}

func (o *ObjectMapper) Name() string       { return o.name }
func (o *ObjectMapper) SimpleName() string { return o.simpleName }

func (o *ObjectMapper) Kind() Kind {
	if o.root != nil {
		return KindRoot
	}
	return KindObject
}

func (o *ObjectMapper) IsRoot() bool        { return o.root != nil }
func (o *ObjectMapper) Dynamic() Dynamic    { return o.dynamic }
func (o *ObjectMapper) Enabled() bool       { return o.enabled }
func (o *ObjectMapper) Nested() Nested      { return o.nested }
func (o *ObjectMapper) Root() *RootSettings { return o.root }

// Mapper returns the direct child called simpleName, or nil.
func (o *ObjectMapper) Mapper(simpleName string) Mapper {
	return o.children[simpleName]
}

// Children returns the direct children sorted by simple name.
func (o *ObjectMapper) Children() []Mapper {
	out := make([]Mapper, 0, len(o.children))
	for _, m := range o.children {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SimpleName() < out[j].SimpleName() })
	return out
}

// nestedTypePath is the _type marker given to nested sub-documents.
func (o *ObjectMapper) nestedTypePath() string {
	return nestedTypePrefix + o.name
}

func (o *ObjectMapper) clone() *ObjectMapper {
	c := *o
	c.children = make(map[string]Mapper, len(o.children))
	for k, v := range o.children {
		c.children[k] = v
	}
	c.root = o.root.clone()
	return &c
}

// mappingUpdate returns a copy of o whose only child is m. Dynamic
// templates are dropped from root copies since an update never changes them.
func (o *ObjectMapper) mappingUpdate(m Mapper) *ObjectMapper {
	c := *o
	c.children = map[string]Mapper{m.SimpleName(): m}
	if o.root != nil {
		c.root = o.root.clone()
		c.root.Templates = nil
	}
	return &c
}

// Merge returns a new tree holding the union of o and other. Neither input is
// modified.
func (o *ObjectMapper) Merge(other *ObjectMapper) (*ObjectMapper, error) {
	if o.nested.Nested != other.nested.Nested {
		if o.nested.Nested {
			return nil, conflictf("object mapping [%s] can't be changed from nested to non-nested", o.name)
		}
		return nil, conflictf("object mapping [%s] can't be changed from non-nested to nested", o.name)
	}
	out := o.clone()
	if other.dynamic != DynamicInherit {
		out.dynamic = other.dynamic
	}
	if out.root != nil || other.root != nil {
		out.root = out.root.merge(other.root)
	}
	for name, child := range other.children {
		cur, ok := out.children[name]
		if !ok {
			out.children[name] = child
			continue
		}
		merged, err := mergeMappers(cur, child)
		if err != nil {
			return nil, err
		}
		out.children[name] = merged
	}
	return out, nil
}

func mergeMappers(cur, other Mapper) (Mapper, error) {
	switch c := cur.(type) {
	case *ObjectMapper:
		o, ok := other.(*ObjectMapper)
		if !ok {
			return nil, conflictf("can't merge a non object mapping [%s] with an object mapping [%s]", other.Name(), cur.Name())
		}
		return c.Merge(o)
	case *FieldMapper:
		f, ok := other.(*FieldMapper)
		if !ok {
			return nil, conflictf("can't merge a non object mapping [%s] with an object mapping [%s]", cur.Name(), other.Name())
		}
		return c.merge(f)
	}
	return nil, fmt.Errorf("%w: unknown mapper kind for [%s]", apperrors.ErrInternal, cur.Name())
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrMappingConflict, fmt.Sprintf(format, args...))
}

// FieldOptions are the indexing options of a leaf field.
type FieldOptions struct {
	Index       bool
	Store       bool
	DocValues   bool
	Analyzer    string
	Format      string
	IgnoreAbove int
	NullValue   any
	Boost       float64
	Coerce      bool
}

// FieldMapper is a leaf of the mapping tree.
type FieldMapper struct {
	name        string
	simpleName  string
	fieldType   FieldType
	opts        FieldOptions
	multiFields map[string]*FieldMapper
	copyTo      []string
}

func (f *FieldMapper) isMapper() {}

func (f *FieldMapper) Name() string          { return f.name }
func (f *FieldMapper) SimpleName() string    { return f.simpleName }
func (f *FieldMapper) Kind() Kind            { return KindField }
func (f *FieldMapper) Type() FieldType       { return f.fieldType }
func (f *FieldMapper) TypeName() string      { return f.fieldType.Name() }
func (f *FieldMapper) Options() FieldOptions { return f.opts }
func (f *FieldMapper) CopyTo() []string      { return f.copyTo }

// MultiFields returns the sub-fields sorted by simple name.
func (f *FieldMapper) MultiFields() []*FieldMapper {
	out := make([]*FieldMapper, 0, len(f.multiFields))
	for _, m := range f.multiFields {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].simpleName < out[j].simpleName })
	return out
}

func (f *FieldMapper) clone() *FieldMapper {
	c := *f
	c.copyTo = append([]string(nil), f.copyTo...)
	if f.multiFields != nil {
		c.multiFields = make(map[string]*FieldMapper, len(f.multiFields))
		for k, v := range f.multiFields {
			c.multiFields[k] = v
		}
	}
	return &c
}

func (f *FieldMapper) merge(other *FieldMapper) (*FieldMapper, error) {
	if f.fieldType.Name() != other.fieldType.Name() {
		return nil, conflictf("mapper [%s] of different type, current_type [%s], merged_type [%s]",
			f.name, f.fieldType.Name(), other.fieldType.Name())
	}
	out := f.clone()
	out.opts = other.opts
	if len(other.copyTo) > 0 {
		out.copyTo = append([]string(nil), other.copyTo...)
	}
	for name, sub := range other.multiFields {
		if out.multiFields == nil {
			out.multiFields = make(map[string]*FieldMapper)
		}
		cur, ok := out.multiFields[name]
		if !ok {
			out.multiFields[name] = sub
			continue
		}
		merged, err := cur.merge(sub)
		if err != nil {
			return nil, err
		}
		out.multiFields[name] = merged
	}
	return out, nil
}

// withOptions returns a copy of f using the options and sub-field options of
// existing, which must have the same type.
func (f *FieldMapper) withOptions(existing *FieldMapper) *FieldMapper {
	out := f.clone()
	out.opts = existing.opts
	for name, sub := range out.multiFields {
		if es, ok := existing.multiFields[name]; ok && es.fieldType.Name() == sub.fieldType.Name() {
			out.multiFields[name] = sub.withOptions(es)
		}
	}
	return out
}

func (f *FieldMapper) String() string {
	return f.name + "[" + f.fieldType.Name() + "]"
}

func (o *ObjectMapper) String() string {
	if o.root != nil {
		return "root[" + o.simpleName + "]"
	}
	return o.name + "[object:" + strconv.Itoa(len(o.children)) + "]"
}
