package mapper

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
)

// BuilderContext carries the object path a builder is evaluated under.
type BuilderContext struct {
	path *ContentPath
}

func NewBuilderContext(path *ContentPath) BuilderContext {
	if path == nil {
		path = NewContentPath()
	}
	return BuilderContext{path: path}
}

// Builder produces an immutable Mapper.
type Builder interface {
	Name() string
	Build(ctx BuilderContext) (Mapper, error)
}

// FieldBuilder builds a FieldMapper.
type FieldBuilder struct {
	name        string
	fieldType   FieldType
	opts        FieldOptions
	multiFields []*FieldBuilder
	copyTo      []string
}

func NewFieldBuilder(name string, t FieldType) *FieldBuilder {
	return &FieldBuilder{name: name, fieldType: t, opts: t.Defaults()}
}

func (b *FieldBuilder) Name() string { return b.name }

func (b *FieldBuilder) Index(v bool) *FieldBuilder      { b.opts.Index = v; return b }
func (b *FieldBuilder) Store(v bool) *FieldBuilder      { b.opts.Store = v; return b }
func (b *FieldBuilder) DocValues(v bool) *FieldBuilder  { b.opts.DocValues = v; return b }
func (b *FieldBuilder) Analyzer(v string) *FieldBuilder { b.opts.Analyzer = v; return b }
func (b *FieldBuilder) Format(v string) *FieldBuilder   { b.opts.Format = v; return b }
func (b *FieldBuilder) IgnoreAbove(v int) *FieldBuilder { b.opts.IgnoreAbove = v; return b }
func (b *FieldBuilder) NullValue(v any) *FieldBuilder   { b.opts.NullValue = v; return b }
func (b *FieldBuilder) Boost(v float64) *FieldBuilder   { b.opts.Boost = v; return b }
func (b *FieldBuilder) Coerce(v bool) *FieldBuilder     { b.opts.Coerce = v; return b }

func (b *FieldBuilder) AddMultiField(sub *FieldBuilder) *FieldBuilder {
	b.multiFields = append(b.multiFields, sub)
	return b
}

func (b *FieldBuilder) CopyTo(fields ...string) *FieldBuilder {
	b.copyTo = append(b.copyTo, fields...)
	return b
}

func (b *FieldBuilder) Build(ctx BuilderContext) (Mapper, error) {
	return b.build(ctx)
}

func (b *FieldBuilder) build(ctx BuilderContext) (*FieldMapper, error) {
	if b.name == "" {
		return nil, fmt.Errorf("%w: field name cannot be empty", apperrors.ErrIllegalArgument)
	}
	fm := &FieldMapper{
		name:       ctx.path.PathAsText(b.name),
		simpleName: b.name,
		fieldType:  b.fieldType,
		opts:       b.opts,
		copyTo:     append([]string(nil), b.copyTo...),
	}
	if len(b.multiFields) > 0 {
		fm.multiFields = make(map[string]*FieldMapper, len(b.multiFields))
		ctx.path.Add(b.name)
		defer ctx.path.Remove()
		for _, sub := range b.multiFields {
			if len(sub.multiFields) > 0 {
				return nil, fmt.Errorf("%w: multi-field [%s] of [%s] cannot declare its own fields", apperrors.ErrIllegalArgument, sub.name, fm.name)
			}
			m, err := sub.build(ctx)
			if err != nil {
				return nil, err
			}
			fm.multiFields[sub.name] = m
		}
	}
	return fm, nil
}

// ObjectBuilder builds an ObjectMapper, or the root of a type when created
// through NewRootBuilder.
type ObjectBuilder struct {
	name     string
	dynamic  Dynamic
	enabled  bool
	nested   Nested
	children []Builder
	root     *RootSettings
}

func NewObjectBuilder(name string) *ObjectBuilder {
	return &ObjectBuilder{name: name, enabled: true}
}

func NewRootBuilder(typeName string) *ObjectBuilder {
	return &ObjectBuilder{name: typeName, enabled: true, root: &RootSettings{}}
}

func (b *ObjectBuilder) Name() string { return b.name }

func (b *ObjectBuilder) Dynamic(d Dynamic) *ObjectBuilder { b.dynamic = d; return b }
func (b *ObjectBuilder) Enabled(v bool) *ObjectBuilder    { b.enabled = v; return b }
func (b *ObjectBuilder) Nested(n Nested) *ObjectBuilder   { b.nested = n; return b }

func (b *ObjectBuilder) Add(child Builder) *ObjectBuilder {
	b.children = append(b.children, child)
	return b
}

// Settings returns the root settings, or nil for a non-root builder.
func (b *ObjectBuilder) Settings() *RootSettings { return b.root }

func (b *ObjectBuilder) Build(ctx BuilderContext) (Mapper, error) {
	return b.build(ctx)
}

func (b *ObjectBuilder) build(ctx BuilderContext) (*ObjectMapper, error) {
	if b.name == "" {
		return nil, fmt.Errorf("%w: object name cannot be empty", apperrors.ErrIllegalArgument)
	}
	om := &ObjectMapper{
		simpleName: b.name,
		dynamic:    b.dynamic,
		enabled:    b.enabled,
		nested:     b.nested,
		children:   make(map[string]Mapper, len(b.children)),
	}
	if b.root != nil {
		om.root = b.root.clone()
	} else {
		om.name = ctx.path.PathAsText(b.name)
		ctx.path.Add(b.name)
		defer ctx.path.Remove()
	}
	for _, child := range b.children {
		if _, dup := om.children[child.Name()]; dup {
			return nil, fmt.Errorf("%w: field [%s] is declared twice in [%s]", apperrors.ErrIllegalArgument, child.Name(), om.name)
		}
		m, err := child.Build(ctx)
		if err != nil {
			return nil, err
		}
		om.children[child.Name()] = m
	}
	return om, nil
}

// BuildRoot builds a root builder into its ObjectMapper.
func (b *ObjectBuilder) BuildRoot() (*ObjectMapper, error) {
	if b.root == nil {
		return nil, fmt.Errorf("%w: [%s] is not a root builder", apperrors.ErrInternal, b.name)
	}
	return b.build(NewBuilderContext(nil))
}
