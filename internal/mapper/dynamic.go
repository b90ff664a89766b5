package mapper

import (
	"errors"
	"strconv"
	"strings"
)

const defaultKeywordIgnoreAbove = 256

// dynamicFor resolves the effective dynamic mode of o: its own mode, else
// the nearest ancestor's, else the root's, else true.
func (c *ParseContext) dynamicFor(o *ObjectMapper) Dynamic {
	for cur := o; cur != nil && !cur.IsRoot(); cur = c.parentObject(cur.name) {
		if cur.dynamic != DynamicInherit {
			return cur.dynamic
		}
	}
	return dynamicOrDefault(c.Root().dynamic)
}

func (c *ParseContext) parentObject(fullPath string) *ObjectMapper {
	i := strings.LastIndexByte(fullPath, '.')
	if i < 0 {
		return c.Root()
	}
	if o, ok := c.objectMapper(fullPath[:i]); ok {
		return o
	}
	return c.Root()
}

// findTemplateBuilder returns a builder from the first dynamic template
// matching name under the current path, or nil. matchType is compared with
// match_mapping_type; dynamicType fills {dynamic_type} and is the type used
// when the template mapping names none.
func (c *ParseContext) findTemplateBuilder(name, dynamicType, matchType string) (Builder, error) {
	settings := c.rootSettings()
	if settings == nil || len(settings.Templates) == 0 {
		return nil, nil
	}
	path := c.path.PathAsText(name)
	for _, t := range settings.Templates {
		if !t.Matches(path, name, matchType) {
			continue
		}
		mappingType := t.MappingType(dynamicType)
		if mappingType == "" {
			return nil, forbiddenf(path, "dynamic template [%s] declares no type and none can be derived for field [%s]", t.Name, path)
		}
		def := t.MappingForName(name, dynamicType)
		def["type"] = mappingType
		b, err := c.registry().BuilderFromDefinition(name, def)
		if err != nil {
			return nil, &ParsingError{
				Kind:    KindForbidden,
				Field:   path,
				Message: "failed to apply dynamic template [" + t.Name + "] to field [" + path + "]",
				Cause:   err,
			}
		}
		return b, nil
	}
	return nil, nil
}

func (c *ParseContext) templateOr(name, dynamicType, matchType string, fallback func() Builder) (Builder, error) {
	b, err := c.findTemplateBuilder(name, dynamicType, matchType)
	if err != nil || b != nil {
		return b, err
	}
	return fallback(), nil
}

func (c *ParseContext) fieldBuilder(name, typeName string) *FieldBuilder {
	return NewFieldBuilder(name, c.registry().mustLookup(typeName))
}

// defaultTextBuilder is a text field with a keyword sub-field for exact
// matching.
func (c *ParseContext) defaultTextBuilder(name string) Builder {
	ignoreAbove := c.st.settings.KeywordIgnoreAbove
	if ignoreAbove <= 0 {
		ignoreAbove = defaultKeywordIgnoreAbove
	}
	return c.fieldBuilder(name, TypeText).
		AddMultiField(c.fieldBuilder("keyword", TypeKeyword).IgnoreAbove(ignoreAbove))
}

// builderFromFieldType returns a builder of the same type as an existing
// field of the same full name, or nil when the type has no dynamic builder.
func (c *ParseContext) builderFromFieldType(existing *FieldMapper, name string) (Builder, error) {
	switch t := existing.TypeName(); t {
	case TypeText:
		return c.templateOr(name, TypeText, "string", func() Builder { return c.defaultTextBuilder(name) })
	case TypeKeyword:
		return c.templateOr(name, TypeKeyword, "string", func() Builder { return c.fieldBuilder(name, TypeKeyword) })
	case TypeDate, TypeLong, TypeDouble, TypeInteger, TypeFloat:
		return c.templateOr(name, t, t, func() Builder { return c.fieldBuilder(name, t) })
	}
	return nil, nil
}

// builderFromDynamicValue infers a builder from the token alone.
func (c *ParseContext) builderFromDynamicValue(tok Token, name string) (Builder, error) {
	r := c.Reader()
	switch tok {
	case TokenValueString:
		if b, err := c.findTemplateBuilder(name, TypeText, ""); err != nil || b != nil {
			return b, err
		}
		text := r.Text()
		settings := c.rootSettings()
		if settings.dateDetection() && looksLikeDate(text) {
			for _, format := range settings.dateFormats() {
				f, err := NewDateFormatter(format)
				if err != nil {
					continue
				}
				if _, err := f.ParseMillis(text); err != nil {
					continue
				}
				return c.templateOr(name, TypeDate, TypeDate, func() Builder {
					return c.fieldBuilder(name, TypeDate).Format(format)
				})
			}
		}
		if settings.numericDetection() {
			if _, err := strconv.ParseInt(text, 10, 64); err == nil {
				return c.templateOr(name, TypeLong, TypeLong, func() Builder { return c.fieldBuilder(name, TypeLong) })
			}
			if _, err := strconv.ParseFloat(text, 64); err == nil {
				return c.templateOr(name, TypeDouble, TypeDouble, func() Builder { return c.fieldBuilder(name, TypeFloat) })
			}
		}
		return c.templateOr(name, "string", "string", func() Builder { return c.defaultTextBuilder(name) })
	case TokenValueNumber:
		switch r.NumberType() {
		case NumberInt, NumberLong:
			return c.templateOr(name, TypeLong, TypeLong, func() Builder { return c.fieldBuilder(name, TypeLong) })
		default:
			// float rather than double unless a template asks for more
			return c.templateOr(name, TypeDouble, TypeDouble, func() Builder { return c.fieldBuilder(name, TypeFloat) })
		}
	case TokenValueBoolean:
		return c.templateOr(name, TypeBoolean, TypeBoolean, func() Builder { return c.fieldBuilder(name, TypeBoolean) })
	case TokenValueEmbedded:
		return c.templateOr(name, TypeBinary, TypeBinary, func() Builder { return c.fieldBuilder(name, TypeBinary) })
	}
	b, err := c.findTemplateBuilder(name, "", "")
	if err != nil || b != nil {
		return b, err
	}
	return nil, malformedf(c.path.PathAsText(name),
		"can't handle serializing a dynamic type with content token [%s] and field name [%s]", tok, name)
}

// parseDynamicValue handles a value for which parent has no mapper.
func parseDynamicValue(ctx *ParseContext, parent *ObjectMapper, name string, tok Token) error {
	switch ctx.dynamicFor(parent) {
	case DynamicStrict:
		return strictError(parent, name)
	case DynamicFalse:
		return nil
	}
	path := ctx.path.PathAsText(name)
	existing, hasExisting := ctx.lookupField(path)
	var b Builder
	var err error
	if hasExisting {
		if b, err = ctx.builderFromFieldType(existing, name); err != nil {
			return err
		}
	}
	if b == nil {
		if b, err = ctx.builderFromDynamicValue(tok, name); err != nil {
			return err
		}
	}
	m, err := b.Build(NewBuilderContext(ctx.path))
	if err != nil {
		return buildError(path, err)
	}
	if hasExisting {
		m = reconcile(m, existing)
	}
	ctx.AddDynamicMapper(m)
	return parseObjectOrField(ctx, m)
}

// reconcile adopts the options of an existing field with the same full name
// so a dynamic mapper never redefines it differently.
func reconcile(m Mapper, existing *FieldMapper) Mapper {
	fm, ok := m.(*FieldMapper)
	if !ok || fm.TypeName() != existing.TypeName() {
		return m
	}
	return fm.withOptions(existing)
}

func buildError(path string, err error) error {
	var pe *ParsingError
	if errors.As(err, &pe) {
		return pe
	}
	return &ParsingError{Kind: KindForbidden, Field: path, Message: "failed to build mapper for [" + path + "]", Cause: err}
}
