package mapper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
)

// DefaultMappingType is the template type that documents may never be
// indexed into.
const DefaultMappingType = "_default_"

const maxTypeNameBytes = 255

// ValidateTypeName checks the naming rules for mapping types.
func ValidateTypeName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: mapping type name is empty", apperrors.ErrIllegalArgument)
	case len(name) > maxTypeNameBytes:
		return fmt.Errorf("%w: mapping type name [%s] is too long; limit is length %d but was [%d]",
			apperrors.ErrIllegalArgument, name, maxTypeNameBytes, len(name))
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: mapping type name [%s] must not start with a '.'", apperrors.ErrIllegalArgument, name)
	case strings.Contains(name, "#"):
		return fmt.Errorf("%w: mapping type name [%s] should not include '#' in it", apperrors.ErrIllegalArgument, name)
	case strings.HasPrefix(name, "_") && name != DefaultMappingType:
		return fmt.Errorf("%w: mapping type name [%s] can't start with '_'", apperrors.ErrIllegalArgument, name)
	}
	return nil
}

var (
	genericFieldParams = map[string]bool{
		"type": true, "index": true, "store": true, "doc_values": true, "boost": true,
		"null_value": true, "copy_to": true, "fields": true,
	}
	typeFieldParams = map[string]map[string]bool{
		TypeText:    {"analyzer": true, "search_analyzer": true},
		TypeKeyword: {"ignore_above": true},
		TypeDate:    {"format": true},
		TypeLong:    {"coerce": true},
		TypeInteger: {"coerce": true},
		TypeShort:   {"coerce": true},
		TypeByte:    {"coerce": true},
		TypeDouble:  {"coerce": true},
		TypeFloat:   {"coerce": true},
	}
)

// ParseMapping parses a JSON mapping definition for typeName. The body may
// be wrapped in a single key object named after the type.
func (r *Registry) ParseMapping(typeName string, src []byte) (*ObjectMapper, error) {
	def, err := decodeDefinition(src)
	if err != nil {
		return nil, err
	}
	if len(def) == 1 {
		if body, ok := asMap(def[typeName]); ok {
			def = body
		}
	}
	return r.ParseRoot(typeName, def)
}

func decodeDefinition(src []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(src)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(src))
	dec.UseNumber()
	var def map[string]any
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("%w: mapping definition is not a json object: %v", apperrors.ErrMalformedContent, err)
	}
	return def, nil
}

// ParseRoot parses an already decoded root definition.
func (r *Registry) ParseRoot(typeName string, def map[string]any) (*ObjectMapper, error) {
	if err := ValidateTypeName(typeName); err != nil {
		return nil, err
	}
	b := NewRootBuilder(typeName)
	var unsupported []string
	for key, v := range def {
		var err error
		switch key {
		case "dynamic":
			var d Dynamic
			if d, err = ParseDynamic(normalizeBool(v)); err == nil {
				b.Dynamic(d)
			}
		case "enabled":
			var on bool
			if on, err = toBool(key, v); err == nil {
				b.Enabled(on)
			}
		case "type":
			if s, _ := v.(string); s != TypeObject {
				err = fmt.Errorf("%w: root type [%s] can only be an object", apperrors.ErrIllegalArgument, typeName)
			}
		case "properties":
			err = r.parseProperties(b, v)
		case "dynamic_templates":
			b.root.Templates, err = parseTemplates(v)
		case "date_detection":
			var on bool
			if on, err = toBool(key, v); err == nil {
				b.root.DateDetection = &on
			}
		case "numeric_detection":
			var on bool
			if on, err = toBool(key, v); err == nil {
				b.root.NumericDetection = &on
			}
		case "dynamic_date_formats":
			b.root.DynamicDateFormats, err = parseDateFormats(v)
		default:
			if IsMetadataField(key) {
				continue
			}
			unsupported = append(unsupported, key)
		}
		if err != nil {
			return nil, err
		}
	}
	if len(unsupported) > 0 {
		sort.Strings(unsupported)
		return nil, fmt.Errorf("%w: root mapping definition has unsupported parameters: %v", apperrors.ErrIllegalArgument, unsupported)
	}
	return b.BuildRoot()
}

func parseDateFormats(v any) ([]string, error) {
	var raw []any
	switch t := v.(type) {
	case string:
		raw = []any{t}
	case []any:
		raw = t
	default:
		return nil, fmt.Errorf("%w: dynamic_date_formats must be a string or a list", apperrors.ErrIllegalArgument)
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		s, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("%w: dynamic_date_formats entries must be strings", apperrors.ErrIllegalArgument)
		}
		if _, err := NewDateFormatter(s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *Registry) parseProperties(parent *ObjectBuilder, v any) error {
	props, ok := asMap(v)
	if !ok {
		return fmt.Errorf("%w: properties of [%s] must be an object", apperrors.ErrIllegalArgument, parent.name)
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		node, ok := asMap(props[name])
		if !ok {
			return fmt.Errorf("%w: expected map for property [%s] but got %T", apperrors.ErrIllegalArgument, name, props[name])
		}
		b, err := r.BuilderFromDefinition(name, node)
		if err != nil {
			return err
		}
		parent.Add(b)
	}
	return nil
}

// BuilderFromDefinition parses one property definition into a builder.
// A definition without a type is an object.
func (r *Registry) BuilderFromDefinition(name string, node map[string]any) (Builder, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: field name cannot be empty", apperrors.ErrIllegalArgument)
	}
	if strings.Contains(name, ".") {
		return nil, fmt.Errorf("%w: field name [%s] cannot contain '.'", apperrors.ErrIllegalArgument, name)
	}
	typeName := TypeObject
	if v, ok := node["type"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: type of field [%s] must be a string", apperrors.ErrIllegalArgument, name)
		}
		typeName = s
	}
	if typeName == TypeObject || typeName == TypeNested {
		return r.objectFromDefinition(name, typeName, node)
	}
	fb, err := r.NewFieldBuilder(name, typeName)
	if err != nil {
		return nil, err
	}
	return fb, r.applyFieldParams(fb, node)
}

func (r *Registry) objectFromDefinition(name, typeName string, node map[string]any) (*ObjectBuilder, error) {
	b := NewObjectBuilder(name)
	nested := Nested{Nested: typeName == TypeNested}
	var unsupported []string
	for key, v := range node {
		var err error
		switch key {
		case "type":
		case "dynamic":
			var d Dynamic
			if d, err = ParseDynamic(normalizeBool(v)); err == nil {
				b.Dynamic(d)
			}
		case "enabled":
			var on bool
			if on, err = toBool(key, v); err == nil {
				b.Enabled(on)
			}
		case "properties":
			err = r.parseProperties(b, v)
		case "include_in_parent", "include_in_root":
			if !nested.Nested {
				unsupported = append(unsupported, key)
				continue
			}
			var on bool
			if on, err = toBool(key, v); err == nil {
				if key == "include_in_parent" {
					nested.IncludeInParent = on
				} else {
					nested.IncludeInRoot = on
				}
			}
		default:
			unsupported = append(unsupported, key)
		}
		if err != nil {
			return nil, fmt.Errorf("field [%s]: %w", name, err)
		}
	}
	if len(unsupported) > 0 {
		sort.Strings(unsupported)
		return nil, fmt.Errorf("%w: mapping definition for [%s] has unsupported parameters: %v", apperrors.ErrIllegalArgument, name, unsupported)
	}
	return b.Nested(nested), nil
}

func (r *Registry) applyFieldParams(fb *FieldBuilder, node map[string]any) error {
	typeName := fb.fieldType.Name()
	_, builtin := typeFieldParams[typeName]
	isBuiltin := builtin || isBuiltinType(typeName)
	var unsupported []string
	for key, v := range node {
		if isBuiltin && !genericFieldParams[key] && !typeFieldParams[typeName][key] {
			unsupported = append(unsupported, key)
			continue
		}
		var err error
		switch key {
		case "type", "search_analyzer":
		case "index":
			var on bool
			if on, err = toIndexFlag(v); err == nil {
				fb.Index(on)
			}
		case "store":
			var on bool
			if on, err = toBool(key, v); err == nil {
				fb.Store(on)
			}
		case "doc_values":
			var on bool
			if on, err = toBool(key, v); err == nil {
				fb.DocValues(on)
			}
		case "coerce":
			var on bool
			if on, err = toBool(key, v); err == nil {
				fb.Coerce(on)
			}
		case "analyzer", "format":
			s, ok := v.(string)
			if !ok {
				err = fmt.Errorf("%w: [%s] must be a string", apperrors.ErrIllegalArgument, key)
			} else if key == "analyzer" {
				fb.Analyzer(s)
			} else {
				if _, err = NewDateFormatter(s); err == nil {
					fb.Format(s)
				}
			}
		case "ignore_above":
			var n int
			if n, err = toInt(key, v); err == nil {
				fb.IgnoreAbove(n)
			}
		case "boost":
			var f float64
			if f, err = toFloat(key, v); err == nil {
				fb.Boost(f)
			}
		case "null_value":
			if v == nil {
				err = fmt.Errorf("%w: property [null_value] cannot be null", apperrors.ErrIllegalArgument)
			} else {
				fb.NullValue(v)
			}
		case "copy_to":
			var fields []string
			if fields, err = toStrings(key, v); err == nil {
				fb.CopyTo(fields...)
			}
		case "fields":
			err = r.parseMultiFields(fb, v)
		default:
			unsupported = append(unsupported, key)
		}
		if err != nil {
			return fmt.Errorf("field [%s]: %w", fb.name, err)
		}
	}
	if len(unsupported) > 0 {
		sort.Strings(unsupported)
		return fmt.Errorf("%w: mapping definition for [%s] has unsupported parameters: %v", apperrors.ErrIllegalArgument, fb.name, unsupported)
	}
	return nil
}

func (r *Registry) parseMultiFields(fb *FieldBuilder, v any) error {
	fields, ok := asMap(v)
	if !ok {
		return fmt.Errorf("%w: fields must be an object", apperrors.ErrIllegalArgument)
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		node, ok := asMap(fields[name])
		if !ok {
			return fmt.Errorf("%w: multi-field [%s] must be an object", apperrors.ErrIllegalArgument, name)
		}
		b, err := r.BuilderFromDefinition(name, node)
		if err != nil {
			return err
		}
		sub, ok := b.(*FieldBuilder)
		if !ok {
			return fmt.Errorf("%w: multi-field [%s] cannot be an object", apperrors.ErrIllegalArgument, name)
		}
		fb.AddMultiField(sub)
	}
	return nil
}

func isBuiltinType(name string) bool {
	for _, t := range builtinTypes() {
		if t.Name() == name {
			return true
		}
	}
	return false
}

func normalizeBool(v any) any {
	if s, ok := v.(string); ok {
		switch s {
		case "true":
			return true
		case "false":
			return false
		}
	}
	return v
}

func toBool(key string, v any) (bool, error) {
	switch t := normalizeBool(v).(type) {
	case bool:
		return t, nil
	}
	return false, fmt.Errorf("%w: [%s] must be a boolean, found [%v]", apperrors.ErrIllegalArgument, key, v)
}

// toIndexFlag also accepts the legacy analyzed / not_analyzed / no values.
func toIndexFlag(v any) (bool, error) {
	if s, ok := v.(string); ok {
		switch s {
		case "no":
			return false, nil
		case "analyzed", "not_analyzed":
			return true, nil
		}
	}
	return toBool("index", v)
}

func toFloat(key string, v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: [%s] must be a number, found [%v]", apperrors.ErrIllegalArgument, key, v)
}

func toInt(key string, v any) (int, error) {
	f, err := toFloat(key, v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return 0, fmt.Errorf("%w: [%s] must be a non negative integer, found [%v]", apperrors.ErrIllegalArgument, key, v)
	}
	return int(f), nil
}

func toStrings(key string, v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%w: [%s] entries must be strings", apperrors.ErrIllegalArgument, key)
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return t, nil
	}
	return nil, fmt.Errorf("%w: [%s] must be a string or a list of strings", apperrors.ErrIllegalArgument, key)
}

// ToMap renders the mapper as a definition that ParseRoot and
// BuilderFromDefinition accept.
func (o *ObjectMapper) ToMap() map[string]any {
	out := make(map[string]any)
	if o.dynamic != DynamicInherit {
		out["dynamic"] = o.dynamic.value()
	}
	if !o.enabled {
		out["enabled"] = false
	}
	if o.nested.Nested {
		out["type"] = TypeNested
		if o.nested.IncludeInParent {
			out["include_in_parent"] = true
		}
		if o.nested.IncludeInRoot {
			out["include_in_root"] = true
		}
	}
	if s := o.root; s != nil {
		if s.DateDetection != nil {
			out["date_detection"] = *s.DateDetection
		}
		if s.NumericDetection != nil {
			out["numeric_detection"] = *s.NumericDetection
		}
		if s.DynamicDateFormats != nil {
			out["dynamic_date_formats"] = s.DynamicDateFormats
		}
		if len(s.Templates) > 0 {
			templates := make([]any, 0, len(s.Templates))
			for _, t := range s.Templates {
				templates = append(templates, t.toMap())
			}
			out["dynamic_templates"] = templates
		}
	}
	if len(o.children) > 0 {
		props := make(map[string]any, len(o.children))
		for name, child := range o.children {
			props[name] = mapperToMap(child)
		}
		out["properties"] = props
	}
	return out
}

func (o *ObjectMapper) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.ToMap())
}

func mapperToMap(m Mapper) map[string]any {
	switch t := m.(type) {
	case *ObjectMapper:
		return t.ToMap()
	case *FieldMapper:
		return t.ToMap()
	}
	return nil
}

// ToMap renders the field with every option that differs from its type's
// defaults.
func (f *FieldMapper) ToMap() map[string]any {
	def := f.fieldType.Defaults()
	out := map[string]any{"type": f.fieldType.Name()}
	if f.opts.Index != def.Index {
		out["index"] = f.opts.Index
	}
	if f.opts.Store != def.Store {
		out["store"] = f.opts.Store
	}
	if f.opts.DocValues != def.DocValues {
		out["doc_values"] = f.opts.DocValues
	}
	if f.opts.Analyzer != def.Analyzer {
		out["analyzer"] = f.opts.Analyzer
	}
	if f.opts.Format != def.Format {
		out["format"] = f.opts.Format
	}
	if f.opts.IgnoreAbove != def.IgnoreAbove {
		out["ignore_above"] = f.opts.IgnoreAbove
	}
	if f.opts.NullValue != nil {
		out["null_value"] = f.opts.NullValue
	}
	if f.opts.Boost != def.Boost {
		out["boost"] = f.opts.Boost
	}
	if f.opts.Coerce != def.Coerce {
		out["coerce"] = f.opts.Coerce
	}
	if len(f.copyTo) > 0 {
		out["copy_to"] = append([]string(nil), f.copyTo...)
	}
	if len(f.multiFields) > 0 {
		fields := make(map[string]any, len(f.multiFields))
		for name, sub := range f.multiFields {
			fields[name] = sub.ToMap()
		}
		out["fields"] = fields
	}
	return out
}

func (f *FieldMapper) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.ToMap())
}
