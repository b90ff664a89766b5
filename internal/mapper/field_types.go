package mapper

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
)

// FieldType indexes the values of one kind of leaf field.
type FieldType interface {
	Name() string
	// AcceptsArrays reports whether the type consumes a whole array token
	// in one call instead of one element at a time.
	AcceptsArrays() bool
	Defaults() FieldOptions
	// Parse indexes the value at the reader's current token into the
	// context document. A non-nil Mapper is a refinement of m that the
	// caller records as a dynamic update.
	Parse(ctx *ParseContext, m *FieldMapper) (Mapper, error)
}

// scalarValue is a detached copy of one value token.
type scalarValue struct {
	tok  Token
	text string
	bin  []byte
}

func currentScalar(r TokenReader) scalarValue {
	sv := scalarValue{tok: r.CurrentToken(), text: r.Text()}
	if sv.tok == TokenValueEmbedded {
		sv.bin = r.Binary()
	}
	return sv
}

// scalarOf converts a decoded mapping value such as a null_value into a
// scalarValue.
func scalarOf(v any) (scalarValue, error) {
	switch t := v.(type) {
	case nil:
		return scalarValue{tok: TokenValueNull}, nil
	case string:
		return scalarValue{tok: TokenValueString, text: t}, nil
	case bool:
		return scalarValue{tok: TokenValueBoolean, text: strconv.FormatBool(t)}, nil
	case float64:
		return scalarValue{tok: TokenValueNumber, text: strconv.FormatFloat(t, 'g', -1, 64)}, nil
	case float32:
		return scalarValue{tok: TokenValueNumber, text: strconv.FormatFloat(float64(t), 'g', -1, 32)}, nil
	case int:
		return scalarValue{tok: TokenValueNumber, text: strconv.Itoa(t)}, nil
	case int64:
		return scalarValue{tok: TokenValueNumber, text: strconv.FormatInt(t, 10)}, nil
	case fmt.Stringer:
		return scalarValue{tok: TokenValueString, text: t.String()}, nil
	}
	return scalarValue{}, fmt.Errorf("%w: unsupported value [%v]", apperrors.ErrIllegalArgument, v)
}

// scalarType is a FieldType whose values are single tokens.
type scalarType struct {
	name     string
	defaults FieldOptions
	convert  func(sv scalarValue, m *FieldMapper) (any, bool, error)
}

func (t *scalarType) Name() string           { return t.name }
func (t *scalarType) AcceptsArrays() bool    { return false }
func (t *scalarType) Defaults() FieldOptions { return t.defaults }

func (t *scalarType) Parse(ctx *ParseContext, m *FieldMapper) (Mapper, error) {
	sv := currentScalar(ctx.Reader())
	return nil, indexScalar(ctx, m, sv)
}

func indexScalar(ctx *ParseContext, m *FieldMapper, sv scalarValue) error {
	if sv.tok == TokenValueNull {
		if m.opts.NullValue == nil {
			return nil
		}
		var err error
		if sv, err = scalarOf(m.opts.NullValue); err != nil {
			return err
		}
	}
	st, ok := m.fieldType.(*scalarType)
	if !ok {
		return fmt.Errorf("%w: field [%s] is not a scalar field", apperrors.ErrInternal, m.name)
	}
	if sv.tok == TokenStartObject || sv.tok == TokenStartArray {
		return malformedf(m.name, "failed to parse [%s]: expected a value but found %s", m.name, sv.tok)
	}
	v, keep, err := st.convert(sv, m)
	if err != nil {
		return malformedf(m.name, "failed to parse [%s]: %v", m.name, err)
	}
	if !keep {
		return nil
	}
	f := IndexableField{
		Name:      m.name,
		Type:      st.name,
		Value:     v,
		Indexed:   m.opts.Index,
		Stored:    m.opts.Store,
		DocValues: m.opts.DocValues,
	}
	if st.name == TypeText {
		f.Analyzer = m.opts.Analyzer
	}
	ctx.Doc().Add(f)
	return nil
}

func textValue(sv scalarValue, _ *FieldMapper) (any, bool, error) {
	if sv.tok == TokenValueEmbedded {
		return base64.StdEncoding.EncodeToString(sv.bin), true, nil
	}
	return sv.text, true, nil
}

func keywordValue(sv scalarValue, m *FieldMapper) (any, bool, error) {
	v, _, _ := textValue(sv, m)
	s := v.(string)
	if m.opts.IgnoreAbove > 0 && len([]rune(s)) > m.opts.IgnoreAbove {
		return nil, false, nil
	}
	return s, true, nil
}

func integerValue(min, max int64) func(scalarValue, *FieldMapper) (any, bool, error) {
	return func(sv scalarValue, m *FieldMapper) (any, bool, error) {
		if sv.tok != TokenValueNumber && !(sv.tok == TokenValueString && m.opts.Coerce) {
			return nil, false, fmt.Errorf("cannot convert %s to a number", sv.tok)
		}
		text := strings.TrimSpace(sv.text)
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			if !m.opts.Coerce {
				return nil, false, fmt.Errorf("value [%s] is not an integer", sv.text)
			}
			v, err = parseIntText(text)
			if errors.Is(err, errLongRange) {
				return nil, false, fmt.Errorf("value [%s] is out of range for [%s]", sv.text, m.fieldType.Name())
			}
			if err != nil {
				return nil, false, fmt.Errorf("value [%s] is not a number", sv.text)
			}
		}
		if v < min || v > max {
			return nil, false, fmt.Errorf("value [%s] is out of range for [%s]", sv.text, m.fieldType.Name())
		}
		return v, true, nil
	}
}

func floatValue(bits int) func(scalarValue, *FieldMapper) (any, bool, error) {
	return func(sv scalarValue, m *FieldMapper) (any, bool, error) {
		if sv.tok != TokenValueNumber && !(sv.tok == TokenValueString && m.opts.Coerce) {
			return nil, false, fmt.Errorf("cannot convert %s to a number", sv.tok)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(sv.text), bits)
		if err != nil {
			return nil, false, fmt.Errorf("value [%s] is not a number", sv.text)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false, fmt.Errorf("value [%s] is not finite", sv.text)
		}
		return f, true, nil
	}
}

func dateValue(sv scalarValue, m *FieldMapper) (any, bool, error) {
	f, err := NewDateFormatter(m.opts.Format)
	if err != nil {
		return nil, false, err
	}
	switch sv.tok {
	case TokenValueNumber:
		v, err := parseIntText(sv.text)
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	case TokenValueString:
		millis, err := f.ParseMillis(sv.text)
		if err != nil {
			return nil, false, err
		}
		return millis, true, nil
	}
	return nil, false, fmt.Errorf("cannot convert %s to a date", sv.tok)
}

func booleanValue(sv scalarValue, _ *FieldMapper) (any, bool, error) {
	switch sv.tok {
	case TokenValueBoolean:
		return sv.text == "true", true, nil
	case TokenValueString:
		switch sv.text {
		case "true":
			return true, true, nil
		case "false", "":
			return false, true, nil
		}
	}
	return nil, false, fmt.Errorf("failed to parse value [%s] as only [true] or [false] are allowed", sv.text)
}

func binaryValue(sv scalarValue, _ *FieldMapper) (any, bool, error) {
	switch sv.tok {
	case TokenValueEmbedded:
		return sv.bin, true, nil
	case TokenValueString:
		data, err := base64.StdEncoding.DecodeString(sv.text)
		if err != nil {
			return nil, false, fmt.Errorf("value is not valid base64: %w", err)
		}
		return data, true, nil
	}
	return nil, false, fmt.Errorf("cannot convert %s to binary", sv.tok)
}

// Built in type names.
const (
	TypeText     = "text"
	TypeKeyword  = "keyword"
	TypeLong     = "long"
	TypeInteger  = "integer"
	TypeShort    = "short"
	TypeByte     = "byte"
	TypeDouble   = "double"
	TypeFloat    = "float"
	TypeDate     = "date"
	TypeBoolean  = "boolean"
	TypeBinary   = "binary"
	TypeGeoPoint = "geo_point"
	TypeObject   = "object"
	TypeNested   = "nested"
)

// DefaultDateFormat is used by date fields that declare no format.
const DefaultDateFormat = "strict_date_optional_time||epoch_millis"

func indexed() FieldOptions {
	return FieldOptions{Index: true, DocValues: true, Boost: 1, Coerce: true}
}

func builtinTypes() []FieldType {
	textOpts := FieldOptions{Index: true, Analyzer: "standard", Boost: 1}
	dateOpts := indexed()
	dateOpts.Format = DefaultDateFormat
	return []FieldType{
		&scalarType{name: TypeText, defaults: textOpts, convert: textValue},
		&scalarType{name: TypeKeyword, defaults: indexed(), convert: keywordValue},
		&scalarType{name: TypeLong, defaults: indexed(), convert: integerValue(math.MinInt64, math.MaxInt64)},
		&scalarType{name: TypeInteger, defaults: indexed(), convert: integerValue(math.MinInt32, math.MaxInt32)},
		&scalarType{name: TypeShort, defaults: indexed(), convert: integerValue(math.MinInt16, math.MaxInt16)},
		&scalarType{name: TypeByte, defaults: indexed(), convert: integerValue(math.MinInt8, math.MaxInt8)},
		&scalarType{name: TypeDouble, defaults: indexed(), convert: floatValue(64)},
		&scalarType{name: TypeFloat, defaults: indexed(), convert: floatValue(32)},
		&scalarType{name: TypeDate, defaults: dateOpts, convert: dateValue},
		&scalarType{name: TypeBoolean, defaults: indexed(), convert: booleanValue},
		&scalarType{name: TypeBinary, defaults: FieldOptions{Boost: 1}, convert: binaryValue},
		geoPointType{},
	}
}

// GeoPoint is the value indexed by geo_point fields.
type GeoPoint struct {
	Lat float64
	Lon float64
}

// geoPointType accepts {"lat":..,"lon":..}, "lat,lon", [lon, lat] and arrays
// of any of those.
type geoPointType struct{}

func (geoPointType) Name() string        { return TypeGeoPoint }
func (geoPointType) AcceptsArrays() bool { return true }

func (geoPointType) Defaults() FieldOptions {
	return FieldOptions{Index: true, DocValues: true, Boost: 1}
}

func (g geoPointType) Parse(ctx *ParseContext, m *FieldMapper) (Mapper, error) {
	r := ctx.Reader()
	switch r.CurrentToken() {
	case TokenStartArray:
		tok, err := r.NextToken()
		if err != nil {
			return nil, err
		}
		if tok == TokenValueNumber {
			pt, err := g.lonLat(r, m)
			if err != nil {
				return nil, err
			}
			g.add(ctx, m, pt)
			return nil, nil
		}
		for ; tok != TokenEndArray; tok, err = r.NextToken() {
			if err != nil {
				return nil, err
			}
			if tok == TokenNone {
				return nil, malformedf(m.name, "failed to parse [%s]: unexpected end of input in geo_point array", m.name)
			}
			if _, err := g.Parse(ctx, m); err != nil {
				return nil, err
			}
		}
		return nil, err
	case TokenStartObject:
		pt, err := g.object(r, m)
		if err != nil {
			return nil, err
		}
		g.add(ctx, m, pt)
	case TokenValueString:
		pt, err := parseGeoString(r.Text())
		if err != nil {
			return nil, malformedf(m.name, "failed to parse [%s]: %v", m.name, err)
		}
		g.add(ctx, m, pt)
	case TokenValueNull:
		if m.opts.NullValue == nil {
			return nil, nil
		}
		s, ok := m.opts.NullValue.(string)
		if !ok {
			return nil, malformedf(m.name, "failed to parse [%s]: null_value must be a \"lat,lon\" string", m.name)
		}
		pt, err := parseGeoString(s)
		if err != nil {
			return nil, malformedf(m.name, "failed to parse [%s]: %v", m.name, err)
		}
		g.add(ctx, m, pt)
	default:
		return nil, malformedf(m.name, "failed to parse [%s]: geo_point expected, found %s", m.name, r.CurrentToken())
	}
	return nil, nil
}

func (geoPointType) add(ctx *ParseContext, m *FieldMapper, pt GeoPoint) {
	ctx.Doc().Add(IndexableField{
		Name:      m.name,
		Type:      TypeGeoPoint,
		Value:     pt,
		Indexed:   m.opts.Index,
		Stored:    m.opts.Store,
		DocValues: m.opts.DocValues,
	})
}

// lonLat reads [lon, lat] with the reader positioned on lon.
func (geoPointType) lonLat(r TokenReader, m *FieldMapper) (GeoPoint, error) {
	lon, err := r.Float64()
	if err != nil {
		return GeoPoint{}, malformedf(m.name, "failed to parse [%s]: %v", m.name, err)
	}
	tok, err := r.NextToken()
	if err != nil {
		return GeoPoint{}, err
	}
	if tok != TokenValueNumber {
		return GeoPoint{}, malformedf(m.name, "failed to parse [%s]: geo_point array must hold [lon, lat]", m.name)
	}
	lat, err := r.Float64()
	if err != nil {
		return GeoPoint{}, malformedf(m.name, "failed to parse [%s]: %v", m.name, err)
	}
	for {
		tok, err = r.NextToken()
		if err != nil {
			return GeoPoint{}, err
		}
		if tok == TokenEndArray {
			break
		}
		if tok != TokenValueNumber {
			return GeoPoint{}, malformedf(m.name, "failed to parse [%s]: geo_point array must hold numbers", m.name)
		}
	}
	return validGeo(m, lat, lon)
}

func (geoPointType) object(r TokenReader, m *FieldMapper) (GeoPoint, error) {
	var lat, lon float64
	var haveLat, haveLon bool
	for {
		tok, err := r.NextToken()
		if err != nil {
			return GeoPoint{}, err
		}
		if tok == TokenEndObject {
			break
		}
		if tok != TokenFieldName {
			return GeoPoint{}, malformedf(m.name, "failed to parse [%s]: unexpected %s in geo_point", m.name, tok)
		}
		name := r.CurrentName()
		if tok, err = r.NextToken(); err != nil {
			return GeoPoint{}, err
		}
		if tok != TokenValueNumber && tok != TokenValueString {
			return GeoPoint{}, malformedf(m.name, "failed to parse [%s]: [%s] must be a number", m.name, name)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(r.Text()), 64)
		if err != nil {
			return GeoPoint{}, malformedf(m.name, "failed to parse [%s]: [%s] must be a number", m.name, name)
		}
		switch name {
		case "lat":
			lat, haveLat = f, true
		case "lon":
			lon, haveLon = f, true
		default:
			return GeoPoint{}, malformedf(m.name, "failed to parse [%s]: field must be either [lat] or [lon], found [%s]", m.name, name)
		}
	}
	if !haveLat || !haveLon {
		return GeoPoint{}, malformedf(m.name, "failed to parse [%s]: both [lat] and [lon] are required", m.name)
	}
	return validGeo(m, lat, lon)
}

func parseGeoString(s string) (GeoPoint, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return GeoPoint{}, fmt.Errorf("expected \"lat,lon\", found [%s]", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return GeoPoint{}, fmt.Errorf("latitude [%s] is not a number", parts[0])
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return GeoPoint{}, fmt.Errorf("longitude [%s] is not a number", parts[1])
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return GeoPoint{}, fmt.Errorf("point [%s] is out of bounds", s)
	}
	return GeoPoint{Lat: lat, Lon: lon}, nil
}

func validGeo(m *FieldMapper, lat, lon float64) (GeoPoint, error) {
	if lat < -90 || lat > 90 {
		return GeoPoint{}, malformedf(m.name, "failed to parse [%s]: illegal latitude value [%v]", m.name, lat)
	}
	if lon < -180 || lon > 180 {
		return GeoPoint{}, malformedf(m.name, "failed to parse [%s]: illegal longitude value [%v]", m.name, lon)
	}
	return GeoPoint{Lat: lat, Lon: lon}, nil
}
