package mapper

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var (
	errUnexpectedEOF = errors.New("unexpected end of input")
	errLongRange     = errors.New("out of range for a long")
)

type readerFrame struct {
	object     bool
	expectName bool
	name       string
}

// JSONReader streams tokens out of a JSON document.
type JSONReader struct {
	dec   *json.Decoder
	stack []readerFrame
	tok   Token
	text  string
	num   json.Number
	b     bool
}

// NewJSONReader returns a reader over r. Numbers keep their literal text so
// integer and floating point tokens can be told apart.
func NewJSONReader(r io.Reader) *JSONReader {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &JSONReader{dec: dec}
}

// NewJSONBytesReader is a convenience wrapper around NewJSONReader.
func NewJSONBytesReader(data []byte) *JSONReader {
	return NewJSONReader(bytes.NewReader(data))
}

func (r *JSONReader) top() *readerFrame {
	if len(r.stack) == 0 {
		return nil
	}
	return &r.stack[len(r.stack)-1]
}

func (r *JSONReader) valueDone() {
	if f := r.top(); f != nil && f.object {
		f.expectName = true
	}
}

func (r *JSONReader) NextToken() (Token, error) {
	t, err := r.dec.Token()
	if err == io.EOF {
		r.tok = TokenNone
		return r.tok, nil
	}
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			r.tok = TokenNone
			return r.tok, nil
		}
		return TokenNone, fmt.Errorf("reading json token: %w", err)
	}
	switch v := t.(type) {
	case json.Delim:
		switch v {
		case '{':
			r.stack = append(r.stack, readerFrame{object: true, expectName: true})
			r.tok = TokenStartObject
		case '}':
			r.stack = r.stack[:len(r.stack)-1]
			r.tok = TokenEndObject
			r.valueDone()
		case '[':
			r.stack = append(r.stack, readerFrame{})
			r.tok = TokenStartArray
		case ']':
			r.stack = r.stack[:len(r.stack)-1]
			r.tok = TokenEndArray
			r.valueDone()
		}
	case string:
		if f := r.top(); f != nil && f.object && f.expectName {
			f.expectName = false
			f.name = v
			r.text = v
			r.tok = TokenFieldName
			return r.tok, nil
		}
		r.text = v
		r.tok = TokenValueString
		r.valueDone()
	case json.Number:
		r.num = v
		r.text = v.String()
		r.tok = TokenValueNumber
		r.valueDone()
	case bool:
		r.b = v
		r.text = strconv.FormatBool(v)
		r.tok = TokenValueBoolean
		r.valueDone()
	case nil:
		r.text = ""
		r.tok = TokenValueNull
		r.valueDone()
	}
	return r.tok, nil
}

func (r *JSONReader) CurrentToken() Token { return r.tok }

func (r *JSONReader) CurrentName() string {
	n := len(r.stack)
	if r.tok == TokenStartObject || r.tok == TokenStartArray {
		n--
	}
	for i := n - 1; i >= 0; i-- {
		if r.stack[i].object {
			return r.stack[i].name
		}
	}
	return ""
}

func (r *JSONReader) Text() string { return r.text }

func (r *JSONReader) NumberType() NumberType {
	return numberTypeOf(r.text)
}

func (r *JSONReader) Int64() (int64, error) {
	return parseIntText(r.text)
}

func (r *JSONReader) Float64() (float64, error) {
	return strconv.ParseFloat(r.text, 64)
}

func (r *JSONReader) Bool() bool { return r.b }

// Binary decodes a base64 string value. JSON has no native binary token.
func (r *JSONReader) Binary() []byte {
	data, err := base64.StdEncoding.DecodeString(r.text)
	if err != nil {
		return nil
	}
	return data
}

func (r *JSONReader) SkipChildren() error {
	return skipChildren(r)
}

func numberTypeOf(text string) NumberType {
	if strings.ContainsAny(text, ".eE") {
		return NumberDouble
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return NumberDouble
	}
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		return NumberInt
	}
	return NumberLong
}

// parseIntText accepts integral text and floating point text with no
// fractional loss beyond truncation.
func parseIntText(text string) (int64, error) {
	if v, err := strconv.ParseInt(text, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, err
	}
	if f >= math.MaxInt64 || f < math.MinInt64 || math.IsNaN(f) {
		return 0, fmt.Errorf("value [%s] is %w", text, errLongRange)
	}
	return int64(f), nil
}
