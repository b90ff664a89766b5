package mapper

// Token is a structural element of a document token stream.
type Token int

const (
	// TokenNone marks the end of the stream.
	TokenNone Token = iota
	TokenStartObject
	TokenEndObject
	TokenStartArray
	TokenEndArray
	TokenFieldName
	TokenValueString
	TokenValueNumber
	TokenValueBoolean
	TokenValueNull
	// TokenValueEmbedded carries raw binary content.
	TokenValueEmbedded
)

var tokenNames = map[Token]string{
	TokenNone:          "EOF",
	TokenStartObject:   "START_OBJECT",
	TokenEndObject:     "END_OBJECT",
	TokenStartArray:    "START_ARRAY",
	TokenEndArray:      "END_ARRAY",
	TokenFieldName:     "FIELD_NAME",
	TokenValueString:   "VALUE_STRING",
	TokenValueNumber:   "VALUE_NUMBER",
	TokenValueBoolean:  "VALUE_BOOLEAN",
	TokenValueNull:     "VALUE_NULL",
	TokenValueEmbedded: "VALUE_EMBEDDED_OBJECT",
}

func (t Token) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// IsValue reports whether t is a scalar value token. Null is not a value.
func (t Token) IsValue() bool {
	switch t {
	case TokenValueString, TokenValueNumber, TokenValueBoolean, TokenValueEmbedded:
		return true
	}
	return false
}

// NumberType is the width of a numeric token as reported by the reader.
type NumberType int

const (
	NumberInt NumberType = iota
	NumberLong
	NumberFloat
	NumberDouble
)

// TokenReader is a forward-only reader over one document. Readers are not
// safe for concurrent use and cannot be rewound.
type TokenReader interface {
	// NextToken advances the stream. It returns TokenNone at end of input.
	NextToken() (Token, error)
	CurrentToken() Token
	// CurrentName returns the field name the current token belongs to.
	CurrentName() string
	// Text returns the textual form of the current value token.
	Text() string
	NumberType() NumberType
	Int64() (int64, error)
	Float64() (float64, error)
	Bool() bool
	Binary() []byte
	// SkipChildren consumes the object or array started by the current
	// token. It is a no-op for any other token.
	SkipChildren() error
}

// skipChildren implements SkipChildren for readers built on NextToken.
func skipChildren(r TokenReader) error {
	switch r.CurrentToken() {
	case TokenStartObject, TokenStartArray:
	default:
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := r.NextToken()
		if err != nil {
			return err
		}
		switch tok {
		case TokenStartObject, TokenStartArray:
			depth++
		case TokenEndObject, TokenEndArray:
			depth--
		case TokenNone:
			return errUnexpectedEOF
		}
	}
	return nil
}
