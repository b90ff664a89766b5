package mapper

import (
	"encoding/base64"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"
)

type yamlEvent struct {
	tok  Token
	name string
	text string
	num  NumberType
	bin  []byte
}

// YAMLReader exposes a YAML document as a token stream. The document is
// decoded into a node tree up front and replayed as events.
type YAMLReader struct {
	events []yamlEvent
	pos    int
	cur    yamlEvent
}

func NewYAMLReader(r io.Reader) (*YAMLReader, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return &YAMLReader{pos: -1}, nil
		}
		return nil, fmt.Errorf("decoding yaml document: %w", err)
	}
	yr := &YAMLReader{pos: -1}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if err := yr.walk(root, ""); err != nil {
		return nil, err
	}
	return yr, nil
}

func (r *YAMLReader) walk(n *yaml.Node, name string) error {
	switch n.Kind {
	case yaml.AliasNode:
		return r.walk(n.Alias, name)
	case yaml.MappingNode:
		r.events = append(r.events, yamlEvent{tok: TokenStartObject, name: name})
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			r.events = append(r.events, yamlEvent{tok: TokenFieldName, name: key, text: key})
			if err := r.walk(n.Content[i+1], key); err != nil {
				return err
			}
		}
		r.events = append(r.events, yamlEvent{tok: TokenEndObject, name: name})
	case yaml.SequenceNode:
		r.events = append(r.events, yamlEvent{tok: TokenStartArray, name: name})
		for _, c := range n.Content {
			if err := r.walk(c, name); err != nil {
				return err
			}
		}
		r.events = append(r.events, yamlEvent{tok: TokenEndArray, name: name})
	case yaml.ScalarNode:
		ev, err := scalarEvent(n, name)
		if err != nil {
			return err
		}
		r.events = append(r.events, ev)
	default:
		return fmt.Errorf("unsupported yaml node kind %d", n.Kind)
	}
	return nil
}

func scalarEvent(n *yaml.Node, name string) (yamlEvent, error) {
	ev := yamlEvent{name: name, text: n.Value}
	switch n.ShortTag() {
	case "!!null":
		ev.tok = TokenValueNull
		ev.text = ""
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return ev, fmt.Errorf("decoding yaml bool %q: %w", n.Value, err)
		}
		ev.tok = TokenValueBoolean
		ev.text = strconv.FormatBool(b)
	case "!!int":
		var v int64
		if err := n.Decode(&v); err != nil {
			return ev, fmt.Errorf("decoding yaml int %q: %w", n.Value, err)
		}
		ev.tok = TokenValueNumber
		ev.text = strconv.FormatInt(v, 10)
		ev.num = numberTypeOf(ev.text)
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return ev, fmt.Errorf("decoding yaml float %q: %w", n.Value, err)
		}
		ev.tok = TokenValueNumber
		ev.text = strconv.FormatFloat(f, 'g', -1, 64)
		ev.num = NumberDouble
	case "!!binary":
		data, err := base64.StdEncoding.DecodeString(n.Value)
		if err != nil {
			return ev, fmt.Errorf("decoding yaml binary: %w", err)
		}
		ev.tok = TokenValueEmbedded
		ev.bin = data
	default:
		ev.tok = TokenValueString
	}
	return ev, nil
}

func (r *YAMLReader) NextToken() (Token, error) {
	r.pos++
	if r.pos >= len(r.events) {
		r.pos = len(r.events)
		r.cur = yamlEvent{}
		return TokenNone, nil
	}
	r.cur = r.events[r.pos]
	return r.cur.tok, nil
}

func (r *YAMLReader) CurrentToken() Token    { return r.cur.tok }
func (r *YAMLReader) CurrentName() string    { return r.cur.name }
func (r *YAMLReader) Text() string           { return r.cur.text }
func (r *YAMLReader) NumberType() NumberType { return r.cur.num }
func (r *YAMLReader) Bool() bool             { return r.cur.text == "true" }
func (r *YAMLReader) Binary() []byte         { return r.cur.bin }

func (r *YAMLReader) Int64() (int64, error) {
	return parseIntText(r.cur.text)
}

func (r *YAMLReader) Float64() (float64, error) {
	return strconv.ParseFloat(r.cur.text, 64)
}

func (r *YAMLReader) SkipChildren() error {
	return skipChildren(r)
}
