package mapper

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// ContentFormat selects the reader used for raw document bytes.
type ContentFormat int

const (
	FormatJSON ContentFormat = iota
	FormatYAML
)

// SourceToParse is one document to parse. When Reader is set it is used
// instead of Source and trailing data is not checked.
type SourceToParse struct {
	Index   string
	Type    string
	ID      string
	Version int64
	Source  []byte
	Format  ContentFormat
	Reader  TokenReader
}

// ParsedDocument is the result of a successful parse. Docs are in parent
// last order: nested sub-documents first, the root document at the end.
type ParsedDocument struct {
	ID      string
	Type    string
	UID     string
	Version int64
	Docs    []*Document
	Source  []byte
	// DynamicUpdate is the mapping patch for fields discovered in this
	// document, or nil when there were none.
	DynamicUpdate *ObjectMapper
}

// RootDoc returns the top-level document, or nil for an empty document.
func (p *ParsedDocument) RootDoc() *Document {
	if len(p.Docs) == 0 {
		return nil
	}
	return p.Docs[len(p.Docs)-1]
}

// ParserConfig tunes a DocumentParser.
type ParserConfig struct {
	// KeywordIgnoreAbove bounds the keyword sub-field of dynamic text
	// fields.
	KeywordIgnoreAbove int
	ContextPoolSize    int
}

// DocumentParser turns documents into indexable sub-documents and mapping
// patches. It is safe for concurrent use; each parse gets its own context.
type DocumentParser struct {
	registry *Registry
	lookup   FieldLookup
	cfg      ParserConfig
	pool     *ContextPool
	logger   *slog.Logger
}

// NewDocumentParser builds a parser. lookup resolves field names across the
// whole index; nil restricts lookups to the document mapper being parsed.
func NewDocumentParser(registry *Registry, lookup FieldLookup, cfg ParserConfig) *DocumentParser {
	if cfg.KeywordIgnoreAbove <= 0 {
		cfg.KeywordIgnoreAbove = defaultKeywordIgnoreAbove
	}
	if cfg.ContextPoolSize <= 0 {
		cfg.ContextPoolSize = 16
	}
	return &DocumentParser{
		registry: registry,
		lookup:   lookup,
		cfg:      cfg,
		pool:     NewContextPool(cfg.ContextPoolSize),
		logger:   slog.Default().With("component", "document-parser"),
	}
}

// Parse parses src against dm. Any failure rejects the whole document and
// is returned as a *ParsingError.
func (p *DocumentParser) Parse(dm *DocumentMapper, src SourceToParse) (*ParsedDocument, error) {
	if err := validateType(dm, src); err != nil {
		return nil, wrapParseError(err, src)
	}
	src.Type = dm.Type()

	reader := src.Reader
	if reader == nil {
		if len(bytes.TrimSpace(src.Source)) == 0 {
			return nil, wrapParseError(malformedf("", "failed to parse, document is empty"), src)
		}
		var err error
		if reader, err = newSourceReader(src); err != nil {
			return nil, wrapParseError(err, src)
		}
	}

	ctx := p.pool.Acquire()
	defer p.pool.Release(ctx)
	ctx.reset(reader, dm, p.lookup, p.registry, src, p.cfg)

	empty, err := parseDocument(ctx, dm, src)
	if err != nil {
		return nil, wrapParseError(err, src)
	}

	doc := &ParsedDocument{
		ID:      src.ID,
		Type:    src.Type,
		UID:     uid(src.Type, src.ID),
		Version: src.Version,
		Source:  src.Source,
	}
	if empty {
		return doc, nil
	}
	doc.Docs = slices.Clone(ctx.Docs())
	slices.Reverse(doc.Docs)

	if doc.DynamicUpdate, err = createDynamicUpdate(dm, ctx.DynamicMappers()); err != nil {
		return nil, wrapParseError(err, src)
	}
	p.logger.Debug("document parsed",
		"type", src.Type,
		"id", src.ID,
		"docs", len(doc.Docs),
		"discovered", len(ctx.DynamicMappers()),
	)
	return doc, nil
}

// UID joins a type and a document id into the document's unique id, or
// returns "" when id is empty.
func UID(typeName, id string) string {
	return uid(typeName, id)
}

func uid(typeName, id string) string {
	if id == "" {
		return ""
	}
	return typeName + "#" + id
}

func validateType(dm *DocumentMapper, src SourceToParse) error {
	if dm.Type() == DefaultMappingType {
		return forbiddenf("", "it is forbidden to index into the default mapping [%s]", DefaultMappingType)
	}
	if src.Type != "" && src.Type != dm.Type() {
		return malformedf("", "type mismatch, provide type [%s] but mapper is of type [%s]", src.Type, dm.Type())
	}
	return nil
}

func newSourceReader(src SourceToParse) (TokenReader, error) {
	switch src.Format {
	case FormatJSON:
		return NewJSONBytesReader(src.Source), nil
	case FormatYAML:
		r, err := NewYAMLReader(bytes.NewReader(src.Source))
		if err != nil {
			return nil, malformedf("", "failed to parse yaml content: %v", err)
		}
		return r, nil
	}
	return nil, malformedf("", "unknown content format [%d]", src.Format)
}

// parseDocument drives one parse and reports whether the document was an
// empty object.
func parseDocument(ctx *ParseContext, dm *DocumentMapper, src SourceToParse) (bool, error) {
	r := ctx.Reader()
	tok, err := r.NextToken()
	if err != nil {
		return false, err
	}
	if tok != TokenStartObject {
		return false, malformedf("", "malformed content, must start with an object")
	}
	root := dm.Root()
	empty := false
	if root.enabled {
		if tok, err = r.NextToken(); err != nil {
			return false, err
		}
		switch tok {
		case TokenEndObject:
			empty = true
		case TokenFieldName:
		default:
			return false, malformedf("", "malformed content, after first object, either the type field or the actual properties should exist")
		}
	}

	preParse(ctx)
	switch {
	case !root.enabled:
		if err := r.SkipChildren(); err != nil {
			return false, err
		}
	case !empty:
		if err := parseObjectOrNested(ctx, root, true); err != nil {
			return false, err
		}
	}
	postParse(ctx)

	if src.Reader == nil {
		if tok, err = r.NextToken(); err != nil {
			return false, err
		}
		if tok != TokenNone {
			return false, malformedf("", "malformed content, found extra data after parsing: %s", tok)
		}
	}
	return empty, nil
}

// preParse stamps identity fields on the root document so nested documents
// can copy them.
func preParse(ctx *ParseContext) {
	src := ctx.Source()
	doc := ctx.RootDoc()
	if src.ID != "" {
		doc.Add(IndexableField{Name: FieldUID, Type: FieldUID, Value: uid(src.Type, src.ID), Indexed: true, Stored: true})
		doc.Add(IndexableField{Name: FieldID, Type: FieldID, Value: src.ID, Indexed: true, Stored: true})
	}
	doc.Add(IndexableField{Name: FieldTypeName, Type: FieldTypeName, Value: src.Type, Indexed: true})
}

func postParse(ctx *ParseContext) {
	src := ctx.Source()
	doc := ctx.RootDoc()
	if src.Source != nil {
		doc.Add(IndexableField{Name: FieldSource, Type: FieldSource, Value: src.Source, Stored: true})
	}
	doc.Add(IndexableField{Name: FieldVersion, Type: FieldVersion, Value: src.Version, DocValues: true})
}

func parseObjectOrNested(ctx *ParseContext, mapper *ObjectMapper, atRoot bool) error {
	r := ctx.Reader()
	if !mapper.enabled {
		return r.SkipChildren()
	}
	currentFieldName := r.CurrentName()
	tok := r.CurrentToken()
	if tok == TokenValueNull {
		return nil
	}
	if tok.IsValue() {
		return malformedf(mapper.name, "object mapping for [%s] tried to parse field [%s] as object, but found a concrete value",
			parentLabel(mapper), currentFieldName)
	}

	nested := mapper.nested
	if nested.Nested {
		ctx = nestedContext(ctx, mapper)
	}

	var err error
	if tok == TokenEndObject {
		if tok, err = r.NextToken(); err != nil {
			return err
		}
	}
	if tok == TokenStartObject {
		if tok, err = r.NextToken(); err != nil {
			return err
		}
	}
	if err := innerParseObject(ctx, mapper, currentFieldName, tok, atRoot); err != nil {
		return err
	}
	if nested.Nested {
		nestedDone(ctx, nested)
	}
	return nil
}

func innerParseObject(ctx *ParseContext, mapper *ObjectMapper, currentFieldName string, tok Token, atRoot bool) error {
	r := ctx.Reader()
	var err error
	for tok != TokenEndObject {
		switch {
		case tok == TokenStartObject:
			err = parseObject(ctx, mapper, currentFieldName)
		case tok == TokenStartArray:
			err = parseArray(ctx, mapper, currentFieldName)
		case tok == TokenFieldName:
			currentFieldName = r.CurrentName()
			err = checkFieldName(mapper, currentFieldName, atRoot)
		case tok == TokenValueNull:
			err = parseNullValue(ctx, mapper, currentFieldName)
		case tok == TokenNone:
			return malformedf(ctx.path.PathAsText(currentFieldName),
				"object mapping for [%s] tried to parse field [%s] as object, but got EOF, has a concrete value been provided to it?",
				parentLabel(mapper), currentFieldName)
		case tok.IsValue():
			err = parseValue(ctx, mapper, currentFieldName, tok)
		}
		if err != nil {
			return err
		}
		if tok, err = r.NextToken(); err != nil {
			return err
		}
	}
	return nil
}

func checkFieldName(mapper *ObjectMapper, name string, atRoot bool) error {
	if strings.TrimSpace(name) == "" {
		return malformedf(mapper.name, "field name cannot be an empty string in [%s]", parentLabel(mapper))
	}
	if strings.Contains(name, ".") {
		return malformedf(name, "field name [%s] in [%s] cannot contain '.'", name, parentLabel(mapper))
	}
	if atRoot && IsMetadataField(name) {
		return forbiddenf(name, "field [%s] is a metadata field and cannot be added inside a document, use the index API request parameters", name)
	}
	return nil
}

func nestedContext(ctx *ParseContext, mapper *ObjectMapper) *ParseContext {
	ctx = ctx.createNestedContext(mapper.name)
	nestedDoc := ctx.Doc()
	if u, ok := nestedDoc.parent.Get(FieldUID); ok {
		nestedDoc.Add(IndexableField{Name: FieldUID, Type: FieldUID, Value: u.Value, Indexed: true})
	}
	nestedDoc.Add(IndexableField{Name: FieldTypeName, Type: FieldTypeName, Value: mapper.nestedTypePath(), Indexed: true})
	return ctx
}

// nestedDone copies the finished nested document into its parent and the
// root as the nested descriptor asks, never twice into the same document.
func nestedDone(ctx *ParseContext, nested Nested) {
	nestedDoc := ctx.Doc()
	parentDoc := nestedDoc.parent
	if nested.IncludeInParent {
		addFields(nestedDoc, parentDoc)
	}
	if nested.IncludeInRoot {
		rootDoc := ctx.RootDoc()
		if !nested.IncludeInParent || parentDoc != rootDoc {
			addFields(nestedDoc, rootDoc)
		}
	}
}

func addFields(from, to *Document) {
	for _, f := range from.fields {
		if f.Name != FieldUID && f.Name != FieldTypeName {
			to.Add(f)
		}
	}
}

func parseObjectOrField(ctx *ParseContext, m Mapper) error {
	switch t := m.(type) {
	case *ObjectMapper:
		return parseObjectOrNested(ctx, t, false)
	case *FieldMapper:
		update, err := parseField(ctx, t)
		if err != nil {
			return err
		}
		if update != nil {
			ctx.AddDynamicMapper(update)
		}
		if tok := ctx.Reader().CurrentToken(); len(t.copyTo) > 0 && (tok.IsValue() || tok == TokenValueNull) {
			return parseCopyFields(ctx, t.copyTo)
		}
		return nil
	}
	return internalf("unknown mapper [%s]", m.Name())
}

// parseField runs the field's type and then its multi-fields over the same
// value.
func parseField(ctx *ParseContext, f *FieldMapper) (Mapper, error) {
	update, err := f.fieldType.Parse(ctx, f)
	if err != nil {
		return nil, fieldError(f, err)
	}
	if len(f.multiFields) == 0 {
		return update, nil
	}
	if tok := ctx.Reader().CurrentToken(); !tok.IsValue() && tok != TokenValueNull {
		return update, nil
	}
	for _, sub := range f.MultiFields() {
		subUpdate, err := sub.fieldType.Parse(ctx, sub)
		if err != nil {
			return nil, fieldError(sub, err)
		}
		if subUpdate != nil {
			ctx.AddDynamicMapper(subUpdate)
		}
	}
	return update, nil
}

func fieldError(f *FieldMapper, err error) error {
	var pe *ParsingError
	if errors.As(err, &pe) {
		if pe.Field == "" {
			pe.Field = f.name
		}
		return pe
	}
	return &ParsingError{Kind: KindMalformed, Field: f.name, Message: fmt.Sprintf("failed to parse [%s]", f.name), Cause: err}
}

func parseObject(ctx *ParseContext, parent *ObjectMapper, name string) error {
	ctx.path.Add(name)
	err := parseObjectIn(ctx, parent, name)
	ctx.path.Remove()
	return err
}

// parseObjectIn runs with name already pushed on the path.
func parseObjectIn(ctx *ParseContext, parent *ObjectMapper, name string) error {
	if m := parent.Mapper(name); m != nil {
		return parseObjectOrField(ctx, m)
	}
	switch ctx.dynamicFor(parent) {
	case DynamicStrict:
		return strictError(parent, name)
	case DynamicFalse:
		return ctx.Reader().SkipChildren()
	}
	// templates and builders add name to the path themselves
	ctx.path.Remove()
	m, err := buildDynamicObject(ctx, parent, name)
	ctx.path.Add(name)
	if err != nil {
		return err
	}
	ctx.AddDynamicMapper(m)
	return parseObjectOrField(ctx, m)
}

func buildDynamicObject(ctx *ParseContext, parent *ObjectMapper, name string) (Mapper, error) {
	b, err := ctx.findTemplateBuilder(name, TypeObject, TypeObject)
	if err != nil {
		return nil, err
	}
	if b == nil {
		ob := NewObjectBuilder(name)
		if !parent.IsRoot() && parent.dynamic != DynamicInherit {
			ob.Dynamic(parent.dynamic)
		}
		b = ob
	}
	m, err := b.Build(NewBuilderContext(ctx.path))
	if err != nil {
		return nil, buildError(ctx.path.PathAsText(name), err)
	}
	return m, nil
}

func acceptsArrays(m Mapper) bool {
	f, ok := m.(*FieldMapper)
	return ok && f.fieldType.AcceptsArrays()
}

func parseArray(ctx *ParseContext, parent *ObjectMapper, name string) error {
	if m := parent.Mapper(name); m != nil {
		if acceptsArrays(m) {
			return parseObjectOrField(ctx, m)
		}
		return parseNonDynamicArray(ctx, parent, name)
	}
	switch ctx.dynamicFor(parent) {
	case DynamicStrict:
		return strictError(parent, name)
	case DynamicFalse:
		return ctx.Reader().SkipChildren()
	}
	b, err := ctx.findTemplateBuilder(name, TypeObject, TypeObject)
	if err != nil {
		return err
	}
	if b == nil {
		return parseNonDynamicArray(ctx, parent, name)
	}
	m, err := b.Build(NewBuilderContext(ctx.path))
	if err != nil {
		return buildError(ctx.path.PathAsText(name), err)
	}
	if !acceptsArrays(m) {
		return parseNonDynamicArray(ctx, parent, name)
	}
	ctx.AddDynamicMapper(m)
	ctx.path.Add(name)
	err = parseObjectOrField(ctx, m)
	ctx.path.Remove()
	return err
}

// parseNonDynamicArray feeds each element through the normal dispatch
// under the array's field name.
func parseNonDynamicArray(ctx *ParseContext, parent *ObjectMapper, name string) error {
	r := ctx.Reader()
	arrayFieldName := name
	for {
		tok, err := r.NextToken()
		if err != nil {
			return err
		}
		switch {
		case tok == TokenEndArray:
			return nil
		case tok == TokenStartObject:
			err = parseObject(ctx, parent, name)
		case tok == TokenStartArray:
			err = parseArray(ctx, parent, name)
		case tok == TokenFieldName:
			name = r.CurrentName()
		case tok == TokenValueNull:
			err = parseNullValue(ctx, parent, name)
		case tok == TokenNone:
			return malformedf(ctx.path.PathAsText(arrayFieldName),
				"object mapping for [%s] with array for [%s] tried to parse as array, but got EOF, is there a mismatch in types for the same field?",
				parentLabel(parent), arrayFieldName)
		default:
			err = parseValue(ctx, parent, name, tok)
		}
		if err != nil {
			return err
		}
	}
}

func parseValue(ctx *ParseContext, parent *ObjectMapper, name string, tok Token) error {
	if name == "" {
		return malformedf(parent.name, "object mapping [%s] trying to serialize a value with no field associated with it, current value [%s]",
			parentLabel(parent), ctx.Reader().Text())
	}
	if m := parent.Mapper(name); m != nil {
		return parseObjectOrField(ctx, m)
	}
	return parseDynamicValue(ctx, parent, name, tok)
}

// parseNullValue only reaches existing mappers; an unmapped null creates
// nothing.
func parseNullValue(ctx *ParseContext, parent *ObjectMapper, name string) error {
	if m := parent.Mapper(name); m != nil {
		return parseObjectOrField(ctx, m)
	}
	if ctx.dynamicFor(parent) == DynamicStrict {
		return strictError(parent, name)
	}
	return nil
}

// parseCopyFields re-parses the current value into each copy_to target,
// inside whichever document owns the target's path.
func parseCopyFields(ctx *ParseContext, fields []string) error {
	if ctx.withinCopyTo || len(fields) == 0 {
		return nil
	}
	ctx = ctx.createCopyToContext()
	for _, field := range fields {
		var target *Document
		for d := ctx.doc; d != nil; d = d.parent {
			if strings.HasPrefix(field, d.prefix) {
				target = d
				break
			}
		}
		if target == nil {
			return internalf("no document owns copy_to target [%s]", field)
		}
		copyCtx := ctx
		if target != ctx.doc {
			copyCtx = ctx.switchDoc(target)
		}
		if err := parseCopy(field, copyCtx); err != nil {
			return err
		}
	}
	return nil
}

func parseCopy(field string, ctx *ParseContext) error {
	if f, ok := ctx.DocMapper().LookupField(field); ok {
		return parseObjectOrField(ctx, f)
	}
	// a null only reaches targets that are already mapped
	if ctx.Reader().CurrentToken() == TokenValueNull {
		return nil
	}
	// the target path is unrelated to the current one
	ctx = ctx.overridePath(NewContentPath())
	parts := splitPath(field)
	if len(parts) == 0 {
		return malformedf(field, "copy_to target [%s] is not a field name", field)
	}
	name := parts[len(parts)-1]
	parent := ctx.Root()
	for _, part := range parts[:len(parts)-1] {
		full := ctx.path.PathAsText(part)
		obj, ok := ctx.objectMapper(full)
		if !ok {
			switch ctx.dynamicFor(parent) {
			case DynamicStrict:
				return strictError(parent, part)
			case DynamicFalse:
				return nil
			}
			m, err := buildDynamicObject(ctx, parent, part)
			if err != nil {
				return err
			}
			if obj, ok = m.(*ObjectMapper); !ok {
				return malformedf(full, "copy_to target [%s] crosses [%s] which is not an object", field, full)
			}
			if obj.nested.Nested {
				return forbiddenf(full, "it is forbidden to create dynamic nested objects ([%s]) through `copy_to`", full)
			}
			ctx.AddDynamicMapper(obj)
		}
		ctx.path.Add(part)
		parent = obj
	}
	return parseDynamicValue(ctx, parent, name, ctx.Reader().CurrentToken())
}

func splitPath(field string) []string {
	var out []string
	for _, p := range strings.Split(field, ".") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
