package mapper

// parseState is the per-document state shared by every view of a
// ParseContext.
type parseState struct {
	reader         TokenReader
	docMapper      *DocumentMapper
	lookup         FieldLookup
	registry       *Registry
	source         SourceToParse
	rootDoc        *Document
	docs           []*Document
	dynamicMappers []Mapper
	// newObjects holds the objects created dynamically during this parse,
	// keyed by full path.
	newObjects map[string]*ObjectMapper
	settings   ParserConfig
}

// ParseContext is the mutable state threaded through the parse of one
// document. Nested, copy-to and switched-document contexts are views over
// the same state: discoveries made through any view land in one list.
type ParseContext struct {
	st           *parseState
	doc          *Document
	path         *ContentPath
	withinCopyTo bool
}

func newParseContext() *ParseContext {
	return &ParseContext{
		st:   &parseState{newObjects: make(map[string]*ObjectMapper)},
		path: NewContentPath(),
	}
}

// reset prepares the context for a new document. It is safe after a
// failed parse.
func (c *ParseContext) reset(reader TokenReader, dm *DocumentMapper, lookup FieldLookup, registry *Registry, src SourceToParse, cfg ParserConfig) {
	c.clear()
	st := c.st
	st.reader = reader
	st.docMapper = dm
	st.lookup = lookup
	st.registry = registry
	st.source = src
	st.settings = cfg
	st.rootDoc = newDocument("", nil)
	st.docs = append(st.docs, st.rootDoc)
	c.doc = st.rootDoc
}

func (c *ParseContext) clear() {
	st := c.st
	st.reader = nil
	st.docMapper = nil
	st.lookup = nil
	st.registry = nil
	st.source = SourceToParse{}
	st.rootDoc = nil
	clear(st.docs)
	st.docs = st.docs[:0]
	clear(st.dynamicMappers)
	st.dynamicMappers = st.dynamicMappers[:0]
	clear(st.newObjects)
	c.doc = nil
	c.path.reset()
	c.withinCopyTo = false
}

func (c *ParseContext) Reader() TokenReader         { return c.st.reader }
func (c *ParseContext) Doc() *Document              { return c.doc }
func (c *ParseContext) RootDoc() *Document          { return c.st.rootDoc }
func (c *ParseContext) Path() *ContentPath          { return c.path }
func (c *ParseContext) DocMapper() *DocumentMapper  { return c.st.docMapper }
func (c *ParseContext) Root() *ObjectMapper         { return c.st.docMapper.root }
func (c *ParseContext) Source() SourceToParse       { return c.st.source }
func (c *ParseContext) IsWithinCopyTo() bool        { return c.withinCopyTo }
func (c *ParseContext) DynamicMappers() []Mapper    { return c.st.dynamicMappers }
func (c *ParseContext) Docs() []*Document           { return c.st.docs }
func (c *ParseContext) registry() *Registry         { return c.st.registry }
func (c *ParseContext) rootSettings() *RootSettings { return c.st.docMapper.root.root }

// AddDynamicMapper records a mapper created during the parse. Duplicates
// are kept and collapsed when the update is built.
func (c *ParseContext) AddDynamicMapper(m Mapper) {
	c.st.dynamicMappers = append(c.st.dynamicMappers, m)
	if o, ok := m.(*ObjectMapper); ok {
		c.st.newObjects[o.name] = o
	}
}

// objectMapper resolves an object by full path, looking at objects created
// during this parse before the published mapping.
func (c *ParseContext) objectMapper(fullPath string) (*ObjectMapper, bool) {
	if o, ok := c.st.newObjects[fullPath]; ok {
		return o, true
	}
	return c.st.docMapper.ObjectMapper(fullPath)
}

// lookupField resolves a field through the index wide lookup.
func (c *ParseContext) lookupField(fullName string) (*FieldMapper, bool) {
	if c.st.lookup != nil {
		if f, ok := c.st.lookup.LookupField(fullName); ok {
			return f, true
		}
	}
	return c.st.docMapper.LookupField(fullName)
}

// createNestedContext starts a sub-document for the nested object at
// fullPath.
func (c *ParseContext) createNestedContext(fullPath string) *ParseContext {
	doc := newDocument(fullPath+".", c.doc)
	c.st.docs = append(c.st.docs, doc)
	return &ParseContext{st: c.st, doc: doc, path: c.path, withinCopyTo: c.withinCopyTo}
}

func (c *ParseContext) switchDoc(doc *Document) *ParseContext {
	return &ParseContext{st: c.st, doc: doc, path: c.path, withinCopyTo: c.withinCopyTo}
}

func (c *ParseContext) createCopyToContext() *ParseContext {
	return &ParseContext{st: c.st, doc: c.doc, path: c.path, withinCopyTo: true}
}

func (c *ParseContext) overridePath(path *ContentPath) *ParseContext {
	return &ParseContext{st: c.st, doc: c.doc, path: path, withinCopyTo: c.withinCopyTo}
}

// ContextPool is a bounded free list of parse contexts. Contexts are reset
// on release so nothing leaks between documents.
type ContextPool struct {
	free chan *ParseContext
}

func NewContextPool(size int) *ContextPool {
	if size < 1 {
		size = 1
	}
	return &ContextPool{free: make(chan *ParseContext, size)}
}

// Acquire returns a pooled context or a new one when the pool is empty.
func (p *ContextPool) Acquire() *ParseContext {
	select {
	case c := <-p.free:
		return c
	default:
		return newParseContext()
	}
}

// Release resets c and returns it to the pool. Contexts beyond the pool
// size are dropped.
func (p *ContextPool) Release(c *ParseContext) {
	if c == nil {
		return
	}
	c.clear()
	select {
	case p.free <- c:
	default:
	}
}

// Len is the number of idle contexts in the pool.
func (p *ContextPool) Len() int { return len(p.free) }
