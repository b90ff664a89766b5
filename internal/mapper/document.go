package mapper

// Metadata field names. A root level document field may not use any of them.
const (
	FieldID         = "_id"
	FieldTypeName   = "_type"
	FieldUID        = "_uid"
	FieldSource     = "_source"
	FieldAll        = "_all"
	FieldRouting    = "_routing"
	FieldParent     = "_parent"
	FieldIndex      = "_index"
	FieldVersion    = "_version"
	FieldFieldNames = "_field_names"
	FieldTimestamp  = "_timestamp"
	FieldTTL        = "_ttl"
)

var metadataFields = map[string]struct{}{
	FieldID: {}, FieldTypeName: {}, FieldUID: {}, FieldSource: {}, FieldAll: {},
	FieldRouting: {}, FieldParent: {}, FieldIndex: {}, FieldVersion: {},
	FieldFieldNames: {}, FieldTimestamp: {}, FieldTTL: {},
}

// IsMetadataField reports whether name is reserved for document metadata.
func IsMetadataField(name string) bool {
	_, ok := metadataFields[name]
	return ok
}

// nestedTypePrefix tags nested sub-documents with their object path.
const nestedTypePrefix = "__"

// IndexableField is one value headed for the index.
type IndexableField struct {
	Name  string
	Type  string
	Value any
	// Analyzer names the analysis chain of text values.
	Analyzer  string
	Indexed   bool
	Stored    bool
	DocValues bool
}

// Document is one indexable unit: the root document or a nested
// sub-document.
type Document struct {
	fields []IndexableField
	parent *Document
	prefix string
}

func newDocument(prefix string, parent *Document) *Document {
	return &Document{prefix: prefix, parent: parent}
}

func (d *Document) Add(f IndexableField) {
	d.fields = append(d.fields, f)
}

func (d *Document) Fields() []IndexableField { return d.fields }

func (d *Document) Parent() *Document { return d.parent }

// Prefix is the dotted object path of a nested document followed by a dot,
// or empty for the root document.
func (d *Document) Prefix() string { return d.prefix }

// Get returns the first value indexed under name.
func (d *Document) Get(name string) (IndexableField, bool) {
	for _, f := range d.fields {
		if f.Name == name {
			return f, true
		}
	}
	return IndexableField{}, false
}

// GetAll returns every value indexed under name, in insertion order.
func (d *Document) GetAll(name string) []IndexableField {
	var out []IndexableField
	for _, f := range d.fields {
		if f.Name == name {
			out = append(out, f)
		}
	}
	return out
}

// IsNested reports whether the document was produced by a nested object.
func (d *Document) IsNested() bool { return d.parent != nil }
