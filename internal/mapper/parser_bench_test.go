package mapper

import (
	"testing"
)

var benchDoc = []byte(`{
	"title": "distributed search with dynamic mappings",
	"views": 1234,
	"score": 4.5,
	"published": "2016-05-01T10:00:00Z",
	"tags": ["search", "mapping", "parser"],
	"author": {"name": "someone", "id": 7},
	"comments": [{"user": "a", "text": "nice"}, {"user": "b", "text": "ok"}]
}`)

// BenchmarkParseDynamic measures a parse that discovers every field.
func BenchmarkParseDynamic(b *testing.B) {
	reg := NewRegistry()
	p := NewDocumentParser(reg, nil, ParserConfig{})
	dm := newTestMapper(b, reg, `{"properties": {"comments": {"type": "nested"}}}`)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Parse(dm, SourceToParse{Type: "doc", ID: "1", Source: benchDoc}); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkParseMapped measures the steady state where the mapping already
// covers the document.
func BenchmarkParseMapped(b *testing.B) {
	reg := NewRegistry()
	p := NewDocumentParser(reg, nil, ParserConfig{})
	dm := newTestMapper(b, reg, `{"properties": {"comments": {"type": "nested"}}}`)
	doc, err := p.Parse(dm, SourceToParse{Type: "doc", ID: "1", Source: benchDoc})
	if err != nil {
		b.Fatal(err)
	}
	if dm, err = dm.Merge(doc.DynamicUpdate); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := p.Parse(dm, SourceToParse{Type: "doc", ID: "1", Source: benchDoc}); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
