package mapper

import "strings"

// ContentPath tracks the object names between the document root and the
// value being parsed. Callers pop exactly what they push.
type ContentPath struct {
	parts []string
}

func NewContentPath() *ContentPath {
	return &ContentPath{parts: make([]string, 0, 8)}
}

func (p *ContentPath) Add(name string) {
	p.parts = append(p.parts, name)
}

func (p *ContentPath) Remove() {
	if len(p.parts) > 0 {
		p.parts = p.parts[:len(p.parts)-1]
	}
}

func (p *ContentPath) Depth() int { return len(p.parts) }

// PathAsText returns the dotted path with name appended.
func (p *ContentPath) PathAsText(name string) string {
	if len(p.parts) == 0 {
		return name
	}
	var b strings.Builder
	for _, s := range p.parts {
		b.WriteString(s)
		b.WriteByte('.')
	}
	b.WriteString(name)
	return b.String()
}

func (p *ContentPath) reset() {
	p.parts = p.parts[:0]
}
