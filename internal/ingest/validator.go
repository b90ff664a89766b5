package ingest

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/mapper"
)

const (
	maxSourceLength = 10 << 20
	maxIDLength     = 512
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateEvent checks the envelope of an ingest event. The document body
// itself is checked by the parser.
func ValidateEvent(e *IngestEvent) error {
	errs := make(map[string]string)

	if e.Type == "" {
		errs["type"] = "type is required"
	} else if e.Type == mapper.DefaultMappingType {
		errs["type"] = "documents cannot be indexed into the default mapping"
	} else if err := mapper.ValidateTypeName(e.Type); err != nil {
		errs["type"] = err.Error()
	}
	if len(e.ID) > maxIDLength {
		errs["id"] = fmt.Sprintf("id must be at most %d bytes", maxIDLength)
	}
	if _, err := contentFormat(e.Format); err != nil {
		errs["format"] = err.Error()
	}
	source := bytes.TrimSpace(e.Source)
	if len(source) == 0 || bytes.Equal(source, []byte("null")) {
		errs["source"] = "source is required"
	} else if len(source) > maxSourceLength {
		errs["source"] = fmt.Sprintf("source must be at most %d bytes", maxSourceLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
