// Package ingest moves documents from the ingest topic into the index:
// decode the event, parse it against the current mapping of its type,
// install the dynamic update, hand the sub-documents to the shard router
// and record the outcome.
package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/mapper"
)

// Document states recorded in the documents table.
const (
	StatusPending  = "PENDING"
	StatusIndexed  = "INDEXED"
	StatusRejected = "REJECTED"
	StatusFailed   = "FAILED"
)

// IngestEvent is the Kafka message payload on the ingest topic.
type IngestEvent struct {
	Index  string `json:"index,omitempty"`
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Format string `json:"format,omitempty"`
	// Source is the document body. JSON documents are embedded as is; YAML
	// documents travel as a JSON string.
	Source     json.RawMessage `json:"source"`
	IngestedAt time.Time       `json:"ingested_at"`
}

// IngestResponse is returned to the caller after a document is accepted.
type IngestResponse struct {
	Index  string `json:"index"`
	Type   string `json:"type"`
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Result describes one processed document.
type Result struct {
	UID            string
	Version        int64
	SubDocs        int
	ShardID        int
	MappingVersion int64
}

// contentFormat maps the event format onto a parser format.
func contentFormat(format string) (mapper.ContentFormat, error) {
	switch format {
	case "", "json":
		return mapper.FormatJSON, nil
	case "yaml", "yml":
		return mapper.FormatYAML, nil
	default:
		return 0, fmt.Errorf("unsupported format %q", format)
	}
}

// body returns the raw document bytes carried by the event.
func (e IngestEvent) body() ([]byte, error) {
	if e.Format == "yaml" || e.Format == "yml" {
		var s string
		if err := json.Unmarshal(e.Source, &s); err != nil {
			return nil, fmt.Errorf("yaml source must be a JSON string: %w", err)
		}
		return []byte(s), nil
	}
	return e.Source, nil
}
