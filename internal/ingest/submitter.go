package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/mapper"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/kafka"
)

// Submitter validates documents, marks them PENDING and publishes them to
// the ingest topic. Events are keyed by uid so every version of a document
// is consumed in order.
type Submitter struct {
	index    string
	producer kafka.Publisher
	status   StatusRecorder
	logger   *slog.Logger
}

// NewSubmitter creates a Submitter for index. status may be nil.
func NewSubmitter(index string, producer kafka.Publisher, status StatusRecorder) *Submitter {
	return &Submitter{
		index:    index,
		producer: producer,
		status:   status,
		logger:   slog.Default().With("component", "ingest-submitter"),
	}
}

// Submit publishes ev for asynchronous indexing.
func (s *Submitter) Submit(ctx context.Context, ev IngestEvent) (*IngestResponse, error) {
	if ev.Index == "" {
		ev.Index = s.index
	}
	if err := ValidateEvent(&ev); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.IngestedAt = time.Now().UTC()
	uid := mapper.UID(ev.Type, ev.ID)

	if s.status != nil {
		if err := s.status.Record(ctx, Status{Index: ev.Index, UID: uid, Type: ev.Type, Status: StatusPending}); err != nil {
			s.logger.Error("failed to record pending document", "uid", uid, "error", err)
		}
	}
	if err := s.producer.Publish(ctx, kafka.Event{Key: uid, Value: ev}); err != nil {
		return nil, fmt.Errorf("publishing %s: %w", uid, err)
	}
	s.logger.Debug("document submitted", "uid", uid, "format", ev.Format)
	return &IngestResponse{
		Index:  ev.Index,
		Type:   ev.Type,
		ID:     ev.ID,
		Status: StatusPending,
	}, nil
}
