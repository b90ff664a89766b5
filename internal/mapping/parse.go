package mapping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/mapper"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/tracing"
)

// Parse parses src against the current mapping of src.Type, creating the
// type on first use, and installs the dynamic update the document
// produced. A document that lost an install race is parsed again against
// the newer mapping, up to MaxUpdateAttempts times. Sources given as a
// Reader cannot be replayed and get a single attempt.
//
// The returned document's DynamicUpdate has already been installed.
func (s *Service) Parse(ctx context.Context, src mapper.SourceToParse) (*mapper.ParsedDocument, error) {
	if src.Type == "" {
		return nil, fmt.Errorf("%w: document type is required", apperrors.ErrInvalidInput)
	}
	if src.Index == "" {
		src.Index = s.index
	}
	ctx = logger.WithDocument(ctx, src.Index, src.Type, src.ID)

	attempts := s.cfg.MaxUpdateAttempts
	if src.Reader != nil {
		attempts = 1
	}
	var parsed *mapper.ParsedDocument
	err := resilience.Retry(ctx, "parse-document", resilience.RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: 2 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Retryable: func(err error) bool {
			return errors.Is(err, apperrors.ErrVersionConflict)
		},
	}, func() error {
		dm, err := s.DocumentMapperWithAutoCreate(ctx, src.Type)
		if err != nil {
			return err
		}
		doc, err := s.ParseWith(ctx, dm, src)
		if err != nil {
			return err
		}
		if doc.DynamicUpdate != nil {
			_, span := tracing.StartChildSpan(ctx, "apply_update")
			span.SetAttr("base_version", dm.Version())
			_, err := s.ApplyUpdate(ctx, src.Type, dm.Version(), doc.DynamicUpdate)
			span.End()
			if err != nil {
				return err
			}
		}
		parsed = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return parsed, nil
}

// ParseWith parses src against dm without installing anything. The caller
// decides what to do with the dynamic update.
func (s *Service) ParseWith(ctx context.Context, dm *mapper.DocumentMapper, src mapper.SourceToParse) (*mapper.ParsedDocument, error) {
	start := time.Now()
	doc, err := s.parser.Parse(dm, src)
	if s.metrics != nil {
		s.metrics.ParseLatency.WithLabelValues(dm.Type()).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		var pe *mapper.ParsingError
		kind := "unknown"
		if errors.As(err, &pe) {
			kind = pe.Kind.String()
		}
		if s.metrics != nil {
			s.metrics.ParseFailuresTotal.WithLabelValues(dm.Type(), kind).Inc()
		}
		logger.FromContext(ctx).Debug("document rejected", "kind", kind, "error", err)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.DocsParsedTotal.WithLabelValues(dm.Type()).Inc()
		if doc.DynamicUpdate != nil {
			s.metrics.DynamicMappersTotal.WithLabelValues(dm.Type()).Add(float64(countMappers(doc.DynamicUpdate)))
		}
	}
	return doc, nil
}

// countMappers counts the objects and fields below o, multi-fields
// included.
func countMappers(o *mapper.ObjectMapper) int {
	n := 0
	for _, child := range o.Children() {
		switch m := child.(type) {
		case *mapper.ObjectMapper:
			n += 1 + countMappers(m)
		case *mapper.FieldMapper:
			n += 1 + len(m.MultiFields())
		}
	}
	return n
}
