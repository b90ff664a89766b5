package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/mapper"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/mapping"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/tracing"
)

// Indexer takes parsed documents. *shard.Router satisfies it and returns
// the shard the document landed on.
type Indexer interface {
	Index(parsed *mapper.ParsedDocument) (int, error)
}

// Pipeline parses ingest events against the mapping service and indexes the
// resulting sub-documents.
type Pipeline struct {
	mappings *mapping.Service
	indexer  Indexer
	status   StatusRecorder
	logger   *slog.Logger
	slow     time.Duration
}

// NewPipeline wires a pipeline. status may be nil.
func NewPipeline(mappings *mapping.Service, indexer Indexer, status StatusRecorder) *Pipeline {
	return &Pipeline{
		mappings: mappings,
		indexer:  indexer,
		status:   status,
		logger:   logger.WithComponent("ingest-pipeline"),
	}
}

// SetSlowThreshold makes traces of documents slower than d log at warn.
func (p *Pipeline) SetSlowThreshold(d time.Duration) { p.slow = d }

// Process parses one event, installs the mapping update it produced and
// indexes its sub-documents. Events without an id get a random one.
func (p *Pipeline) Process(ctx context.Context, ev IngestEvent) (*Result, error) {
	if ev.Index == "" {
		ev.Index = p.mappings.IndexName()
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	uid := mapper.UID(ev.Type, ev.ID)
	ctx = logger.WithDocument(ctx, ev.Index, ev.Type, ev.ID)
	log := logger.FromContext(ctx)
	ctx, span := tracing.StartSpan(ctx, "ingest", uid)
	defer func() {
		span.End()
		span.Log(ctx, log, p.slow)
	}()

	if err := ValidateEvent(&ev); err != nil {
		err = fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
		p.record(ctx, Status{Index: ev.Index, UID: uid, Type: ev.Type, Status: StatusRejected, Error: err.Error()})
		return nil, err
	}
	if ev.Index != p.mappings.IndexName() {
		err := fmt.Errorf("%w: document for index [%s] sent to index [%s]", apperrors.ErrInvalidInput, ev.Index, p.mappings.IndexName())
		p.record(ctx, Status{Index: ev.Index, UID: uid, Type: ev.Type, Status: StatusRejected, Error: err.Error()})
		return nil, err
	}
	format, _ := contentFormat(ev.Format)
	body, err := ev.body()
	if err != nil {
		err = fmt.Errorf("%w: %w", apperrors.ErrMalformedContent, err)
		p.record(ctx, Status{Index: ev.Index, UID: uid, Type: ev.Type, Status: StatusRejected, Error: err.Error()})
		return nil, err
	}

	parseCtx, parseSpan := tracing.StartChildSpan(ctx, "parse")
	parsed, err := p.mappings.Parse(parseCtx, mapper.SourceToParse{
		Index:  ev.Index,
		Type:   ev.Type,
		ID:     ev.ID,
		Source: body,
		Format: format,
	})
	parseSpan.End()
	if err != nil {
		span.SetAttr("error", err.Error())
		state := StatusFailed
		if Permanent(err) {
			state = StatusRejected
		}
		p.record(ctx, Status{Index: ev.Index, UID: uid, Type: ev.Type, Status: state, Error: err.Error()})
		return nil, err
	}

	parseSpan.SetAttr("sub_docs", len(parsed.Docs))
	parseSpan.SetAttr("mapping_update", parsed.DynamicUpdate != nil)
	res := &Result{UID: parsed.UID, Version: parsed.Version, SubDocs: len(parsed.Docs)}
	if dm, err := p.mappings.DocumentMapper(ctx, ev.Type); err == nil {
		res.MappingVersion = dm.Version()
	}
	if res.SubDocs == 0 {
		p.record(ctx, Status{Index: ev.Index, UID: uid, Type: ev.Type, Status: StatusIndexed})
		log.Debug("empty document, nothing to index")
		return res, nil
	}

	_, indexSpan := tracing.StartChildSpan(ctx, "index")
	shardID, err := p.indexer.Index(parsed)
	indexSpan.SetAttr("shard_id", shardID)
	indexSpan.End()
	res.ShardID = shardID
	if err != nil {
		p.record(ctx, Status{Index: ev.Index, UID: uid, Type: ev.Type, Status: StatusFailed, Error: err.Error()})
		return nil, fmt.Errorf("indexing %s: %w", uid, err)
	}
	p.record(ctx, Status{Index: ev.Index, UID: uid, Type: ev.Type, Status: StatusIndexed, SubDocs: res.SubDocs, ShardID: shardID})

	log.Info("document indexed",
		"shard_id", shardID,
		"sub_docs", res.SubDocs,
		"mapping_version", res.MappingVersion,
	)
	return res, nil
}

// HandleMessage returns a Kafka MessageHandler over Process. Documents that
// can never be indexed as they are come back as poison so the consumer
// moves past them; anything else is left for redelivery.
func (p *Pipeline) HandleMessage() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[IngestEvent](value)
		if err != nil {
			p.logger.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			return err
		}
		if _, err := p.Process(ctx, ev); err != nil {
			if Permanent(err) {
				return fmt.Errorf("%w: %w", kafka.ErrPoison, err)
			}
			return err
		}
		return nil
	}
}

// Permanent reports whether err rejects the document itself, so that
// processing it again against the same mappings fails the same way.
func Permanent(err error) bool {
	for _, target := range []error{
		apperrors.ErrInvalidInput,
		apperrors.ErrMalformedContent,
		apperrors.ErrIllegalArgument,
		apperrors.ErrStrictDynamicMapping,
		apperrors.ErrMappingConflict,
		apperrors.ErrFieldLimitExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (p *Pipeline) record(ctx context.Context, st Status) {
	if p.status == nil {
		return
	}
	if err := p.status.Record(ctx, st); err != nil {
		logger.FromContext(ctx).Error("failed to update document status",
			"status", st.Status,
			"error", err,
		)
	}
}
