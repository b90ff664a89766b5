// Package mapping owns the authoritative mapping of every type in one index.
// Readers get immutable DocumentMapper snapshots without locking; a single
// writer installs new versions after a compare-and-swap on the version,
// persists them and announces them on Kafka.
package mapping

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/mapper"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/mapping/store"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/resilience"
)

const publishTimeout = 5 * time.Second

// Deps are the collaborators of a Service. Store is required; the rest may
// be nil.
type Deps struct {
	Store     store.Store
	Cache     store.VersionCache
	Publisher kafka.Publisher
	Metrics   *metrics.Metrics
	Registry  *mapper.Registry
}

// Service holds the current mapping of each type of one index.
type Service struct {
	index     string
	cfg       config.MapperConfig
	registry  *mapper.Registry
	parser    *mapper.DocumentParser
	store     store.Store
	cache     store.VersionCache
	publisher kafka.Publisher
	metrics   *metrics.Metrics
	templates []*mapper.DynamicTemplate

	// writeMu serializes installs. Readers never take it.
	writeMu sync.Mutex
	typesMu sync.RWMutex
	types   map[string]*atomic.Pointer[mapper.DocumentMapper]
	loads   singleflight.Group
	logger  *slog.Logger
}

func NewService(cfg config.MapperConfig, deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("%w: mapping service requires a store", apperrors.ErrInvalidInput)
	}
	if _, err := mapper.ParseDynamic(cfg.Dynamic); err != nil {
		return nil, err
	}
	if deps.Registry == nil {
		deps.Registry = mapper.NewRegistry()
	}
	s := &Service{
		index:     cfg.Index,
		cfg:       cfg,
		registry:  deps.Registry,
		store:     deps.Store,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		types:     make(map[string]*atomic.Pointer[mapper.DocumentMapper]),
		logger:    slog.Default().With("component", "mapping-service", "index", cfg.Index),
	}
	if cfg.TemplatesFile != "" {
		f, err := os.Open(cfg.TemplatesFile)
		if err != nil {
			return nil, fmt.Errorf("opening templates file: %w", err)
		}
		defer f.Close()
		if s.templates, err = mapper.LoadTemplates(f); err != nil {
			return nil, fmt.Errorf("loading templates file %s: %w", cfg.TemplatesFile, err)
		}
		s.logger.Info("dynamic templates loaded", "count", len(s.templates), "file", cfg.TemplatesFile)
	}
	s.parser = mapper.NewDocumentParser(s.registry, s, mapper.ParserConfig{
		KeywordIgnoreAbove: cfg.IgnoreAbove,
		ContextPoolSize:    cfg.ContextPoolSize,
	})
	return s, nil
}

func (s *Service) IndexName() string          { return s.index }
func (s *Service) Registry() *mapper.Registry { return s.registry }

// Bootstrap loads the latest version of every stored type.
func (s *Service) Bootstrap(ctx context.Context) error {
	recs, err := s.store.List(ctx, s.index)
	if err != nil {
		return fmt.Errorf("listing mappings: %w", err)
	}
	for _, rec := range recs {
		dm, err := s.fromRecord(rec)
		if err != nil {
			return err
		}
		s.swapIfNewer(dm)
	}
	s.logger.Info("mappings loaded", "types", len(recs))
	return nil
}

// Types returns the names of the loaded types in sorted order.
func (s *Service) Types() []string {
	s.typesMu.RLock()
	defer s.typesMu.RUnlock()
	out := make([]string, 0, len(s.types))
	for name, p := range s.types {
		if p.Load() != nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// documentTypes is Types without the _default_ template.
func (s *Service) documentTypes() []string {
	types := s.Types()
	out := types[:0]
	for _, t := range types {
		if t != mapper.DefaultMappingType {
			out = append(out, t)
		}
	}
	return out
}

func (s *Service) snapshot(docType string) *mapper.DocumentMapper {
	s.typesMu.RLock()
	p := s.types[docType]
	s.typesMu.RUnlock()
	if p == nil {
		return nil
	}
	return p.Load()
}

// swapIfNewer publishes dm unless an equal or newer version is already
// visible, and returns whichever snapshot is current afterwards.
func (s *Service) swapIfNewer(dm *mapper.DocumentMapper) *mapper.DocumentMapper {
	s.typesMu.Lock()
	p := s.types[dm.Type()]
	if p == nil {
		p = new(atomic.Pointer[mapper.DocumentMapper])
		s.types[dm.Type()] = p
	}
	s.typesMu.Unlock()
	for {
		cur := p.Load()
		if cur != nil && cur.Version() >= dm.Version() {
			return cur
		}
		if p.CompareAndSwap(cur, dm) {
			if s.metrics != nil {
				s.metrics.MappingVersion.WithLabelValues(dm.Type()).Set(float64(dm.Version()))
				s.metrics.MappingFieldCount.WithLabelValues(dm.Type()).Set(float64(dm.FieldCount()))
			}
			return dm
		}
	}
}

func (s *Service) fromRecord(rec store.Record) (*mapper.DocumentMapper, error) {
	root, err := s.registry.ParseMapping(rec.Type, rec.Source)
	if err != nil {
		return nil, fmt.Errorf("parsing stored mapping %s v%d: %w", rec.Type, rec.Version, err)
	}
	return mapper.NewDocumentMapper(root, rec.Version)
}

// DocumentMapper returns the current snapshot of docType, loading it from
// the store on first use. Unknown types fail with apperrors.ErrTypeNotFound.
func (s *Service) DocumentMapper(ctx context.Context, docType string) (*mapper.DocumentMapper, error) {
	if dm := s.snapshot(docType); dm != nil {
		return dm, nil
	}
	return s.Load(ctx, docType)
}

// Load reads docType from the store. Concurrent loads of one type share a
// single store round trip.
func (s *Service) Load(ctx context.Context, docType string) (*mapper.DocumentMapper, error) {
	v, err, shared := s.loads.Do(docType, func() (any, error) {
		rec, err := s.store.Get(ctx, s.index, docType)
		if err != nil {
			return nil, err
		}
		dm, err := s.fromRecord(rec)
		if err != nil {
			return nil, err
		}
		return s.swapIfNewer(dm), nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("mapping load shared", "type", docType)
	}
	return v.(*mapper.DocumentMapper), nil
}

// DocumentMapperWithAutoCreate returns the snapshot of docType, creating
// and installing a default mapping when the type does not exist yet.
func (s *Service) DocumentMapperWithAutoCreate(ctx context.Context, docType string) (*mapper.DocumentMapper, error) {
	dm, err := s.DocumentMapper(ctx, docType)
	if err == nil || !errors.Is(err, apperrors.ErrTypeNotFound) {
		return dm, err
	}
	if docType == mapper.DefaultMappingType {
		return nil, fmt.Errorf("%w: it is forbidden to index into the default mapping [%s]",
			apperrors.ErrIllegalArgument, mapper.DefaultMappingType)
	}
	if err := mapper.ValidateTypeName(docType); err != nil {
		return nil, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if dm := s.snapshot(docType); dm != nil {
		return dm, nil
	}
	root, err := s.defaultRoot(docType)
	if err != nil {
		return nil, err
	}
	next, err := mapper.NewDocumentMapper(root, 1)
	if err != nil {
		return nil, err
	}
	if err := s.checkLimits(next); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, 0, next); err != nil {
		if errors.Is(err, apperrors.ErrVersionConflict) {
			return s.Load(ctx, docType)
		}
		return nil, err
	}
	s.logger.Info("mapping created", "type", docType)
	return next, nil
}

// defaultRoot is the starting mapping of a new type: the _default_ mapping
// when one was put, the configured defaults otherwise.
func (s *Service) defaultRoot(docType string) (*mapper.ObjectMapper, error) {
	if def := s.snapshot(mapper.DefaultMappingType); def != nil {
		body, err := def.Root().MarshalJSON()
		if err != nil {
			return nil, err
		}
		return s.registry.ParseMapping(docType, body)
	}
	dynamic, err := mapper.ParseDynamic(s.cfg.Dynamic)
	if err != nil {
		return nil, err
	}
	b := mapper.NewRootBuilder(docType).Dynamic(dynamic)
	settings := b.Settings()
	dateDetection, numericDetection := s.cfg.DateDetection, s.cfg.NumericDetection
	settings.DateDetection = &dateDetection
	settings.NumericDetection = &numericDetection
	if s.cfg.DynamicDateFormats != nil {
		settings.DynamicDateFormats = append([]string(nil), s.cfg.DynamicDateFormats...)
	}
	settings.Templates = append([]*mapper.DynamicTemplate(nil), s.templates...)
	return b.BuildRoot()
}

// PutMapping merges an explicit mapping definition into docType, creating
// the type when needed.
func (s *Service) PutMapping(ctx context.Context, docType string, definition []byte) (*mapper.DocumentMapper, error) {
	patch, err := s.registry.ParseMapping(docType, definition)
	if err != nil {
		return nil, err
	}
	if _, err := s.DocumentMapper(ctx, docType); err != nil && !errors.Is(err, apperrors.ErrTypeNotFound) {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	current := s.snapshot(docType)
	if current == nil {
		next, err := mapper.NewDocumentMapper(patch, 1)
		if err != nil {
			return nil, err
		}
		if err := s.checkLimits(next); err != nil {
			return nil, err
		}
		if err := s.commit(ctx, 0, next); err != nil {
			return nil, err
		}
		return next, nil
	}
	return s.mergeLocked(ctx, current, patch)
}

// ApplyUpdate installs the dynamic update produced by parsing against
// version expectedVersion of docType. It fails with
// apperrors.ErrVersionConflict when another update got there first; the
// caller re-parses against the newer mapping.
func (s *Service) ApplyUpdate(ctx context.Context, docType string, expectedVersion int64, patch *mapper.ObjectMapper) (*mapper.DocumentMapper, error) {
	if patch == nil {
		return s.DocumentMapper(ctx, docType)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	current := s.snapshot(docType)
	var version int64
	if current != nil {
		version = current.Version()
	}
	if version != expectedVersion {
		s.countConflict(docType)
		return nil, fmt.Errorf("%w: mapping [%s] is at version %d, update was built against %d",
			apperrors.ErrVersionConflict, docType, version, expectedVersion)
	}
	if current == nil {
		root, err := s.defaultRoot(docType)
		if err != nil {
			return nil, err
		}
		if current, err = mapper.NewDocumentMapper(root, 0); err != nil {
			return nil, err
		}
	}
	return s.mergeLocked(ctx, current, patch)
}

func (s *Service) mergeLocked(ctx context.Context, current *mapper.DocumentMapper, patch *mapper.ObjectMapper) (*mapper.DocumentMapper, error) {
	next, err := current.Merge(patch)
	if err != nil {
		s.countUpdate(current.Type(), "rejected")
		return nil, err
	}
	if current.Version() > 0 && sameMapping(current, next) {
		s.countUpdate(current.Type(), "noop")
		return current, nil
	}
	if err := s.checkLimits(next); err != nil {
		s.countUpdate(current.Type(), "rejected")
		return nil, err
	}
	if err := s.commit(ctx, current.Version(), next); err != nil {
		return nil, err
	}
	return next, nil
}

func sameMapping(a, b *mapper.DocumentMapper) bool {
	as, err := a.Source()
	if err != nil {
		return false
	}
	bs, err := b.Source()
	if err != nil {
		return false
	}
	return bytes.Equal(as, bs)
}

// checkLimits enforces the total fields limit and the rule that a field
// name has one type across all types of the index.
func (s *Service) checkLimits(next *mapper.DocumentMapper) error {
	if limit := s.cfg.TotalFieldsLimit; limit > 0 && next.FieldCount() > limit {
		return fmt.Errorf("%w: Limit of total fields [%d] in index [%s] has been exceeded",
			apperrors.ErrFieldLimitExceeded, limit, s.index)
	}
	if next.Type() == mapper.DefaultMappingType {
		return nil
	}
	for _, other := range s.documentTypes() {
		if other == next.Type() {
			continue
		}
		dm := s.snapshot(other)
		for _, name := range next.FieldNames() {
			theirs, ok := dm.LookupField(name)
			if !ok {
				continue
			}
			ours, _ := next.LookupField(name)
			if ours.TypeName() != theirs.TypeName() {
				return fmt.Errorf("%w: mapper [%s] cannot be changed from type [%s] to [%s]",
					apperrors.ErrMappingConflict, name, theirs.TypeName(), ours.TypeName())
			}
		}
	}
	return nil
}

// commit persists next, publishes it locally and announces it. It must be
// called with writeMu held.
func (s *Service) commit(ctx context.Context, expected int64, next *mapper.DocumentMapper) error {
	src, err := next.Source()
	if err != nil {
		return fmt.Errorf("%w: serializing mapping: %v", apperrors.ErrInternal, err)
	}
	rec := store.Record{Index: s.index, Type: next.Type(), Version: next.Version(), Source: src}
	err = resilience.Retry(ctx, "save-mapping", resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		Retryable: func(err error) bool {
			return !errors.Is(err, apperrors.ErrVersionConflict)
		},
	}, func() error {
		return s.store.Save(ctx, rec, expected)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrVersionConflict) {
			s.countConflict(next.Type())
			// Another process installed first; pick up its version so the
			// retried parse sees it.
			if _, loadErr := s.Load(ctx, next.Type()); loadErr != nil {
				s.logger.Warn("reload after conflict failed", "type", next.Type(), "error", loadErr)
			}
		}
		return err
	}
	s.swapIfNewer(next)
	s.countUpdate(next.Type(), "installed")
	s.logger.Info("mapping updated", "type", next.Type(), "version", next.Version(), "fields", next.FieldCount())

	if s.cache != nil {
		if err := s.cache.SetVersion(ctx, s.index, next.Type(), next.Version()); err != nil {
			s.logger.Warn("caching mapping version failed", "type", next.Type(), "error", err)
		}
	}
	if s.publisher != nil {
		event := kafka.Event{
			Key:     s.index + "/" + next.Type(),
			Value:   UpdateEvent{Index: s.index, Type: next.Type(), Version: next.Version(), Mapping: src},
			Headers: map[string]string{"content-type": "application/json"},
		}
		err := resilience.WithTimeout(ctx, publishTimeout, "publish-mapping-update", func(ctx context.Context) error {
			return s.publisher.Publish(ctx, event)
		})
		if err != nil {
			s.logger.Warn("announcing mapping update failed", "type", next.Type(), "version", next.Version(), "error", err)
		}
	}
	return nil
}

func (s *Service) countUpdate(docType, outcome string) {
	if s.metrics != nil {
		s.metrics.MappingUpdatesTotal.WithLabelValues(docType, outcome).Inc()
	}
}

func (s *Service) countConflict(docType string) {
	if s.metrics != nil {
		s.metrics.MappingConflictsTotal.WithLabelValues(docType).Inc()
	}
}

// LookupField resolves a full field name across every type of the index.
func (s *Service) LookupField(fullName string) (*mapper.FieldMapper, bool) {
	for _, t := range s.documentTypes() {
		if dm := s.snapshot(t); dm != nil {
			if f, ok := dm.LookupField(fullName); ok {
				return f, true
			}
		}
	}
	return nil, false
}

// FieldNames expands a simple '*' pattern over the full field names of
// every type, sorted and without duplicates.
func (s *Service) FieldNames(pattern string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range s.documentTypes() {
		for _, name := range s.snapshot(t).FieldNames() {
			if _, dup := seen[name]; dup || !mapper.SimpleMatch(pattern, name) {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Sync reloads every type whose cached version is ahead of the local
// snapshot.
func (s *Service) Sync(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	for _, t := range s.Types() {
		v, err := s.cache.Version(ctx, s.index, t)
		if err != nil {
			if errors.Is(err, apperrors.ErrTypeNotFound) {
				continue
			}
			return err
		}
		if v > s.snapshot(t).Version() {
			if s.metrics != nil {
				s.metrics.MappingCacheMisses.Inc()
			}
			if _, err := s.Load(ctx, t); err != nil {
				return fmt.Errorf("reloading mapping [%s]: %w", t, err)
			}
			s.logger.Info("mapping refreshed", "type", t, "version", v)
		} else if s.metrics != nil {
			s.metrics.MappingCacheHits.Inc()
		}
	}
	return nil
}
