// Package shard spreads parsed documents over independent indexer engines.
// Each shard owns an Engine backed by its own data directory; a document and
// all its nested sub-documents go to the shard its uid hashes to.
package shard

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/mapper"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/metrics"
)

// Router maps shard IDs to dedicated indexer.Engine instances.
type Router struct {
	engines   map[int]*indexer.Engine
	mu        sync.RWMutex
	numShards int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewRouter creates cfg.ShardCount engines, each in its own sub-directory
// under cfg.DataDir. m may be nil.
func NewRouter(cfg config.IndexerConfig, m *metrics.Metrics) (*Router, error) {
	numShards := cfg.ShardCount
	if numShards <= 0 {
		return nil, fmt.Errorf("shard count must be positive; got %d", numShards)
	}
	r := &Router{
		engines:   make(map[int]*indexer.Engine, numShards),
		numShards: numShards,
		metrics:   m,
		logger:    slog.Default().With("component", "shard-router"),
	}
	for i := 0; i < numShards; i++ {
		shardCfg := cfg
		shardCfg.DataDir = filepath.Join(cfg.DataDir, fmt.Sprintf("shard-%d", i))
		engine, err := indexer.NewEngine(shardCfg, m)
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("creating engine for shard %d: %w", i, err)
		}
		r.engines[i] = engine
		r.logger.Info("shard engine initialized",
			"shard_id", i,
			"data_dir", shardCfg.DataDir,
		)
	}
	r.logger.Info("shard router ready", "num_shards", numShards)
	return r, nil
}

// ShardFor returns the shard a document uid belongs to.
func (r *Router) ShardFor(uid string) int {
	return int(xxhash.Sum64String(uid) % uint64(r.numShards))
}

// Route returns the Engine responsible for the given shard ID.
func (r *Router) Route(shardID int) (*indexer.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, ok := r.engines[shardID]
	if !ok {
		return nil, fmt.Errorf("unknown shard ID %d (valid range: 0-%d)", shardID, r.numShards-1)
	}
	return engine, nil
}

// Index hands every sub-document of parsed to the shard owning its uid and
// returns that shard's ID.
func (r *Router) Index(parsed *mapper.ParsedDocument) (int, error) {
	shardID := r.ShardFor(parsed.UID)
	engine, err := r.Route(shardID)
	if err != nil {
		return shardID, err
	}
	n, err := engine.IndexDocument(parsed)
	if n > 0 && r.metrics != nil {
		r.metrics.DocsIndexedTotal.Inc()
		r.metrics.SubDocsIndexedTotal.Add(float64(n))
		r.metrics.ShardDocCount.WithLabelValues(strconv.Itoa(shardID)).Set(float64(engine.GetTotalDocs()))
	}
	if err != nil {
		return shardID, fmt.Errorf("shard %d: %w", shardID, err)
	}
	return shardID, nil
}

// GetAllEngines returns a snapshot map of all shard engines.
func (r *Router) GetAllEngines() map[int]*indexer.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[int]*indexer.Engine, len(r.engines))
	for id, engine := range r.engines {
		result[id] = engine
	}
	return result
}

// NumShards returns the number of shards managed by this router.
func (r *Router) NumShards() int {
	return r.numShards
}

// FlushAll flushes every shard engine to disk.
func (r *Router) FlushAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for id, engine := range r.engines {
		if err := engine.Flush(); err != nil {
			r.logger.Error("flush failed", "shard_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ReloadAll tells every shard engine to re-scan for newly flushed segments.
// Returns the total number of new segments loaded across all shards.
func (r *Router) ReloadAll() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, engine := range r.engines {
		total += engine.ReloadSegments()
	}
	return total
}

// Close flushes and closes every shard engine.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeAll()
}

// closeAll closes every shard engine, collecting the first error encountered.
func (r *Router) closeAll() error {
	var firstErr error
	for id, engine := range r.engines {
		if err := engine.Close(); err != nil {
			r.logger.Error("close failed", "shard_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
