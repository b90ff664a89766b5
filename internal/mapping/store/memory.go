package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
)

type key struct{ index, docType string }

// Memory is an in-process Store. It keeps every version, like the
// mapping_versions table.
type Memory struct {
	mu       sync.RWMutex
	latest   map[key]Record
	history  map[key][]Record
	now      func() time.Time
	saveHook func(Record) error
}

func NewMemory() *Memory {
	return &Memory{
		latest:  make(map[key]Record),
		history: make(map[key][]Record),
		now:     time.Now,
	}
}

// FailSaves makes Save return the error produced by fn before touching
// state. Nil clears it.
func (m *Memory) FailSaves(fn func(Record) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveHook = fn
}

func (m *Memory) Get(_ context.Context, index, docType string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.latest[key{index, docType}]
	if !ok {
		return Record{}, fmt.Errorf("%w: [%s] in index [%s]", apperrors.ErrTypeNotFound, docType, index)
	}
	return clone(rec), nil
}

func (m *Memory) List(_ context.Context, index string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for k, rec := range m.latest {
		if k.index == index {
			out = append(out, clone(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (m *Memory) Save(_ context.Context, rec Record, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveHook != nil {
		if err := m.saveHook(rec); err != nil {
			return err
		}
	}
	k := key{rec.Index, rec.Type}
	var current int64
	if cur, ok := m.latest[k]; ok {
		current = cur.Version
	}
	if current != expectedVersion {
		return fmt.Errorf("%w: [%s] is at version %d, expected %d", apperrors.ErrVersionConflict, rec.Type, current, expectedVersion)
	}
	rec = clone(rec)
	rec.UpdatedAt = m.now()
	m.latest[k] = rec
	m.history[k] = append(m.history[k], rec)
	return nil
}

// History returns every saved version of a type, oldest first.
func (m *Memory) History(index, docType string) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.history[key{index, docType}]
	out := make([]Record, len(src))
	for i, rec := range src {
		out[i] = clone(rec)
	}
	return out
}

func (m *Memory) Ping(context.Context) error { return nil }

func clone(rec Record) Record {
	rec.Source = append([]byte(nil), rec.Source...)
	return rec
}

// MemoryCache is an in-process VersionCache.
type MemoryCache struct {
	mu       sync.Mutex
	versions map[key]int64
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{versions: make(map[key]int64)}
}

func (c *MemoryCache) Version(_ context.Context, index, docType string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.versions[key{index, docType}]
	if !ok {
		return 0, apperrors.ErrTypeNotFound
	}
	return v, nil
}

// SetVersion never lowers a cached version.
func (c *MemoryCache) SetVersion(_ context.Context, index, docType string, version int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{index, docType}
	if cur, ok := c.versions[k]; !ok || version > cur {
		c.versions[k] = version
	}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, index string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.versions {
		if k.index == index {
			delete(c.versions, k)
		}
	}
	return nil
}
