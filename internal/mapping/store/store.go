// Package store persists mapping versions and caches the latest version
// number per type so workers can tell when their snapshot is stale.
package store

import (
	"context"
	"time"
)

// Record is one persisted mapping version of a type.
type Record struct {
	Index     string
	Type      string
	Version   int64
	Source    []byte
	UpdatedAt time.Time
}

// Store persists mapping versions. Save is a compare-and-swap: it succeeds
// only when the stored version equals expectedVersion (0 meaning absent),
// and fails with apperrors.ErrVersionConflict otherwise.
type Store interface {
	Get(ctx context.Context, index, docType string) (Record, error)
	List(ctx context.Context, index string) ([]Record, error)
	Save(ctx context.Context, rec Record, expectedVersion int64) error
	Ping(ctx context.Context) error
}

// VersionCache remembers the newest installed version per type. Misses
// return apperrors.ErrTypeNotFound.
type VersionCache interface {
	Version(ctx context.Context, index, docType string) (int64, error)
	SetVersion(ctx context.Context, index, docType string, version int64) error
	Invalidate(ctx context.Context, index string) error
}
