package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/postgres"
)

// Status is one row of the documents table.
type Status struct {
	Index   string `json:"index"`
	UID     string `json:"uid"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	SubDocs int    `json:"sub_docs"`
	ShardID int    `json:"shard_id"`
}

// StatusRecorder persists document states. Recording is best effort: the
// pipeline logs failures and carries on. Lookup fails with
// apperrors.ErrDocumentNotFound for unknown documents.
type StatusRecorder interface {
	Record(ctx context.Context, st Status) error
	Lookup(ctx context.Context, index, uid string) (Status, error)
}

func notFound(index, uid string) error {
	return apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "document [%s] not found in index [%s]", uid, index)
}

// PostgresStatus writes document states into the documents table.
type PostgresStatus struct {
	db *postgres.Client
}

func NewPostgresStatus(db *postgres.Client) *PostgresStatus {
	return &PostgresStatus{db: db}
}

func (p *PostgresStatus) Record(ctx context.Context, st Status) error {
	var shard sql.NullInt32
	if st.Status == StatusIndexed {
		shard = sql.NullInt32{Int32: int32(st.ShardID), Valid: true}
	}
	_, err := p.db.DB.ExecContext(ctx,
		`INSERT INTO documents (index_name, uid, type_name, status, error, sub_docs, shard_id, updated_at, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), CASE WHEN $4 = 'INDEXED' THEN NOW() END)
		ON CONFLICT (index_name, uid) DO UPDATE SET
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			sub_docs = EXCLUDED.sub_docs,
			shard_id = COALESCE(EXCLUDED.shard_id, documents.shard_id),
			updated_at = NOW(),
			indexed_at = COALESCE(EXCLUDED.indexed_at, documents.indexed_at)`,
		st.Index, st.UID, st.Type, st.Status, nullableString(st.Error), st.SubDocs, shard,
	)
	if err != nil {
		return fmt.Errorf("recording status of %s: %w", st.UID, err)
	}
	return nil
}

// Lookup returns the recorded status of uid in index.
func (p *PostgresStatus) Lookup(ctx context.Context, index, uid string) (Status, error) {
	st := Status{Index: index, UID: uid}
	var errText sql.NullString
	var shard sql.NullInt32
	err := p.db.DB.QueryRowContext(ctx,
		`SELECT type_name, status, error, sub_docs, shard_id FROM documents WHERE index_name = $1 AND uid = $2`,
		index, uid,
	).Scan(&st.Type, &st.Status, &errText, &st.SubDocs, &shard)
	if errors.Is(err, sql.ErrNoRows) {
		return st, notFound(index, uid)
	}
	if err != nil {
		return st, fmt.Errorf("looking up %s: %w", uid, err)
	}
	st.Error = errText.String
	st.ShardID = int(shard.Int32)
	return st, nil
}

// MemoryStatus keeps the latest state per uid. It backs tests and runs
// without a database.
type MemoryStatus struct {
	mu     sync.Mutex
	states map[string]Status
}

func NewMemoryStatus() *MemoryStatus {
	return &MemoryStatus{states: make(map[string]Status)}
}

func (m *MemoryStatus) Record(_ context.Context, st Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.Index+"/"+st.UID] = st
	return nil
}

func (m *MemoryStatus) Lookup(_ context.Context, index, uid string) (Status, error) {
	st, ok := m.Get(index, uid)
	if !ok {
		return st, notFound(index, uid)
	}
	return st, nil
}

// Get returns the latest state recorded for uid in index.
func (m *MemoryStatus) Get(index, uid string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[index+"/"+uid]
	return st, ok
}

// nullableString converts a Go string to a sql.NullString, treating the
// empty string as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
