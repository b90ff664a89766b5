package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/postgres"
)

// Schema creates the tables used by Postgres. mappings holds the latest
// version per type, mapping_versions every version ever installed and
// documents the ingest status of each document.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS mappings (
		index_name TEXT NOT NULL,
		type_name  TEXT NOT NULL,
		version    BIGINT NOT NULL,
		source     JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (index_name, type_name)
	)`,
	`CREATE TABLE IF NOT EXISTS mapping_versions (
		index_name TEXT NOT NULL,
		type_name  TEXT NOT NULL,
		version    BIGINT NOT NULL,
		source     JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (index_name, type_name, version)
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		index_name TEXT NOT NULL,
		uid        TEXT NOT NULL,
		type_name  TEXT NOT NULL,
		status     TEXT NOT NULL,
		error      TEXT,
		sub_docs   INT NOT NULL DEFAULT 0,
		shard_id   INT,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		indexed_at TIMESTAMPTZ,
		PRIMARY KEY (index_name, uid)
	)`,
}

// Postgres is the Store backed by PostgreSQL.
type Postgres struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewPostgres(db *postgres.Client) *Postgres {
	return &Postgres{
		db:     db,
		logger: slog.Default().With("component", "mapping-store"),
	}
}

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	return p.db.Migrate(ctx, Schema...)
}

func (p *Postgres) Get(ctx context.Context, index, docType string) (Record, error) {
	rec := Record{Index: index, Type: docType}
	err := p.db.DB.QueryRowContext(ctx,
		`SELECT version, source, updated_at FROM mappings WHERE index_name = $1 AND type_name = $2`,
		index, docType).Scan(&rec.Version, &rec.Source, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: [%s] in index [%s]", apperrors.ErrTypeNotFound, docType, index)
	}
	if err != nil {
		return Record{}, fmt.Errorf("querying mapping %s/%s: %w", index, docType, err)
	}
	return rec, nil
}

func (p *Postgres) List(ctx context.Context, index string) ([]Record, error) {
	return p.list(ctx,
		`SELECT type_name, version, source, updated_at FROM mappings WHERE index_name = $1 ORDER BY type_name`,
		index)
}

// ListTypes returns the latest version of each named type that exists.
func (p *Postgres) ListTypes(ctx context.Context, index string, types []string) ([]Record, error) {
	return p.list(ctx,
		`SELECT type_name, version, source, updated_at FROM mappings
		WHERE index_name = $1 AND type_name = ANY($2) ORDER BY type_name`,
		index, pq.Array(types))
}

func (p *Postgres) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := p.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing mappings: %w", err)
	}
	defer rows.Close()
	index, _ := args[0].(string)
	var out []Record
	for rows.Next() {
		rec := Record{Index: index}
		if err := rows.Scan(&rec.Type, &rec.Version, &rec.Source, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning mapping row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Save installs rec when the stored version still equals expectedVersion.
// The row lock taken by SELECT ... FOR UPDATE serializes concurrent writers
// across processes; a racing first insert shows up as a unique violation.
func (p *Postgres) Save(ctx context.Context, rec Record, expectedVersion int64) error {
	err := p.db.InTx(ctx, func(tx *sql.Tx) error {
		var current int64
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM mappings WHERE index_name = $1 AND type_name = $2 FOR UPDATE`,
			rec.Index, rec.Type).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			current = 0
		case err != nil:
			return fmt.Errorf("locking mapping %s/%s: %w", rec.Index, rec.Type, err)
		}
		if current != expectedVersion {
			return fmt.Errorf("%w: [%s] is at version %d, expected %d",
				apperrors.ErrVersionConflict, rec.Type, current, expectedVersion)
		}
		if current == 0 {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO mappings (index_name, type_name, version, source) VALUES ($1, $2, $3, $4)`,
				rec.Index, rec.Type, rec.Version, rec.Source)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE mappings SET version = $3, source = $4, updated_at = NOW()
				WHERE index_name = $1 AND type_name = $2`,
				rec.Index, rec.Type, rec.Version, rec.Source)
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO mapping_versions (index_name, type_name, version, source) VALUES ($1, $2, $3, $4)`,
			rec.Index, rec.Type, rec.Version, rec.Source)
		return err
	})
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("%w: [%s] was installed concurrently", apperrors.ErrVersionConflict, rec.Type)
	}
	if err != nil {
		return fmt.Errorf("saving mapping %s/%s v%d: %w", rec.Index, rec.Type, rec.Version, err)
	}
	p.logger.Debug("mapping saved", "index", rec.Index, "type", rec.Type, "version", rec.Version)
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}
