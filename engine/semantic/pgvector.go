package semantic

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/pgvector/pgvector-go"
)

const pgSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS embeddings (
	entity_type TEXT        NOT NULL,
	entity_id   BIGINT      NOT NULL,
	embedding   vector      NOT NULL,
	source_text TEXT        NOT NULL DEFAULT '',
	metadata    JSONB       NOT NULL DEFAULT '{}'::jsonb,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (entity_type, entity_id)
);`

// PostgresStore is a VectorStore over a pgvector table. The column is an
// unsized vector so rows written by an older model stay readable and are
// skipped by dimension.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// EnsureSchema creates the embeddings table if needed.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, pgSchema); err != nil {
		return fmt.Errorf("semantic: ensure schema: %w", err)
	}
	return nil
}

// Upsert implements VectorStore.
func (p *PostgresStore) Upsert(ctx context.Context, rec domain.EmbeddingRecord) error {
	meta := rec.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("semantic: marshal metadata: %w", err)
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	const query = `
		INSERT INTO embeddings (entity_type, entity_id, embedding, source_text, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (entity_type, entity_id) DO UPDATE SET
			embedding   = EXCLUDED.embedding,
			source_text = EXCLUDED.source_text,
			metadata    = EXCLUDED.metadata,
			updated_at  = EXCLUDED.updated_at`

	if _, err := p.db.ExecContext(ctx, query,
		string(rec.Type),
		rec.ID,
		pgvector.NewVector(rec.Vector),
		rec.SourceText,
		metaJSON,
		updated,
	); err != nil {
		return fmt.Errorf("semantic: upsert %s: %w: %w", rec.Key, domain.ErrStoreUnavailable, err)
	}
	return nil
}

// SearchSimilar implements VectorStore.
func (p *PostgresStore) SearchSimilar(ctx context.Context, query []float32, opts SearchOptions) ([]domain.Evidence, error) {
	zero := isZero(query)
	if len(query) == 0 || (opts.Threshold > 0 && zero) {
		return nil, nil
	}
	vec := pgvector.NewVector(query)

	p.logMismatches(ctx, len(query), opts.EntityType)

	const q = `
		SELECT entity_type, entity_id, source_text, metadata, updated_at, score
		FROM (
			SELECT entity_type, entity_id, source_text, metadata, updated_at,
				CASE WHEN $6 OR vector_norm(embedding) = 0 THEN 0
					ELSE 1 - (embedding <=> $1) END AS score
			FROM embeddings
			WHERE vector_dims(embedding) = $2
				AND ($3::text = '' OR entity_type = $3)
		) scored
		WHERE score >= $4
		ORDER BY score DESC, updated_at DESC
		LIMIT $5`

	rows, err := p.db.QueryContext(ctx, q, vec, len(query), string(opts.EntityType), opts.Threshold, opts.limit(), zero)
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w: %w", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var hits []hit
	for rows.Next() {
		var (
			et       string
			h        hit
			metaJSON []byte
		)
		if err := rows.Scan(&et, &h.ev.ID, &h.ev.Content, &metaJSON, &h.updated, &h.ev.Similarity); err != nil {
			return nil, fmt.Errorf("semantic: scan: %w", err)
		}
		h.ev.Type = domain.EntityType(et)
		h.ev.Similarity = clamp01(h.ev.Similarity)
		h.ev.MatchType = domain.MatchVector
		if err := json.Unmarshal(metaJSON, &h.ev.Metadata); err != nil {
			h.ev.Metadata = make(map[string]any)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("semantic: rows: %w", err)
	}
	return rankHits(hits, opts.limit()), nil
}

// logMismatches reports rows that cannot be compared with a query of dims.
func (p *PostgresStore) logMismatches(ctx context.Context, dims int, et domain.EntityType) {
	const q = `SELECT count(*) FROM embeddings WHERE vector_dims(embedding) <> $1 AND ($2::text = '' OR entity_type = $2)`
	var n int
	if err := p.db.QueryRowContext(ctx, q, dims, string(et)).Scan(&n); err != nil {
		p.logger.Debug("semantic: mismatch count failed", "err", err)
		return
	}
	if n > 0 {
		p.logger.Warn("semantic: skipping records", "err", domain.ErrDimensionMismatch, "count", n, "query_dims", dims)
	}
}

// Delete removes the embedding for key.
func (p *PostgresStore) Delete(ctx context.Context, key domain.Key) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM embeddings WHERE entity_type = $1 AND entity_id = $2`, string(key.Type), key.ID); err != nil {
		return fmt.Errorf("semantic: delete %s: %w", key, err)
	}
	return nil
}
