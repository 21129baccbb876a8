package semantic

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/WessleyAI/congress-qa/engine/domain"
)

// MemoryStore is an in-process VectorStore. Records are replaced wholesale
// on upsert so concurrent readers never observe a partially written vector.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[domain.Key]domain.EmbeddingRecord
	logger  *slog.Logger
	now     func() time.Time // for testing
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		records: make(map[domain.Key]domain.EmbeddingRecord),
		logger:  logger,
		now:     time.Now,
	}
}

// Upsert implements VectorStore.
func (m *MemoryStore) Upsert(_ context.Context, rec domain.EmbeddingRecord) error {
	vec := make([]float32, len(rec.Vector))
	copy(vec, rec.Vector)
	rec.Vector = vec
	rec.Metadata = copyMeta(rec.Metadata)

	now := m.now()
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.records[rec.Key]; ok && !prev.CreatedAt.IsZero() {
		rec.CreatedAt = prev.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	m.records[rec.Key] = rec
	return nil
}

// SearchSimilar implements VectorStore.
func (m *MemoryStore) SearchSimilar(ctx context.Context, query []float32, opts SearchOptions) ([]domain.Evidence, error) {
	// A zero query scores 0 against everything, which only a non-positive
	// threshold lets through.
	if len(query) == 0 || (opts.Threshold > 0 && isZero(query)) {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []hit
	mismatched := 0
	for key, rec := range m.records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if opts.EntityType != "" && key.Type != opts.EntityType {
			continue
		}
		if len(rec.Vector) != len(query) {
			mismatched++
			m.logger.Warn("semantic: skipping record",
				"key", key.String(),
				"err", domain.ErrDimensionMismatch,
				"stored_dims", len(rec.Vector),
				"query_dims", len(query),
			)
			continue
		}
		score := Cosine(query, rec.Vector)
		if score < opts.Threshold {
			continue
		}
		hits = append(hits, hit{
			ev: domain.Evidence{
				Key:        key,
				Similarity: score,
				Content:    rec.SourceText,
				Metadata:   copyMeta(rec.Metadata),
				MatchType:  domain.MatchVector,
			},
			updated: rec.UpdatedAt,
		})
	}
	if mismatched > 0 {
		m.logger.Debug("semantic: dimension mismatches during search", "count", mismatched)
	}
	return rankHits(hits, opts.limit()), nil
}

// Get returns the stored record for key.
func (m *MemoryStore) Get(key domain.Key) (domain.EmbeddingRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	return rec, ok
}

// Delete removes the record for key.
func (m *MemoryStore) Delete(_ context.Context, key domain.Key) error {
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
