// Package semantic owns dense-vector storage and similarity scoring.
package semantic

import (
	"context"
	"sort"
	"time"

	"github.com/WessleyAI/congress-qa/engine/domain"
)

// DefaultThreshold is the minimum similarity a vector hit needs. It is kept
// permissive so sparse recent records still surface.
const DefaultThreshold = 0.5

// DefaultLimit caps a search when the caller does not.
const DefaultLimit = 10

// VectorStore persists one embedding per entity and answers top-K queries.
type VectorStore interface {
	// Upsert stores rec, replacing any record with the same key.
	Upsert(ctx context.Context, rec domain.EmbeddingRecord) error
	// SearchSimilar returns at most opts.Limit hits scoring >= opts.Threshold,
	// best first, newer updated_at first on ties.
	SearchSimilar(ctx context.Context, query []float32, opts SearchOptions) ([]domain.Evidence, error)
}

// SearchOptions filters and bounds a similarity search.
type SearchOptions struct {
	EntityType domain.EntityType // empty matches every type
	Limit      int
	Threshold  float64
}

func (o SearchOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultLimit
	}
	return o.Limit
}

// hit is a scored record before truncation.
type hit struct {
	ev      domain.Evidence
	updated time.Time
}

// rankHits sorts hits by similarity then recency and truncates to limit.
func rankHits(hits []hit, limit int) []domain.Evidence {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].ev.Similarity != hits[j].ev.Similarity {
			return hits[i].ev.Similarity > hits[j].ev.Similarity
		}
		return hits[i].updated.After(hits[j].updated)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]domain.Evidence, len(hits))
	for i, h := range hits {
		out[i] = h.ev
	}
	return out
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func copyMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
