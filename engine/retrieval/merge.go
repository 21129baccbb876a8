package retrieval

import (
	"sort"

	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/WessleyAI/congress-qa/pkg/fn"
)

// Merge unions partial evidence lists, keeps the best-scoring entry per key,
// sorts by similarity, applies the recency tie-break, and caps at limit.
func Merge(tieWindow float64, limit int, parts ...[]domain.Evidence) []domain.Evidence {
	best := make(map[domain.Key]domain.Evidence)
	var order []domain.Key
	for _, part := range parts {
		for _, ev := range part {
			cur, ok := best[ev.Key]
			if !ok {
				order = append(order, ev.Key)
				best[ev.Key] = ev
				continue
			}
			if ev.Similarity > cur.Similarity {
				best[ev.Key] = ev
			}
		}
	}

	out := make([]domain.Evidence, len(order))
	for i, k := range order {
		out[i] = best[k]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	recencyTieBreak(out, tieWindow)

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// recencyTieBreak moves newer items ahead of adjacent older ones whose score
// is within window. Each swap removes one date inversion, so it terminates.
func recencyTieBreak(evs []domain.Evidence, window float64) {
	if window <= 0 {
		return
	}
	for swapped := true; swapped; {
		swapped = false
		for i := 0; i+1 < len(evs); i++ {
			a, b := evs[i], evs[i+1]
			if a.Similarity-b.Similarity <= window && b.Date.After(a.Date) {
				evs[i], evs[i+1] = b, a
				swapped = true
			}
		}
	}
}

// Sources returns the distinct citation labels of evs, in order.
func Sources(evs []domain.Evidence) []string {
	return fn.Unique(fn.Map(evs, domain.Evidence.Label))
}
