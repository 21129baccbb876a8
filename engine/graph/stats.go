package graph

import "context"

// TermStats is how many fingerprints reference one term.
type TermStats struct {
	Kind         string `json:"kind"`
	Value        string `json:"value"`
	Fingerprints int64  `json:"fingerprints"`
}

// NodeCounts returns node counts grouped by label.
func (g *FingerprintStore) NodeCounts(ctx context.Context) (map[string]int64, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `MATCH (n) RETURN labels(n)[0] AS type, count(*) AS count`, nil)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for result.Next(ctx) {
		rec := result.Record()
		typ, _ := rec.Get("type")
		if t, ok := typ.(string); ok {
			counts[t] = int64Prop(rec, "count")
		}
	}
	return counts, nil
}

// TopTerms returns the most referenced terms, optionally of one kind.
func (g *FingerprintStore) TopTerms(ctx context.Context, kind string, limit int) ([]TermStats, error) {
	if limit <= 0 {
		limit = 20
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx,
		`MATCH (t:Term)<-[:HAS_TERM]-(f:Fingerprint)
		 WHERE $kind = '' OR t.kind = $kind
		 RETURN t.kind AS kind, t.value AS value, count(f) AS fingerprints
		 ORDER BY fingerprints DESC, value LIMIT $limit`,
		map[string]any{"kind": kind, "limit": int64(limit)},
	)
	if err != nil {
		return nil, err
	}
	var stats []TermStats
	for result.Next(ctx) {
		rec := result.Record()
		k, _ := rec.Get("kind")
		v, _ := rec.Get("value")
		s := TermStats{Fingerprints: int64Prop(rec, "fingerprints")}
		s.Kind, _ = k.(string)
		s.Value, _ = v.(string)
		stats = append(stats, s)
	}
	return stats, nil
}
