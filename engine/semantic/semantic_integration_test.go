//go:build integration

package semantic

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/WessleyAI/congress-qa/engine/domain"
	_ "github.com/lib/pq"
)

func qdrantAddr() string {
	if v := os.Getenv("QDRANT_URL"); v != "" {
		return v
	}
	return "localhost:6334"
}

func testQdrant(t *testing.T, collection string) *QdrantStore {
	t.Helper()
	qs, err := NewQdrant(qdrantAddr(), collection, nil)
	if err != nil {
		t.Fatalf("connect qdrant: %v", err)
	}
	t.Cleanup(func() {
		qs.DeleteCollection(context.Background())
		qs.Close()
	})
	if err := qs.EnsureCollection(context.Background(), 4); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	return qs
}

func TestQdrant_UpsertIdempotentAndSearch(t *testing.T) {
	qs := testQdrant(t, "test_congress_upsert")
	ctx := context.Background()

	key := domain.Key{Type: domain.EntityBill, ID: 1234}
	for _, v := range [][]float32{{0, 1, 0, 0}, {1, 0, 0, 0}} {
		if err := qs.Upsert(ctx, domain.EmbeddingRecord{Key: key, Vector: v, SourceText: "HR 1234"}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	n, err := qs.Count(ctx, domain.EntityBill)
	if err != nil || n != 1 {
		t.Fatalf("expected exactly one point, got %d %v", n, err)
	}

	res, err := qs.SearchSimilar(ctx, []float32{1, 0, 0, 0}, SearchOptions{Limit: 3, Threshold: 0.9})
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(res) != 1 || res[0].Key != key {
		t.Fatalf("expected latest vector to match, got %+v", res)
	}
}

func TestPostgres_UpsertAndSearch(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ps := NewPostgresStore(db, nil)
	ctx := context.Background()
	if err := ps.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	key := domain.Key{Type: domain.EntityBill, ID: 987654}
	t.Cleanup(func() { ps.Delete(context.Background(), key) })

	if err := ps.Upsert(ctx, domain.EmbeddingRecord{Key: key, Vector: []float32{0, 1, 0}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := ps.Upsert(ctx, domain.EmbeddingRecord{Key: key, Vector: []float32{1, 0, 0}, SourceText: "latest"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	res, err := ps.SearchSimilar(ctx, []float32{1, 0, 0}, SearchOptions{EntityType: domain.EntityBill, Limit: 5, Threshold: 0.99})
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	found := false
	for _, ev := range res {
		if ev.Key == key {
			found = true
			if ev.Content != "latest" {
				t.Errorf("expected latest source text, got %q", ev.Content)
			}
		}
	}
	if !found {
		t.Fatal("upserted record not found")
	}
}
