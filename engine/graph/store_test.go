package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

type mockResult struct {
	records []*neo4j.Record
	idx     int
}

func newMockResult(recs ...*neo4j.Record) *mockResult { return &mockResult{records: recs} }

func (m *mockResult) Next(context.Context) bool {
	if m.idx < len(m.records) {
		m.idx++
		return true
	}
	return false
}

func (m *mockResult) Record() *neo4j.Record { return m.records[m.idx-1] }

// trackingSession records every statement and answers with canned records.
type trackingSession struct {
	queries []string
	params  []map[string]any
	records []*neo4j.Record
	runErr  error
	inTx    int
}

func (s *trackingSession) Run(_ context.Context, cypher string, params map[string]any) (CypherResult, error) {
	s.queries = append(s.queries, cypher)
	s.params = append(s.params, params)
	if s.runErr != nil {
		return nil, s.runErr
	}
	return newMockResult(s.records...), nil
}

func (s *trackingSession) Close(context.Context) error { return nil }

func (s *trackingSession) ExecuteWrite(_ context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	s.inTx++
	return work(s)
}

type trackingOpener struct{ session *trackingSession }

func (o *trackingOpener) OpenSession(context.Context) CypherSession { return o.session }

func newTrackingStore(recs ...*neo4j.Record) (*FingerprintStore, *trackingSession) {
	sess := &trackingSession{records: recs}
	return NewWithOpener(&trackingOpener{session: sess}, nil), sess
}

func nodeRecord(props map[string]any) *neo4j.Record {
	return &neo4j.Record{
		Keys:   []string{"n"},
		Values: []any{dbtype.Node{Labels: []string{fingerprintLabel}, Props: props}},
	}
}

func sampleFingerprint() domain.SemanticFingerprint {
	return domain.SemanticFingerprint{
		Key:         domain.Key{Type: domain.EntityBill, ID: 1234},
		Topics:      []string{"Healthcare"},
		PolicyAreas: []string{"health"},
		Keywords:    []string{"premiums"},
		Sentiment:   domain.SentimentNeutral,
		Scope:       domain.ScopeNational,
		UpdatedAt:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestUpsert_SingleTransaction(t *testing.T) {
	g, sess := newTrackingStore()
	if err := g.Upsert(context.Background(), sampleFingerprint()); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if sess.inTx != 1 || len(sess.queries) != 2 {
		t.Fatalf("tx=%d queries=%d", sess.inTx, len(sess.queries))
	}
	if !strings.Contains(sess.queries[0], "DELETE r") {
		t.Error("stale term edges are not cleared")
	}
	props := sess.params[0]["props"].(map[string]any)
	if props["key"] != "bill:1234" || props["entity_id"] != int64(1234) {
		t.Errorf("props = %v", props)
	}
	if got := props["topics"].([]string); len(got) != 1 || got[0] != "healthcare" {
		t.Errorf("topics not normalized: %v", got)
	}
	terms := sess.params[1]["terms"].([]map[string]any)
	if len(terms) != 3 {
		t.Errorf("terms = %v", terms)
	}
}

func TestUpsert_Error(t *testing.T) {
	g, sess := newTrackingStore()
	sess.runErr = errors.New("neo4j down")
	if err := g.Upsert(context.Background(), sampleFingerprint()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCandidates(t *testing.T) {
	rec := nodeRecord(fingerprintToMap(sampleFingerprint().Normalize()))
	g, sess := newTrackingStore(rec)

	got, err := g.Candidates(context.Background(), domain.SemanticFingerprint{Topics: []string{"healthcare"}}, 5)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d candidates", len(got))
	}
	fp := got[0]
	if fp.Key != (domain.Key{Type: domain.EntityBill, ID: 1234}) {
		t.Errorf("key = %v", fp.Key)
	}
	if fp.Sentiment != domain.SentimentNeutral || fp.Urgency != "" {
		t.Errorf("categoricals = %q/%q", fp.Sentiment, fp.Urgency)
	}
	if !fp.UpdatedAt.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("updated_at = %v", fp.UpdatedAt)
	}
	if sess.params[0]["limit"] != int64(5) {
		t.Errorf("limit = %v", sess.params[0]["limit"])
	}
}

func TestCandidates_EmptyProbe(t *testing.T) {
	g, sess := newTrackingStore()
	got, err := g.Candidates(context.Background(), domain.SemanticFingerprint{}, 5)
	if err != nil || got != nil || len(sess.queries) != 0 {
		t.Fatalf("got %v, %v, queries=%d", got, err, len(sess.queries))
	}
}

func TestCandidates_SkipsUnreadable(t *testing.T) {
	bad := nodeRecord(map[string]any{"key": "x:1", "entity_type": "vehicle"})
	good := nodeRecord(fingerprintToMap(sampleFingerprint()))
	g, _ := newTrackingStore(bad, good)
	got, err := g.Candidates(context.Background(), domain.SemanticFingerprint{Topics: []string{"healthcare"}}, 5)
	if err != nil || len(got) != 1 {
		t.Fatalf("got %d, %v", len(got), err)
	}
}

func TestGet_NotFound(t *testing.T) {
	g, _ := newTrackingStore()
	_, ok, err := g.Get(context.Background(), domain.Key{Type: domain.EntityBill, ID: 1})
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestLen(t *testing.T) {
	g, _ := newTrackingStore(&neo4j.Record{Keys: []string{"c"}, Values: []any{int64(7)}})
	n, err := g.Len(context.Background())
	if err != nil || n != 7 {
		t.Fatalf("Len = %d, %v", n, err)
	}
}

func TestListProp(t *testing.T) {
	props := map[string]any{"a": []any{"x", 1, "y"}, "b": []any{}, "c": []string{"z"}}
	if got := listProp(props, "a"); len(got) != 2 {
		t.Errorf("a = %v", got)
	}
	if got := listProp(props, "b"); got != nil {
		t.Errorf("b = %v", got)
	}
	if got := listProp(props, "c"); len(got) != 1 {
		t.Errorf("c = %v", got)
	}
	if got := listProp(props, "missing"); got != nil {
		t.Errorf("missing = %v", got)
	}
}

func TestTopTerms(t *testing.T) {
	rec := &neo4j.Record{
		Keys:   []string{"kind", "value", "fingerprints"},
		Values: []any{"topic", "healthcare", int64(12)},
	}
	g, sess := newTrackingStore(rec)
	got, err := g.TopTerms(context.Background(), "topic", 0)
	if err != nil {
		t.Fatalf("TopTerms: %v", err)
	}
	if len(got) != 1 || got[0].Value != "healthcare" || got[0].Fingerprints != 12 {
		t.Fatalf("got %+v", got)
	}
	if sess.params[0]["limit"] != int64(20) {
		t.Errorf("default limit = %v", sess.params[0]["limit"])
	}
}
