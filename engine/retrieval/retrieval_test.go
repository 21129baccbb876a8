package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/WessleyAI/congress-qa/engine/congress"
	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/WessleyAI/congress-qa/engine/fingerprint"
	"github.com/WessleyAI/congress-qa/engine/semantic"
	"github.com/WessleyAI/congress-qa/pkg/fn"
)

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func bill(id int64, sim float64, d time.Time) domain.Evidence {
	return domain.Evidence{Key: domain.Key{Type: domain.EntityBill, ID: id}, Similarity: sim, Date: d}
}

type stubEmbedder struct {
	vec   []float32
	calls int
}

func (s *stubEmbedder) Embed(context.Context, string) []float32 {
	s.calls++
	return s.vec
}

func seededStore() *congress.MemoryStore {
	s := congress.NewMemoryStore()
	s.AddBill(domain.Bill{
		ID: 1, Congress: 118, Type: "hr", Number: 1234,
		Title:        "Healthcare Access and Affordability Act",
		Summary:      "Lowers premiums for working families.",
		PolicyArea:   "Health",
		IntroducedAt: date(2024, 3, 15),
		SponsorName:  "Jane Doe", SponsorParty: "D", SponsorState: "CA",
	}, "Section 1. Short title.")
	s.AddBill(domain.Bill{
		ID: 2, Congress: 116, Type: "s", Number: 99,
		Title:        "Rural Broadband Expansion Act",
		PolicyArea:   "Science, Technology, Communications",
		IntroducedAt: date(2019, 1, 1),
		SponsorName:  "John Roe", SponsorParty: "R", SponsorState: "TX",
	})
	s.AddMember(domain.Member{ID: 10, FullName: "Jane Doe", Party: "D", State: "CA", Chamber: "House", Current: true})
	s.AddMember(domain.Member{ID: 11, FullName: "John Roe", Party: "R", State: "TX", Chamber: "Senate", Current: true})
	return s
}

func healthcareIntent() domain.IntentResult {
	return domain.IntentResult{
		PrimaryFocus:  domain.FocusTopic,
		DataTypes:     []domain.EntityType{domain.EntityBill},
		TemporalScope: domain.ScopeRecent,
		Entities: domain.Entities{
			Topics:   []string{"healthcare"},
			Terms:    []string{"health", "healthcare", "medicare"},
			Keywords: []string{"healthcare", "bills", "introduced"},
			Since:    date(2024, 1, 1),
			Until:    date(2025, 1, 1),
		},
	}
}

func hasKey(evs []domain.Evidence, id int64) (domain.Evidence, bool) {
	for _, ev := range evs {
		if ev.Type == domain.EntityBill && ev.ID == id {
			return ev, true
		}
	}
	return domain.Evidence{}, false
}

func TestMerge_DedupKeepsMax(t *testing.T) {
	got := Merge(0.1, 0,
		[]domain.Evidence{bill(42, 0.6, time.Time{})},
		[]domain.Evidence{bill(42, 0.9, time.Time{}), bill(7, 0.5, time.Time{})},
	)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0].ID != 42 || got[0].Similarity != 0.9 {
		t.Errorf("expected bill 42 at 0.9 first, got %+v", got[0])
	}
}

func TestMerge_RecencyTieBreak(t *testing.T) {
	older := bill(1, 0.71, date(2023, 1, 1))
	newer := bill(2, 0.75, date(2024, 6, 1))
	got := Merge(0.1, 0, []domain.Evidence{older, newer})
	if got[0].ID != 2 {
		t.Errorf("expected 2024 item first, got %+v", got)
	}

	// Higher score but older: the newer item within the window still leads.
	older = bill(1, 0.75, date(2023, 1, 1))
	newer = bill(2, 0.71, date(2024, 6, 1))
	got = Merge(0.1, 0, []domain.Evidence{older, newer})
	if got[0].ID != 2 {
		t.Errorf("expected newer item within window first, got %+v", got)
	}
}

func TestMerge_OutsideWindowKeepsScoreOrder(t *testing.T) {
	got := Merge(0.1, 0, []domain.Evidence{
		bill(1, 0.9, date(2019, 1, 1)),
		bill(2, 0.7, date(2024, 6, 1)),
	})
	if got[0].ID != 1 {
		t.Errorf("expected score order outside window, got %+v", got)
	}
}

func TestMerge_Limit(t *testing.T) {
	var part []domain.Evidence
	for i := int64(1); i <= 30; i++ {
		part = append(part, bill(i, float64(i)/100, time.Time{}))
	}
	got := Merge(0, 18, part)
	if len(got) != 18 {
		t.Fatalf("expected 18, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Similarity > got[i-1].Similarity {
			t.Fatalf("not sorted at %d", i)
		}
	}
}

func TestSources_Unique(t *testing.T) {
	evs := []domain.Evidence{
		{Key: domain.Key{Type: domain.EntityBill, ID: 1}, Identifier: "HR 1234", Title: "Act"},
		{Key: domain.Key{Type: domain.EntityAction, ID: 9}, Identifier: "HR 1234", Title: "Act"},
		{Key: domain.Key{Type: domain.EntityOrder, ID: 3}},
	}
	got := Sources(evs)
	if len(got) != 2 || got[0] != "HR 1234: Act" || got[1] != "order:3" {
		t.Errorf("sources = %v", got)
	}
}

func TestRetrieve_HealthcareWithoutEmbeddings(t *testing.T) {
	emb := &stubEmbedder{}
	o := New(Deps{Embedder: emb, Vectors: semantic.NewMemoryStore(nil), Store: seededStore()}, DefaultOptions(), nil, nil)

	res, err := o.Retrieve(context.Background(), "What healthcare bills were introduced in 2024?", healthcareIntent(), PlanStructuredSemantic)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if emb.calls != 1 {
		t.Errorf("expected one embedding attempt, got %d", emb.calls)
	}
	ev, ok := hasKey(res.Evidence, 1)
	if !ok {
		t.Fatalf("expected HR 1234 in evidence, got %+v", res.Evidence)
	}
	if ev.Similarity < semantic.DefaultThreshold {
		t.Errorf("similarity %v below threshold", ev.Similarity)
	}
	if ev.Metadata["has_text"] != true {
		t.Errorf("has_text = %v", ev.Metadata["has_text"])
	}
	if _, ok := hasKey(res.Evidence, 2); ok {
		t.Error("S 99 should be excluded")
	}
	if len(res.Sources) == 0 || res.Sources[0] != "HR 1234: Healthcare Access and Affordability Act" {
		t.Errorf("sources = %v", res.Sources)
	}
}

func TestRetrieve_VectorHydratesAndDropsDangling(t *testing.T) {
	ctx := context.Background()
	vs := semantic.NewMemoryStore(nil)
	vs.Upsert(ctx, domain.EmbeddingRecord{Key: domain.Key{Type: domain.EntityBill, ID: 1}, Vector: []float32{1, 0}, SourceText: "stale"})
	vs.Upsert(ctx, domain.EmbeddingRecord{Key: domain.Key{Type: domain.EntityBill, ID: 3}, Vector: []float32{1, 0}, SourceText: "deleted bill"})

	o := New(Deps{Embedder: &stubEmbedder{vec: []float32{1, 0}}, Vectors: vs, Store: seededStore()}, DefaultOptions(), nil, nil)
	res, err := o.Retrieve(ctx, "healthcare", healthcareIntent(), PlanVectorSemantic)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Evidence) != 1 {
		t.Fatalf("expected dangling reference dropped, got %+v", res.Evidence)
	}
	ev := res.Evidence[0]
	if ev.Identifier != "HR 1234" || ev.Content != "Lowers premiums for working families." {
		t.Errorf("not hydrated: %+v", ev)
	}
	if ev.MatchType != domain.MatchVector || ev.Similarity < 0.99 {
		t.Errorf("score or match type lost: %+v", ev)
	}
}

func TestRetrieve_VectorHitsRecencyTieBreak(t *testing.T) {
	ctx := context.Background()
	store := congress.NewMemoryStore()
	store.AddBill(domain.Bill{ID: 3, Congress: 118, Type: "hr", Number: 3, Title: "Older Act", IntroducedAt: date(2023, 1, 1)})
	store.AddBill(domain.Bill{ID: 4, Congress: 118, Type: "hr", Number: 4, Title: "Newer Act", IntroducedAt: date(2024, 6, 1)})

	vs := semantic.NewMemoryStore(nil)
	vs.Upsert(ctx, domain.EmbeddingRecord{Key: domain.Key{Type: domain.EntityBill, ID: 3}, Vector: []float32{0.75, 0.6614}})
	vs.Upsert(ctx, domain.EmbeddingRecord{Key: domain.Key{Type: domain.EntityBill, ID: 4}, Vector: []float32{0.71, 0.7042}})

	o := New(Deps{Embedder: &stubEmbedder{vec: []float32{1, 0}}, Vectors: vs, Store: store}, DefaultOptions(), nil, nil)
	intent := domain.IntentResult{DataTypes: []domain.EntityType{domain.EntityBill}}
	res, err := o.Retrieve(ctx, "recent bills", intent, PlanVectorSemantic)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Evidence) != 2 {
		t.Fatalf("expected 2 hits, got %+v", res.Evidence)
	}
	first, second := res.Evidence[0], res.Evidence[1]
	if first.ID != 4 || second.ID != 3 {
		t.Fatalf("expected the 2024 bill ahead of the 2023 bill, got %d (%.2f) then %d (%.2f)",
			first.ID, first.Similarity, second.ID, second.Similarity)
	}
	if first.Similarity > second.Similarity {
		t.Errorf("scores should be kept as searched: %+v", res.Evidence)
	}
}

func TestRetrieve_StructuredBillAndStats(t *testing.T) {
	o := New(Deps{Store: seededStore()}, DefaultOptions(), nil, nil)
	intent := domain.IntentResult{
		PrimaryFocus: domain.FocusBill,
		AnalysisType: domain.AnalysisQuantitative,
		Entities:     domain.Entities{Bills: []domain.BillRef{{Type: "hr", Number: 1234}}},
	}
	res, err := o.Retrieve(context.Background(), "How many cosponsors does HR 1234 have?", intent, PlanKeywordStats)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	ev, ok := hasKey(res.Evidence, 1)
	if !ok || ev.Similarity != 1.0 || ev.MatchType != domain.MatchStructured {
		t.Fatalf("expected exact bill match, got %+v", res.Evidence)
	}
	if res.Stats == nil || res.Stats.TotalBills != 2 {
		t.Errorf("stats = %+v", res.Stats)
	}
}

func TestRetrieve_StateMembers(t *testing.T) {
	o := New(Deps{Store: seededStore()}, DefaultOptions(), nil, nil)
	intent := domain.IntentResult{
		PrimaryFocus: domain.FocusState,
		DataTypes:    []domain.EntityType{domain.EntityMember},
		Entities:     domain.Entities{States: []string{"TX"}},
	}
	res, err := o.Retrieve(context.Background(), "Who represents Texas?", intent, PlanKeywordStats)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Evidence) != 1 || res.Evidence[0].ID != 11 {
		t.Errorf("expected the Texas member, got %+v", res.Evidence)
	}
}

func TestRetrieve_Fingerprint(t *testing.T) {
	ctx := context.Background()
	idx := fingerprint.NewMemoryIndex()
	idx.Upsert(ctx, domain.SemanticFingerprint{
		Key:         domain.Key{Type: domain.EntityBill, ID: 1},
		Topics:      []string{"healthcare"},
		PolicyAreas: []string{"health"},
	})
	idx.Upsert(ctx, domain.SemanticFingerprint{
		Key:    domain.Key{Type: domain.EntityBill, ID: 2},
		Topics: []string{"broadband"},
	})
	lazy := fn.NewLazy(func(context.Context) (fingerprint.Index, error) { return idx, nil }, time.Minute)

	o := New(Deps{Store: seededStore(), Fingerprints: lazy}, DefaultOptions(), nil, nil)
	if !o.FingerprintsReady(ctx) {
		t.Fatal("expected fingerprints ready")
	}
	intent := healthcareIntent()
	intent.Entities.Keywords = nil
	intent.Entities.Terms = nil
	res, err := o.Retrieve(ctx, "healthcare", intent, Plan{Fingerprint: true})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Evidence) != 1 || res.Evidence[0].Identifier != "HR 1234" {
		t.Fatalf("evidence = %+v", res.Evidence)
	}
	if res.Evidence[0].MatchType != domain.MatchStructured {
		t.Errorf("match type = %s", res.Evidence[0].MatchType)
	}
}

func TestFingerprintsReady(t *testing.T) {
	ctx := context.Background()
	if New(Deps{}, DefaultOptions(), nil, nil).FingerprintsReady(ctx) {
		t.Error("nil index should not be ready")
	}
	empty := fn.NewLazy(func(context.Context) (fingerprint.Index, error) { return fingerprint.NewMemoryIndex(), nil }, time.Minute)
	if New(Deps{Fingerprints: empty}, DefaultOptions(), nil, nil).FingerprintsReady(ctx) {
		t.Error("empty index should not be ready")
	}
	broken := fn.NewLazy(func(context.Context) (fingerprint.Index, error) { return nil, errors.New("dial tcp: refused") }, time.Minute)
	if New(Deps{Fingerprints: broken}, DefaultOptions(), nil, nil).FingerprintsReady(ctx) {
		t.Error("unreachable index should not be ready")
	}
}

func TestRetrieve_AllStrategiesFail(t *testing.T) {
	store := seededStore()
	store.SetFailure(errors.New("connection refused"))
	o := New(Deps{Store: store}, DefaultOptions(), nil, nil)
	intent := healthcareIntent()
	intent.PrimaryFocus = domain.FocusStatistics

	_, err := o.Retrieve(context.Background(), "healthcare", intent, PlanKeywordStats)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestRetrieve_PartialFailureIsNotAnError(t *testing.T) {
	store := seededStore()
	store.SetFailure(errors.New("connection refused"))
	o := New(Deps{Embedder: &stubEmbedder{}, Vectors: semantic.NewMemoryStore(nil), Store: store}, DefaultOptions(), nil, nil)

	intent := healthcareIntent()
	intent.PrimaryFocus = domain.FocusStatistics

	res, err := o.Retrieve(context.Background(), "healthcare", intent, PlanStructuredSemantic)
	if err != nil {
		t.Fatalf("expected vector strategy to keep retrieval alive, got %v", err)
	}
	if len(res.Errors) != 3 {
		t.Errorf("errors = %v", res.Errors)
	}
	if !res.Empty() {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestRetrieve_NoStrategies(t *testing.T) {
	o := New(Deps{}, DefaultOptions(), nil, nil)
	if _, err := o.Retrieve(context.Background(), "q", domain.IntentResult{}, PlanVectorSemantic); !errors.Is(err, domain.ErrNoEvidence) {
		t.Fatalf("expected ErrNoEvidence, got %v", err)
	}
}
