package congress

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/WessleyAI/congress-qa/engine/domain"
)

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func seeded() *MemoryStore {
	s := NewMemoryStore()
	s.AddBill(domain.Bill{
		ID: 1, Congress: 118, Type: "HR", Number: 1234,
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
	s.AddMember(domain.Member{ID: 12, FullName: "Old Timer", Party: "R", State: "TX", Chamber: "Senate"})
	s.AddAction(domain.Action{ID: 100, BillID: 1, BillLabel: "HR 1234", Text: "Referred to the Committee on Energy and Commerce.", ActionDate: date(2024, 3, 16)})
	s.AddOrder(domain.Order{ID: 500, Number: 14000, Title: "Strengthening Medicaid", Summary: "Directs agencies.", SignedAt: date(2024, 2, 1)})
	return s
}

func TestMemoryStore_FindBills(t *testing.T) {
	s := seeded()
	got, err := s.FindBills(context.Background(), []domain.BillRef{{Type: "hr", Number: 1234}, {Type: "s", Number: 5}})
	if err != nil {
		t.Fatalf("FindBills: %v", err)
	}
	if len(got) != 1 || got[0].Citation() != "HR 1234" || !got[0].HasText {
		t.Fatalf("got %+v", got)
	}
}

func TestMemoryStore_SearchFields(t *testing.T) {
	s := seeded()
	ctx := context.Background()

	recs, _ := s.Search(ctx, Query{Terms: []string{"health"}, Fields: TitleSummary, Types: []domain.EntityType{domain.EntityBill}})
	if len(recs.Bills) != 1 || recs.Bills[0].ID != 1 {
		t.Fatalf("title match: %+v", recs.Bills)
	}

	recs, _ = s.Search(ctx, Query{Terms: []string{"short title"}, Fields: TitleSummary, Types: []domain.EntityType{domain.EntityBill}})
	if len(recs.Bills) != 0 {
		t.Fatalf("text matched without Text field: %+v", recs.Bills)
	}
	recs, _ = s.Search(ctx, Query{Terms: []string{"short title"}, Fields: AllFields, Types: []domain.EntityType{domain.EntityBill}})
	if len(recs.Bills) != 1 {
		t.Fatalf("text match: %+v", recs.Bills)
	}
}

func TestMemoryStore_SearchFilters(t *testing.T) {
	s := seeded()
	q := Query{
		Filter: Filter{Since: date(2024, 1, 1), Until: date(2025, 1, 1)},
		Fields: TitleSummary,
	}
	recs, err := s.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(recs.Bills) != 1 || recs.Bills[0].ID != 1 {
		t.Errorf("bills = %+v", recs.Bills)
	}
	if len(recs.Actions) != 1 || len(recs.Orders) != 1 {
		t.Errorf("actions=%d orders=%d", len(recs.Actions), len(recs.Orders))
	}

	recs, _ = s.Search(context.Background(), Query{Filter: Filter{States: []string{"tx"}}, Types: []domain.EntityType{domain.EntityMember}})
	if len(recs.Members) != 2 {
		t.Errorf("members = %+v", recs.Members)
	}
}

func TestMemoryStore_LoadDropsMissing(t *testing.T) {
	s := seeded()
	s.RemoveBill(2)
	recs, err := s.Load(context.Background(), []domain.Key{
		{Type: domain.EntityBill, ID: 1},
		{Type: domain.EntityBill, ID: 2},
		{Type: domain.EntityOrder, ID: 500},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs.Bills) != 1 || len(recs.Orders) != 1 {
		t.Fatalf("records = %+v", recs)
	}
	if _, ok := recs.Index()[domain.Key{Type: domain.EntityOrder, ID: 500}]; !ok {
		t.Error("Index missing order")
	}
}

func TestMemoryStore_Stats(t *testing.T) {
	st, err := seeded().Stats(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalBills != 2 || st.TotalMembers != 2 {
		t.Fatalf("totals = %d/%d", st.TotalBills, st.TotalMembers)
	}
	want := []Count{{Label: "house", N: 1}, {Label: "senate", N: 1}}
	if !reflect.DeepEqual(st.ByChamber, want) {
		t.Errorf("by chamber = %v", st.ByChamber)
	}
	if st.ByMonth[0].Label != "2024-03" {
		t.Errorf("by month = %v", st.ByMonth)
	}

	st, _ = seeded().Stats(context.Background(), Filter{Parties: []string{"R"}})
	if st.TotalBills != 1 || st.MembersByState[0] != (Count{Label: "TX", N: 1}) {
		t.Errorf("filtered stats = %+v", st)
	}
}

func TestMemoryStore_ListForEmbedding(t *testing.T) {
	s := seeded()
	docs, err := s.ListForEmbedding(context.Background(), domain.EntityMember, 10, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != 11 {
		t.Fatalf("docs = %+v", docs)
	}
	if docs[0].Text != "Senator John Roe (R-TX), Senate" {
		t.Errorf("text = %q", docs[0].Text)
	}
	if _, err := s.ListForEmbedding(context.Background(), "vehicle", 0, 10); !errors.Is(err, domain.ErrUnknownEntityType) {
		t.Errorf("err = %v", err)
	}
}

func TestMemoryStore_BillsWithText(t *testing.T) {
	got, err := seeded().BillsWithText(context.Background(), []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("BillsWithText: %v", err)
	}
	if !reflect.DeepEqual(got, map[int64]bool{1: true}) {
		t.Fatalf("got %v", got)
	}
}

func TestMemoryStore_Failure(t *testing.T) {
	s := seeded()
	s.SetFailure(errors.New("connection refused"))
	if _, err := s.Search(context.Background(), Query{}); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("err = %v", err)
	}
	s.SetFailure(nil)
	if _, err := s.Search(context.Background(), Query{}); err != nil {
		t.Fatalf("err after reset = %v", err)
	}
}

func TestLikePatterns(t *testing.T) {
	got := likePatterns([]string{"health", " ", "100%", "a_b"})
	want := []string{"%health%", `%100\%%`, `%a\_b%`}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("patterns = %q, want %q", got, want)
	}
}

func TestNullTime(t *testing.T) {
	if nullTime(time.Time{}).Valid {
		t.Error("zero time should be NULL")
	}
	if !nullTime(date(2024, 1, 1)).Valid {
		t.Error("non-zero time should be valid")
	}
}
