package congress

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/WessleyAI/congress-qa/engine/domain"
)

// MemoryStore is an in-process Store for tests and local runs. It applies the
// same matching rules as PostgresStore with case-insensitive substrings.
type MemoryStore struct {
	mu       sync.RWMutex
	bills    map[int64]domain.Bill
	members  map[int64]domain.Member
	actions  map[int64]domain.Action
	orders   map[int64]domain.Order
	texts    map[int64][]string
	failWith error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bills:   make(map[int64]domain.Bill),
		members: make(map[int64]domain.Member),
		actions: make(map[int64]domain.Action),
		orders:  make(map[int64]domain.Order),
		texts:   make(map[int64][]string),
	}
}

// AddBill stores b. Text versions, if any, mark the bill as having text.
func (s *MemoryStore) AddBill(b domain.Bill, texts ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.Type = strings.ToLower(b.Type)
	s.bills[b.ID] = b
	if len(texts) > 0 {
		s.texts[b.ID] = append(s.texts[b.ID], texts...)
	}
}

// AddMember stores m.
func (s *MemoryStore) AddMember(m domain.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = m
}

// AddAction stores a.
func (s *MemoryStore) AddAction(a domain.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[a.ID] = a
}

// AddOrder stores o.
func (s *MemoryStore) AddOrder(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
}

// RemoveBill deletes a bill, leaving any references to it dangling.
func (s *MemoryStore) RemoveBill(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bills, id)
	delete(s.texts, id)
}

// SetFailure makes every query fail with err wrapped as ErrStoreUnavailable.
// A nil err restores normal operation.
func (s *MemoryStore) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *MemoryStore) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failWith != nil {
		return fmt.Errorf("congress: %s: %w: %w", op, domain.ErrStoreUnavailable, s.failWith)
	}
	return nil
}

func (s *MemoryStore) bill(id int64) domain.Bill {
	b := s.bills[id]
	b.HasText = len(s.texts[id]) > 0
	return b
}

// FindBills implements Store.
func (s *MemoryStore) FindBills(ctx context.Context, refs []domain.BillRef) ([]domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "find bills"); err != nil {
		return nil, err
	}
	var out []domain.Bill
	for _, id := range sortedIDs(s.bills) {
		b := s.bills[id]
		for _, r := range refs {
			if strings.EqualFold(r.Type, b.Type) && r.Number == b.Number {
				out = append(out, s.bill(id))
				break
			}
		}
	}
	return out, nil
}

// Search implements Store.
func (s *MemoryStore) Search(ctx context.Context, q Query) (Records, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "search"); err != nil {
		return Records{}, err
	}
	terms := lowerAll(q.Terms)
	var out Records

	if q.wants(domain.EntityBill) {
		for _, id := range sortedIDs(s.bills) {
			b := s.bills[id]
			if !inSet(q.States, b.SponsorState) || !inSet(q.Parties, b.SponsorParty) || !inRange(q.Filter, b.IntroducedAt) {
				continue
			}
			var fields []string
			if q.Fields.Title {
				fields = append(fields, b.Title)
			}
			if q.Fields.Summary {
				fields = append(fields, b.Summary)
			}
			if q.Fields.PolicyArea {
				fields = append(fields, b.PolicyArea)
			}
			if q.Fields.Text {
				fields = append(fields, s.texts[id]...)
			}
			if len(terms) == 0 || matchesAny(terms, fields...) {
				out.Bills = append(out.Bills, s.bill(id))
			}
		}
		sort.SliceStable(out.Bills, func(i, j int) bool { return out.Bills[i].IntroducedAt.After(out.Bills[j].IntroducedAt) })
		out.Bills = capped(out.Bills, q.limit())
	}
	if q.wants(domain.EntityMember) {
		for _, id := range sortedIDs(s.members) {
			m := s.members[id]
			if inSet(q.States, m.State) && inSet(q.Parties, m.Party) && (len(terms) == 0 || matchesAny(terms, m.FullName)) {
				out.Members = append(out.Members, m)
			}
		}
		out.Members = capped(out.Members, q.limit())
	}
	if q.wants(domain.EntityAction) {
		for _, id := range sortedIDs(s.actions) {
			a := s.actions[id]
			if inRange(q.Filter, a.ActionDate) && (len(terms) == 0 || matchesAny(terms, a.Text, s.bills[a.BillID].Title)) {
				out.Actions = append(out.Actions, a)
			}
		}
		sort.SliceStable(out.Actions, func(i, j int) bool { return out.Actions[i].ActionDate.After(out.Actions[j].ActionDate) })
		out.Actions = capped(out.Actions, q.limit())
	}
	if q.wants(domain.EntityOrder) {
		for _, id := range sortedIDs(s.orders) {
			o := s.orders[id]
			if inRange(q.Filter, o.SignedAt) && (len(terms) == 0 || matchesAny(terms, o.Title, o.Summary)) {
				out.Orders = append(out.Orders, o)
			}
		}
		sort.SliceStable(out.Orders, func(i, j int) bool { return out.Orders[i].SignedAt.After(out.Orders[j].SignedAt) })
		out.Orders = capped(out.Orders, q.limit())
	}
	return out, nil
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, keys []domain.Key) (Records, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "load"); err != nil {
		return Records{}, err
	}
	var out Records
	for _, k := range keys {
		switch k.Type {
		case domain.EntityBill:
			if _, ok := s.bills[k.ID]; ok {
				out.Bills = append(out.Bills, s.bill(k.ID))
			}
		case domain.EntityMember:
			if m, ok := s.members[k.ID]; ok {
				out.Members = append(out.Members, m)
			}
		case domain.EntityAction:
			if a, ok := s.actions[k.ID]; ok {
				out.Actions = append(out.Actions, a)
			}
		case domain.EntityOrder:
			if o, ok := s.orders[k.ID]; ok {
				out.Orders = append(out.Orders, o)
			}
		}
	}
	return out, nil
}

// Stats implements Store.
func (s *MemoryStore) Stats(ctx context.Context, f Filter) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "stats"); err != nil {
		return Stats{}, err
	}
	party, state, chamber, month := counter{}, counter{}, counter{}, counter{}
	for _, b := range s.bills {
		if !inSet(f.States, b.SponsorState) || !inSet(f.Parties, b.SponsorParty) || !inRange(f, b.IntroducedAt) {
			continue
		}
		party.add(orUnknown(b.SponsorParty))
		state.add(orUnknown(b.SponsorState))
		chamber.add(billChamber(b.Type))
		if !b.IntroducedAt.IsZero() {
			month.add(b.IntroducedAt.Format("2006-01"))
		}
	}
	mParty, mState := counter{}, counter{}
	for _, m := range s.members {
		if m.Current && inSet(f.States, m.State) && inSet(f.Parties, m.Party) {
			mParty.add(m.Party)
			mState.add(m.State)
		}
	}
	st := Stats{
		ByParty:        party.sorted(0),
		ByState:        state.sorted(15),
		ByChamber:      chamber.sorted(0),
		ByMonth:        month.byLabelDesc(12),
		MembersByParty: mParty.sorted(0),
		MembersByState: mState.sorted(15),
	}
	st.TotalBills = sum(st.ByParty)
	st.TotalMembers = sum(st.MembersByParty)
	return st, nil
}

// ListForEmbedding implements Store.
func (s *MemoryStore) ListForEmbedding(ctx context.Context, et domain.EntityType, afterID int64, limit int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "list"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	var recs Records
	switch et {
	case domain.EntityBill:
		for _, id := range after(sortedIDs(s.bills), afterID, limit) {
			recs.Bills = append(recs.Bills, s.bill(id))
		}
	case domain.EntityMember:
		for _, id := range after(sortedIDs(s.members), afterID, limit) {
			recs.Members = append(recs.Members, s.members[id])
		}
	case domain.EntityAction:
		for _, id := range after(sortedIDs(s.actions), afterID, limit) {
			recs.Actions = append(recs.Actions, s.actions[id])
		}
	case domain.EntityOrder:
		for _, id := range after(sortedIDs(s.orders), afterID, limit) {
			recs.Orders = append(recs.Orders, s.orders[id])
		}
	default:
		return nil, fmt.Errorf("congress: list %q: %w", et, domain.ErrUnknownEntityType)
	}
	return recs.Documents(), nil
}

// BillsWithText implements Store.
func (s *MemoryStore) BillsWithText(ctx context.Context, ids []int64) (map[int64]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "bill text"); err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if len(s.texts[id]) > 0 {
			out[id] = true
		}
	}
	return out, nil
}

func sortedIDs[T any](m map[int64]T) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func after(ids []int64, afterID int64, limit int) []int64 {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] > afterID })
	ids = ids[i:]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

func capped[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func matchesAny(terms []string, fields ...string) bool {
	for _, f := range fields {
		f = strings.ToLower(f)
		for _, t := range terms {
			if strings.Contains(f, t) {
				return true
			}
		}
	}
	return false
}

func inSet(set []string, v string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func inRange(f Filter, t time.Time) bool {
	if !f.Since.IsZero() && t.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !t.Before(f.Until) {
		return false
	}
	return true
}

func billChamber(billType string) string {
	switch strings.ToLower(billType) {
	case "s", "sres", "sjres", "sconres":
		return "senate"
	}
	return "house"
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

type counter map[string]int

func (c counter) add(label string) { c[label]++ }

// sorted returns buckets by count descending then label, capped at n (0 = all).
func (c counter) sorted(n int) []Count {
	out := c.list()
	sort.Slice(out, func(i, j int) bool {
		if out[i].N != out[j].N {
			return out[i].N > out[j].N
		}
		return out[i].Label < out[j].Label
	})
	if n > 0 {
		out = capped(out, n)
	}
	return out
}

func (c counter) byLabelDesc(n int) []Count {
	out := c.list()
	sort.Slice(out, func(i, j int) bool { return out[i].Label > out[j].Label })
	return capped(out, n)
}

func (c counter) list() []Count {
	if len(c) == 0 {
		return nil
	}
	out := make([]Count, 0, len(c))
	for l, n := range c {
		out = append(out, Count{Label: l, N: n})
	}
	return out
}
