// Package congress is the read-only query interface over the congressional
// data store: bills, members, legislative actions, and executive orders.
// Every query is parameterized by fields extracted from the question; user
// text never becomes SQL.
package congress

import (
	"context"
	"time"

	"github.com/WessleyAI/congress-qa/engine/domain"
)

// Store is the structured data collaborator used by retrieval and reindexing.
type Store interface {
	// FindBills returns the bills matching exact type/number citations.
	FindBills(ctx context.Context, refs []domain.BillRef) ([]domain.Bill, error)
	// Search matches Query.Terms against the configured fields.
	Search(ctx context.Context, q Query) (Records, error)
	// Load fetches records by key. Keys with no row are silently absent.
	Load(ctx context.Context, keys []domain.Key) (Records, error)
	// Stats aggregates bill counts for the filter.
	Stats(ctx context.Context, f Filter) (Stats, error)
	// ListForEmbedding pages through one entity type in id order.
	ListForEmbedding(ctx context.Context, et domain.EntityType, afterID int64, limit int) ([]Document, error)
	// BillsWithText reports which of ids have at least one stored text version.
	BillsWithText(ctx context.Context, ids []int64) (map[int64]bool, error)
}

// Fields selects which columns a Query searches.
type Fields struct {
	Title      bool
	Summary    bool
	PolicyArea bool
	Text       bool
}

// TitleSummary searches titles and summaries only.
var TitleSummary = Fields{Title: true, Summary: true}

// AllFields searches every text column including bill text.
var AllFields = Fields{Title: true, Summary: true, PolicyArea: true, Text: true}

// Filter scopes a query by extracted question fields.
type Filter struct {
	States  []string
	Parties []string
	Since   time.Time // inclusive
	Until   time.Time // exclusive
}

// Query is a term search. A record matches when any term appears in any
// selected field.
type Query struct {
	Filter
	Terms  []string
	Fields Fields
	Types  []domain.EntityType // empty means every type
	Limit  int                 // per type
}

func (q Query) wants(et domain.EntityType) bool {
	if len(q.Types) == 0 {
		return true
	}
	for _, t := range q.Types {
		if t == et {
			return true
		}
	}
	return false
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 10
	}
	return q.Limit
}

// Records groups query results by entity type.
type Records struct {
	Bills   []domain.Bill
	Members []domain.Member
	Actions []domain.Action
	Orders  []domain.Order
}

// Len returns the total number of records.
func (r Records) Len() int {
	return len(r.Bills) + len(r.Members) + len(r.Actions) + len(r.Orders)
}

// Evidence converts every record with the same score and match type.
func (r Records) Evidence(sim float64, mt domain.MatchType) []domain.Evidence {
	out := make([]domain.Evidence, 0, r.Len())
	for _, b := range r.Bills {
		out = append(out, b.Evidence(sim, mt))
	}
	for _, m := range r.Members {
		out = append(out, m.Evidence(sim, mt))
	}
	for _, a := range r.Actions {
		out = append(out, a.Evidence(sim, mt))
	}
	for _, o := range r.Orders {
		out = append(out, o.Evidence(sim, mt))
	}
	return out
}

// Index returns the records keyed by entity key.
func (r Records) Index() map[domain.Key]domain.Evidence {
	out := make(map[domain.Key]domain.Evidence, r.Len())
	for _, ev := range r.Evidence(0, "") {
		out[ev.Key] = ev
	}
	return out
}

// Documents converts every record into its embedding source document.
func (r Records) Documents() []Document {
	out := make([]Document, 0, r.Len())
	for _, b := range r.Bills {
		out = append(out, Document{
			Key:       domain.Key{Type: domain.EntityBill, ID: b.ID},
			Text:      b.EmbeddingText(),
			Metadata:  map[string]any{"identifier": b.Citation(), "congress": b.Congress},
			UpdatedAt: b.UpdatedAt,
		})
	}
	for _, m := range r.Members {
		out = append(out, Document{
			Key:       domain.Key{Type: domain.EntityMember, ID: m.ID},
			Text:      m.EmbeddingText(),
			Metadata:  map[string]any{"party": m.Party, "state": m.State},
			UpdatedAt: m.UpdatedAt,
		})
	}
	for _, a := range r.Actions {
		out = append(out, Document{
			Key:       domain.Key{Type: domain.EntityAction, ID: a.ID},
			Text:      a.EmbeddingText(),
			Metadata:  map[string]any{"bill_id": a.BillID},
			UpdatedAt: a.ActionDate,
		})
	}
	for _, o := range r.Orders {
		out = append(out, Document{
			Key:       domain.Key{Type: domain.EntityOrder, ID: o.ID},
			Text:      o.EmbeddingText(),
			Metadata:  map[string]any{"president": o.President},
			UpdatedAt: o.SignedAt,
		})
	}
	return out
}

// Count is one aggregate bucket.
type Count struct {
	Label string `json:"label"`
	N     int    `json:"n"`
}

// Stats are bill and member aggregates for a filter.
type Stats struct {
	TotalBills   int     `json:"total_bills"`
	TotalMembers int     `json:"total_members"`
	ByParty      []Count `json:"by_party,omitempty"`
	ByState      []Count `json:"by_state,omitempty"`
	ByChamber    []Count `json:"by_chamber,omitempty"`
	ByMonth      []Count `json:"by_month,omitempty"`

	MembersByParty []Count `json:"members_by_party,omitempty"`
	MembersByState []Count `json:"members_by_state,omitempty"`
}

// Empty reports whether the aggregates found nothing.
func (s Stats) Empty() bool {
	return s.TotalBills == 0 && s.TotalMembers == 0
}

// Document is one entity's embedding source text.
type Document struct {
	domain.Key
	Text      string
	Metadata  map[string]any
	UpdatedAt time.Time
}
