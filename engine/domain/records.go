package domain

import (
	"fmt"
	"strings"
	"time"
)

// Bill is a row from the bills table.
type Bill struct {
	ID           int64     `json:"id"`
	Congress     int       `json:"congress"`
	Type         string    `json:"type"` // hr, s, hres, sjres, ...
	Number       int       `json:"number"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary"`
	PolicyArea   string    `json:"policy_area"`
	IntroducedAt time.Time `json:"introduced_at"`
	SponsorName  string    `json:"sponsor_name"`
	SponsorParty string    `json:"sponsor_party"`
	SponsorState string    `json:"sponsor_state"`
	LatestAction string    `json:"latest_action"`
	HasText      bool      `json:"has_text"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Citation returns the bill identifier in "TYPE NUMBER" form, e.g. "HR 1234".
func (b Bill) Citation() string {
	return fmt.Sprintf("%s %d", strings.ToUpper(b.Type), b.Number)
}

// EmbeddingText is the source text embedded for a bill.
func (b Bill) EmbeddingText() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", b.Citation(), b.Title)
	if b.PolicyArea != "" {
		fmt.Fprintf(&sb, "\nPolicy area: %s", b.PolicyArea)
	}
	if b.Summary != "" {
		sb.WriteString("\n")
		sb.WriteString(b.Summary)
	}
	return sb.String()
}

// Evidence converts the bill into evidence with the given score.
func (b Bill) Evidence(sim float64, mt MatchType) Evidence {
	meta := map[string]any{
		"congress":    b.Congress,
		"policy_area": b.PolicyArea,
		"has_text":    b.HasText,
	}
	if b.SponsorName != "" {
		meta["sponsor"] = sponsorLabel(b.SponsorName, b.SponsorParty, b.SponsorState)
	}
	if b.LatestAction != "" {
		meta["latest_action"] = b.LatestAction
	}
	return Evidence{
		Key:        Key{Type: EntityBill, ID: b.ID},
		Similarity: sim,
		Identifier: b.Citation(),
		Title:      b.Title,
		Content:    b.Summary,
		Date:       b.IntroducedAt,
		Metadata:   meta,
		MatchType:  mt,
	}
}

// Member is a row from the members table.
type Member struct {
	ID         int64     `json:"id"`
	BioguideID string    `json:"bioguide_id"`
	FullName   string    `json:"full_name"`
	Party      string    `json:"party"` // D, R, I
	State      string    `json:"state"` // two-letter code
	Chamber    string    `json:"chamber"`
	District   int       `json:"district,omitempty"`
	Current    bool      `json:"current"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// EmbeddingText is the source text embedded for a member.
func (m Member) EmbeddingText() string {
	role := "Representative"
	if strings.EqualFold(m.Chamber, "senate") {
		role = "Senator"
	}
	return fmt.Sprintf("%s %s (%s-%s), %s", role, m.FullName, m.Party, m.State, m.Chamber)
}

// Evidence converts the member into evidence with the given score.
func (m Member) Evidence(sim float64, mt MatchType) Evidence {
	return Evidence{
		Key:        Key{Type: EntityMember, ID: m.ID},
		Similarity: sim,
		Identifier: sponsorLabel(m.FullName, m.Party, m.State),
		Content:    m.EmbeddingText(),
		Date:       m.UpdatedAt,
		Metadata: map[string]any{
			"party":   m.Party,
			"state":   m.State,
			"chamber": m.Chamber,
			"current": m.Current,
		},
		MatchType: mt,
	}
}

// Action is a legislative action taken on a bill.
type Action struct {
	ID         int64     `json:"id"`
	BillID     int64     `json:"bill_id"`
	BillLabel  string    `json:"bill_label"`
	Text       string    `json:"text"`
	Chamber    string    `json:"chamber"`
	ActionDate time.Time `json:"action_date"`
}

// EmbeddingText is the source text embedded for an action.
func (a Action) EmbeddingText() string {
	return fmt.Sprintf("%s (%s): %s", a.BillLabel, a.ActionDate.Format("2006-01-02"), a.Text)
}

// Evidence converts the action into evidence with the given score.
func (a Action) Evidence(sim float64, mt MatchType) Evidence {
	return Evidence{
		Key:        Key{Type: EntityAction, ID: a.ID},
		Similarity: sim,
		Identifier: a.BillLabel,
		Content:    a.Text,
		Date:       a.ActionDate,
		Metadata:   map[string]any{"bill_id": a.BillID, "chamber": a.Chamber},
		MatchType:  mt,
	}
}

// Order is an executive order.
type Order struct {
	ID        int64     `json:"id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	President string    `json:"president"`
	SignedAt  time.Time `json:"signed_at"`
}

// EmbeddingText is the source text embedded for an executive order.
func (o Order) EmbeddingText() string {
	return fmt.Sprintf("EO %d: %s\n%s", o.Number, o.Title, o.Summary)
}

// Evidence converts the order into evidence with the given score.
func (o Order) Evidence(sim float64, mt MatchType) Evidence {
	return Evidence{
		Key:        Key{Type: EntityOrder, ID: o.ID},
		Similarity: sim,
		Identifier: fmt.Sprintf("EO %d", o.Number),
		Title:      o.Title,
		Content:    o.Summary,
		Date:       o.SignedAt,
		Metadata:   map[string]any{"president": o.President},
		MatchType:  mt,
	}
}

func sponsorLabel(name, party, state string) string {
	if party == "" && state == "" {
		return name
	}
	return fmt.Sprintf("%s (%s-%s)", name, party, state)
}
