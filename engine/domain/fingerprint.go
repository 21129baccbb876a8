package domain

import (
	"sort"
	"strings"
	"time"
)

// Sentiment is the overall tone of a document. Empty means unknown.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
	SentimentMixed    Sentiment = "mixed"
)

// Urgency is how time-sensitive a document is. Empty means unknown.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Scope is the reach of a document. Empty means unknown.
type Scope string

const (
	ScopeLocal         Scope = "local"
	ScopeState         Scope = "state"
	ScopeNational      Scope = "national"
	ScopeInternational Scope = "international"
)

// Valid reports whether s is empty or an enumerated sentiment.
func (s Sentiment) Valid() bool {
	switch s {
	case "", SentimentPositive, SentimentNegative, SentimentNeutral, SentimentMixed:
		return true
	}
	return false
}

// Valid reports whether u is empty or an enumerated urgency.
func (u Urgency) Valid() bool {
	switch u {
	case "", UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// Valid reports whether s is empty or an enumerated scope.
func (s Scope) Valid() bool {
	switch s {
	case "", ScopeLocal, ScopeState, ScopeNational, ScopeInternational:
		return true
	}
	return false
}

// SemanticFingerprint is a coarse structured summary of a document used for
// similarity when dense vectors are unavailable.
type SemanticFingerprint struct {
	Key
	Topics      []string       `json:"topics"`
	Entities    []string       `json:"entities"`
	PolicyAreas []string       `json:"policy_areas"`
	Keywords    []string       `json:"keywords"`
	Themes      []string       `json:"themes"`
	Sentiment   Sentiment      `json:"sentiment"`
	Urgency     Urgency        `json:"urgency"`
	Scope       Scope          `json:"scope"`
	SourceText  string         `json:"source_text,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Normalize lower-cases, trims, deduplicates and sorts every set field.
func (f SemanticFingerprint) Normalize() SemanticFingerprint {
	f.Topics = NormalizeSet(f.Topics)
	f.Entities = NormalizeSet(f.Entities)
	f.PolicyAreas = NormalizeSet(f.PolicyAreas)
	f.Keywords = NormalizeSet(f.Keywords)
	f.Themes = NormalizeSet(f.Themes)
	return f
}

// Terms returns every set value tagged with its field name.
func (f SemanticFingerprint) Terms() map[string][]string {
	return map[string][]string{
		"topic":       f.Topics,
		"entity":      f.Entities,
		"policy_area": f.PolicyAreas,
		"keyword":     f.Keywords,
		"theme":       f.Themes,
	}
}

// Empty reports whether the fingerprint carries no features at all.
func (f SemanticFingerprint) Empty() bool {
	return len(f.Topics)+len(f.Entities)+len(f.PolicyAreas)+len(f.Keywords)+len(f.Themes) == 0 &&
		f.Sentiment == "" && f.Urgency == "" && f.Scope == ""
}

// NormalizeSet returns the sorted unique non-empty lower-cased values of in.
func NormalizeSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
