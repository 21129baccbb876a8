package domain

import "time"

// Focus is the primary classification of a question. Exactly one applies.
type Focus string

const (
	FocusState      Focus = "state_representation"
	FocusBill       Focus = "bill_lookup"
	FocusMember     Focus = "member_lookup"
	FocusParty      Focus = "party_aggregate"
	FocusTrend      Focus = "trend"
	FocusStatistics Focus = "statistics"
	FocusTopic      Focus = "topic"
	FocusGeneral    Focus = "general_statistics"
)

// TemporalScope says which period a question cares about.
type TemporalScope string

const (
	ScopeRecent     TemporalScope = "recent"
	ScopeHistorical TemporalScope = "historical"
	ScopeCurrent    TemporalScope = "current"
)

// AnalysisType describes the kind of answer requested.
type AnalysisType string

const (
	AnalysisInformational AnalysisType = "informational"
	AnalysisQuantitative  AnalysisType = "quantitative"
	AnalysisComparative   AnalysisType = "comparative"
	AnalysisTemporal      AnalysisType = "temporal"
)

// Specificity describes how narrow a question is.
type Specificity string

const (
	SpecificityGeneral       Specificity = "general"
	SpecificitySpecific      Specificity = "specific"
	SpecificityComprehensive Specificity = "comprehensive"
)

// BillRef is a bill identifier found in question text.
type BillRef struct {
	Type   string `json:"type"`
	Number int    `json:"number"`
}

// Entities are the scope hints extracted from a question. Since is
// inclusive and Until exclusive; either may be zero.
type Entities struct {
	Bills    []BillRef `json:"bills,omitempty"`
	States   []string  `json:"states,omitempty"`
	Parties  []string  `json:"parties,omitempty"`
	Names    []string  `json:"names,omitempty"`
	Topics   []string  `json:"topics,omitempty"`
	Terms    []string  `json:"terms,omitempty"`
	Keywords []string  `json:"keywords,omitempty"`
	Since    time.Time `json:"since,omitempty"`
	Until    time.Time `json:"until,omitempty"`
}

// IntentResult is the classifier output for one question.
type IntentResult struct {
	PrimaryFocus  Focus         `json:"primary_focus"`
	DataTypes     []EntityType  `json:"data_types"`
	TemporalScope TemporalScope `json:"temporal_scope"`
	AnalysisType  AnalysisType  `json:"analysis_type"`
	Specificity   Specificity   `json:"specificity"`
	Subjective    bool          `json:"subjective_language"`
	Entities      Entities      `json:"extracted_entities"`
}

// Wants reports whether the question touches entities of type t.
func (r IntentResult) Wants(t EntityType) bool {
	for _, dt := range r.DataTypes {
		if dt == t {
			return true
		}
	}
	return false
}

// Aggregate reports whether the focus calls for structured statistics.
func (r IntentResult) Aggregate() bool {
	switch r.PrimaryFocus {
	case FocusState, FocusParty, FocusTrend, FocusStatistics, FocusGeneral:
		return true
	}
	return r.AnalysisType == AnalysisQuantitative
}
