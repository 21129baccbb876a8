package qa

import "github.com/WessleyAI/congress-qa/engine/retrieval"

// Tier is one answering strategy in the fallback chain.
type Tier int

const (
	TierStructuredSemantic Tier = iota
	TierVectorSemantic
	TierKeywordStats
	TierStatic
)

// Answer methods reported in the envelope.
const (
	MethodStructuredSemantic = "structured_semantic"
	MethodVectorSemantic     = "vector_semantic"
	MethodKeywordStats       = "keyword_stats"
	MethodStatic             = "static_knowledge"
	MethodEmergency          = "emergency_static"
)

// transitions is the fallback order. TierStatic is terminal.
var transitions = map[Tier]Tier{
	TierStructuredSemantic: TierVectorSemantic,
	TierVectorSemantic:     TierKeywordStats,
	TierKeywordStats:       TierStatic,
}

func (t Tier) String() string {
	switch t {
	case TierStructuredSemantic:
		return MethodStructuredSemantic
	case TierVectorSemantic:
		return MethodVectorSemantic
	case TierKeywordStats:
		return MethodKeywordStats
	case TierStatic:
		return MethodStatic
	default:
		return "unknown"
	}
}

// plan is the retrieval plan a retrieving tier runs.
func (t Tier) plan() retrieval.Plan {
	switch t {
	case TierStructuredSemantic:
		return retrieval.PlanStructuredSemantic
	case TierVectorSemantic:
		return retrieval.PlanVectorSemantic
	default:
		return retrieval.PlanKeywordStats
	}
}

// Transition reasons, kept low-cardinality for metrics.
const (
	reasonNoFingerprints = "no_fingerprint_index"
	reasonRetrieval      = "retrieval_failed"
	reasonNoEvidence     = "no_evidence"
	reasonGeneration     = "generation_failed"
	reasonPanic          = "panic"
	reasonCancelled      = "cancelled"
	reasonInvalid        = "invalid_question"
)
