package fingerprint

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/WessleyAI/congress-qa/engine/semantic"
)

// policyAreas maps dictionary topics to Congress.gov policy area names.
var policyAreas = map[string]string{
	"healthcare":      "health",
	"immigration":     "immigration",
	"defense":         "armed forces and national security",
	"veterans":        "armed forces and national security",
	"energy":          "energy",
	"climate":         "environmental protection",
	"education":       "education",
	"economy":         "economics and public finance",
	"taxes":           "taxation",
	"budget":          "economics and public finance",
	"agriculture":     "agriculture and food",
	"technology":      "science, technology, communications",
	"infrastructure":  "transportation and public works",
	"guns":            "crime and law enforcement",
	"justice":         "crime and law enforcement",
	"housing":         "housing and community development",
	"social security": "social welfare",
	"ukraine":         "international affairs",
	"israel":          "international affairs",
	"china":           "international affairs",
	"trade":           "foreign trade and international finance",
	"elections":       "government operations and politics",
}

// PolicyArea returns the policy area a dictionary topic belongs to.
func PolicyArea(topic string) (string, bool) {
	pa, ok := policyAreas[strings.ToLower(topic)]
	return pa, ok
}

// FromQuestion builds a probe fingerprint from a classified question. Fields
// the question cannot express stay empty, so they never match.
func FromQuestion(intent domain.IntentResult) domain.SemanticFingerprint {
	e := intent.Entities
	fp := domain.SemanticFingerprint{
		Topics:   e.Topics,
		Keywords: e.Keywords,
		Themes:   e.Terms,
	}
	fp.Entities = append(fp.Entities, e.Names...)
	fp.Entities = append(fp.Entities, e.States...)
	for _, b := range e.Bills {
		fp.Entities = append(fp.Entities, fmt.Sprintf("%s %d", strings.ToUpper(b.Type), b.Number))
	}
	for _, t := range e.Topics {
		if pa, ok := PolicyArea(t); ok {
			fp.PolicyAreas = append(fp.PolicyAreas, pa)
		}
	}
	if len(e.States) > 0 {
		fp.Scope = domain.ScopeState
	}
	return fp.Normalize()
}

// Match is a fingerprint candidate with its similarity to the probe.
type Match struct {
	Fingerprint domain.SemanticFingerprint
	Similarity  float64
}

// Search scores index candidates against probe and keeps those at or above
// threshold, best first.
func Search(ctx context.Context, idx Index, probe domain.SemanticFingerprint, threshold float64, limit int) ([]Match, error) {
	if probe.Empty() {
		return nil, nil
	}
	cands, err := idx.Candidates(ctx, probe, limit*4)
	if err != nil {
		return nil, err
	}
	var out []Match
	for _, c := range cands {
		if sim := semantic.FingerprintSimilarity(probe, c); sim >= threshold {
			out = append(out, Match{Fingerprint: c, Similarity: sim})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
