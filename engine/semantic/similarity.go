package semantic

import (
	"math"

	"github.com/WessleyAI/congress-qa/engine/domain"
)

// Cosine returns the cosine similarity of a and b clamped to [0, 1].
// Mismatched lengths and zero-magnitude vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp01(dot / math.Sqrt(na*nb))
}

// Jaccard returns |a ∩ b| / |a ∪ b| over the normalized sets, 0 when the
// union is empty.
func Jaccard(a, b []string) float64 {
	a, b = domain.NormalizeSet(a), domain.NormalizeSet(b)
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	inter := 0
	for _, v := range b {
		if _, ok := set[v]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// FingerprintWeights are the per-field weights of a fingerprint comparison.
type FingerprintWeights struct {
	Topics      float64
	Entities    float64
	PolicyAreas float64
	Keywords    float64
	Themes      float64
	Sentiment   float64
	Urgency     float64
	Scope       float64
}

// DefaultWeights sum to 1.
var DefaultWeights = FingerprintWeights{
	Topics:      0.25,
	Entities:    0.20,
	PolicyAreas: 0.20,
	Keywords:    0.15,
	Themes:      0.10,
	Sentiment:   0.05,
	Urgency:     0.03,
	Scope:       0.02,
}

// Sum returns the total weight.
func (w FingerprintWeights) Sum() float64 {
	return w.Topics + w.Entities + w.PolicyAreas + w.Keywords + w.Themes + w.Sentiment + w.Urgency + w.Scope
}

// Score compares two fingerprints. The weighted sum is divided by Sum so
// that custom weights stay on the [0, 1] scale.
func (w FingerprintWeights) Score(a, b domain.SemanticFingerprint) float64 {
	total := w.Sum()
	if total <= 0 {
		return 0
	}
	s := w.Topics*Jaccard(a.Topics, b.Topics) +
		w.Entities*Jaccard(a.Entities, b.Entities) +
		w.PolicyAreas*Jaccard(a.PolicyAreas, b.PolicyAreas) +
		w.Keywords*Jaccard(a.Keywords, b.Keywords) +
		w.Themes*Jaccard(a.Themes, b.Themes) +
		w.Sentiment*categorical(string(a.Sentiment), string(b.Sentiment)) +
		w.Urgency*categorical(string(a.Urgency), string(b.Urgency)) +
		w.Scope*categorical(string(a.Scope), string(b.Scope))
	return clamp01(s / total)
}

// FingerprintSimilarity scores two fingerprints with DefaultWeights.
func FingerprintSimilarity(a, b domain.SemanticFingerprint) float64 {
	return DefaultWeights.Score(a, b)
}

// categorical is 1 on an exact match of two known values. Unknown never matches.
func categorical(a, b string) float64 {
	if a == "" || b == "" || a != b {
		return 0
	}
	return 1
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
