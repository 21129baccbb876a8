// Package fingerprint extracts structured semantic fingerprints through the
// generation provider, indexes them by shared terms, and builds probe
// fingerprints from classified questions.
package fingerprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/WessleyAI/congress-qa/engine/domain"
)

var fencePattern = regexp.MustCompile("(?s)^\\s*```(?:json|JSON)?\\s*\\n?(.*?)\\n?\\s*```\\s*$")

// cleanMarkdownFences removes a ```json fence around a model response.
func cleanMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); len(m) > 1 {
		s = m[1]
	}
	return strings.TrimSpace(s)
}

// field records whether a JSON key was present and whether it was null,
// which plain pointers cannot distinguish.
type field[T any] struct {
	present bool
	null    bool
	v       T
}

func (f *field[T]) UnmarshalJSON(b []byte) error {
	f.present = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		f.null = true
		return nil
	}
	return json.Unmarshal(b, &f.v)
}

type rawFingerprint struct {
	Topics      field[[]string] `json:"topics"`
	Entities    field[[]string] `json:"entities"`
	PolicyAreas field[[]string] `json:"policy_areas"`
	Keywords    field[[]string] `json:"keywords"`
	Themes      field[[]string] `json:"themes"`
	Sentiment   field[string]   `json:"sentiment"`
	Urgency     field[string]   `json:"urgency"`
	Scope       field[string]   `json:"scope"`
}

// Parse validates a model response into a fingerprint. It fails closed: any
// missing set field, wrong type, or categorical value outside its
// enumeration is an error wrapping domain.ErrMalformedResponse, never a
// partially filled fingerprint. Categorical fields may be null.
func Parse(response string) (domain.SemanticFingerprint, error) {
	var raw rawFingerprint
	body := cleanMarkdownFences(response)
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return domain.SemanticFingerprint{}, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	sets := []struct {
		name string
		f    field[[]string]
	}{
		{"topics", raw.Topics},
		{"entities", raw.Entities},
		{"policy_areas", raw.PolicyAreas},
		{"keywords", raw.Keywords},
		{"themes", raw.Themes},
	}
	for _, s := range sets {
		if !s.f.present || s.f.null {
			return domain.SemanticFingerprint{}, fmt.Errorf("%w: missing %s", domain.ErrMalformedResponse, s.name)
		}
	}

	cats := []struct {
		name  string
		f     field[string]
		valid func(string) bool
	}{
		{"sentiment", raw.Sentiment, func(v string) bool { return domain.Sentiment(v).Valid() }},
		{"urgency", raw.Urgency, func(v string) bool { return domain.Urgency(v).Valid() }},
		{"scope", raw.Scope, func(v string) bool { return domain.Scope(v).Valid() }},
	}
	vals := make([]string, len(cats))
	for i, c := range cats {
		if !c.f.present {
			return domain.SemanticFingerprint{}, fmt.Errorf("%w: missing %s", domain.ErrMalformedResponse, c.name)
		}
		v := strings.ToLower(strings.TrimSpace(c.f.v))
		if !c.valid(v) {
			return domain.SemanticFingerprint{}, fmt.Errorf("%w: %s %q not allowed", domain.ErrMalformedResponse, c.name, c.f.v)
		}
		vals[i] = v
	}

	fp := domain.SemanticFingerprint{
		Topics:      raw.Topics.v,
		Entities:    raw.Entities.v,
		PolicyAreas: raw.PolicyAreas.v,
		Keywords:    raw.Keywords.v,
		Themes:      raw.Themes.v,
		Sentiment:   domain.Sentiment(vals[0]),
		Urgency:     domain.Urgency(vals[1]),
		Scope:       domain.Scope(vals[2]),
	}.Normalize()
	if fp.Empty() {
		return domain.SemanticFingerprint{}, fmt.Errorf("%w: empty fingerprint", domain.ErrMalformedResponse)
	}
	return fp, nil
}
