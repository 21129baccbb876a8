package fingerprint

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/WessleyAI/congress-qa/pkg/llm"
	"github.com/WessleyAI/congress-qa/pkg/metrics"
)

const systemPrompt = `You classify U.S. legislative documents. Respond with a single JSON object and nothing else.`

const promptTemplate = `Extract a semantic fingerprint of the document below.

Return JSON with exactly these keys:
- "topics": array of 1-6 short subject labels (e.g. "healthcare", "china")
- "entities": array of named people, organisations, places, or programs
- "policy_areas": array of policy areas (e.g. "health", "armed forces and national security")
- "keywords": array of 3-10 distinctive keywords
- "themes": array of 1-4 broad themes (e.g. "cost reduction", "oversight")
- "sentiment": one of "positive", "negative", "neutral", "mixed", or null
- "urgency": one of "low", "medium", "high", "critical", or null
- "scope": one of "local", "state", "national", "international", or null

Document:
%s`

// maxDocumentChars bounds the document text placed in the prompt.
const maxDocumentChars = 12_000

// Extractor asks the generation provider for fingerprints.
type Extractor struct {
	gen     llm.Generator
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewExtractor creates an Extractor.
func NewExtractor(gen llm.Generator, logger *slog.Logger, m *metrics.Metrics) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{gen: gen, logger: logger, metrics: m}
}

// Extract builds the fingerprint for one entity's source text.
func (e *Extractor) Extract(ctx context.Context, key domain.Key, text string) (domain.SemanticFingerprint, error) {
	if text == "" {
		return domain.SemanticFingerprint{}, fmt.Errorf("fingerprint: %s: empty source text", key)
	}
	doc := text
	if utf8.RuneCountInString(doc) > maxDocumentChars {
		doc = string([]rune(doc)[:maxDocumentChars])
	}

	out, err := e.gen.Complete(ctx, llm.Request{
		System: systemPrompt,
		Prompt: fmt.Sprintf(promptTemplate, doc),
		Mode:   llm.ModeQuick,
	})
	e.metrics.ProviderCall(e.gen.Name(), "fingerprint", err)
	if err != nil {
		return domain.SemanticFingerprint{}, domain.NewProviderError(e.gen.Name(), "fingerprint", err)
	}

	fp, err := Parse(out.Text)
	if err != nil {
		e.logger.Warn("fingerprint: rejected response", "key", key.String(), "err", err)
		return domain.SemanticFingerprint{}, domain.NewProviderError(e.gen.Name(), "fingerprint", err)
	}
	fp.Key = key
	fp.SourceText = text
	fp.UpdatedAt = time.Now().UTC()
	return fp, nil
}
