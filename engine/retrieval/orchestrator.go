// Package retrieval runs the evidence strategies for a classified question
// and fuses their results into one ranked, deduplicated list.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/WessleyAI/congress-qa/engine/congress"
	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/WessleyAI/congress-qa/engine/fingerprint"
	"github.com/WessleyAI/congress-qa/engine/semantic"
	"github.com/WessleyAI/congress-qa/pkg/fn"
	"github.com/WessleyAI/congress-qa/pkg/metrics"
)

// Embedder turns text into a vector, or nil when no embedding is available.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Options are the retrieval tuning knobs.
type Options struct {
	VectorThreshold       float64
	VectorLimit           int
	KeywordSimilarity     float64
	TopicSimilarity       float64
	StructuredSimilarity  float64
	FingerprintThreshold  float64
	FingerprintCandidates int
	StoreLimit            int
	TieWindow             float64
	Limit                 int
}

// DefaultOptions returns the standard retrieval settings.
func DefaultOptions() Options {
	return Options{
		VectorThreshold:       semantic.DefaultThreshold,
		VectorLimit:           10,
		KeywordSimilarity:     0.8,
		TopicSimilarity:       0.75,
		StructuredSimilarity:  1.0,
		FingerprintThreshold:  0.3,
		FingerprintCandidates: 10,
		StoreLimit:            10,
		TieWindow:             0.1,
		Limit:                 18,
	}
}

// Plan selects which strategies a retrieval runs.
type Plan struct {
	Fingerprint bool
	Vector      bool
	Keyword     bool
	Structured  bool
	Topic       bool
}

// Strategy plans for the answering tiers.
var (
	PlanStructuredSemantic = Plan{Fingerprint: true, Vector: true, Keyword: true, Structured: true, Topic: true}
	PlanVectorSemantic     = Plan{Vector: true}
	PlanKeywordStats       = Plan{Keyword: true, Structured: true, Topic: true}
)

// Result is the fused output of a retrieval.
type Result struct {
	Evidence []domain.Evidence
	Sources  []string
	Stats    *congress.Stats
	// Counts is the number of evidence items each strategy produced.
	Counts map[string]int
	Errors []string
}

// Empty reports whether the retrieval found neither evidence nor statistics.
func (r Result) Empty() bool {
	return len(r.Evidence) == 0 && (r.Stats == nil || r.Stats.Empty())
}

// Deps are the orchestrator's collaborators. Embedder, Vectors and
// Fingerprints are optional.
type Deps struct {
	Embedder     Embedder
	Vectors      semantic.VectorStore
	Store        congress.Store
	Fingerprints *fn.Lazy[fingerprint.Index]
}

// Orchestrator runs strategies concurrently and merges their evidence.
type Orchestrator struct {
	deps    Deps
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates an Orchestrator.
func New(deps Deps, opts Options, logger *slog.Logger, m *metrics.Metrics) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{deps: deps, opts: opts, logger: logger, metrics: m}
}

// request is the input every strategy stage receives.
type request struct {
	question string
	intent   domain.IntentResult
}

// partial is one strategy's output.
type partial struct {
	name     string
	evidence []domain.Evidence
	stats    *congress.Stats
	hydrate  bool
}

type strategy struct {
	name  string
	stage fn.Stage[request, partial]
}

// Retrieve runs the plan's strategies for the question. It fails only when
// every strategy that ran failed; an unavailable embedding provider is never
// an error.
func (o *Orchestrator) Retrieve(ctx context.Context, question string, intent domain.IntentResult, plan Plan) (Result, error) {
	strategies := o.strategies(plan)
	if len(strategies) == 0 {
		return Result{}, fmt.Errorf("retrieval: %w: no strategy available", domain.ErrNoEvidence)
	}
	req := request{question: question, intent: intent}

	fns := make([]func() fn.Result[partial], len(strategies))
	for i, s := range strategies {
		stage := fn.TracedStage("retrieval."+s.name, s.stage)
		fns[i] = func() fn.Result[partial] { return stage(ctx, req) }
	}
	results := fn.FanOut(fns...)

	res := Result{Counts: make(map[string]int)}
	var errs []error
	var parts [][]domain.Evidence
	for i, r := range results {
		p, err := r.Unwrap()
		if err != nil {
			o.logger.Warn("retrieval: strategy failed", "strategy", strategies[i].name, "err", err)
			errs = append(errs, err)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", strategies[i].name, err))
			continue
		}
		res.Counts[p.name] = len(p.evidence)
		if p.stats != nil {
			res.Stats = p.stats
		}
		// Vector and fingerprint hits carry no date until hydrated, and
		// the recency tie-break in Merge needs it.
		if p.hydrate {
			p.evidence = o.hydrate(ctx, p.evidence)
		}
		parts = append(parts, p.evidence)
	}
	if len(errs) == len(strategies) {
		return res, fmt.Errorf("retrieval: all strategies failed: %w", errors.Join(errs...))
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	merged := Merge(o.opts.TieWindow, o.opts.Limit, parts...)
	o.attachTextAvailability(ctx, merged)

	res.Evidence = merged
	res.Sources = Sources(merged)
	o.metrics.Evidence(len(merged))
	return res, nil
}

// FingerprintsReady reports whether a fingerprint index is configured,
// reachable, and non-empty.
func (o *Orchestrator) FingerprintsReady(ctx context.Context) bool {
	idx, ok := o.fingerprintIndex(ctx)
	if !ok {
		return false
	}
	n, err := idx.Len(ctx)
	if err != nil {
		o.logger.Warn("retrieval: fingerprint index unavailable", "err", err)
		return false
	}
	return n > 0
}

func (o *Orchestrator) fingerprintIndex(ctx context.Context) (fingerprint.Index, bool) {
	if o.deps.Fingerprints == nil {
		return nil, false
	}
	idx, err := o.deps.Fingerprints.Get(ctx)
	if err != nil || idx == nil {
		return nil, false
	}
	return idx, true
}

func (o *Orchestrator) strategies(plan Plan) []strategy {
	var out []strategy
	if plan.Fingerprint && o.deps.Fingerprints != nil && o.deps.Store != nil {
		out = append(out, strategy{"fingerprint", o.fingerprintStrategy})
	}
	if plan.Vector && o.deps.Embedder != nil && o.deps.Vectors != nil {
		out = append(out, strategy{"vector", o.vectorStrategy})
	}
	if o.deps.Store != nil {
		if plan.Keyword {
			out = append(out, strategy{"keyword", o.keywordStrategy})
		}
		if plan.Structured {
			out = append(out, strategy{"structured", o.structuredStrategy})
		}
		if plan.Topic {
			out = append(out, strategy{"topic", o.topicStrategy})
		}
	}
	return out
}

// hydrate reloads evs from the congress store, keeping each hit's score and
// match type, and drops those whose record no longer exists. A store failure
// keeps the evidence as is.
func (o *Orchestrator) hydrate(ctx context.Context, evs []domain.Evidence) []domain.Evidence {
	if len(evs) == 0 || o.deps.Store == nil {
		return evs
	}
	var load []domain.Key
	for _, ev := range evs {
		if ev.MatchType != domain.MatchKeyword {
			load = append(load, ev.Key)
		}
	}
	if len(load) == 0 {
		return evs
	}
	recs, err := o.deps.Store.Load(ctx, load)
	if err != nil {
		o.logger.Warn("retrieval: hydration failed, keeping stored content", "err", err)
		return evs
	}
	found := recs.Index()

	out := evs[:0]
	for _, ev := range evs {
		if ev.MatchType == domain.MatchKeyword {
			out = append(out, ev)
			continue
		}
		rec, ok := found[ev.Key]
		if !ok {
			o.logger.Debug("retrieval: dropping dangling reference", "key", ev.Key.String())
			continue
		}
		rec.Similarity, rec.MatchType = ev.Similarity, ev.MatchType
		out = append(out, rec)
	}
	return out
}

// attachTextAvailability sets metadata has_text on bill evidence from the
// stored text versions.
func (o *Orchestrator) attachTextAvailability(ctx context.Context, evs []domain.Evidence) {
	if o.deps.Store == nil {
		return
	}
	var ids []int64
	for _, ev := range evs {
		if ev.Type == domain.EntityBill {
			ids = append(ids, ev.ID)
		}
	}
	if len(ids) == 0 {
		return
	}
	has, err := o.deps.Store.BillsWithText(ctx, ids)
	if err != nil {
		o.logger.Warn("retrieval: text availability check failed", "err", err)
		return
	}
	for i := range evs {
		if evs[i].Type != domain.EntityBill {
			continue
		}
		meta := make(map[string]any, len(evs[i].Metadata)+1)
		for k, v := range evs[i].Metadata {
			meta[k] = v
		}
		meta["has_text"] = has[evs[i].ID]
		evs[i].Metadata = meta
	}
}
