package retrieval

import (
	"context"
	"fmt"

	"github.com/WessleyAI/congress-qa/engine/congress"
	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/WessleyAI/congress-qa/engine/fingerprint"
	"github.com/WessleyAI/congress-qa/engine/semantic"
	"github.com/WessleyAI/congress-qa/pkg/fn"
)

// vectorStrategy embeds the question and searches each wanted entity type.
// A missing embedding yields no evidence rather than an error.
func (o *Orchestrator) vectorStrategy(ctx context.Context, req request) fn.Result[partial] {
	vec := o.deps.Embedder.Embed(ctx, req.question)
	if vec == nil {
		o.logger.Info("retrieval: no question embedding, skipping vector search")
		return fn.Ok(partial{name: "vector"})
	}

	types := req.intent.DataTypes
	if len(types) == 0 {
		types = []domain.EntityType{""}
	}
	var evs []domain.Evidence
	var failures int
	var lastErr error
	for _, et := range types {
		hits, err := o.deps.Vectors.SearchSimilar(ctx, vec, semantic.SearchOptions{
			EntityType: et,
			Limit:      o.opts.VectorLimit,
			Threshold:  o.opts.VectorThreshold,
		})
		if err != nil {
			failures++
			lastErr = err
			o.logger.Warn("retrieval: vector search failed", "entity_type", string(et), "err", err)
			continue
		}
		evs = append(evs, hits...)
	}
	if failures == len(types) {
		return fn.Err[partial](fmt.Errorf("vector search: %w", lastErr))
	}
	return fn.Ok(partial{name: "vector", evidence: evs, hydrate: true})
}

// keywordStrategy substring-matches question keywords against titles and
// summaries at a fixed similarity.
func (o *Orchestrator) keywordStrategy(ctx context.Context, req request) fn.Result[partial] {
	kw := req.intent.Entities.Keywords
	if len(kw) == 0 {
		return fn.Ok(partial{name: "keyword"})
	}
	recs, err := o.deps.Store.Search(ctx, congress.Query{
		Filter: filterOf(req.intent),
		Terms:  kw,
		Fields: congress.TitleSummary,
		Types:  req.intent.DataTypes,
		Limit:  o.opts.StoreLimit,
	})
	if err != nil {
		return fn.Err[partial](fmt.Errorf("keyword search: %w", err))
	}
	return fn.Ok(partial{name: "keyword", evidence: recs.Evidence(o.opts.KeywordSimilarity, domain.MatchKeyword)})
}

// structuredStrategy resolves exact bill citations and member names, and
// computes aggregates for statistical questions.
func (o *Orchestrator) structuredStrategy(ctx context.Context, req request) fn.Result[partial] {
	ents := req.intent.Entities
	out := partial{name: "structured"}
	sim := o.opts.StructuredSimilarity

	if len(ents.Bills) > 0 {
		bills, err := o.deps.Store.FindBills(ctx, ents.Bills)
		if err != nil {
			return fn.Err[partial](fmt.Errorf("bill lookup: %w", err))
		}
		for _, b := range bills {
			out.evidence = append(out.evidence, b.Evidence(sim, domain.MatchStructured))
		}
	}

	if q, ok := memberQuery(req.intent, o.opts.StoreLimit); ok {
		recs, err := o.deps.Store.Search(ctx, q)
		if err != nil {
			return fn.Err[partial](fmt.Errorf("member lookup: %w", err))
		}
		out.evidence = append(out.evidence, recs.Evidence(sim, domain.MatchStructured)...)
	}

	if req.intent.Aggregate() {
		st, err := o.deps.Store.Stats(ctx, filterOf(req.intent))
		if err != nil {
			return fn.Err[partial](fmt.Errorf("stats: %w", err))
		}
		out.stats = &st
	}
	return fn.Ok(out)
}

// topicStrategy searches every text field for the dictionary expansion of the
// question's topics.
func (o *Orchestrator) topicStrategy(ctx context.Context, req request) fn.Result[partial] {
	ents := req.intent.Entities
	terms := append(append([]string(nil), ents.Topics...), ents.Terms...)
	if len(terms) == 0 {
		return fn.Ok(partial{name: "topic"})
	}
	types := req.intent.DataTypes
	if len(types) == 0 {
		types = []domain.EntityType{domain.EntityBill}
	}
	recs, err := o.deps.Store.Search(ctx, congress.Query{
		Filter: filterOf(req.intent),
		Terms:  terms,
		Fields: congress.AllFields,
		Types:  types,
		Limit:  o.opts.StoreLimit,
	})
	if err != nil {
		return fn.Err[partial](fmt.Errorf("topic search: %w", err))
	}
	return fn.Ok(partial{name: "topic", evidence: recs.Evidence(o.opts.TopicSimilarity, domain.MatchKeyword)})
}

// fingerprintStrategy scores stored fingerprints against one built from the
// question's extracted fields.
func (o *Orchestrator) fingerprintStrategy(ctx context.Context, req request) fn.Result[partial] {
	idx, err := o.deps.Fingerprints.Get(ctx)
	if err != nil {
		return fn.Err[partial](fmt.Errorf("fingerprint index: %w", err))
	}
	probe := fingerprint.FromQuestion(req.intent)
	matches, err := fingerprint.Search(ctx, idx, probe, o.opts.FingerprintThreshold, o.opts.FingerprintCandidates)
	if err != nil {
		return fn.Err[partial](fmt.Errorf("fingerprint search: %w", err))
	}
	evs := make([]domain.Evidence, 0, len(matches))
	for _, m := range matches {
		if len(req.intent.DataTypes) > 0 && !req.intent.Wants(m.Fingerprint.Type) {
			continue
		}
		evs = append(evs, domain.Evidence{
			Key:        m.Fingerprint.Key,
			Similarity: m.Similarity,
			Content:    m.Fingerprint.SourceText,
			MatchType:  domain.MatchStructured,
		})
	}
	return fn.Ok(partial{name: "fingerprint", evidence: evs, hydrate: true})
}

// memberQuery builds a member lookup from extracted names, or from states
// when the question is about representation.
func memberQuery(intent domain.IntentResult, limit int) (congress.Query, bool) {
	ents := intent.Entities
	q := congress.Query{
		Filter: congress.Filter{States: ents.States, Parties: ents.Parties},
		Types:  []domain.EntityType{domain.EntityMember},
		Limit:  limit,
	}
	switch {
	case len(ents.Names) > 0:
		q.Terms = ents.Names
		return q, true
	case len(ents.States) > 0 && (intent.PrimaryFocus == domain.FocusState || intent.Wants(domain.EntityMember)):
		return q, true
	}
	return congress.Query{}, false
}

// filterOf scopes store queries by the question's states, parties and dates.
func filterOf(intent domain.IntentResult) congress.Filter {
	e := intent.Entities
	return congress.Filter{States: e.States, Parties: e.Parties, Since: e.Since, Until: e.Until}
}
