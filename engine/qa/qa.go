// Package qa is the answering facade. It classifies a question and walks an
// explicit fallback chain of answering tiers until one produces a usable
// answer; the final static tier cannot fail, so callers always receive a
// successful envelope.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/WessleyAI/congress-qa/engine/rag"
	"github.com/WessleyAI/congress-qa/engine/retrieval"
	"github.com/WessleyAI/congress-qa/pkg/metrics"
)

// Classifier labels a question.
type Classifier interface {
	Classify(question string) domain.IntentResult
}

// Retriever gathers evidence for a classified question.
type Retriever interface {
	Retrieve(ctx context.Context, question string, intent domain.IntentResult, plan retrieval.Plan) (retrieval.Result, error)
	FingerprintsReady(ctx context.Context) bool
}

// Synthesizer writes an answer from evidence.
type Synthesizer interface {
	Synthesize(ctx context.Context, in rag.Input) (domain.AnswerEnvelope, error)
}

// Options configures the service.
type Options struct {
	// StaticText builds the static tier paragraph for a topic.
	StaticText func(topic string) string
}

// DefaultOptions returns the standard settings.
func DefaultOptions() Options {
	return Options{StaticText: StaticText}
}

// Service answers questions.
type Service struct {
	classifier Classifier
	retriever  Retriever
	synth      Synthesizer
	opts       Options
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New creates a Service.
func New(c Classifier, r Retriever, s Synthesizer, opts Options, logger *slog.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.StaticText == nil {
		opts.StaticText = StaticText
	}
	return &Service{classifier: c, retriever: r, synth: s, opts: opts, logger: logger, metrics: m}
}

// run tracks one question through the tiers.
type run struct {
	question string
	history  []domain.Turn
	intent   domain.IntentResult
	errs     []string
	// genDown is set when the generation provider was unreachable.
	genDown bool
}

// Answer returns the answer envelope for question. It always succeeds.
func (s *Service) Answer(ctx context.Context, question string, history []domain.Turn) (env domain.AnswerEnvelope) {
	defer func() { s.metrics.Answer(env.Method) }()

	r := &run{question: question, history: history}
	if err := domain.ValidateQuestion(question); err != nil {
		s.logger.Info("qa: rejecting question", "err", err)
		r.errs = append(r.errs, err.Error())
		s.transition(TierStructuredSemantic, TierStatic, reasonInvalid, err)
		return s.static(r)
	}
	r.intent = s.classify(r)

	tier := TierStructuredSemantic
	for tier != TierStatic {
		if err := ctx.Err(); err != nil {
			r.errs = append(r.errs, err.Error())
			s.transition(tier, TierStatic, reasonCancelled, err)
			return s.static(r)
		}
		if tier == TierStructuredSemantic && !s.retriever.FingerprintsReady(ctx) {
			s.transition(tier, transitions[tier], reasonNoFingerprints, nil)
			tier = transitions[tier]
			continue
		}

		out, reason, err := s.attempt(ctx, tier, r)
		if reason == "" {
			out.Method = tier.String()
			out.Errors = append(r.errs, out.Errors...)
			return out
		}
		if err != nil {
			r.errs = append(r.errs, fmt.Sprintf("%s: %v", tier, err))
		}
		next := transitions[tier]
		s.transition(tier, next, reason, err)
		tier = next
	}
	return s.static(r)
}

// classify never lets a classifier panic escape.
func (s *Service) classify(r *run) (intent domain.IntentResult) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("qa: classifier panicked", "panic", p)
			intent = domain.IntentResult{PrimaryFocus: domain.FocusGeneral}
		}
	}()
	return s.classifier.Classify(r.question)
}

// attempt runs one retrieving tier. An empty reason means success.
func (s *Service) attempt(ctx context.Context, tier Tier, r *run) (env domain.AnswerEnvelope, reason string, err error) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("qa: tier panicked", "tier", tier.String(), "panic", p)
			env, reason, err = domain.AnswerEnvelope{}, reasonPanic, fmt.Errorf("panic: %v", p)
		}
	}()

	res, err := s.retriever.Retrieve(ctx, r.question, r.intent, tier.plan())
	if err != nil {
		return env, reasonRetrieval, err
	}
	if res.Empty() {
		return env, reasonNoEvidence, domain.ErrNoEvidence
	}

	style := rag.StyleFull
	if tier == TierKeywordStats {
		style = rag.StyleSimple
	}
	env, err = s.synth.Synthesize(ctx, rag.Input{
		Question: r.question,
		Evidence: res.Evidence,
		Stats:    res.Stats,
		Intent:   r.intent,
		History:  r.history,
		Style:    style,
	})
	if err != nil || !env.Success {
		if errors.Is(err, domain.ErrProviderUnavailable) {
			r.genDown = true
		}
		if err == nil {
			err = errors.New("generation returned no answer")
		}
		return env, reasonGeneration, err
	}
	if len(env.Sources) == 0 {
		env.Sources = res.Sources
	}
	return env, "", nil
}

// static builds the terminal answer. When the generation provider was
// unreachable, or building the static answer itself fails, the reply is the
// generic apology tagged emergency_static.
func (s *Service) static(r *run) (env domain.AnswerEnvelope) {
	topic := topicOf(r.intent, r.question)
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("qa: static answer panicked", "panic", p)
			env = emergency(apology, append(r.errs, fmt.Sprintf("static: %v", p)))
		}
	}()

	text := s.opts.StaticText(topic)
	if r.genDown {
		return emergency(apology+"\n\n"+text, r.errs)
	}
	html, err := rag.Render(text)
	if err != nil {
		s.logger.Warn("qa: static render failed", "err", err)
	}
	return domain.AnswerEnvelope{
		Success: true,
		Text:    text,
		HTML:    html,
		Method:  MethodStatic,
		Errors:  r.errs,
	}
}

func emergency(text string, errs []string) domain.AnswerEnvelope {
	html, _ := rag.Render(text)
	return domain.AnswerEnvelope{
		Success: true,
		Text:    text,
		HTML:    html,
		Method:  MethodEmergency,
		Errors:  errs,
	}
}

func (s *Service) transition(from, to Tier, reason string, err error) {
	attrs := []any{"from", from.String(), "to", to.String(), "reason", reason}
	if err != nil {
		attrs = append(attrs, "err", err)
	}
	s.logger.Info("qa: tier transition", attrs...)
	s.metrics.Transition(from.String(), to.String(), reason)
}
