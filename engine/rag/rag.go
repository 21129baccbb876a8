// Package rag turns retrieved congressional evidence into a user-facing
// answer. It builds one prompt from the question, the evidence, aggregate
// statistics and recent conversation turns, calls the generation provider
// once, and post-processes the reply into clean markdown and HTML.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/congress-qa/engine/congress"
	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/WessleyAI/congress-qa/pkg/fn"
	"github.com/WessleyAI/congress-qa/pkg/llm"
	"github.com/WessleyAI/congress-qa/pkg/metrics"
	"github.com/WessleyAI/congress-qa/pkg/resilience"
)

// Options configures prompt construction and generation.
type Options struct {
	MaxBills     int
	MaxMembers   int
	MaxActions   int
	MaxOrders    int
	SummaryRunes int
	HistoryTurns int
	MaxTokens    int
	Mode         llm.Mode
	Timeout      time.Duration
	Breaker      resilience.BreakerOpts
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxBills:     5,
		MaxMembers:   8,
		MaxActions:   5,
		MaxOrders:    3,
		SummaryRunes: 300,
		HistoryTurns: 3,
		MaxTokens:    llm.QuickMaxTokens,
		Mode:         llm.ModeQuick,
		Timeout:      llm.QuickTimeout,
		Breaker: resilience.BreakerOpts{
			Name:          "generation",
			FailThreshold: 5,
			Timeout:       30 * time.Second,
			HalfOpenMax:   1,
		},
	}
}

// Input is everything one answer is synthesized from.
type Input struct {
	Question string
	Evidence []domain.Evidence
	Stats    *congress.Stats
	Intent   domain.IntentResult
	History  []domain.Turn
	Style    Style
}

// Service is the answer synthesizer.
type Service struct {
	gen     llm.Generator
	opts    Options
	breaker *resilience.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Service.
func New(gen llm.Generator, opts Options, logger *slog.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Breaker.Name == "" {
		opts.Breaker.Name = "generation"
	}
	userHook := opts.Breaker.OnStateChange
	opts.Breaker.OnStateChange = func(name string, from, to resilience.State) {
		logger.Warn("generation circuit state change", "name", name, "from", from, "to", to)
		m.BreakerState(name, int(to))
		if userHook != nil {
			userHook(name, from, to)
		}
	}
	return &Service{
		gen:     gen,
		opts:    opts,
		breaker: resilience.NewBreaker(opts.Breaker),
		logger:  logger,
		metrics: m,
	}
}

// Synthesize produces an answer envelope. It never panics: failures come
// back as Success=false with the cause in Errors and as the returned error.
// Method is left for the caller to set.
func (s *Service) Synthesize(ctx context.Context, in Input) (env domain.AnswerEnvelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("rag: synthesis panicked", "panic", r)
			err = fmt.Errorf("rag: synthesis panicked: %v", r)
			env = domain.AnswerEnvelope{Errors: []string{err.Error()}}
		}
	}()

	p := s.buildPrompt(in)
	comp, err := s.complete(ctx, p)
	if err != nil {
		s.logger.Warn("rag: generation failed", "provider", s.gen.Name(), "err", err)
		return domain.AnswerEnvelope{Errors: []string{err.Error()}}, err
	}

	text := Clean(comp.Text)
	if text == "" {
		err = domain.NewProviderError(s.gen.Name(), "complete",
			fmt.Errorf("%w: reply was empty after cleanup", domain.ErrMalformedResponse))
		return domain.AnswerEnvelope{Errors: []string{err.Error()}}, err
	}
	html, rerr := Render(text)
	if rerr != nil {
		s.logger.Warn("rag: markdown render failed", "err", rerr)
	}

	return domain.AnswerEnvelope{
		Success:    true,
		Text:       text,
		HTML:       html,
		Sources:    sources(p.used),
		Confidence: Confidence(p.used),
	}, nil
}

// complete makes the single generation call through the breaker.
func (s *Service) complete(ctx context.Context, p prompt) (llm.Completion, error) {
	req := llm.Request{
		System:    p.system,
		Prompt:    p.user,
		MaxTokens: s.opts.MaxTokens,
		Timeout:   s.opts.Timeout,
		Mode:      s.opts.Mode,
	}
	var comp llm.Completion
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		comp, err = s.gen.Complete(ctx, req)
		if err == nil && !comp.Success {
			err = llm.ErrEmptyCompletion
		}
		return err
	})
	s.metrics.ProviderCall(s.gen.Name(), "complete", err)
	switch {
	case errors.Is(err, llm.ErrEmptyCompletion):
		return comp, domain.NewProviderError(s.gen.Name(), "complete", fmt.Errorf("%w: %w", domain.ErrMalformedResponse, err))
	case err != nil:
		return comp, domain.NewProviderError(s.gen.Name(), "complete", err)
	}
	return comp, nil
}

// Confidence is the mean similarity of evs, or 0 when there are none.
func Confidence(evs []domain.Evidence) float64 {
	if len(evs) == 0 {
		return 0
	}
	var sum float64
	for _, ev := range evs {
		sum += ev.Similarity
	}
	return sum / float64(len(evs))
}

func sources(evs []domain.Evidence) []string {
	return fn.Unique(fn.Map(evs, domain.Evidence.Label))
}
