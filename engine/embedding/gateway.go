// Package embedding wraps the external embedding provider. The gateway never
// returns errors to callers: a failed embedding is nil, which callers treat
// as "no vector available" and route around.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/WessleyAI/congress-qa/pkg/fn"
	"github.com/WessleyAI/congress-qa/pkg/metrics"
	"github.com/WessleyAI/congress-qa/pkg/resilience"
)

// MaxBatchSize is the largest batch any provider call receives.
const MaxBatchSize = 128

// Provider is the external embedding API.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name identifies the model; vectors from different names are not comparable.
	Name() string
	// Dimensions is the fixed output size, or 0 when the provider does not pin it.
	Dimensions() int
}

// Options configures the gateway.
type Options struct {
	BatchSize  int
	BatchDelay time.Duration
	MaxChars   int
	Timeout    time.Duration
	Breaker    resilience.BreakerOpts
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		BatchSize:  MaxBatchSize,
		BatchDelay: 200 * time.Millisecond,
		MaxChars:   50_000,
		Timeout:    10 * time.Second,
		Breaker: resilience.BreakerOpts{
			Name:          "embedding",
			FailThreshold: 5,
			Timeout:       30 * time.Second,
			HalfOpenMax:   1,
		},
	}
}

// Gateway turns text into vectors.
type Gateway struct {
	provider Provider
	opts     Options
	breaker  *resilience.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates a Gateway. Zero option fields take their defaults.
func New(p Provider, opts Options, logger *slog.Logger, m *metrics.Metrics) *Gateway {
	def := DefaultOptions()
	if opts.BatchSize <= 0 || opts.BatchSize > MaxBatchSize {
		opts.BatchSize = def.BatchSize
	}
	if opts.BatchDelay < 0 {
		opts.BatchDelay = 0
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = def.MaxChars
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Breaker.Name == "" {
		opts.Breaker.Name = def.Breaker.Name
	}
	if logger == nil {
		logger = slog.Default()
	}
	userHook := opts.Breaker.OnStateChange
	opts.Breaker.OnStateChange = func(name string, from, to resilience.State) {
		logger.Warn("embedding circuit state change", "name", name, "from", from, "to", to)
		m.BreakerState(name, int(to))
		if userHook != nil {
			userHook(name, from, to)
		}
	}

	return &Gateway{
		provider: p,
		opts:     opts,
		breaker:  resilience.NewBreaker(opts.Breaker),
		logger:   logger,
		metrics:  m,
	}
}

// Model returns the provider identity.
func (g *Gateway) Model() string { return g.provider.Name() }

// Dimensions returns the provider's pinned dimensionality.
func (g *Gateway) Dimensions() int { return g.provider.Dimensions() }

// Embed returns the vector for text, or nil when none is available.
func (g *Gateway) Embed(ctx context.Context, text string) []float32 {
	return g.EmbedBatch(ctx, []string{text})[0]
}

// EmbedBatch returns one slot per input; failed or empty inputs are nil.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))

	// Indices of inputs that actually go to the provider.
	idx := fn.FilterMap(seq(len(texts)), func(i int) (int, bool) {
		return i, texts[i] != ""
	})
	chunks := fn.Chunk(idx, g.opts.BatchSize)
	pace := g.pacer(len(chunks))
	for n, chunk := range chunks {
		if err := pace.Wait(ctx); err != nil {
			g.logger.Warn("embedding batch abandoned", "chunk", n, "err", err)
			break
		}
		batch := fn.Map(chunk, func(i int) string { return truncate(texts[i], g.opts.MaxChars) })
		vecs, err := g.call(ctx, batch)
		if err != nil {
			g.logger.Warn("embedding failed", "provider", g.provider.Name(), "chunk", n, "size", len(batch), "err", err)
			continue
		}
		for j, i := range chunk {
			out[i] = vecs[j]
		}
	}
	return out
}

// pacer spaces the chunks of one EmbedBatch call by BatchDelay. Separate
// calls never wait on each other, so a single question is not queued behind
// a running reindex.
func (g *Gateway) pacer(chunks int) *rate.Limiter {
	if chunks <= 1 || g.opts.BatchDelay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(g.opts.BatchDelay), 1)
}

// call sends one chunk through the breaker and validates the response shape.
func (g *Gateway) call(ctx context.Context, batch []string) ([][]float32, error) {
	var vecs [][]float32
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
		var err error
		vecs, err = g.provider.Embed(ctx, batch)
		return err
	})
	g.metrics.ProviderCall(g.provider.Name(), "embed", err)
	if err != nil {
		return nil, domain.NewProviderError(g.provider.Name(), "embed", err)
	}
	if len(vecs) != len(batch) {
		return nil, domain.NewProviderError(g.provider.Name(), "embed",
			fmt.Errorf("%w: %d vectors for %d inputs", domain.ErrMalformedResponse, len(vecs), len(batch)))
	}
	want := g.provider.Dimensions()
	for i, v := range vecs {
		switch {
		case len(v) == 0:
			vecs[i] = nil
		case want > 0 && len(v) != want:
			g.logger.Warn("embedding dimension mismatch", "provider", g.provider.Name(), "want", want, "got", len(v))
			vecs[i] = nil
		}
	}
	return vecs, nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
