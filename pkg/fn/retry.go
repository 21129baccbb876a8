package fn

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryOpts configures retry behavior.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	// MaxWait caps a single backoff; zero leaves it uncapped.
	MaxWait time.Duration
	// Jitter spreads each wait over [wait/2, wait).
	Jitter bool
	// RetryIf reports whether err is transient. Nil retries every error.
	RetryIf func(error) bool
}

// DefaultRetry provides sensible retry defaults.
var DefaultRetry = RetryOpts{
	MaxAttempts: 3,
	InitialWait: time.Second,
	MaxWait:     30 * time.Second,
	Jitter:      true,
}

// When returns a copy of o that only retries errors matching retryIf.
func (o RetryOpts) When(retryIf func(error) bool) RetryOpts {
	o.RetryIf = retryIf
	return o
}

// backoff returns the wait before attempt n+1, doubling from InitialWait.
func (o RetryOpts) backoff(n int) time.Duration {
	wait := o.InitialWait
	for i := 0; i < n && (o.MaxWait <= 0 || wait < o.MaxWait); i++ {
		wait *= 2
	}
	if o.MaxWait > 0 && wait > o.MaxWait {
		wait = o.MaxWait
	}
	if o.Jitter && wait > 1 {
		wait = wait/2 + rand.N(wait/2)
	}
	return wait
}

// Retry runs f until it succeeds, MaxAttempts is spent, RetryIf rejects the
// error, or ctx ends. f always runs at least once; on failure the last
// error is returned unless ctx ended first.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	attempts := max(opts.MaxAttempts, 1)
	for n := 0; ; n++ {
		result := f(ctx)
		if result.IsOk() || n == attempts-1 {
			return result
		}
		if opts.RetryIf != nil && !opts.RetryIf(result.err) {
			return result
		}

		timer := time.NewTimer(opts.backoff(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Err[T](ctx.Err())
		case <-timer.C:
		}
	}
}
