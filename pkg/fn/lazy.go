package fn

import (
	"context"
	"sync"
	"time"
)

// Lazy holds an optional collaborator that is built on first use. A failed
// build is remembered for RetryAfter so callers fall back quickly instead of
// reconnecting on every request.
type Lazy[T any] struct {
	mu         sync.Mutex
	build      func(context.Context) (T, error)
	retryAfter time.Duration
	val        T
	ready      bool
	err        error
	failedAt   time.Time
	now        func() time.Time // for testing
}

// NewLazy returns a Lazy that calls build on the first Get.
func NewLazy[T any](build func(context.Context) (T, error), retryAfter time.Duration) *Lazy[T] {
	return &Lazy[T]{build: build, retryAfter: retryAfter, now: time.Now}
}

// Get returns the value, building it if needed.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ready {
		return l.val, nil
	}
	if l.err != nil && l.now().Sub(l.failedAt) < l.retryAfter {
		var zero T
		return zero, l.err
	}
	v, err := l.build(ctx)
	if err != nil {
		l.err, l.failedAt = err, l.now()
		var zero T
		return zero, err
	}
	l.val, l.ready, l.err = v, true, nil
	return v, nil
}

// Peek returns the value only if it has already been built.
func (l *Lazy[T]) Peek() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.val, l.ready
}
