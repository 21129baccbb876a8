package fn

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

// --- Result ---

func TestOkAndErr(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok should be ok")
	}
	v, err := r.Unwrap()
	if v != 42 || err != nil {
		t.Fatal("wrong unwrap")
	}

	e := Err[int](errors.New("fail"))
	if e.IsOk() || !e.IsErr() {
		t.Fatal("Err should be err")
	}
	if v, _ := e.Unwrap(); v != 0 {
		t.Fatal("Err value should be zero")
	}
}

func TestFromPair(t *testing.T) {
	if v, err := FromPair(strconv.Atoi("42")).Unwrap(); v != 42 || err != nil {
		t.Fatal("FromPair failed")
	}
	if FromPair(strconv.Atoi("nope")).IsOk() {
		t.Fatal("FromPair should fail")
	}
}

// --- Slice ---

func TestMap(t *testing.T) {
	out := Map([]int{1, 2, 3}, func(v int) int { return v * 2 })
	if len(out) != 3 || out[2] != 6 {
		t.Fatal("Map failed")
	}
	empty := Map([]int{}, func(v int) int { return v })
	if len(empty) != 0 {
		t.Fatal("Map empty failed")
	}
}

func TestFilterMap(t *testing.T) {
	out := FilterMap([]string{"1", "x", "3"}, func(s string) (int, bool) {
		v, err := strconv.Atoi(s)
		return v, err == nil
	})
	if len(out) != 2 || out[1] != 3 {
		t.Fatal("FilterMap failed")
	}
}

func TestChunk(t *testing.T) {
	c := Chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(c) != 3 || len(c[2]) != 1 {
		t.Fatal("Chunk failed")
	}
	if Chunk([]int{1}, 0) != nil {
		t.Fatal("Chunk n<=0 should return nil")
	}
}

func TestUnique(t *testing.T) {
	out := Unique([]int{1, 2, 2, 3, 1})
	if len(out) != 3 || out[0] != 1 || out[1] != 2 || out[2] != 3 {
		t.Fatal("Unique failed")
	}
	if out := Unique([]string(nil)); out == nil || len(out) != 0 {
		t.Fatal("Unique of nil should be empty, not nil")
	}
}

// --- Parallel ---

func TestParMapResult(t *testing.T) {
	out := ParMapResult([]int{1, 2, 3}, 2, func(v int) Result[int] {
		if v == 2 {
			return Err[int](errors.New("two"))
		}
		return Ok(v * 2)
	})
	if v, _ := out[0].Unwrap(); v != 2 {
		t.Fatal("ParMapResult order broken")
	}
	if out[1].IsOk() {
		t.Fatal("expected error in slot 1")
	}
	if v, _ := out[2].Unwrap(); v != 6 {
		t.Fatal("ParMapResult order broken")
	}
}

func TestParMapResultBoundsWorkers(t *testing.T) {
	var active, peak atomic.Int32
	ParMapResult(make([]int, 8), 2, func(int) Result[int] {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return Ok(0)
	})
	if peak.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent calls, saw %d", peak.Load())
	}
}

func TestFanOut(t *testing.T) {
	out := FanOut(func() int { return 1 }, func() int { return 2 })
	if out[0] != 1 || out[1] != 2 {
		t.Fatal("FanOut failed")
	}
}

// --- Pipeline ---

func TestThen(t *testing.T) {
	double := Stage[int, int](func(_ context.Context, v int) Result[int] { return Ok(v * 2) })
	addOne := Stage[int, int](func(_ context.Context, v int) Result[int] { return Ok(v + 1) })

	v, _ := Then(double, addOne)(context.Background(), 5).Unwrap()
	if v != 11 {
		t.Fatal("Then failed")
	}
}

func TestThenShortCircuits(t *testing.T) {
	fail := Stage[int, int](func(_ context.Context, _ int) Result[int] { return Err[int](errors.New("fail")) })
	called := false
	second := Stage[int, int](func(_ context.Context, v int) Result[int] {
		called = true
		return Ok(v)
	})

	r := Then(fail, second)(context.Background(), 1)
	if r.IsOk() || called {
		t.Fatal("Then should short-circuit")
	}
}

func TestTracedStage(t *testing.T) {
	s := TracedStage("test-stage", Stage[int, int](func(_ context.Context, v int) Result[int] { return Ok(v + 1) }))
	if v, _ := s(context.Background(), 1).Unwrap(); v != 2 {
		t.Fatal("TracedStage failed")
	}

	e := TracedStage("err-stage", Stage[int, int](func(_ context.Context, _ int) Result[int] { return Err[int](errors.New("x")) }))
	if e(context.Background(), 1).IsOk() {
		t.Fatal("TracedStage error should propagate")
	}
}

// --- Retry ---

func TestRetrySuccess(t *testing.T) {
	attempts := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}, func(_ context.Context) Result[int] {
		attempts++
		if attempts < 3 {
			return Err[int](errors.New("not yet"))
		}
		return Ok(42)
	})
	if v, _ := r.Unwrap(); v != 42 || attempts != 3 {
		t.Fatal("Retry should succeed on 3rd attempt")
	}
}

func TestRetryExhausted(t *testing.T) {
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond}, func(_ context.Context) Result[int] {
		return Err[int](errors.New("fail"))
	})
	if _, err := r.Unwrap(); err == nil || err.Error() != "fail" {
		t.Fatalf("expected last error, got %v", err)
	}
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	r := Retry(context.Background(), RetryOpts{}, func(_ context.Context) Result[int] {
		attempts++
		return Err[int](errors.New("fail"))
	})
	if attempts != 1 || r.IsOk() {
		t.Fatalf("expected one failed attempt, got %d", attempts)
	}
	if _, err := r.Unwrap(); err == nil {
		t.Fatal("error should be kept")
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	transient := errors.New("connection refused")
	permanent := errors.New("password authentication failed")
	errs := []error{transient, permanent, transient}
	attempts := 0
	opts := RetryOpts{MaxAttempts: 5, InitialWait: time.Millisecond}.When(func(err error) bool {
		return errors.Is(err, transient)
	})
	r := Retry(context.Background(), opts, func(_ context.Context) Result[int] {
		err := errs[attempts]
		attempts++
		return Err[int](err)
	})
	if attempts != 2 {
		t.Fatalf("expected to stop after the permanent error, got %d attempts", attempts)
	}
	if _, err := r.Unwrap(); !errors.Is(err, permanent) {
		t.Fatalf("expected the permanent error, got %v", err)
	}
}

func TestRetryBackoff(t *testing.T) {
	opts := RetryOpts{InitialWait: 100 * time.Millisecond, MaxWait: time.Second}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for n, w := range want {
		if got := opts.backoff(n); got != w {
			t.Errorf("backoff(%d) = %v, want %v", n, got, w)
		}
	}

	opts.Jitter = true
	for n := 0; n < 50; n++ {
		got := opts.backoff(3)
		if got < 400*time.Millisecond || got >= 800*time.Millisecond {
			t.Fatalf("jittered backoff(3) = %v, want within [400ms, 800ms)", got)
		}
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	r := Retry(ctx, RetryOpts{MaxAttempts: 100, InitialWait: 10 * time.Millisecond, MaxWait: time.Second}, func(ctx context.Context) Result[int] {
		return Err[int](errors.New("fail"))
	})
	if _, err := r.Unwrap(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
