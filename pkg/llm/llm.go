// Package llm defines the text-generation provider contract used by the
// answering pipeline. Concrete clients live in sub-packages.
package llm

import (
	"context"
	"errors"
	"time"
)

// Mode selects between a fast, cheap completion and a long-form one.
type Mode int

const (
	ModeQuick Mode = iota
	ModeLong
)

func (m Mode) String() string {
	if m == ModeLong {
		return "long"
	}
	return "quick"
}

// Per-mode defaults.
const (
	QuickTimeout   = 30 * time.Second
	LongTimeout    = 2 * time.Minute
	QuickMaxTokens = 1024
	LongMaxTokens  = 4000
)

// ErrEmptyCompletion is returned when the provider answered with no text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Request is a single-shot completion request.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
	Timeout   time.Duration
	Mode      Mode
}

// Usage counts tokens consumed by a completion.
type Usage struct {
	In  int `json:"in"`
	Out int `json:"out"`
}

// Completion is the provider's answer.
type Completion struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}

// Generator completes prompts. Implementations must honour ctx cancellation
// and return Success=false together with a non-nil error on failure.
type Generator interface {
	Complete(ctx context.Context, req Request) (Completion, error)
	Name() string
}

// Normalize fills zero MaxTokens and Timeout from the mode defaults.
func (r Request) Normalize() Request {
	if r.MaxTokens <= 0 {
		r.MaxTokens = QuickMaxTokens
		if r.Mode == ModeLong {
			r.MaxTokens = LongMaxTokens
		}
	}
	if r.Timeout <= 0 {
		r.Timeout = QuickTimeout
		if r.Mode == ModeLong {
			r.Timeout = LongTimeout
		}
	}
	return r
}

// WithTimeout bounds ctx by the request timeout.
func WithTimeout(ctx context.Context, r Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.Normalize().Timeout)
}
