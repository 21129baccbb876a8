package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/WessleyAI/congress-qa/pkg/llm"
)

func newServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const okBody = `{
	"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-haiku",
	"content": [{"type": "text", "text": "  HR 1234 expands coverage.  "}],
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 120, "output_tokens": 8}
}`

func TestComplete_Success(t *testing.T) {
	var seen map[string]any
	srv := newServer(t, http.StatusOK, okBody, &seen)
	g := New(Options{APIKey: "k", Model: "claude-long", QuickModel: "claude-haiku", BaseURL: srv.URL})

	out, err := g.Complete(context.Background(), llm.Request{System: "be factual", Prompt: "q", Mode: llm.ModeQuick})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Success || out.Text != "HR 1234 expands coverage." {
		t.Fatalf("bad completion: %+v", out)
	}
	if out.Usage.In != 120 || out.Usage.Out != 8 {
		t.Errorf("usage: %+v", out.Usage)
	}
	if seen["model"] != "claude-haiku" {
		t.Errorf("quick mode should use quick model, got %v", seen["model"])
	}
	if seen["max_tokens"].(float64) != llm.QuickMaxTokens {
		t.Errorf("max_tokens: %v", seen["max_tokens"])
	}
}

func TestComplete_LongModeUsesMainModel(t *testing.T) {
	var seen map[string]any
	srv := newServer(t, http.StatusOK, okBody, &seen)
	g := New(Options{APIKey: "k", Model: "claude-long", QuickModel: "claude-haiku", BaseURL: srv.URL})
	if _, err := g.Complete(context.Background(), llm.Request{Prompt: "q", Mode: llm.ModeLong}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen["model"] != "claude-long" {
		t.Errorf("got model %v", seen["model"])
	}
}

func TestComplete_ServerError(t *testing.T) {
	srv := newServer(t, http.StatusInternalServerError, `{"type":"error","error":{"type":"api_error","message":"boom"}}`, nil)
	g := New(Options{APIKey: "k", Model: "m", BaseURL: srv.URL})
	out, err := g.Complete(context.Background(), llm.Request{Prompt: "q"})
	if err == nil || out.Success {
		t.Fatalf("expected failure, got %+v", out)
	}
}

func TestComplete_EmptyText(t *testing.T) {
	body := `{"id":"m","type":"message","role":"assistant","model":"m","content":[],"usage":{"input_tokens":1,"output_tokens":0}}`
	srv := newServer(t, http.StatusOK, body, nil)
	g := New(Options{APIKey: "k", Model: "m", BaseURL: srv.URL})
	out, err := g.Complete(context.Background(), llm.Request{Prompt: "q"})
	if !errors.Is(err, llm.ErrEmptyCompletion) || out.Success {
		t.Fatalf("expected ErrEmptyCompletion, got %v %+v", err, out)
	}
}

func TestName(t *testing.T) {
	if New(Options{}).Name() != "anthropic" {
		t.Fatal("name")
	}
}
