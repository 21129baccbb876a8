package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/WessleyAI/congress-qa/engine/congress"
	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/WessleyAI/congress-qa/pkg/llm"
)

// --- mocks ---

type mockGenerator struct {
	text    string
	err     error
	panics  bool
	lastReq llm.Request
	calls   int
}

func (m *mockGenerator) Name() string { return "mock" }

func (m *mockGenerator) Complete(_ context.Context, req llm.Request) (llm.Completion, error) {
	m.calls++
	m.lastReq = req
	if m.panics {
		panic("generator exploded")
	}
	if m.err != nil {
		return llm.Completion{}, m.err
	}
	return llm.Completion{Success: m.text != "", Text: m.text, Model: "mock-1"}, nil
}

func hr1234(sim float64) domain.Evidence {
	return domain.Bill{
		ID: 1, Type: "hr", Number: 1234,
		Title:        "Healthcare Access and Affordability Act",
		Summary:      "Lowers premiums for working families.",
		PolicyArea:   "Health",
		IntroducedAt: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		SponsorName:  "Jane Doe", SponsorParty: "D", SponsorState: "CA",
		HasText: true,
	}.Evidence(sim, domain.MatchKeyword)
}

func member(sim float64) domain.Evidence {
	return domain.Member{ID: 10, FullName: "Jane Doe", Party: "D", State: "CA", Chamber: "House", Current: true}.
		Evidence(sim, domain.MatchStructured)
}

// --- tests ---

func TestSynthesize_Success(t *testing.T) {
	gen := &mockGenerator{text: "**HR 1234: Healthcare Access and Affordability Act** lowers premiums.\n\nThe database query returned one bill. It was introduced in March 2024."}
	svc := New(gen, DefaultOptions(), nil, nil)

	env, err := svc.Synthesize(context.Background(), Input{
		Question: "What healthcare bills were introduced in 2024?",
		Evidence: []domain.Evidence{hr1234(0.8), member(0.6)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !env.Success {
		t.Fatalf("expected success, got %+v", env)
	}
	if !strings.Contains(env.Text, "HR 1234") {
		t.Errorf("text missing citation: %q", env.Text)
	}
	if strings.Contains(strings.ToLower(env.Text), "database") {
		t.Errorf("jargon not stripped: %q", env.Text)
	}
	if !strings.Contains(env.Text, "It was introduced in March 2024.") {
		t.Errorf("clean sentence dropped: %q", env.Text)
	}
	if !strings.Contains(env.HTML, "<strong>HR 1234: Healthcare Access and Affordability Act</strong>") {
		t.Errorf("unexpected html: %s", env.HTML)
	}
	if d := env.Confidence - 0.7; d > 1e-9 || d < -1e-9 {
		t.Errorf("expected confidence 0.7, got %v", env.Confidence)
	}
	if len(env.Sources) != 2 || env.Sources[0] != "HR 1234: Healthcare Access and Affordability Act" {
		t.Errorf("unexpected sources: %v", env.Sources)
	}
	if gen.calls != 1 {
		t.Errorf("expected one generation call, got %d", gen.calls)
	}
	if gen.lastReq.System != persona || gen.lastReq.Timeout != llm.QuickTimeout {
		t.Errorf("unexpected request: %+v", gen.lastReq)
	}
	for _, want := range []string{
		"Question: What healthcare bills were introduced in 2024?",
		"- HR 1234: Healthcare Access and Affordability Act (introduced 2024-03-15; sponsor Jane Doe (D-CA); policy area Health; full text available; relevance 0.80)",
		"Summary: Lowers premiums for working families.",
		"- Jane Doe (D-CA), House (relevance 0.60)",
		"TYPE NUMBER: Title",
	} {
		if !strings.Contains(gen.lastReq.Prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, gen.lastReq.Prompt)
		}
	}
}

func TestSynthesize_CapsEvidencePerType(t *testing.T) {
	gen := &mockGenerator{text: "ok"}
	svc := New(gen, DefaultOptions(), nil, nil)

	var evs []domain.Evidence
	for i := 0; i < 8; i++ {
		ev := hr1234(0.5)
		ev.ID = int64(i + 1)
		ev.Identifier = fmt.Sprintf("HR %d", 100+i)
		evs = append(evs, ev)
	}
	env, _ := svc.Synthesize(context.Background(), Input{Question: "Which bills?", Evidence: evs})

	if n := strings.Count(gen.lastReq.Prompt, "\n- HR "); n != 5 {
		t.Errorf("expected 5 bills in prompt, got %d", n)
	}
	if len(env.Sources) != 5 {
		t.Errorf("expected 5 sources, got %d", len(env.Sources))
	}
}

func TestSynthesize_ProviderUnavailable(t *testing.T) {
	gen := &mockGenerator{err: errors.New("dial tcp: connection refused")}
	svc := New(gen, DefaultOptions(), nil, nil)

	env, err := svc.Synthesize(context.Background(), Input{Question: "Who represents Ohio?"})
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if env.Success || len(env.Errors) != 1 {
		t.Errorf("expected failed envelope with one error, got %+v", env)
	}
}

func TestSynthesize_EmptyCompletion(t *testing.T) {
	svc := New(&mockGenerator{}, DefaultOptions(), nil, nil)

	_, err := svc.Synthesize(context.Background(), Input{Question: "Who represents Ohio?"})
	if !errors.Is(err, domain.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if errors.Is(err, domain.ErrProviderUnavailable) {
		t.Error("empty reply should not read as unavailable")
	}
}

func TestSynthesize_ReplyOnlyJargon(t *testing.T) {
	svc := New(&mockGenerator{text: "I ran a SQL query against the database."}, DefaultOptions(), nil, nil)

	env, err := svc.Synthesize(context.Background(), Input{Question: "Who represents Ohio?"})
	if !errors.Is(err, domain.ErrMalformedResponse) || env.Success {
		t.Fatalf("expected malformed failure, got %+v %v", env, err)
	}
}

func TestSynthesize_RecoversPanic(t *testing.T) {
	svc := New(&mockGenerator{panics: true}, DefaultOptions(), nil, nil)

	env, err := svc.Synthesize(context.Background(), Input{Question: "Who represents Ohio?"})
	if err == nil || env.Success {
		t.Fatalf("expected failure, got %+v", env)
	}
	if !strings.Contains(env.Errors[0], "generator exploded") {
		t.Errorf("unexpected errors: %v", env.Errors)
	}
}

func TestBuildPrompt_RecencyAndNeutrality(t *testing.T) {
	svc := New(&mockGenerator{}, DefaultOptions(), nil, nil)

	p := svc.buildPrompt(Input{Question: "Who sponsored HR 1234?"})
	if strings.Contains(p.user, "Prioritize 2024-2025") || strings.Contains(p.user, "neutral") {
		t.Errorf("unexpected instruction blocks:\n%s", p.user)
	}

	p = svc.buildPrompt(Input{
		Question: "Are Republicans trying to hurt healthcare?",
		Intent:   domain.IntentResult{TemporalScope: domain.ScopeRecent, Subjective: true},
	})
	if !strings.Contains(p.user, "Prioritize 2024-2025") {
		t.Error("missing recency block for recent scope")
	}
	if !strings.Contains(p.user, "Stay neutral and factual") {
		t.Error("missing neutrality block")
	}

	p = svc.buildPrompt(Input{Question: "What are the latest bills?"})
	if !strings.Contains(p.user, "Prioritize 2024-2025") {
		t.Error("missing recency block for recency wording")
	}
}

func TestBuildPrompt_HistoryAndTruncation(t *testing.T) {
	svc := New(&mockGenerator{}, DefaultOptions(), nil, nil)
	var turns []domain.Turn
	for i := 1; i <= 5; i++ {
		turns = append(turns, domain.Turn{Question: fmt.Sprintf("question %d", i), Response: "answer"})
	}
	long := hr1234(0.9)
	long.Content = strings.Repeat("a", 500)

	p := svc.buildPrompt(Input{Question: "And the Senate?", History: turns, Evidence: []domain.Evidence{long}})
	if strings.Contains(p.user, "question 2") || !strings.Contains(p.user, "question 3") || !strings.Contains(p.user, "question 5") {
		t.Errorf("expected the last three turns:\n%s", p.user)
	}
	if !strings.Contains(p.user, "Summary: "+strings.Repeat("a", 300)+"...") || strings.Contains(p.user, strings.Repeat("a", 301)) {
		t.Error("summary not truncated to 300 runes")
	}
}

func TestBuildPrompt_Styles(t *testing.T) {
	svc := New(&mockGenerator{}, DefaultOptions(), nil, nil)
	st := &congress.Stats{
		TotalBills: 3,
		ByParty:    []congress.Count{{Label: "D", N: 2}, {Label: "R", N: 1}},
		ByState:    []congress.Count{{Label: "CA", N: 3}},
	}

	full := svc.buildPrompt(Input{Question: "How many bills?", Stats: st})
	if full.system != persona || !strings.Contains(full.user, "Bills by sponsor state: CA 3") {
		t.Errorf("full prompt:\n%s", full.user)
	}

	simple := svc.buildPrompt(Input{Question: "How many bills?", Stats: st, Style: StyleSimple})
	if simple.system != simplePersona {
		t.Error("expected simple persona")
	}
	if !strings.Contains(simple.user, "Bills by party: D 2, R 1") || strings.Contains(simple.user, "by sponsor state") {
		t.Errorf("simple prompt:\n%s", simple.user)
	}

	empty := svc.buildPrompt(Input{Question: "How many bills?"})
	if !strings.Contains(empty.user, "No matching records were found.") {
		t.Error("expected no-records note")
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "HR 1234 passed the House.", "HR 1234 passed the House."},
		{"jargon sentence", "Based on the database, HR 1234 passed. It then went to the Senate.", "It then went to the Senate."},
		{"whitespace", "HR   1234\n\n\n\npassed.", "HR 1234\n\npassed."},
		{"list kept", "- **HR 1234**: passed\n  - nested  item", "- **HR 1234**: passed\n  - nested item"},
		{"bare marker dropped", "- The SQL query found it.\n- HR 1234", "- HR 1234"},
		{"table motion kept", "The motion was laid on the table.", "The motion was laid on the table."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRender(t *testing.T) {
	html, err := Render("## Summary\n\n<script>alert(1)</script>\n\n- **bold** and *italic* and `code`")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{"<h2>Summary</h2>", "<li><strong>bold</strong> and <em>italic</em> and <code>code</code></li>"} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q: %s", want, html)
		}
	}
	if strings.Contains(html, "<script>") {
		t.Errorf("raw html passed through: %s", html)
	}
}

func TestConfidence(t *testing.T) {
	if Confidence(nil) != 0 {
		t.Error("expected 0 for no evidence")
	}
	if got := Confidence([]domain.Evidence{{Similarity: 1}, {Similarity: 0.5}}); got != 0.75 {
		t.Errorf("got %v", got)
	}
}
