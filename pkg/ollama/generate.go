package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/WessleyAI/congress-qa/pkg/llm"
)

// ChatClient implements llm.Generator over Ollama's /api/chat endpoint.
type ChatClient struct {
	baseURL     string
	model       string
	temperature float64
	client      *http.Client
}

// NewChatClient creates an Ollama chat client.
func NewChatClient(baseURL, model string) *ChatClient {
	return &ChatClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: 0.3,
		client:      newHTTPClient(),
	}
}

// Name implements llm.Generator.
func (c *ChatClient) Name() string { return "ollama" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatReq struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResp struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`

	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// Complete implements llm.Generator.
func (c *ChatClient) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	req = req.Normalize()
	ctx, cancel := llm.WithTimeout(ctx, req)
	defer cancel()

	msgs := make([]chatMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})

	in := chatReq{
		Model:    c.model,
		Messages: msgs,
		Options: map[string]any{
			"temperature": c.temperature,
			"num_predict": req.MaxTokens,
		},
	}
	var resp chatResp
	if err := postJSON(ctx, c.client, c.baseURL+"/api/chat", in, &resp); err != nil {
		return llm.Completion{}, fmt.Errorf("ollama chat: %w", err)
	}

	out := llm.Completion{
		Text:  strings.TrimSpace(resp.Message.Content),
		Model: resp.Model,
		Usage: llm.Usage{In: resp.PromptEvalCount, Out: resp.EvalCount},
	}
	if out.Text == "" {
		return out, llm.ErrEmptyCompletion
	}
	out.Success = true
	return out, nil
}
