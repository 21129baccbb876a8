// Package openai implements llm.Generator and an embedding provider on the
// OpenAI API (or any compatible endpoint).
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/WessleyAI/congress-qa/pkg/llm"
	sdk "github.com/sashabaranov/go-openai"
)

// Options configures the client.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	QuickModel string
	// EmbeddingModel and EmbeddingDims describe the embedding identity.
	EmbeddingModel string
	EmbeddingDims  int
}

func newClient(opts Options) *sdk.Client {
	cfg := sdk.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return sdk.NewClientWithConfig(cfg)
}

// Generator calls chat completion models.
type Generator struct {
	client *sdk.Client
	opts   Options
}

// NewGenerator creates a Generator.
func NewGenerator(opts Options) *Generator {
	if opts.QuickModel == "" {
		opts.QuickModel = opts.Model
	}
	return &Generator{client: newClient(opts), opts: opts}
}

// Name implements llm.Generator.
func (g *Generator) Name() string { return "openai" }

// Complete implements llm.Generator.
func (g *Generator) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	req = req.Normalize()
	ctx, cancel := llm.WithTimeout(ctx, req)
	defer cancel()

	model := g.opts.Model
	if req.Mode == llm.ModeQuick {
		model = g.opts.QuickModel
	}

	msgs := make([]sdk.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, sdk.ChatCompletionMessage{Role: sdk.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, sdk.ChatCompletionMessage{Role: sdk.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := g.client.CreateChatCompletion(ctx, sdk.ChatCompletionRequest{
		Model:     model,
		Messages:  msgs,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return llm.Completion{}, fmt.Errorf("openai: chat completion: %w", err)
	}

	out := llm.Completion{
		Model: resp.Model,
		Usage: llm.Usage{In: resp.Usage.PromptTokens, Out: resp.Usage.CompletionTokens},
	}
	if len(resp.Choices) > 0 {
		out.Text = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if out.Text == "" {
		return out, llm.ErrEmptyCompletion
	}
	out.Success = true
	return out, nil
}

// Embedder turns texts into vectors with an embedding model.
type Embedder struct {
	client *sdk.Client
	opts   Options
}

// NewEmbedder creates an Embedder.
func NewEmbedder(opts Options) *Embedder {
	return &Embedder{client: newClient(opts), opts: opts}
}

// Name returns the provider and model identity.
func (e *Embedder) Name() string { return "openai/" + e.opts.EmbeddingModel }

// Dimensions returns the configured vector size, 0 when unknown.
func (e *Embedder) Dimensions() int { return e.opts.EmbeddingDims }

// Embed returns one vector per input text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, sdk.EmbeddingRequest{
		Input:      texts,
		Model:      sdk.EmbeddingModel(e.opts.EmbeddingModel),
		Dimensions: e.opts.EmbeddingDims,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai: embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, errors.New("openai: embeddings: index out of range")
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
