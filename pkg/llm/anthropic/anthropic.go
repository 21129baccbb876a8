// Package anthropic implements llm.Generator on the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/WessleyAI/congress-qa/pkg/llm"
	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Options configures the client.
type Options struct {
	APIKey string
	// Model is used for long-form requests; QuickModel for ModeQuick.
	Model      string
	QuickModel string
	BaseURL    string
	MaxRetries int
	HTTPClient *http.Client
}

// Generator calls Claude models.
type Generator struct {
	client sdk.Client
	opts   Options
}

// New creates a Generator.
func New(opts Options) *Generator {
	if opts.QuickModel == "" {
		opts.QuickModel = opts.Model
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	return &Generator{client: sdk.NewClient(reqOpts...), opts: opts}
}

// Name implements llm.Generator.
func (g *Generator) Name() string { return "anthropic" }

// Complete implements llm.Generator.
func (g *Generator) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	req = req.Normalize()
	ctx, cancel := llm.WithTimeout(ctx, req)
	defer cancel()

	model := g.opts.Model
	if req.Mode == llm.ModeQuick {
		model = g.opts.QuickModel
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return llm.Completion{}, fmt.Errorf("anthropic: messages: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(sdk.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	out := llm.Completion{
		Text:  strings.TrimSpace(b.String()),
		Model: string(msg.Model),
		Usage: llm.Usage{In: int(msg.Usage.InputTokens), Out: int(msg.Usage.OutputTokens)},
	}
	if out.Text == "" {
		return out, llm.ErrEmptyCompletion
	}
	out.Success = true
	return out, nil
}
