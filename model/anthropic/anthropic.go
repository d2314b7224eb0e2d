// Package anthropic provides a core.Provider backed by the Anthropic
// Messages API. Anthropic does not offer embedding or image generation
// endpoints, so those capabilities report a fatal (non-retryable) error.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/fateloom/fateloom/core"
	"github.com/fateloom/fateloom/model"
)

// Options configures the Anthropic provider adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Provider wraps the Anthropic Messages API behind core.Provider.
type Provider struct {
	client *anthropic.Client
	opts   Options
	health model.Health
}

var _ core.Provider = (*Provider)(nil)

// New creates a provider using the official client.
func New(optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Provider{client: &client, opts: opts}
}

// NewFromClient creates a provider from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// ChatComplete implements core.Provider.
func (p *Provider) ChatComplete(ctx context.Context, messages []core.Message, params core.Params) (string, error) {
	req := anthropic.MessageNewParams{
		Model:       p.opts.Model,
		MaxTokens:   p.opts.MaxTokens,
		Temperature: anthropic.Float(p.opts.Temperature),
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = params.MaxTokens
	}
	if params.Temperature > 0 {
		req.Temperature = anthropic.Float(params.Temperature)
	}

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			req.System = append(req.System, anthropic.TextBlockParam{Text: msg.Content})
		case "assistant":
			req.Messages = append(req.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			req.Messages = append(req.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	resp, err := p.client.Messages.New(ctx, req)
	if err != nil {
		classified := model.Classify("chat", statusCode(err), err)
		p.health.Observe(classified)
		return "", classified
	}
	p.health.Observe(nil)

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return sb.String(), nil
}

// Embed implements core.Provider. Anthropic has no embeddings endpoint.
func (p *Provider) Embed(context.Context, string) ([]float64, error) {
	return nil, &core.ProviderFatalError{Op: "embed", Err: fmt.Errorf("anthropic: embeddings not supported")}
}

// GenerateImage implements core.Provider. Anthropic has no image endpoint.
func (p *Provider) GenerateImage(context.Context, string) (string, error) {
	return "", &core.ProviderFatalError{Op: "image", Err: fmt.Errorf("anthropic: image generation not supported")}
}

// Available implements core.Provider.
func (p *Provider) Available() bool { return p.health.Available() }

// statusCode extracts the HTTP status from an SDK error, 0 if unknown.
func statusCode(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
