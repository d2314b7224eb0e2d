// Package openai provides a core.Provider backed by the OpenAI platform:
// Chat Completions for narration, Embeddings for context recall and Images
// for scene art.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/fateloom/fateloom/core"
	"github.com/fateloom/fateloom/model"
	"github.com/openai/openai-go"
)

// Options configures the OpenAI provider adapter.
type Options struct {
	Model          string
	EmbeddingModel string
	ImageModel     string
	Temperature    float64
	MaxTokens      int64
}

// Provider wraps the OpenAI API behind core.Provider.
type Provider struct {
	client *openai.Client
	opts   Options
	health model.Health
}

var _ core.Provider = (*Provider)(nil)

// New creates a provider using the official client (API key from env).
func New(optFns ...func(o *Options)) *Provider {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a provider from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:          openai.ChatModelGPT4oMini,
		EmbeddingModel: openai.EmbeddingModelTextEmbedding3Small,
		ImageModel:     openai.ImageModelDallE3,
		Temperature:    0.7,
		MaxTokens:      4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// ChatComplete implements core.Provider.
func (p *Provider) ChatComplete(ctx context.Context, messages []core.Message, params core.Params) (string, error) {
	req := openai.ChatCompletionNewParams{
		Model:       p.opts.Model,
		Temperature: openai.Float(p.opts.Temperature),
	}
	if params.Temperature > 0 {
		req.Temperature = openai.Float(params.Temperature)
	}
	maxTokens := p.opts.MaxTokens
	if params.MaxTokens > 0 {
		maxTokens = params.MaxTokens
	}
	req.MaxCompletionTokens = openai.Int(maxTokens)

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			req.Messages = append(req.Messages, openai.SystemMessage(msg.Content))
		case "assistant":
			req.Messages = append(req.Messages, openai.AssistantMessage(msg.Content))
		default:
			req.Messages = append(req.Messages, openai.UserMessage(msg.Content))
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, req)
	if err != nil {
		classified := model.Classify("chat", statusCode(err), err)
		p.health.Observe(classified)
		return "", classified
	}
	p.health.Observe(nil)

	if len(resp.Choices) == 0 {
		return "", &core.ProviderTransientError{Op: "chat", Err: fmt.Errorf("openai: empty choice list")}
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed implements core.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: p.opts.EmbeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		classified := model.Classify("embed", statusCode(err), err)
		p.health.Observe(classified)
		return nil, classified
	}
	p.health.Observe(nil)

	if len(resp.Data) == 0 {
		return nil, &core.ProviderTransientError{Op: "embed", Err: fmt.Errorf("openai: empty embedding response")}
	}
	return resp.Data[0].Embedding, nil
}

// GenerateImage implements core.Provider.
func (p *Provider) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:  p.opts.ImageModel,
		Prompt: prompt,
		N:      openai.Int(1),
	})
	if err != nil {
		classified := model.Classify("image", statusCode(err), err)
		p.health.Observe(classified)
		return "", classified
	}
	p.health.Observe(nil)

	if len(resp.Data) == 0 {
		return "", &core.ProviderTransientError{Op: "image", Err: fmt.Errorf("openai: empty image response")}
	}
	return resp.Data[0].URL, nil
}

// Available implements core.Provider.
func (p *Provider) Available() bool { return p.health.Available() }

// statusCode extracts the HTTP status from an SDK error, 0 if unknown.
func statusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
