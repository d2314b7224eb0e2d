// Package model adapts concrete LLM vendors behind the core.Provider
// capability. Adapters classify every failure as transient or fatal so the
// pipeline's retry policy stays vendor agnostic, and track a coarse health
// flag consumed by the turn coordinator.
package model

import (
	"context"
	"errors"
	"net"
	"sync/atomic"

	"github.com/fateloom/fateloom/core"
)

// Classify wraps err into the engine's provider error taxonomy.
//
// Timeouts and 5xx/429/408-class responses are transient (retryable);
// everything else (auth, quota exhaustion, validation rejections,
// unsupported capability) is fatal and surfaced immediately.
func Classify(op string, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.ProviderTransientError{Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &core.ProviderTransientError{Op: op, Err: err}
	}
	switch {
	case statusCode == 408, statusCode == 429, statusCode >= 500:
		return &core.ProviderTransientError{Op: op, Err: err}
	default:
		return &core.ProviderFatalError{Op: op, Err: err}
	}
}

// Health is a coarse availability flag shared by adapters. Fatal errors mark
// the provider down; any success marks it back up. Transient errors leave
// the flag untouched since the retry policy already covers them.
type Health struct {
	down atomic.Bool
}

func (h *Health) Observe(err error) {
	var fatal *core.ProviderFatalError
	switch {
	case err == nil:
		h.down.Store(false)
	case errors.As(err, &fatal):
		h.down.Store(true)
	}
}

// Available implements the health signal of core.Provider.
func (h *Health) Available() bool { return !h.down.Load() }

// MockProvider is a lightweight in-memory Provider for tests and local
// development. Responses are keyed by the last user message; unknown inputs
// get a deterministic canned reply.
type MockProvider struct {
	Health
	responses map[string]string
	chatErr   error
	imageErr  error
	imageURL  string

	ChatCalls  atomic.Int64
	ImageCalls atomic.Int64
}

// NewMockProvider constructs an empty mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{responses: map[string]string{}, imageURL: "https://images.invalid/scene.png"}
}

// AddResponse registers a canned completion for a user message.
func (m *MockProvider) AddResponse(input, response string) { m.responses[input] = response }

// FailChatWith makes ChatComplete return err until cleared with nil.
func (m *MockProvider) FailChatWith(err error) { m.chatErr = err }

// FailImageWith makes GenerateImage return err until cleared with nil.
func (m *MockProvider) FailImageWith(err error) { m.imageErr = err }

// SetAvailable overrides the health flag directly.
func (m *MockProvider) SetAvailable(up bool) { m.down.Store(!up) }

// ChatComplete implements core.Provider.
func (m *MockProvider) ChatComplete(ctx context.Context, messages []core.Message, _ core.Params) (string, error) {
	m.ChatCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return "", &core.ProviderTransientError{Op: "chat", Err: err}
	}
	if m.chatErr != nil {
		m.Observe(m.chatErr)
		return "", m.chatErr
	}
	var last string
	for _, msg := range messages {
		if msg.Role == "user" {
			last = msg.Content
		}
	}
	if resp, ok := m.responses[last]; ok {
		m.Observe(nil)
		return resp, nil
	}
	m.Observe(nil)
	return "Mock response to: " + last, nil
}

// Embed implements core.Provider with a trivial deterministic embedding.
func (m *MockProvider) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, 8)
	for i, r := range text {
		vec[i%8] += float64(r) / 1000
	}
	return vec, nil
}

// GenerateImage implements core.Provider.
func (m *MockProvider) GenerateImage(ctx context.Context, _ string) (string, error) {
	m.ImageCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return "", &core.ProviderTransientError{Op: "image", Err: err}
	}
	if m.imageErr != nil {
		m.Observe(m.imageErr)
		return "", m.imageErr
	}
	return m.imageURL, nil
}
