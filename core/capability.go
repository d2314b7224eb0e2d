package core

import "context"

// Message is one chat turn handed to the LLM capability.
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// Params tunes a single chat completion call.
type Params struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int64   `json:"max_tokens,omitempty"`
}

// Provider is the LLM capability consumed by the agent pipeline. The engine
// is agnostic to the concrete vendor; adapters live under model/.
//
// Implementations must honor context cancellation and classify failures as
// *ProviderTransientError or *ProviderFatalError so retry policy can be
// applied uniformly.
type Provider interface {
	ChatComplete(ctx context.Context, messages []Message, params Params) (string, error)
	Embed(ctx context.Context, text string) ([]float64, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)

	// Available reports provider health. The turn coordinator short-circuits
	// new turns into degraded mode while this returns false, avoiding wasted
	// retries against a known-down provider.
	Available() bool
}

// Repository persists campaigns, characters, sessions and the per-session
// turn log. Implementations must be safe for concurrent use and must return
// defensive copies so callers cannot mutate stored state.
type Repository interface {
	SaveCampaign(ctx context.Context, c *Campaign) error
	LoadCampaign(ctx context.Context, id string) (*Campaign, error)
	DeleteCampaign(ctx context.Context, id string) error

	SaveCharacter(ctx context.Context, c *Character) error
	LoadCharacter(ctx context.Context, id string) (*Character, error)
	ListCharacters(ctx context.Context, campaignID string) ([]*Character, error)
	DeleteCharacter(ctx context.Context, id string) error

	SaveSession(ctx context.Context, s *Session) error
	LoadSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, campaignID string) ([]*Session, error)
	DeleteSession(ctx context.Context, id string) error

	// AppendTurn appends a completed turn to the session's ordered log.
	AppendTurn(ctx context.Context, sessionID string, result *TurnResult) error
	// LoadHistory returns turns with Sequence > sinceSeq in ascending order.
	LoadHistory(ctx context.Context, sessionID string, sinceSeq uint64) ([]*TurnResult, error)
}
