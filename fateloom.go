// Package fateloom provides a high-level façade over the session engine and
// its services (entity lifecycle, turn pipeline, broadcast hub & logging)
// enabling rapid construction of AI-driven tabletop sessions. Most
// applications interact with this package by:
//  1. Creating an Engine via New() (optionally overriding the default
//     in-memory repository, the mock provider and the NoOp logger)
//  2. Creating a campaign, its characters and a session
//  3. Submitting player turns (SubmitTurn) and consuming the ordered delta
//     stream (Subscribe)
//
// The façade delegates turn serialization to turn.Coordinator while keeping
// setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a durable
// repository, a real LLM provider and a structured logger.
package fateloom

import (
	"context"

	"github.com/fateloom/fateloom/config"
	"github.com/fateloom/fateloom/core"
	"github.com/fateloom/fateloom/game"
	"github.com/fateloom/fateloom/hub"
	"github.com/fateloom/fateloom/logging"
	"github.com/fateloom/fateloom/model"
	"github.com/fateloom/fateloom/stage"
	"github.com/fateloom/fateloom/store"
	"github.com/fateloom/fateloom/turn"
)

// Options configures the Engine instance.
type Options struct {
	// Config carries every engine tunable (queue depth, replay capacity,
	// retry bounds, stage timeouts).
	Config config.Config

	// Repository persists campaigns, characters, sessions and the turn log.
	// Defaults to the in-memory implementation.
	Repository core.Repository

	// Provider is the LLM capability backing the referee, narrator and
	// scene-art stages. Defaults to the deterministic mock provider.
	Provider core.Provider

	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Engine is the high-level façade aggregating the session manager, the stage
// pipeline, the turn coordinator and the broadcast hub.
type Engine struct {
	opts         Options
	manager      *game.Manager
	orchestrator *stage.Orchestrator
	hub          *hub.Hub
	coordinator  *turn.Coordinator
}

// New creates a new Engine instance with optional overrides. Any unset
// service is initialized with an in-memory or mock implementation.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:     config.Default(),
		Repository: store.NewInMemory(),
		Provider:   model.NewMockProvider(),
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	manager := game.NewManager(opts.Repository, func(o *game.Options) {
		o.QueueDepth = opts.Config.TurnQueueDepth
		o.HistoryTurns = opts.Config.HistoryTurns
		o.Logger = opts.Logger
	})
	orchestrator := stage.NewOrchestrator(opts.Provider, opts.Config, opts.Logger)
	broadcast := hub.New(func(o *hub.Options) {
		o.RingCapacity = opts.Config.RingCapacity
		o.SubscriberBuffer = opts.Config.SubscriberBuffer
		o.MaxSendFailures = opts.Config.MaxSendFailures
		o.Logger = opts.Logger
	})

	return &Engine{
		opts:         opts,
		manager:      manager,
		orchestrator: orchestrator,
		hub:          broadcast,
		coordinator:  turn.NewCoordinator(manager, orchestrator, broadcast, opts.Logger),
	}
}

// CreateCampaign validates and persists a new campaign.
func (e *Engine) CreateCampaign(ctx context.Context, c *core.Campaign) (*core.Campaign, error) {
	return e.manager.CreateCampaign(ctx, c)
}

// GetCampaign loads a campaign by id.
func (e *Engine) GetCampaign(ctx context.Context, id string) (*core.Campaign, error) {
	return e.manager.GetCampaign(ctx, id)
}

// UpdateCampaign applies an out-of-session edit to campaign fields.
func (e *Engine) UpdateCampaign(ctx context.Context, c *core.Campaign) error {
	return e.manager.UpdateCampaign(ctx, c)
}

// DeleteCampaign tears down every session of the campaign, then removes its
// characters and the campaign itself.
func (e *Engine) DeleteCampaign(ctx context.Context, id string) error {
	sessionIDs := e.manager.SessionIDsForCampaign(id)
	if err := e.manager.DeleteCampaign(ctx, id); err != nil {
		return err
	}
	for _, sid := range sessionIDs {
		e.hub.DropSession(sid)
		e.orchestrator.ForgetSession(sid)
	}
	return nil
}

// CreateCharacter validates and persists a new character in a campaign.
func (e *Engine) CreateCharacter(ctx context.Context, c *core.Character) (*core.Character, error) {
	return e.manager.CreateCharacter(ctx, c)
}

// GetCharacter loads a character by id.
func (e *Engine) GetCharacter(ctx context.Context, id string) (*core.Character, error) {
	return e.manager.GetCharacter(ctx, id)
}

// UpdateCharacter applies an out-of-turn character edit, serialized through
// the owning session's admission gate when one is live.
func (e *Engine) UpdateCharacter(ctx context.Context, c *core.Character) error {
	return e.manager.UpdateCharacter(ctx, c)
}

// DeleteCharacter removes a character, detaching it from live sessions.
func (e *Engine) DeleteCharacter(ctx context.Context, id string) error {
	return e.manager.DeleteCharacter(ctx, id)
}

// CreateSession starts a session for a campaign with the given participants.
func (e *Engine) CreateSession(ctx context.Context, campaignID string, characterIDs []string) (*core.Session, error) {
	return e.manager.CreateSession(ctx, campaignID, characterIDs)
}

// GetSession returns the current session record, resuming it from the
// repository if needed.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*core.Session, error) {
	ls, err := e.manager.Live(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return ls.Snapshot(), nil
}

// DeleteSession cancels any in-flight turn, fails queued submissions, closes
// every subscription and removes the session's records.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	if err := e.manager.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	e.hub.DropSession(sessionID)
	e.orchestrator.ForgetSession(sessionID)
	return nil
}

// SubmitTurn runs one player action through the pipeline and returns the
// adjudicated result. Concurrent submissions to the same session are
// serialized FIFO; beyond the configured queue depth they fail fast with
// core.ErrBusy.
func (e *Engine) SubmitTurn(ctx context.Context, req core.TurnRequest) (*core.TurnResult, error) {
	return e.coordinator.Submit(ctx, req)
}

// Subscribe attaches a client to a session's ordered delta stream. Deltas
// after lastSeen are replayed from the ring buffer; if they cannot all be
// replayed, evicted from the ring or lost when the process hosting it
// restarted, core.ErrResyncRequired is returned and the client should fetch
// full state via History instead. The session record anchors the gap check,
// so a stale lastSeen never yields a silently incomplete stream.
func (e *Engine) Subscribe(ctx context.Context, sessionID string, lastSeen uint64) (*hub.Subscription, error) {
	ls, err := e.manager.Live(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return e.hub.Subscribe(sessionID, lastSeen, ls.Snapshot().Sequence)
}

// History returns the persisted turns of a session with Sequence > sinceSeq
// in ascending order.
func (e *Engine) History(ctx context.Context, sessionID string, sinceSeq uint64) ([]*core.TurnResult, error) {
	return e.opts.Repository.LoadHistory(ctx, sessionID, sinceSeq)
}
