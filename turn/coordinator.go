// Package turn serializes turn submissions per session and drives the agent
// pipeline. The per-session admission gate is the sole serialization point:
// exactly one turn body executes per session, a bounded FIFO queue absorbs
// bursts, and anything beyond the queue fails fast with ErrBusy. The gate is
// released on every exit path, including pipeline failure and session
// teardown; a held lock never survives a failure.
package turn

import (
	"context"
	"fmt"
	"strings"

	"github.com/fateloom/fateloom/core"
	"github.com/fateloom/fateloom/game"
	"github.com/fateloom/fateloom/hub"
	"github.com/fateloom/fateloom/logging"
	"github.com/fateloom/fateloom/stage"
)

// Coordinator admits, orders and finalizes turns for every session.
type Coordinator struct {
	manager      *game.Manager
	orchestrator *stage.Orchestrator
	broadcast    *hub.Hub
	logger       *logging.GameLogger
}

// NewCoordinator wires the coordinator against its collaborators.
func NewCoordinator(manager *game.Manager, orchestrator *stage.Orchestrator, broadcast *hub.Hub, logger logging.Logger) *Coordinator {
	return &Coordinator{
		manager:      manager,
		orchestrator: orchestrator,
		broadcast:    broadcast,
		logger:       logging.NewGameLogger(logger),
	}
}

// Submit runs one player action through the pipeline and returns the
// adjudicated result. Requests for a busy session queue FIFO up to the
// configured depth, then fail fast with ErrBusy. The assigned sequence
// number is the only externally visible ordering signal; the result is
// returned to the caller and simultaneously published to the broadcast hub.
func (c *Coordinator) Submit(ctx context.Context, req core.TurnRequest) (*core.TurnResult, error) {
	if strings.TrimSpace(req.Input) == "" {
		return nil, &core.ValidationError{Field: "input", Reason: "must not be empty"}
	}

	ls, err := c.manager.Live(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if res, ok := ls.CachedResult(req.SubmissionToken); ok {
		return res, nil
	}
	if ls.Frozen() {
		return nil, core.ErrSessionFrozen
	}

	if err := ls.Gate().Acquire(ctx); err != nil {
		return nil, err
	}
	defer ls.Gate().Release()

	// Re-check under the gate: the session may have been frozen, or this
	// very token processed, while the request waited in the queue.
	if ls.Frozen() {
		return nil, core.ErrSessionFrozen
	}
	if res, ok := ls.CachedResult(req.SubmissionToken); ok {
		return res, nil
	}

	turnCtx, endTurn := ls.BeginTurn(ctx)
	defer endTurn()

	sctx, err := c.manager.LoadSessionContext(turnCtx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if req.CharacterID != "" && !participates(sctx.Session, req.CharacterID) {
		return nil, &core.ValidationError{Field: "character_id", Reason: "not a participant of this session"}
	}

	st := &stage.State{
		Request:    req,
		Campaign:   sctx.Campaign,
		Characters: sctx.Characters,
		History:    sctx.History,
		Roller:     sctx.Roller,
	}

	logger := c.logger.WithSession(req.SessionID)
	var result *core.TurnResult
	if c.orchestrator.Provider().Available() {
		result = c.orchestrator.RunTurn(turnCtx, st)
	} else {
		logger.Warn("provider unavailable, short-circuiting turn into degraded mode")
		result = c.orchestrator.RunTurnDegraded(turnCtx, st)
	}

	if turnCtx.Err() != nil {
		return nil, fmt.Errorf("turn cancelled: %w", turnCtx.Err())
	}

	if err := c.manager.CommitTurn(ctx, ls, result); err != nil {
		return nil, err
	}

	c.broadcast.Publish(req.SessionID, result)
	logger.WithTurn(result.Sequence).Info("turn completed", "status", result.Status, "rolls", len(result.Rolls))
	return result, nil
}

func participates(s *core.Session, characterID string) bool {
	for _, cid := range s.CharacterIDs {
		if cid == characterID {
			return true
		}
	}
	return false
}
