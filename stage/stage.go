// Package stage implements the agent pipeline that turns one player action
// into an adjudicated narrative result. Stages share a uniform contract and
// are listed in a fixed order, so new specialist stages are added by
// extending the pipeline slice rather than touching the turn coordinator.
package stage

import (
	"context"

	"github.com/fateloom/fateloom/core"
	"github.com/fateloom/fateloom/dice"
)

// Stage is the uniform contract every pipeline step implements. Run mutates
// the shared State and returns an error on failure; the orchestrator decides
// per stage whether a failure falls back or degrades the turn.
type Stage interface {
	Name() string
	Run(ctx context.Context, st *State) error
}

// State is the accumulating working set of one turn as it moves through the
// pipeline. It is confined to a single turn's goroutine (plus the
// opportunistic scene-art goroutine, which only writes SceneImageURL through
// the orchestrator).
type State struct {
	Request    core.TurnRequest
	Campaign   *core.Campaign
	Characters []*core.Character
	History    []*core.TurnResult
	Roller     *dice.Roller

	// Filled by context assembly.
	Window  []core.Message
	Summary string

	// Filled by the referee.
	Ruling string
	Rolls  []core.DiceRoll
	Deltas []core.StateDelta

	// Filled by the narrator.
	Narrative string

	// Scene-art cue signal derived from the narrative.
	SceneChanged  bool
	ScenePrompt   string
	SceneImageURL string

	// lastAttempts is set by stages that retry provider calls so the
	// orchestrator can record attempt counts in the turn trace.
	lastAttempts int
}

// takeAttempts returns and resets the attempt count of the last stage run,
// defaulting to one for stages without retries.
func (st *State) takeAttempts() int {
	n := st.lastAttempts
	st.lastAttempts = 0
	if n < 1 {
		n = 1
	}
	return n
}

// ActingCharacter returns the character issuing the turn, nil if unknown.
func (st *State) ActingCharacter() *core.Character {
	for _, c := range st.Characters {
		if c.ID == st.Request.CharacterID {
			return c
		}
	}
	return nil
}
