package core

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a unique identifier for entities, turns and clients.
func NewID() string { return uuid.NewString() }

// Campaign is the top-level container for a game world. It is immutable
// except through the session manager's explicit update operation.
type Campaign struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Setting  string    `json:"setting"`
	Tone     string    `json:"tone"`
	Homebrew string    `json:"homebrew,omitempty"`
	OwnerID  string    `json:"owner_id"`
	Created  time.Time `json:"created"`
}

// AbilityScores maps ability names (e.g. "strength") to their score.
type AbilityScores map[string]int

// CharacterState is the mutable runtime portion of a character sheet.
// It changes only through state deltas applied by the session manager.
type CharacterState struct {
	HitPoints int      `json:"hit_points"`
	Inventory []string `json:"inventory,omitempty"`
	Position  string   `json:"position,omitempty"`
}

// Character belongs to exactly one Campaign; CampaignID never changes after
// creation.
type Character struct {
	ID         string         `json:"id"`
	CampaignID string         `json:"campaign_id"`
	Name       string         `json:"name"`
	Race       string         `json:"race"`
	Class      string         `json:"class"`
	Abilities  AbilityScores  `json:"abilities,omitempty"`
	Backstory  string         `json:"backstory,omitempty"`
	State      CharacterState `json:"state"`
	Created    time.Time      `json:"created"`
}

// Clone returns a deep copy safe for independent mutation.
func (c *Character) Clone() *Character {
	clone := *c
	if c.Abilities != nil {
		clone.Abilities = make(AbilityScores, len(c.Abilities))
		for k, v := range c.Abilities {
			clone.Abilities[k] = v
		}
	}
	if c.State.Inventory != nil {
		clone.State.Inventory = append([]string(nil), c.State.Inventory...)
	}
	return &clone
}

// Session is the persisted record of a live multiplayer instance of a
// Campaign. Sequence and RollIndex only ever move forward; Seed is fixed at
// creation so dice outcomes stay reproducible across restarts.
type Session struct {
	ID           string    `json:"id"`
	CampaignID   string    `json:"campaign_id"`
	CharacterIDs []string  `json:"character_ids"`
	Sequence     uint64    `json:"sequence"`
	Seed         int64     `json:"seed"`
	RollIndex    uint64    `json:"roll_index"`
	Frozen       bool      `json:"frozen"`
	Created      time.Time `json:"created"`
}

// Clone returns a deep copy safe for independent mutation.
func (s *Session) Clone() *Session {
	clone := *s
	if s.CharacterIDs != nil {
		clone.CharacterIDs = append([]string(nil), s.CharacterIDs...)
	}
	return &clone
}
