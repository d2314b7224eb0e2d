// Package store provides the in-memory reference implementation of
// core.Repository. It is safe for concurrent access and best suited for
// tests or ephemeral demo servers; production deployments supply a durable
// implementation behind the same interface.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/fateloom/fateloom/core"
)

// InMemory is a volatile Repository storing entities in process-local maps.
// Every value crossing the API boundary is cloned so callers can never
// mutate stored state.
type InMemory struct {
	mu         sync.RWMutex
	campaigns  map[string]*core.Campaign
	characters map[string]*core.Character
	sessions   map[string]*core.Session
	turns      map[string][]*core.TurnResult
}

var _ core.Repository = (*InMemory)(nil)

// NewInMemory constructs an empty in-memory repository.
func NewInMemory() *InMemory {
	return &InMemory{
		campaigns:  make(map[string]*core.Campaign),
		characters: make(map[string]*core.Character),
		sessions:   make(map[string]*core.Session),
		turns:      make(map[string][]*core.TurnResult),
	}
}

// SaveCampaign stores a copy of the campaign, overwriting any previous version.
func (s *InMemory) SaveCampaign(_ context.Context, c *core.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *c
	s.campaigns[c.ID] = &clone
	return nil
}

// LoadCampaign returns a copy of the stored campaign.
func (s *InMemory) LoadCampaign(_ context.Context, id string) (*core.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("campaign %s: not found", id)
	}
	clone := *c
	return &clone, nil
}

// DeleteCampaign removes the campaign record.
func (s *InMemory) DeleteCampaign(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.campaigns, id)
	return nil
}

// SaveCharacter stores a copy of the character.
func (s *InMemory) SaveCharacter(_ context.Context, c *core.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters[c.ID] = c.Clone()
	return nil
}

// LoadCharacter returns a copy of the stored character.
func (s *InMemory) LoadCharacter(_ context.Context, id string) (*core.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.characters[id]
	if !ok {
		return nil, fmt.Errorf("character %s: not found", id)
	}
	return c.Clone(), nil
}

// ListCharacters returns copies of all characters belonging to a campaign.
func (s *InMemory) ListCharacters(_ context.Context, campaignID string) ([]*core.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.Character
	for _, c := range s.characters {
		if c.CampaignID == campaignID {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

// DeleteCharacter removes the character record.
func (s *InMemory) DeleteCharacter(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.characters, id)
	return nil
}

// SaveSession stores a copy of the session record.
func (s *InMemory) SaveSession(_ context.Context, sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// LoadSession returns a copy of the stored session record.
func (s *InMemory) LoadSession(_ context.Context, id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// ListSessions returns copies of all session records belonging to a campaign.
func (s *InMemory) ListSessions(_ context.Context, campaignID string) ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.Session
	for _, sess := range s.sessions {
		if sess.CampaignID == campaignID {
			out = append(out, sess.Clone())
		}
	}
	return out, nil
}

// DeleteSession removes the session record and its turn log.
func (s *InMemory) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	delete(s.turns, id)
	return nil
}

// AppendTurn appends a completed turn to the session's ordered log. The log
// is append-only and gapless: anything but the next sequence number, a
// regression or a gap alike, indicates corruption and is rejected, never
// repaired.
func (s *InMemory) AppendTurn(_ context.Context, sessionID string, result *core.TurnResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.turns[sessionID]
	next := uint64(1)
	if n := len(log); n > 0 {
		next = log[n-1].Sequence + 1
	}
	if result.Sequence != next {
		return &core.StateCorruptionError{
			SessionID: sessionID,
			Detail:    fmt.Sprintf("turn sequence %d, expected %d", result.Sequence, next),
		}
	}
	s.turns[sessionID] = append(log, result.Clone())
	return nil
}

// LoadHistory returns turns with Sequence > sinceSeq in ascending order.
func (s *InMemory) LoadHistory(_ context.Context, sessionID string, sinceSeq uint64) ([]*core.TurnResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.TurnResult
	for _, turn := range s.turns[sessionID] {
		if turn.Sequence > sinceSeq {
			out = append(out, turn.Clone())
		}
	}
	return out, nil
}
