// Package game owns the campaign, character and session entities and their
// lifecycle. The session registry lives here as an explicit store reachable
// only through the Manager's API; no component holds a raw reference into
// another session's state. Out-of-turn edits serialize through the same
// per-session admission gate the turn coordinator uses, so they can never
// race an in-flight turn's state deltas.
package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fateloom/fateloom/core"
	"github.com/fateloom/fateloom/dice"
	"github.com/fateloom/fateloom/logging"
)

// Options configures the session manager.
type Options struct {
	// Repository persists entities and the turn log.
	Repository core.Repository
	// QueueDepth is handed to every session's admission gate.
	QueueDepth int
	// HistoryTurns caps how many recent turns LoadSessionContext returns.
	HistoryTurns int
	// Logger defaults to NoOp.
	Logger logging.Logger
}

// SessionContext is everything the agent pipeline needs to run one turn.
type SessionContext struct {
	Session    *core.Session
	Campaign   *core.Campaign
	Characters []*core.Character
	History    []*core.TurnResult
	Roller     *dice.Roller
}

// Manager owns entity lifecycle and the live-session registry.
type Manager struct {
	repo         core.Repository
	queueDepth   int
	historyTurns int
	logger       *logging.GameLogger

	mu   sync.RWMutex
	live map[string]*LiveSession
}

// NewManager constructs a session manager over a repository.
func NewManager(repo core.Repository, optFns ...func(o *Options)) *Manager {
	opts := Options{
		Repository:   repo,
		QueueDepth:   2,
		HistoryTurns: 50,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{
		repo:         opts.Repository,
		queueDepth:   opts.QueueDepth,
		historyTurns: opts.HistoryTurns,
		logger:       logging.NewGameLogger(opts.Logger),
		live:         make(map[string]*LiveSession),
	}
}

// CreateCampaign validates and persists a new campaign.
func (m *Manager) CreateCampaign(ctx context.Context, c *core.Campaign) (*core.Campaign, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, &core.ValidationError{Field: "campaign name", Reason: "must not be empty"}
	}
	created := *c
	created.ID = core.NewID()
	created.Created = time.Now().UTC()
	if err := m.repo.SaveCampaign(ctx, &created); err != nil {
		return nil, fmt.Errorf("save campaign: %w", err)
	}
	return &created, nil
}

// GetCampaign loads a campaign by id.
func (m *Manager) GetCampaign(ctx context.Context, id string) (*core.Campaign, error) {
	return m.repo.LoadCampaign(ctx, id)
}

// UpdateCampaign is the only legal mutation path for campaign fields.
// Identity and creation time are preserved from the stored record.
func (m *Manager) UpdateCampaign(ctx context.Context, c *core.Campaign) error {
	existing, err := m.repo.LoadCampaign(ctx, c.ID)
	if err != nil {
		return err
	}
	updated := *c
	updated.OwnerID = existing.OwnerID
	updated.Created = existing.Created
	return m.repo.SaveCampaign(ctx, &updated)
}

// DeleteCampaign quiesces every live session referencing the campaign, then
// removes its remaining session records, its characters and the campaign
// itself. Dormant sessions, persisted but never resumed in this process,
// are listed from the repository so they cannot survive as orphans.
func (m *Manager) DeleteCampaign(ctx context.Context, id string) error {
	for _, ls := range m.sessionsFor(func(s *core.Session) bool { return s.CampaignID == id }) {
		m.teardown(ctx, ls)
	}
	sessions, err := m.repo.ListSessions(ctx, id)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if err := m.repo.DeleteSession(ctx, sess.ID); err != nil {
			return err
		}
	}
	chars, err := m.repo.ListCharacters(ctx, id)
	if err != nil {
		return err
	}
	for _, ch := range chars {
		if err := m.repo.DeleteCharacter(ctx, ch.ID); err != nil {
			return err
		}
	}
	return m.repo.DeleteCampaign(ctx, id)
}

// CreateCharacter validates and persists a new character in a campaign.
func (m *Manager) CreateCharacter(ctx context.Context, c *core.Character) (*core.Character, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, &core.ValidationError{Field: "character name", Reason: "must not be empty"}
	}
	if _, err := m.repo.LoadCampaign(ctx, c.CampaignID); err != nil {
		return nil, fmt.Errorf("character campaign: %w", err)
	}
	created := c.Clone()
	created.ID = core.NewID()
	created.Created = time.Now().UTC()
	if err := m.repo.SaveCharacter(ctx, created); err != nil {
		return nil, fmt.Errorf("save character: %w", err)
	}
	return created, nil
}

// GetCharacter loads a character by id.
func (m *Manager) GetCharacter(ctx context.Context, id string) (*core.Character, error) {
	return m.repo.LoadCharacter(ctx, id)
}

// UpdateCharacter mutates a character outside an active turn, for example a
// manual HP edit. The owning campaign is immutable. If the character sits
// in a live session the update serializes through that session's admission
// gate so it cannot race an in-flight turn; only one session's gate is held
// at a time.
func (m *Manager) UpdateCharacter(ctx context.Context, c *core.Character) error {
	existing, err := m.repo.LoadCharacter(ctx, c.ID)
	if err != nil {
		return err
	}
	if c.CampaignID != "" && c.CampaignID != existing.CampaignID {
		return &core.ValidationError{Field: "campaign_id", Reason: "a character's campaign never changes"}
	}

	for _, ls := range m.sessionsWithCharacter(c.ID) {
		if err := ls.gate.Acquire(ctx); err != nil {
			return fmt.Errorf("serialize character update: %w", err)
		}
		ls.gate.Release()
	}

	updated := c.Clone()
	updated.CampaignID = existing.CampaignID
	updated.Created = existing.Created
	return m.repo.SaveCharacter(ctx, updated)
}

// DeleteCharacter cancels any in-flight turn on sessions referencing the
// character, detaches it from their participant sets, then deletes it.
func (m *Manager) DeleteCharacter(ctx context.Context, id string) error {
	for _, ls := range m.sessionsWithCharacter(id) {
		ls.cancelInFlight()
		ls.mu.Lock()
		ids := ls.record.CharacterIDs[:0]
		for _, cid := range ls.record.CharacterIDs {
			if cid != id {
				ids = append(ids, cid)
			}
		}
		ls.record.CharacterIDs = ids
		record := ls.record.Clone()
		ls.mu.Unlock()
		if err := m.repo.SaveSession(ctx, record); err != nil {
			return err
		}
	}
	return m.repo.DeleteCharacter(ctx, id)
}

// CreateSession starts a live session for a campaign with the given
// participants. The randomness seed is fixed here and persisted; it is
// never re-derived.
func (m *Manager) CreateSession(ctx context.Context, campaignID string, characterIDs []string) (*core.Session, error) {
	if _, err := m.repo.LoadCampaign(ctx, campaignID); err != nil {
		return nil, fmt.Errorf("session campaign: %w", err)
	}
	for _, cid := range characterIDs {
		ch, err := m.repo.LoadCharacter(ctx, cid)
		if err != nil {
			return nil, fmt.Errorf("session participant: %w", err)
		}
		if ch.CampaignID != campaignID {
			return nil, &core.ValidationError{Field: "character_ids", Reason: fmt.Sprintf("character %s belongs to another campaign", cid)}
		}
	}

	seed, err := dice.NewSeed()
	if err != nil {
		return nil, err
	}
	record := &core.Session{
		ID:           core.NewID(),
		CampaignID:   campaignID,
		CharacterIDs: append([]string(nil), characterIDs...),
		Seed:         seed,
		Created:      time.Now().UTC(),
	}
	if err := m.repo.SaveSession(ctx, record); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	ls := newLiveSession(record, m.queueDepth)
	m.mu.Lock()
	m.live[record.ID] = ls
	m.mu.Unlock()

	m.logger.WithSession(record.ID).Info("session created", "campaign_id", campaignID, "participants", len(characterIDs))
	return record.Clone(), nil
}

// Live returns the runtime state for a session, lazily resuming it from the
// repository after a process restart. Roll position resumes from the
// persisted (seed, roll index), keeping the dice stream aligned.
func (m *Manager) Live(ctx context.Context, sessionID string) (*LiveSession, error) {
	m.mu.RLock()
	ls, ok := m.live[sessionID]
	m.mu.RUnlock()
	if ok {
		return ls, nil
	}

	record, err := m.repo.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ls, ok = m.live[sessionID]; ok {
		return ls, nil
	}
	ls = newLiveSession(record, m.queueDepth)
	ls.frozen = record.Frozen
	m.live[sessionID] = ls
	return ls, nil
}

// DeleteSession tears a session down: its in-flight turn is cancelled, gate
// waiters are failed, and the record plus turn log are removed.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	ls, ok := m.live[sessionID]
	delete(m.live, sessionID)
	m.mu.Unlock()
	if ok {
		ls.cancelInFlight()
		ls.gate.Close()
	}
	return m.repo.DeleteSession(ctx, sessionID)
}

// LoadSessionContext assembles everything the agent pipeline needs for one
// turn: the campaign, participant sheets and recent history.
func (m *Manager) LoadSessionContext(ctx context.Context, sessionID string) (*SessionContext, error) {
	ls, err := m.Live(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	record := ls.Snapshot()

	campaign, err := m.repo.LoadCampaign(ctx, record.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("session context campaign: %w", err)
	}

	characters := make([]*core.Character, 0, len(record.CharacterIDs))
	for _, cid := range record.CharacterIDs {
		ch, err := m.repo.LoadCharacter(ctx, cid)
		if err != nil {
			return nil, fmt.Errorf("session context character: %w", err)
		}
		characters = append(characters, ch)
	}

	var sinceSeq uint64
	if record.Sequence > uint64(m.historyTurns) {
		sinceSeq = record.Sequence - uint64(m.historyTurns)
	}
	history, err := m.repo.LoadHistory(ctx, sessionID, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("session context history: %w", err)
	}

	return &SessionContext{
		Session:    record,
		Campaign:   campaign,
		Characters: characters,
		History:    history,
		Roller:     ls.Roller(),
	}, nil
}

// CommitTurn stamps the next sequence number on a finished turn, appends it
// to the session log and persists the advanced randomness state. A sequence
// violation freezes the session and surfaces StateCorruptionError; it is
// never silently repaired.
func (m *Manager) CommitTurn(ctx context.Context, ls *LiveSession, result *core.TurnResult) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.frozen {
		return core.ErrSessionFrozen
	}

	result.Sequence = ls.record.Sequence + 1
	if err := m.repo.AppendTurn(ctx, ls.id, result); err != nil {
		var corrupt *core.StateCorruptionError
		if errors.As(err, &corrupt) {
			ls.frozen = true
			ls.record.Frozen = true
			if saveErr := m.repo.SaveSession(ctx, ls.record.Clone()); saveErr != nil {
				m.logger.WithSession(ls.id).Error("persist frozen flag", "error", saveErr)
			}
			m.logger.WithSession(ls.id).Error("session frozen for manual recovery", "detail", corrupt.Detail)
		}
		return err
	}

	ls.record.Sequence = result.Sequence
	ls.record.RollIndex = ls.roller.NextIndex()
	if err := m.repo.SaveSession(ctx, ls.record.Clone()); err != nil {
		return fmt.Errorf("persist session state: %w", err)
	}

	ls.rememberResultLocked(result.SubmissionToken, result)
	return nil
}

// SessionIDsForCampaign lists live sessions attached to a campaign, oldest
// id first. Used by callers that must clean up per-session side state before
// a campaign-wide teardown.
func (m *Manager) SessionIDsForCampaign(campaignID string) []string {
	sessions := m.sessionsFor(func(s *core.Session) bool { return s.CampaignID == campaignID })
	ids := make([]string, 0, len(sessions))
	for _, ls := range sessions {
		ids = append(ids, ls.id)
	}
	return ids
}

func (m *Manager) sessionsFor(match func(*core.Session) bool) []*LiveSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*LiveSession
	for _, ls := range m.live {
		record := ls.Snapshot()
		if match(record) {
			out = append(out, ls)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (m *Manager) sessionsWithCharacter(characterID string) []*LiveSession {
	return m.sessionsFor(func(s *core.Session) bool {
		for _, cid := range s.CharacterIDs {
			if cid == characterID {
				return true
			}
		}
		return false
	})
}

func (m *Manager) teardown(ctx context.Context, ls *LiveSession) {
	ls.cancelInFlight()
	ls.gate.Close()
	m.mu.Lock()
	delete(m.live, ls.id)
	m.mu.Unlock()
	if err := m.repo.DeleteSession(ctx, ls.id); err != nil {
		m.logger.WithSession(ls.id).Error("delete session record", "error", err)
	}
}
