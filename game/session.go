package game

import (
	"context"
	"sync"

	"github.com/fateloom/fateloom/core"
	"github.com/fateloom/fateloom/dice"
)

// tokenCacheLimit bounds the per-session idempotency cache.
const tokenCacheLimit = 128

// LiveSession is the in-process runtime state of one session: its admission
// gate, deterministic dice roller, persisted record snapshot and the
// idempotency cache for resubmitted turns. All cross-goroutine access is
// funneled through its methods.
type LiveSession struct {
	id     string
	gate   *Gate
	roller *dice.Roller

	mu       sync.Mutex
	record   *core.Session
	frozen   bool
	inFlight context.CancelFunc
	results  map[string]*core.TurnResult
	order    []string
}

func newLiveSession(record *core.Session, queueDepth int) *LiveSession {
	return &LiveSession{
		id:      record.ID,
		gate:    NewGate(queueDepth),
		roller:  dice.NewRoller(record.Seed, record.RollIndex),
		record:  record.Clone(),
		results: make(map[string]*core.TurnResult),
	}
}

// ID returns the session id.
func (ls *LiveSession) ID() string { return ls.id }

// Gate returns the session's admission gate.
func (ls *LiveSession) Gate() *Gate { return ls.gate }

// Roller returns the session's deterministic dice roller.
func (ls *LiveSession) Roller() *dice.Roller { return ls.roller }

// Snapshot returns a copy of the persisted session record.
func (ls *LiveSession) Snapshot() *core.Session {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.record.Clone()
}

// Frozen reports whether the session was frozen after state corruption.
func (ls *LiveSession) Frozen() bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.frozen
}

// BeginTurn derives the cancellable context for one turn body and registers
// its cancel func so session teardown can abort the turn mid-flight.
func (ls *LiveSession) BeginTurn(ctx context.Context) (context.Context, context.CancelFunc) {
	turnCtx, cancel := context.WithCancel(ctx)
	ls.mu.Lock()
	ls.inFlight = cancel
	ls.mu.Unlock()
	return turnCtx, func() {
		cancel()
		ls.mu.Lock()
		if ls.inFlight != nil {
			ls.inFlight = nil
		}
		ls.mu.Unlock()
	}
}

// cancelInFlight aborts the currently processing turn, if any.
func (ls *LiveSession) cancelInFlight() {
	ls.mu.Lock()
	cancel := ls.inFlight
	ls.inFlight = nil
	ls.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// CachedResult returns the recorded result for a submission token, enabling
// idempotent resubmission after client-side network failures.
func (ls *LiveSession) CachedResult(token string) (*core.TurnResult, bool) {
	if token == "" {
		return nil, false
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	res, ok := ls.results[token]
	if !ok {
		return nil, false
	}
	return res.Clone(), true
}

// rememberResultLocked records a token's result; callers hold ls.mu.
func (ls *LiveSession) rememberResultLocked(token string, res *core.TurnResult) {
	if token == "" {
		return
	}
	if _, exists := ls.results[token]; !exists {
		ls.order = append(ls.order, token)
		if len(ls.order) > tokenCacheLimit {
			delete(ls.results, ls.order[0])
			ls.order = ls.order[1:]
		}
	}
	ls.results[token] = res.Clone()
}
