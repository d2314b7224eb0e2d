package game

import (
	"context"
	"sync"

	"github.com/fateloom/fateloom/core"
)

// Gate is a session's single-writer admission lock with a bounded FIFO wait
// queue. It is the sole serialization point for a session: turn processing
// and out-of-turn state edits both pass through it. Waiters are admitted in
// arrival order; once the queue is full further acquirers fail fast with
// ErrBusy instead of blocking, and requests are never silently dropped.
type Gate struct {
	depth int

	mu      sync.Mutex
	held    bool
	closed  bool
	waiters []chan error
}

// NewGate creates a gate admitting one holder with up to depth waiters.
func NewGate(depth int) *Gate {
	return &Gate{depth: depth}
}

// Acquire blocks until the gate is granted, the context is cancelled, or
// the wait queue is full (ErrBusy). Admission is strictly FIFO.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return core.ErrSessionNotFound
	}
	if !g.held {
		g.held = true
		g.mu.Unlock()
		return nil
	}
	if len(g.waiters) >= g.depth {
		g.mu.Unlock()
		return core.ErrBusy
	}
	grant := make(chan error, 1)
	g.waiters = append(g.waiters, grant)
	g.mu.Unlock()

	select {
	case err := <-grant:
		return err
	case <-ctx.Done():
		g.mu.Lock()
		for i, w := range g.waiters {
			if w == grant {
				g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		g.mu.Unlock()
		// The grant raced with cancellation and was already dequeued; take
		// it and hand the slot straight back so no holder is orphaned.
		if err := <-grant; err == nil {
			g.Release()
		}
		return ctx.Err()
	}
}

// Release hands the gate to the oldest waiter, or frees it.
func (g *Gate) Release() {
	g.mu.Lock()
	if len(g.waiters) > 0 {
		next := g.waiters[0]
		g.waiters = g.waiters[1:]
		g.mu.Unlock()
		next <- nil
		return
	}
	g.held = false
	g.mu.Unlock()
}

// Close fails all waiters and future acquirers with ErrSessionNotFound.
// The current holder, if any, may still Release safely.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	waiters := g.waiters
	g.waiters = nil
	g.mu.Unlock()
	for _, w := range waiters {
		w <- core.ErrSessionNotFound
	}
}
