package stage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fateloom/fateloom/core"
)

// narrativeCache remembers the last successful narrative per session so the
// narrator can fall back to it instead of blocking the turn.
type narrativeCache struct {
	mu sync.RWMutex
	m  map[string]string
}

func newNarrativeCache() *narrativeCache {
	return &narrativeCache{m: make(map[string]string)}
}

func (c *narrativeCache) get(sessionID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.m[sessionID]
}

func (c *narrativeCache) set(sessionID, narrative string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[sessionID] = narrative
}

func (c *narrativeCache) drop(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, sessionID)
}

// Narrator produces the prose response conditioned on the referee's ruling
// and the assembled context window.
type Narrator struct {
	Provider core.Provider
	Retry    retryPolicy
	Cache    *narrativeCache
}

// Name implements Stage.
func (n *Narrator) Name() string { return "narrator" }

// Run implements Stage.
func (n *Narrator) Run(ctx context.Context, st *State) error {
	msgs := make([]core.Message, 0, len(st.Window)+1)
	msgs = append(msgs, core.Message{
		Role: "system",
		Content: "You are the narrator of a tabletop RPG session. Continue the story " +
			"in second person, honoring the referee's ruling. Keep it under four paragraphs.",
	})
	msgs = append(msgs, st.Window...)
	if st.Ruling != "" {
		msgs = append(msgs, core.Message{Role: "system", Content: "Referee ruling: " + st.Ruling})
	}

	out, attempts, err := n.Retry.do(ctx, func(ctx context.Context) (string, error) {
		return n.Provider.ChatComplete(ctx, msgs, core.Params{})
	})
	st.lastAttempts = attempts
	if err != nil {
		return fmt.Errorf("narrator: %w", err)
	}

	st.Narrative = strings.TrimSpace(out)
	n.Cache.set(st.Request.SessionID, st.Narrative)
	return nil
}
