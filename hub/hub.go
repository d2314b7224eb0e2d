// Package hub fans out ordered turn deltas to every client subscribed to a
// session. Each session owns a bounded ring buffer of recent deltas so
// reconnecting clients can replay what they missed without a full resync.
package hub

import (
	"sync"

	"github.com/fateloom/fateloom/core"
	"github.com/fateloom/fateloom/logging"
)

// Options configures the broadcast hub.
type Options struct {
	// RingCapacity bounds the per-session replay buffer.
	RingCapacity int
	// SubscriberBuffer is the base per-client channel capacity.
	SubscriberBuffer int
	// MaxSendFailures is how many consecutive undeliverable pushes a client
	// may accumulate before it is dropped and must resubscribe.
	MaxSendFailures int
	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Hub owns the per-session replay buffers and subscriber sets. Sessions are
// fully independent; a slow client on one session never affects another.
type Hub struct {
	opts   Options
	logger *logging.GameLogger

	mu       sync.RWMutex
	sessions map[string]*sessionHub
}

type sessionHub struct {
	mu   sync.Mutex
	ring []*core.TurnResult
	subs map[string]*subscriber
}

type subscriber struct {
	id       string
	ch       chan *core.TurnResult
	failures int
}

// Subscription is one client's ordered delta stream. The channel is closed
// when the client is dropped, the session is torn down, or Close is called.
type Subscription struct {
	ID        string
	SessionID string
	C         <-chan *core.TurnResult

	hub *Hub
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() { s.hub.unsubscribe(s.SessionID, s.ID) }

// New constructs a hub.
func New(optFns ...func(o *Options)) *Hub {
	opts := Options{
		RingCapacity:     200,
		SubscriberBuffer: 16,
		MaxSendFailures:  3,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Hub{
		opts:     opts,
		logger:   logging.NewGameLogger(opts.Logger),
		sessions: make(map[string]*sessionHub),
	}
}

func (h *Hub) session(sessionID string) *sessionHub {
	h.mu.RLock()
	sh, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if ok {
		return sh
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if sh, ok = h.sessions[sessionID]; ok {
		return sh
	}
	sh = &sessionHub{subs: make(map[string]*subscriber)}
	h.sessions[sessionID] = sh
	return sh
}

// Subscribe attaches a client to a session's delta stream. current is the
// session's current sequence number from the persisted record; the ring
// alone cannot vouch for completeness since a process restart empties it.
// Buffered deltas with Sequence > lastSeen are replayed, in order, before
// any new publishes. If the ring cannot cover every delta in
// (lastSeen, current], whether evicted or lost to a restart, the client
// must request a full state resync instead; ErrResyncRequired is returned.
func (h *Hub) Subscribe(sessionID string, lastSeen, current uint64) (*Subscription, error) {
	sh := h.session(sessionID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	evicted := len(sh.ring) > 0 && sh.ring[0].Sequence > lastSeen+1
	lostToRestart := len(sh.ring) == 0 && lastSeen < current
	if evicted || lostToRestart {
		return nil, core.ErrResyncRequired
	}

	var replay []*core.TurnResult
	for _, delta := range sh.ring {
		if delta.Sequence > lastSeen {
			replay = append(replay, delta)
		}
	}

	sub := &subscriber{
		id: core.NewID(),
		ch: make(chan *core.TurnResult, len(replay)+h.opts.SubscriberBuffer),
	}
	for _, delta := range replay {
		sub.ch <- delta
	}
	sh.subs[sub.id] = sub

	h.logger.WithSession(sessionID).Debug("client subscribed",
		"subscriber_id", sub.id, "last_seen", lastSeen, "replayed", len(replay))

	return &Subscription{ID: sub.id, SessionID: sessionID, C: sub.ch, hub: h}, nil
}

// Publish appends the delta to the session's ring buffer and pushes it to
// every subscriber. A full client buffer counts as a failed send; after
// MaxSendFailures consecutive failures the client is dropped. Failures are
// isolated per client and never block delivery to others.
func (h *Hub) Publish(sessionID string, result *core.TurnResult) {
	sh := h.session(sessionID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.ring = append(sh.ring, result)
	if len(sh.ring) > h.opts.RingCapacity {
		sh.ring = sh.ring[len(sh.ring)-h.opts.RingCapacity:]
	}

	for id, sub := range sh.subs {
		select {
		case sub.ch <- result:
			sub.failures = 0
		default:
			sub.failures++
			if sub.failures >= h.opts.MaxSendFailures {
				delete(sh.subs, id)
				close(sub.ch)
				h.logger.WithSession(sessionID).Warn("subscriber dropped after consecutive send failures",
					"subscriber_id", id, "failures", sub.failures)
			}
		}
	}
}

// SubscriberCount returns how many clients are attached to a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	sh := h.session(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return len(sh.subs)
}

// DropSession closes every subscription and discards the replay buffer.
// Called on session teardown.
func (h *Hub) DropSession(sessionID string) {
	h.mu.Lock()
	sh, ok := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()
	if !ok {
		return
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	for id, sub := range sh.subs {
		delete(sh.subs, id)
		close(sub.ch)
	}
	sh.ring = nil
}

func (h *Hub) unsubscribe(sessionID, subID string) {
	sh := h.session(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sub, ok := sh.subs[subID]; ok {
		delete(sh.subs, subID)
		close(sub.ch)
	}
}
