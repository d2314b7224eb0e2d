package core

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when a session's turn queue is at capacity. Callers
// are expected to retry after backoff; requests are never silently dropped.
var ErrBusy = errors.New("session busy: turn queue at capacity")

// ErrSessionNotFound indicates the session id does not reference a live session.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionFrozen indicates the session was frozen after detected state
// corruption and accepts no further turns until manual recovery.
var ErrSessionFrozen = errors.New("session frozen pending manual recovery")

// ErrResyncRequired is returned by the broadcast hub when a subscriber's
// last seen sequence has already been evicted from the replay buffer; the
// client must request a full state resync instead.
var ErrResyncRequired = errors.New("replay window exceeded: full resync required")

// ValidationError reports malformed input (empty action text, bad dice
// spec). It is surfaced immediately and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProviderTransientError wraps a retryable provider failure (timeout,
// 5xx-class response). Retried with bounded exponential backoff before the
// turn degrades.
type ProviderTransientError struct {
	Op  string
	Err error
}

func (e *ProviderTransientError) Error() string {
	return fmt.Sprintf("provider %s: transient: %v", e.Op, e.Err)
}

func (e *ProviderTransientError) Unwrap() error { return e.Err }

// ProviderFatalError wraps a non-retryable provider failure (auth, quota,
// unsupported capability). Surfaced immediately; the session runs degraded
// until a health check reports recovery.
type ProviderFatalError struct {
	Op  string
	Err error
}

func (e *ProviderFatalError) Error() string {
	return fmt.Sprintf("provider %s: fatal: %v", e.Op, e.Err)
}

func (e *ProviderFatalError) Unwrap() error { return e.Err }

// StateCorruptionError reports a broken session invariant (sequence gap or
// duplicate). Fatal for the affected session: it is frozen and flagged for
// manual recovery, never auto-repaired.
type StateCorruptionError struct {
	SessionID string
	Detail    string
}

func (e *StateCorruptionError) Error() string {
	return fmt.Sprintf("session %s state corrupt: %s", e.SessionID, e.Detail)
}

// IsTransient reports whether err should be retried against the provider.
func IsTransient(err error) bool {
	var te *ProviderTransientError
	return errors.As(err, &te)
}
