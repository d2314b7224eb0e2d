// Package config loads engine tunables from environment variables. Values
// the source rules leave open (queue depth, replay capacity, backoff bounds)
// are deliberately configuration, not constants.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries every tunable of the session engine. Zero values are never
// used directly; construct via Default or FromEnv.
type Config struct {
	// TurnQueueDepth is the number of turns that may wait behind the one in
	// flight before submissions are rejected with ErrBusy.
	TurnQueueDepth int `env:"FATELOOM_TURN_QUEUE_DEPTH" envDefault:"2"`

	// RingCapacity bounds the per-session replay buffer in the broadcast hub.
	RingCapacity int `env:"FATELOOM_RING_CAPACITY" envDefault:"200"`

	// SubscriberBuffer is the per-client delivery channel size.
	SubscriberBuffer int `env:"FATELOOM_SUBSCRIBER_BUFFER" envDefault:"16"`

	// MaxSendFailures is how many consecutive failed sends a client may
	// accumulate before the hub drops it.
	MaxSendFailures int `env:"FATELOOM_MAX_SEND_FAILURES" envDefault:"3"`

	// MaxRetries bounds provider call retries for transient errors.
	MaxRetries int `env:"FATELOOM_MAX_RETRIES" envDefault:"3"`

	// RetryBaseInterval is the initial exponential backoff interval.
	RetryBaseInterval time.Duration `env:"FATELOOM_RETRY_BASE_INTERVAL" envDefault:"250ms"`

	// RetryMaxInterval caps the exponential backoff interval.
	RetryMaxInterval time.Duration `env:"FATELOOM_RETRY_MAX_INTERVAL" envDefault:"4s"`

	// StageTimeout bounds each pipeline stage independently.
	StageTimeout time.Duration `env:"FATELOOM_STAGE_TIMEOUT" envDefault:"30s"`

	// SceneArtTimeout bounds the opportunistic scene-art cue. The cue never
	// degrades a turn; on expiry it is simply abandoned.
	SceneArtTimeout time.Duration `env:"FATELOOM_SCENE_ART_TIMEOUT" envDefault:"10s"`

	// HistoryBudget is the approximate token budget for the assembled
	// context window; oldest turns are evicted first beyond it.
	HistoryBudget int `env:"FATELOOM_HISTORY_BUDGET" envDefault:"4000"`

	// HistoryTurns caps how many recent turns are fetched for assembly.
	HistoryTurns int `env:"FATELOOM_HISTORY_TURNS" envDefault:"50"`
}

// Default returns the baseline configuration without consulting the
// environment.
func Default() Config {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: map[string]string{}})
	if err != nil {
		// Only reachable if a struct tag is malformed.
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// FromEnv loads configuration from the process environment, falling back to
// defaults for unset variables.
func FromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that would break engine invariants.
func (c Config) Validate() error {
	if c.TurnQueueDepth < 0 {
		return fmt.Errorf("turn queue depth must be >= 0, got %d", c.TurnQueueDepth)
	}
	if c.RingCapacity <= 0 {
		return fmt.Errorf("ring capacity must be > 0, got %d", c.RingCapacity)
	}
	if c.MaxSendFailures <= 0 {
		return fmt.Errorf("max send failures must be > 0, got %d", c.MaxSendFailures)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.StageTimeout <= 0 {
		return fmt.Errorf("stage timeout must be > 0, got %s", c.StageTimeout)
	}
	return nil
}
