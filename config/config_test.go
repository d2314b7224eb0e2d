package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 2, cfg.TurnQueueDepth)
	assert.Equal(t, 200, cfg.RingCapacity)
	assert.Equal(t, 3, cfg.MaxSendFailures)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnv_Override(t *testing.T) {
	t.Setenv("FATELOOM_TURN_QUEUE_DEPTH", "5")
	t.Setenv("FATELOOM_RETRY_BASE_INTERVAL", "1s")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.TurnQueueDepth)
	assert.Equal(t, "1s", cfg.RetryBaseInterval.String())
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Setenv("FATELOOM_RING_CAPACITY", "0")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ring capacity")
}

func TestValidate_NegativeQueueDepth(t *testing.T) {
	cfg := Default()
	cfg.TurnQueueDepth = -1

	assert.Error(t, cfg.Validate())
}
