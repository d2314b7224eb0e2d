package model

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/fateloom/fateloom/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	base := fmt.Errorf("boom")

	tests := []struct {
		name      string
		status    int
		err       error
		transient bool
	}{
		{"timeout", 0, context.DeadlineExceeded, true},
		{"rate limited", http.StatusTooManyRequests, base, true},
		{"server error", http.StatusInternalServerError, base, true},
		{"bad gateway", http.StatusBadGateway, base, true},
		{"auth", http.StatusUnauthorized, base, false},
		{"validation", http.StatusBadRequest, base, false},
		{"unknown", 0, base, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("chat", tt.status, tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.transient, core.IsTransient(err))
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	assert.NoError(t, Classify("chat", 0, nil))
}

func TestHealth_FatalMarksDown(t *testing.T) {
	var h Health
	assert.True(t, h.Available())

	h.Observe(&core.ProviderFatalError{Op: "chat", Err: fmt.Errorf("quota")})
	assert.False(t, h.Available())

	// Transient errors do not flip the flag either way.
	h.Observe(&core.ProviderTransientError{Op: "chat", Err: fmt.Errorf("timeout")})
	assert.False(t, h.Available())

	h.Observe(nil)
	assert.True(t, h.Available())
}

func TestMockProvider_CannedResponse(t *testing.T) {
	p := NewMockProvider()
	p.AddResponse("I search the room", "You find a dusty ledger.")

	out, err := p.ChatComplete(context.Background(), []core.Message{
		{Role: "system", Content: "You are the narrator."},
		{Role: "user", Content: "I search the room"},
	}, core.Params{})
	require.NoError(t, err)
	assert.Equal(t, "You find a dusty ledger.", out)
	assert.Equal(t, int64(1), p.ChatCalls.Load())
}

func TestMockProvider_FailChat(t *testing.T) {
	p := NewMockProvider()
	p.FailChatWith(&core.ProviderFatalError{Op: "chat", Err: fmt.Errorf("auth")})

	_, err := p.ChatComplete(context.Background(), []core.Message{{Role: "user", Content: "hi"}}, core.Params{})
	require.Error(t, err)
	assert.False(t, p.Available())
}
