package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fateloom/fateloom/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForWaiters(t *testing.T, g *Gate, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		g.mu.Lock()
		queued := len(g.waiters)
		g.mu.Unlock()
		if queued == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("never reached %d waiters", n)
}

func TestGate_AcquireRelease(t *testing.T) {
	g := NewGate(2)
	require.NoError(t, g.Acquire(context.Background()))
	g.Release()
	require.NoError(t, g.Acquire(context.Background()))
	g.Release()
}

func TestGate_FIFOAdmission(t *testing.T) {
	g := NewGate(3)
	require.NoError(t, g.Acquire(context.Background()))

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, g.Acquire(context.Background()))
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			g.Release()
		}(i)
		// Enqueue one waiter at a time so arrival order is fixed.
		waitForWaiters(t, g, i)
	}

	g.Release()
	wg.Wait()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestGate_BusyWhenQueueFull(t *testing.T) {
	g := NewGate(1)
	require.NoError(t, g.Acquire(context.Background()))

	go func() { _ = g.Acquire(context.Background()) }()
	waitForWaiters(t, g, 1)

	err := g.Acquire(context.Background())
	assert.ErrorIs(t, err, core.ErrBusy)

	g.Release()
}

func TestGate_ZeroDepthRejectsAllWaiters(t *testing.T) {
	g := NewGate(0)
	require.NoError(t, g.Acquire(context.Background()))
	assert.ErrorIs(t, g.Acquire(context.Background()), core.ErrBusy)
	g.Release()
	require.NoError(t, g.Acquire(context.Background()))
}

func TestGate_CancelledWaiterLeavesQueue(t *testing.T) {
	g := NewGate(2)
	require.NoError(t, g.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- g.Acquire(ctx) }()
	waitForWaiters(t, g, 1)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter never returned")
	}

	// The slot freed up; a fresh waiter is admitted after release.
	acquired := make(chan struct{})
	go func() {
		assert.NoError(t, g.Acquire(context.Background()))
		close(acquired)
	}()
	waitForWaiters(t, g, 1)
	g.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never admitted after release")
	}
	g.Release()
}

func TestGate_CloseFailsWaitersAndFutureAcquirers(t *testing.T) {
	g := NewGate(2)
	require.NoError(t, g.Acquire(context.Background()))

	errCh := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errCh <- g.Acquire(context.Background()) }()
	}
	waitForWaiters(t, g, 2)

	g.Close()
	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, core.ErrSessionNotFound)
		case <-time.After(time.Second):
			t.Fatal("waiter never failed after close")
		}
	}

	assert.ErrorIs(t, g.Acquire(context.Background()), core.ErrSessionNotFound)

	// The holder at close time may still release without incident.
	g.Release()
}
