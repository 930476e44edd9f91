package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkerRunsCallbackRepeatedly(t *testing.T) {
	var count atomic.Int64
	w := New(Config{
		Name: "test",
		Callback: func(ctx context.Context) {
			count.Add(1)
			Sleep(ctx, time.Millisecond)
		},
	})

	require.NoError(t, w.Start())
	require.True(t, w.IsStarted())

	require.Eventually(t, func() bool {
		return count.Load() >= 3
	}, time.Second, time.Millisecond)

	w.Stop()
	require.False(t, w.IsStarted())
}

func TestWorkerStartTwice(t *testing.T) {
	w := New(Config{
		Callback: func(ctx context.Context) {
			Sleep(ctx, time.Millisecond)
		},
	})

	require.NoError(t, w.Start())
	defer w.Stop()

	require.ErrorIs(t, w.Start(), ErrAlreadyStarted)
}

func TestWorkerWithoutCallback(t *testing.T) {
	w := New(Config{Name: "empty"})

	require.ErrorIs(t, w.Start(), ErrNoCallback)
	require.False(t, w.IsStarted())

	// Stopping a worker that never started must not block.
	w.Stop()
}

func TestStopIsPromptDuringSleep(t *testing.T) {
	w := New(Config{
		Callback: func(ctx context.Context) {
			Sleep(ctx, time.Minute)
		},
	})
	require.NoError(t, w.Start())

	// Give the callback time to enter the long sleep.
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	w.Stop()
	require.Less(t, time.Since(start), time.Second, "Stop must not wait out the sleep")
}

func TestStopIdempotent(t *testing.T) {
	w := New(Config{
		Callback: func(ctx context.Context) {
			Sleep(ctx, time.Millisecond)
		},
	})
	require.NoError(t, w.Start())

	w.Stop()
	w.Stop()
	require.False(t, w.IsStarted())
}
