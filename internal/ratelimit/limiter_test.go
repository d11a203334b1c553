package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForSlotSpacing(t *testing.T) {
	ctx := context.Background()
	l := New()
	minInterval := 30 * time.Millisecond

	require.NoError(t, l.WaitForSlot(ctx, "example.com", minInterval, time.Second))

	start := time.Now()
	require.NoError(t, l.WaitForSlot(ctx, "example.com", minInterval, time.Second))
	assert.GreaterOrEqual(t, time.Since(start), minInterval,
		"second slot for the same host must wait out the interval")
}

func TestWaitForSlotIndependentHosts(t *testing.T) {
	ctx := context.Background()
	l := New()

	require.NoError(t, l.WaitForSlot(ctx, "a.example.com", time.Second, time.Second))

	// A different host has its own interval and grants immediately.
	start := time.Now()
	require.NoError(t, l.WaitForSlot(ctx, "b.example.com", time.Second, time.Second))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitForSlotTimeout(t *testing.T) {
	ctx := context.Background()
	l := New()

	require.NoError(t, l.WaitForSlot(ctx, "example.com", time.Minute, time.Minute))

	err := l.WaitForSlot(ctx, "example.com", time.Minute, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrSlotTimeout)
}

func TestWaitForSlotContextCancel(t *testing.T) {
	l := New()
	require.NoError(t, l.WaitForSlot(context.Background(), "example.com", time.Minute, time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := l.WaitForSlot(ctx, "example.com", time.Minute, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForSlotContention(t *testing.T) {
	ctx := context.Background()
	l := New()
	minInterval := 5 * time.Millisecond

	const workers = 8
	grants := make([]time.Time, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := l.WaitForSlot(ctx, "example.com", minInterval, time.Second); err == nil {
				grants[n] = time.Now()
			}
		}(i)
	}
	wg.Wait()

	// Every worker got a slot, and no two grants landed inside the
	// same interval.
	times := make([]time.Time, 0, workers)
	for _, grant := range grants {
		require.False(t, grant.IsZero())
		times = append(times, grant)
	}
	for i := range times {
		for j := range times {
			if i == j {
				continue
			}
			gap := times[i].Sub(times[j])
			if gap < 0 {
				gap = -gap
			}
			assert.GreaterOrEqual(t, gap, minInterval/2,
				"grants %d and %d are too close together", i, j)
		}
	}
}
