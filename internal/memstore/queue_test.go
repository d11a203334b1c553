package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/currents-app/currents/internal/job"
)

func enqueue(t *testing.T, q *Queue, spec job.Spec) uuid.UUID {
	t.Helper()
	if spec.Payload == nil {
		spec.Payload = struct{}{}
	}
	if spec.MaxAttempts == 0 {
		spec.MaxAttempts = 3
	}
	id, err := q.Enqueue(context.Background(), spec)
	require.NoError(t, err)
	return id
}

func TestQueueEnqueueDequeue(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(time.Minute)

	id := enqueue(t, q, job.Spec{Kind: job.KindNormalize})

	j, err := q.Dequeue(ctx, "worker-0")
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, id, j.ID)
	assert.Equal(t, job.StatusRunning, j.Status)

	// Nothing else is eligible.
	j, err = q.Dequeue(ctx, "worker-1")
	require.NoError(t, err)
	assert.Nil(t, j)
}

func TestQueuePriorityOrdering(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(time.Minute)

	background := enqueue(t, q, job.Spec{Kind: job.KindSourcePoll, Priority: job.PriorityBackground})
	immediate := enqueue(t, q, job.Spec{Kind: job.KindNormalize, Priority: job.PriorityImmediate})
	normal := enqueue(t, q, job.Spec{Kind: job.KindEmbed, Priority: job.PriorityDefault})

	var order []uuid.UUID
	for i := 0; i < 3; i++ {
		j, err := q.Dequeue(ctx, "worker-0")
		require.NoError(t, err)
		require.NotNil(t, j)
		order = append(order, j.ID)
	}
	assert.Equal(t, []uuid.UUID{immediate, normal, background}, order)
}

func TestQueueDelayGatesEligibility(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(time.Minute)

	enqueue(t, q, job.Spec{Kind: job.KindEmbed, Delay: time.Hour})

	j, err := q.Dequeue(ctx, "worker-0")
	require.NoError(t, err)
	assert.Nil(t, j, "delayed job must not be delivered early")
}

func TestQueueDedupeKey(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(time.Minute)
	key := "normalize:" + uuid.NewString()

	first := enqueue(t, q, job.Spec{Key: key, Kind: job.KindNormalize, Priority: job.PriorityDefault})

	t.Run("pending job is refreshed in place", func(t *testing.T) {
		second := enqueue(t, q, job.Spec{Key: key, Kind: job.KindNormalize, Priority: job.PriorityImmediate})
		assert.Equal(t, first, second)
		assert.Len(t, q.Snapshot(), 1)

		j, err := q.Dequeue(ctx, "worker-0")
		require.NoError(t, err)
		require.NotNil(t, j)
		assert.Equal(t, job.PriorityImmediate, j.Priority, "refresh must adopt the new spec")
	})

	t.Run("running job is never replaced", func(t *testing.T) {
		third := enqueue(t, q, job.Spec{Key: key, Kind: job.KindNormalize})
		assert.NotEqual(t, first, third)
		assert.Len(t, q.Snapshot(), 2)
	})

	t.Run("keyless jobs never collide", func(t *testing.T) {
		a := enqueue(t, q, job.Spec{Kind: job.KindEmbed})
		b := enqueue(t, q, job.Spec{Kind: job.KindEmbed})
		assert.NotEqual(t, a, b)
	})
}

func TestQueueRetrySemantics(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(time.Minute)

	enqueue(t, q, job.Spec{Kind: job.KindEmbed, MaxAttempts: 2})

	j, err := q.Dequeue(ctx, "worker-0")
	require.NoError(t, err)
	require.NotNil(t, j)

	require.NoError(t, q.Retry(ctx, j.ID, 0))
	j, err = q.Dequeue(ctx, "worker-0")
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, 1, j.Attempt)

	// Second failure exhausts MaxAttempts and parks the job.
	require.NoError(t, q.Retry(ctx, j.ID, 0))
	parked := q.Snapshot()[0]
	assert.Equal(t, job.StatusDead, parked.Status)

	j, err = q.Dequeue(ctx, "worker-0")
	require.NoError(t, err)
	assert.Nil(t, j, "dead jobs are not redelivered")
}

func TestQueueDeferSemantics(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(time.Minute)

	enqueue(t, q, job.Spec{Kind: job.KindEmbed, MaxAttempts: 1})

	j, err := q.Dequeue(ctx, "worker-0")
	require.NoError(t, err)
	require.NotNil(t, j)

	// A deferral on a single-attempt job must not kill it.
	require.NoError(t, q.Defer(ctx, j.ID, 0))

	j, err = q.Dequeue(ctx, "worker-0")
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, 0, j.Attempt)
}

func TestQueueVisibilityRedelivery(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(20 * time.Millisecond)

	id := enqueue(t, q, job.Spec{Kind: job.KindNormalize})

	j, err := q.Dequeue(ctx, "worker-0")
	require.NoError(t, err)
	require.NotNil(t, j)

	// Unacked within the window: invisible.
	j, err = q.Dequeue(ctx, "worker-1")
	require.NoError(t, err)
	assert.Nil(t, j)

	// Window lapses without an ack: the job is delivered again.
	require.Eventually(t, func() bool {
		j, err := q.Dequeue(ctx, "worker-1")
		return err == nil && j != nil && j.ID == id
	}, time.Second, 5*time.Millisecond)
}

func TestQueueAck(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(10 * time.Millisecond)

	enqueue(t, q, job.Spec{Kind: job.KindNormalize})

	j, err := q.Dequeue(ctx, "worker-0")
	require.NoError(t, err)
	require.NotNil(t, j)
	require.NoError(t, q.Ack(ctx, j.ID))

	// An acked job never reappears, even past the visibility window.
	time.Sleep(30 * time.Millisecond)
	j, err = q.Dequeue(ctx, "worker-0")
	require.NoError(t, err)
	assert.Nil(t, j)
}

func TestQueueClosed(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(time.Minute)
	q.Close()

	_, err := q.Enqueue(ctx, job.Spec{Kind: job.KindNormalize, Payload: struct{}{}, MaxAttempts: 1})
	assert.ErrorIs(t, err, job.ErrQueueClosed)

	_, err = q.Dequeue(ctx, "worker-0")
	assert.ErrorIs(t, err, job.ErrQueueClosed)
}

func TestQueueRejectsInvalidSpec(t *testing.T) {
	q := NewQueue(time.Minute)

	_, err := q.Enqueue(context.Background(), job.Spec{Payload: struct{}{}})
	assert.ErrorIs(t, err, job.ErrInvalidSpec)
}
