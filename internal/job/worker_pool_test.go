package job_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/currents-app/currents/internal/job"
	"github.com/currents-app/currents/internal/memstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPool(t *testing.T, queue job.Queue) *job.WorkerPool {
	t.Helper()
	pool := job.NewWorkerPool(queue, job.WorkerPoolConfig{
		WorkerCount:      2,
		PollInterval:     5 * time.Millisecond,
		RetryBackoffBase: time.Millisecond,
		RetryBackoffMax:  5 * time.Millisecond,
	}, testLogger())
	t.Cleanup(pool.Stop)
	return pool
}

func findJob(t *testing.T, queue *memstore.Queue, kind job.Kind) job.Job {
	t.Helper()
	for _, j := range queue.Snapshot() {
		if j.Kind == kind {
			return j
		}
	}
	t.Fatalf("no job of kind %s in queue", kind)
	return job.Job{}
}

func TestWorkerPoolProcessesJobs(t *testing.T) {
	queue := memstore.NewQueue(time.Minute)
	pool := testPool(t, queue)

	var handled atomic.Int32
	pool.Register(job.KindEmbed, func(ctx context.Context, j *job.Job) job.Result {
		handled.Add(1)
		return job.Done()
	})
	require.NoError(t, pool.Start())

	_, err := queue.Enqueue(context.Background(), job.Spec{Kind: job.KindEmbed, Payload: struct{}{}, MaxAttempts: 3})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return handled.Load() == 1 && findJob(t, queue, job.KindEmbed).Status == job.StatusDone
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWorkerPoolRetriesUntilDead(t *testing.T) {
	queue := memstore.NewQueue(time.Minute)
	pool := testPool(t, queue)

	var attempts atomic.Int32
	pool.Register(job.KindEmbed, func(ctx context.Context, j *job.Job) job.Result {
		attempts.Add(1)
		return job.RetryAfter(0, errors.New("remote flaked"))
	})
	require.NoError(t, pool.Start())

	_, err := queue.Enqueue(context.Background(), job.Spec{Kind: job.KindEmbed, Payload: struct{}{}, MaxAttempts: 3})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return findJob(t, queue, job.KindEmbed).Status == job.StatusDead
	}, 2*time.Second, 5*time.Millisecond)

	// One attempt per allowed try, then parked.
	assert.Equal(t, int32(3), attempts.Load())
}

func TestWorkerPoolDeferKeepsAttemptCount(t *testing.T) {
	queue := memstore.NewQueue(time.Minute)
	pool := testPool(t, queue)

	var calls atomic.Int32
	pool.Register(job.KindCrossReference, func(ctx context.Context, j *job.Job) job.Result {
		if calls.Add(1) < 3 {
			return job.DeferFor(time.Millisecond, nil)
		}
		return job.Done()
	})
	require.NoError(t, pool.Start())

	_, err := queue.Enqueue(context.Background(), job.Spec{Kind: job.KindCrossReference, Payload: struct{}{}, MaxAttempts: 2})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return findJob(t, queue, job.KindCrossReference).Status == job.StatusDone
	}, 2*time.Second, 5*time.Millisecond)

	// Two deferrals exceeded MaxAttempts, but deferrals carry no
	// attempt penalty so the job still completed.
	done := findJob(t, queue, job.KindCrossReference)
	assert.Equal(t, 0, done.Attempt)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWorkerPoolRecoversFromPanic(t *testing.T) {
	queue := memstore.NewQueue(time.Minute)
	pool := testPool(t, queue)

	var calls atomic.Int32
	pool.Register(job.KindNormalize, func(ctx context.Context, j *job.Job) job.Result {
		if calls.Add(1) == 1 {
			panic("handler bug")
		}
		return job.Done()
	})
	require.NoError(t, pool.Start())

	_, err := queue.Enqueue(context.Background(), job.Spec{Kind: job.KindNormalize, Payload: struct{}{}, MaxAttempts: 5})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return findJob(t, queue, job.KindNormalize).Status == job.StatusDone
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWorkerPoolDropsUnhandledKinds(t *testing.T) {
	queue := memstore.NewQueue(time.Minute)
	pool := testPool(t, queue)
	require.NoError(t, pool.Start())

	_, err := queue.Enqueue(context.Background(), job.Spec{Kind: job.Kind("orphan"), Payload: struct{}{}, MaxAttempts: 3})
	require.NoError(t, err)

	// No handler can ever run it; it must be acked, not retried forever.
	require.Eventually(t, func() bool {
		return findJob(t, queue, job.Kind("orphan")).Status == job.StatusDone
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWorkerPoolStartTwice(t *testing.T) {
	queue := memstore.NewQueue(time.Minute)
	pool := testPool(t, queue)

	require.NoError(t, pool.Start())
	assert.Error(t, pool.Start())
}

func TestBackoff(t *testing.T) {
	base := time.Second
	max := 8 * time.Second

	for attempt := 0; attempt < 10; attempt++ {
		d := job.Backoff(base, max, attempt)
		assert.GreaterOrEqual(t, d, base, "attempt %d", attempt)
		// Bound plus the 25% jitter allowance.
		assert.LessOrEqual(t, d, max+max/4, "attempt %d", attempt)
	}

	// Later attempts never shrink the pre-jitter delay below earlier ones.
	assert.GreaterOrEqual(t, job.Backoff(base, max, 3), base)
	assert.Equal(t, time.Duration(0), job.Backoff(0, max, 2))
}
