package job

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors returned by Queue implementations.
var (
	ErrQueueClosed = errors.New("job queue is closed")
	ErrInvalidSpec = errors.New("invalid job spec")
)

// Queue is the contract required of the underlying durable job queue.
// Delivery is at-least-once: a dequeued job that is not acked within the
// visibility window is automatically made available again, so every
// handler must be safe to run twice for the same logical unit of work.
type Queue interface {
	// Enqueue adds a job to the queue. When spec.Key matches a pending
	// job, that job is refreshed in place and its ID returned; a job
	// already executing is never replaced.
	Enqueue(ctx context.Context, spec Spec) (uuid.UUID, error)

	// Dequeue claims the highest-priority eligible job for the given
	// worker, starting its visibility window. Returns (nil, nil) when
	// no job is eligible.
	Dequeue(ctx context.Context, workerID string) (*Job, error)

	// Ack marks a claimed job as done.
	Ack(ctx context.Context, id uuid.UUID) error

	// Retry returns a claimed job to the queue after a failed attempt,
	// incrementing its attempt count. Implementations park the job as
	// dead once attempts are exhausted.
	Retry(ctx context.Context, id uuid.UUID, delay time.Duration) error

	// Defer returns a claimed job to the queue without an attempt
	// penalty. Used for deferrals that are not failures: lock busy,
	// rate-limit slot timeout.
	Defer(ctx context.Context, id uuid.UUID, delay time.Duration) error
}
