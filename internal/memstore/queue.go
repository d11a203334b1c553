package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/currents-app/currents/internal/job"
)

// Queue is an in-memory job.Queue with the same delivery semantics as
// the Postgres queue: priority-then-eligibility ordering, dedupe-key
// refresh of pending jobs, and visibility-window redelivery of claimed
// jobs that were never acked.
type Queue struct {
	mu         sync.Mutex
	jobs       map[uuid.UUID]*queuedJob
	visibility time.Duration
	closed     bool
}

type queuedJob struct {
	job      job.Job
	claimed  time.Time
	workerID string
}

var _ job.Queue = (*Queue)(nil)

// NewQueue creates an in-memory queue whose claimed jobs become
// redeliverable after the given visibility window.
func NewQueue(visibility time.Duration) *Queue {
	return &Queue{
		jobs:       make(map[uuid.UUID]*queuedJob),
		visibility: visibility,
	}
}

// Enqueue adds a job, or refreshes the pending job with the same dedupe
// key. Running jobs are never replaced.
func (q *Queue) Enqueue(_ context.Context, spec job.Spec) (uuid.UUID, error) {
	if spec.Kind == "" {
		return uuid.Nil, fmt.Errorf("%w: missing kind", job.ErrInvalidSpec)
	}
	payload, err := marshalPayload(spec.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", job.ErrInvalidSpec, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return uuid.Nil, job.ErrQueueClosed
	}

	now := time.Now().UTC()
	notBefore := now.Add(spec.Delay)

	if spec.Key != "" {
		for _, queued := range q.jobs {
			if queued.job.Key == spec.Key && queued.job.Status == job.StatusPending {
				queued.job.Payload = payload
				queued.job.Priority = spec.Priority
				queued.job.NotBefore = notBefore
				queued.job.MaxAttempts = spec.MaxAttempts
				queued.job.UpdatedAt = now
				return queued.job.ID, nil
			}
		}
	}

	id := uuid.New()
	q.jobs[id] = &queuedJob{
		job: job.Job{
			ID:          id,
			Key:         spec.Key,
			Kind:        spec.Kind,
			Payload:     payload,
			Priority:    spec.Priority,
			NotBefore:   notBefore,
			MaxAttempts: spec.MaxAttempts,
			Status:      job.StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
	return id, nil
}

// Dequeue claims the best eligible job: lowest priority value first,
// then earliest eligibility. Running jobs whose visibility window has
// lapsed are eligible again.
func (q *Queue) Dequeue(_ context.Context, workerID string) (*job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, job.ErrQueueClosed
	}

	now := time.Now().UTC()
	var best *queuedJob
	for _, queued := range q.jobs {
		if !q.eligible(queued, now) {
			continue
		}
		if best == nil || betterCandidate(queued, best) {
			best = queued
		}
	}
	if best == nil {
		return nil, nil
	}

	best.job.Status = job.StatusRunning
	best.job.UpdatedAt = now
	best.claimed = now
	best.workerID = workerID

	claimed := best.job
	return &claimed, nil
}

// Ack marks a claimed job done.
func (q *Queue) Ack(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	queued, ok := q.jobs[id]
	if !ok {
		return fmt.Errorf("ack of unknown job %s", id)
	}
	queued.job.Status = job.StatusDone
	queued.job.UpdatedAt = time.Now().UTC()
	return nil
}

// Retry returns a claimed job to the queue with an attempt penalty,
// parking it as dead once attempts are exhausted.
func (q *Queue) Retry(_ context.Context, id uuid.UUID, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	queued, ok := q.jobs[id]
	if !ok {
		return fmt.Errorf("retry of unknown job %s", id)
	}

	now := time.Now().UTC()
	queued.job.Attempt++
	queued.job.UpdatedAt = now
	if queued.job.Attempt >= queued.job.MaxAttempts {
		queued.job.Status = job.StatusDead
		return nil
	}
	queued.job.Status = job.StatusPending
	queued.job.NotBefore = now.Add(delay)
	return nil
}

// Defer returns a claimed job to the queue without an attempt penalty.
func (q *Queue) Defer(_ context.Context, id uuid.UUID, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	queued, ok := q.jobs[id]
	if !ok {
		return fmt.Errorf("defer of unknown job %s", id)
	}

	now := time.Now().UTC()
	queued.job.Status = job.StatusPending
	queued.job.NotBefore = now.Add(delay)
	queued.job.UpdatedAt = now
	return nil
}

// Close rejects all further queue operations.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Snapshot returns a copy of every job in the queue, for test
// assertions.
func (q *Queue) Snapshot() []job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := make([]job.Job, 0, len(q.jobs))
	for _, queued := range q.jobs {
		jobs = append(jobs, queued.job)
	}
	return jobs
}

func (q *Queue) eligible(queued *queuedJob, now time.Time) bool {
	switch queued.job.Status {
	case job.StatusPending:
		return !now.Before(queued.job.NotBefore)
	case job.StatusRunning:
		return now.After(queued.claimed.Add(q.visibility))
	default:
		return false
	}
}

func betterCandidate(candidate, current *queuedJob) bool {
	if candidate.job.Priority != current.job.Priority {
		return candidate.job.Priority < current.job.Priority
	}
	return candidate.job.NotBefore.Before(current.job.NotBefore)
}

func marshalPayload(payload any) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(payload)
}
