package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/currents-app/currents/internal/job"
	"github.com/currents-app/currents/internal/platform/logger"
	"github.com/currents-app/currents/internal/store"
)

// PostgresJobQueue implements the job.Queue interface using PostgreSQL.
// Claims use FOR UPDATE SKIP LOCKED so concurrent workers never contend
// on the same row, and a claimed job whose visibility window lapses
// becomes claimable again, giving at-least-once delivery.
type PostgresJobQueue struct {
	db         store.DBTX
	visibility time.Duration
}

var _ job.Queue = (*PostgresJobQueue)(nil)

// NewPostgresJobQueue creates a queue over the given database. Claimed
// jobs that are not acked within the visibility window are redelivered.
func NewPostgresJobQueue(db store.DBTX, visibility time.Duration) *PostgresJobQueue {
	return &PostgresJobQueue{
		db:         db,
		visibility: visibility,
	}
}

// Enqueue adds a job to the queue. A non-empty dedupe key that matches a
// pending job refreshes that job in place via the partial unique index on
// (key) WHERE status = 'pending'; a running job is never replaced, the
// spec becomes a fresh pending row once the running one leaves 'pending'.
func (q *PostgresJobQueue) Enqueue(ctx context.Context, spec job.Spec) (uuid.UUID, error) {
	log := logger.FromContext(ctx)

	if spec.Kind == "" {
		return uuid.Nil, fmt.Errorf("%w: missing kind", job.ErrInvalidSpec)
	}
	payload, err := marshalJobPayload(spec.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", job.ErrInvalidSpec, err)
	}

	now := time.Now().UTC()
	notBefore := now.Add(spec.Delay)
	id := uuid.New()

	var query string
	if spec.Key != "" {
		query = `
			INSERT INTO jobs (id, key, kind, payload, priority, not_before, attempt, max_attempts, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 0, $7, 'pending', $8, $8)
			ON CONFLICT (key) WHERE status = 'pending' AND key <> '' DO UPDATE
			SET payload = EXCLUDED.payload,
			    priority = EXCLUDED.priority,
			    not_before = EXCLUDED.not_before,
			    max_attempts = EXCLUDED.max_attempts,
			    updated_at = EXCLUDED.updated_at
			RETURNING id
		`
	} else {
		query = `
			INSERT INTO jobs (id, key, kind, payload, priority, not_before, attempt, max_attempts, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 0, $7, 'pending', $8, $8)
			RETURNING id
		`
	}

	var storedID uuid.UUID
	err = q.db.QueryRowContext(ctx, query,
		id,
		spec.Key,
		spec.Kind,
		payload,
		spec.Priority,
		notBefore,
		spec.MaxAttempts,
		now,
	).Scan(&storedID)
	if err != nil {
		log.Error("failed to enqueue job",
			"kind", spec.Kind,
			"key", spec.Key,
			"error", err)
		return uuid.Nil, fmt.Errorf("failed to enqueue job: %w", MapError(err))
	}
	return storedID, nil
}

// Dequeue claims the best eligible job for the worker: lowest priority
// value first, then earliest eligibility. Returns (nil, nil) when no job
// is eligible.
func (q *PostgresJobQueue) Dequeue(ctx context.Context, workerID string) (*job.Job, error) {
	log := logger.FromContext(ctx)

	now := time.Now().UTC()
	query := `
		UPDATE jobs
		SET status = 'running', claimed_at = $1, worker_id = $2, updated_at = $1
		WHERE id = (
			SELECT id FROM jobs
			WHERE (status = 'pending' AND not_before <= $1)
			   OR (status = 'running' AND claimed_at < $3)
			ORDER BY priority ASC, not_before ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, key, kind, payload, priority, not_before, attempt, max_attempts, status, created_at, updated_at
	`

	row := q.db.QueryRowContext(ctx, query, now, workerID, now.Add(-q.visibility))

	var claimed job.Job
	err := row.Scan(
		&claimed.ID,
		&claimed.Key,
		&claimed.Kind,
		&claimed.Payload,
		&claimed.Priority,
		&claimed.NotBefore,
		&claimed.Attempt,
		&claimed.MaxAttempts,
		&claimed.Status,
		&claimed.CreatedAt,
		&claimed.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		log.Error("failed to dequeue job", "worker_id", workerID, "error", err)
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}
	return &claimed, nil
}

// Ack marks a claimed job as done.
func (q *PostgresJobQueue) Ack(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = 'done', updated_at = $1
		WHERE id = $2 AND status = 'running'
	`

	result, err := q.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to ack job: %w", MapError(err))
	}
	if err := CheckRowsAffected(result, "job"); err != nil {
		return store.ErrJobNotFound
	}
	return nil
}

// Retry returns a claimed job to the queue with an attempt penalty,
// parking it as dead once attempts are exhausted.
func (q *PostgresJobQueue) Retry(ctx context.Context, id uuid.UUID, delay time.Duration) error {
	now := time.Now().UTC()
	query := `
		UPDATE jobs
		SET attempt = attempt + 1,
		    status = CASE WHEN attempt + 1 >= max_attempts THEN 'dead' ELSE 'pending' END,
		    not_before = $1,
		    updated_at = $2
		WHERE id = $3 AND status = 'running'
	`

	result, err := q.db.ExecContext(ctx, query, now.Add(delay), now, id)
	if err != nil {
		return fmt.Errorf("failed to retry job: %w", MapError(err))
	}
	if err := CheckRowsAffected(result, "job"); err != nil {
		return store.ErrJobNotFound
	}
	return nil
}

// Defer returns a claimed job to the queue without an attempt penalty.
func (q *PostgresJobQueue) Defer(ctx context.Context, id uuid.UUID, delay time.Duration) error {
	now := time.Now().UTC()
	query := `
		UPDATE jobs
		SET status = 'pending', not_before = $1, updated_at = $2
		WHERE id = $3 AND status = 'running'
	`

	result, err := q.db.ExecContext(ctx, query, now.Add(delay), now, id)
	if err != nil {
		return fmt.Errorf("failed to defer job: %w", MapError(err))
	}
	if err := CheckRowsAffected(result, "job"); err != nil {
		return store.ErrJobNotFound
	}
	return nil
}

func marshalJobPayload(payload any) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(payload)
}
