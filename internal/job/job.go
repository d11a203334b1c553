package job

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the type of work a job carries. The set of kinds is
// closed: every kind maps to exactly one payload shape and one handler.
type Kind string

// Job kinds, one per pipeline entry point.
const (
	KindSourcePoll     Kind = "source_poll"
	KindNormalize      Kind = "normalize"
	KindNormalizeImage Kind = "normalize_image"
	KindGatherCallback Kind = "gather_callback"
	KindEmbed          Kind = "embed"
	KindCrossReference Kind = "crossref"
)

// Status represents the queue-level lifecycle state of a job.
type Status string

// Possible job status values.
const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusDead    Status = "dead"
)

// Priority values, lower runs first.
const (
	PriorityImmediate  = 0
	PriorityDefault    = 5
	PriorityBackground = 9
)

// Job is an enqueued unit of work as stored in the queue.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Key         string          `json:"key"`
	Kind        Kind            `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	NotBefore   time.Time       `json:"not_before"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Spec describes a job to enqueue. Key, when non-empty, is a dedupe key
// derived deterministically from the target resource: enqueueing a spec
// whose key matches a pending, not-yet-started job refreshes that job
// instead of creating a duplicate. A job already executing is never
// replaced; the new spec becomes a fresh pending entry.
type Spec struct {
	Key         string
	Kind        Kind
	Payload     any
	Priority    int
	Delay       time.Duration
	MaxAttempts int
}

// StageKey builds the dedupe key for a per-item stage job.
func StageKey(kind Kind, itemID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", kind, itemID)
}

// PollKey builds the dedupe key for a source poll job.
func PollKey(sourceID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", KindSourcePoll, sourceID)
}

// RemainingAttempts reports how many attempts the job has left after the
// current one.
func (j *Job) RemainingAttempts() int {
	remaining := j.MaxAttempts - j.Attempt - 1
	if remaining < 0 {
		return 0
	}
	return remaining
}
