package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/currents-app/currents/internal/domain"
)

// StageAttemptEvent is emitted once per stage attempt, at the end of the
// attempt, whatever its outcome. Upstream consumers (metrics, the UI's
// retry affordance) subscribe through an EventHandler.
type StageAttemptEvent struct {
	// ID is a unique identifier for this event.
	ID uuid.UUID `json:"id"`

	// ItemID is the content item the attempt targeted.
	ItemID uuid.UUID `json:"item_id"`

	// Stage is the pipeline stage that was attempted.
	Stage domain.Stage `json:"stage"`

	// Outcome describes how the attempt ended: "success", "failure",
	// "deferred" or "skipped".
	Outcome string `json:"outcome"`

	// DurationMs is the attempt's wall-clock duration in milliseconds.
	DurationMs int64 `json:"duration_ms"`

	// Attempt is the zero-based attempt number from the driving job.
	Attempt int `json:"attempt"`

	// Reason carries failure or deferral context, empty on success.
	Reason string `json:"reason,omitempty"`

	// CreatedAt is the timestamp when the event was created.
	CreatedAt time.Time `json:"created_at"`
}

// Attempt outcome values.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeDeferred = "deferred"
	OutcomeSkipped  = "skipped"
)

// NewStageAttemptEvent creates an event for one finished stage attempt.
func NewStageAttemptEvent(itemID uuid.UUID, stage domain.Stage, outcome string, duration time.Duration, attempt int, reason string) *StageAttemptEvent {
	return &StageAttemptEvent{
		ID:         uuid.New(),
		ItemID:     itemID,
		Stage:      stage,
		Outcome:    outcome,
		DurationMs: duration.Milliseconds(),
		Attempt:    attempt,
		Reason:     reason,
		CreatedAt:  time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that consume stage
// attempt events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *StageAttemptEvent) error
}

// EventEmitter defines an interface for components that emit stage
// attempt events. This lets schedulers publish events without direct
// knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *StageAttemptEvent) error
}
