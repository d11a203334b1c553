package gather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/currents-app/currents/internal/job"
)

// Group is the persisted record of one fan-out/fan-in round: how many
// children were launched, how many succeeded, and the callback job to
// enqueue once every child has reached a terminal state.
type Group struct {
	ID               uuid.UUID    `json:"id"`
	Expected         int          `json:"expected"`
	Succeeded        int          `json:"succeeded"`
	Callback         CallbackSpec `json:"callback"`
	CallbackEnqueued bool         `json:"callback_enqueued"`
	CreatedAt        time.Time    `json:"created_at"`
}

// CallbackSpec is a job.Spec with its payload pre-marshaled so the
// callback can be persisted alongside the group record.
type CallbackSpec struct {
	Key         string          `json:"key"`
	Kind        job.Kind        `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	Delay       time.Duration   `json:"delay"`
	MaxAttempts int             `json:"max_attempts"`
}

// NewCallbackSpec marshals a job.Spec into its storable form.
func NewCallbackSpec(spec job.Spec) (CallbackSpec, error) {
	payload, err := json.Marshal(spec.Payload)
	if err != nil {
		return CallbackSpec{}, fmt.Errorf("failed to marshal callback payload: %w", err)
	}
	return CallbackSpec{
		Key:         spec.Key,
		Kind:        spec.Kind,
		Payload:     payload,
		Priority:    spec.Priority,
		Delay:       spec.Delay,
		MaxAttempts: spec.MaxAttempts,
	}, nil
}

// ToJobSpec converts the stored callback back into an enqueueable spec.
func (s CallbackSpec) ToJobSpec() job.Spec {
	return job.Spec{
		Key:         s.Key,
		Kind:        s.Kind,
		Payload:     s.Payload,
		Priority:    s.Priority,
		Delay:       s.Delay,
		MaxAttempts: s.MaxAttempts,
	}
}

// Store is the persistence contract for gather groups. RecordChildDone
// and TryMarkCallbackEnqueued must be atomic: two children finishing
// simultaneously may both observe the full count, and only one may win
// the callback flag.
type Store interface {
	// CreateGroup persists a new group record.
	CreateGroup(ctx context.Context, group *Group) error

	// GetGroup retrieves a group by ID.
	// Returns store.ErrGroupNotFound if it does not exist.
	GetGroup(ctx context.Context, id uuid.UUID) (*Group, error)

	// RecordChildDone adds childID to the group's completed set,
	// counting it toward the success tally when success is true, and
	// returns the resulting completed and expected counts. Reporting
	// the same child twice must not double-count.
	RecordChildDone(ctx context.Context, groupID uuid.UUID, childID string, success bool) (completed, expected int, err error)

	// TryMarkCallbackEnqueued flips the group's one-time callback flag.
	// Returns true only for the single caller that wins the flip.
	TryMarkCallbackEnqueued(ctx context.Context, groupID uuid.UUID) (bool, error)
}

// Coordinator implements the scatter-gather synchronizer: it launches N
// independent child jobs and enqueues a single callback job exactly once
// after all children finish, regardless of individual success or failure.
type Coordinator struct {
	store  Store
	queue  job.Queue
	logger *slog.Logger
}

// NewCoordinator creates a Coordinator over the given store and queue.
func NewCoordinator(store Store, queue job.Queue, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		queue:  queue,
		logger: logger.With("component", "gather"),
	}
}

// StartGroup persists a new group record and enqueues its children.
// See StartGroupWithID.
func (c *Coordinator) StartGroup(ctx context.Context, children []job.Spec, callback job.Spec) (uuid.UUID, error) {
	return c.StartGroupWithID(ctx, uuid.New(), children, callback)
}

// StartGroupWithID persists the group record under a caller-chosen ID
// (so child payloads can carry it), then enqueues each child job. The
// caller tags each child payload with the group ID and a stable child ID
// before calling. A group with no children completes immediately.
//
// The group record is written before any child so a child that finishes
// instantly can already report against it.
func (c *Coordinator) StartGroupWithID(ctx context.Context, groupID uuid.UUID, children []job.Spec, callback job.Spec) (uuid.UUID, error) {
	callbackSpec, err := NewCallbackSpec(callback)
	if err != nil {
		return uuid.Nil, err
	}

	group := &Group{
		ID:        groupID,
		Expected:  len(children),
		Callback:  callbackSpec,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.CreateGroup(ctx, group); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create gather group: %w", err)
	}

	if len(children) == 0 {
		if err := c.enqueueCallback(ctx, group.ID); err != nil {
			return uuid.Nil, err
		}
		return group.ID, nil
	}

	for _, child := range children {
		if _, err := c.queue.Enqueue(ctx, child); err != nil {
			// Children already enqueued will still report; the missing
			// ones leave the group short, which the reconciliation scan
			// repairs by re-driving the parent stage.
			return group.ID, fmt.Errorf("failed to enqueue gather child: %w", err)
		}
	}

	c.logger.Debug("gather group started",
		"group_id", group.ID,
		"expected_children", group.Expected)
	return group.ID, nil
}

// GetGroup returns the group record, including its success tally.
func (c *Coordinator) GetGroup(ctx context.Context, groupID uuid.UUID) (*Group, error) {
	return c.store.GetGroup(ctx, groupID)
}

// ReportDone records a child's terminal state (success and failure both
// count toward completion) and enqueues the callback when the child was
// the last one. Idempotent: duplicate reports for the same child change
// nothing, and the one-time flag on the group record guarantees the
// callback is enqueued exactly once even when two children observe the
// final count concurrently.
func (c *Coordinator) ReportDone(ctx context.Context, groupID uuid.UUID, childID string, success bool) error {
	completed, expected, err := c.store.RecordChildDone(ctx, groupID, childID, success)
	if err != nil {
		return fmt.Errorf("failed to record gather child completion: %w", err)
	}

	if completed < expected {
		return nil
	}

	return c.enqueueCallback(ctx, groupID)
}

func (c *Coordinator) enqueueCallback(ctx context.Context, groupID uuid.UUID) error {
	won, err := c.store.TryMarkCallbackEnqueued(ctx, groupID)
	if err != nil {
		return fmt.Errorf("failed to claim gather callback: %w", err)
	}
	if !won {
		return nil
	}

	group, err := c.store.GetGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("failed to load gather group for callback: %w", err)
	}

	if _, err := c.queue.Enqueue(ctx, group.Callback.ToJobSpec()); err != nil {
		return fmt.Errorf("failed to enqueue gather callback: %w", err)
	}

	c.logger.Debug("gather callback enqueued", "group_id", groupID)
	return nil
}
