package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/currents-app/currents/internal/domain"
	"github.com/currents-app/currents/internal/job"
)

// TriggerOptions controls how an externally requested pipeline entry is
// scheduled.
type TriggerOptions struct {
	// ForceImmediate skips the stagger delay and schedules the job at
	// the highest priority.
	ForceImmediate bool
}

// EnqueueItem schedules the first pipeline stage for an item. This is
// the trigger API consumed by the external HTTP layer when a new item is
// created or a user requests processing.
func (p *Pipeline) EnqueueItem(ctx context.Context, itemID uuid.UUID, opts TriggerOptions) error {
	delay := p.cfg.StaggerDelay
	priority := job.PriorityDefault
	if opts.ForceImmediate {
		delay = 0
		priority = job.PriorityImmediate
	}
	if err := p.enqueueStage(ctx, domain.StageNormalize, itemID, delay, priority); err != nil {
		return fmt.Errorf("failed to enqueue item for processing: %w", err)
	}
	return nil
}

// ReprocessItem is the explicit external re-processing request: it
// rewinds the item's flags from the given stage onward and re-enqueues
// that stage immediately. This is the only path that reverts a success.
func (p *Pipeline) ReprocessItem(ctx context.Context, itemID uuid.UUID, from domain.Stage) error {
	if !domain.IsValidStage(from) {
		return fmt.Errorf("%w: %q", domain.ErrUnknownStage, from)
	}
	if err := p.items.ResetStagesFrom(ctx, itemID, from); err != nil {
		return fmt.Errorf("failed to reset item stages: %w", err)
	}
	if err := p.enqueueStage(ctx, from, itemID, 0, job.PriorityImmediate); err != nil {
		return fmt.Errorf("failed to enqueue reprocessing: %w", err)
	}
	return nil
}

// EnqueueSourcePoll schedules a poll of one source. The dedupe key keeps
// repeated triggers from stacking duplicate pending polls.
func (p *Pipeline) EnqueueSourcePoll(ctx context.Context, sourceID uuid.UUID, opts TriggerOptions) error {
	priority := job.PriorityBackground
	if opts.ForceImmediate {
		priority = job.PriorityImmediate
	}
	_, err := p.queue.Enqueue(ctx, job.Spec{
		Key:         job.PollKey(sourceID),
		Kind:        job.KindSourcePoll,
		Payload:     job.SourcePollPayload{Version: job.PayloadVersion, SourceID: sourceID},
		Priority:    priority,
		MaxAttempts: p.cfg.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue source poll: %w", err)
	}
	return nil
}
