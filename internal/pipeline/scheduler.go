package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/currents-app/currents/internal/domain"
	"github.com/currents-app/currents/internal/events"
	"github.com/currents-app/currents/internal/job"
	"github.com/currents-app/currents/internal/lock"
	"github.com/currents-app/currents/internal/ratelimit"
	"github.com/currents-app/currents/internal/store"
)

func itemLockKey(itemID uuid.UUID) string {
	return "item:" + itemID.String()
}

func sourceLockKey(sourceID uuid.UUID) string {
	return "source:" + sourceID.String()
}

// runItemStage applies the common scheduler pattern around a stage body:
// acquire the item lock (drop on busy; the next trigger or the
// reconciliation scan retries later), detect a deleted item and exit
// cleanly, verify the stage ordering invariant, run the body, release
// the lock. The body is responsible for recording its own transition.
func (p *Pipeline) runItemStage(
	ctx context.Context,
	j *job.Job,
	stage domain.Stage,
	itemID uuid.UUID,
	body func(ctx context.Context, item *domain.ContentItem) job.Result,
) job.Result {
	start := time.Now()

	token, err := p.locker.Acquire(ctx, itemLockKey(itemID), p.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLockBusy) {
			// Not an error: skip without retry penalty and without
			// requeuing.
			p.emitAttempt(ctx, itemID, stage, events.OutcomeSkipped, start, j.Attempt, "lock busy")
			return job.Done()
		}
		return job.RetryAfter(p.backoff(j.Attempt), fmt.Errorf("failed to acquire item lock: %w", err))
	}
	defer p.releaseWithRenewal(ctx, itemLockKey(itemID), token)()

	item, err := p.items.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			// Deleted upstream: the only cancellation signal. Exit
			// successfully, not as a failure.
			p.emitAttempt(ctx, itemID, stage, events.OutcomeSkipped, start, j.Attempt, "item deleted")
			return job.Done()
		}
		return job.RetryAfter(p.backoff(j.Attempt), fmt.Errorf("failed to load item: %w", err))
	}

	if err := item.CanAttempt(stage); err != nil {
		// Already succeeded, or the prior stage has not succeeded yet.
		// Either way this job has nothing to do; the scanner re-drives
		// the item once it becomes eligible.
		p.emitAttempt(ctx, itemID, stage, events.OutcomeSkipped, start, j.Attempt, err.Error())
		return job.Done()
	}

	return body(ctx, item)
}

// releaseWithRenewal keeps the lease alive while the stage runs and
// returns the cleanup func that stops renewal and releases the lock.
func (p *Pipeline) releaseWithRenewal(ctx context.Context, key, token string) func() {
	stop := make(chan struct{})
	go func() {
		interval := p.cfg.LockTTL / 2
		if interval <= 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if ok, err := p.locker.Renew(ctx, key, token, p.cfg.LockTTL); err != nil || !ok {
					return
				}
			}
		}
	}()

	return func() {
		close(stop)
		// Release against a fresh context so shutdown does not leave
		// leases to time out on their own.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := p.locker.Release(releaseCtx, key, token); err != nil {
			p.logger.Warn("failed to release lock", "key", key, "error", err)
		}
	}
}

// recordStageFailure applies the error taxonomy to a failed domain call:
// transient failures requeue with exponential backoff while attempts
// remain, then the stage is marked failure; permanent failures are
// marked immediately. A persistently failed item stays visible through
// its flags for the UI's retry affordance; it is never hidden or deleted.
func (p *Pipeline) recordStageFailure(
	ctx context.Context,
	j *job.Job,
	stage domain.Stage,
	itemID uuid.UUID,
	outcome Outcome,
	start time.Time,
) job.Result {
	if outcome.Retryable && j.RemainingAttempts() > 0 {
		p.emitAttempt(ctx, itemID, stage, events.OutcomeFailure, start, j.Attempt, outcome.Reason)
		return job.RetryAfter(p.backoff(j.Attempt), errors.New(outcome.Reason))
	}

	result := domain.StageResult{
		State:  domain.StageFailure,
		Count:  outcome.Count,
		Reason: outcome.Reason,
	}
	if err := p.markStage(ctx, j, itemID, stage, result); err != nil {
		return job.RetryAfter(p.backoff(j.Attempt), err)
	}
	p.emitAttempt(ctx, itemID, stage, events.OutcomeFailure, start, j.Attempt, outcome.Reason)
	return job.Done()
}

// recordStageSuccess marks the stage success and enqueues the next
// stage's entry job with the configured stagger delay.
func (p *Pipeline) recordStageSuccess(
	ctx context.Context,
	j *job.Job,
	stage domain.Stage,
	itemID uuid.UUID,
	count int,
	start time.Time,
) job.Result {
	result := domain.StageResult{State: domain.StageSuccess, Count: count}
	if err := p.markStage(ctx, j, itemID, stage, result); err != nil {
		return job.RetryAfter(p.backoff(j.Attempt), err)
	}

	if next, ok := domain.NextStage(stage); ok {
		if err := p.enqueueStage(ctx, next, itemID, p.cfg.StaggerDelay, job.PriorityDefault); err != nil {
			// The transition is recorded; a lost enqueue here is exactly
			// what the reconciliation scan repairs.
			p.logger.Warn("failed to enqueue next stage",
				"item_id", itemID, "stage", next, "error", err)
		}
	}

	p.emitAttempt(ctx, itemID, stage, events.OutcomeSuccess, start, j.Attempt, "")
	return job.Done()
}

// markStage writes the transition, translating a concurrent upstream
// delete into a clean exit.
func (p *Pipeline) markStage(ctx context.Context, j *job.Job, itemID uuid.UUID, stage domain.Stage, result domain.StageResult) error {
	err := p.items.MarkStage(ctx, itemID, stage, result)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrItemNotFound):
		return nil
	case errors.Is(err, domain.ErrStageFinal), errors.Is(err, domain.ErrStageOrder):
		// A concurrent writer got there first; at-least-once delivery
		// makes this expected.
		p.logger.Debug("stage transition already applied",
			"item_id", itemID, "stage", stage, "detail", err.Error())
		return nil
	default:
		return fmt.Errorf("failed to mark stage %s: %w", stage, err)
	}
}

// waitForSlot blocks on the per-host limiter. ok=false means the wait
// budget ran out and the caller should defer the job.
func (p *Pipeline) waitForSlot(ctx context.Context, hostKey string) (bool, error) {
	if hostKey == "" {
		return true, nil
	}
	err := p.limiter.WaitForSlot(ctx, hostKey, p.cfg.RateMinInterval, p.cfg.RateMaxWait)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ratelimit.ErrSlotTimeout):
		return false, nil
	default:
		return false, err
	}
}

func (p *Pipeline) enqueueStage(ctx context.Context, stage domain.Stage, itemID uuid.UUID, delay time.Duration, priority int) error {
	kind, err := stageJobKind(stage)
	if err != nil {
		return err
	}
	_, err = p.queue.Enqueue(ctx, job.Spec{
		Key:         job.StageKey(kind, itemID),
		Kind:        kind,
		Payload:     job.ItemStagePayload{Version: job.PayloadVersion, ItemID: itemID},
		Priority:    priority,
		Delay:       delay,
		MaxAttempts: p.cfg.MaxAttempts,
	})
	return err
}

func stageJobKind(stage domain.Stage) (job.Kind, error) {
	switch stage {
	case domain.StageNormalize:
		return job.KindNormalize, nil
	case domain.StageEmbed:
		return job.KindEmbed, nil
	case domain.StageCrossRef:
		return job.KindCrossReference, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownStage, stage)
	}
}

func (p *Pipeline) emitAttempt(ctx context.Context, itemID uuid.UUID, stage domain.Stage, outcome string, start time.Time, attempt int, reason string) {
	event := events.NewStageAttemptEvent(itemID, stage, outcome, time.Since(start), attempt, reason)
	if err := p.emitter.EmitEvent(ctx, event); err != nil {
		p.logger.Warn("failed to emit stage attempt event", "error", err)
	}
}

// hostOf extracts the rate-limit host key from a URL; an unparseable URL
// maps to the empty key, which skips limiting rather than failing the job.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
