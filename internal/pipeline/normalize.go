package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/currents-app/currents/internal/domain"
	"github.com/currents-app/currents/internal/events"
	"github.com/currents-app/currents/internal/job"
)

// handleNormalize is the stage-1 scheduler. On success it either records
// the transition directly (no images) or fans out one child job per
// image under a gather group; in the fan-out case the normalize flag is
// written by the gather callback, not here.
func (p *Pipeline) handleNormalize(ctx context.Context, j *job.Job) job.Result {
	payload, err := job.DecodePayload(j)
	if err != nil {
		// Malformed payloads are permanent: retrying cannot fix them.
		p.logger.Error("dropping undecodable normalize job", "job_id", j.ID, "error", err)
		return job.Done()
	}
	stagePayload := payload.(*job.ItemStagePayload)

	return p.runItemStage(ctx, j, domain.StageNormalize, stagePayload.ItemID,
		func(ctx context.Context, item *domain.ContentItem) job.Result {
			start := time.Now()

			ok, err := p.waitForSlot(ctx, hostOf(item.URL))
			if err != nil {
				return job.RetryAfter(p.backoff(j.Attempt), fmt.Errorf("rate limiter: %w", err))
			}
			if !ok {
				// Deferred, not failed: no attempt penalty.
				p.emitAttempt(ctx, item.ID, domain.StageNormalize, events.OutcomeDeferred, start, j.Attempt, "rate limit slot timeout")
				return job.DeferFor(p.cfg.DeferDelay, nil)
			}

			result := p.normalizer.Normalize(ctx, item)
			if !result.Success {
				return p.recordStageFailure(ctx, j, domain.StageNormalize, item.ID, result.Outcome, start)
			}

			if len(result.ImageURLs) == 0 {
				return p.recordStageSuccess(ctx, j, domain.StageNormalize, item.ID, 0, start)
			}

			if err := p.fanOutImages(ctx, item.ID, result.ImageURLs); err != nil {
				return job.RetryAfter(p.backoff(j.Attempt), err)
			}

			p.emitAttempt(ctx, item.ID, domain.StageNormalize, events.OutcomeSuccess, start, j.Attempt,
				fmt.Sprintf("fanned out %d image jobs", len(result.ImageURLs)))
			return job.Done()
		})
}

// fanOutImages starts a gather group with one child job per image and a
// callback that completes the normalize stage. Children are enqueued
// with a stagger delay so a many-image item does not stampede its host.
func (p *Pipeline) fanOutImages(ctx context.Context, itemID uuid.UUID, imageURLs []string) error {
	groupID := uuid.New()

	children := make([]job.Spec, 0, len(imageURLs))
	for i, imageURL := range imageURLs {
		childID := fmt.Sprintf("image-%d", i)
		children = append(children, job.Spec{
			Key:  fmt.Sprintf("%s:%s:%s", job.KindNormalizeImage, itemID, childID),
			Kind: job.KindNormalizeImage,
			Payload: job.NormalizeImagePayload{
				Version:  job.PayloadVersion,
				ItemID:   itemID,
				GroupID:  groupID,
				ChildID:  childID,
				ImageURL: imageURL,
			},
			Priority:    job.PriorityDefault,
			Delay:       time.Duration(i) * p.cfg.StaggerDelay,
			MaxAttempts: p.cfg.MaxAttempts,
		})
	}

	callback := job.Spec{
		Key:  job.StageKey(job.KindGatherCallback, itemID),
		Kind: job.KindGatherCallback,
		Payload: job.GatherCallbackPayload{
			Version: job.PayloadVersion,
			GroupID: groupID,
			ItemID:  itemID,
		},
		Priority:    job.PriorityDefault,
		MaxAttempts: p.cfg.MaxAttempts,
	}

	if _, err := p.gather.StartGroupWithID(ctx, groupID, children, callback); err != nil {
		return fmt.Errorf("failed to start image gather group: %w", err)
	}
	return nil
}

// handleNormalizeImage is a gather child. It never lets an expected
// failure escape: the child always reports a terminal state so the group
// converges; only infrastructure crashes leave a child unreported, which
// the reconciliation scan repairs by re-driving the parent stage.
func (p *Pipeline) handleNormalizeImage(ctx context.Context, j *job.Job) job.Result {
	payload, err := job.DecodePayload(j)
	if err != nil {
		p.logger.Error("dropping undecodable image job", "job_id", j.ID, "error", err)
		return job.Done()
	}
	imagePayload := payload.(*job.NormalizeImagePayload)

	item, err := p.items.GetItem(ctx, imagePayload.ItemID)
	if err != nil {
		// Deleted upstream, or the store is unreachable. Either way the
		// child must still count toward the group.
		return p.reportChild(ctx, j, imagePayload, false)
	}

	ok, err := p.waitForSlot(ctx, hostOf(imagePayload.ImageURL))
	if err == nil && !ok {
		return job.DeferFor(p.cfg.DeferDelay, nil)
	}
	if err != nil {
		return job.RetryAfter(p.backoff(j.Attempt), fmt.Errorf("rate limiter: %w", err))
	}

	outcome := p.imageNormalizer.NormalizeImage(ctx, item, imagePayload.ImageURL)
	if !outcome.Success && outcome.Retryable && j.RemainingAttempts() > 0 {
		return job.RetryAfter(p.backoff(j.Attempt), errors.New(outcome.Reason))
	}

	return p.reportChild(ctx, j, imagePayload, outcome.Success)
}

func (p *Pipeline) reportChild(ctx context.Context, j *job.Job, payload *job.NormalizeImagePayload, success bool) job.Result {
	if err := p.gather.ReportDone(ctx, payload.GroupID, payload.ChildID, success); err != nil {
		return job.RetryAfter(p.backoff(j.Attempt), err)
	}
	return job.Done()
}

// handleGatherCallback completes the normalize stage once every image
// child has reported. Per-child failures do not block the parent
// transition; the count of successful children is recorded with it.
func (p *Pipeline) handleGatherCallback(ctx context.Context, j *job.Job) job.Result {
	payload, err := job.DecodePayload(j)
	if err != nil {
		p.logger.Error("dropping undecodable gather callback", "job_id", j.ID, "error", err)
		return job.Done()
	}
	callbackPayload := payload.(*job.GatherCallbackPayload)

	group, err := p.gather.GetGroup(ctx, callbackPayload.GroupID)
	if err != nil {
		return job.RetryAfter(p.backoff(j.Attempt), fmt.Errorf("failed to load gather group: %w", err))
	}

	return p.runItemStage(ctx, j, domain.StageNormalize, callbackPayload.ItemID,
		func(ctx context.Context, item *domain.ContentItem) job.Result {
			start := time.Now()
			return p.recordStageSuccess(ctx, j, domain.StageNormalize, item.ID, group.Succeeded, start)
		})
}
