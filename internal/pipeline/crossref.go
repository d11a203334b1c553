package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/currents-app/currents/internal/domain"
	"github.com/currents-app/currents/internal/events"
	"github.com/currents-app/currents/internal/job"
)

// handleCrossReference is the final stage scheduler: it extracts and
// links external repository references for an item.
func (p *Pipeline) handleCrossReference(ctx context.Context, j *job.Job) job.Result {
	payload, err := job.DecodePayload(j)
	if err != nil {
		p.logger.Error("dropping undecodable crossref job", "job_id", j.ID, "error", err)
		return job.Done()
	}
	stagePayload := payload.(*job.ItemStagePayload)

	return p.runItemStage(ctx, j, domain.StageCrossRef, stagePayload.ItemID,
		func(ctx context.Context, item *domain.ContentItem) job.Result {
			start := time.Now()

			ok, err := p.waitForSlot(ctx, p.cfg.CrossRefHostKey)
			if err != nil {
				return job.RetryAfter(p.backoff(j.Attempt), fmt.Errorf("rate limiter: %w", err))
			}
			if !ok {
				p.emitAttempt(ctx, item.ID, domain.StageCrossRef, events.OutcomeDeferred, start, j.Attempt, "rate limit slot timeout")
				return job.DeferFor(p.cfg.DeferDelay, nil)
			}

			outcome := p.crossReferencer.CrossReference(ctx, item)
			if !outcome.Success {
				return p.recordStageFailure(ctx, j, domain.StageCrossRef, item.ID, outcome, start)
			}
			return p.recordStageSuccess(ctx, j, domain.StageCrossRef, item.ID, outcome.Count, start)
		})
}
