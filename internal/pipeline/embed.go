package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/currents-app/currents/internal/domain"
	"github.com/currents-app/currents/internal/events"
	"github.com/currents-app/currents/internal/job"
)

// handleEmbed is the embedding stage scheduler. The remote model call is
// the expensive part, so the per-host limiter gates it.
func (p *Pipeline) handleEmbed(ctx context.Context, j *job.Job) job.Result {
	payload, err := job.DecodePayload(j)
	if err != nil {
		p.logger.Error("dropping undecodable embed job", "job_id", j.ID, "error", err)
		return job.Done()
	}
	stagePayload := payload.(*job.ItemStagePayload)

	return p.runItemStage(ctx, j, domain.StageEmbed, stagePayload.ItemID,
		func(ctx context.Context, item *domain.ContentItem) job.Result {
			start := time.Now()

			ok, err := p.waitForSlot(ctx, p.cfg.EmbedHostKey)
			if err != nil {
				return job.RetryAfter(p.backoff(j.Attempt), fmt.Errorf("rate limiter: %w", err))
			}
			if !ok {
				p.emitAttempt(ctx, item.ID, domain.StageEmbed, events.OutcomeDeferred, start, j.Attempt, "rate limit slot timeout")
				return job.DeferFor(p.cfg.DeferDelay, nil)
			}

			outcome := p.embedder.Embed(ctx, item)
			if !outcome.Success {
				return p.recordStageFailure(ctx, j, domain.StageEmbed, item.ID, outcome, start)
			}
			return p.recordStageSuccess(ctx, j, domain.StageEmbed, item.ID, outcome.Count, start)
		})
}
