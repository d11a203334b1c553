package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/currents-app/currents/internal/domain"
	"github.com/currents-app/currents/internal/job"
	"github.com/currents-app/currents/internal/lock"
	"github.com/currents-app/currents/internal/store"
)

// handleSourcePoll is the ingestion entry point: fetch a source's feed,
// upsert its entries as content items, and enqueue the normalize stage
// for every newly created item with a stagger delay. The source lock
// keeps two workers from polling the same feed concurrently.
func (p *Pipeline) handleSourcePoll(ctx context.Context, j *job.Job) job.Result {
	payload, err := job.DecodePayload(j)
	if err != nil {
		p.logger.Error("dropping undecodable poll job", "job_id", j.ID, "error", err)
		return job.Done()
	}
	pollPayload := payload.(*job.SourcePollPayload)

	token, err := p.locker.Acquire(ctx, sourceLockKey(pollPayload.SourceID), p.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLockBusy) {
			return job.Done()
		}
		return job.RetryAfter(p.backoff(j.Attempt), fmt.Errorf("failed to acquire source lock: %w", err))
	}
	defer p.releaseWithRenewal(ctx, sourceLockKey(pollPayload.SourceID), token)()

	source, err := p.sources.GetSource(ctx, pollPayload.SourceID)
	if err != nil {
		if errors.Is(err, store.ErrSourceNotFound) {
			// Unsubscribed while the job was queued.
			return job.Done()
		}
		return job.RetryAfter(p.backoff(j.Attempt), fmt.Errorf("failed to load source: %w", err))
	}

	ok, err := p.waitForSlot(ctx, hostOf(source.FeedURL))
	if err != nil {
		return job.RetryAfter(p.backoff(j.Attempt), fmt.Errorf("rate limiter: %w", err))
	}
	if !ok {
		return job.DeferFor(p.cfg.DeferDelay, nil)
	}

	entries, err := p.fetcher.FetchFeed(ctx, source.FeedURL)
	if err != nil {
		// Feed fetch problems are transient by default; the next poll
		// period retries anyway.
		return job.RetryAfter(p.backoff(j.Attempt), fmt.Errorf("failed to fetch feed: %w", err))
	}

	created := 0
	for _, entry := range entries {
		item, err := domain.NewContentItem(source.OwnerID, source.ID, entry.URL, entry.Title, entry.Body)
		if err != nil {
			p.logger.Warn("skipping invalid feed entry",
				"source_id", source.ID, "entry_url", entry.URL, "error", err)
			continue
		}

		stored, isNew, err := p.items.UpsertItem(ctx, item)
		if err != nil {
			return job.RetryAfter(p.backoff(j.Attempt), fmt.Errorf("failed to upsert item: %w", err))
		}
		if !isNew {
			continue
		}

		delay := time.Duration(created) * p.cfg.StaggerDelay
		if err := p.enqueueStage(ctx, domain.StageNormalize, stored.ID, delay, job.PriorityDefault); err != nil {
			// The item exists with its normalize flag unset; the
			// reconciliation scan picks it up.
			p.logger.Warn("failed to enqueue normalize for new item",
				"item_id", stored.ID, "error", err)
		}
		created++
	}

	if err := p.sources.MarkPolled(ctx, source.ID, time.Now()); err != nil && !errors.Is(err, store.ErrSourceNotFound) {
		return job.RetryAfter(p.backoff(j.Attempt), fmt.Errorf("failed to mark source polled: %w", err))
	}

	p.logger.Info("source polled",
		"source_id", source.ID,
		"entries", len(entries),
		"new_items", created)
	return job.Done()
}
