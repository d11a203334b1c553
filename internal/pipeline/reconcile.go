package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/currents-app/currents/internal/domain"
	"github.com/currents-app/currents/internal/job"
)

// ReconcilerConfig holds configuration for the reconciliation scanner.
type ReconcilerConfig struct {
	// Interval is the fixed scan period.
	Interval time.Duration

	// GraceWindow keeps the scanner from racing the normal forward
	// chain: only items older than this are considered abandoned.
	GraceWindow time.Duration

	// BatchSize bounds how many items one scan re-enqueues per stage.
	BatchSize int

	// SourceBatchSize bounds how many due sources one scan enqueues.
	SourceBatchSize int

	// StaggerDelay spaces the re-enqueued batch out so a scan never
	// produces a thundering herd against rate-limited dependencies.
	StaggerDelay time.Duration
}

// Reconciler is the pipeline's sole correctness backstop against dropped
// triggers, workers crashed mid-chain, and lost gather callbacks. It
// periodically sweeps each stage for items whose expected forward
// transition never happened and re-enqueues them, and enqueues polls for
// sources that have come due.
type Reconciler struct {
	pipeline *Pipeline
	cfg      ReconcilerConfig
	logger   *slog.Logger

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewReconciler creates a Reconciler driving the given pipeline.
func NewReconciler(pipeline *Pipeline, cfg ReconcilerConfig, logger *slog.Logger) *Reconciler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		pipeline:   pipeline,
		cfg:        cfg,
		logger:     logger.With("component", "reconciler"),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the periodic scan goroutine.
func (r *Reconciler) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				if err := r.RunOnce(r.ctx); err != nil {
					r.logger.Error("reconciliation scan failed", "error", err)
				}
			}
		}
	}()
	r.logger.Info("reconciler started", "interval", r.cfg.Interval)
}

// Stop shuts the scanner down and waits for an in-flight scan to finish.
func (r *Reconciler) Stop() {
	r.cancelFunc()
	r.wg.Wait()
}

// RunOnce performs a single full sweep: every stage's backlog, then the
// due sources. Exported so a sweep can be driven directly in tests and
// ops tooling.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	for _, stage := range domain.StageOrder {
		if err := r.scanStage(ctx, stage); err != nil {
			return fmt.Errorf("scan of stage %s: %w", stage, err)
		}
	}
	return r.scanDueSources(ctx)
}

func (r *Reconciler) scanStage(ctx context.Context, stage domain.Stage) error {
	cutoff := time.Now().Add(-r.cfg.GraceWindow)
	items, err := r.pipeline.items.FindStageBacklog(ctx, stage, cutoff, r.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	r.logger.Info("re-driving abandoned items", "stage", stage, "count", len(items))
	for i, item := range items {
		delay := time.Duration(i) * r.cfg.StaggerDelay
		if err := r.pipeline.enqueueStage(ctx, stage, item.ID, delay, job.PriorityBackground); err != nil {
			r.logger.Warn("failed to re-enqueue item",
				"item_id", item.ID, "stage", stage, "error", err)
		}
	}
	return nil
}

func (r *Reconciler) scanDueSources(ctx context.Context) error {
	sources, err := r.pipeline.sources.ListDueSources(ctx, time.Now(), r.cfg.SourceBatchSize)
	if err != nil {
		return err
	}

	// The poll job's dedupe key guarantees at most one pending poll per
	// source, so one due decision per source per tick.
	for _, source := range sources {
		if err := r.pipeline.EnqueueSourcePoll(ctx, source.ID, TriggerOptions{}); err != nil {
			r.logger.Warn("failed to enqueue due source poll",
				"source_id", source.ID, "error", err)
		}
	}
	return nil
}
