package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/currents-app/currents/internal/config"
	"github.com/currents-app/currents/internal/content"
	"github.com/currents-app/currents/internal/crossref"
	"github.com/currents-app/currents/internal/events"
	"github.com/currents-app/currents/internal/gather"
	"github.com/currents-app/currents/internal/generation"
	"github.com/currents-app/currents/internal/job"
	"github.com/currents-app/currents/internal/lock"
	"github.com/currents-app/currents/internal/pipeline"
	"github.com/currents-app/currents/internal/platform/gemini"
	"github.com/currents-app/currents/internal/platform/postgres"
	"github.com/currents-app/currents/internal/ratelimit"
	"github.com/currents-app/currents/internal/store"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	// Configuration
	config *config.Config

	// Core services
	logger *slog.Logger
	db     *sql.DB

	// Stores (using interfaces for proper abstraction)
	itemStore   store.ItemStore
	sourceStore store.SourceStore

	// Infrastructure
	queue        job.Queue
	locker       lock.Locker
	limiter      *ratelimit.Limiter
	gatherStore  gather.Store
	coordinator  *gather.Coordinator
	eventEmitter events.EventEmitter

	// Pipeline
	pipeline   *pipeline.Pipeline
	workerPool *job.WorkerPool
	reconciler *pipeline.Reconciler
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts core dependencies like configuration, logger,
// and database connection that must be established before application
// initialization.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	// Initialize stores and queue
	app.itemStore = postgres.NewPostgresItemStore(db)
	app.sourceStore = postgres.NewPostgresSourceStore(db)
	app.queue = postgres.NewPostgresJobQueue(db, cfg.Worker.VisibilityTimeout)
	app.locker = postgres.NewPostgresLocker(db)
	app.gatherStore = postgres.NewPostgresGatherStore(db)

	// Initialize the rate limiter and the gather coordinator
	app.limiter = ratelimit.New()
	app.coordinator = gather.NewCoordinator(app.gatherStore, app.queue, logger)

	// Initialize the event emitter with a log sink for stage attempts
	emitter := events.NewInMemoryEventEmitter(logger)
	emitter.RegisterHandler(events.NewLogHandler(logger))
	app.eventEmitter = emitter

	// Create the embedding client
	embeddingClient, err := gemini.NewEmbeddingClient(
		ctx,
		logger.With("component", "embedding_client"),
		cfg.LLM,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}
	logger.Info("Embedding client initialized successfully",
		"model", cfg.LLM.EmbeddingModel)

	// Build the stage collaborators
	feedFetcher := content.NewHTTPFeedFetcher(nil)
	normalizer := content.NewHTMLNormalizer(app.itemStore)
	imageNormalizer := content.NewHTTPImageNormalizer(nil)
	embedder := generation.NewStageEmbedder(embeddingClient)
	crossReferencer := crossref.NewClient(cfg.CrossRef.BaseURL, &http.Client{
		Timeout: cfg.CrossRef.Timeout,
	})

	// Wire the pipeline
	app.pipeline = pipeline.New(pipeline.Deps{
		Items:           app.itemStore,
		Sources:         app.sourceStore,
		Queue:           app.queue,
		Locker:          app.locker,
		Limiter:         app.limiter,
		Gather:          app.coordinator,
		Emitter:         app.eventEmitter,
		Fetcher:         feedFetcher,
		Normalizer:      normalizer,
		ImageNormalizer: imageNormalizer,
		Embedder:        embedder,
		CrossReferencer: crossReferencer,
	}, pipelineConfig(cfg), logger)

	// Initialize the worker pool and register stage handlers
	app.workerPool = job.NewWorkerPool(app.queue, job.WorkerPoolConfig{
		WorkerCount:      cfg.Worker.Count,
		PollInterval:     cfg.Worker.PollInterval,
		RetryBackoffBase: cfg.Pipeline.RetryBackoffBase,
		RetryBackoffMax:  cfg.Pipeline.RetryBackoffMax,
	}, logger)
	app.pipeline.RegisterHandlers(app.workerPool)

	// Initialize the reconciliation scanner
	app.reconciler = pipeline.NewReconciler(app.pipeline, pipeline.ReconcilerConfig{
		Interval:        cfg.Reconciler.Interval,
		GraceWindow:     cfg.Reconciler.GraceWindow,
		BatchSize:       cfg.Reconciler.BatchSize,
		SourceBatchSize: cfg.Reconciler.SourceBatchSize,
		StaggerDelay:    cfg.Pipeline.StaggerDelay,
	}, logger)

	logger.Info("Application initialized successfully")
	return app, nil
}

// pipelineConfig maps the loaded configuration onto the pipeline's
// tuning knobs.
func pipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		LockTTL:          cfg.Pipeline.LockTTL,
		MaxAttempts:      cfg.Pipeline.MaxAttempts,
		RetryBackoffBase: cfg.Pipeline.RetryBackoffBase,
		RetryBackoffMax:  cfg.Pipeline.RetryBackoffMax,
		DeferDelay:       cfg.Pipeline.DeferDelay,
		StaggerDelay:     cfg.Pipeline.StaggerDelay,
		RateMinInterval:  cfg.Pipeline.RateMinInterval,
		RateMaxWait:      cfg.Pipeline.RateMaxWait,
		EmbedHostKey:     "generativelanguage.googleapis.com",
		CrossRefHostKey:  hostKeyFromURL(cfg.CrossRef.BaseURL),
	}
}

// hostKeyFromURL extracts the host used as the rate limiter key for an
// external API endpoint.
func hostKeyFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}

// Run starts the background workers and the HTTP server, handling
// lifecycle and cleanup. It returns an error if the server fails to
// start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	// Start background processing
	app.workerPool.Start()
	app.reconciler.Start()

	// Set up router using the application dependencies
	router := app.setupRouter()

	// Start the HTTP server
	err := app.startHTTPServer(ctx, router)
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	// Stop background processing before closing the database
	if app.reconciler != nil {
		app.reconciler.Stop()
	}
	if app.workerPool != nil {
		app.workerPool.Stop()
	}

	// Close database connection
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
