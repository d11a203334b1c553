package pipeline

import (
	"log/slog"
	"time"

	"github.com/currents-app/currents/internal/events"
	"github.com/currents-app/currents/internal/gather"
	"github.com/currents-app/currents/internal/job"
	"github.com/currents-app/currents/internal/lock"
	"github.com/currents-app/currents/internal/ratelimit"
	"github.com/currents-app/currents/internal/store"
)

// Config carries the pipeline's tuning knobs. All values are
// empirically tuned deployment configuration, supplied by the
// composition root; none are hard-coded into the core abstractions.
type Config struct {
	// LockTTL is the per-item lease duration. Must exceed the slowest
	// stage's worst-case execution time by a safety margin (1.5-2x).
	LockTTL time.Duration

	// MaxAttempts bounds transient retries per stage job.
	MaxAttempts int

	// RetryBackoffBase and RetryBackoffMax bound the exponential backoff
	// between transient retries.
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration

	// DeferDelay is the short requeue delay used for rate-limit slot
	// timeouts. Deferrals never count against a stage's attempts.
	DeferDelay time.Duration

	// StaggerDelay is the per-item delay inserted between otherwise
	// parallel enqueues to smooth load on rate-limited dependencies.
	StaggerDelay time.Duration

	// RateMinInterval and RateMaxWait configure the per-host limiter.
	RateMinInterval time.Duration
	RateMaxWait     time.Duration

	// EmbedHostKey and CrossRefHostKey identify the remote AI and
	// reference-API hosts for rate limiting.
	EmbedHostKey    string
	CrossRefHostKey string
}

// Deps bundles the pipeline's collaborators and infrastructure.
type Deps struct {
	Items    store.ItemStore
	Sources  store.SourceStore
	Queue    job.Queue
	Locker   lock.Locker
	Limiter  *ratelimit.Limiter
	Gather   *gather.Coordinator
	Emitter  events.EventEmitter
	Fetcher  FeedFetcher
	Normalizer      Normalizer
	ImageNormalizer ImageNormalizer
	Embedder        Embedder
	CrossReferencer CrossReferencer
}

// Pipeline wires the stage schedulers together: it owns the per-kind job
// handlers, the trigger API, and the enqueue plumbing between stages.
type Pipeline struct {
	items    store.ItemStore
	sources  store.SourceStore
	queue    job.Queue
	locker   lock.Locker
	limiter  *ratelimit.Limiter
	gather   *gather.Coordinator
	emitter  events.EventEmitter
	fetcher  FeedFetcher
	normalizer      Normalizer
	imageNormalizer ImageNormalizer
	embedder        Embedder
	crossReferencer CrossReferencer
	cfg    Config
	logger *slog.Logger
}

// New creates a Pipeline from its dependencies.
func New(deps Deps, cfg Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		items:           deps.Items,
		sources:         deps.Sources,
		queue:           deps.Queue,
		locker:          deps.Locker,
		limiter:         deps.Limiter,
		gather:          deps.Gather,
		emitter:         deps.Emitter,
		fetcher:         deps.Fetcher,
		normalizer:      deps.Normalizer,
		imageNormalizer: deps.ImageNormalizer,
		embedder:        deps.Embedder,
		crossReferencer: deps.CrossReferencer,
		cfg:             cfg,
		logger:          logger.With("component", "pipeline"),
	}
}

// RegisterHandlers binds every stage handler to its job kind on the pool.
func (p *Pipeline) RegisterHandlers(pool *job.WorkerPool) {
	pool.Register(job.KindSourcePoll, p.handleSourcePoll)
	pool.Register(job.KindNormalize, p.handleNormalize)
	pool.Register(job.KindNormalizeImage, p.handleNormalizeImage)
	pool.Register(job.KindGatherCallback, p.handleGatherCallback)
	pool.Register(job.KindEmbed, p.handleEmbed)
	pool.Register(job.KindCrossReference, p.handleCrossReference)
}

func (p *Pipeline) backoff(attempt int) time.Duration {
	return job.Backoff(p.cfg.RetryBackoffBase, p.cfg.RetryBackoffMax, attempt)
}
