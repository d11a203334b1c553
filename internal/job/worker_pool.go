package job

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Disposition tells the worker pool what to do with a job after its
// handler returns.
type Disposition int

// Possible dispositions.
const (
	// DispositionDone acknowledges the job. Used for success and for
	// failures the handler already recorded as terminal stage state.
	DispositionDone Disposition = iota

	// DispositionRetry returns the job to the queue with an attempt
	// penalty. Used for transient failures.
	DispositionRetry

	// DispositionDefer returns the job to the queue without an attempt
	// penalty. Used for lock-busy and rate-limit deferrals.
	DispositionDefer
)

// Result is the structured outcome a handler reports to the worker pool.
// Handlers never let expected domain errors propagate; Err carries
// context for logging only.
type Result struct {
	Disposition Disposition
	Delay       time.Duration
	Err         error
}

// Done reports a finished job.
func Done() Result {
	return Result{Disposition: DispositionDone}
}

// RetryAfter reports a transient failure to retry after the given delay.
func RetryAfter(delay time.Duration, err error) Result {
	return Result{Disposition: DispositionRetry, Delay: delay, Err: err}
}

// DeferFor reports a deferral that should not count as a failed attempt.
func DeferFor(delay time.Duration, err error) Result {
	return Result{Disposition: DispositionDefer, Delay: delay, Err: err}
}

// HandlerFunc processes one dequeued job.
type HandlerFunc func(ctx context.Context, j *Job) Result

// WorkerPoolConfig holds configuration for the worker pool.
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent workers poll the queue.
	WorkerCount int

	// PollInterval is how long an idle worker sleeps between dequeues.
	PollInterval time.Duration

	// RetryBackoffBase and RetryBackoffMax bound the exponential backoff
	// applied when a handler panics or returns an unclassified failure.
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:      4,
		PollInterval:     500 * time.Millisecond,
		RetryBackoffBase: 5 * time.Second,
		RetryBackoffMax:  10 * time.Minute,
	}
}

// WorkerPool pulls jobs from the shared queue and dispatches them to the
// handler registered for each kind. Workers share no in-memory state
// beyond the queue, lock, limiter and gather records.
type WorkerPool struct {
	queue      Queue
	handlers   map[Kind]HandlerFunc
	config     WorkerPoolConfig
	logger     *slog.Logger
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	started    bool
	mu         sync.Mutex
}

// NewWorkerPool creates a worker pool over the given queue.
func NewWorkerPool(queue Queue, config WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultWorkerPoolConfig().PollInterval
	}
	if config.RetryBackoffBase <= 0 {
		config.RetryBackoffBase = DefaultWorkerPoolConfig().RetryBackoffBase
	}
	if config.RetryBackoffMax <= 0 {
		config.RetryBackoffMax = DefaultWorkerPoolConfig().RetryBackoffMax
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queue:      queue,
		handlers:   make(map[Kind]HandlerFunc),
		config:     config,
		logger:     logger.With("component", "worker_pool"),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Register binds a handler to a job kind. Must be called before Start.
func (p *WorkerPool) Register(kind Kind, handler HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[kind] = handler
}

// Start launches the worker goroutines.
func (p *WorkerPool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("worker pool already started")
	}
	p.started = true

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(fmt.Sprintf("worker-%d", i))
	}
	p.logger.Info("worker pool started", "worker_count", p.config.WorkerCount)
	return nil
}

// Stop shuts the pool down and waits for in-flight jobs to finish.
func (p *WorkerPool) Stop() {
	p.cancelFunc()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *WorkerPool) worker(id string) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("starting worker")

	for {
		select {
		case <-p.ctx.Done():
			logger.Debug("stopping worker")
			return
		default:
		}

		j, err := p.queue.Dequeue(p.ctx, id)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			logger.Error("dequeue failed", "error", err)
			p.sleep(p.config.PollInterval)
			continue
		}
		if j == nil {
			p.sleep(p.config.PollInterval)
			continue
		}

		p.processJob(j, logger)
	}
}

func (p *WorkerPool) processJob(j *Job, logger *slog.Logger) {
	logger = logger.With("job_id", j.ID, "job_kind", j.Kind, "attempt", j.Attempt)

	p.mu.Lock()
	handler, ok := p.handlers[j.Kind]
	p.mu.Unlock()
	if !ok {
		// No handler can ever process this kind; retrying is pointless.
		logger.Error("no handler registered for job kind")
		p.finish(j, Done(), logger)
		return
	}

	start := time.Now()
	result := p.safeInvoke(handler, j, logger)
	logger.Debug("job handled",
		"disposition", result.Disposition,
		"duration_ms", time.Since(start).Milliseconds())

	p.finish(j, result, logger)
}

// safeInvoke runs the handler, converting panics into a retry with
// default backoff. Only unclassified crashes take this path; expected
// failures come back as structured results.
func (p *WorkerPool) safeInvoke(handler HandlerFunc, j *Job, logger *slog.Logger) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panicked", "panic", r)
			delay := Backoff(p.config.RetryBackoffBase, p.config.RetryBackoffMax, j.Attempt)
			result = RetryAfter(delay, fmt.Errorf("handler panic: %v", r))
		}
	}()
	return handler(p.ctx, j)
}

func (p *WorkerPool) finish(j *Job, result Result, logger *slog.Logger) {
	// Queue operations use a fresh context so a shutdown mid-job still
	// records the job's outcome.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch result.Disposition {
	case DispositionRetry:
		err = p.queue.Retry(ctx, j.ID, result.Delay)
	case DispositionDefer:
		err = p.queue.Defer(ctx, j.ID, result.Delay)
	default:
		err = p.queue.Ack(ctx, j.ID)
	}
	if err != nil {
		// The visibility window redelivers the job if this write was lost.
		logger.Error("failed to record job outcome", "error", err)
	}
	if result.Err != nil {
		logger.Warn("job did not complete cleanly",
			"disposition", result.Disposition,
			"error", result.Err)
	}
}

func (p *WorkerPool) sleep(d time.Duration) {
	select {
	case <-p.ctx.Done():
	case <-time.After(d):
	}
}

// Backoff computes an exponential backoff with jitter for the given
// attempt number, bounded by max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	// Up to 25% jitter to avoid retry alignment.
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}
