package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"   validate:"required"`
	Worker     WorkerConfig     `mapstructure:"worker"     validate:"required"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"   validate:"required"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler" validate:"required"`
	LLM        LLMConfig        `mapstructure:"llm"        validate:"required"`
	CrossRef   CrossRefConfig   `mapstructure:"crossref"   validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// WorkerConfig tunes the job worker pool and the queue's delivery
// window.
type WorkerConfig struct {
	Count int `mapstructure:"count" validate:"required,gt=0"`

	// PollInterval is how long an idle worker sleeps between dequeue
	// attempts.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required"`

	// VisibilityTimeout is how long a claimed job stays invisible before
	// the queue redelivers it. Must exceed the slowest handler's
	// worst-case duration.
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout" validate:"required"`
}

// PipelineConfig tunes stage execution: leases, retries, deferrals, and
// per-host rate limiting.
type PipelineConfig struct {
	LockTTL          time.Duration `mapstructure:"lock_ttl"           validate:"required"`
	MaxAttempts      int           `mapstructure:"max_attempts"       validate:"required,gt=0"`
	RetryBackoffBase time.Duration `mapstructure:"retry_backoff_base" validate:"required"`
	RetryBackoffMax  time.Duration `mapstructure:"retry_backoff_max"  validate:"required"`
	DeferDelay       time.Duration `mapstructure:"defer_delay"        validate:"required"`
	StaggerDelay     time.Duration `mapstructure:"stagger_delay"      validate:"required"`
	RateMinInterval  time.Duration `mapstructure:"rate_min_interval"  validate:"required"`
	RateMaxWait      time.Duration `mapstructure:"rate_max_wait"      validate:"required"`
}

// ReconcilerConfig tunes the periodic backlog and due-source scans.
type ReconcilerConfig struct {
	Interval        time.Duration `mapstructure:"interval"          validate:"required"`
	GraceWindow     time.Duration `mapstructure:"grace_window"      validate:"required"`
	BatchSize       int           `mapstructure:"batch_size"        validate:"required,gt=0"`
	SourceBatchSize int           `mapstructure:"source_batch_size" validate:"required,gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey   string `mapstructure:"gemini_api_key"  validate:"required"`
	EmbeddingModel string `mapstructure:"embedding_model" validate:"required"`
}

// CrossRefConfig contains the reference API integration settings.
type CrossRefConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout"  validate:"required"`
}
