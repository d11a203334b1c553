package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file in the working directory; env vars still win.
	v.SetConfigName("currents")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables use the CURRENTS_ prefix with underscores,
	// e.g. CURRENTS_DATABASE_URL, CURRENTS_PIPELINE_LOCK_TTL.
	v.SetEnvPrefix("CURRENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults must be bound explicitly for Unmarshal to
	// see their environment values.
	v.MustBindEnv("database.url")
	v.MustBindEnv("llm.gemini_api_key")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("worker.count", 4)
	v.SetDefault("worker.poll_interval", "500ms")
	v.SetDefault("worker.visibility_timeout", "5m")

	v.SetDefault("pipeline.lock_ttl", "2m")
	v.SetDefault("pipeline.max_attempts", 5)
	v.SetDefault("pipeline.retry_backoff_base", "10s")
	v.SetDefault("pipeline.retry_backoff_max", "10m")
	v.SetDefault("pipeline.defer_delay", "15s")
	v.SetDefault("pipeline.stagger_delay", "2s")
	v.SetDefault("pipeline.rate_min_interval", "1s")
	v.SetDefault("pipeline.rate_max_wait", "30s")

	v.SetDefault("reconciler.interval", "5m")
	v.SetDefault("reconciler.grace_window", "30m")
	v.SetDefault("reconciler.batch_size", 100)
	v.SetDefault("reconciler.source_batch_size", 50)

	v.SetDefault("llm.embedding_model", "gemini-embedding-001")

	v.SetDefault("crossref.base_url", "https://api.crossref.org")
	v.SetDefault("crossref.timeout", "20s")
}
