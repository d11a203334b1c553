// Package main implements the entry point for the Currents ingestion
// server, which polls subscribed feeds and drives every ingested article
// through the normalize, embed, and cross-reference pipeline stages.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/currents-app/currents/internal/config"
	"github.com/currents-app/currents/internal/platform/logger"
	"github.com/currents-app/currents/internal/platform/postgres"
)

// main is the entry point for the currents server.
// It initializes configuration, sets up logging, establishes the
// database connection, applies migrations, injects dependencies, and
// starts the worker pool, the reconciler, and the HTTP server.
func main() {
	ctx := context.Background()

	cfg, appLogger, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	db, err := setupAppDatabase(cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := postgres.Migrate(db); err != nil {
		log.Fatalf("Failed to apply database migrations: %v", err)
	}

	app, err := newApplication(ctx, cfg, appLogger, db)
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// initializeApp loads configuration and sets up logging.
// Returns the loaded config, the application logger, and any
// initialization error.
func initializeApp() (*config.Config, *slog.Logger, error) {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Set up structured logging using the configured log level
	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	// Log configuration details using structured logging
	slog.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"worker_count", cfg.Worker.Count)

	return cfg, appLogger, nil
}
