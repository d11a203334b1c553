package logger

import (
	"context"
	"log/slog"
)

// contextKey is an unexported type for context keys defined by this
// package, preventing collisions with keys from other packages.
type contextKey int

// loggerKey is the context key under which a request-scoped logger is
// stored.
const loggerKey contextKey = iota

// WithLogger returns a copy of ctx carrying the given logger. Handlers
// and middleware use this to propagate a logger enriched with
// request-scoped attributes (trace ID, worker ID) down the call chain.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored in ctx, falling back to the
// process default when none is set. It never returns nil.
func FromContext(ctx context.Context) *slog.Logger {
	return FromContextOrDefault(ctx, slog.Default())
}

// FromContextOrDefault returns the logger stored in ctx, or the given
// default when none is set.
func FromContextOrDefault(ctx context.Context, def *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return def
}
