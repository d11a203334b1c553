// Package logger sets up structured JSON logging on top of log/slog with a
// configurable level, and carries loggers through contexts so background
// workers and stores share the request's attributes.
package logger
