// Package events defines the stage attempt event emitted once per
// pipeline stage attempt, and the emitter/handler plumbing that carries
// it to observability consumers.
package events
