// Package job wraps the durable job queue the pipeline runs on: the
// closed set of job kinds with their versioned payload shapes, the queue
// contract (at-least-once delivery, priority and delay aware, automatic
// redelivery of timed-out claims, dedupe-keyed refresh of pending jobs),
// and the worker pool that dispatches dequeued jobs to per-kind handlers.
package job
