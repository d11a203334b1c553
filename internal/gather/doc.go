// Package gather implements the scatter-gather (fan-out/fan-in)
// synchronizer: N independent child jobs run in parallel and a single
// callback job is enqueued exactly once after all of them reach a
// terminal state.
package gather
