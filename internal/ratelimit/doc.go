// Package ratelimit throttles outbound requests per remote host with a
// minimum-interval-since-last-grant policy and a bounded wait.
package ratelimit
