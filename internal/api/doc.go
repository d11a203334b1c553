// Package api exposes the HTTP surface for managing sources and content
// items: registering feeds, triggering polls, and inspecting or reprocessing
// individual items. Handlers validate input, call the pipeline triggers and
// stores, and translate errors into sanitized JSON responses.
package api
