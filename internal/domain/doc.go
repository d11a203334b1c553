// Package domain contains the core entities of the ingestion pipeline:
// content items with their per-stage tri-state flags, feed sources with
// poll scheduling, and the stage ordering rules that make every pipeline
// step safely re-entrant.
package domain
