package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Source.
var (
	ErrEmptySourceID      = errors.New("source ID cannot be empty")
	ErrEmptySourceOwnerID = errors.New("source owner ID cannot be empty")
	ErrEmptySourceFeedURL = errors.New("source feed URL cannot be empty")
	ErrInvalidPollInterval = errors.New("poll interval must be positive")
)

// Source is an origin items are ingested from: a subscribed feed.
type Source struct {
	ID                  uuid.UUID  `json:"id"`
	OwnerID             uuid.UUID  `json:"owner_id"`
	FeedURL             string     `json:"feed_url"`
	PollIntervalSeconds int        `json:"poll_interval_seconds"`
	LastPolledAt        *time.Time `json:"last_polled_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// NewSource creates a Source that has never been polled.
// Returns an error if validation fails.
func NewSource(ownerID uuid.UUID, feedURL string, pollIntervalSeconds int) (*Source, error) {
	now := time.Now().UTC()
	source := &Source{
		ID:                  uuid.New(),
		OwnerID:             ownerID,
		FeedURL:             feedURL,
		PollIntervalSeconds: pollIntervalSeconds,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := source.Validate(); err != nil {
		return nil, err
	}

	return source, nil
}

// Validate checks if the Source has valid data.
func (s *Source) Validate() error {
	if s.ID == uuid.Nil {
		return ErrEmptySourceID
	}
	if s.OwnerID == uuid.Nil {
		return ErrEmptySourceOwnerID
	}
	if s.FeedURL == "" {
		return ErrEmptySourceFeedURL
	}
	if s.PollIntervalSeconds <= 0 {
		return ErrInvalidPollInterval
	}
	return nil
}

// DueAt returns the earliest time the source should be polled next.
// A source that has never been polled is due immediately.
func (s *Source) DueAt() time.Time {
	if s.LastPolledAt == nil {
		return s.CreatedAt
	}
	return s.LastPolledAt.Add(time.Duration(s.PollIntervalSeconds) * time.Second)
}

// IsDue reports whether the source should be polled at the given instant.
func (s *Source) IsDue(now time.Time) bool {
	return !now.Before(s.DueAt())
}

// MarkPolled records a completed poll, pushing the next due time forward.
func (s *Source) MarkPolled(now time.Time) {
	polled := now.UTC()
	s.LastPolledAt = &polled
	s.UpdatedAt = polled
}
