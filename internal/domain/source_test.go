package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSource(t *testing.T) {
	t.Run("valid source", func(t *testing.T) {
		source, err := NewSource(uuid.New(), "https://example.com/feed.xml", 900)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, source.ID)
		assert.Nil(t, source.LastPolledAt)
	})

	t.Run("rejects non-positive poll interval", func(t *testing.T) {
		_, err := NewSource(uuid.New(), "https://example.com/feed.xml", 0)
		assert.ErrorIs(t, err, ErrInvalidPollInterval)
	})

	t.Run("rejects empty feed URL", func(t *testing.T) {
		_, err := NewSource(uuid.New(), "", 900)
		assert.ErrorIs(t, err, ErrEmptySourceFeedURL)
	})
}

func TestSourceDue(t *testing.T) {
	t.Run("never polled source is due immediately", func(t *testing.T) {
		source, err := NewSource(uuid.New(), "https://example.com/feed.xml", 900)
		require.NoError(t, err)

		assert.True(t, source.IsDue(time.Now()))
		assert.Equal(t, source.CreatedAt, source.DueAt())
	})

	t.Run("polled source is due one interval later", func(t *testing.T) {
		source, err := NewSource(uuid.New(), "https://example.com/feed.xml", 900)
		require.NoError(t, err)

		polledAt := time.Now()
		source.MarkPolled(polledAt)

		assert.False(t, source.IsDue(polledAt.Add(899*time.Second)))
		assert.True(t, source.IsDue(polledAt.Add(900*time.Second)))
	})

	t.Run("mark polled advances last polled time", func(t *testing.T) {
		source, err := NewSource(uuid.New(), "https://example.com/feed.xml", 60)
		require.NoError(t, err)

		now := time.Now()
		source.MarkPolled(now)

		require.NotNil(t, source.LastPolledAt)
		assert.WithinDuration(t, now.UTC(), *source.LastPolledAt, time.Second)
	})
}
