package content

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func imageServer(t *testing.T, status int, contentType string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNormalizeImage(t *testing.T) {
	ctx := context.Background()
	normalizer := NewHTTPImageNormalizer(nil)

	t.Run("reachable image succeeds", func(t *testing.T) {
		server := imageServer(t, http.StatusOK, "image/png")

		outcome := normalizer.NormalizeImage(ctx, nil, server.URL+"/a.png")
		assert.True(t, outcome.Success)
		assert.Equal(t, 1, outcome.Count)
	})

	t.Run("server error is transient", func(t *testing.T) {
		server := imageServer(t, http.StatusBadGateway, "")

		outcome := normalizer.NormalizeImage(ctx, nil, server.URL+"/a.png")
		assert.False(t, outcome.Success)
		assert.True(t, outcome.Retryable)
	})

	t.Run("client error is permanent", func(t *testing.T) {
		server := imageServer(t, http.StatusNotFound, "")

		outcome := normalizer.NormalizeImage(ctx, nil, server.URL+"/a.png")
		assert.False(t, outcome.Success)
		assert.False(t, outcome.Retryable)
	})

	t.Run("non-image content type is permanent", func(t *testing.T) {
		server := imageServer(t, http.StatusOK, "text/html")

		outcome := normalizer.NormalizeImage(ctx, nil, server.URL+"/a.png")
		assert.False(t, outcome.Success)
		assert.False(t, outcome.Retryable)
	})

	t.Run("unreachable host is transient", func(t *testing.T) {
		outcome := normalizer.NormalizeImage(ctx, nil, "http://127.0.0.1:1/a.png")
		assert.False(t, outcome.Success)
		assert.True(t, outcome.Retryable)
	})
}
