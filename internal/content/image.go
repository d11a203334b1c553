package content

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/currents-app/currents/internal/domain"
	"github.com/currents-app/currents/internal/pipeline"
)

// HTTPImageNormalizer validates a single image reference by probing it
// over HTTP. A reachable resource with an image content type succeeds;
// client errors are permanent, network and server errors are transient.
type HTTPImageNormalizer struct {
	client *http.Client
}

var _ pipeline.ImageNormalizer = (*HTTPImageNormalizer)(nil)

// NewHTTPImageNormalizer creates an image normalizer using the given
// HTTP client. A nil client falls back to http.DefaultClient.
func NewHTTPImageNormalizer(client *http.Client) *HTTPImageNormalizer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPImageNormalizer{client: client}
}

// NormalizeImage probes imageURL with a HEAD request.
func (n *HTTPImageNormalizer) NormalizeImage(ctx context.Context, _ *domain.ContentItem, imageURL string) pipeline.Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, imageURL, nil)
	if err != nil {
		return pipeline.Failed(fmt.Sprintf("invalid image URL: %v", err), false)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return pipeline.Failed(fmt.Sprintf("failed to reach image: %v", err), true)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500:
		return pipeline.Failed(fmt.Sprintf("image host returned status %d", resp.StatusCode), true)
	case resp.StatusCode >= 400:
		return pipeline.Failed(fmt.Sprintf("image host returned status %d", resp.StatusCode), false)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return pipeline.Failed(fmt.Sprintf("resource is not an image: %s", contentType), false)
	}
	return pipeline.Succeeded(1)
}
