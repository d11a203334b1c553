// Package crossref implements the pipeline.CrossReferencer interface
// against the Crossref REST API, linking articles to the scholarly works
// they reference.
package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/currents-app/currents/internal/domain"
	"github.com/currents-app/currents/internal/pipeline"
)

// Client queries the Crossref works endpoint for an item's title and
// reports how many references it could link.
type Client struct {
	baseURL string
	client  *http.Client
}

var _ pipeline.CrossReferencer = (*Client)(nil)

// NewClient creates a Client for the given API base URL. A nil HTTP
// client falls back to http.DefaultClient.
func NewClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
}

// worksResponse is the subset of the Crossref works payload we consume.
type worksResponse struct {
	Message struct {
		Items []struct {
			DOI string `json:"DOI"`
		} `json:"items"`
	} `json:"message"`
}

// CrossReference looks the item's title up in the reference API. An item
// without a title cannot be matched and fails permanently; network and
// server errors are transient.
func (c *Client) CrossReference(ctx context.Context, item *domain.ContentItem) pipeline.Outcome {
	if strings.TrimSpace(item.Title) == "" {
		return pipeline.Failed("item has no title to match references against", false)
	}

	query := url.Values{}
	query.Set("query.bibliographic", item.Title)
	query.Set("rows", "5")
	endpoint := fmt.Sprintf("%s/works?%s", c.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return pipeline.Failed(fmt.Sprintf("invalid reference query: %v", err), false)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return pipeline.Failed(fmt.Sprintf("failed to reach reference API: %v", err), true)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return pipeline.Failed(fmt.Sprintf("reference API returned status %d", resp.StatusCode), true)
	case resp.StatusCode != http.StatusOK:
		return pipeline.Failed(fmt.Sprintf("reference API returned status %d", resp.StatusCode), false)
	}

	var works worksResponse
	if err := json.NewDecoder(resp.Body).Decode(&works); err != nil {
		return pipeline.Failed(fmt.Sprintf("failed to parse reference API response: %v", err), false)
	}

	linked := 0
	for _, work := range works.Message.Items {
		if work.DOI != "" {
			linked++
		}
	}
	return pipeline.Succeeded(linked)
}
