package content

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"

	"github.com/currents-app/currents/internal/pipeline"
)

// HTTPFeedFetcher retrieves RSS 2.0 and Atom feeds over HTTP and parses
// them into pipeline feed entries.
type HTTPFeedFetcher struct {
	client *http.Client
}

var _ pipeline.FeedFetcher = (*HTTPFeedFetcher)(nil)

// NewHTTPFeedFetcher creates a fetcher using the given HTTP client.
// A nil client falls back to http.DefaultClient.
func NewHTTPFeedFetcher(client *http.Client) *HTTPFeedFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFeedFetcher{client: client}
}

// FetchFeed retrieves and parses the feed at feedURL.
func (f *HTTPFeedFetcher) FetchFeed(ctx context.Context, feedURL string) ([]pipeline.FeedEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed fetch returned status %d", resp.StatusCode)
	}

	var doc feedDocument
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return doc.entries(), nil
}

// feedDocument covers both RSS 2.0 (<rss><channel><item>) and Atom
// (<feed><entry>) in one shape; only one branch is populated per feed.
type feedDocument struct {
	XMLName xml.Name
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	Entries []atomEntry `xml:"entry"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
}

type atomEntry struct {
	Title string `xml:"title"`
	Links []struct {
		Rel  string `xml:"rel,attr"`
		Href string `xml:"href,attr"`
	} `xml:"link"`
	Content string `xml:"content"`
	Summary string `xml:"summary"`
}

func (d *feedDocument) entries() []pipeline.FeedEntry {
	var entries []pipeline.FeedEntry
	for _, item := range d.Channel.Items {
		if item.Link == "" {
			continue
		}
		entries = append(entries, pipeline.FeedEntry{
			URL:   item.Link,
			Title: item.Title,
			Body:  item.Description,
		})
	}
	for _, entry := range d.Entries {
		url := ""
		for _, link := range entry.Links {
			if link.Rel == "" || link.Rel == "alternate" {
				url = link.Href
				break
			}
		}
		if url == "" {
			continue
		}
		body := entry.Content
		if body == "" {
			body = entry.Summary
		}
		entries = append(entries, pipeline.FeedEntry{
			URL:   url,
			Title: entry.Title,
			Body:  body,
		})
	}
	return entries
}
