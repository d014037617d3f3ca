package expand

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Result is one web search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher runs web searches.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// SearxSearcher queries the JSON API of a SearXNG instance.
type SearxSearcher struct {
	baseURL string
	client  *http.Client
}

// NewSearxSearcher returns a searcher for the instance at baseURL, e.g.
// "http://searxng:8080". A nil client uses one with a 15 second timeout.
func NewSearxSearcher(baseURL string, client *http.Client) *SearxSearcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &SearxSearcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Search returns up to limit results with distinct URLs in ranking order.
func (s *SearxSearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("search response is not valid json")
	}

	var out []Result
	seen := make(map[string]struct{})
	gjson.GetBytes(data, "results").ForEach(func(_, item gjson.Result) bool {
		u := strings.TrimSpace(item.Get("url").String())
		if u == "" {
			return true
		}
		if _, dup := seen[u]; dup {
			return true
		}
		seen[u] = struct{}{}
		out = append(out, Result{
			Title:   item.Get("title").String(),
			URL:     u,
			Snippet: item.Get("content").String(),
		})
		return limit <= 0 || len(out) < limit
	})

	return out, nil
}
