package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jmylchreest/livesearch-api/internal/models"
)

// GoogleCustomSearchProvider queries the Programmable Search Engine JSON API.
// Requires both an API key and a search engine id (cx).
type GoogleCustomSearchProvider struct {
	client   *http.Client
	endpoint string
}

func NewGoogleCustomSearchProvider(timeout time.Duration) *GoogleCustomSearchProvider {
	return &GoogleCustomSearchProvider{
		client:   newHTTPClient(timeout),
		endpoint: "https://www.googleapis.com/customsearch/v1",
	}
}

func (p *GoogleCustomSearchProvider) Name() string { return "google_custom_search" }

func (p *GoogleCustomSearchProvider) Search(ctx context.Context, query string, creds map[string]string, limit int) ([]models.SearchResultItem, error) {
	key := creds["api_key"]
	cx := creds["cx"]
	if key == "" || cx == "" {
		return nil, fmt.Errorf("google custom search credentials missing: %w", ErrFatal)
	}
	endpoint := p.endpoint
	if override := creds["endpoint"]; override != "" {
		endpoint = override
	}
	if limit > 10 {
		limit = 10 // API maximum per request
	}

	params := url.Values{}
	params.Set("key", key)
	params.Set("cx", cx)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build google request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google request failed: %w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("google quota exhausted: %w", ErrTransient)
	case http.StatusForbidden, http.StatusUnauthorized, http.StatusBadRequest:
		return nil, fmt.Errorf("google rejected the request (status %d): %w", resp.StatusCode, ErrFatal)
	default:
		return nil, fmt.Errorf("google returned status %d: %w", resp.StatusCode, ErrTransient)
	}

	var payload struct {
		Items []struct {
			Link    string `json:"link"`
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode google response: %w", err)
	}

	items := make([]models.SearchResultItem, 0, len(payload.Items))
	for _, it := range payload.Items {
		if it.Link == "" {
			continue
		}
		items = append(items, models.SearchResultItem{
			URL:      it.Link,
			Title:    it.Title,
			Snippet:  it.Snippet,
			Provider: p.Name(),
			Query:    query,
			Rank:     len(items) + 1,
		})
	}
	return items, nil
}
