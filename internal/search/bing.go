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

// BingProvider queries the Bing Web Search v7 API.
type BingProvider struct {
	client   *http.Client
	endpoint string
}

func NewBingProvider(timeout time.Duration) *BingProvider {
	return &BingProvider{
		client:   newHTTPClient(timeout),
		endpoint: "https://api.bing.microsoft.com/v7.0/search",
	}
}

func (p *BingProvider) Name() string { return "bing" }

func (p *BingProvider) Search(ctx context.Context, query string, creds map[string]string, limit int) ([]models.SearchResultItem, error) {
	key := creds["api_key"]
	if key == "" {
		return nil, fmt.Errorf("bing api key missing: %w", ErrFatal)
	}
	endpoint := p.endpoint
	if override := creds["endpoint"]; override != "" {
		endpoint = override
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(limit))
	params.Set("mkt", "en-US")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build bing request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", key)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bing request failed: %w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("bing rate limited: %w", ErrTransient)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("bing rejected the subscription key (status %d): %w", resp.StatusCode, ErrFatal)
	default:
		return nil, fmt.Errorf("bing returned status %d: %w", resp.StatusCode, ErrTransient)
	}

	var payload struct {
		WebPages struct {
			Value []struct {
				URL     string `json:"url"`
				Name    string `json:"name"`
				Snippet string `json:"snippet"`
			} `json:"value"`
		} `json:"webPages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode bing response: %w", err)
	}

	items := make([]models.SearchResultItem, 0, len(payload.WebPages.Value))
	for _, it := range payload.WebPages.Value {
		if it.URL == "" {
			continue
		}
		items = append(items, models.SearchResultItem{
			URL:      it.URL,
			Title:    it.Name,
			Snippet:  it.Snippet,
			Provider: p.Name(),
			Query:    query,
			Rank:     len(items) + 1,
		})
	}
	return items, nil
}
