package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jmylchreest/livesearch-api/internal/models"
)

// WikipediaProvider looks up the English Wikipedia page matching a simplified
// keyword query. At most one result: the page summary, trimmed. A missing page
// is an empty result, not an error.
type WikipediaProvider struct {
	client   *http.Client
	endpoint string
}

const wikipediaSummaryLimit = 3000

func NewWikipediaProvider(timeout time.Duration) *WikipediaProvider {
	return &WikipediaProvider{
		client:   newHTTPClient(timeout),
		endpoint: "https://en.wikipedia.org/api/rest_v1/page/summary",
	}
}

func (p *WikipediaProvider) Name() string { return "wikipedia" }

func (p *WikipediaProvider) Search(ctx context.Context, query string, creds map[string]string, limit int) ([]models.SearchResultItem, error) {
	if query == "" {
		return nil, nil
	}
	endpoint := p.endpoint
	if override := creds["endpoint"]; override != "" {
		endpoint = override
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/"+url.PathEscape(query), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build wikipedia request: %w", err)
	}
	req.Header.Set("User-Agent", "livesearch-api/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wikipedia request failed: %w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("wikipedia rate limited: %w", ErrTransient)
	default:
		return nil, fmt.Errorf("wikipedia returned status %d: %w", resp.StatusCode, ErrTransient)
	}

	var payload struct {
		Title       string `json:"title"`
		Extract     string `json:"extract"`
		ContentURLs struct {
			Desktop struct {
				Page string `json:"page"`
			} `json:"desktop"`
		} `json:"content_urls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode wikipedia response: %w", err)
	}
	if payload.ContentURLs.Desktop.Page == "" {
		return nil, nil
	}

	summary := payload.Extract
	if len(summary) > wikipediaSummaryLimit {
		summary = summary[:wikipediaSummaryLimit]
	}
	return []models.SearchResultItem{{
		URL:      payload.ContentURLs.Desktop.Page,
		Title:    payload.Title,
		Snippet:  summary,
		Provider: p.Name(),
		Query:    query,
		Rank:     1,
	}}, nil
}
