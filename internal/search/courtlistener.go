package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/livesearch-api/internal/models"
)

// CourtListenerProvider searches court opinions via the CourtListener REST
// API. Only dispatched for legal-looking queries; uses token auth. Result
// URLs are site-relative and get resolved against courtlistener.com.
type CourtListenerProvider struct {
	client   *http.Client
	endpoint string
}

func NewCourtListenerProvider(timeout time.Duration) *CourtListenerProvider {
	return &CourtListenerProvider{
		client:   newHTTPClient(timeout),
		endpoint: "https://www.courtlistener.com/api/rest/v4/search/",
	}
}

func (p *CourtListenerProvider) Name() string { return "courtlistener" }

func (p *CourtListenerProvider) Search(ctx context.Context, query string, creds map[string]string, limit int) ([]models.SearchResultItem, error) {
	key := creds["api_key"]
	if key == "" {
		return nil, fmt.Errorf("courtlistener api key missing: %w", ErrFatal)
	}
	endpoint := p.endpoint
	if override := creds["endpoint"]; override != "" {
		endpoint = override
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "o")
	params.Set("count", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build courtlistener request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+key)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("courtlistener request failed: %w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("courtlistener rate limited: %w", ErrTransient)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("courtlistener rejected the token (status %d): %w", resp.StatusCode, ErrFatal)
	default:
		return nil, fmt.Errorf("courtlistener returned status %d: %w", resp.StatusCode, ErrTransient)
	}

	var payload struct {
		Results []struct {
			AbsoluteURL string `json:"absolute_url"`
			CaseName    string `json:"caseName"`
			Snippet     string `json:"snippet"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode courtlistener response: %w", err)
	}

	items := make([]models.SearchResultItem, 0, len(payload.Results))
	for _, r := range payload.Results {
		u := r.AbsoluteURL
		if u == "" {
			continue
		}
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			u = "https://www.courtlistener.com" + u
		}
		items = append(items, models.SearchResultItem{
			URL:      u,
			Title:    r.CaseName,
			Snippet:  r.Snippet,
			Provider: p.Name(),
			Query:    query,
			Rank:     len(items) + 1,
		})
		if len(items) >= limit {
			break
		}
	}
	return items, nil
}
