// Package search dispatches research queries to external search providers and
// aggregates their results with per-domain trust scoring.
package search

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jmylchreest/livesearch-api/internal/models"
)

// Error classifications used to decide ignore-list durations. Transient
// failures get a short mark, fatal ones a long mark.
var (
	ErrTransient = errors.New("transient provider error")
	ErrFatal     = errors.New("fatal provider error")
)

// Provider is a single search backend. Search returns provider-ranked result
// items; errors should wrap ErrTransient or ErrFatal so the dispatcher can
// pick an ignore duration.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, creds map[string]string, limit int) ([]models.SearchResultItem, error)
}

// General-web providers eligible for fact-check passes. Reference providers
// (wikipedia, openalex, courtlistener) are excluded there because claims need
// verification against the open web.
var generalWebProviders = map[string]bool{
	"duckduckgo":           true,
	"brave":                true,
	"google_custom_search": true,
	"bing":                 true,
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// rotating desktop user agents, shared by providers that scrape HTML surfaces.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:89.0) Gecko/20100101 Firefox/89.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:89.0) Gecko/20100101 Firefox/89.0",
}
