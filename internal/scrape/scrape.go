// Package scrape turns URLs into clean text. Ordinary pages go through an
// isolated crawler subprocess; academic publishers, DOI links and PDFs each
// get their own strategy.
package scrape

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/livesearch-api/internal/config"
	"github.com/jmylchreest/livesearch-api/internal/models"
)

// Page is the outcome of scraping one URL. Error is non-empty when the fetch
// failed; partial results still carry whatever was recovered.
type Page struct {
	URL        string                 `json:"url"`
	Title      string                 `json:"title,omitempty"`
	Content    string                 `json:"content,omitempty"`
	Links      []models.ExtractedLink `json:"links,omitempty"`
	SourceInfo map[string]any         `json:"source_info,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// Scraper dispatches URLs to the right fetch strategy and bounds concurrency.
type Scraper struct {
	cfg      *config.Config
	runner   *Runner
	academic *AcademicHandler
	client   *http.Client
	logger   *slog.Logger
}

func NewScraper(cfg *config.Config, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scrape")
	client := &http.Client{Timeout: 30 * time.Second}
	return &Scraper{
		cfg:      cfg,
		runner:   NewRunner(cfg, logger),
		academic: NewAcademicHandler(client, logger),
		client:   client,
		logger:   logger,
	}
}

// ScrapeURL fetches one URL. DOI links are resolved to their landing page
// first; academic publishers go through the strategy table; PDFs get text
// extraction; everything else runs through the crawler subprocess.
func (s *Scraper) ScrapeURL(ctx context.Context, target string, result models.SearchResultItem) Page {
	if host := hostOf(target); strings.Contains(host, "doi.org") {
		if resolved := s.resolveDOI(ctx, target); resolved != "" && resolved != target {
			s.logger.Debug("resolved doi", "from", target, "to", resolved)
			target = resolved
		}
	}

	if s.academic.IsAcademicSite(target) {
		return s.academic.Handle(ctx, target, result.Snippet, result.Title)
	}
	if isPDFURL(target) {
		return s.scrapePDF(ctx, target)
	}
	return s.runner.Run(ctx, target)
}

// ScrapeAll fetches a batch of URLs with bounded concurrency. Results keep
// the input order.
func (s *Scraper) ScrapeAll(ctx context.Context, items []models.SearchResultItem) []Page {
	pages := make([]Page, len(items))
	sem := make(chan struct{}, s.cfg.ScrapeConcurrency)
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item models.SearchResultItem) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				pages[i] = Page{URL: item.URL, Error: "cancelled"}
				return
			}
			pages[i] = s.ScrapeURL(ctx, item.URL, item)
		}(i, item)
	}
	wg.Wait()
	return pages
}

// resolveDOI follows redirects with a HEAD request and reports the landing
// page URL. Failures leave the original URL in place.
func (s *Scraper) resolveDOI(ctx context.Context, target string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", genericUserAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return ""
	}
	resp.Body.Close()
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	return ""
}

const genericUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func isPDFURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}
