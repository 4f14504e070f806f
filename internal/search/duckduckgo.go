package search

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/livesearch-api/internal/models"
)

// DuckDuckGo has no API key; results come from the HTML endpoint. Result links
// are redirect URLs carrying the target in the uddg query parameter.
type DuckDuckGoProvider struct {
	client   *http.Client
	endpoint string
}

func NewDuckDuckGoProvider(timeout time.Duration) *DuckDuckGoProvider {
	return &DuckDuckGoProvider{
		client:   newHTTPClient(timeout),
		endpoint: "https://html.duckduckgo.com/html/",
	}
}

func (p *DuckDuckGoProvider) Name() string { return "duckduckgo" }

func (p *DuckDuckGoProvider) Search(ctx context.Context, query string, creds map[string]string, limit int) ([]models.SearchResultItem, error) {
	endpoint := p.endpoint
	if override := creds["endpoint"]; override != "" {
		endpoint = override
	}

	form := url.Values{}
	form.Set("q", query)
	form.Set("kl", "us-en")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build duckduckgo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request failed: %w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("duckduckgo blocked the request (status %d): %w", resp.StatusCode, ErrTransient)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned status %d: %w", resp.StatusCode, ErrTransient)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duckduckgo response: %w", err)
	}

	var items []models.SearchResultItem
	doc.Find("div.result").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if len(items) >= limit {
			return false
		}
		link := sel.Find("a.result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		target := resolveDDGRedirect(href)
		if target == "" {
			return true
		}
		items = append(items, models.SearchResultItem{
			URL:      target,
			Title:    strings.TrimSpace(link.Text()),
			Snippet:  strings.TrimSpace(sel.Find(".result__snippet").First().Text()),
			Provider: p.Name(),
			Query:    query,
			Rank:     len(items) + 1,
		})
		return true
	})
	return items, nil
}

// resolveDDGRedirect unwraps /l/?uddg=<escaped url> links. Direct URLs pass
// through untouched.
func resolveDDGRedirect(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		u, err := url.Parse(href)
		if err != nil {
			return ""
		}
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
		return href
	}
	// Relative redirect form: //duckduckgo.com/l/?uddg=... or /l/?uddg=...
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return ""
}
