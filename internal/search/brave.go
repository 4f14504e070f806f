package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/livesearch-api/internal/models"
)

// BraveProvider queries the Brave Search REST API. Brave responses vary
// considerably in shape, so decoding goes through a tolerant parser that
// classifies each response before extracting results.
type BraveProvider struct {
	client   *http.Client
	endpoint string
}

func NewBraveProvider(timeout time.Duration) *BraveProvider {
	return &BraveProvider{
		client:   newHTTPClient(timeout),
		endpoint: "https://api.search.brave.com/res/v1/web/search",
	}
}

func (p *BraveProvider) Name() string { return "brave" }

func (p *BraveProvider) Search(ctx context.Context, query string, creds map[string]string, limit int) ([]models.SearchResultItem, error) {
	key := creds["api_key"]
	if key == "" {
		return nil, fmt.Errorf("brave api key missing: %w", ErrFatal)
	}
	endpoint := p.endpoint
	if override := creds["endpoint"]; override != "" {
		endpoint = override
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(limit))
	params.Set("search_lang", "en")
	params.Set("country", "us")
	params.Set("safesearch", "moderate")
	params.Set("spellcheck", "1")
	params.Set("result_filter", "web,news")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build brave request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", key)
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave request failed: %w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read brave response: %w", err)
	}

	parsed := parseBraveResponse(body, resp.StatusCode)
	switch parsed.kind {
	case braveSuccess:
		items := make([]models.SearchResultItem, 0, len(parsed.results))
		for _, r := range parsed.results {
			if r.URL == "" {
				continue
			}
			items = append(items, models.SearchResultItem{
				URL:      r.URL,
				Title:    r.Title,
				Snippet:  r.Description,
				Provider: p.Name(),
				Query:    query,
				Rank:     len(items) + 1,
			})
			if len(items) >= limit {
				break
			}
		}
		return items, nil
	case braveRateLimit:
		return nil, fmt.Errorf("brave rate limited: %s: %w", parsed.errorMessage, ErrTransient)
	case braveAuthError:
		return nil, fmt.Errorf("brave authentication failed: %s: %w", parsed.errorMessage, ErrFatal)
	default:
		return nil, fmt.Errorf("brave api error: %s", parsed.errorMessage)
	}
}

type braveResponseKind int

const (
	braveSuccess braveResponseKind = iota
	braveError
	braveRateLimit
	braveAuthError
	braveUnexpected
)

type braveResult struct {
	Title       string
	URL         string
	Description string
}

type braveParsed struct {
	kind         braveResponseKind
	results      []braveResult
	errorMessage string
}

var braveResultSections = []string{"web", "news", "videos", "discussions", "faq"}

var braveErrorKeys = []string{"error", "errors", "message", "detail", "error_code", "error_message", "status_code"}

// parseBraveResponse classifies a Brave API payload. HTTP status wins when it
// indicates a failure; otherwise the body structure decides.
func parseBraveResponse(body []byte, statusCode int) braveParsed {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil || data == nil {
		return braveParsed{kind: braveUnexpected, errorMessage: "response is not a JSON object"}
	}

	if statusCode >= 400 {
		msg := braveErrorMessage(data)
		switch {
		case statusCode == http.StatusTooManyRequests:
			return braveParsed{kind: braveRateLimit, errorMessage: msg}
		case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
			return braveParsed{kind: braveAuthError, errorMessage: msg}
		default:
			return braveParsed{kind: braveError, errorMessage: fmt.Sprintf("http %d: %s", statusCode, msg)}
		}
	}

	for _, key := range braveErrorKeys {
		if v, ok := data[key]; ok {
			content := strings.ToLower(fmt.Sprint(v))
			switch {
			case strings.Contains(content, "rate limit") || strings.Contains(content, "too many requests") || strings.Contains(content, "429"):
				return braveParsed{kind: braveRateLimit, errorMessage: braveErrorMessage(data)}
			case strings.Contains(content, "unauthorized") || strings.Contains(content, "invalid key") ||
				strings.Contains(content, "authentication") || strings.Contains(content, "401") || strings.Contains(content, "403"):
				return braveParsed{kind: braveAuthError, errorMessage: braveErrorMessage(data)}
			default:
				return braveParsed{kind: braveError, errorMessage: braveErrorMessage(data)}
			}
		}
	}

	results := extractBraveResults(data)
	if len(results) > 0 {
		return braveParsed{kind: braveSuccess, results: results}
	}
	for _, key := range braveResultSections {
		if _, ok := data[key]; ok {
			// Recognized search response that happens to carry no results.
			return braveParsed{kind: braveSuccess}
		}
	}
	if t, _ := data["type"].(string); strings.EqualFold(t, "search") {
		return braveParsed{kind: braveSuccess}
	}

	// Unknown shape: salvage anything list-like that looks like results.
	var salvaged []braveResult
	for _, v := range data {
		list, ok := v.([]any)
		if !ok || len(list) == 0 {
			continue
		}
		if first, ok := list[0].(map[string]any); ok {
			if _, hasTitle := first["title"]; hasTitle {
				salvaged = append(salvaged, normalizeBraveList(list)...)
			} else if _, hasURL := first["url"]; hasURL {
				salvaged = append(salvaged, normalizeBraveList(list)...)
			}
		}
	}
	if len(salvaged) > 0 {
		return braveParsed{kind: braveSuccess, results: salvaged}
	}
	return braveParsed{kind: braveUnexpected, errorMessage: "unexpected response structure"}
}

func extractBraveResults(data map[string]any) []braveResult {
	var out []braveResult
	for _, section := range braveResultSections {
		sec, ok := data[section].(map[string]any)
		if !ok {
			continue
		}
		if list, ok := sec["results"].([]any); ok {
			out = append(out, normalizeBraveList(list)...)
		}
	}
	if list, ok := data["results"].([]any); ok {
		out = append(out, normalizeBraveList(list)...)
	}
	return out
}

func normalizeBraveList(list []any) []braveResult {
	var out []braveResult
	for _, raw := range list {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		r := braveResult{
			Title:       strings.TrimSpace(stringField(item, "title")),
			URL:         extractBraveURL(item),
			Description: strings.TrimSpace(stringField(item, "description")),
		}
		if r.Title != "" || r.URL != "" {
			out = append(out, r)
		}
	}
	return out
}

// extractBraveURL walks the fallback chain Brave results need: a direct url
// field, then meta_url components, then data_providers, then any nested
// object with a url, then the profile block.
func extractBraveURL(item map[string]any) string {
	if u := strings.TrimSpace(stringField(item, "url")); u != "" {
		return u
	}
	if meta, ok := item["meta_url"].(map[string]any); ok {
		scheme := stringField(meta, "scheme")
		netloc := stringField(meta, "netloc")
		if scheme != "" && netloc != "" {
			return scheme + "://" + netloc + stringField(meta, "path")
		}
	}
	if dps, ok := item["data_providers"].([]any); ok {
		for _, raw := range dps {
			if dp, ok := raw.(map[string]any); ok {
				if u := strings.TrimSpace(stringField(dp, "url")); u != "" {
					return u
				}
			}
		}
	}
	for key, v := range item {
		if key == "profile" {
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			if u := strings.TrimSpace(stringField(nested, "url")); u != "" {
				return u
			}
		}
	}
	if profile, ok := item["profile"].(map[string]any); ok {
		if u := strings.TrimSpace(stringField(profile, "url")); u != "" {
			return u
		}
	}
	return ""
}

func braveErrorMessage(data map[string]any) string {
	for _, field := range []string{"error_message", "message", "detail", "error", "errors", "title"} {
		v, ok := data[field]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			return val
		case []any:
			if len(val) > 0 {
				return fmt.Sprint(val[0])
			}
		case map[string]any:
			b, _ := json.Marshal(val)
			return string(b)
		}
	}
	if status, ok := data["status"].(map[string]any); ok {
		if msg := stringField(status, "error_message"); msg != "" {
			return msg
		}
	}
	return "unknown error"
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
