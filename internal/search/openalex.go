package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/livesearch-api/internal/models"
)

// OpenAlexProvider searches the OpenAlex scholarly works API. No key needed.
// Abstracts arrive as an inverted index and are reconstructed into text.
type OpenAlexProvider struct {
	client   *http.Client
	endpoint string
}

func NewOpenAlexProvider(timeout time.Duration) *OpenAlexProvider {
	return &OpenAlexProvider{
		client:   newHTTPClient(timeout),
		endpoint: "https://api.openalex.org/works",
	}
}

func (p *OpenAlexProvider) Name() string { return "openalex" }

func (p *OpenAlexProvider) Search(ctx context.Context, query string, creds map[string]string, limit int) ([]models.SearchResultItem, error) {
	if query == "" {
		return nil, nil
	}
	endpoint := p.endpoint
	if override := creds["endpoint"]; override != "" {
		endpoint = override
	}
	perPage := limit
	if perPage < 1 {
		perPage = 1
	}
	if perPage > 50 {
		perPage = 50
	}

	params := url.Values{}
	params.Set("search", query)
	params.Set("page", "1")
	params.Set("per-page", strconv.Itoa(perPage))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build openalex request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openalex request failed: %w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("openalex rate limited: %w", ErrTransient)
	default:
		return nil, fmt.Errorf("openalex returned status %d: %w", resp.StatusCode, ErrTransient)
	}

	var payload struct {
		Results []struct {
			ID                    string           `json:"id"`
			Title                 string           `json:"title"`
			DOI                   string           `json:"doi"`
			PublicationYear       int              `json:"publication_year"`
			AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
			PrimaryLocation       *struct {
				LandingPageURL string `json:"landing_page_url"`
				PDFURL         string `json:"pdf_url"`
				IsOA           bool   `json:"is_oa"`
				Source         *struct {
					DisplayName string `json:"display_name"`
				} `json:"source"`
			} `json:"primary_location"`
			Authorships []struct {
				Author struct {
					DisplayName string `json:"display_name"`
				} `json:"author"`
			} `json:"authorships"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode openalex response: %w", err)
	}

	items := make([]models.SearchResultItem, 0, len(payload.Results))
	for _, work := range payload.Results {
		if len(items) >= limit {
			break
		}
		bestURL := ""
		venue := ""
		if loc := work.PrimaryLocation; loc != nil {
			bestURL = loc.LandingPageURL
			if bestURL == "" && loc.IsOA {
				bestURL = loc.PDFURL
			}
			if loc.Source != nil {
				venue = loc.Source.DisplayName
			}
		}
		if bestURL == "" {
			bestURL = work.ID
		}
		if bestURL == "" {
			continue
		}

		var authors []string
		for _, a := range work.Authorships {
			if a.Author.DisplayName != "" {
				authors = append(authors, a.Author.DisplayName)
			}
			if len(authors) == 5 {
				break
			}
		}

		items = append(items, models.SearchResultItem{
			URL:      bestURL,
			Title:    work.Title,
			Snippet:  reconstructAbstract(work.AbstractInvertedIndex),
			Provider: p.Name(),
			Query:    query,
			Rank:     len(items) + 1,
			SourceInfo: map[string]any{
				"authors": authors,
				"venue":   venue,
				"year":    work.PublicationYear,
				"doi":     work.DOI,
			},
		})
	}
	return items, nil
}

// reconstructAbstract rebuilds abstract text from OpenAlex's inverted index,
// ordering words by their first occurrence position.
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	type wordPos struct {
		word string
		pos  int
	}
	ordered := make([]wordPos, 0, len(index))
	for word, positions := range index {
		if len(positions) == 0 {
			continue
		}
		ordered = append(ordered, wordPos{word: word, pos: positions[0]})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].pos < ordered[j].pos })

	words := make([]string, len(ordered))
	for i, wp := range ordered {
		words[i] = wp.word
	}
	return strings.Join(words, " ")
}
