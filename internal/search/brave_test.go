package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseBraveResponse_Success(t *testing.T) {
	body := []byte(`{
		"query": {"original": "go concurrency"},
		"web": {"results": [
			{"title": "Go blog", "url": "https://go.dev/blog", "description": "posts"},
			{"title": "No URL but nested", "deep_results": {"url": "https://example.com/nested"}}
		]},
		"news": {"results": [
			{"title": "News item", "url": "https://news.example.com/a", "description": "fresh"}
		]}
	}`)

	parsed := parseBraveResponse(body, http.StatusOK)
	if parsed.kind != braveSuccess {
		t.Fatalf("kind = %v, want success (%s)", parsed.kind, parsed.errorMessage)
	}
	if len(parsed.results) != 3 {
		t.Fatalf("got %d results, want 3", len(parsed.results))
	}
	if parsed.results[0].URL != "https://go.dev/blog" {
		t.Errorf("first url = %q", parsed.results[0].URL)
	}
	if parsed.results[1].URL != "https://example.com/nested" {
		t.Errorf("nested url fallback = %q, want https://example.com/nested", parsed.results[1].URL)
	}
}

func TestParseBraveResponse_MetaURLFallback(t *testing.T) {
	body := []byte(`{"web": {"results": [
		{"title": "Meta only", "meta_url": {"scheme": "https", "netloc": "docs.example.com", "path": "/guide"}}
	]}}`)

	parsed := parseBraveResponse(body, http.StatusOK)
	if parsed.kind != braveSuccess {
		t.Fatalf("kind = %v, want success", parsed.kind)
	}
	if got := parsed.results[0].URL; got != "https://docs.example.com/guide" {
		t.Errorf("meta_url fallback = %q", got)
	}
}

func TestParseBraveResponse_RateLimit(t *testing.T) {
	body := []byte(`{"message": "Too many requests, rate limit exceeded"}`)
	if parsed := parseBraveResponse(body, http.StatusOK); parsed.kind != braveRateLimit {
		t.Errorf("body-detected kind = %v, want rate limit", parsed.kind)
	}
	if parsed := parseBraveResponse([]byte(`{"detail": "slow down"}`), http.StatusTooManyRequests); parsed.kind != braveRateLimit {
		t.Errorf("status-detected kind = %v, want rate limit", parsed.kind)
	}
}

func TestParseBraveResponse_AuthError(t *testing.T) {
	body := []byte(`{"error": "Invalid key supplied"}`)
	if parsed := parseBraveResponse(body, http.StatusOK); parsed.kind != braveAuthError {
		t.Errorf("body-detected kind = %v, want auth error", parsed.kind)
	}
	if parsed := parseBraveResponse([]byte(`{}`), http.StatusUnauthorized); parsed.kind != braveAuthError {
		t.Errorf("status-detected kind = %v, want auth error", parsed.kind)
	}
}

func TestParseBraveResponse_Unexpected(t *testing.T) {
	if parsed := parseBraveResponse([]byte(`not json`), http.StatusOK); parsed.kind != braveUnexpected {
		t.Errorf("kind = %v, want unexpected for invalid JSON", parsed.kind)
	}

	// Unknown shape with a salvageable list of result-like objects.
	body := []byte(`{"stuff": [{"title": "Salvaged", "url": "https://example.com/s"}]}`)
	parsed := parseBraveResponse(body, http.StatusOK)
	if parsed.kind != braveSuccess || len(parsed.results) != 1 {
		t.Errorf("salvage kind = %v results = %d, want success with 1", parsed.kind, len(parsed.results))
	}
}

func TestBraveProvider_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"web": {"results": [{"title": "Hit", "url": "https://example.com/hit", "description": "d"}]}}`))
	}))
	defer srv.Close()

	p := NewBraveProvider(5 * time.Second)
	creds := map[string]string{"api_key": "secret", "endpoint": srv.URL}

	items, err := p.Search(context.Background(), "query", creds, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 1 || items[0].URL != "https://example.com/hit" {
		t.Errorf("items = %+v", items)
	}
	if items[0].Provider != "brave" {
		t.Errorf("provider = %q, want brave", items[0].Provider)
	}

	_, err = p.Search(context.Background(), "query", map[string]string{"api_key": "wrong", "endpoint": srv.URL}, 5)
	if !errors.Is(err, ErrFatal) {
		t.Errorf("bad key error = %v, want ErrFatal", err)
	}

	_, err = p.Search(context.Background(), "query", map[string]string{"endpoint": srv.URL}, 5)
	if !errors.Is(err, ErrFatal) {
		t.Errorf("missing key error = %v, want ErrFatal", err)
	}
}
