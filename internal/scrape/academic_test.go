package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIsAcademicSite(t *testing.T) {
	h := NewAcademicHandler(http.DefaultClient, nil)
	tests := []struct {
		url  string
		want bool
	}{
		{"https://arxiv.org/abs/2401.00001", true},
		{"https://www.sciencedirect.com/science/article/pii/S1", true},
		{"https://ieeexplore.ieee.org/document/123", true},
		{"https://doi.org/10.1000/xyz", true},
		{"https://example.com/paper.html", false},
		{"https://blog.sciencedirect.example.com/post", false},
	}
	for _, tt := range tests {
		if got := h.IsAcademicSite(tt.url); got != tt.want {
			t.Errorf("IsAcademicSite(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestHandle_SnippetOnlyStrategy(t *testing.T) {
	h := NewAcademicHandler(http.DefaultClient, nil)

	page := h.Handle(context.Background(), "https://scholar.google.com/citations?view=1", "Key finding about X.", "A Study of X")
	if page.Error != "" {
		t.Fatalf("unexpected error: %s", page.Error)
	}
	if !strings.Contains(page.Content, "Key finding about X.") {
		t.Errorf("snippet missing from content: %q", page.Content)
	}
	if !strings.Contains(page.Content, "Google Scholar") {
		t.Errorf("site name missing from content: %q", page.Content)
	}
	if src, _ := page.SourceInfo["content_source"].(string); src != "search_snippet_fallback" {
		t.Errorf("content_source = %q", src)
	}
}

func TestHandle_AbstractExtraction(t *testing.T) {
	abstract := strings.Repeat("This paper studies distributed consensus. ", 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="article-abstract">` + abstract + `</div></body></html>`))
	}))
	defer srv.Close()

	h := NewAcademicHandler(srv.Client(), nil)
	// Route a known abstract-only publisher host to the test server.
	h.client = srv.Client()
	h.client.Transport = rewriteHost(srv)

	page := h.Handle(context.Background(), "https://www.sciencedirect.com/science/article/pii/S1", "snippet", "Consensus Paper")
	if page.Error != "" {
		t.Fatalf("unexpected error: %s", page.Error)
	}
	if !strings.Contains(page.Content, "distributed consensus") {
		t.Errorf("abstract missing from content: %q", page.Content)
	}
	if src, _ := page.SourceInfo["content_source"].(string); src != "extracted_abstract" {
		t.Errorf("content_source = %q, want extracted_abstract", src)
	}
}

func TestHandle_AbstractFallsBackToSnippet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>Paywall page with no abstract markup.</p></body></html>`))
	}))
	defer srv.Close()

	h := NewAcademicHandler(srv.Client(), nil)
	h.client.Transport = rewriteHost(srv)

	page := h.Handle(context.Background(), "https://link.springer.com/article/10.1000/x", "The search snippet.", "Springer Paper")
	if !strings.Contains(page.Content, "The search snippet.") {
		t.Errorf("expected snippet fallback, got: %q", page.Content)
	}
	if src, _ := page.SourceInfo["content_source"].(string); src != "search_snippet_fallback" {
		t.Errorf("content_source = %q, want search_snippet_fallback", src)
	}
}

func TestExtractAbstract_Patterns(t *testing.T) {
	long := strings.Repeat("word ", 30)
	tests := []struct {
		name string
		html string
		want bool
	}{
		{"div class abstract", `<div class="abstract-text">` + long + `</div>`, true},
		{"section id", `<section id="Abstract1">` + long + `</section>`, true},
		{"meta og description", `<meta property="og:description" content="` + long + `">`, true},
		{"heading form", `<h3>Abstract</h3><p>` + long + `</p>`, true},
		{"too short", `<div class="abstract">tiny</div>`, false},
		{"absent", `<div class="body">` + long + `</div>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html><body>" + tt.html + "</body></html>"))
			}))
			defer srv.Close()

			h := NewAcademicHandler(srv.Client(), nil)
			got := h.extractAbstract(context.Background(), srv.URL)
			if (got != "") != tt.want {
				t.Errorf("extractAbstract = %q, want found=%v", got, tt.want)
			}
		})
	}
}

// rewriteHost redirects every request to the test server regardless of the
// requested host.
func rewriteHost(srv *httptest.Server) http.RoundTripper {
	base := srv.Listener.Addr().String()
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		req.URL.Scheme = "http"
		req.URL.Host = base
		return http.DefaultTransport.RoundTrip(req)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
