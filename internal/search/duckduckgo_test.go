package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestResolveDDGRedirect(t *testing.T) {
	tests := []struct{ in, want string }{
		{"//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fpage&rut=abc", "https://example.com/page"},
		{"/l/?uddg=https%3A%2F%2Fexample.org", "https://example.org"},
		{"https://example.com/direct", "https://example.com/direct"},
		{"/html/?q=next", ""},
	}
	for _, tt := range tests {
		if got := resolveDDGRedirect(tt.in); got != tt.want {
			t.Errorf("resolveDDGRedirect(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDuckDuckGoProvider_Search(t *testing.T) {
	page := `<html><body>
		<div class="result">
			<a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fblog">The Go Blog</a>
			<a class="result__snippet">Posts about Go.</a>
		</div>
		<div class="result">
			<a class="result__a" href="https://example.com/direct">Direct link</a>
			<a class="result__snippet">Snippet text.</a>
		</div>
	</body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.FormValue("q") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(page))
	}))
	defer srv.Close()

	p := NewDuckDuckGoProvider(5 * time.Second)
	items, err := p.Search(context.Background(), "golang", map[string]string{"endpoint": srv.URL}, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].URL != "https://go.dev/blog" {
		t.Errorf("redirect not unwrapped: %q", items[0].URL)
	}
	if items[0].Title != "The Go Blog" {
		t.Errorf("title = %q", items[0].Title)
	}
	if items[1].URL != "https://example.com/direct" {
		t.Errorf("direct url = %q", items[1].URL)
	}

	// Limit caps the result count.
	items, err = p.Search(context.Background(), "golang", map[string]string{"endpoint": srv.URL}, 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("got %d items with limit 1", len(items))
	}
}
