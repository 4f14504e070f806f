package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPickUserAgentRotates(t *testing.T) {
	known := make(map[string]bool, len(userAgents))
	for _, ua := range userAgents {
		known[ua] = true
	}
	if len(known) < 2 {
		t.Fatalf("only %d distinct user agents configured", len(known))
	}
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		ua := pickUserAgent()
		if !known[ua] {
			t.Fatalf("unexpected user agent %q", ua)
		}
		seen[ua] = true
	}
	if len(seen) < 2 {
		t.Error("rotation never left the first user agent")
	}
}

func TestFetchExtractsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Raft</title></head><body><article><p>Raft is a consensus algorithm designed to be understandable.</p><a href="/next">continue reading</a></article></body></html>`)
	}))
	defer srv.Close()

	out := fetch(srv.URL, true)
	if out.Error != "" {
		t.Fatalf("unexpected error: %s", out.Error)
	}
	if !strings.Contains(out.Content, "consensus algorithm") {
		t.Errorf("content missing article text: %q", out.Content)
	}
	if len(out.Links) != 1 || !strings.HasSuffix(out.Links[0].URL, "/next") {
		t.Errorf("links = %+v, want the continue link", out.Links)
	}
}

func TestFetchRoutesPDFToExtractor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 not actually a valid document"))
	}))
	defer srv.Close()

	out := fetch(srv.URL, true)
	if strings.Contains(out.Error, "unsupported content type") {
		t.Fatalf("pdf response rejected as unsupported: %s", out.Error)
	}
	// The body is not a parseable PDF, so the extractor itself must report.
	if !strings.Contains(out.Error, "pdf extraction failed") {
		t.Errorf("error = %q, want a pdf extraction failure", out.Error)
	}
}

func TestFetchRejectsBinaryContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	}))
	defer srv.Close()

	out := fetch(srv.URL, true)
	if !strings.Contains(out.Error, "unsupported content type") {
		t.Errorf("error = %q, want unsupported content type", out.Error)
	}
}
