package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ledongthuc/pdf"
)

const maxPDFBytes = 32 << 20

// scrapePDF downloads a PDF and extracts its plain text. Responses that do
// not identify as PDF are rejected rather than parsed blindly.
func (s *Scraper) scrapePDF(ctx context.Context, target string) Page {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Page{URL: target, Error: fmt.Sprintf("failed to build request: %v", err)}
	}
	req.Header.Set("User-Agent", genericUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return Page{URL: target, Error: fmt.Sprintf("pdf fetch failed: %v", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Page{URL: target, Error: fmt.Sprintf("pdf fetch returned status %d", resp.StatusCode)}
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(strings.ToLower(ct), "application/pdf") {
		return Page{URL: target, Error: fmt.Sprintf("expected a pdf, got content type %q", ct)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
	if err != nil {
		return Page{URL: target, Error: fmt.Sprintf("failed to read pdf body: %v", err)}
	}

	text, err := ExtractPDFText(data)
	if err != nil {
		return Page{URL: target, Error: fmt.Sprintf("pdf extraction failed: %v", err)}
	}
	return Page{URL: target, Content: text}
}

// ExtractPDFText pulls plain text out of PDF bytes. Also used for uploaded
// documents.
func ExtractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	out := collapseWhitespace(sb.String())
	if out == "" {
		return "", fmt.Errorf("pdf contained no extractable text")
	}
	return out, nil
}
