// scrapeworker fetches a single URL and prints the extracted page as a JSON
// list on stdout. It runs as a short-lived subprocess so a hostile or
// misbehaving page can be killed without touching the parent service.
//
// Usage: scrapeworker [-ignore-robots] <url>
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/jmylchreest/livesearch-api/internal/models"
	"github.com/jmylchreest/livesearch-api/internal/scrape"
)

type pageOutput struct {
	URL     string                 `json:"url"`
	Title   string                 `json:"title,omitempty"`
	Content string                 `json:"content,omitempty"`
	Links   []models.ExtractedLink `json:"links,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

const (
	fetchTimeout   = 20 * time.Second
	maxLinks       = 200
	maxContextLen  = 160
	maxContentSize = 10 << 20
)

// userAgents is rotated per fetch so repeated visits from the same host do
// not present a single fingerprint.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

func pickUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

func main() {
	ignoreRobots := flag.Bool("ignore-robots", false, "skip robots.txt checks")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: scrapeworker [-ignore-robots] <url>")
		os.Exit(2)
	}
	target := flag.Arg(0)

	page := fetch(target, *ignoreRobots)
	if err := json.NewEncoder(os.Stdout).Encode([]pageOutput{page}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
		os.Exit(1)
	}
}

func fetch(target string, ignoreRobots bool) pageOutput {
	out := pageOutput{URL: target}

	opts := []colly.CollectorOption{
		colly.UserAgent(pickUserAgent()),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(maxContentSize),
	}
	if ignoreRobots {
		opts = append(opts, colly.IgnoreRobotsTxt())
	}
	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(fetchTimeout)

	var rawHTML string
	var pdfBody []byte
	c.OnResponse(func(r *colly.Response) {
		out.URL = r.Request.URL.String()
		ct := strings.ToLower(r.Headers.Get("Content-Type"))
		switch {
		case strings.Contains(ct, "application/pdf"):
			pdfBody = r.Body
		case ct == "" || strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml"):
			rawHTML = string(r.Body)
		default:
			out.Error = fmt.Sprintf("unsupported content type %q", ct)
		}
	})

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if len(out.Links) >= maxLinks {
			return
		}
		href := e.Attr("href")
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}
		abs := e.Request.AbsoluteURL(href)
		if abs == "" {
			return
		}
		out.Links = append(out.Links, models.ExtractedLink{
			URL:        abs,
			AnchorText: collapseSpace(e.Text),
			Context:    linkContext(e),
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		out.Error = err.Error()
	})

	if err := c.Visit(target); err != nil && out.Error == "" {
		out.Error = err.Error()
	}
	if out.Error == "" && len(pdfBody) > 0 {
		text, err := scrape.ExtractPDFText(pdfBody)
		if err != nil {
			out.Error = fmt.Sprintf("pdf extraction failed: %v", err)
			return out
		}
		out.Content = collapseSpace(text)
		return out
	}
	if out.Error != "" || rawHTML == "" {
		if out.Error == "" {
			out.Error = "empty response body"
		}
		return out
	}

	parsedURL, _ := url.Parse(out.URL)
	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		out.Content = collapseSpace(tagRe.ReplaceAllString(rawHTML, " "))
		return out
	}
	out.Title = article.Title
	out.Content = collapseSpace(article.TextContent)
	return out
}

// linkContext grabs a slice of the text surrounding the anchor, enough for a
// relevance judgement when deciding which links to explore.
func linkContext(e *colly.HTMLElement) string {
	parent := e.DOM.Parent()
	if parent.Length() == 0 {
		return ""
	}
	text := collapseSpace(parent.Text())
	if len(text) > maxContextLen {
		text = text[:maxContextLen]
	}
	return text
}

var (
	tagRe   = regexp.MustCompile(`<[^>]+>`)
	spaceRe = regexp.MustCompile(`\s+`)
)

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
