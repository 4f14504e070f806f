package graph

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmylchreest/livesearch-api/internal/models"
)

// Synthesis prompts instruct the model to cite as [ref: FULL_URL]. The
// finalizer rewrites those to short markers and builds the sources list.
var refMarkerRe = regexp.MustCompile(`(?i)\[ref:\s*([^\]]+?)\s*\]`)

// RewriteCitations replaces every [ref: URL] marker in the draft with a short
// marker S1..Sn, assigned in order of first appearance per unique URL. Only
// URLs actually present in the draft become sources; duplicates collapse onto
// one marker. titles maps URL to page title for the sources list.
func RewriteCitations(draft string, titles map[string]string, trustScores map[string]float64) (string, []models.ReportSource) {
	var order []string
	markers := make(map[string]string)

	matches := refMarkerRe.FindAllStringSubmatch(draft, -1)
	for _, m := range matches {
		url := strings.TrimSpace(m[1])
		if url == "" {
			continue
		}
		if _, seen := markers[url]; !seen {
			markers[url] = fmt.Sprintf("S%d", len(order)+1)
			order = append(order, url)
		}
	}

	body := refMarkerRe.ReplaceAllStringFunc(draft, func(m string) string {
		sub := refMarkerRe.FindStringSubmatch(m)
		url := strings.TrimSpace(sub[1])
		if marker, ok := markers[url]; ok {
			return "[" + marker + "]"
		}
		return m
	})

	sources := make([]models.ReportSource, 0, len(order))
	for _, url := range order {
		title := titles[url]
		if title == "" {
			title = url
		}
		sources = append(sources, models.ReportSource{
			URL:        url,
			Title:      title,
			Marker:     markers[url],
			TrustScore: trustScores[url],
		})
	}
	return body, sources
}

// SourcesSection renders the markdown sources block in marker order.
func SourcesSection(sources []models.ReportSource) string {
	if len(sources) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\n## Sources\n\n")
	for _, src := range sources {
		fmt.Fprintf(&sb, "- [%s] [%s](%s)\n", src.Marker, src.Title, src.URL)
	}
	return sb.String()
}

// DateFooter is the one-line temporal disclaimer appended when the task
// carries a date context.
func DateFooter(dateContext string) string {
	if dateContext == "" {
		return ""
	}
	return fmt.Sprintf("\n\n*Research conducted with a temporal focus on: %s.*\n", dateContext)
}

// FormatDuration renders an elapsed time as "1h 3m 20s", dropping leading
// zero components.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
