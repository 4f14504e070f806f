package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/jmylchreest/livesearch-api/internal/config"
)

// Runner executes the crawler binary as a subprocess, one URL per invocation.
// Isolation keeps a misbehaving page from taking the service down; the
// subprocess is killed when its deadline passes or the task is cancelled.
type Runner struct {
	cfg    *config.Config
	logger *slog.Logger
}

func NewRunner(cfg *config.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, logger: logger}
}

func (r *Runner) Run(ctx context.Context, target string) Page {
	runCtx, cancel := context.WithTimeout(ctx, r.cfg.ScrapeSubprocessTimeout)
	defer cancel()

	args := []string{target}
	if !r.cfg.ScrapeRespectRobots {
		args = append(args, "-ignore-robots")
	}
	cmd := exec.CommandContext(runCtx, r.cfg.ScrapeWorkerBinary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	stderrStr := strings.TrimSpace(stderr.String())
	if stderrStr != "" && !isHarmlessStderr(stderrStr) {
		r.logger.Warn("crawler stderr", "url", target, "stderr", truncate(stderrStr, 500))
	}

	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return Page{URL: target, Error: fmt.Sprintf("crawler timed out after %s", r.cfg.ScrapeSubprocessTimeout)}
		}
		if ctx.Err() != nil {
			return Page{URL: target, Error: "cancelled"}
		}
		detail := stderrStr
		if detail == "" {
			detail = err.Error()
		}
		return Page{URL: target, Error: fmt.Sprintf("crawler failed: %s", truncate(detail, 300))}
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return Page{URL: target, Error: "crawler produced no output"}
	}

	var pages []Page
	if err := json.Unmarshal(out, &pages); err != nil {
		return Page{URL: target, Error: fmt.Sprintf("crawler output is not a JSON list: %v", err)}
	}
	if len(pages) == 0 {
		return Page{URL: target, Error: "crawler returned an empty list"}
	}
	return pages[0]
}

// Noise that shows up on stderr for pages that still scraped fine.
var harmlessStderrPatterns = []string{
	"JavaScript error",
	"Failed to load external resource",
	"SSL certificate verification failed",
	"Resource timeout",
	"CORS error",
	"DeprecationWarning:",
}

func isHarmlessStderr(stderr string) bool {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		harmless := false
		for _, pattern := range harmlessStderrPatterns {
			if strings.Contains(line, pattern) {
				harmless = true
				break
			}
		}
		if !harmless {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
