package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jmylchreest/livesearch-api/internal/models"
)

type streamMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamRequest struct {
	Model       string          `json:"model"`
	Messages    []streamMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	UserID      string          `json:"user_id,omitempty"`
	Format      string          `json:"format,omitempty"`
	Stream      bool            `json:"stream"`
}

// streamChunk is one OpenAI-style delta frame. Content tokens arrive under
// choices[0].delta.content; a final frame may carry usage.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error string `json:"error,omitempty"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

// streamLocal calls the internal endpoint that fronts locally hosted models.
// The endpoint speaks SSE; content arrives in data: lines and the stream ends
// with [DONE].
func (a *Adapter) streamLocal(ctx context.Context, req Request, prompt string, temp float64) (Result, error) {
	endpoint := a.cfg.InternalAPIBaseURL + a.cfg.InternalAPIEndpoint
	if a.cfg.InternalAPIBaseURL == "" {
		return Result{}, fmt.Errorf("internal model endpoint not configured")
	}

	body, err := json.Marshal(streamRequest{
		Model:       req.Model.Name,
		Messages:    []streamMessage{{Role: "user", Content: prompt}},
		Temperature: temp,
		UserID:      req.UserID,
		Format:      req.Format,
		Stream:      true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return Result{}, &retryableError{err: fmt.Errorf("stream request failed: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return Result{}, &retryableError{
			err:        fmt.Errorf("internal endpoint rate limited"),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500:
		return Result{}, &retryableError{err: fmt.Errorf("internal endpoint returned status %d", resp.StatusCode)}
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("internal endpoint returned status %d: %s", resp.StatusCode, detail)
	}

	content, usage, err := readSSEContent(resp.Body)
	if err != nil {
		return Result{}, &retryableError{err: err}
	}
	if content == "" {
		return Result{}, &retryableError{err: fmt.Errorf("stream produced no content")}
	}
	return Result{Output: content, Usage: usage}, nil
}

// readSSEContent accumulates content from data: lines until [DONE] or EOF.
// Lines that are not valid JSON are skipped; a mid-stream error chunk fails
// the whole call.
func readSSEContent(r io.Reader) (string, models.TokenUsage, error) {
	var sb strings.Builder
	var usage models.TokenUsage

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			return "", usage, fmt.Errorf("stream error: %s", chunk.Error)
		}
		if len(chunk.Choices) > 0 {
			sb.WriteString(chunk.Choices[0].Delta.Content)
		}
		if chunk.Usage != nil {
			usage = models.TokenUsage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", usage, fmt.Errorf("failed to read stream: %w", err)
	}
	return sb.String(), usage, nil
}
