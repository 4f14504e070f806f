package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jmylchreest/livesearch-api/internal/models"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// chatCompletion calls an OpenAI-compatible /chat/completions endpoint.
func (a *Adapter) chatCompletion(ctx context.Context, baseURL, apiKey string, req Request, prompt string, temp float64) (Result, error) {
	if baseURL == "" {
		return Result{}, fmt.Errorf("no endpoint configured for provider %q", req.Model.Provider)
	}

	payload := chatRequest{
		Model:       req.Model.Name,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temp,
	}
	if req.Format == FormatJSON {
		payload.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return Result{}, &retryableError{err: fmt.Errorf("chat request failed: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return Result{}, &retryableError{
			err:        fmt.Errorf("rate limited by %s", baseURL),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, &retryableError{err: fmt.Errorf("server error %d: %s", resp.StatusCode, detail)}
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("chat endpoint returned status %d: %s", resp.StatusCode, detail)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, &retryableError{err: fmt.Errorf("failed to decode chat response: %w", err)}
	}
	if parsed.Error != nil {
		return Result{}, fmt.Errorf("chat endpoint error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, &retryableError{err: fmt.Errorf("chat response has no choices")}
	}

	choice := parsed.Choices[0]
	if choice.Message.Content == "" && choice.FinishReason == "length" {
		// The model ran out of room before emitting anything; retrying the
		// same prompt cannot help.
		return Result{}, fmt.Errorf("model hit the length limit with no content: %w", errAborted)
	}
	if choice.Message.Content == "" {
		return Result{}, &retryableError{err: fmt.Errorf("chat response content empty")}
	}

	return Result{
		Output: choice.Message.Content,
		Usage: models.TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
