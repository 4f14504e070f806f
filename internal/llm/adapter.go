// Package llm adapts the research pipeline to chat-completion backends: xAI,
// an OpenAI-compatible local server, and the internal streaming endpoint for
// locally hosted models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/livesearch-api/internal/config"
	"github.com/jmylchreest/livesearch-api/internal/models"
)

// Output formats a call can request.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Request is one LLM call.
type Request struct {
	// Type names the pipeline step, for logging and cache partitioning.
	Type   string
	Prompt string
	Model  models.ModelInfo
	Format string
	// UserID is forwarded to the internal endpoint for local models.
	UserID string
}

// Result carries the model output. For FormatJSON, Output holds repaired,
// validated JSON text.
type Result struct {
	Output string
	Usage  models.TokenUsage
}

var errAborted = errors.New("llm call aborted")

// retryableError marks failures worth another attempt.
type retryableError struct {
	err        error
	retryAfter time.Duration
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Adapter executes LLM calls with prompt budgeting, retries and a per-task
// response cache. Identical calls within one research task are answered from
// cache instead of burning tokens twice.
type Adapter struct {
	cfg    *config.Config
	logger *slog.Logger
	client *http.Client

	mu    sync.Mutex
	cache map[string]Result

	// sleep is replaced in tests.
	sleep func(time.Duration)
}

func NewAdapter(cfg *config.Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cfg:    cfg,
		logger: logger.With("component", "llm"),
		client: &http.Client{Timeout: 120 * time.Second},
		cache:  make(map[string]Result),
		sleep:  time.Sleep,
	}
}

// Execute runs one call. Transient failures are retried with exponential
// backoff; a 429 honors the Retry-After header when it is longer than the
// backoff. Successful results are cached by (type, prompt, model,
// temperature, format).
func (a *Adapter) Execute(ctx context.Context, req Request) (Result, error) {
	if req.Prompt == "" || req.Model.Name == "" {
		return Result{}, fmt.Errorf("prompt and model are required for %s", req.Type)
	}
	if req.Format == "" {
		req.Format = FormatText
	}

	temp := req.Model.Temperature
	if temp == 0 {
		temp = a.cfg.ReasoningDefaultTemp
	}
	cacheKey := strings.Join([]string{
		req.Type, req.Prompt, req.Model.Name,
		strconv.FormatFloat(temp, 'f', -1, 64), req.Format,
	}, "::")

	a.mu.Lock()
	if cached, ok := a.cache[cacheKey]; ok {
		a.mu.Unlock()
		a.logger.Debug("llm cache hit", "type", req.Type, "model", req.Model.Name)
		return cached, nil
	}
	a.mu.Unlock()

	prompt := a.trimPrompt(req.Prompt, req.Model)

	var result Result
	var lastErr error
	attempts := a.cfg.LLMMaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		result, lastErr = a.dispatch(ctx, req, prompt, temp)
		if lastErr == nil {
			break
		}
		var retryable *retryableError
		if !errors.As(lastErr, &retryable) {
			return Result{}, fmt.Errorf("%s call failed: %w", req.Type, lastErr)
		}
		if attempt == attempts-1 {
			break
		}

		backoff := time.Second * time.Duration(1<<attempt)
		if retryable.retryAfter > backoff {
			backoff = retryable.retryAfter
		}
		backoff += time.Duration(rand.Float64() * 500 * float64(time.Millisecond))
		a.logger.Warn("llm call failed, retrying",
			"type", req.Type, "attempt", attempt+1, "backoff", backoff, "error", lastErr)
		a.sleep(backoff)
	}
	if lastErr != nil {
		return Result{}, fmt.Errorf("%s call failed after %d attempts: %w", req.Type, attempts, lastErr)
	}

	if req.Format == FormatJSON {
		repaired, err := RepairJSON(result.Output)
		if err != nil {
			return Result{}, fmt.Errorf("%s returned unparsable JSON: %w", req.Type, err)
		}
		result.Output = repaired
	}
	if result.Usage.TotalTokens == 0 {
		// Backend gave no usage; estimate so budget accounting stays sane.
		result.Usage = models.TokenUsage{
			PromptTokens:     estimateTokens(prompt),
			CompletionTokens: estimateTokens(result.Output),
		}
		result.Usage.TotalTokens = result.Usage.PromptTokens + result.Usage.CompletionTokens
	}

	a.mu.Lock()
	a.cache[cacheKey] = result
	a.mu.Unlock()
	return result, nil
}

func (a *Adapter) dispatch(ctx context.Context, req Request, prompt string, temp float64) (Result, error) {
	switch strings.ToLower(strings.TrimSpace(req.Model.Provider)) {
	case "xai":
		return a.chatCompletion(ctx, a.cfg.XAIBaseURL, a.cfg.XAIAPIKey, req, prompt, temp)
	case "local":
		return a.streamLocal(ctx, req, prompt, temp)
	default:
		return a.chatCompletion(ctx, a.cfg.LocalLLMAPIBase, "", req, prompt, temp)
	}
}

// trimPrompt cuts the prompt down so the model keeps room for a useful
// completion: context window minus the completion reserve minus a safety
// buffer. The head of the prompt carries the instructions, so trimming
// removes from the tail.
func (a *Adapter) trimPrompt(prompt string, model models.ModelInfo) string {
	contextWindow := model.ContextWindow
	if contextWindow <= 0 {
		contextWindow = a.cfg.LLMContextFallback
	}
	reserve := a.cfg.LLMMinCompletion
	if a.cfg.LLMDefaultMaxTokens > reserve {
		reserve = a.cfg.LLMDefaultMaxTokens
	}
	budget := contextWindow - reserve - a.cfg.LLMSafetyBuffer
	if budget <= 0 {
		budget = contextWindow / 2
	}
	if estimateTokens(prompt) <= budget {
		return prompt
	}

	words := strings.Fields(prompt)
	// Rough words-per-token ratio; close enough for budgeting.
	keep := budget * 3 / 4
	if keep < 1 {
		keep = 1
	}
	if keep >= len(words) {
		return prompt
	}
	a.logger.Warn("trimming oversized prompt", "words", len(words), "kept", keep)
	return strings.Join(words[:keep], " ")
}

// estimateTokens approximates the token count as 4/3 of the word count.
func estimateTokens(text string) int {
	return len(strings.Fields(text)) * 4 / 3
}

// ResetCache drops all cached responses, called between tasks.
func (a *Adapter) ResetCache() {
	a.mu.Lock()
	a.cache = make(map[string]Result)
	a.mu.Unlock()
}
