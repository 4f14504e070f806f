package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmylchreest/livesearch-api/internal/config"
	"github.com/jmylchreest/livesearch-api/internal/models"
)

func testAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()
	cfg := &config.Config{
		LocalLLMAPIBase:      baseURL,
		LLMMaxRetries:        2,
		LLMDefaultMaxTokens:  3072,
		LLMContextFallback:   8192,
		LLMMinCompletion:     1024,
		LLMSafetyBuffer:      200,
		ReasoningDefaultTemp: 0.2,
	}
	a := NewAdapter(cfg, nil)
	a.sleep = func(time.Duration) {}
	return a
}

func chatJSON(content, finishReason string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{
				"message":       map[string]string{"content": content},
				"finish_reason": finishReason,
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     10,
			"completion_tokens": 5,
			"total_tokens":      15,
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestExecuteCachesIdenticalCalls(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, chatJSON("hello", "stop"))
	}))
	defer srv.Close()

	a := testAdapter(t, srv.URL)
	req := Request{Type: "summarize", Prompt: "say hello", Model: models.ModelInfo{Name: "m1"}}

	for i := 0; i < 3; i++ {
		result, err := a.Execute(context.Background(), req)
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
		if result.Output != "hello" {
			t.Fatalf("unexpected output %q", result.Output)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("backend called %d times, want 1", n)
	}

	a.ResetCache()
	if _, err := a.Execute(context.Background(), req); err != nil {
		t.Fatalf("post-reset call failed: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("backend called %d times after reset, want 2", n)
	}
}

func TestExecuteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream exploded", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, chatJSON("recovered", "stop"))
	}))
	defer srv.Close()

	a := testAdapter(t, srv.URL)
	var slept []time.Duration
	a.sleep = func(d time.Duration) { slept = append(slept, d) }

	result, err := a.Execute(context.Background(), Request{
		Type: "generate_queries", Prompt: "q", Model: models.ModelInfo{Name: "m1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output != "recovered" {
		t.Errorf("unexpected output %q", result.Output)
	}
	if len(slept) != 2 {
		t.Fatalf("slept %d times, want 2", len(slept))
	}
	// Exponential backoff with jitter: 1s and 2s bases, up to 500ms extra.
	if slept[0] < time.Second || slept[0] >= time.Second+time.Second/2 {
		t.Errorf("first backoff %v out of range", slept[0])
	}
	if slept[1] < 2*time.Second || slept[1] >= 2*time.Second+time.Second/2 {
		t.Errorf("second backoff %v out of range", slept[1])
	}
}

func TestExecuteHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, chatJSON("ok", "stop"))
	}))
	defer srv.Close()

	a := testAdapter(t, srv.URL)
	var slept []time.Duration
	a.sleep = func(d time.Duration) { slept = append(slept, d) }

	if _, err := a.Execute(context.Background(), Request{
		Type: "summarize", Prompt: "p", Model: models.ModelInfo{Name: "m1"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slept) != 1 {
		t.Fatalf("slept %d times, want 1", len(slept))
	}
	if slept[0] < 7*time.Second {
		t.Errorf("backoff %v shorter than Retry-After", slept[0])
	}
}

func TestExecuteAbortsOnEmptyLengthLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, chatJSON("", "length"))
	}))
	defer srv.Close()

	a := testAdapter(t, srv.URL)
	_, err := a.Execute(context.Background(), Request{
		Type: "synthesize_report", Prompt: "p", Model: models.ModelInfo{Name: "m1"},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, errAborted) {
		t.Errorf("error %v does not wrap the abort sentinel", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("backend called %d times, want 1 (no retries)", n)
	}
}

func TestExecuteRepairsJSONOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatJSON("Here it is:\n```json\n[\"one\", \"two\",]\n```", "stop"))
	}))
	defer srv.Close()

	a := testAdapter(t, srv.URL)
	result, err := a.Execute(context.Background(), Request{
		Type: "generate_queries", Prompt: "p", Model: models.ModelInfo{Name: "m1"}, Format: FormatJSON,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output != `["one", "two"]` {
		t.Errorf("unexpected repaired output %q", result.Output)
	}
}

func TestExecuteEstimatesMissingUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": [{"message": {"content": "four words of output"}, "finish_reason": "stop"}]}`)
	}))
	defer srv.Close()

	a := testAdapter(t, srv.URL)
	result, err := a.Execute(context.Background(), Request{
		Type: "summarize", Prompt: "one two three", Model: models.ModelInfo{Name: "m1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Usage.TotalTokens == 0 {
		t.Error("expected estimated usage, got zero")
	}
	if result.Usage.CompletionTokens != estimateTokens("four words of output") {
		t.Errorf("unexpected completion estimate %d", result.Usage.CompletionTokens)
	}
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := testAdapter(t, "http://127.0.0.1:1")
	_, err := a.Execute(ctx, Request{Type: "summarize", Prompt: "p", Model: models.ModelInfo{Name: "m1"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestTrimPromptKeepsHead(t *testing.T) {
	a := testAdapter(t, "http://unused")

	short := "a small prompt"
	if got := a.trimPrompt(short, models.ModelInfo{}); got != short {
		t.Errorf("short prompt was modified: %q", got)
	}

	words := make([]string, 20000)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	long := strings.Join(words, " ")
	trimmed := a.trimPrompt(long, models.ModelInfo{ContextWindow: 4096})
	if len(trimmed) >= len(long) {
		t.Fatal("oversized prompt was not trimmed")
	}
	if !strings.HasPrefix(trimmed, "w0 w1 w2") {
		t.Error("trimming removed the head of the prompt")
	}
	budget := 4096 - 3072 - 200
	if got := len(strings.Fields(trimmed)); got != budget*3/4 {
		t.Errorf("kept %d words, want %d", got, budget*3/4)
	}
}

func TestReadSSEContent(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"choices": [{"delta": {"content": "Quantum"}}]}`,
		"",
		"not an sse line",
		`data: {"choices": [{"delta": {"content": " supremacy"}}]}`,
		`data: {"choices": [], "usage": {"prompt_tokens": 8, "completion_tokens": 2, "total_tokens": 10}}`,
		`data: [DONE]`,
		`data: {"choices": [{"delta": {"content": "after done, ignored"}}]}`,
	}, "\n")

	content, usage, err := readSSEContent(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "Quantum supremacy" {
		t.Errorf("unexpected content %q", content)
	}
	if usage.TotalTokens != 10 {
		t.Errorf("unexpected usage %+v", usage)
	}

	_, _, err = readSSEContent(strings.NewReader(`data: {"error": "model crashed"}`))
	if err == nil || !strings.Contains(err.Error(), "model crashed") {
		t.Errorf("expected stream error, got %v", err)
	}
}

func TestStreamLocalSendsMessagesPayload(t *testing.T) {
	var got streamRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintln(w, `data: {"choices": [{"delta": {"content": "hi"}}]}`)
		fmt.Fprintln(w, `data: [DONE]`)
	}))
	defer srv.Close()

	a := testAdapter(t, srv.URL)
	a.cfg.InternalAPIBaseURL = srv.URL

	result, err := a.streamLocal(context.Background(), Request{
		Type: "summarize", Model: models.ModelInfo{Name: "local-m"}, UserID: "u1",
	}, "hello there", 0.2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output != "hi" {
		t.Errorf("unexpected output %q", result.Output)
	}
	if !got.Stream {
		t.Error("request did not set stream: true")
	}
	if got.UserID != "u1" {
		t.Errorf("unexpected user_id %q", got.UserID)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "hello there" {
		t.Errorf("unexpected messages payload %+v", got.Messages)
	}
}

func TestGenerateSearchQueriesParsesAndCaps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatJSON(`["q1", "q2", "q3", "q4"]`, "stop"))
	}))
	defer srv.Close()

	a := testAdapter(t, srv.URL)
	queries, usage, err := a.GenerateSearchQueries(context.Background(),
		models.ModelInfo{Name: "m1"}, "what is raft", "", []string{"old query"}, 3, "2024", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queries) != 3 {
		t.Fatalf("got %d queries, want 3", len(queries))
	}
	if usage.TotalTokens != 15 {
		t.Errorf("unexpected usage %+v", usage)
	}
}
