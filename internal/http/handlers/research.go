package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/livesearch-api/internal/config"
	"github.com/jmylchreest/livesearch-api/internal/graph"
	"github.com/jmylchreest/livesearch-api/internal/models"
	"github.com/jmylchreest/livesearch-api/internal/task"
)

// ResearchHandler owns the research task endpoints.
type ResearchHandler struct {
	cfg      *config.Config
	tasks    *task.Manager
	graph    *graph.Graph
	services *graph.Services
	logger   *slog.Logger
}

// CreateTaskInput is the research task creation request.
type CreateTaskInput struct {
	Body struct {
		UserID        string                       `json:"user_id,omitempty" doc:"Caller identity, forwarded to local model calls"`
		RequestParams models.RequestParams         `json:"request_params" doc:"Research parameters; initial_query is required"`
		APIConfig     map[string]map[string]string `json:"api_config,omitempty" doc:"Per-provider credential overrides, merged over the configured credentials for this task only"`
	}
}

// CreateTaskOutput is returned with 202 Accepted.
type CreateTaskOutput struct {
	Body struct {
		TaskID    string `json:"task_id"`
		Status    string `json:"status"`
		StreamURL string `json:"stream_url"`
		CancelURL string `json:"cancel_url"`
	}
}

// CreateTask accepts a research request and starts the pipeline in the
// background. The response carries the URLs to stream and cancel the task.
func (h *ResearchHandler) CreateTask(ctx context.Context, input *CreateTaskInput) (*CreateTaskOutput, error) {
	params := input.Body.RequestParams
	if strings.TrimSpace(params.InitialQuery) == "" {
		return nil, huma.Error422UnprocessableEntity("initial_query is required")
	}

	state := models.NewOverallState("", input.Body.UserID, params.InitialQuery, params)
	creds := h.cfg.ProviderCredentials()
	for provider, overrides := range input.Body.APIConfig {
		merged := make(map[string]string, len(creds[provider])+len(overrides))
		for k, v := range creds[provider] {
			merged[k] = v
		}
		for k, v := range overrides {
			merged[k] = v
		}
		creds[provider] = merged
	}
	state.Credentials = creds

	t := h.tasks.Start(state, func(ctx context.Context, st *models.OverallState, events chan<- models.SSEEvent) error {
		return h.graph.Run(ctx, st, h.services, events)
	})
	h.logger.Info("research task accepted", "task_id", t.ID, "user_id", input.Body.UserID)

	out := &CreateTaskOutput{}
	out.Body.TaskID = t.ID
	out.Body.Status = models.TaskStatusPending
	out.Body.StreamURL = fmt.Sprintf("/research_tasks/%s/stream", t.ID)
	out.Body.CancelURL = fmt.Sprintf("/research_tasks/%s/cancel", t.ID)
	return out, nil
}

// CancelTaskInput identifies the task to cancel.
type CancelTaskInput struct {
	TaskID string `path:"task_id" doc:"Task ID"`
}

// CancelTaskOutput reports the cancellation outcome.
type CancelTaskOutput struct {
	Body struct {
		TaskID  string `json:"task_id"`
		Status  string `json:"status"`
		Message string `json:"message,omitempty"`
	}
}

// CancelTask requests cancellation of a running task.
func (h *ResearchHandler) CancelTask(ctx context.Context, input *CancelTaskInput) (*CancelTaskOutput, error) {
	status := h.tasks.Cancel(input.TaskID)
	if status == "" {
		return nil, huma.Error404NotFound("task not found")
	}
	out := &CancelTaskOutput{}
	out.Body.TaskID = input.TaskID
	out.Body.Status = status
	if status == "already_completed" {
		out.Body.Message = "task had already finished"
	}
	return out, nil
}

// TaskStatusInput identifies the task to query.
type TaskStatusInput struct {
	TaskID string `path:"task_id" doc:"Task ID"`
}

// TaskStatusOutput is the status report for a task.
type TaskStatusOutput struct {
	Body struct {
		TaskID          string `json:"task_id"`
		Status          string `json:"status"`
		ProgressMessage string `json:"progress_message,omitempty"`
	}
}

// TaskStatus reports a task's lifecycle status, consulting the persisted
// record once the in-memory entry is gone.
func (h *ResearchHandler) TaskStatus(ctx context.Context, input *TaskStatusInput) (*TaskStatusOutput, error) {
	status, progress, ok := h.tasks.Status(ctx, input.TaskID)
	if !ok {
		return nil, huma.Error404NotFound("task not found")
	}
	out := &TaskStatusOutput{}
	out.Body.TaskID = input.TaskID
	out.Body.Status = status
	out.Body.ProgressMessage = progress
	return out, nil
}

// StreamTask handles SSE streaming of task events.
// This is a raw HTTP handler (not Huma) to support SSE.
func (h *ResearchHandler) StreamTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	if taskID == "" {
		http.Error(w, `{"error":"task ID required"}`, http.StatusBadRequest)
		return
	}
	t, ok := h.tasks.Get(taskID)
	if !ok {
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	// Research runs longer than any sane write timeout; best effort to
	// disable it for this response.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	sendSSEEvent(w, flusher, models.EventHeartbeat, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	sendSSEEvent(w, flusher, models.EventProgress, map[string]any{
		"stage":   "stream_start",
		"message": "Stream connected.",
	})

	heartbeat := time.NewTicker(h.cfg.SSEHeartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, models.EventHeartbeat, map[string]any{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		case ev, open := <-t.Events:
			if !open {
				// Queue closed: the terminal event has already been sent.
				return
			}
			sendSSEEvent(w, flusher, ev.Type, ev.Data)
			if ev.IsTerminal() {
				return
			}
		}
	}
}

// sendSSEEvent sends a Server-Sent Event.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", event)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}
