// Package task owns the lifecycle of research tasks: the in-memory registry
// of running tasks, their event queues, and the persisted task records that
// outlive them.
package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/livesearch-api/internal/graph"
	"github.com/jmylchreest/livesearch-api/internal/models"
	"github.com/jmylchreest/livesearch-api/internal/repository"
)

// eventQueueSize bounds a task's event buffer. The graph emits a handful of
// progress events plus one final chunk, so this never fills in practice; it
// exists so an absent SSE consumer cannot block the pipeline.
const eventQueueSize = 1024

// RunFunc drives one research task to completion, writing events to the
// queue. The manager closes the queue after the run returns.
type RunFunc func(ctx context.Context, st *models.OverallState, events chan<- models.SSEEvent) error

// Task is one active research task in the registry.
type Task struct {
	ID     string
	State  *models.OverallState
	Events chan models.SSEEvent

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	status   string
	progress string
}

// Done reports when the task's run has finished and the queue is closed.
func (t *Task) Done() <-chan struct{} { return t.done }

// Status returns the task's current lifecycle status.
func (t *Task) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Progress returns the most recent progress message emitted by the pipeline.
func (t *Task) Progress() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

func (t *Task) setStatus(status string) {
	t.mu.Lock()
	t.status = status
	t.mu.Unlock()
}

func (t *Task) setProgress(msg string) {
	t.mu.Lock()
	t.progress = msg
	t.mu.Unlock()
}

// Manager runs research tasks in the background and answers status and
// cancellation requests. Finished tasks linger in the registry for a grace
// period so in-flight SSE streams can drain, then the persisted record takes
// over.
type Manager struct {
	repo         repository.TaskRepository
	logger       *slog.Logger
	cleanupDelay time.Duration

	mu    sync.RWMutex
	tasks map[string]*Task
}

func NewManager(repo repository.TaskRepository, cleanupDelay time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:         repo,
		logger:       logger.With("component", "task"),
		cleanupDelay: cleanupDelay,
		tasks:        make(map[string]*Task),
	}
}

// Start registers a new task and launches its run in the background. The
// returned task's ID and queue are immediately usable.
func (m *Manager) Start(state *models.OverallState, run RunFunc) *Task {
	if state.TaskID == "" {
		state.TaskID = ulid.Make().String()
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		ID:     state.TaskID,
		State:  state,
		Events: make(chan models.SSEEvent, eventQueueSize),
		cancel: cancel,
		done:   make(chan struct{}),
		status: models.TaskStatusPending,
	}

	m.mu.Lock()
	m.tasks[t.ID] = t
	m.mu.Unlock()

	now := time.Now().UTC()
	record := &models.TaskRecord{
		ID:        t.ID,
		UserID:    state.UserID,
		Query:     state.Query,
		Status:    models.TaskStatusRunning,
		StartedAt: &now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.repo.Create(context.Background(), record); err != nil {
		m.logger.Warn("failed to persist task record", "task_id", t.ID, "error", err)
	}

	go m.runTask(ctx, t, record, run)
	return t
}

func (m *Manager) runTask(ctx context.Context, t *Task, record *models.TaskRecord, run RunFunc) {
	t.setStatus(models.TaskStatusRunning)

	// Events pass through an inner queue so the manager can record the latest
	// progress message for status queries without consuming the stream.
	inner := make(chan models.SSEEvent, eventQueueSize)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for ev := range inner {
			if ev.Type == models.EventProgress {
				if msg, ok := ev.Data["message"].(string); ok && msg != "" {
					t.setProgress(msg)
				}
			}
			t.Events <- ev
		}
	}()

	err := run(ctx, t.State, inner)
	close(inner)
	<-forwarded
	t.setStatus(models.TaskStatusCompleting)

	status := models.TaskStatusComplete
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		status = models.TaskStatusCancelled
	case err != nil:
		status = models.TaskStatusError
	}

	record.Status = status
	if err != nil && status == models.TaskStatusError {
		record.ErrorMessage = err.Error()
	}
	record.PromptTokens = t.State.Usage.PromptTokens
	record.CompletionTokens = t.State.Usage.CompletionTokens
	record.DurationDisplay = graph.FormatDuration(time.Since(t.State.StartedAt))
	completed := time.Now().UTC()
	record.CompletedAt = &completed
	record.UpdatedAt = completed
	if updateErr := m.repo.Update(context.Background(), record); updateErr != nil {
		m.logger.Warn("failed to update task record", "task_id", t.ID, "error", updateErr)
	}
	t.setStatus(status)

	// Closing the queue is the stream's end-of-stream sentinel; the terminal
	// event is already buffered ahead of it.
	close(t.Events)
	close(t.done)
	t.cancel()

	m.logger.Info("research task finished", "task_id", t.ID, "status", status,
		"duration", record.DurationDisplay, "total_tokens", t.State.Usage.TotalTokens)

	// Grace period lets an attached SSE stream drain before the registry
	// entry disappears.
	time.Sleep(m.cleanupDelay)
	m.mu.Lock()
	delete(m.tasks, t.ID)
	m.mu.Unlock()
}

// Get returns the active task, if still registered.
func (m *Manager) Get(id string) (*Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	return t, ok
}

// ActiveCount reports how many tasks are still registered. Used to hold off
// idle shutdown while research is in flight.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}

// Cancel requests cancellation of a running task. It reports
// "cancellation_requested", "already_completed", or "" when unknown.
func (m *Manager) Cancel(id string) string {
	t, ok := m.Get(id)
	if !ok {
		return ""
	}
	select {
	case <-t.done:
		return "already_completed"
	default:
	}
	t.cancel()
	return "cancellation_requested"
}

// Status answers a status query: the registry while the task is active, the
// persisted record afterwards. The progress message is only available while
// the registry entry exists. ok is false when the task is unknown to both.
func (m *Manager) Status(ctx context.Context, id string) (status, progress string, ok bool) {
	if t, ok := m.Get(id); ok {
		return t.Status(), t.Progress(), true
	}
	record, err := m.repo.GetByID(ctx, id)
	if err != nil || record == nil {
		return "", "", false
	}
	return record.Status, "", true
}
