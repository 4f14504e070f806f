package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmylchreest/livesearch-api/internal/models"
)

// SQLiteTaskRepository implements TaskRepository for SQLite.
type SQLiteTaskRepository struct {
	db *sql.DB
}

// NewSQLiteTaskRepository creates a new SQLite task repository.
func NewSQLiteTaskRepository(db *sql.DB) *SQLiteTaskRepository {
	return &SQLiteTaskRepository{db: db}
}

func (r *SQLiteTaskRepository) Create(ctx context.Context, task *models.TaskRecord) error {
	query := `
		INSERT INTO research_tasks (id, user_id, query, status, error_message,
			prompt_tokens, completion_tokens, duration_display, started_at, completed_at,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		task.ID,
		task.UserID,
		task.Query,
		task.Status,
		nullString(task.ErrorMessage),
		task.PromptTokens,
		task.CompletionTokens,
		nullString(task.DurationDisplay),
		nullTime(task.StartedAt),
		nullTime(task.CompletedAt),
		task.CreatedAt.Format(time.RFC3339),
		task.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create task record: %w", err)
	}
	return nil
}

func (r *SQLiteTaskRepository) GetByID(ctx context.Context, id string) (*models.TaskRecord, error) {
	query := `
		SELECT id, user_id, query, status, error_message,
			prompt_tokens, completion_tokens, duration_display, started_at, completed_at,
			created_at, updated_at
		FROM research_tasks WHERE id = ?
	`
	row := r.db.QueryRowContext(ctx, query, id)

	var task models.TaskRecord
	var errMsg, durationDisplay, startedAt, completedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Query,
		&task.Status,
		&errMsg,
		&task.PromptTokens,
		&task.CompletionTokens,
		&durationDisplay,
		&startedAt,
		&completedAt,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task record: %w", err)
	}

	task.ErrorMessage = errMsg.String
	task.DurationDisplay = durationDisplay.String
	task.StartedAt = parseNullTime(startedAt)
	task.CompletedAt = parseNullTime(completedAt)
	task.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	task.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &task, nil
}

func (r *SQLiteTaskRepository) Update(ctx context.Context, task *models.TaskRecord) error {
	query := `
		UPDATE research_tasks SET status = ?, error_message = ?,
			prompt_tokens = ?, completion_tokens = ?, duration_display = ?,
			started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		task.Status,
		nullString(task.ErrorMessage),
		task.PromptTokens,
		task.CompletionTokens,
		nullString(task.DurationDisplay),
		nullTime(task.StartedAt),
		nullTime(task.CompletedAt),
		time.Now().UTC().Format(time.RFC3339),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task record: %w", err)
	}
	return nil
}

// MarkStaleRunningFailed marks tasks left in running state longer than maxAge
// as errored. Used on startup to clean up after a crash or restart.
func (r *SQLiteTaskRepository) MarkStaleRunningFailed(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Format(time.RFC3339)
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		UPDATE research_tasks
		SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
		WHERE status IN (?, ?) AND created_at < ?
	`
	result, err := r.db.ExecContext(ctx, query,
		models.TaskStatusError,
		"Task terminated: server restart or timeout",
		now,
		now,
		models.TaskStatusRunning,
		models.TaskStatusPending,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale tasks as failed: %w", err)
	}

	count, _ := result.RowsAffected()
	return count, nil
}

// DeleteOlderThan removes completed task records older than maxAge.
func (r *SQLiteTaskRepository) DeleteOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Format(time.RFC3339)
	query := `
		DELETE FROM research_tasks
		WHERE status IN (?, ?, ?) AND created_at < ?
	`
	result, err := r.db.ExecContext(ctx, query,
		models.TaskStatusComplete,
		models.TaskStatusError,
		models.TaskStatusCancelled,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old task records: %w", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}
