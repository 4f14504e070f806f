// Package worker runs periodic maintenance over persisted task records.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/livesearch-api/internal/repository"
)

// Janitor sweeps the task table: tasks stuck in running (for example after a
// crash) are marked failed, and old finished records are pruned.
type Janitor struct {
	tasks      repository.TaskRepository
	interval   time.Duration
	staleAfter time.Duration
	retention  time.Duration
	stop       chan struct{}
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// Config holds janitor configuration.
type Config struct {
	Interval   time.Duration
	StaleAfter time.Duration
	Retention  time.Duration
}

// New creates a new janitor.
func New(tasks repository.TaskRepository, cfg Config, logger *slog.Logger) *Janitor {
	if cfg.Interval == 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = time.Hour
	}
	if cfg.Retention == 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		tasks:      tasks,
		interval:   cfg.Interval,
		staleAfter: cfg.StaleAfter,
		retention:  cfg.Retention,
		stop:       make(chan struct{}),
		logger:     logger.With("component", "janitor"),
	}
}

// Start begins sweeping in the background. The first sweep runs immediately
// so records left over from a previous process are cleaned up at boot.
func (j *Janitor) Start(ctx context.Context) {
	j.logger.Info("starting", "interval", j.interval, "stale_after", j.staleAfter)
	j.wg.Add(1)
	go j.run(ctx)
}

// Stop gracefully stops the janitor.
func (j *Janitor) Stop() {
	close(j.stop)
	j.wg.Wait()
	j.logger.Info("stopped")
}

func (j *Janitor) run(ctx context.Context) {
	defer j.wg.Done()

	j.sweep(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-j.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	if n, err := j.tasks.MarkStaleRunningFailed(ctx, j.staleAfter); err != nil {
		j.logger.Error("failed to mark stale tasks", "error", err)
	} else if n > 0 {
		j.logger.Info("marked stale running tasks as failed", "count", n)
	}

	if n, err := j.tasks.DeleteOlderThan(ctx, j.retention); err != nil {
		j.logger.Error("failed to prune old tasks", "error", err)
	} else if n > 0 {
		j.logger.Info("pruned old task records", "count", n)
	}
}
