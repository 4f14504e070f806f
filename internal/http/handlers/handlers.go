// Package handlers contains HTTP handlers for the API.
package handlers

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/livesearch-api/internal/config"
	"github.com/jmylchreest/livesearch-api/internal/graph"
	"github.com/jmylchreest/livesearch-api/internal/task"
	"github.com/jmylchreest/livesearch-api/internal/vector"
	"github.com/jmylchreest/livesearch-api/internal/version"
)

// Handlers bundles the handler groups and their shared dependencies.
type Handlers struct {
	Research *ResearchHandler
	Vector   *VectorHandler
}

// New wires the handler groups.
func New(cfg *config.Config, tasks *task.Manager, g *graph.Graph, services *graph.Services, store *vector.Store, embedder vector.Embedder, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		Research: &ResearchHandler{
			cfg:      cfg,
			tasks:    tasks,
			graph:    g,
			services: services,
			logger:   logger.With("component", "http"),
		},
		Vector: &VectorHandler{
			cfg:      cfg,
			store:    store,
			embedder: embedder,
			logger:   logger.With("component", "http"),
		},
	}
}

// HealthCheckOutput represents health check response.
type HealthCheckOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
}

// HealthCheck returns the health status of the API.
func HealthCheck(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	out := &HealthCheckOutput{}
	out.Body.Status = "ok"
	out.Body.Version = version.Get().Short()
	return out, nil
}
