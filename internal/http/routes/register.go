// Package routes wires the API surface onto huma and chi.
package routes

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/livesearch-api/internal/http/handlers"
)

// Register registers all JSON API routes with the given Huma API instance.
// The SSE stream is a raw chi handler, registered by RegisterRaw.
func Register(api huma.API, h *handlers.Handlers) {
	// Health check
	huma.Register(api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"Health"},
	}, handlers.HealthCheck)

	// --- Research tasks ---
	huma.Register(api, huma.Operation{
		OperationID:   "createResearchTask",
		Method:        http.MethodPost,
		Path:          "/research_tasks",
		Summary:       "Start a research task",
		Description:   "Accepts a research request and starts the pipeline in the background. Progress is streamed from the returned stream_url.",
		Tags:          []string{"Research"},
		DefaultStatus: http.StatusAccepted,
	}, h.Research.CreateTask)
	huma.Register(api, huma.Operation{
		OperationID: "cancelResearchTask",
		Method:      http.MethodPost,
		Path:        "/research_tasks/{task_id}/cancel",
		Summary:     "Cancel a research task",
		Tags:        []string{"Research"},
	}, h.Research.CancelTask)
	huma.Register(api, huma.Operation{
		OperationID: "getResearchTaskStatus",
		Method:      http.MethodGet,
		Path:        "/research_tasks/{task_id}/status",
		Summary:     "Get research task status",
		Tags:        []string{"Research"},
	}, h.Research.TaskStatus)

	// --- Document ingestion ---
	huma.Register(api, huma.Operation{
		OperationID: "ingestTaskDocuments",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/ingest_documents",
		Summary:     "Attach uploaded documents to a task",
		Description: "Chunks and indexes uploaded documents under the task's group so research retrieval can use them.",
		Tags:        []string{"Documents"},
	}, h.Vector.IngestDocuments)

	// --- Direct vector store access ---
	huma.Register(api, huma.Operation{
		OperationID: "addVectorDocuments",
		Method:      http.MethodPost,
		Path:        "/vector/documents",
		Summary:     "Store documents in the vector index",
		Tags:        []string{"Vector"},
	}, h.Vector.AddDocuments)
	huma.Register(api, huma.Operation{
		OperationID: "vectorSearch",
		Method:      http.MethodPost,
		Path:        "/vector/search",
		Summary:     "Search the vector index",
		Tags:        []string{"Vector"},
	}, h.Vector.Search)
	huma.Register(api, huma.Operation{
		OperationID: "vectorDeleteByGroup",
		Method:      http.MethodPost,
		Path:        "/vector/delete_by_group",
		Summary:     "Delete all chunks in a group",
		Tags:        []string{"Vector"},
	}, h.Vector.DeleteGroup)
	huma.Register(api, huma.Operation{
		OperationID: "embedTexts",
		Method:      http.MethodPost,
		Path:        "/vector/embed-texts",
		Summary:     "Embed texts without storing them",
		Tags:        []string{"Vector"},
	}, h.Vector.EmbedTexts)
}

// RegisterRaw mounts the raw chi handlers that huma cannot express (SSE).
func RegisterRaw(r chi.Router, h *handlers.Handlers) {
	r.Get("/research_tasks/{task_id}/stream", h.Research.StreamTask)
}
