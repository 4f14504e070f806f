// Package graph runs the research pipeline for one task: a linear chain of
// stages over the task's state, emitting progress to the task's event queue.
package graph

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/livesearch-api/internal/config"
	"github.com/jmylchreest/livesearch-api/internal/models"
	"github.com/jmylchreest/livesearch-api/internal/scrape"
	"github.com/jmylchreest/livesearch-api/internal/search"
	"github.com/jmylchreest/livesearch-api/internal/vector"
)

// LLMClient is the slice of the LLM adapter the pipeline uses.
type LLMClient interface {
	GenerateSearchQueries(ctx context.Context, model models.ModelInfo, originalQuery, findingsSummary string, executed []string, maxQueries int, dateContext, userID string) ([]string, models.TokenUsage, error)
	SynthesizeReport(ctx context.Context, model models.ModelInfo, originalQuery string, chunks []models.ContentChunk, targetWords int, dateContext, userID string) (string, models.TokenUsage, error)
	FollowUpSuggestions(ctx context.Context, model models.ModelInfo, originalQuery, report, userID string) ([]string, models.TokenUsage, error)
}

// Searcher runs one query across the provider set.
type Searcher interface {
	SearchPass(ctx context.Context, query string, opts search.PassOptions) ([]models.SearchResultItem, map[string]string)
}

// PageScraper fetches result URLs concurrently.
type PageScraper interface {
	ScrapeAll(ctx context.Context, items []models.SearchResultItem) []scrape.Page
}

// ChunkStore is the slice of the vector store the pipeline uses.
type ChunkStore interface {
	Add(ctx context.Context, entries []vector.Entry) (int, error)
	Search(ctx context.Context, q vector.Query) ([]models.VectorSearchResult, error)
	CountByGroup(ctx context.Context, groupID string) (int, error)
}

// Services bundles the dependencies stages draw on.
type Services struct {
	Cfg      *config.Config
	LLM      LLMClient
	Search   Searcher
	Scraper  PageScraper
	Vector   ChunkStore
	Embedder vector.Embedder
	Logger   *slog.Logger
}

// Stage is one pipeline step. A non-nil error means the stage has already
// enqueued a terminal event and the run must stop.
type Stage struct {
	Name string
	Run  func(ctx context.Context, st *models.OverallState, svc *Services, events chan<- models.SSEEvent) error
}

// Graph is the compiled stage chain.
type Graph struct {
	stages []Stage
}

// New builds the standard research pipeline.
func New() *Graph {
	return &Graph{stages: []Stage{
		{Name: "initialize_task", Run: stageInitialize},
		{Name: "generate_search_queries", Run: stageGenerateQueries},
		{Name: "web_search", Run: stageWebSearch},
		{Name: "process_content", Run: stageProcessContent},
		{Name: "synthesize_report", Run: stageSynthesize},
		{Name: "finalize_task", Run: stageFinalize},
	}}
}

// Run drives the stages in order. Exactly one terminal event reaches the
// queue: complete from the finalize stage, error from a failing stage, or
// cancelled when the context is done before a stage starts.
func (g *Graph) Run(ctx context.Context, st *models.OverallState, svc *Services, events chan<- models.SSEEvent) error {
	for _, stage := range g.stages {
		if err := ctx.Err(); err != nil {
			emitCancelled(events)
			return err
		}
		if err := stage.Run(ctx, st, svc, events); err != nil {
			svc.Logger.Warn("research stage ended the run", "stage", stage.Name, "task_id", st.TaskID, "error", err)
			return err
		}
	}
	return nil
}

func emitProgress(events chan<- models.SSEEvent, stage, message string, details map[string]any) {
	data := map[string]any{"stage": stage, "message": message}
	if details != nil {
		data["details"] = details
	}
	events <- models.SSEEvent{Type: models.EventProgress, Data: data}
}

func emitFatal(events chan<- models.SSEEvent, stage, message string) {
	events <- models.SSEEvent{Type: models.EventError, Data: map[string]any{
		"error_message": message,
		"stage":         stage,
		"is_fatal":      true,
	}}
}

func emitCancelled(events chan<- models.SSEEvent) {
	events <- models.SSEEvent{Type: models.EventCancelled, Data: map[string]any{
		"message": "Research task cancelled.",
	}}
}

func recordUsage(st *models.OverallState, stage, model string, usage models.TokenUsage) {
	st.Usage.Add(usage)
	st.StageUsage = append(st.StageUsage, models.StageTokenUsage{Stage: stage, Model: model, Usage: usage})
}
