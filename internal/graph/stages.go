package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/livesearch-api/internal/models"
	"github.com/jmylchreest/livesearch-api/internal/search"
	"github.com/jmylchreest/livesearch-api/internal/vector"
)

// noContentReport is emitted when research produced nothing to synthesize
// from, so the client still receives a well-formed final chunk.
const noContentReport = `## Research Report

No usable content could be gathered for this query. All search providers may be unavailable or rate limited, or the discovered pages could not be scraped.

Please try again later or rephrase the query.`

func stageInitialize(ctx context.Context, st *models.OverallState, svc *Services, events chan<- models.SSEEvent) error {
	st.StartedAt = time.Now()
	st.DateContext = st.Params.DateContext
	if st.DateContext == "" {
		st.DateContext = time.Now().UTC().Format("January 2, 2006")
	}

	// One readiness probe against the vector store; a task without working
	// storage cannot produce a grounded report.
	if _, err := svc.Vector.CountByGroup(ctx, st.TaskID); err != nil {
		svc.Logger.Error("vector store unavailable", "task_id", st.TaskID, "error", err)
		emitFatal(events, "graph_initialization", "Research storage is unavailable.")
		return fmt.Errorf("vector store not ready: %w", err)
	}

	emitProgress(events, "graph_initialization", "Research task started.", map[string]any{
		"query":        st.Query,
		"date_context": st.DateContext,
	})
	return nil
}

func stageGenerateQueries(ctx context.Context, st *models.OverallState, svc *Services, events chan<- models.SSEEvent) error {
	model := st.Params.ReasoningModelInfo
	if model == nil {
		emitFatal(events, "generate_search_queries", "No reasoning model configured for this task.")
		return fmt.Errorf("no reasoning model configured")
	}

	maxQueries := st.Params.MaxQueriesPerHop
	if maxQueries <= 0 {
		maxQueries = svc.Cfg.MaxQueriesPerHop
	}

	var executed []string
	for q := range st.ExecutedQueries {
		executed = append(executed, q)
	}

	queries, usage, err := svc.LLM.GenerateSearchQueries(ctx, *model, st.Query, "", executed, maxQueries, st.DateContext, st.UserID)
	recordUsage(st, "generate_search_queries", model.Name, usage)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			emitCancelled(events)
			return err
		}
		svc.Logger.Error("query generation failed", "task_id", st.TaskID, "error", err)
		emitFatal(events, "generate_search_queries", "The research model failed to plan searches.")
		return fmt.Errorf("query generation failed: %w", err)
	}
	if len(queries) == 0 {
		queries = []string{st.Query}
	}
	st.HopQueries = queries

	emitProgress(events, "generate_search_queries", fmt.Sprintf("Planned %d search queries.", len(queries)), map[string]any{
		"queries": queries,
	})
	return nil
}

func stageWebSearch(ctx context.Context, st *models.OverallState, svc *Services, events chan<- models.SSEEvent) error {
	limit := st.Params.ResultsPerQuery
	if limit <= 0 {
		limit = svc.Cfg.ResultsPerProviderQuery
	}

	for _, query := range st.HopQueries {
		if st.ExecutedQueries[query] {
			continue
		}
		if err := ctx.Err(); err != nil {
			emitCancelled(events)
			return err
		}

		results, provErrors := svc.Search.SearchPass(ctx, query, search.PassOptions{
			Providers:   st.Params.SearchProviders,
			Credentials: st.Credentials,
			Limit:       limit,
			Progress: func(provider, q string) {
				emitProgress(events, "web_search_"+provider, fmt.Sprintf("Searching %s.", provider), map[string]any{
					"query": q,
				})
			},
		})
		for provider, msg := range provErrors {
			// Provider failures within a pass are informational; the pass
			// already fell back or skipped as appropriate.
			emitProgress(events, "web_search_provider_error_"+provider, msg, nil)
		}

		st.HopResults = append(st.HopResults, results...)
		st.ExecutedQueries[query] = true
	}

	emitProgress(events, "web_search", fmt.Sprintf("Collected %d search results.", len(st.HopResults)), nil)
	return nil
}

func stageProcessContent(ctx context.Context, st *models.OverallState, svc *Services, events chan<- models.SSEEvent) error {
	maxURLs := st.Params.MaxURLsPerTask
	if maxURLs <= 0 {
		maxURLs = svc.Cfg.MaxURLsPerTask
	}
	chunkSize := st.Params.ChunkSizeWords
	if chunkSize <= 0 {
		chunkSize = svc.Cfg.ChunkSizeWords
	}
	chunkOverlap := st.Params.ChunkOverlapWords
	if chunkOverlap <= 0 {
		chunkOverlap = svc.Cfg.ChunkOverlapWords
	}

	// Deduplicate the hop's results by URL and drop anything already visited.
	var toScrape []models.SearchResultItem
	seen := make(map[string]bool)
	for _, item := range st.HopResults {
		if item.URL == "" || seen[item.URL] || st.VisitedURLs[item.URL] {
			continue
		}
		if len(st.VisitedURLs)+len(toScrape) >= maxURLs {
			break
		}
		seen[item.URL] = true
		toScrape = append(toScrape, item)
	}
	if len(toScrape) == 0 {
		emitProgress(events, "process_content", "No new URLs to process.", nil)
		return nil
	}

	emitProgress(events, "process_content", fmt.Sprintf("Scraping %d pages.", len(toScrape)), nil)
	pages := svc.Scraper.ScrapeAll(ctx, toScrape)

	var entries []vector.Entry
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			emitCancelled(events)
			return err
		}
		item := toScrape[i]
		// Failed URLs are visited too, so later hops do not retry them.
		st.VisitedURLs[item.URL] = true
		if page.Error != "" || page.Content == "" {
			continue
		}

		title := page.Title
		if title == "" {
			title = item.Title
		}
		var trustScore float64
		if item.Trust != nil {
			trustScore = item.Trust.TrustScore
		}

		for idx, text := range vector.ChunkText(page.Content, chunkSize, chunkOverlap) {
			chunk := models.ContentChunk{
				ID:         ulid.Make().String(),
				URL:        item.URL,
				Title:      title,
				Text:       text,
				ChunkIndex: idx,
				Depth:      0,
				Metadata: map[string]any{
					"original_url": item.URL,
					"page_title":   title,
					"trust_score":  trustScore,
					"provider":     item.Provider,
				},
			}
			st.HopChunks = append(st.HopChunks, chunk)
			st.AllChunks[chunk.ID] = chunk
			entries = append(entries, vector.Entry{
				ID:       chunk.ID,
				GroupID:  st.TaskID,
				DocID:    item.URL,
				Index:    idx,
				Text:     text,
				Metadata: chunk.Metadata,
			})
		}
	}

	// Chunks stay usable for synthesis even when embedding or storage fails;
	// the vector index just will not cover them.
	if len(entries) > 0 {
		texts := make([]string, len(entries))
		for i := range entries {
			texts[i] = entries[i].Text
		}
		vectors, err := svc.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			svc.Logger.Warn("embedding failed, chunks not indexed", "task_id", st.TaskID, "error", err)
		} else {
			for i := range entries {
				entries[i].Embedding = vectors[i]
			}
			if _, err := svc.Vector.Add(ctx, entries); err != nil {
				svc.Logger.Warn("vector store rejected chunk batch", "task_id", st.TaskID, "error", err)
			}
		}
	}

	emitProgress(events, "process_content", fmt.Sprintf("Indexed %d content chunks from %d pages.", len(st.HopChunks), len(toScrape)), nil)
	return nil
}

func stageSynthesize(ctx context.Context, st *models.OverallState, svc *Services, events chan<- models.SSEEvent) error {
	if len(st.AllChunks) == 0 {
		st.Report = noContentReport
		events <- models.SSEEvent{Type: models.EventMarkdownChunk, Data: map[string]any{
			"chunk_id":       "final",
			"content":        st.Report,
			"is_final_chunk": true,
		}}
		return nil
	}

	model := st.Params.SynthesisModelInfo
	if model == nil {
		model = st.Params.ReasoningModelInfo
	}
	if model == nil {
		emitFatal(events, "synthesize_report", "No synthesis model configured for this task.")
		return fmt.Errorf("no synthesis model configured")
	}

	chunks := selectSynthesisChunks(ctx, st, svc)
	emitProgress(events, "synthesize_report", fmt.Sprintf("Synthesizing report from %d chunks.", len(chunks)), nil)

	draft, usage, err := svc.LLM.SynthesizeReport(ctx, *model, st.Query, chunks, svc.Cfg.SynthesisTargetWords, st.DateContext, st.UserID)
	recordUsage(st, "synthesize_report", model.Name, usage)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			emitCancelled(events)
			return err
		}
		svc.Logger.Error("synthesis failed", "task_id", st.TaskID, "error", err)
		emitFatal(events, "synthesize_report", "Report synthesis failed.")
		return fmt.Errorf("synthesis failed: %w", err)
	}

	titles := make(map[string]string)
	trustScores := make(map[string]float64)
	for _, chunk := range chunks {
		if _, ok := titles[chunk.URL]; !ok {
			titles[chunk.URL] = chunk.Title
		}
		if score, ok := chunk.Metadata["trust_score"].(float64); ok {
			trustScores[chunk.URL] = score
		}
	}
	body, sources := RewriteCitations(draft, titles, trustScores)
	st.Report = body + SourcesSection(sources) + DateFooter(st.DateContext)
	st.Sources = sources

	events <- models.SSEEvent{Type: models.EventMarkdownChunk, Data: map[string]any{
		"chunk_id":       "final",
		"content":        st.Report,
		"is_final_chunk": true,
	}}

	// Best effort; a missing suggestion list never fails the task.
	followUps, fuUsage, err := svc.LLM.FollowUpSuggestions(ctx, *model, st.Query, body, st.UserID)
	recordUsage(st, "follow_up_suggestions", model.Name, fuUsage)
	if err != nil {
		svc.Logger.Debug("follow-up suggestions failed", "task_id", st.TaskID, "error", err)
	} else {
		st.FollowUps = followUps
	}
	return nil
}

func stageFinalize(ctx context.Context, st *models.OverallState, svc *Services, events chan<- models.SSEEvent) error {
	display := FormatDuration(time.Since(st.StartedAt))
	events <- models.SSEEvent{Type: models.EventComplete, Data: map[string]any{
		"message":               "Research complete.",
		"detailed_token_usage":  st.StageUsage,
		"token_usage":           st.Usage,
		"report_sources":        st.Sources,
		"stat_duration_display": display,
		"follow_up_suggestions": st.FollowUps,
	}}
	return nil
}

// retrieveByQuery re-ranks the task's indexed chunks by similarity to the
// original query. Any failure degrades to nil so the caller falls back to
// discovery order.
func (svc *Services) retrieveByQuery(ctx context.Context, st *models.OverallState, topK int) []models.ContentChunk {
	queryVec, err := svc.Embedder.Embed(ctx, st.Query)
	if err != nil {
		svc.Logger.Debug("query embedding failed, using discovery order", "task_id", st.TaskID, "error", err)
		return nil
	}
	rows, err := svc.Vector.Search(ctx, vector.Query{
		GroupID:   st.TaskID,
		Embedding: queryVec,
		Limit:     topK,
	})
	if err != nil {
		svc.Logger.Debug("vector retrieval failed, using discovery order", "task_id", st.TaskID, "error", err)
		return nil
	}

	var chunks []models.ContentChunk
	for _, row := range rows {
		if chunk, ok := st.AllChunks[row.ID]; ok {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// selectSynthesisChunks picks the chunks the synthesis prompt is built from,
// capped by the synthesis budget.
func selectSynthesisChunks(ctx context.Context, st *models.OverallState, svc *Services) []models.ContentChunk {
	topK := st.Params.TopKRetrieval
	if topK <= 0 {
		topK = svc.Cfg.TopKRetrievalPerHop
	}

	chunks := svc.retrieveByQuery(ctx, st, topK)
	if len(chunks) == 0 {
		chunks = st.HopChunks
	}
	if len(chunks) > svc.Cfg.SynthesisMaxChunks {
		chunks = chunks[:svc.Cfg.SynthesisMaxChunks]
	}
	return chunks
}
