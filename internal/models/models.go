// Package models contains domain types shared across the service.
package models

import (
	"time"
)

// Task status constants. A task is "completing" between its pipeline
// returning and the final record being persisted.
const (
	TaskStatusPending    = "pending"
	TaskStatusRunning    = "running"
	TaskStatusCompleting = "completing"
	TaskStatusComplete   = "complete"
	TaskStatusError      = "error"
	TaskStatusCancelled  = "cancelled"
)

// ModelInfo describes an LLM to call: which provider hosts it, how it is
// named there, and the sampling/window parameters to use.
type ModelInfo struct {
	Name          string  `json:"name"`
	Provider      string  `json:"provider"`
	Temperature   float64 `json:"temperature,omitempty"`
	ContextWindow int     `json:"context_window,omitempty"`
	ID            string  `json:"id,omitempty"`
}

// RequestParams are the per-task research parameters. Everything except the
// initial query is an optional override of the configured defaults.
type RequestParams struct {
	InitialQuery        string     `json:"initial_query"`
	SearchProviders     []string   `json:"search_providers,omitempty"`
	ReasoningModelInfo  *ModelInfo `json:"reasoning_model_info,omitempty"`
	SynthesisModelInfo  *ModelInfo `json:"synthesis_model_info,omitempty"`
	MaxHops             int        `json:"max_hops,omitempty"`
	MaxQueriesPerHop    int        `json:"max_queries_per_hop,omitempty"`
	MaxURLsPerTask      int        `json:"max_urls_per_task,omitempty"`
	ResultsPerQuery     int        `json:"results_per_query,omitempty"`
	ChunkSizeWords      int        `json:"chunk_size_words,omitempty"`
	ChunkOverlapWords   int        `json:"chunk_overlap_words,omitempty"`
	TopKRetrieval       int        `json:"top_k_retrieval,omitempty"`
	URLExplorationDepth int        `json:"url_exploration_depth,omitempty"`
	DocumentFocusedMode bool       `json:"document_focused_mode,omitempty"`
	DateContext         string     `json:"date_context,omitempty"`
}

// TokenUsage is the usage reported (or estimated) for a single LLM call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage record into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// StageTokenUsage attributes token usage to a named pipeline stage.
type StageTokenUsage struct {
	Stage string     `json:"stage"`
	Model string     `json:"model,omitempty"`
	Usage TokenUsage `json:"usage"`
}

// SearchResultItem is one result row returned by a search provider.
type SearchResultItem struct {
	URL        string             `json:"url"`
	Title      string             `json:"title"`
	Snippet    string             `json:"snippet"`
	Provider   string             `json:"provider"`
	Query      string             `json:"query"`
	Rank       int                `json:"rank"`
	SourceInfo map[string]any     `json:"source_info,omitempty"`
	Trust      *DomainTrustProfile `json:"-"`
}

// ExtractedLink is an outbound link found while scraping a page, kept with
// enough surrounding text to judge whether it is worth following.
type ExtractedLink struct {
	URL        string `json:"url"`
	AnchorText string `json:"anchor_text,omitempty"`
	Context    string `json:"context,omitempty"`
}

// ContentChunk is a slice of scraped or uploaded text, ready for embedding.
type ContentChunk struct {
	ID         string         `json:"id"`
	URL        string         `json:"url"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	ChunkIndex int            `json:"chunk_index"`
	Depth      int            `json:"depth"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ReportSource is a cited source in the final report. Marker is the short
// identifier (S1, S2, ...) substituted for the full URL in the body.
type ReportSource struct {
	URL        string  `json:"url"`
	Title      string  `json:"title"`
	Marker     string  `json:"marker"`
	TrustScore float64 `json:"trust_score,omitempty"`
	Provider   string  `json:"provider,omitempty"`
}

// DomainTrustProfile is the persisted per-domain trust record. Wildcard rows
// (domain "*.gov" etc.) act as fallbacks for unseen domains of that TLD.
type DomainTrustProfile struct {
	Domain          string    `json:"domain"`
	TrustScore      float64   `json:"trust_score"`
	IsHTTPS         bool      `json:"is_https"`
	DomainAgeDays   int       `json:"domain_age_days"`
	TLDTypeBonus    float64   `json:"tld_type_bonus"`
	ReferenceCount  int       `json:"reference_count"`
	LastScannedDate time.Time `json:"last_scanned_date"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TaskRecord is the persisted row for a research task. The in-memory task
// registry is authoritative while a task runs; the record answers status
// queries after the registry entry is gone.
type TaskRecord struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Query           string     `json:"query"`
	Status          string     `json:"status"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	PromptTokens    int        `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	DurationDisplay string     `json:"duration_display,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// GenericDocumentItem is a caller-supplied document for direct vector
// ingestion (uploaded files, pre-extracted text).
type GenericDocumentItem struct {
	ID       string         `json:"id"`
	Text     string         `json:"text_content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SSE event types emitted over a task's stream.
const (
	EventHeartbeat     = "heartbeat"
	EventProgress      = "progress"
	EventMarkdownChunk = "markdown_chunk"
	EventError         = "error"
	EventCancelled     = "cancelled"
	EventComplete      = "complete"
)

// SSEEvent is one event on a task's queue. Data is serialized as the SSE
// payload; Type becomes the event name.
type SSEEvent struct {
	Type string         `json:"event_type"`
	Data map[string]any `json:"data"`
}

// IsTerminal reports whether the event ends the stream.
func (e SSEEvent) IsTerminal() bool {
	switch e.Type {
	case EventComplete, EventError, EventCancelled:
		return true
	}
	return false
}

// OverallState is the research pipeline's working memory for one task. It is
// mutated only by the task's own graph run.
type OverallState struct {
	TaskID      string
	UserID      string
	Query       string
	Params      RequestParams
	Credentials map[string]map[string]string
	StartedAt   time.Time
	DateContext string

	Usage      TokenUsage
	StageUsage []StageTokenUsage

	HopQueries      []string
	ExecutedQueries map[string]bool
	HopResults      []SearchResultItem
	HopChunks       []ContentChunk
	AllChunks       map[string]ContentChunk
	VisitedURLs     map[string]bool

	Report    string
	Sources   []ReportSource
	FollowUps []string
}

// NewOverallState seeds the maps so stages can use them without nil checks.
func NewOverallState(taskID, userID, query string, params RequestParams) *OverallState {
	return &OverallState{
		TaskID:          taskID,
		UserID:          userID,
		Query:           query,
		Params:          params,
		ExecutedQueries: make(map[string]bool),
		AllChunks:       make(map[string]ContentChunk),
		VisitedURLs:     make(map[string]bool),
	}
}

// VectorSearchResult is one row returned from the vector store.
type VectorSearchResult struct {
	ID         string         `json:"id"`
	Text       string         `json:"text_content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Distance   float64        `json:"distance"`
	Similarity float64        `json:"similarity"`
}
