package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/livesearch-api/internal/config"
	"github.com/jmylchreest/livesearch-api/internal/models"
	"github.com/jmylchreest/livesearch-api/internal/scrape"
	"github.com/jmylchreest/livesearch-api/internal/vector"
)

// VectorHandler exposes the vector store directly: document ingestion,
// search, and group deletion.
type VectorHandler struct {
	cfg      *config.Config
	store    *vector.Store
	embedder vector.Embedder
	logger   *slog.Logger
}

// AddDocumentsInput carries pre-extracted documents for a group.
type AddDocumentsInput struct {
	Body struct {
		GroupID   string                       `json:"group_id" doc:"Grouping key, usually a task or chat ID"`
		Documents []models.GenericDocumentItem `json:"documents"`
	}
}

// AddDocumentsOutput reports how many chunks were stored.
type AddDocumentsOutput struct {
	Body struct {
		GroupID     string `json:"group_id"`
		ChunksAdded int    `json:"chunks_added"`
	}
}

// AddDocuments chunks, embeds, and stores caller-supplied documents.
func (h *VectorHandler) AddDocuments(ctx context.Context, input *AddDocumentsInput) (*AddDocumentsOutput, error) {
	if input.Body.GroupID == "" {
		return nil, huma.Error422UnprocessableEntity("group_id is required")
	}
	if len(input.Body.Documents) == 0 {
		return nil, huma.Error422UnprocessableEntity("documents must not be empty")
	}

	added, err := h.ingest(ctx, input.Body.GroupID, input.Body.Documents)
	if err != nil {
		h.logger.Error("document ingestion failed", "group_id", input.Body.GroupID, "error", err)
		return nil, huma.Error500InternalServerError("failed to store documents")
	}

	out := &AddDocumentsOutput{}
	out.Body.GroupID = input.Body.GroupID
	out.Body.ChunksAdded = added
	return out, nil
}

// VectorSearchInput is a direct store query.
type VectorSearchInput struct {
	Body struct {
		GroupID        string         `json:"group_id"`
		QueryText      string         `json:"query_text,omitempty" doc:"Embedded and used for similarity ranking"`
		Keywords       []string       `json:"keywords,omitempty" doc:"Full-text search terms"`
		MetadataFilter map[string]any `json:"metadata_filter,omitempty"`
		TopK           int            `json:"top_k,omitempty"`
	}
}

// VectorSearchOutput carries the matching rows.
type VectorSearchOutput struct {
	Body struct {
		Results []models.VectorSearchResult `json:"results"`
	}
}

// Search queries the vector store by similarity, keywords, or both.
func (h *VectorHandler) Search(ctx context.Context, input *VectorSearchInput) (*VectorSearchOutput, error) {
	q := vector.Query{
		GroupID:  input.Body.GroupID,
		Keywords: input.Body.Keywords,
		Filter:   input.Body.MetadataFilter,
		Limit:    input.Body.TopK,
	}
	if input.Body.QueryText != "" {
		embedding, err := h.embedder.Embed(ctx, input.Body.QueryText)
		if err != nil {
			h.logger.Error("query embedding failed", "error", err)
			return nil, huma.Error500InternalServerError("failed to embed query")
		}
		q.Embedding = embedding
	}

	results, err := h.store.Search(ctx, q)
	if err != nil {
		if strings.Contains(err.Error(), "needs an embedding") {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		h.logger.Error("vector search failed", "error", err)
		return nil, huma.Error500InternalServerError("search failed")
	}
	if results == nil {
		results = []models.VectorSearchResult{}
	}

	out := &VectorSearchOutput{}
	out.Body.Results = results
	return out, nil
}

// DeleteGroupInput names the group to delete.
type DeleteGroupInput struct {
	Body struct {
		GroupID string `json:"group_id"`
	}
}

// DeleteGroupOutput confirms the deletion.
type DeleteGroupOutput struct {
	Body struct {
		GroupID string `json:"group_id"`
		Status  string `json:"status"`
	}
}

// DeleteGroup removes every chunk stored under a group.
func (h *VectorHandler) DeleteGroup(ctx context.Context, input *DeleteGroupInput) (*DeleteGroupOutput, error) {
	if input.Body.GroupID == "" {
		return nil, huma.Error422UnprocessableEntity("group_id is required")
	}
	if err := h.store.DeleteByGroup(ctx, input.Body.GroupID); err != nil {
		h.logger.Error("group deletion failed", "group_id", input.Body.GroupID, "error", err)
		return nil, huma.Error500InternalServerError("deletion failed")
	}
	out := &DeleteGroupOutput{}
	out.Body.GroupID = input.Body.GroupID
	out.Body.Status = "deleted"
	return out, nil
}

// EmbedTextsInput is a batch embedding request.
type EmbedTextsInput struct {
	Body struct {
		Texts []string `json:"texts"`
	}
}

// EmbedTextsOutput carries the embeddings in input order.
type EmbedTextsOutput struct {
	Body struct {
		Embeddings [][]float32 `json:"embeddings"`
		Dimensions int         `json:"dimensions"`
	}
}

// EmbedTexts embeds texts without storing anything.
func (h *VectorHandler) EmbedTexts(ctx context.Context, input *EmbedTextsInput) (*EmbedTextsOutput, error) {
	if len(input.Body.Texts) == 0 {
		return nil, huma.Error422UnprocessableEntity("texts must not be empty")
	}
	embeddings, err := h.embedder.EmbedBatch(ctx, input.Body.Texts)
	if err != nil {
		h.logger.Error("batch embedding failed", "error", err)
		return nil, huma.Error500InternalServerError("embedding failed")
	}
	out := &EmbedTextsOutput{}
	out.Body.Embeddings = embeddings
	out.Body.Dimensions = h.embedder.Dimensions()
	return out, nil
}

// IngestDocumentItem is one uploaded document: either inline text or a file
// under the configured upload directory.
type IngestDocumentItem struct {
	ID       string         `json:"id,omitempty"`
	Text     string         `json:"text_content,omitempty"`
	FileName string         `json:"file_name,omitempty" doc:"File inside the upload directory; .txt and .pdf are parsed in-process"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IngestDocumentsInput attaches uploaded documents to a research task.
type IngestDocumentsInput struct {
	TaskID string `path:"task_id" doc:"Task whose group the documents join"`
	Body   struct {
		Documents []IngestDocumentItem `json:"documents"`
	}
}

// IngestDocumentsOutput reports the ingestion result.
type IngestDocumentsOutput struct {
	Body struct {
		TaskID      string   `json:"task_id"`
		ChunksAdded int      `json:"chunks_added"`
		Skipped     []string `json:"skipped,omitempty"`
	}
}

// IngestDocuments stores uploaded documents under a task's group so the
// research pipeline can retrieve them alongside scraped content.
func (h *VectorHandler) IngestDocuments(ctx context.Context, input *IngestDocumentsInput) (*IngestDocumentsOutput, error) {
	if len(input.Body.Documents) == 0 {
		return nil, huma.Error422UnprocessableEntity("documents must not be empty")
	}

	var docs []models.GenericDocumentItem
	var skipped []string
	for _, item := range input.Body.Documents {
		text := item.Text
		if text == "" && item.FileName != "" {
			extracted, err := h.extractFile(item.FileName)
			if err != nil {
				h.logger.Warn("uploaded document skipped", "file", item.FileName, "error", err)
				skipped = append(skipped, item.FileName)
				continue
			}
			text = extracted
		}
		if strings.TrimSpace(text) == "" {
			if item.FileName != "" {
				skipped = append(skipped, item.FileName)
			}
			continue
		}
		metadata := map[string]any{"is_from_uploaded_doc": true}
		for k, v := range item.Metadata {
			metadata[k] = v
		}
		if item.FileName != "" {
			metadata["file_name"] = item.FileName
		}
		docs = append(docs, models.GenericDocumentItem{
			ID:       item.ID,
			Text:     text,
			Metadata: metadata,
		})
	}
	if len(docs) == 0 {
		return nil, huma.Error422UnprocessableEntity("no usable document content")
	}

	added, err := h.ingest(ctx, input.TaskID, docs)
	if err != nil {
		h.logger.Error("document ingestion failed", "task_id", input.TaskID, "error", err)
		return nil, huma.Error500InternalServerError("failed to store documents")
	}

	out := &IngestDocumentsOutput{}
	out.Body.TaskID = input.TaskID
	out.Body.ChunksAdded = added
	out.Body.Skipped = skipped
	return out, nil
}

// ingest chunks, embeds, and stores documents under a group.
func (h *VectorHandler) ingest(ctx context.Context, groupID string, docs []models.GenericDocumentItem) (int, error) {
	var entries []vector.Entry
	var texts []string
	for _, doc := range docs {
		docID := doc.ID
		if docID == "" {
			docID = ulid.Make().String()
		}
		fromUpload, _ := doc.Metadata["is_from_uploaded_doc"].(bool)
		for idx, chunk := range vector.ChunkText(doc.Text, h.cfg.ChunkSizeWords, h.cfg.ChunkOverlapWords) {
			entry := vector.Entry{
				ID:              ulid.Make().String(),
				GroupID:         groupID,
				DocID:           docID,
				Index:           idx,
				Text:            chunk,
				Metadata:        doc.Metadata,
				FromUploadedDoc: fromUpload,
			}
			if fromUpload {
				entry.OriginalDocumentID = docID
			}
			entries = append(entries, entry)
			texts = append(texts, chunk)
		}
	}
	if len(entries) == 0 {
		return 0, nil
	}

	embeddings, err := h.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding failed: %w", err)
	}
	for i := range entries {
		entries[i].Embedding = embeddings[i]
	}
	return h.store.Add(ctx, entries)
}

// extractFile reads an uploaded file, confined to the upload directory.
func (h *VectorHandler) extractFile(name string) (string, error) {
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("file path escapes the upload directory")
	}
	path := filepath.Join(h.cfg.UploadDir, clean)

	switch strings.ToLower(filepath.Ext(clean)) {
	case ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case ".pdf":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return scrape.ExtractPDFText(data)
	default:
		return "", fmt.Errorf("unsupported file type %q, send text_content instead", filepath.Ext(clean))
	}
}
