package vector

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vectors.db"), 4, nil)
	if err != nil {
		t.Fatalf("failed to open vector store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedEntries(t *testing.T, s *Store) {
	t.Helper()
	entries := []Entry{
		{ID: "c1", GroupID: "task1", Index: 0, Text: "the raft consensus algorithm", Embedding: Normalize([]float32{1, 0, 0, 0}), Metadata: map[string]any{"kind": "web"}},
		{ID: "c2", GroupID: "task1", Index: 1, Text: "gardening tips for spring", Embedding: Normalize([]float32{0, 1, 0, 0}), Metadata: map[string]any{"kind": "web"}},
		{ID: "c3", GroupID: "task2", Index: 0, Text: "paxos and raft compared", Embedding: Normalize([]float32{1, 0.1, 0, 0}), Metadata: map[string]any{"kind": "upload"}},
	}
	n, err := s.Add(context.Background(), entries)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("added %d entries, want 3", n)
	}
}

func TestStore_VectorSearchOrdersByDistance(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)

	results, err := s.Search(context.Background(), Query{
		Embedding: Normalize([]float32{1, 0, 0, 0}),
		Limit:     3,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].ID != "c1" {
		t.Errorf("closest = %s, want c1", results[0].ID)
	}
	if results[0].Similarity < results[1].Similarity {
		t.Error("results not ordered by similarity")
	}
	if results[0].Similarity < 0.99 {
		t.Errorf("identical vector similarity = %v, want about 1", results[0].Similarity)
	}
}

func TestStore_GroupFilter(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)

	results, err := s.Search(context.Background(), Query{
		GroupID:   "task1",
		Embedding: Normalize([]float32{1, 0, 0, 0}),
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, r := range results {
		if r.ID == "c3" {
			t.Error("result from another group leaked through the filter")
		}
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestStore_KeywordSearch(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)

	results, err := s.Search(context.Background(), Query{
		Keywords: []string{"raft"},
		Limit:    10,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 raft chunks", len(results))
	}
}

func TestStore_MetadataFilter(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)

	results, err := s.Search(context.Background(), Query{
		Embedding: Normalize([]float32{1, 0, 0, 0}),
		Filter:    map[string]any{"kind": "upload"},
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "c3" {
		t.Errorf("results = %+v, want only c3", results)
	}
}

func TestStore_HybridSearch(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)

	// Keywords narrow to the raft chunks; the vector picks the closer one.
	results, err := s.Search(context.Background(), Query{
		Embedding: Normalize([]float32{1, 0, 0, 0}),
		Keywords:  []string{"raft"},
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "c1" {
		t.Errorf("top hybrid result = %s, want c1", results[0].ID)
	}
}

func TestStore_DeleteByGroup(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)
	ctx := context.Background()

	if err := s.DeleteByGroup(ctx, "task1"); err != nil {
		t.Fatalf("DeleteByGroup failed: %v", err)
	}

	n, err := s.CountByGroup(ctx, "task1")
	if err != nil {
		t.Fatalf("CountByGroup failed: %v", err)
	}
	if n != 0 {
		t.Errorf("task1 still has %d chunks", n)
	}

	// Other groups untouched, including their index rows.
	results, err := s.Search(ctx, Query{Keywords: []string{"raft"}, Limit: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "c3" {
		t.Errorf("results after delete = %+v, want only c3", results)
	}
}

func TestStore_KeywordSearchHandlesPunctuatedTerms(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Add(context.Background(), []Entry{
		{ID: "p1", GroupID: "g", Text: "long covid-19 symptom studies", Embedding: Normalize([]float32{1, 0, 0, 0})},
		{ID: "p2", GroupID: "g", Text: "unrelated gardening notes", Embedding: Normalize([]float32{0, 1, 0, 0})},
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	results, err := s.Search(context.Background(), Query{
		Keywords: []string{"covid-19", "o'brien"},
		Limit:    10,
	})
	if err != nil {
		t.Fatalf("punctuated keywords broke the search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "p1" {
		t.Errorf("results = %+v, want only p1", results)
	}
}

func TestStore_UploadProvenanceFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.Add(ctx, []Entry{
		{ID: "w1", GroupID: "g", Text: "scraped page text", Embedding: Normalize([]float32{1, 0, 0, 0})},
		{ID: "u1", GroupID: "g", Text: "uploaded document text", Embedding: Normalize([]float32{1, 0.1, 0, 0}),
			FromUploadedDoc: true, OriginalDocumentID: "doc-9"},
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	results, err := s.Search(ctx, Query{
		GroupID:   "g",
		Embedding: Normalize([]float32{1, 0, 0, 0}),
		Filter:    map[string]any{"is_from_uploaded_doc": true},
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "u1" {
		t.Errorf("results = %+v, want only the uploaded chunk", results)
	}

	results, err = s.Search(ctx, Query{
		GroupID:   "g",
		Embedding: Normalize([]float32{1, 0, 0, 0}),
		Filter:    map[string]any{"original_document_id": "doc-9"},
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "u1" {
		t.Errorf("results = %+v, want only doc-9's chunk", results)
	}
}

func TestStore_WrongDimensionSkipped(t *testing.T) {
	s := openTestStore(t)

	n, err := s.Add(context.Background(), []Entry{
		{ID: "ok", GroupID: "g", Text: "fine", Embedding: []float32{1, 0, 0, 0}},
		{ID: "bad", GroupID: "g", Text: "short vector", Embedding: []float32{1, 0}},
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if n != 1 {
		t.Errorf("added %d entries, want 1 (bad dimensionality skipped)", n)
	}
}
