// Package vector stores content chunks with their embeddings in SQLite and
// serves vector, keyword and hybrid retrieval over them. The sqlite-vec
// extension provides the distance function and the vec0 virtual table.
package vector

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jmylchreest/livesearch-api/internal/models"
)

func init() {
	// Registers sqlite-vec as an auto-loaded extension on every new
	// mattn/go-sqlite3 connection.
	vec.Auto()
}

// Store is the embedding store. All writes are serialized; SQLite handles
// concurrent reads.
type Store struct {
	db     *sql.DB
	dims   int
	logger *slog.Logger
	mu     sync.Mutex
}

// Open opens (or creates) the vector database at path. dims fixes the
// embedding dimensionality for the vec0 table; it cannot change once the
// table exists.
func Open(path string, dims int, logger *slog.Logger) (*Store, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", dims)
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dims: dims, logger: logger.With("component", "vector")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS research_chunks (
			id TEXT PRIMARY KEY,
			group_id TEXT NOT NULL,
			doc_id TEXT,
			chunk_index INTEGER NOT NULL DEFAULT 0,
			text_content TEXT NOT NULL,
			metadata TEXT,
			is_from_uploaded_doc INTEGER NOT NULL DEFAULT 0,
			original_document_id TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_research_chunks_group ON research_chunks(group_id)`,
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS research_vec USING vec0(embedding float[%d], chunk_id TEXT)`, s.dims),
		`CREATE VIRTUAL TABLE IF NOT EXISTS research_fts USING fts5(text_content, chunk_id UNINDEXED)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize vector schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Entry is one chunk plus its embedding, ready for insertion. Uploaded
// documents set FromUploadedDoc and carry the source document's ID so their
// chunks can be filtered or purged independently of scraped content.
type Entry struct {
	ID                 string
	GroupID            string
	DocID              string
	Index              int
	Text               string
	Metadata           map[string]any
	FromUploadedDoc    bool
	OriginalDocumentID string
	Embedding          []float32
}

// Add inserts entries transactionally. Entries whose embedding has the wrong
// dimensionality are skipped with a warning rather than failing the batch.
func (s *Store) Add(ctx context.Context, entries []Entry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	added := 0
	for _, e := range entries {
		if len(e.Embedding) != s.dims {
			s.logger.Warn("skipping chunk with wrong embedding dimensionality",
				"chunk_id", e.ID, "got", len(e.Embedding), "want", s.dims)
			continue
		}
		metaJSON, err := json.Marshal(e.Metadata)
		if err != nil {
			metaJSON = []byte("{}")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO research_chunks (id, group_id, doc_id, chunk_index, text_content, metadata, is_from_uploaded_doc, original_document_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.GroupID, e.DocID, e.Index, e.Text, string(metaJSON), e.FromUploadedDoc, nullString(e.OriginalDocumentID), time.Now().UTC()); err != nil {
			return added, fmt.Errorf("failed to insert chunk %s: %w", e.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO research_vec (embedding, chunk_id) VALUES (?, ?)`,
			encodeEmbedding(e.Embedding), e.ID); err != nil {
			return added, fmt.Errorf("failed to insert embedding for %s: %w", e.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO research_fts (text_content, chunk_id) VALUES (?, ?)`,
			e.Text, e.ID); err != nil {
			return added, fmt.Errorf("failed to index chunk %s: %w", e.ID, err)
		}
		added++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit chunk batch: %w", err)
	}
	return added, nil
}

// Query selects chunks. At least one of Embedding and Keywords must be set;
// with both set the keyword matches are re-ranked by vector distance.
type Query struct {
	GroupID   string
	Embedding []float32
	Keywords  []string
	Filter    map[string]any
	Limit     int
}

func (s *Store) Search(ctx context.Context, q Query) ([]models.VectorSearchResult, error) {
	if len(q.Embedding) == 0 && len(q.Keywords) == 0 && len(q.Filter) == 0 {
		return nil, fmt.Errorf("search needs an embedding, keywords, or a metadata filter")
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}

	switch {
	case len(q.Embedding) > 0 && len(q.Keywords) > 0:
		return s.hybridSearch(ctx, q)
	case len(q.Embedding) > 0:
		return s.vectorSearch(ctx, q)
	default:
		return s.keywordSearch(ctx, q)
	}
}

func (s *Store) vectorSearch(ctx context.Context, q Query) ([]models.VectorSearchResult, error) {
	where, args := s.filterClause(q)
	query := fmt.Sprintf(`
		SELECT c.id, c.text_content, c.metadata, vec_distance_cosine(v.embedding, ?) AS distance
		FROM research_vec v
		JOIN research_chunks c ON c.id = v.chunk_id
		%s
		ORDER BY distance ASC
		LIMIT ?`, where)

	allArgs := append([]any{encodeEmbedding(q.Embedding)}, args...)
	allArgs = append(allArgs, q.Limit)
	rows, err := s.db.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()
	return scanResults(rows, true)
}

func (s *Store) keywordSearch(ctx context.Context, q Query) ([]models.VectorSearchResult, error) {
	match := BuildFTSQuery(q.Keywords)
	if match == "" {
		return nil, nil
	}
	where, args := s.filterClause(q)
	query := fmt.Sprintf(`
		SELECT c.id, c.text_content, c.metadata, -1.0 AS distance
		FROM research_fts
		JOIN research_chunks c ON c.id = research_fts.chunk_id
		%s
		LIMIT ?`, andClause(where, "research_fts MATCH ?"))

	allArgs := append(args, match, q.Limit)
	rows, err := s.db.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	defer rows.Close()
	return scanResults(rows, false)
}

// hybridSearch takes an oversampled keyword candidate set and re-ranks it by
// vector distance.
func (s *Store) hybridSearch(ctx context.Context, q Query) ([]models.VectorSearchResult, error) {
	match := BuildFTSQuery(q.Keywords)
	if match == "" {
		return s.vectorSearch(ctx, q)
	}
	where, args := s.filterClause(q)
	query := fmt.Sprintf(`
		SELECT c.id, c.text_content, c.metadata, vec_distance_cosine(v.embedding, ?) AS distance
		FROM research_fts
		JOIN research_chunks c ON c.id = research_fts.chunk_id
		JOIN research_vec v ON v.chunk_id = c.id
		%s
		ORDER BY distance ASC
		LIMIT ?`, andClause(where, "research_fts MATCH ?"))

	allArgs := append([]any{encodeEmbedding(q.Embedding)}, args...)
	allArgs = append(allArgs, match, q.Limit)
	rows, err := s.db.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("hybrid search failed: %w", err)
	}
	defer rows.Close()
	return scanResults(rows, true)
}

// filterClause builds the WHERE clause for group and metadata constraints.
// Only string, bool and numeric filter values are supported; anything else
// is skipped.
func (s *Store) filterClause(q Query) (string, []any) {
	var conds []string
	var args []any
	if q.GroupID != "" {
		conds = append(conds, "c.group_id = ?")
		args = append(args, q.GroupID)
	}
	for key, value := range q.Filter {
		// Provenance lives in real columns, not the metadata JSON.
		switch key {
		case "is_from_uploaded_doc":
			conds = append(conds, "c.is_from_uploaded_doc = ?")
			args = append(args, value)
			continue
		case "original_document_id":
			conds = append(conds, "c.original_document_id = ?")
			args = append(args, value)
			continue
		}
		switch v := value.(type) {
		case string:
			conds = append(conds, "json_extract(c.metadata, '$.'||?) = ?")
			args = append(args, key, v)
		case bool:
			conds = append(conds, "json_extract(c.metadata, '$.'||?) = ?")
			args = append(args, key, v)
		case int, int64, float64:
			conds = append(conds, "json_extract(c.metadata, '$.'||?) = ?")
			args = append(args, key, v)
		default:
			s.logger.Warn("unsupported metadata filter value type", "key", key, "type", fmt.Sprintf("%T", value))
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func andClause(where, extra string) string {
	if where == "" {
		return "WHERE " + extra
	}
	return where + " AND " + extra
}

// DeleteByGroup removes all chunks, embeddings and index rows for a group.
func (s *Store) DeleteByGroup(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM research_vec WHERE chunk_id IN (SELECT id FROM research_chunks WHERE group_id = ?)`, groupID); err != nil {
		return fmt.Errorf("failed to delete embeddings for group %s: %w", groupID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM research_fts WHERE chunk_id IN (SELECT id FROM research_chunks WHERE group_id = ?)`, groupID); err != nil {
		return fmt.Errorf("failed to delete index rows for group %s: %w", groupID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM research_chunks WHERE group_id = ?`, groupID); err != nil {
		return fmt.Errorf("failed to delete chunks for group %s: %w", groupID, err)
	}
	return tx.Commit()
}

// CountByGroup reports how many chunks a group holds.
func (s *Store) CountByGroup(ctx context.Context, groupID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM research_chunks WHERE group_id = ?`, groupID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func scanResults(rows *sql.Rows, hasDistance bool) ([]models.VectorSearchResult, error) {
	var out []models.VectorSearchResult
	for rows.Next() {
		var r models.VectorSearchResult
		var metaJSON sql.NullString
		var distance float64
		if err := rows.Scan(&r.ID, &r.Text, &metaJSON, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		if metaJSON.Valid && metaJSON.String != "" {
			_ = json.Unmarshal([]byte(metaJSON.String), &r.Metadata)
		}
		r.Distance = distance
		if hasDistance {
			r.Similarity = 1.0 - distance
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// BuildFTSQuery joins keywords into an OR query for FTS5. Anything that is
// not a plain word is phrase-quoted, since FTS5 treats punctuation like the
// hyphen in "covid-19" or the apostrophe in "o'brien" as syntax. Purely
// numeric terms are quoted too.
func BuildFTSQuery(keywords []string) string {
	var terms []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		escaped := strings.ReplaceAll(kw, `"`, `""`)
		if !isBareword(kw) || isNumeric(kw) {
			terms = append(terms, `"`+escaped+`"`)
		} else {
			terms = append(terms, escaped)
		}
	}
	return strings.Join(terms, " OR ")
}

// isBareword reports whether FTS5 can take the term unquoted.
func isBareword(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return s != ""
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// encodeEmbedding serializes a float32 vector little-endian, the layout
// sqlite-vec expects for blob parameters.
func encodeEmbedding(v []float32) []byte {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return nil
	}
	return buf.Bytes()
}
