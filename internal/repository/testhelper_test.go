package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/jmylchreest/livesearch-api/internal/database/migrations"
	_ "github.com/tursodatabase/go-libsql"
)

// setupTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a database connection that will be cleaned up
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db := setupTestDB(t)
	return NewRepositories(db)
}

// insertTestProvider inserts an api_providers row with an optional key and
// returns the provider id.
func insertTestProvider(t *testing.T, db *sql.DB, name, endpointsJSON, apiKey string) int64 {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := db.Exec(
		`INSERT INTO api_providers (name, endpoints, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		name, endpointsJSON, now, now,
	)
	if err != nil {
		t.Fatalf("failed to insert test provider: %v", err)
	}
	id, _ := res.LastInsertId()
	if apiKey != "" {
		if _, err := db.Exec(
			`INSERT INTO api_keys (provider_id, key_value, is_global, is_active, created_at) VALUES (?, ?, 1, 1, ?)`,
			id, apiKey, now,
		); err != nil {
			t.Fatalf("failed to insert test api key: %v", err)
		}
	}
	return id
}

// insertTestModel inserts a models row and returns its id.
func insertTestModel(t *testing.T, db *sql.DB, name, repo, path string, embedding, active, isDefault bool) int64 {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := db.Exec(`
		INSERT INTO models (name, huggingface_repo, model_path, is_embedding_model, is_active, is_default, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, name, repo, path, boolToInt(embedding), boolToInt(active), boolToInt(isDefault), now, now)
	if err != nil {
		t.Fatalf("failed to insert test model: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

// insertTestSetting writes a system_settings row.
func insertTestSetting(t *testing.T, db *sql.DB, key, value string) {
	t.Helper()
	if _, err := db.Exec(
		`INSERT INTO system_settings (key, value, updated_at) VALUES (?, ?, datetime('now'))`,
		key, value,
	); err != nil {
		t.Fatalf("failed to insert test setting: %v", err)
	}
}
