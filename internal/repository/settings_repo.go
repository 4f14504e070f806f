package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteSettingsRepository implements SettingsRepository for SQLite.
type SQLiteSettingsRepository struct {
	db *sql.DB
}

// NewSQLiteSettingsRepository creates a new SQLite settings repository.
func NewSQLiteSettingsRepository(db *sql.DB) *SQLiteSettingsRepository {
	return &SQLiteSettingsRepository{db: db}
}

func (r *SQLiteSettingsRepository) GetSetting(ctx context.Context, key string) (string, error) {
	var value sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM system_settings WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value.String, nil
}

// ResolveEmbeddingModel returns the active embedding model identifier.
// The preferred id from system_settings wins; otherwise the models table is
// scanned for an active embedding model, preferring the default and the
// highest id. Returns empty string when nothing is configured.
func (r *SQLiteSettingsRepository) ResolveEmbeddingModel(ctx context.Context) (string, error) {
	preferredID, err := r.GetSetting(ctx, "preferred_local_embedding_model_id")
	if err != nil {
		return "", err
	}

	if preferredID != "" {
		var repo, path sql.NullString
		err := r.db.QueryRowContext(ctx,
			`SELECT huggingface_repo, model_path FROM models WHERE id = ? AND is_embedding_model = 1 AND is_active = 1`,
			preferredID,
		).Scan(&repo, &path)
		if err == nil {
			if path.String != "" {
				return path.String, nil
			}
			if repo.String != "" {
				return repo.String, nil
			}
		} else if err != sql.ErrNoRows {
			return "", fmt.Errorf("failed to resolve preferred embedding model: %w", err)
		}
	}

	var repo, path sql.NullString
	err = r.db.QueryRowContext(ctx, `
		SELECT huggingface_repo, model_path
		FROM models
		WHERE is_embedding_model = 1 AND is_active = 1
		ORDER BY is_default DESC, id DESC
		LIMIT 1
	`).Scan(&repo, &path)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve embedding model: %w", err)
	}
	if path.String != "" {
		return path.String, nil
	}
	return repo.String, nil
}
