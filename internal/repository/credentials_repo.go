package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
)

// SQLiteCredentialRepository implements CredentialRepository for SQLite.
type SQLiteCredentialRepository struct {
	db *sql.DB
}

// NewSQLiteCredentialRepository creates a new SQLite credential repository.
func NewSQLiteCredentialRepository(db *sql.DB) *SQLiteCredentialRepository {
	return &SQLiteCredentialRepository{db: db}
}

// GetProviderConfig merges the provider's endpoint overrides (a JSON object
// in api_providers.endpoints) with its active global API key into a single
// map. Missing provider or key yields a partial (possibly empty) map, not an
// error; only database failures are reported.
func (r *SQLiteCredentialRepository) GetProviderConfig(ctx context.Context, providerName string) (map[string]string, error) {
	config := map[string]string{}

	var providerID int64
	var endpointsJSON sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, endpoints FROM api_providers WHERE name = ?`, providerName,
	).Scan(&providerID, &endpointsJSON)
	if err == sql.ErrNoRows {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query provider %s: %w", providerName, err)
	}

	if endpointsJSON.String != "" {
		var endpoints map[string]string
		if err := json.Unmarshal([]byte(endpointsJSON.String), &endpoints); err != nil {
			slog.Warn("could not parse provider endpoints JSON", "provider", providerName, "error", err)
		} else {
			for k, v := range endpoints {
				config[k] = v
			}
		}
	}

	var keyValue sql.NullString
	err = r.db.QueryRowContext(ctx, `
		SELECT key_value
		FROM api_keys
		WHERE provider_id = ? AND is_global = 1 AND is_active = 1
		LIMIT 1
	`, providerID).Scan(&keyValue)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query API key for %s: %w", providerName, err)
	}
	if keyValue.String != "" {
		config["api_key"] = keyValue.String
	}

	return config, nil
}
