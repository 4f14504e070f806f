// Package repository provides data access interfaces and SQLite implementations.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmylchreest/livesearch-api/internal/models"
)

// TaskRepository manages persisted research task records.
type TaskRepository interface {
	Create(ctx context.Context, task *models.TaskRecord) error
	GetByID(ctx context.Context, id string) (*models.TaskRecord, error)
	Update(ctx context.Context, task *models.TaskRecord) error
	MarkStaleRunningFailed(ctx context.Context, maxAge time.Duration) (int64, error)
	DeleteOlderThan(ctx context.Context, maxAge time.Duration) (int64, error)
}

// DomainTrustRepository manages persisted domain trust profiles.
type DomainTrustRepository interface {
	GetByDomain(ctx context.Context, domain string) (*models.DomainTrustProfile, error)
	GetWildcardForTLD(ctx context.Context, tld string) (*models.DomainTrustProfile, error)
	Insert(ctx context.Context, profile *models.DomainTrustProfile) error
	IncrementReferenceCount(ctx context.Context, domain string) error
}

// SettingsRepository resolves database-backed configuration values.
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	ResolveEmbeddingModel(ctx context.Context) (string, error)
}

// CredentialRepository resolves per-provider API credentials.
type CredentialRepository interface {
	GetProviderConfig(ctx context.Context, providerName string) (map[string]string, error)
}

// Repositories bundles all repository implementations.
type Repositories struct {
	Task        TaskRepository
	DomainTrust DomainTrustRepository
	Settings    SettingsRepository
	Credentials CredentialRepository
}

// NewRepositories creates all repositories using the given database.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Task:        NewSQLiteTaskRepository(db),
		DomainTrust: NewSQLiteDomainTrustRepository(db),
		Settings:    NewSQLiteSettingsRepository(db),
		Credentials: NewSQLiteCredentialRepository(db),
	}
}
