package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmylchreest/livesearch-api/internal/models"
)

// SQLiteDomainTrustRepository implements DomainTrustRepository for SQLite.
type SQLiteDomainTrustRepository struct {
	db *sql.DB
}

// NewSQLiteDomainTrustRepository creates a new SQLite domain trust repository.
func NewSQLiteDomainTrustRepository(db *sql.DB) *SQLiteDomainTrustRepository {
	return &SQLiteDomainTrustRepository{db: db}
}

const trustProfileColumns = `domain, trust_score, is_https, domain_age_days,
	tld_type_bonus, reference_count, last_scanned_date, created_at, updated_at`

func (r *SQLiteDomainTrustRepository) GetByDomain(ctx context.Context, domain string) (*models.DomainTrustProfile, error) {
	query := `SELECT ` + trustProfileColumns + ` FROM domain_trust_profiles WHERE domain = ?`
	return scanTrustProfile(r.db.QueryRowContext(ctx, query, domain))
}

// GetWildcardForTLD looks up a wildcard fallback row ("*.gov", "*.edu", ...)
// for the given TLD. Only rows with a positive tld_type_bonus qualify.
func (r *SQLiteDomainTrustRepository) GetWildcardForTLD(ctx context.Context, tld string) (*models.DomainTrustProfile, error) {
	query := `SELECT ` + trustProfileColumns + `
		FROM domain_trust_profiles
		WHERE domain = ? AND tld_type_bonus > 0`
	return scanTrustProfile(r.db.QueryRowContext(ctx, query, "*."+tld))
}

func (r *SQLiteDomainTrustRepository) Insert(ctx context.Context, profile *models.DomainTrustProfile) error {
	query := `
		INSERT INTO domain_trust_profiles (domain, trust_score, is_https, domain_age_days,
			tld_type_bonus, reference_count, last_scanned_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		profile.Domain,
		profile.TrustScore,
		boolToInt(profile.IsHTTPS),
		profile.DomainAgeDays,
		profile.TLDTypeBonus,
		profile.ReferenceCount,
		nullTimeValue(profile.LastScannedDate),
		profile.CreatedAt.Format(time.RFC3339),
		profile.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trust profile: %w", err)
	}
	return nil
}

func (r *SQLiteDomainTrustRepository) IncrementReferenceCount(ctx context.Context, domain string) error {
	query := `
		UPDATE domain_trust_profiles
		SET reference_count = reference_count + 1, updated_at = ?
		WHERE domain = ?
	`
	_, err := r.db.ExecContext(ctx, query, time.Now().UTC().Format(time.RFC3339), domain)
	if err != nil {
		return fmt.Errorf("failed to increment reference count: %w", err)
	}
	return nil
}

func scanTrustProfile(row *sql.Row) (*models.DomainTrustProfile, error) {
	var p models.DomainTrustProfile
	var isHTTPS int
	var ageDays sql.NullInt64
	var lastScanned sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&p.Domain,
		&p.TrustScore,
		&isHTTPS,
		&ageDays,
		&p.TLDTypeBonus,
		&p.ReferenceCount,
		&lastScanned,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan trust profile: %w", err)
	}

	p.IsHTTPS = isHTTPS != 0
	p.DomainAgeDays = int(ageDays.Int64)
	if t := parseNullTime(lastScanned); t != nil {
		p.LastScannedDate = *t
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTimeValue(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}
