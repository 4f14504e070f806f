package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jmylchreest/livesearch-api/internal/models"
)

func TestDomainTrustRepository_InsertAndGet(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	now := time.Now().UTC()
	profile := &models.DomainTrustProfile{
		Domain:         "example.gov",
		TrustScore:     0.65,
		IsHTTPS:        true,
		DomainAgeDays:  900,
		TLDTypeBonus:   0.1,
		ReferenceCount: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repos.DomainTrust.Insert(ctx, profile); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := repos.DomainTrust.GetByDomain(ctx, "example.gov")
	if err != nil {
		t.Fatalf("GetByDomain failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected profile, got nil")
	}
	if got.TrustScore != 0.65 {
		t.Errorf("trust_score = %v, want 0.65", got.TrustScore)
	}
	if !got.IsHTTPS {
		t.Error("expected is_https true")
	}
	if got.ReferenceCount != 1 {
		t.Errorf("reference_count = %d, want 1", got.ReferenceCount)
	}
}

func TestDomainTrustRepository_GetMissing(t *testing.T) {
	repos := setupTestRepos(t)

	got, err := repos.DomainTrust.GetByDomain(context.Background(), "unknown.example")
	if err != nil {
		t.Fatalf("GetByDomain failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown domain, got %+v", got)
	}
}

func TestDomainTrustRepository_WildcardLookup(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	now := time.Now().UTC()
	wildcard := &models.DomainTrustProfile{
		Domain:         "*.gov",
		TrustScore:     0.8,
		TLDTypeBonus:   0.1,
		ReferenceCount: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repos.DomainTrust.Insert(ctx, wildcard); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	// Wildcard rows without a bonus never match.
	noBonus := &models.DomainTrustProfile{
		Domain:         "*.net",
		TrustScore:     0.5,
		TLDTypeBonus:   0,
		ReferenceCount: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repos.DomainTrust.Insert(ctx, noBonus); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := repos.DomainTrust.GetWildcardForTLD(ctx, "gov")
	if err != nil {
		t.Fatalf("GetWildcardForTLD failed: %v", err)
	}
	if got == nil || got.Domain != "*.gov" {
		t.Fatalf("expected *.gov wildcard, got %+v", got)
	}

	got, err = repos.DomainTrust.GetWildcardForTLD(ctx, "net")
	if err != nil {
		t.Fatalf("GetWildcardForTLD failed: %v", err)
	}
	if got != nil {
		t.Errorf("wildcard without bonus should not match, got %+v", got)
	}
}

func TestDomainTrustRepository_IncrementReferenceCount(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	now := time.Now().UTC()
	profile := &models.DomainTrustProfile{
		Domain:         "news.example.org",
		TrustScore:     0.5,
		ReferenceCount: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repos.DomainTrust.Insert(ctx, profile); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := repos.DomainTrust.IncrementReferenceCount(ctx, "news.example.org"); err != nil {
			t.Fatalf("IncrementReferenceCount failed: %v", err)
		}
	}

	got, _ := repos.DomainTrust.GetByDomain(ctx, "news.example.org")
	if got.ReferenceCount != 4 {
		t.Errorf("reference_count = %d, want 4", got.ReferenceCount)
	}
}
