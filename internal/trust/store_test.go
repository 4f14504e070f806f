package trust

import (
	"context"
	"errors"
	"testing"

	"github.com/jmylchreest/livesearch-api/internal/models"
)

type fakeTrustRepo struct {
	rows      map[string]*models.DomainTrustProfile
	failReads bool
	inserted  []string
}

func newFakeTrustRepo() *fakeTrustRepo {
	return &fakeTrustRepo{rows: map[string]*models.DomainTrustProfile{}}
}

func (f *fakeTrustRepo) GetByDomain(ctx context.Context, domain string) (*models.DomainTrustProfile, error) {
	if f.failReads {
		return nil, errors.New("db unavailable")
	}
	if p, ok := f.rows[domain]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeTrustRepo) GetWildcardForTLD(ctx context.Context, tld string) (*models.DomainTrustProfile, error) {
	if f.failReads {
		return nil, errors.New("db unavailable")
	}
	if p, ok := f.rows["*."+tld]; ok && p.TLDTypeBonus > 0 {
		copied := *p
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeTrustRepo) Insert(ctx context.Context, profile *models.DomainTrustProfile) error {
	copied := *profile
	f.rows[profile.Domain] = &copied
	f.inserted = append(f.inserted, profile.Domain)
	return nil
}

func (f *fakeTrustRepo) IncrementReferenceCount(ctx context.Context, domain string) error {
	if p, ok := f.rows[domain]; ok {
		p.ReferenceCount++
	}
	return nil
}

type fixedAge struct {
	days  int
	known bool
	calls int
}

func (a *fixedAge) AgeDays(ctx context.Context, domain string) (int, bool) {
	a.calls++
	return a.days, a.known
}

func TestProvisionalScore(t *testing.T) {
	tests := []struct {
		name     string
		domain   string
		url      string
		ageDays  int
		ageKnown bool
		want     float64
	}{
		{"plain http", "example.com", "http://example.com/page", 0, false, 0.4},
		{"https", "example.com", "https://example.com/page", 0, false, 0.45},
		{"https old gov", "agency.gov", "https://agency.gov/report", 1000, true, 0.65},
		{"https young domain", "new.io", "https://new.io", 90, true, 0.4},
		{"http edu no age", "school.edu", "http://school.edu", 0, false, 0.5},
		{"middle-aged org", "npo.org", "https://npo.org", 400, true, 0.55},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := provisionalProfile(tt.domain, tt.url, tt.ageDays, tt.ageKnown)
			if p.TrustScore != tt.want {
				t.Errorf("score = %v, want %v", p.TrustScore, tt.want)
			}
			if p.TrustScore < 0 || p.TrustScore > 1 {
				t.Errorf("score %v outside [0,1]", p.TrustScore)
			}
			if p.ReferenceCount != 1 {
				t.Errorf("reference_count = %d, want 1", p.ReferenceCount)
			}
		})
	}
}

func TestGetOrCreate_InsertsUnseenDomain(t *testing.T) {
	repo := newFakeTrustRepo()
	store := NewStore(repo, nil, nil)

	p := store.GetOrCreate(context.Background(), "example.com", "https://example.com/a")
	if p == nil {
		t.Fatal("expected profile")
	}
	if len(repo.inserted) != 1 || repo.inserted[0] != "example.com" {
		t.Errorf("inserted = %v, want [example.com]", repo.inserted)
	}
}

func TestGetOrCreate_ExistingRowBumpsReferenceCount(t *testing.T) {
	repo := newFakeTrustRepo()
	store := NewStore(repo, nil, nil)
	ctx := context.Background()

	first := store.GetOrCreate(ctx, "example.com", "https://example.com/a")
	if first.ReferenceCount != 1 {
		t.Fatalf("first reference_count = %d, want 1", first.ReferenceCount)
	}
	second := store.GetOrCreate(ctx, "example.com", "https://example.com/b")
	if second.ReferenceCount != 2 {
		t.Errorf("second reference_count = %d, want 2", second.ReferenceCount)
	}
}

func TestGetOrCreate_WildcardFallback(t *testing.T) {
	repo := newFakeTrustRepo()
	repo.rows["*.gov"] = &models.DomainTrustProfile{
		Domain:       "*.gov",
		TrustScore:   0.8,
		TLDTypeBonus: 0.1,
	}
	store := NewStore(repo, nil, nil)

	p := store.GetOrCreate(context.Background(), "unseen.gov", "https://unseen.gov")
	if p.Domain != "*.gov" {
		t.Errorf("expected wildcard profile, got %q", p.Domain)
	}
	if len(repo.inserted) != 0 {
		t.Errorf("wildcard hit should not insert a row, inserted %v", repo.inserted)
	}
}

func TestGetOrCreate_DBFailureDegradesToProvisional(t *testing.T) {
	repo := newFakeTrustRepo()
	repo.failReads = true
	store := NewStore(repo, nil, nil)

	p := store.GetOrCreate(context.Background(), "example.com", "https://example.com")
	if p == nil {
		t.Fatal("expected provisional profile despite DB failure")
	}
	if p.TrustScore != 0.45 {
		t.Errorf("score = %v, want 0.45", p.TrustScore)
	}
}

func TestGetOrCreate_DomainFromSampleURL(t *testing.T) {
	repo := newFakeTrustRepo()
	store := NewStore(repo, nil, nil)

	p := store.GetOrCreate(context.Background(), "", "https://www.example.org/path")
	if p.Domain != "example.org" {
		t.Errorf("domain = %q, want example.org", p.Domain)
	}
}

func TestAgeCache(t *testing.T) {
	repo := newFakeTrustRepo()
	ages := &fixedAge{days: 1000, known: true}
	store := NewStore(repo, ages, nil)
	ctx := context.Background()

	store.GetOrCreate(ctx, "cached.com", "https://cached.com")
	// Second sighting of the same unseen domain hits the repo row instead,
	// so force fresh domains that share the cache key.
	store.lookupAge(ctx, "cached.com")
	store.lookupAge(ctx, "cached.com")

	if ages.calls != 1 {
		t.Errorf("age lookup called %d times, want 1 (cached)", ages.calls)
	}
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct{ in, want string }{
		{"WWW.Example.COM", "example.com"},
		{" example.org ", "example.org"},
		{"sub.www.example.com", "sub.www.example.com"},
	}
	for _, tt := range tests {
		if got := NormalizeDomain(tt.in); got != tt.want {
			t.Errorf("NormalizeDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
