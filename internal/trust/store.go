// Package trust scores and persists per-domain trust profiles used to bias
// search result ranking and report sources.
package trust

import (
	"context"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/livesearch-api/internal/models"
	"github.com/jmylchreest/livesearch-api/internal/repository"
)

// TLDs that carry a provisional scoring bonus for unseen domains.
var privilegedTLDs = map[string]float64{
	"gov": 0.10,
	"edu": 0.10,
	"org": 0.10,
}

// AgeLookup resolves a registration age in days for a domain. Implementations
// are expected to be slow (WHOIS); the store caches results for 24 hours.
// A return of (0, false) means the age is unknown.
type AgeLookup interface {
	AgeDays(ctx context.Context, domain string) (int, bool)
}

// unknownAge is the default lookup: age is treated as a best-effort signal
// and scoring proceeds without it when no resolver is configured.
type unknownAge struct{}

func (unknownAge) AgeDays(ctx context.Context, domain string) (int, bool) { return 0, false }

type ageCacheEntry struct {
	ageDays int
	known   bool
	fetched time.Time
}

// Store hands out trust profiles, creating provisional rows for unseen
// domains. Database failures degrade to unpersisted provisional scores; the
// caller never sees an error.
type Store struct {
	repo   repository.DomainTrustRepository
	ages   AgeLookup
	logger *slog.Logger

	mu       sync.Mutex
	ageCache map[string]ageCacheEntry
	ageTTL   time.Duration
}

// NewStore creates a trust store. ages may be nil, in which case domain age
// is treated as unknown.
func NewStore(repo repository.DomainTrustRepository, ages AgeLookup, logger *slog.Logger) *Store {
	if ages == nil {
		ages = unknownAge{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		repo:     repo,
		ages:     ages,
		logger:   logger.With("component", "trust"),
		ageCache: make(map[string]ageCacheEntry),
		ageTTL:   24 * time.Hour,
	}
}

// GetOrCreate returns the trust profile for the domain, preferring an exact
// row, then a wildcard TLD row, then a freshly computed provisional profile
// which is persisted with reference_count = 1. Existing rows get their
// reference count bumped.
func (s *Store) GetOrCreate(ctx context.Context, domain, sampleURL string) *models.DomainTrustProfile {
	domain = NormalizeDomain(domain)
	if domain == "" {
		if u, err := url.Parse(sampleURL); err == nil {
			domain = NormalizeDomain(u.Hostname())
		}
	}
	if domain == "" {
		return provisionalProfile("", sampleURL, 0, false)
	}

	if existing, err := s.repo.GetByDomain(ctx, domain); err == nil && existing != nil {
		if err := s.repo.IncrementReferenceCount(ctx, domain); err != nil {
			s.logger.Warn("failed to bump reference count", "domain", domain, "error", err)
		} else {
			existing.ReferenceCount++
		}
		return existing
	} else if err != nil {
		s.logger.Warn("trust lookup failed, using provisional score", "domain", domain, "error", err)
		ageDays, ageKnown := s.lookupAge(ctx, domain)
		return provisionalProfile(domain, sampleURL, ageDays, ageKnown)
	}

	if tld := lastLabel(domain); tld != "" {
		if wildcard, err := s.repo.GetWildcardForTLD(ctx, tld); err == nil && wildcard != nil {
			return wildcard
		}
	}

	ageDays, ageKnown := s.lookupAge(ctx, domain)
	profile := provisionalProfile(domain, sampleURL, ageDays, ageKnown)
	if err := s.repo.Insert(ctx, profile); err != nil {
		s.logger.Warn("failed to persist provisional trust profile", "domain", domain, "error", err)
	}
	return profile
}

func (s *Store) lookupAge(ctx context.Context, domain string) (int, bool) {
	s.mu.Lock()
	if entry, ok := s.ageCache[domain]; ok && time.Since(entry.fetched) < s.ageTTL {
		s.mu.Unlock()
		return entry.ageDays, entry.known
	}
	s.mu.Unlock()

	ageDays, known := s.ages.AgeDays(ctx, domain)

	s.mu.Lock()
	s.ageCache[domain] = ageCacheEntry{ageDays: ageDays, known: known, fetched: time.Now()}
	s.mu.Unlock()
	return ageDays, known
}

// provisionalProfile computes the first-sighting score for a domain:
// 0.4 base, +0.05 for https, +0.10 old domain (> 2y) or -0.05 young (< 6m),
// +0.10 privileged TLD, clamped to [0.05, 0.95] and rounded to 3 decimals.
func provisionalProfile(domain, sampleURL string, ageDays int, ageKnown bool) *models.DomainTrustProfile {
	isHTTPS := strings.HasPrefix(strings.ToLower(sampleURL), "https://")

	score := 0.4
	if isHTTPS {
		score += 0.05
	}
	if ageKnown {
		switch {
		case ageDays > 730:
			score += 0.10
		case ageDays < 180:
			score -= 0.05
		}
	}

	bonus := privilegedTLDs[lastLabel(domain)]
	score += bonus

	score = math.Max(0.05, math.Min(0.95, score))
	score = math.Round(score*1000) / 1000

	now := time.Now().UTC()
	return &models.DomainTrustProfile{
		Domain:         domain,
		TrustScore:     score,
		IsHTTPS:        isHTTPS,
		DomainAgeDays:  ageDays,
		TLDTypeBonus:   bonus,
		ReferenceCount: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NormalizeDomain lowercases a host and strips any leading www prefix.
func NormalizeDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimPrefix(host, "www.")
	return host
}

func lastLabel(domain string) string {
	idx := strings.LastIndex(domain, ".")
	if idx < 0 || idx == len(domain)-1 {
		return ""
	}
	return domain[idx+1:]
}
