package search

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/livesearch-api/internal/config"
	"github.com/jmylchreest/livesearch-api/internal/models"
	"github.com/jmylchreest/livesearch-api/internal/ratelimit"
	"github.com/jmylchreest/livesearch-api/internal/trust"
)

const specializedQueryKeywords = 3

// providers whose APIs want short keyword queries instead of natural language.
var keywordProviders = map[string]bool{
	"wikipedia":     true,
	"openalex":      true,
	"courtlistener": true,
}

// PassOptions tune a single search pass.
type PassOptions struct {
	// Providers to query, in preference order. Empty means the configured
	// default set.
	Providers []string
	// Credentials per provider name (api_key, cx, endpoint overrides).
	Credentials map[string]map[string]string
	// Limit is the max results requested from each provider.
	Limit int
	// FactCheck restricts the pass to general web providers, since claims
	// need verification against the open web rather than reference sources.
	FactCheck bool
	// Progress, when set, is called before each provider is queried.
	Progress func(provider, query string)
}

// Service fans a query out across search providers, attaches domain trust
// profiles to the results, and drops blocklisted domains. Failing providers
// are marked in the rate-limit registry so later passes skip them.
type Service struct {
	cfg       *config.Config
	providers map[string]Provider
	trust     *trust.Store
	limits    *ratelimit.Registry
	logger    *slog.Logger

	// overridable in tests
	shuffle func([]string)
}

func NewService(cfg *config.Config, trustStore *trust.Store, limits *ratelimit.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.SearchProviderTimeout
	s := &Service{
		cfg:    cfg,
		trust:  trustStore,
		limits: limits,
		logger: logger.With("component", "search"),
		providers: map[string]Provider{
			"duckduckgo":           NewDuckDuckGoProvider(timeout),
			"brave":                NewBraveProvider(timeout),
			"google_custom_search": NewGoogleCustomSearchProvider(timeout),
			"bing":                 NewBingProvider(timeout),
			"wikipedia":            NewWikipediaProvider(timeout),
			"openalex":             NewOpenAlexProvider(timeout),
			"courtlistener":        NewCourtListenerProvider(timeout),
		},
		shuffle: func(names []string) {
			rand.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })
		},
	}
	return s
}

// RegisterProvider replaces or adds a provider implementation.
func (s *Service) RegisterProvider(p Provider) {
	s.providers[p.Name()] = p
}

// SearchPass runs one query across the selected providers. It always returns
// whatever results it gathered; per-provider failures land in the errors map
// keyed by provider name.
func (s *Service) SearchPass(ctx context.Context, query string, opts PassOptions) ([]models.SearchResultItem, map[string]string) {
	provErrors := map[string]string{}

	selected := opts.Providers
	if len(selected) == 0 {
		selected = s.cfg.SearchProvidersDefault
	}
	if len(selected) == 0 {
		provErrors["internal_error"] = "no search providers configured"
		return nil, provErrors
	}

	if opts.FactCheck {
		selected = filterNames(selected, func(name string) bool { return generalWebProviders[name] })
		if len(selected) == 0 {
			selected = filterNames(s.cfg.SearchProvidersFallback, func(name string) bool { return generalWebProviders[name] })
		}
		if len(selected) == 0 {
			provErrors["fact_check_provider_unavailable"] = "no general web providers available"
			return nil, provErrors
		}
	} else if !IsLegalQuery(query) {
		selected = filterNames(selected, func(name string) bool { return name != "courtlistener" })
	}

	active := filterNames(selected, func(name string) bool { return !s.limits.IsIgnored(name) })
	if len(active) == 0 {
		active = filterNames(s.cfg.SearchProvidersFallback, func(name string) bool { return !s.limits.IsIgnored(name) })
		if len(active) == 0 {
			for _, name := range selected {
				provErrors[strings.ToLower(name)] = "provider is currently rate-limited"
			}
			return nil, provErrors
		}
	}
	s.shuffle(active)

	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.ResultsPerProviderQuery
	}

	if ctx.Err() != nil {
		provErrors["cancelled"] = "operation cancelled"
		return nil, provErrors
	}

	// Providers are independent, so the pass queries them all at once and
	// merges whatever comes back.
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []models.SearchResultItem
	)
	for _, name := range active {
		provider, ok := s.providers[name]
		if !ok {
			continue
		}

		providerQuery := query
		if keywordProviders[name] {
			providerQuery = SimplifyQuery(query, specializedQueryKeywords)
			if providerQuery == "" {
				continue
			}
		}
		if opts.Progress != nil {
			opts.Progress(name, providerQuery)
		}

		wg.Add(1)
		go func(name, providerQuery string, provider Provider) {
			defer wg.Done()
			items, err := s.callProvider(ctx, provider, providerQuery, opts.Credentials[name], limit)
			if err != nil {
				s.markFailure(name, err)
				mu.Lock()
				provErrors[name] = err.Error()
				mu.Unlock()
				return
			}
			vetted := s.vetResults(ctx, items)
			mu.Lock()
			results = append(results, vetted...)
			mu.Unlock()
		}(name, providerQuery, provider)
	}
	wg.Wait()
	return results, provErrors
}

func (s *Service) callProvider(ctx context.Context, p Provider, query string, creds map[string]string, limit int) ([]models.SearchResultItem, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.SearchProviderTimeout)
	defer cancel()
	return p.Search(callCtx, query, creds, limit)
}

// markFailure picks an ignore duration from the error class: timeouts get the
// short mark, rate limits and network trouble the default mark, credential
// failures the long one.
func (s *Service) markFailure(provider string, err error) {
	var d time.Duration
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		d = s.cfg.RateLimitShortDuration
	case errors.Is(err, ErrFatal):
		d = s.cfg.RateLimitFatalDuration
	case errors.Is(err, ErrTransient):
		d = s.cfg.RateLimitDefaultDuration
	default:
		// Parse errors and the like are not the provider's fault; try it
		// again next pass.
		s.logger.Warn("provider error", "provider", provider, "error", err)
		return
	}
	s.logger.Warn("marking provider ignored", "provider", provider, "duration", d, "error", err)
	if markErr := s.limits.Mark(provider, d); markErr != nil {
		s.logger.Error("failed to persist rate-limit mark", "provider", provider, "error", markErr)
	}
}

// vetResults attaches trust profiles and drops blocklisted domains.
func (s *Service) vetResults(ctx context.Context, items []models.SearchResultItem) []models.SearchResultItem {
	out := items[:0]
	for _, item := range items {
		domain := domainOf(item.URL)
		if domain == "" {
			continue
		}
		if s.isBlocked(domain) {
			s.logger.Debug("dropping blocklisted result", "domain", domain)
			continue
		}
		if s.trust != nil {
			item.Trust = s.trust.GetOrCreate(ctx, domain, item.URL)
		}
		out = append(out, item)
	}
	return out
}

func (s *Service) isBlocked(domain string) bool {
	for _, blocked := range s.cfg.DomainBlocklist {
		if domain == blocked || strings.HasSuffix(domain, "."+blocked) {
			return true
		}
	}
	return false
}

func filterNames(names []string, keep func(string) bool) []string {
	var out []string
	for _, n := range names {
		if keep(strings.ToLower(n)) {
			out = append(out, strings.ToLower(n))
		}
	}
	return out
}

func domainOf(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return trust.NormalizeDomain(u.Hostname())
}
