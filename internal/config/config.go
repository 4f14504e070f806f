// Package config handles application configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration. Values come from environment
// variables with sensible defaults; the two database-resolved settings
// (embedding model, provider credentials) are layered on after startup by
// ResolveFromDB.
type Config struct {
	Host    string
	Port    int
	BaseURL string

	// Application database (settings, credentials, trust profiles, task records).
	DatabaseURL string

	// Vector store.
	VectorDBPath        string
	VectorTableName     string
	EmbeddingEndpoint   string
	EmbeddingModel      string // resolved from DB when empty
	EmbeddingBatchSize  int
	EmbeddingDimensions int // 0 = discover from first embed call

	// Local model endpoint for streaming completions.
	LocalLLMAPIBase       string
	InternalAPIBaseURL    string
	InternalAPIEndpoint   string

	// Search.
	SearchProvidersDefault  []string
	SearchProvidersFallback []string
	SearchProviderTimeout   time.Duration
	ResultsPerProviderQuery int
	DomainBlocklist         []string

	// Per-provider API credentials; env values override DB-resolved ones.
	GoogleAPIKey        string
	GoogleCX            string
	BraveAPIKey         string
	BingAPIKey          string
	CourtListenerAPIKey string
	XAIAPIKey           string
	XAIBaseURL          string

	// Rate-limit registry.
	RateLimitFilePath        string
	RateLimitDefaultDuration time.Duration
	RateLimitShortDuration   time.Duration
	RateLimitFatalDuration   time.Duration

	// Scraping.
	ScrapeWorkerBinary      string
	ScrapeSubprocessTimeout time.Duration
	ScrapeConcurrency       int
	ScrapeRespectRobots     bool
	UploadDir               string

	// Research pipeline tunables.
	MaxHops                int
	MaxQueriesPerHop       int
	MaxURLsPerTask         int
	ChunkSizeWords         int
	ChunkOverlapWords      int
	TopKRetrievalPerHop    int
	SynthesisMaxChunks     int
	SynthesisTargetWords   int
	SummaryWordThreshold   int
	URLExplorationDepth    int

	// LLM adapter.
	LLMMaxRetries        int
	LLMDefaultTemp       float64
	LLMDefaultMaxTokens  int
	LLMContextFallback   int
	LLMMinCompletion     int
	LLMSafetyBuffer      int
	ReasoningDefaultTemp float64
	SynthesisDefaultTemp float64

	// Task lifecycle / SSE.
	SSEHeartbeatInterval time.Duration
	TaskCleanupDelay     time.Duration
	TaskStaleAfter       time.Duration

	// CORS.
	CORSOrigins []string

	// Idle shutdown for scale-to-zero deployments (0 = disabled).
	IdleTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Host:    getEnv("LIVE_SEARCH_SERVER_HOST", "0.0.0.0"),
		Port:    getEnvInt("LIVE_SEARCH_SERVER_PORT", 8001),
		BaseURL: getEnv("BASE_URL", "http://localhost:8001"),

		DatabaseURL: getEnv("DATABASE_URL", "file:livesearch.db?_journal=WAL&_timeout=5000"),

		VectorDBPath:        getEnv("VECTOR_DB_PATH", "data/research_vectors.db"),
		VectorTableName:     getEnv("VECTOR_TABLE_NAME", "research_embeddings"),
		EmbeddingEndpoint:   getEnv("EMBEDDING_ENDPOINT", "http://localhost:11434"),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", ""),
		EmbeddingBatchSize:  getEnvInt("EMBEDDING_BATCH_SIZE", 64),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),

		LocalLLMAPIBase:     getEnv("LOCAL_LLM_API_BASE", "http://localhost:3000/api/v1"),
		InternalAPIBaseURL:  getEnv("INTERNAL_NODE_API_BASE_URL", "http://localhost:3000"),
		InternalAPIEndpoint: getEnv("INTERNAL_NODE_API_ENDPOINT_PATH", "/api/internal/v1/local_completion"),

		SearchProvidersDefault:  getEnvSlice("SEARCH_PROVIDERS_DEFAULT", []string{"duckduckgo", "wikipedia", "courtlistener"}),
		SearchProvidersFallback: getEnvSlice("SEARCH_PROVIDERS_FALLBACK", []string{"brave", "google_custom_search", "bing"}),
		SearchProviderTimeout:   getEnvDuration("SEARCH_PROVIDER_TIMEOUT", 20*time.Second),
		ResultsPerProviderQuery: getEnvInt("RESULTS_PER_PROVIDER_QUERY", 5),
		DomainBlocklist: getEnvSlice("DOMAIN_BLOCKLIST", []string{
			"twitter.com", "x.com", "facebook.com", "instagram.com", "tiktok.com",
			"pinterest.com", "reddit.com", "tumblr.com", "snapchat.com", "t.me",
		}),

		GoogleAPIKey:        getEnv("GOOGLE_API_KEY", ""),
		GoogleCX:            getEnv("GOOGLE_CX", ""),
		BraveAPIKey:         getEnv("BRAVE_SEARCH_API_KEY", ""),
		BingAPIKey:          getEnv("BING_API_KEY", ""),
		CourtListenerAPIKey: getEnv("COURTLISTENER_API_KEY", ""),
		XAIAPIKey:           getEnv("XAI_API_KEY", ""),
		XAIBaseURL:          getEnv("XAI_BASE_URL", "https://api.x.ai/v1"),

		RateLimitFilePath:        getEnv("RATE_LIMIT_FILE_PATH", "data/search_rate_limits.json"),
		RateLimitDefaultDuration: getEnvDuration("RATE_LIMIT_DEFAULT_DURATION", 30*time.Minute),
		RateLimitShortDuration:   getEnvDuration("RATE_LIMIT_SHORT_DURATION", 5*time.Minute),
		RateLimitFatalDuration:   getEnvDuration("RATE_LIMIT_FATAL_DURATION", time.Hour),

		ScrapeWorkerBinary:      getEnv("SCRAPE_WORKER_BINARY", "scrapeworker"),
		ScrapeSubprocessTimeout: getEnvDuration("SCRAPE_SUBPROCESS_TIMEOUT", 25*time.Second),
		ScrapeConcurrency:       getEnvInt("SCRAPE_CONCURRENCY", 10),
		ScrapeRespectRobots:     getEnvBool("SCRAPE_RESPECT_ROBOTS", true),
		UploadDir:               getEnv("UPLOAD_DIR", "uploads"),

		MaxHops:              getEnvInt("MAX_HOPS", 1),
		MaxQueriesPerHop:     getEnvInt("MAX_QUERIES_PER_HOP", 5),
		MaxURLsPerTask:       getEnvInt("MAX_TOTAL_URLS_PER_TASK", 100),
		ChunkSizeWords:       getEnvInt("CHUNK_SIZE_WORDS", 500),
		ChunkOverlapWords:    getEnvInt("CHUNK_OVERLAP_WORDS", 100),
		TopKRetrievalPerHop:  getEnvInt("TOP_K_RETRIEVAL_PER_HOP", 30),
		SynthesisMaxChunks:   getEnvInt("SYNTHESIS_MAX_CHUNKS", 150),
		SynthesisTargetWords: getEnvInt("SYNTHESIS_TARGET_WORD_COUNT", 1500),
		SummaryWordThreshold: getEnvInt("SUMMARY_WORD_THRESHOLD", 2000),
		URLExplorationDepth:  getEnvInt("URL_EXPLORATION_DEPTH", 5),

		LLMMaxRetries:        getEnvInt("LLM_CALL_MAX_RETRIES", 2),
		LLMDefaultTemp:       getEnvFloat("LLM_DEFAULT_TEMPERATURE", 0.3),
		LLMDefaultMaxTokens:  getEnvInt("LLM_DEFAULT_MAX_TOKENS", 3072),
		LLMContextFallback:   getEnvInt("LLM_CONTEXT_WINDOW_FALLBACK", 8192),
		LLMMinCompletion:     getEnvInt("LLM_MIN_COMPLETION_TOKENS", 1024),
		LLMSafetyBuffer:      getEnvInt("LLM_SAFETY_BUFFER_TOKENS", 200),
		ReasoningDefaultTemp: getEnvFloat("REASONING_DEFAULT_TEMP", 0.2),
		SynthesisDefaultTemp: getEnvFloat("SYNTHESIS_DEFAULT_TEMP", 0.1),

		SSEHeartbeatInterval: getEnvDuration("SSE_HEARTBEAT_INTERVAL", 2*time.Second),
		TaskCleanupDelay:     getEnvDuration("TASK_CLEANUP_DELAY", 2*time.Second),
		TaskStaleAfter:       getEnvDuration("TASK_STALE_AFTER", time.Hour),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"*"}),

		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0),
	}

	return cfg, nil
}

// ProviderCredentials returns the merged credential view for the given search
// provider: DB-resolved values first, env overrides applied by Load having
// already populated the struct fields.
func (c *Config) ProviderCredentials() map[string]map[string]string {
	creds := map[string]map[string]string{}
	if c.GoogleAPIKey != "" {
		creds["google_custom_search"] = map[string]string{"api_key": c.GoogleAPIKey, "cx": c.GoogleCX}
	}
	if c.BraveAPIKey != "" {
		creds["brave"] = map[string]string{"api_key": c.BraveAPIKey}
	}
	if c.BingAPIKey != "" {
		creds["bing"] = map[string]string{"api_key": c.BingAPIKey}
	}
	if c.CourtListenerAPIKey != "" {
		creds["courtlistener"] = map[string]string{"api_key": c.CourtListenerAPIKey}
	}
	if c.XAIAPIKey != "" {
		creds["xai"] = map[string]string{"api_key": c.XAIAPIKey, "base_url": c.XAIBaseURL}
	}
	return creds
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
