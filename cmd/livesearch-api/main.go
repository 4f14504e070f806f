// Package main is the entry point for the livesearch-api server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/jmylchreest/livesearch-api/internal/config"
	"github.com/jmylchreest/livesearch-api/internal/database"
	"github.com/jmylchreest/livesearch-api/internal/graph"
	"github.com/jmylchreest/livesearch-api/internal/http/handlers"
	"github.com/jmylchreest/livesearch-api/internal/http/mw"
	"github.com/jmylchreest/livesearch-api/internal/http/routes"
	"github.com/jmylchreest/livesearch-api/internal/llm"
	"github.com/jmylchreest/livesearch-api/internal/logging"
	"github.com/jmylchreest/livesearch-api/internal/ratelimit"
	"github.com/jmylchreest/livesearch-api/internal/repository"
	"github.com/jmylchreest/livesearch-api/internal/scrape"
	"github.com/jmylchreest/livesearch-api/internal/search"
	"github.com/jmylchreest/livesearch-api/internal/shutdown"
	"github.com/jmylchreest/livesearch-api/internal/task"
	"github.com/jmylchreest/livesearch-api/internal/trust"
	"github.com/jmylchreest/livesearch-api/internal/vector"
	"github.com/jmylchreest/livesearch-api/internal/version"
	"github.com/jmylchreest/livesearch-api/internal/worker"
)

func main() {
	// Initialize logger with TTY detection, source paths, and format control
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting livesearch-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	repos := repository.NewRepositories(db)

	// Layer database-resolved settings (embedding model, provider keys) onto
	// the environment config. Env values take precedence.
	cfg.ResolveFromDB(context.Background(), repos, logger)

	// Embedding dimensions are discovered from the model when not configured.
	probe := vector.NewHTTPEmbedder(cfg.EmbeddingEndpoint, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	dims := cfg.EmbeddingDimensions
	if dims == 0 {
		probeCtx, probeCancel := context.WithTimeout(context.Background(), 30*time.Second)
		vec, err := probe.Embed(probeCtx, "dimension probe")
		probeCancel()
		if err != nil {
			logger.Error("failed to discover embedding dimensions", "endpoint", cfg.EmbeddingEndpoint, "error", err)
			os.Exit(1)
		}
		dims = len(vec)
		logger.Info("embedding dimensions discovered", "model", cfg.EmbeddingModel, "dimensions", dims)
	}
	embedder := vector.NewHTTPEmbedder(cfg.EmbeddingEndpoint, cfg.EmbeddingModel, dims)

	store, err := vector.Open(cfg.VectorDBPath, dims, logger)
	if err != nil {
		logger.Error("failed to open vector store", "path", cfg.VectorDBPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	trustStore := trust.NewStore(repos.DomainTrust, nil, logger)
	limits := ratelimit.New(cfg.RateLimitFilePath, logger)
	searchSvc := search.NewService(cfg, trustStore, limits, logger)
	scraper := scrape.NewScraper(cfg, logger)
	adapter := llm.NewAdapter(cfg, logger)

	services := &graph.Services{
		Cfg:      cfg,
		LLM:      adapter,
		Search:   searchSvc,
		Scraper:  scraper,
		Vector:   store,
		Embedder: embedder,
		Logger:   logger,
	}
	researchGraph := graph.New()

	manager := task.NewManager(repos.Task, cfg.TaskCleanupDelay, logger)

	// Background sweeps: tasks stuck running after a crash, old records.
	janitor := worker.New(repos.Task, worker.Config{
		StaleAfter: cfg.TaskStaleAfter,
	}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	janitor.Start(ctx)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(mw.APIVersion())
	// SSE streams have no timeout; research runs for minutes.
	router.Use(mw.Timeout(mw.TimeoutConfig{
		Default:      30 * time.Second,
		Extended:     5 * time.Minute,
		SkipPatterns: []string{"/stream"},
	}))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request size limit (10MB): document ingestion carries inline text.
	router.Use(middleware.RequestSize(10 * 1024 * 1024))
	router.Use(httprate.LimitByIP(100, time.Minute))
	router.Use(middleware.Throttle(100))

	// Idle shutdown for scale-to-zero deployments.
	var idleMonitor *shutdown.IdleMonitor
	if cfg.IdleTimeout > 0 {
		idleMonitor = shutdown.NewIdleMonitor(shutdown.IdleMonitorConfig{
			Timeout:      cfg.IdleTimeout,
			Logger:       logger,
			ExcludePaths: []string{"/healthz", "/readyz"},
			BackgroundWorkCheck: func() bool {
				return manager.ActiveCount() > 0
			},
		})
		router.Use(idleMonitor.Middleware)
		idleMonitor.Start()
		logger.Info("idle shutdown enabled", "timeout", cfg.IdleTimeout)
	}

	humaConfig := huma.DefaultConfig("Live Search API", "1.0.0")
	humaConfig.Info.Description = "Web research orchestration API: multi-provider search, scraping, vector retrieval, and LLM report synthesis with live progress streaming."
	humaConfig.Servers = []*huma.Server{
		{URL: cfg.BaseURL, Description: "API Server"},
	}
	api := humachi.New(router, humaConfig)

	// Kubernetes probes (hidden from docs - internal use only)
	hiddenConfig := huma.DefaultConfig("Live Search API", "1.0.0")
	hiddenConfig.DocsPath = ""
	hiddenConfig.OpenAPIPath = ""
	hiddenConfig.SchemasPath = ""
	hiddenAPI := humachi.New(router, hiddenConfig)
	huma.Get(hiddenAPI, "/healthz", handlers.Livez)
	huma.Get(hiddenAPI, "/readyz", handlers.NewReadyzHandler(db).Readyz)

	h := handlers.New(cfg, manager, researchGraph, services, store, embedder, logger)
	routes.Register(api, h)
	routes.RegisterRaw(router, h)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on signal or idle timeout.
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		var idleChan <-chan struct{}
		if idleMonitor != nil {
			idleChan = idleMonitor.ShutdownChan()
		}
		select {
		case <-sigChan:
			logger.Info("shutting down server", "reason", "signal")
		case <-idleChan:
			logger.Info("shutting down server", "reason", "idle")
		}

		cancel()
		janitor.Stop()
		if idleMonitor != nil {
			idleMonitor.Stop()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "host", cfg.Host, "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
