package config

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/livesearch-api/internal/repository"
)

// ResolveFromDB layers database-resolved settings onto the config. Only
// fields left empty by the environment are filled in, so env vars always win.
func (c *Config) ResolveFromDB(ctx context.Context, repos *repository.Repositories, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	if c.EmbeddingModel == "" {
		model, err := repos.Settings.ResolveEmbeddingModel(ctx)
		if err != nil {
			logger.Warn("failed to resolve embedding model from settings", "error", err)
		} else if model != "" {
			c.EmbeddingModel = model
			logger.Info("embedding model resolved from settings", "model", model)
		}
	}

	if c.GoogleAPIKey == "" {
		if cfg := c.providerConfig(ctx, repos, logger, "google_custom_search"); cfg != nil {
			c.GoogleAPIKey = cfg["api_key"]
			if c.GoogleCX == "" {
				c.GoogleCX = cfg["cx"]
			}
		}
	}
	if c.BraveAPIKey == "" {
		if cfg := c.providerConfig(ctx, repos, logger, "brave"); cfg != nil {
			c.BraveAPIKey = cfg["api_key"]
		}
	}
	if c.BingAPIKey == "" {
		if cfg := c.providerConfig(ctx, repos, logger, "bing"); cfg != nil {
			c.BingAPIKey = cfg["api_key"]
		}
	}
	if c.CourtListenerAPIKey == "" {
		if cfg := c.providerConfig(ctx, repos, logger, "courtlistener"); cfg != nil {
			c.CourtListenerAPIKey = cfg["api_key"]
		}
	}
	if c.XAIAPIKey == "" {
		if cfg := c.providerConfig(ctx, repos, logger, "xai"); cfg != nil {
			c.XAIAPIKey = cfg["api_key"]
			if base := cfg["base_url"]; base != "" {
				c.XAIBaseURL = base
			}
		}
	}
}

func (c *Config) providerConfig(ctx context.Context, repos *repository.Repositories, logger *slog.Logger, name string) map[string]string {
	cfg, err := repos.Credentials.GetProviderConfig(ctx, name)
	if err != nil {
		logger.Warn("failed to resolve provider credentials", "provider", name, "error", err)
		return nil
	}
	return cfg
}
