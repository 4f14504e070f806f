// Package ratelimit tracks search providers that must be skipped until a
// rate-limit or failure window expires. The ignore list is persisted to a
// JSON file so restarts and sibling processes observe the same state.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultDuration is how long a provider stays ignored when Mark is called
// without an explicit duration.
const DefaultDuration = 30 * time.Minute

// Registry is the process-wide provider ignore list. All file access goes
// through a single mutex; the on-disk format is a flat JSON object of
// provider key to RFC3339 UTC expiry.
type Registry struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// New creates a registry persisting to the given file path.
func New(path string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		path:   path,
		logger: logger.With("component", "ratelimit"),
		now:    time.Now,
	}
}

// Mark records the provider as ignored for the given duration (DefaultDuration
// when d <= 0).
func (r *Registry) Mark(provider string, d time.Duration) error {
	if d <= 0 {
		d = DefaultDuration
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.loadLocked()
	expiry := r.now().UTC().Add(d)
	entries[provider] = expiry.Format(time.RFC3339)
	if err := r.saveLocked(entries); err != nil {
		return err
	}
	r.logger.Info("provider marked rate-limited", "provider", provider, "until", expiry)
	return nil
}

// IsIgnored reports whether the provider is currently on the ignore list.
func (r *Registry) IsIgnored(provider string) bool {
	_, ok := r.ActiveIgnored()[provider]
	return ok
}

// ActiveIgnored returns the providers still within their ignore window,
// mapped to their expiry. Expired and malformed entries are pruned from the
// file as a side effect.
func (r *Registry) ActiveIgnored() map[string]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.loadLocked()
	active := make(map[string]time.Time)
	pruned := false
	now := r.now().UTC()

	for provider, raw := range entries {
		expiry, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			r.logger.Warn("dropping malformed rate-limit entry", "provider", provider, "value", raw)
			delete(entries, provider)
			pruned = true
			continue
		}
		if !expiry.After(now) {
			delete(entries, provider)
			pruned = true
			continue
		}
		active[provider] = expiry
	}

	if pruned {
		if err := r.saveLocked(entries); err != nil {
			r.logger.Warn("failed to rewrite rate-limit file after pruning", "error", err)
		}
	}
	return active
}

// Remove drops the provider from the ignore list if present.
func (r *Registry) Remove(provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.loadLocked()
	if _, ok := entries[provider]; !ok {
		return nil
	}
	delete(entries, provider)
	return r.saveLocked(entries)
}

// Clear empties the ignore list.
func (r *Registry) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked(map[string]string{})
}

func (r *Registry) loadLocked() map[string]string {
	entries := map[string]string{}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("failed to read rate-limit file", "path", r.path, "error", err)
		}
		return entries
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		r.logger.Warn("rate-limit file is not valid JSON, starting fresh", "path", r.path, "error", err)
		return map[string]string{}
	}
	return entries
}

func (r *Registry) saveLocked(entries map[string]string) error {
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create rate-limit directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode rate-limit entries: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write rate-limit file: %w", err)
	}
	return nil
}
