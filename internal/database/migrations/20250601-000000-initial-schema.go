package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250601-000000",
		Description: "Initial schema",
		Up: []string{
			// System settings - key/value pairs consulted at startup
			// (e.g. preferred_local_embedding_model_id)
			`CREATE TABLE IF NOT EXISTS system_settings (
				key TEXT PRIMARY KEY,
				value TEXT,
				updated_at TEXT NOT NULL
			)`,

			// Models - local model catalog; embedding model resolution scans
			// for active embedding models when no preferred id is set
			`CREATE TABLE IF NOT EXISTS models (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				huggingface_repo TEXT,
				model_path TEXT,
				is_embedding_model INTEGER NOT NULL DEFAULT 0,
				is_active INTEGER NOT NULL DEFAULT 0,
				is_default INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_models_embedding ON models(is_embedding_model, is_active)`,

			// API providers - external search/LLM providers with optional
			// endpoint overrides stored as a JSON object
			`CREATE TABLE IF NOT EXISTS api_providers (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT UNIQUE NOT NULL,
				endpoints TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			// API keys - global credentials per provider
			`CREATE TABLE IF NOT EXISTS api_keys (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				provider_id INTEGER NOT NULL REFERENCES api_providers(id) ON DELETE CASCADE,
				key_value TEXT NOT NULL,
				is_global INTEGER NOT NULL DEFAULT 1,
				is_active INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_api_keys_provider ON api_keys(provider_id, is_global, is_active)`,

			// Domain trust profiles - persistent per-domain scoring; rows with
			// a wildcard domain (*.gov) act as TLD fallbacks
			`CREATE TABLE IF NOT EXISTS domain_trust_profiles (
				domain TEXT PRIMARY KEY,
				trust_score REAL NOT NULL,
				is_https INTEGER NOT NULL DEFAULT 0,
				domain_age_days INTEGER,
				tld_type_bonus REAL NOT NULL DEFAULT 0,
				reference_count INTEGER NOT NULL DEFAULT 1,
				last_scanned_date TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			// Research tasks - persisted lifecycle records; the in-memory task
			// registry is authoritative while a task runs
			`CREATE TABLE IF NOT EXISTS research_tasks (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				query TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				error_message TEXT,
				prompt_tokens INTEGER NOT NULL DEFAULT 0,
				completion_tokens INTEGER NOT NULL DEFAULT 0,
				duration_display TEXT,
				started_at TEXT,
				completed_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_research_tasks_user ON research_tasks(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_research_tasks_status ON research_tasks(status)`,
		},
	})
}
