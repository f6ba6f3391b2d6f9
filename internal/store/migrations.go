package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Events table - one row per terminal event record
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			proposed_intent TEXT NOT NULL,
			approved_intent TEXT NOT NULL DEFAULT '',
			trigger_kind TEXT NOT NULL DEFAULT '',
			hand TEXT NOT NULL DEFAULT '',
			local_confidence REAL NOT NULL DEFAULT 0,
			mode TEXT NOT NULL,
			outcome TEXT NOT NULL,
			policy_tag TEXT NOT NULL,
			merge_count INTEGER NOT NULL DEFAULT 0,
			superseded INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			error_stage TEXT NOT NULL DEFAULT '',
			verdict_intent TEXT,
			verdict_intentional INTEGER,
			features TEXT,
			record TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		// Annotations table - information that arrived after the terminal record
		`CREATE TABLE IF NOT EXISTS annotations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			verdict_intent TEXT,
			verdict_intentional INTEGER,
			error TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		// Bindings table - maps an intent to a plugin action
		`CREATE TABLE IF NOT EXISTS bindings (
			id TEXT PRIMARY KEY,
			intent TEXT NOT NULL,
			plugin_name TEXT NOT NULL,
			action_name TEXT NOT NULL,
			config TEXT NOT NULL DEFAULT '{}',
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_outcome ON events(outcome)`,
		`CREATE INDEX IF NOT EXISTS idx_annotations_event_id ON annotations(event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bindings_intent ON bindings(intent)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
