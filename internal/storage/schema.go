package storage

import (
	"fmt"
	"log"
	"time"
)

// currentSchemaVersion is the newest migration. Add a migration to the
// list below rather than editing an applied one.
const currentSchemaVersion = 2

var migrations = []struct {
	version int
	name    string
	sql     string
}{
	{
		version: 1,
		name:    "workflows table",
		// Pages, metadata and config are JSON documents; the server owns
		// their shape. Timestamps are RFC3339 strings.
		sql: `
			CREATE TABLE IF NOT EXISTS workflows (
				id TEXT PRIMARY KEY,
				slug TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'new',
				path TEXT NOT NULL DEFAULT '',
				pages TEXT NOT NULL DEFAULT '[]',
				metadata TEXT NOT NULL DEFAULT '{}',
				config TEXT NOT NULL DEFAULT '{}',
				expected_pages INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				modified_at TEXT NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_workflows_created ON workflows(created_at);
		`,
	},
	{
		version: 2,
		name:    "settings table",
		sql: `
			CREATE TABLE IF NOT EXISTS settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);
		`,
	},
}

// initSchema applies every migration newer than the recorded version.
func (s *Store) initSchema() error {
	const schemaVersionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		log.Printf("storage: applying migration to schema version %d (%s)", m.version, m.name)
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
		_, err := s.db.Exec(
			"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
			m.version,
			time.Now().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *Store) SchemaVersion() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("check schema version: %w", err)
	}
	return version, nil
}
