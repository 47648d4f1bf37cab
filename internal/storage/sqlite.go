// Package storage persists workflows and the global configuration for the
// server simulator in a SQLite database.
package storage

import (
	"database/sql"
	"log"
	"sync"

	// Pure-Go SQLite driver, registered as "sqlite". No CGO needed.
	_ "modernc.org/sqlite"

	apperrors "github.com/spreads/client/internal/errors"
)

// Store is a SQLite-backed workflow store. It is safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the database at path and applies migrations. Use
// ":memory:" for a throwaway database in tests.
func Open(path string) (*Store, error) {
	log.Printf("storage: opening database at %s", path)

	// busy_timeout lets the CLI and a running simulator share the file.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "open database", err)
	}

	// An in-memory database lives only as long as its connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "ping database", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "init schema", err)
	}

	log.Printf("storage: database ready (schema version %d)", currentSchemaVersion)
	return store, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	log.Printf("storage: closing database")
	return s.db.Close()
}
