package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"time"

	apperrors "github.com/spreads/client/internal/errors"
)

// globalConfigKey is the settings row holding the server configuration.
const globalConfigKey = "global_config"

// GetConfig returns the stored global configuration, or an empty map when
// none was saved yet.
func (s *Store) GetConfig(ctx context.Context) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, globalConfigKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "get config", err)
	}

	cfg := make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "decode config", err)
	}
	return cfg, nil
}

// SaveConfig replaces the global configuration.
func (s *Store) SaveConfig(ctx context.Context, cfg map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg == nil {
		cfg = map[string]any{}
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "encode config", err)
	}

	const query = `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, globalConfigKey, string(data), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "save config", err)
	}

	log.Printf("storage: saved global config (%d keys)", len(cfg))
	return nil
}
