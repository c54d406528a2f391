// ABOUTME: Settings and credential persistence for SQLiteStore
// ABOUTME: Key/value preferences with typed defaults, plus the stored bearer token

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const tokenCredential = "auth_token"

// GetSetting returns a raw setting value.
// Returns ErrNotFound if the key has never been set.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying setting: %w", err)
	}
	return value, nil
}

// SetSetting validates and stores a single setting.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	probe := DefaultSettings()
	if err := probe.Apply(key, value); err != nil {
		return err
	}
	return s.putSetting(ctx, s.db, key, value)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) putSetting(ctx context.Context, db execer, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := db.ExecContext(ctx, query, key, value, timestamp(s.now())); err != nil {
		return fmt.Errorf("saving setting %s: %w", key, err)
	}
	s.logger.Debug("saved setting", "key", key)
	return nil
}

// LoadSettings returns stored preferences on top of DefaultSettings.
// Stored values that no longer validate are ignored.
func (s *SQLiteStore) LoadSettings(ctx context.Context) (Settings, error) {
	settings := DefaultSettings()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return settings, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings, fmt.Errorf("scanning setting row: %w", err)
		}
		if err := settings.Apply(key, value); err != nil {
			s.logger.Warn("ignoring stored setting", "key", key, "error", err)
		}
	}
	if err := rows.Err(); err != nil {
		return settings, fmt.Errorf("iterating setting rows: %w", err)
	}
	return settings, nil
}

// SaveSettings stores every preference in one transaction.
func (s *SQLiteStore) SaveSettings(ctx context.Context, settings Settings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, kv := range settings.Pairs() {
		probe := DefaultSettings()
		if err := probe.Apply(kv[0], kv[1]); err != nil {
			return err
		}
		if err := s.putSetting(ctx, tx, kv[0], kv[1]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing settings: %w", err)
	}
	return nil
}

// SaveToken stores the bearer token, replacing any previous one.
func (s *SQLiteStore) SaveToken(ctx context.Context, token string) error {
	if token == "" {
		return s.ClearToken(ctx)
	}
	query := `
		INSERT INTO credentials (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, tokenCredential, token, timestamp(s.now())); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	s.logger.Debug("saved token")
	return nil
}

// LoadToken returns the stored bearer token.
// Returns ErrNotFound if none is stored.
func (s *SQLiteStore) LoadToken(ctx context.Context) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM credentials WHERE name = ?`, tokenCredential).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying token: %w", err)
	}
	return token, nil
}

// ClearToken removes the stored bearer token. Clearing an absent token is not an error.
func (s *SQLiteStore) ClearToken(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE name = ?`, tokenCredential); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	s.logger.Debug("cleared token")
	return nil
}
