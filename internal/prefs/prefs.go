// Package prefs persists the little durable state the client keeps on the
// device: the identity token and the locale preference.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Fixed storage keys.
const (
	KeyAuthToken = "auth_token"
	KeyLocale    = "user_locale"
)

// Store is a small key/value table in the local database.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open, migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the value under key, or "" when it is not set.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write preference %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete preference %s: %w", key, err)
	}
	return nil
}

// Token returns the stored identity token.
func (s *Store) Token(ctx context.Context) (string, error) {
	return s.Get(ctx, KeyAuthToken)
}

// SetToken stores the identity token.
func (s *Store) SetToken(ctx context.Context, token string) error {
	return s.Set(ctx, KeyAuthToken, token)
}

// ClearToken forgets the identity token.
func (s *Store) ClearToken(ctx context.Context) error {
	return s.Delete(ctx, KeyAuthToken)
}

// Locale returns the stored locale tag.
func (s *Store) Locale(ctx context.Context) (string, error) {
	return s.Get(ctx, KeyLocale)
}

// SetLocale stores the locale tag.
func (s *Store) SetLocale(ctx context.Context, tag string) error {
	return s.Set(ctx, KeyLocale, tag)
}
