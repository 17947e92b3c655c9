// ABOUTME: SQLite-backed persistence for the operator's session under fixed keys
// ABOUTME: Corrupted entries are discarded on read instead of failing startup

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Fixed keys for persisted session state.
const (
	keyTokens = "auth.tokens"
	keyUser   = "auth.user"
)

// Tokens is the persisted token pair.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// User is the persisted operator profile.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Store persists session state in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates a session store at the given path. The schema is created if
// it doesn't exist; parent directories are created if needed.
func Open(path string) (*Store, error) {
	logger := slog.Default().With("component", "session")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening session database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS session (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("session store opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTokens persists the token pair under its fixed key.
func (s *Store) SaveTokens(ctx context.Context, t Tokens) error {
	return s.put(ctx, keyTokens, t)
}

// LoadTokens returns the persisted token pair, or nil when absent or
// corrupted. Corruption is never an error: the bad entry is removed and the
// session starts unauthenticated.
func (s *Store) LoadTokens(ctx context.Context) (*Tokens, error) {
	var t Tokens
	ok, err := s.get(ctx, keyTokens, &t)
	if err != nil || !ok {
		return nil, err
	}
	return &t, nil
}

// SaveUser persists the operator profile under its fixed key.
func (s *Store) SaveUser(ctx context.Context, u User) error {
	return s.put(ctx, keyUser, u)
}

// LoadUser returns the persisted profile, or nil when absent or corrupted.
func (s *Store) LoadUser(ctx context.Context) (*User, error) {
	var u User
	ok, err := s.get(ctx, keyUser, &u)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

// Clear removes all persisted session state.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM session"); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// put stores v as JSON under key, replacing any prior value.
func (s *Store) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("persisting %s: %w", key, err)
	}
	return nil
}

// get loads the JSON value stored under key into out. Returns false when no
// value exists. A value that fails to decode is deleted and treated as
// absent.
func (s *Store) get(ctx context.Context, key string, out any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM session WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		s.logger.Warn("discarding corrupted session entry", "key", key, "error", err)
		if _, delErr := s.db.ExecContext(ctx,
			"DELETE FROM session WHERE key = ?", key); delErr != nil {
			s.logger.Warn("failed to remove corrupted entry", "key", key, "error", delErr)
		}
		return false, nil
	}
	return true, nil
}
