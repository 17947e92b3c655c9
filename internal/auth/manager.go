// ABOUTME: Session lifecycle: login, persisted restore, refresh-on-expiry, logout
// ABOUTME: Implements the token source the API client injects as a bearer header

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/orchestra-console/internal/api"
	"github.com/2389/orchestra-console/internal/session"
)

// refreshSkew refreshes tokens slightly before their recorded expiry so a
// request never goes out with a token about to lapse mid-flight.
const refreshSkew = 30 * time.Second

var (
	// ErrNotAuthenticated means no session exists; the operator must log in.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrReauthRequired means the session existed but can no longer be
	// refreshed; stored credentials have been cleared.
	ErrReauthRequired = errors.New("re-authentication required")
)

// Backend is the slice of the API client the manager needs.
type Backend interface {
	Login(ctx context.Context, email, password string) (*api.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*api.RefreshResponse, error)
	Logout(ctx context.Context) error
}

// Manager owns the operator's credentials for the life of the process.
type Manager struct {
	backend Backend
	store   *session.Store
	logger  *slog.Logger

	mu       sync.Mutex
	tokens   *session.Tokens
	user     *session.User
	onReauth func()
}

// NewManager creates a credential manager backed by the given API client and
// session store.
func NewManager(backend Backend, store *session.Store, logger *slog.Logger) *Manager {
	return &Manager{
		backend: backend,
		store:   store,
		logger:  logger.With("component", "auth"),
	}
}

// OnReauthRequired registers a callback invoked when a refresh is rejected
// and the session is cleared.
func (m *Manager) OnReauthRequired(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReauth = fn
}

// Restore loads any persisted session. A missing or corrupted session is not
// an error; the manager simply starts unauthenticated.
func (m *Manager) Restore(ctx context.Context) error {
	tokens, err := m.store.LoadTokens(ctx)
	if err != nil {
		return fmt.Errorf("restoring tokens: %w", err)
	}
	user, err := m.store.LoadUser(ctx)
	if err != nil {
		return fmt.Errorf("restoring user: %w", err)
	}

	m.mu.Lock()
	m.tokens = tokens
	m.user = user
	m.mu.Unlock()

	if tokens != nil {
		m.logger.Info("session restored", "expires_at", tokens.ExpiresAt)
	}
	return nil
}

// Login exchanges credentials for a session and persists it.
func (m *Manager) Login(ctx context.Context, email, password string) (*session.User, error) {
	resp, err := m.backend.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	tokens := session.Tokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiryOf(resp.AccessToken, resp.ExpiresIn),
	}
	user := session.User{
		ID:       resp.User.ID,
		Email:    resp.User.Email,
		Name:     resp.User.Name,
		TenantID: resp.User.TenantID,
		Role:     resp.User.Role,
	}

	if err := m.store.SaveTokens(ctx, tokens); err != nil {
		return nil, err
	}
	if err := m.store.SaveUser(ctx, user); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.tokens = &tokens
	m.user = &user
	m.mu.Unlock()

	m.logger.Info("logged in", "user", user.Email, "expires_at", tokens.ExpiresAt)
	return &user, nil
}

// Logout invalidates the session server-side when possible and always clears
// local state.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.backend.Logout(ctx); err != nil {
		// Local state is cleared regardless; the server session will
		// expire on its own.
		m.logger.Warn("server-side logout failed", "error", err)
	}
	return m.clear(ctx)
}

// AccessToken returns a valid access token, refreshing first when the stored
// one is expired or about to expire. Implements api.TokenSource.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tokens == nil {
		return "", ErrNotAuthenticated
	}
	if time.Until(m.tokens.ExpiresAt) > refreshSkew {
		return m.tokens.AccessToken, nil
	}
	return m.refreshLocked(ctx)
}

// CurrentUser returns the authenticated operator's profile, or nil.
func (m *Manager) CurrentUser() *session.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// Authenticated reports whether a session is loaded.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens != nil
}

// refreshLocked exchanges the refresh token for a new access token. The
// caller holds m.mu. A rejected refresh clears the session and signals that
// the operator must log in again.
func (m *Manager) refreshLocked(ctx context.Context) (string, error) {
	m.logger.Debug("access token expiring, refreshing")

	resp, err := m.backend.Refresh(ctx, m.tokens.RefreshToken)
	if err != nil {
		if api.IsAuthError(err) {
			m.logger.Warn("refresh token rejected, clearing session")
			m.clearLocked(ctx)
			if m.onReauth != nil {
				m.onReauth()
			}
			return "", ErrReauthRequired
		}
		return "", fmt.Errorf("refreshing token: %w", err)
	}

	m.tokens.AccessToken = resp.AccessToken
	m.tokens.ExpiresAt = expiryOf(resp.AccessToken, resp.ExpiresIn)
	if resp.RefreshToken != "" {
		m.tokens.RefreshToken = resp.RefreshToken
	}

	if err := m.store.SaveTokens(ctx, *m.tokens); err != nil {
		m.logger.Warn("failed to persist refreshed tokens", "error", err)
	}
	return m.tokens.AccessToken, nil
}

func (m *Manager) clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearLocked(ctx)
}

func (m *Manager) clearLocked(ctx context.Context) error {
	m.tokens = nil
	m.user = nil
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// expiryOf derives the access token's expiry. The backend's expires_in wins;
// when absent, the token's own exp claim is used without verifying the
// signature (the server remains the authority, this only schedules refresh).
func expiryOf(accessToken string, expiresIn int64) time.Time {
	if expiresIn > 0 {
		return time.Now().Add(time.Duration(expiresIn) * time.Second)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}

	// No usable expiry; force a refresh attempt on next use.
	return time.Now()
}
