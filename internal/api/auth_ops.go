// ABOUTME: Credential endpoints: login, refresh, and logout
// ABOUTME: Login/refresh skip bearer injection to avoid recursing into the token source

package api

import (
	"context"
	"net/http"
)

// User is the authenticated operator's profile as returned by the backend.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// LoginResponse is the payload of POST /auth/login.
type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
	User         User   `json:"user"`
}

// RefreshResponse is the payload of POST /auth/refresh. The refresh token is
// only present when the backend rotates it.
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login exchanges credentials for a token pair and user profile.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &resp, withoutAuth()); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var resp RefreshResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", body, &resp, withoutAuth()); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout invalidates the current session server-side. Requires the bearer
// header.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}
