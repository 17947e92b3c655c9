// ABOUTME: Tests for the resilient request path: retries, classification, auth
// ABOUTME: Uses httptest servers and a stubbed sleep to observe backoff delays

package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, serverURL string, policy RetryPolicy) (*Client, *[]time.Duration) {
	t.Helper()
	c := New(Config{BaseURL: serverURL, Retry: policy},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, slept := newTestClient(t, srv.URL, RetryPolicy{
		MaxAttempts: 3, BaseDelay: time.Second, Factor: 2, MaxDelay: 30 * time.Second,
	})

	var out struct {
		OK bool `json:"ok"`
	}
	err := c.do(context.Background(), http.MethodGet, "/thing", nil, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)

	// Exactly maxAttempts tries, with the backoff formula between them.
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, *slept)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, slept := newTestClient(t, srv.URL, RetryPolicy{
		MaxAttempts: 3, BaseDelay: time.Second, Factor: 2, MaxDelay: 30 * time.Second,
	})

	err := c.do(context.Background(), http.MethodGet, "/thing", nil, nil)
	require.Error(t, err)

	apiErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, 502, apiErr.Status)
	assert.True(t, apiErr.Retryable)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, *slept, 2)
}

func TestDo_TerminalStatusNotRetried(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404, 422} {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(status)
		}))

		c, slept := newTestClient(t, srv.URL, DefaultRetryPolicy())
		err := c.do(context.Background(), http.MethodGet, "/thing", nil, nil)
		srv.Close()

		require.Error(t, err, "status %d", status)
		apiErr, ok := AsError(err)
		require.True(t, ok)
		assert.Equal(t, status, apiErr.Status)
		assert.False(t, apiErr.Retryable, "status %d must be terminal", status)
		assert.Equal(t, int32(1), calls.Load(), "status %d must not be retried", status)
		assert.Empty(t, *slept)
	}
}

func TestDo_TransportFailureRetryable(t *testing.T) {
	// Point at a closed server so every attempt fails at the transport level.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c, slept := newTestClient(t, srv.URL, RetryPolicy{
		MaxAttempts: 2, BaseDelay: 500 * time.Millisecond, Factor: 2, MaxDelay: 30 * time.Second,
	})

	err := c.do(context.Background(), http.MethodGet, "/thing", nil, nil)
	require.Error(t, err)

	apiErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeTransport, apiErr.Code)
	assert.Equal(t, 0, apiErr.Status)
	assert.True(t, apiErr.Retryable)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, *slept)
}

func TestDo_ServerMessageSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":"tenant suspended"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, DefaultRetryPolicy())
	err := c.do(context.Background(), http.MethodGet, "/thing", nil, nil)

	apiErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "tenant suspended", apiErr.Message)
	assert.True(t, IsPermissionError(err))
	assert.False(t, IsAuthError(err))
}

type staticTokens struct{ token string }

func (s staticTokens) AccessToken(ctx context.Context) (string, error) {
	return s.token, nil
}

func TestDo_InjectsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, DefaultRetryPolicy())
	c.SetTokenSource(staticTokens{token: "tok-123"})

	require.NoError(t, c.do(context.Background(), http.MethodGet, "/thing", nil, nil))
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestDo_LoginSkipsAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"a","refresh_token":"r","expires_in":3600,"user":{"id":"u1","email":"op@example.com"}}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, DefaultRetryPolicy())
	c.SetTokenSource(staticTokens{token: "stale"})

	resp, err := c.Login(context.Background(), "op@example.com", "hunter2")
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
	assert.Equal(t, "a", resp.AccessToken)
	assert.Equal(t, "u1", resp.User.ID)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, DefaultRetryPolicy())
	assert.NoError(t, c.Health(context.Background()))
}
