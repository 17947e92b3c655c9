// ABOUTME: Tests for configuration loading, defaults, env overrides, and expansion
// ABOUTME: Verifies layering order and duration/boolean parsing behavior

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, "/copilotkit", cfg.API.ChatEndpoint)
	assert.Equal(t, 300*time.Second, cfg.API.RequestTimeout)
	assert.Equal(t, 3, cfg.API.RetryAttempts)
	assert.Equal(t, time.Second, cfg.API.RetryBaseDelay)
	assert.Equal(t, 300*time.Second, cfg.API.AgentTimeout)
	assert.Equal(t, 1800*time.Second, cfg.API.WorkflowTimeout)
	assert.Equal(t, 5, cfg.Realtime.MaxReconnectAttempts)
	assert.True(t, cfg.Features.WebSocket)
	assert.False(t, cfg.Features.Analytics)
	assert.Equal(t, 1000, cfg.Limits.MaxMessageLength)
	assert.Equal(t, 500, cfg.Limits.MaxTaskDescriptionLength)
	assert.Equal(t, 255, cfg.Limits.MaxRepositoryPathLength)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().API.BaseURL, cfg.API.BaseURL)
}

func TestLoad_YAMLFileWithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_ORCHESTRA_HOST", "orchestra.example.com")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api:
  base_url: https://${TEST_ORCHESTRA_HOST}/api
  request_timeout: 45s
  retry_attempts: 5
realtime:
  url: wss://${TEST_ORCHESTRA_HOST}/ws
  reconnect_delay: 2s
features:
  websocket: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://orchestra.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, "wss://orchestra.example.com/ws", cfg.Realtime.URL)
	assert.Equal(t, 45*time.Second, cfg.API.RequestTimeout)
	assert.Equal(t, 5, cfg.API.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.Realtime.ReconnectDelay)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  base_url: http://from-file\n"), 0644))

	t.Setenv(EnvAPIURL, "http://from-env")
	t.Setenv(EnvEnableWebSocket, "off")
	t.Setenv(EnvRequestTimeout, "10s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://from-env", cfg.API.BaseURL)
	assert.False(t, cfg.Features.WebSocket)
	assert.Equal(t, 10*time.Second, cfg.API.RequestTimeout)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv(EnvAgentTimeout, "not-a-duration")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent_timeout")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.API.BaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Features.WebSocket = true
	cfg.Realtime.URL = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.API.RetryAttempts = 0
	assert.Error(t, cfg.Validate())

	assert.NoError(t, Default().Validate())
}
