// ABOUTME: Configuration loading and parsing for orchestra-console
// ABOUTME: Layers documented defaults, an optional YAML file with env expansion, and env overrides

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete, immutable console configuration, resolved once at
// startup.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Features FeaturesConfig `yaml:"features"`
	Limits   LimitsConfig   `yaml:"limits"`
	Session  SessionConfig  `yaml:"session"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// APIConfig holds backend HTTP endpoint and retry tunables.
type APIConfig struct {
	BaseURL      string `yaml:"base_url"`
	ChatEndpoint string `yaml:"chat_endpoint"`

	RequestTimeout  time.Duration `yaml:"-"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryBaseDelay  time.Duration `yaml:"-"`
	AgentTimeout    time.Duration `yaml:"-"`
	WorkflowTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	RequestTimeoutRaw  string `yaml:"request_timeout"`
	RetryBaseDelayRaw  string `yaml:"retry_base_delay"`
	AgentTimeoutRaw    string `yaml:"agent_timeout"`
	WorkflowTimeoutRaw string `yaml:"workflow_timeout"`
}

// RealtimeConfig holds the real-time channel endpoint and reconnect tunables.
type RealtimeConfig struct {
	URL                  string `yaml:"url"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`

	ReconnectDelay time.Duration `yaml:"-"`

	ReconnectDelayRaw string `yaml:"reconnect_delay"`
}

// FeaturesConfig holds feature toggles.
type FeaturesConfig struct {
	WebSocket bool `yaml:"websocket"`
	Analytics bool `yaml:"analytics"`
}

// LimitsConfig holds input-length caps enforced before a request leaves the
// client.
type LimitsConfig struct {
	MaxMessageLength         int `yaml:"max_message_length"`
	MaxTaskDescriptionLength int `yaml:"max_task_description_length"`
	MaxRepositoryPathLength  int `yaml:"max_repository_path_length"`
	MaxRequirementsLength    int `yaml:"max_requirements_length"`
}

// SessionConfig holds client-side persistence configuration.
type SessionConfig struct {
	DBPath string `yaml:"db_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration with every tunable at its documented
// default.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:         "http://localhost:8000",
			ChatEndpoint:    "/copilotkit",
			RequestTimeout:  300 * time.Second,
			RetryAttempts:   3,
			RetryBaseDelay:  time.Second,
			AgentTimeout:    300 * time.Second,
			WorkflowTimeout: 1800 * time.Second,
		},
		Realtime: RealtimeConfig{
			URL:                  "ws://localhost:8000/ws",
			MaxReconnectAttempts: 5,
			ReconnectDelay:       time.Second,
		},
		Features: FeaturesConfig{
			WebSocket: true,
			Analytics: false,
		},
		Limits: LimitsConfig{
			MaxMessageLength:         1000,
			MaxTaskDescriptionLength: 500,
			MaxRepositoryPathLength:  255,
			MaxRequirementsLength:    2000,
		},
		Session: SessionConfig{
			DBPath: defaultSessionPath(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load resolves the console configuration. A .env file in the working
// directory is loaded first if present. If path is non-empty and the file
// exists it is parsed as YAML with ${VAR_NAME} expansion; environment
// variables then override individual values. A missing config file is not an
// error: defaults plus environment cover the common deployment.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env file is the normal case.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			expanded := expandEnvVars(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		case os.IsNotExist(err):
			// fall through to defaults + env
		default:
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Recognized environment variables.
const (
	EnvAPIURL          = "ORCHESTRA_API_URL"
	EnvRealtimeURL     = "ORCHESTRA_REALTIME_URL"
	EnvChatEndpoint    = "ORCHESTRA_CHAT_ENDPOINT"
	EnvEnableWebSocket = "ORCHESTRA_ENABLE_WEBSOCKET"
	EnvEnableAnalytics = "ORCHESTRA_ENABLE_ANALYTICS"
	EnvRequestTimeout  = "ORCHESTRA_REQUEST_TIMEOUT"
	EnvRetryAttempts   = "ORCHESTRA_RETRY_ATTEMPTS"
	EnvRetryBaseDelay  = "ORCHESTRA_RETRY_BASE_DELAY"
	EnvAgentTimeout    = "ORCHESTRA_AGENT_TIMEOUT"
	EnvWorkflowTimeout = "ORCHESTRA_WORKFLOW_TIMEOUT"
	EnvSessionDB       = "ORCHESTRA_SESSION_DB"
	EnvLogLevel        = "ORCHESTRA_LOG_LEVEL"
	EnvLogFormat       = "ORCHESTRA_LOG_FORMAT"
)

// applyEnv overrides individual configuration values from the environment.
// Duration variables accept Go duration strings ("30s") and land in the raw
// fields so parseDurations handles them uniformly.
func applyEnv(cfg *Config) {
	setString(&cfg.API.BaseURL, EnvAPIURL)
	setString(&cfg.Realtime.URL, EnvRealtimeURL)
	setString(&cfg.API.ChatEndpoint, EnvChatEndpoint)
	setBool(&cfg.Features.WebSocket, EnvEnableWebSocket)
	setBool(&cfg.Features.Analytics, EnvEnableAnalytics)
	setString(&cfg.API.RequestTimeoutRaw, EnvRequestTimeout)
	setInt(&cfg.API.RetryAttempts, EnvRetryAttempts)
	setString(&cfg.API.RetryBaseDelayRaw, EnvRetryBaseDelay)
	setString(&cfg.API.AgentTimeoutRaw, EnvAgentTimeout)
	setString(&cfg.API.WorkflowTimeoutRaw, EnvWorkflowTimeout)
	setString(&cfg.Session.DBPath, EnvSessionDB)
	setString(&cfg.Logging.Level, EnvLogLevel)
	setString(&cfg.Logging.Format, EnvLogFormat)
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. An unset variable becomes an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure
// encountered.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Features.WebSocket && c.Realtime.URL == "" {
		return fmt.Errorf("realtime.url is required when the websocket feature is enabled")
	}
	if c.API.RetryAttempts < 1 {
		return fmt.Errorf("api.retry_attempts must be at least 1")
	}
	if c.Realtime.MaxReconnectAttempts < 0 {
		return fmt.Errorf("realtime.max_reconnect_attempts must not be negative")
	}
	if c.Session.DBPath == "" {
		return fmt.Errorf("session.db_path is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration
// values, leaving defaults in place when no raw value was supplied.
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{cfg.API.RequestTimeoutRaw, &cfg.API.RequestTimeout, "request_timeout"},
		{cfg.API.RetryBaseDelayRaw, &cfg.API.RetryBaseDelay, "retry_base_delay"},
		{cfg.API.AgentTimeoutRaw, &cfg.API.AgentTimeout, "agent_timeout"},
		{cfg.API.WorkflowTimeoutRaw, &cfg.API.WorkflowTimeout, "workflow_timeout"},
		{cfg.Realtime.ReconnectDelayRaw, &cfg.Realtime.ReconnectDelay, "reconnect_delay"},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// defaultSessionPath returns the session database location.
// Priority: XDG_DATA_HOME/orchestra-console > ~/.local/share/orchestra-console
func defaultSessionPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "orchestra-console.db" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "orchestra-console", "session.db")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}
