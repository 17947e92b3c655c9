// ABOUTME: Entry point for the orchestra-console operator client
// ABOUTME: Commands: run (interactive console), login, logout, health

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/orchestra-console/internal/api"
	"github.com/2389/orchestra-console/internal/auth"
	"github.com/2389/orchestra-console/internal/config"
	"github.com/2389/orchestra-console/internal/console"
	"github.com/2389/orchestra-console/internal/realtime"
	"github.com/2389/orchestra-console/internal/session"
	"github.com/2389/orchestra-console/internal/state"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                 _               _
  ___  _ __ ___| |__   ___  ___| |_ _ __ __ _
 / _ \| '__/ __| '_ \ / _ \/ __| __| '__/ _' |
| (_) | | | (__| | | |  __/\__ \ |_| | | (_| |
 \___/|_|  \___|_| |_|\___||___/\__|_|  \__,_|
                                      console
`

// getConfigPath returns the path to the console config file.
// Priority: ORCHESTRA_CONFIG env var > XDG_CONFIG_HOME/orchestra-console/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("ORCHESTRA_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "orchestra-console", "config.yaml")
}

func main() {
	command := "run"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch command {
	case "run":
		err = runConsole(ctx)
	case "login":
		err = runLogin(ctx)
	case "logout":
		err = runLogout(ctx)
	case "health":
		err = runHealth(ctx)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: orchestra-console [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run      Start the interactive console (default)")
	fmt.Println("  login    Authenticate and persist the session")
	fmt.Println("  logout   Invalidate and clear the session")
	fmt.Println("  health   Check backend health")
}

func runConsole(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)
	green.Print("    ▶ ")
	fmt.Printf("API:      %s\n", cfg.API.BaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Realtime: %s", cfg.Realtime.URL)
	if !cfg.Features.WebSocket {
		gray.Print(" (disabled)")
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("Session:  %s\n\n", cfg.Session.DBPath)

	sess, err := session.Open(cfg.Session.DBPath)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer sess.Close()

	client := buildClient(cfg, logger)
	authMgr := auth.NewManager(client, sess, logger)
	if err := authMgr.Restore(ctx); err != nil {
		return fmt.Errorf("restoring session: %w", err)
	}
	client.SetTokenSource(authMgr)
	authMgr.OnReauthRequired(func() {
		color.Yellow("Session expired. Run 'orchestra-console login' to re-authenticate.")
	})

	if user := authMgr.CurrentUser(); user != nil {
		gray.Printf("    signed in as %s\n\n", user.Email)
	} else {
		gray.Print("    not signed in; run 'orchestra-console login' for authenticated operations\n\n")
	}

	store := state.NewStore(logger)
	rt := realtime.NewManager(realtime.Options{
		URL:                  cfg.Realtime.URL,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		ReconnectDelay:       cfg.Realtime.ReconnectDelay,
	}, logger)

	broker := newInputBroker(os.Stdin)
	prompter := newConsolePrompter(broker)

	ctrl := console.New(client, rt, store, prompter, logger)
	ctrl.Start(ctx)
	defer ctrl.Stop()

	if cfg.Features.WebSocket {
		if err := rt.Connect(ctx); err != nil {
			logger.Warn("realtime connection unavailable, continuing without push updates", "error", err)
		}
		defer rt.Disconnect()
	}

	loop := &consoleLoop{
		ctrl:     ctrl,
		store:    store,
		rt:       rt,
		auth:     authMgr,
		prompter: prompter,
		broker:   broker,
	}
	if err := loop.run(ctx); err != nil {
		return err
	}

	fmt.Println("\nGoodbye!")
	return nil
}

func runLogin(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	sess, err := session.Open(cfg.Session.DBPath)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer sess.Close()

	client := buildClient(cfg, logger)
	authMgr := auth.NewManager(client, sess, logger)

	broker := newInputBroker(os.Stdin)
	fmt.Print("Email: ")
	email, err := broker.ReadLine(ctx)
	if err != nil {
		return err
	}
	fmt.Print("Password: ")
	password, err := broker.ReadLine(ctx)
	if err != nil {
		return err
	}

	user, err := authMgr.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	color.Green("Logged in as %s (%s)", user.Email, user.Role)
	return nil
}

func runLogout(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	sess, err := session.Open(cfg.Session.DBPath)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer sess.Close()

	client := buildClient(cfg, logger)
	authMgr := auth.NewManager(client, sess, logger)
	if err := authMgr.Restore(ctx); err != nil {
		return fmt.Errorf("restoring session: %w", err)
	}
	if !authMgr.Authenticated() {
		fmt.Println("Not signed in.")
		return nil
	}
	client.SetTokenSource(authMgr)

	if err := authMgr.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	client := buildClient(cfg, logger)
	if err := client.Health(ctx); err != nil {
		color.Red("Backend unhealthy: %v", err)
		return err
	}
	color.Green("Backend healthy: %s", cfg.API.BaseURL)
	return nil
}

func buildClient(cfg *config.Config, logger *slog.Logger) *api.Client {
	return api.New(api.Config{
		BaseURL:         cfg.API.BaseURL,
		ChatEndpoint:    cfg.API.ChatEndpoint,
		RequestTimeout:  cfg.API.RequestTimeout,
		AgentTimeout:    cfg.API.AgentTimeout,
		WorkflowTimeout: cfg.API.WorkflowTimeout,
		Retry: retryPolicy(cfg.API),
		Limits: api.Limits{
			MaxMessageLength:         cfg.Limits.MaxMessageLength,
			MaxTaskDescriptionLength: cfg.Limits.MaxTaskDescriptionLength,
			MaxRepositoryPathLength:  cfg.Limits.MaxRepositoryPathLength,
			MaxRequirementsLength:    cfg.Limits.MaxRequirementsLength,
		},
	}, logger)
}

// retryPolicy maps retry config onto the client policy. The backoff ceiling
// is fixed at 30s regardless of the configured base delay.
func retryPolicy(cfg config.APIConfig) api.RetryPolicy {
	return api.RetryPolicy{
		MaxAttempts: cfg.RetryAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		Factor:      2,
		MaxDelay:    30 * time.Second,
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(os.Stderr, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
