package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/daybrief/internal/api"
	"github.com/kalambet/daybrief/internal/briefing"
	"github.com/kalambet/daybrief/internal/calendar"
	"github.com/kalambet/daybrief/internal/config"
	"github.com/kalambet/daybrief/internal/credentials"
	"github.com/kalambet/daybrief/internal/llm"
	"github.com/kalambet/daybrief/internal/narrative"
	"github.com/kalambet/daybrief/internal/storage"
	"github.com/kalambet/daybrief/internal/weather"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daybrief server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daybrief server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daybrief system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "daybrief.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// buildCredentials returns the OAuth credential store, or nil when no
// Google client is configured.
func buildCredentials(cfg config.Config, store *storage.Store) *credentials.Store {
	if cfg.Google.ClientID == "" || cfg.Google.ClientSecret == "" {
		return nil
	}
	return credentials.New(store, credentials.ClientConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURI:  cfg.Google.RedirectURI,
	})
}

// buildPipeline assembles the briefing orchestrator from config. The
// returned credential store is nil when the calendar source does not use
// Google OAuth.
func buildPipelineWithCreds(cfg config.Config, store *storage.Store) (*briefing.Orchestrator, *credentials.Store, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	var calendarSource briefing.CalendarSource
	var creds *credentials.Store
	switch cfg.Calendar.Source {
	case "google":
		creds = buildCredentials(cfg, store)
		if creds == nil {
			// Still wired: TodayEvents surfaces the missing credential and
			// the orchestrator degrades to an empty agenda.
			creds = credentials.New(store, credentials.ClientConfig{RedirectURI: cfg.Google.RedirectURI})
		}
		calendarSource = calendar.NewGoogleSource(creds, cfg.Calendar.CalendarID, loc)
	case "ics":
		if cfg.Calendar.ICSURL == "" {
			return nil, nil, fmt.Errorf("calendar.source is ics but calendar.ics_url is not set")
		}
		calendarSource = calendar.NewICSSource(cfg.Calendar.ICSURL, loc)
	default:
		return nil, nil, fmt.Errorf("unknown calendar source %q (want google or ics)", cfg.Calendar.Source)
	}

	weatherClient := weather.NewClient(cfg.Weather.APIKey)
	llmClient := llm.NewClientWithBaseURL(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
	composer := narrative.New(llmClient, slog.Default())

	orchestrator := briefing.New(weatherClient, calendarSource, composer, store, cfg.Weather.Location, slog.Default())
	return orchestrator, creds, nil
}

func buildPipeline(cfg config.Config, store *storage.Store) (*briefing.Orchestrator, error) {
	orchestrator, _, err := buildPipelineWithCreds(cfg, store)
	return orchestrator, err
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "daybrief version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("daybrief is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("daybrief is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the briefing pipeline and the HTTP handler.
	orchestrator, creds, err := buildPipelineWithCreds(cfg, store)
	if err != nil {
		return err
	}

	deps := api.AppDeps{
		Runner:  orchestrator,
		History: store,
		Token:   cfg.Server.Token,
	}
	if creds != nil {
		deps.Credentials = creds
	}
	handler := api.NewAppHandler(deps)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{Runner: orchestrator})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "daybrief listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("daybrief is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop daybrief (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to daybrief (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Weather location", "%s", cfg.Weather.Location)
	printStatus("Calendar source", "%s", cfg.Calendar.Source)
	printStatus("Timezone", "%s", cfg.Calendar.Timezone)
	printStatus("LLM model", "%s", cfg.LLM.Model)

	// Check whether a calendar credential is stored.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err == nil {
		if _, credErr := store.GetCredential(); credErr == nil {
			printStatus("Calendar auth", "connected")
		} else {
			printStatus("Calendar auth", "not connected (run: daybrief auth)")
		}
		store.Close()
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
