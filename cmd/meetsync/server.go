package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/meetsync/internal/api"
	"github.com/kalambet/meetsync/internal/config"
	"github.com/kalambet/meetsync/internal/delivery"
	"github.com/kalambet/meetsync/internal/detector"
	"github.com/kalambet/meetsync/internal/history"
	"github.com/kalambet/meetsync/internal/notesapi"
	"github.com/kalambet/meetsync/internal/notify"
	"github.com/kalambet/meetsync/internal/output"
	"github.com/kalambet/meetsync/internal/payload"
	"github.com/kalambet/meetsync/internal/processor"
	"github.com/kalambet/meetsync/internal/state"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the meetsync daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running meetsync daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show meetsync system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "meetsync.pid")
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

func setupLogging(cfg config.Config) {
	logLevel := slog.LevelInfo
	switch {
	case strings.EqualFold(cfg.Log.Level, "debug"):
		logLevel = slog.LevelDebug
	case strings.EqualFold(cfg.Log.Level, "warn"):
		logLevel = slog.LevelWarn
	case strings.EqualFold(cfg.Log.Level, "error"):
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// pipeline serializes access to the state manager. The poll loop, the ops
// API, and the MCP tools all go through here; state.Manager itself is not
// safe for concurrent use.
type pipeline struct {
	mu   sync.Mutex
	proc *processor.Processor
	st   *state.Manager
}

func (p *pipeline) Snapshot() state.PersistedState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st.Snapshot()
}

func (p *pipeline) RunNow(ctx context.Context) (processor.RunSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.proc.ProcessUnprocessed(ctx)
}

func (p *pipeline) saveState() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st.Save()
}

// runtimeDeps bundles everything a running pipeline needs.
type runtimeDeps struct {
	pipe   *pipeline
	store  *history.Store // nil when history is disabled
	source *notesapi.Client
}

func buildPipeline(cfg config.Config) (*runtimeDeps, func(), error) {
	st, err := state.Load(cfg.Monitoring.StatePath, cfg.Lookback())
	if err != nil {
		return nil, nil, fmt.Errorf("loading state: %w", err)
	}

	builder := payload.NewBuilder(func(d *payload.Document) payload.OrganizationInfo {
		return detector.Detect(d, cfg.Organizations)
	})

	engine := delivery.NewEngine()
	outputs := output.NewManager(cfg.OutputConfig(), engine)
	notifier := notify.NewManager(cfg.Notifications)
	source := notesapi.New(cfg.API.BaseURL, cfg.API.Token)

	var store *history.Store
	var recorder processor.Recorder
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening history store: %w", err)
		}
		recorder = store
	}

	proc := processor.New(source, outputs,
		processor.NotifierFunc(func(ctx context.Context, subject, body string, urgent bool) {
			notifier.Send(ctx, subject, body, urgent)
		}),
		st, builder, recorder,
		processor.Config{
			MaxPerRun:  cfg.Monitoring.MaxPerRun,
			FetchLimit: cfg.Monitoring.FetchLimit,
			Validation: cfg.Validation,
		},
	)

	cleanup := func() {
		if store != nil {
			if err := store.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: closing history store: %v\n", err)
			}
		}
	}

	return &runtimeDeps{
		pipe:   &pipeline{proc: proc, st: st},
		store:  store,
		source: source,
	}, cleanup, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "meetsync version %s\n", version)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	setupLogging(cfg)

	// Ensure the ops API bearer token exists in the platform secret store.
	token, err := config.EnsureServerToken(&cfg)
	if err != nil {
		return fmt.Errorf("initializing server token: %w", err)
	}
	slog.Info("ops API bearer token available")

	// Write PID file. Check if the daemon is already running via health endpoint.
	pidPath := pidFilePath(cfg.History.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("meetsync is already running (PID %d)", pid)
			return fmt.Errorf("daemon already running (PID %d)", pid)
		}
		printWarning("meetsync is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("daemon already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if !deps.source.IsReachable(ctx) {
		printWarning("notes API not reachable at %s, runs will fail until it is", cfg.API.BaseURL)
	}

	var hist api.HistoryReader
	if deps.store != nil {
		hist = deps.store
	}

	// Build ops HTTP server.
	appHandler := api.NewAppHandler(api.AppDeps{
		Pipeline: deps.pipe,
		History:  hist,
		Token:    token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	// Build and start MCP server (streamable HTTP transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Pipeline: deps.pipe,
		History:  hist,
	})
	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)
	httpMCP := server.NewStreamableHTTPServer(mcpSrv)
	go func() {
		if err := httpMCP.Start(mcpAddr); err != nil && err != http.ErrServerClosed {
			slog.Error("MCP server error", "error", err)
		}
	}()
	slog.Info("MCP server started", "addr", mcpAddr)

	// Start the poll loop: one run immediately, then on every tick.
	go func() {
		runOnce := func() {
			sum, err := deps.pipe.RunNow(ctx)
			if err != nil {
				slog.Error("scheduled run failed", "error", err)
				return
			}
			slog.Info("scheduled run finished", "run_id", sum.RunID, "summary", sum.Summary())
		}

		runOnce()
		ticker := time.NewTicker(cfg.PollInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runOnce()
			}
		}
	}()

	// Start ops server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "meetsync listening on %s\n", addr)
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
	if err := httpMCP.Shutdown(shutdownCtx); err != nil {
		slog.Warn("MCP server shutdown", "error", err)
	}
	if err := deps.pipe.saveState(); err != nil {
		slog.Warn("final state save failed", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.History.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("meetsync is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop meetsync (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to meetsync (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check daemon health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Daemon", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Daemon", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Daemon", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check the upstream notes service.
	source := notesapi.New(cfg.API.BaseURL, cfg.API.Token)
	if source.IsReachable(ctx) {
		printStatus("Notes API", "reachable at %s", cfg.API.BaseURL)
	} else {
		printStatus("Notes API", "not reachable at %s", cfg.API.BaseURL)
	}

	outputs := output.NewManager(cfg.OutputConfig(), delivery.NewEngine())
	printStatus("Outputs", "%d configured", outputs.SinkCount())
	channels := notify.NewManager(cfg.Notifications)
	printStatus("Notify channels", "%d configured", channels.ChannelCount())

	// Show sync state if the daemon is up and we hold its token.
	if running && cfg.Server.AuthToken != "" {
		ac := &apiClient{
			baseURL:    serverURL,
			token:      cfg.Server.AuthToken,
			httpClient: client,
		}
		statusResp, err := ac.get(ctx, "/status")
		if err == nil {
			var st api.StatusResponse
			if decodeErr := decodeJSON(statusResp, &st); decodeErr == nil {
				printStatus("Last check", "%s", st.LastCheck.Format(time.RFC3339))
				printStatus("Processed", "%d", st.ProcessedCount)
				printStatus("Skipped", "%d", st.SkippedCount)
				if st.FailureStreak > 0 {
					printStatus("Failure streak", "%d", st.FailureStreak)
				}
			}
		}
	}

	printStatus("State file", "%s", cfg.Monitoring.StatePath)
	printStatus("Data dir", "%s", cfg.History.DataDir)
	return nil
}
