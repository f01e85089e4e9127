package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
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
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/iedash/internal/api"
	"github.com/kalambet/iedash/internal/api/ws"
	"github.com/kalambet/iedash/internal/config"
	"github.com/kalambet/iedash/internal/dashboard"
	"github.com/kalambet/iedash/internal/events"
	"github.com/kalambet/iedash/internal/ingest"
	"github.com/kalambet/iedash/internal/pipeline"
	"github.com/kalambet/iedash/internal/seed"
	"github.com/kalambet/iedash/internal/storage"
	"github.com/kalambet/iedash/internal/web"
)

const (
	shutdownTimeout = 5 * time.Second
	eventHistory    = 256
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the dashboard server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running dashboard server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dashboard status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
}

// pidFilePath lives outside the data dir, which may be in-memory.
func pidFilePath(port int) string {
	return filepath.Join(os.TempDir(), "iedash", fmt.Sprintf("iedash-%d.pid", port))
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

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func dashboardConfig(cfg config.Config) dashboard.Config {
	return dashboard.Config{
		Timings: pipeline.Timings{
			PlanningTick:  cfg.Pipeline.PlanningTick,
			ExecutionTick: cfg.Pipeline.ExecutionTick,
			Handoff:       cfg.Pipeline.HandoffDelay,
			Response:      cfg.Pipeline.ResponseDelay,
		},
		AgentName:           cfg.Pipeline.AgentName,
		ActivityCapacity:    cfg.Activity.Capacity,
		MinProcessingDelay:  cfg.Ingest.MinProcessingDelay,
		MaxProcessingDelay:  cfg.Ingest.MaxProcessingDelay,
		ConnectionTestDelay: cfg.Ingest.ConnectionTestDelay,
	}
}

// openStore opens the store and seeds it the first time.
func openStore(dataDir string, data seed.Data) (*storage.Store, error) {
	store, err := storage.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	agents, err := store.ListAgents()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("checking storage: %w", err)
	}
	if len(agents) == 0 {
		if err := store.Seed(data); err != nil {
			store.Close()
			return nil, fmt.Errorf("seeding storage: %w", err)
		}
		slog.Info("storage seeded", "documents", len(data.Documents), "agents", len(data.Agents))
	}
	return store, nil
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "iedash version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)})))

	// Check if a server is already running via the health endpoint.
	baseURL := serverBaseURL(cfg)
	pidPath := pidFilePath(cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(baseURL + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("iedash is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("iedash is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	data, err := seed.Load()
	if err != nil {
		return err
	}

	store, err := openStore(cfg.Storage.DataDir, data)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	bus := events.NewBus(eventHistory)
	defer bus.Close()

	svc := dashboard.New(store, bus, data.Analytics, dashboardConfig(cfg))
	defer svc.Close()

	hub := ws.NewHub(bus, svc, cfg.Server.APIToken)
	defer hub.Close()

	if cfg.Server.APIToken != "" {
		slog.Info("API bearer token required for changes")
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewRouter(api.Deps{
			Dashboard: svc,
			Bus:       bus,
			Hub:       hub,
			Token:     cfg.Server.APIToken,
			Assets:    web.Handler(web.Assets()),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	worker := ingest.NewWorker(store, svc, cfg.Ingest.PollInterval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "iedash listening on http://%s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Dashboard: svc})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Server.Port)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("iedash is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop iedash (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to iedash (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	client.httpClient.Timeout = 2 * time.Second

	ctx := context.Background()
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return nil
	}
	printStatus("Server", "running on %s", client.baseURL)

	var st storage.SystemStats
	if resp, err := client.get(ctx, "/api/stats"); err == nil {
		if decodeJSON(resp, &st) == nil {
			printStatus("Documents processed", "%d", st.DocumentsProcessed)
			printStatus("Total queries", "%d", st.TotalQueries)
			printStatus("Active agents", "%d", st.ActiveAgents)
			printStatus("Success rate", "%s%%", strconv.FormatFloat(st.SuccessRate, 'f', -1, 64))
		}
	}

	var m dashboard.Monitor
	if resp, err := client.get(ctx, "/api/monitor"); err == nil {
		if decodeJSON(resp, &m) == nil {
			printStatus("Pipeline", "%s", m.Status)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
