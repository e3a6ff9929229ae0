package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"flow-activity/internal/api"
	"flow-activity/internal/config"
	"flow-activity/internal/fixture"
	"flow-activity/internal/monitor"
	"flow-activity/internal/server"
	"flow-activity/internal/storage"
	"flow-activity/web"
)

var rootCmd = &cobra.Command{
	Use:   "flow-activity",
	Short: "Activity bar graph service for workflow runs",
	Long:  "flow-activity stores flow runs and lays them out as a fixed number of activity bars over a time window.",
	// Running without a subcommand starts the server.
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and dashboard",
	Long:  "Start the run API, metrics, event stream and dashboard. Configuration is read from environment variables.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(barsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logConfig(logger, cfg)
	features := cfg.Features()

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.SeedFile != "" {
		n, err := seedStore(store, cfg.SeedFile, time.Now())
		if err != nil {
			return err
		}
		logger.Info("seeded runs", "file", cfg.SeedFile, "count", n)
	}

	var metrics *monitor.Metrics
	if features.Metrics {
		metrics = monitor.NewMetrics()
	}

	var events *monitor.EventBus
	if features.Events {
		events = monitor.NewEventBus(cfg.EventBuffer)
		defer events.Shutdown()
	}

	health := monitor.NewHealthChecker(store, cfg.HealthCheckInterval, metrics, logger)
	defer health.Shutdown()

	var dashboard fs.FS
	if features.Dashboard {
		dashboard, err = web.Assets()
		if err != nil {
			logger.Warn("failed to load dashboard assets", "err", err)
		}
	}

	apiServer := api.NewServer(store, cfg, metrics, events, logger)
	h := server.NewHandler(cfg, apiServer, events, metrics, health, dashboard, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting flow-activity", "listen", cfg.ListenAddr, "storage", string(cfg.Storage))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(cfg config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return storage.NewMemoryStore(cfg.StorageMaxRows), nil
	default:
		s, err := storage.NewSQLiteStore(cfg.StoragePath, cfg.StorageMaxRows, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	}
}

// seedStore inserts the runs from a fixture file, assigning ids where missing.
func seedStore(store storage.Store, path string, now time.Time) (int, error) {
	runs, err := fixture.Load(path)
	if err != nil {
		return 0, err
	}
	for i := range runs {
		run := &runs[i]
		if run.ID == "" {
			run.ID = uuid.NewString()
		}
		run.Normalize()
		run.Created = now.UnixMilli()
		if err := store.Insert(run); err != nil {
			return i, fmt.Errorf("seed run %s: %w", run.ID, err)
		}
	}
	return len(runs), nil
}

func newLogger(level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	switch level {
	case "debug":
		lvl.Set(slog.LevelDebug)
	case "warn", "warning":
		lvl.Set(slog.LevelWarn)
	case "error":
		lvl.Set(slog.LevelError)
	default:
		lvl.Set(slog.LevelInfo)
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}

func logConfig(logger *slog.Logger, cfg config.Config) {
	logger.Info("configuration",
		"mode", string(cfg.Mode),
		"listen_addr", cfg.ListenAddr,
		"storage", string(cfg.Storage),
		"storage_path", cfg.StoragePath,
		"storage_max_rows", cfg.StorageMaxRows,
		"seed_file", cfg.SeedFile,
		"bar_size", cfg.BarSize,
		"bar_gap", cfg.BarGap,
		"default_bars", cfg.DefaultBars,
		"max_bars", cfg.MaxBars,
		"default_window", cfg.DefaultWindow,
		"bars_cache_ttl", cfg.BarsCacheTTL,
		"request_body_max_bytes", cfg.RequestBodyMaxBytes,
		"event_buffer", cfg.EventBuffer,
		"health_check_interval", cfg.HealthCheckInterval,
		"cors_allow_origin", cfg.CORSAllowOrigin,
		"log_level", cfg.LogLevel,
	)
}
