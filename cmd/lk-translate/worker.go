package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/chriscow/livekit-translate-go/internal/config"
	"github.com/chriscow/livekit-translate-go/internal/telemetry"
	"github.com/chriscow/livekit-translate-go/internal/worker"
	"github.com/chriscow/livekit-translate-go/pkg/version"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Worker management commands",
}

var workerRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Join the configured rooms and translate until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		rooms, _ := cmd.Flags().GetStringSlice("room")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		logger := setupLogger(os.Stdout)
		logger.Info("Starting worker",
			slog.String("service", "lk-translate"),
			slog.String("version", version.Version),
			slog.String("commit", version.GitCommit),
			slog.Bool("dry_run", dryRun))

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.ValidateLiveKit(); err != nil {
			return err
		}
		if metricsAddr == "" {
			metricsAddr = cfg.Telemetry.MetricsAddr
		}

		// Create context that cancels on interrupt
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return runWorker(ctx, cfg, rooms, metricsAddr, dryRun, logger)
	},
}

var workerHealthzCmd = &cobra.Command{
	Use:   "healthz",
	Short: "Validate configuration and provider credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger(os.Stdout)
		logger.Info("Performing health check",
			slog.String("service", "lk-translate"),
			slog.String("version", version.Version),
			slog.String("commit", version.GitCommit))

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.ValidateLiveKit(); err != nil {
			return err
		}
		if _, err := buildProviders(cfg, logger); err != nil {
			return err
		}

		if cfg.Sinks.RedisAddr != "" {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			rdb, err := connectRedis(ctx, cfg)
			if err != nil {
				return err
			}
			rdb.Close()
		}

		logger.Info("Health check passed",
			slog.Int("languages", len(cfg.Languages)),
			slog.Int("rooms", len(cfg.Rooms)))
		return nil
	},
}

func runWorker(ctx context.Context, cfg *config.Config, rooms []string, metricsAddr string, dryRun bool, logger *slog.Logger) error {
	if len(rooms) == 0 {
		for _, r := range cfg.Rooms {
			rooms = append(rooms, r.Prefix)
		}
	}

	providers, err := buildProviders(cfg, logger)
	if err != nil {
		return err
	}

	launcherFor := func(rdb goredis.UniversalClient, recorder *telemetry.Recorder) *worker.Launcher {
		return worker.NewLauncher(cfg, providers, recorder, rdb, logger)
	}

	assignments, err := launcherFor(nil, nil).Assignments(rooms)
	if err != nil {
		return err
	}
	for _, a := range assignments {
		logger.Info("Room assignment", slog.String("room", a.Room), slog.String("language", a.Language))
	}

	if dryRun {
		logger.Info("Dry run mode - exiting")
		return nil
	}

	stats := telemetry.NewStats()
	stats.Publish("lk_translate")

	shutdownMeter, err := telemetry.InitMeter(ctx, telemetry.MeterConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version.Version,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMeter(flushCtx); err != nil {
			logger.Warn("Metric exporter shutdown failed", slog.String("error", err.Error()))
		}
	}()

	recorder, err := telemetry.NewRecorder(stats, nil)
	if err != nil {
		return err
	}

	var rdb goredis.UniversalClient
	if cfg.Sinks.RedisAddr != "" {
		client, err := connectRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		rdb = client
	}

	if metricsAddr != "" {
		srv := serveMetrics(metricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	scfg := worker.DefaultSupervisorConfig()
	scfg.Assignments = assignments
	supervisor := worker.NewSupervisor(scfg, launcherFor(rdb, recorder).Run, logger)

	if err := supervisor.Run(ctx); err != nil {
		logger.Error("Worker failed", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Worker stopped", slog.Any("stats", stats.Snapshot()))
	return nil
}

func connectRedis(ctx context.Context, cfg *config.Config) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.Sinks.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Sinks.RedisAddr, err)
	}
	return rdb, nil
}

func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()
	return srv
}
