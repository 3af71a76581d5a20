package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"olympics-etl/internal/config"
	"olympics-etl/internal/database"
	"olympics-etl/internal/extract"
	"olympics-etl/internal/handlers"
	"olympics-etl/internal/load"
	"olympics-etl/internal/metrics"
	"olympics-etl/internal/middleware"
	"olympics-etl/internal/pipeline"
	"olympics-etl/internal/transform"
	"olympics-etl/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to read .env: %v\n", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "olympics-etl",
		Short:        "Extract, aggregate and load Olympic medal data",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newRunCmd(), newScheduleCmd(), newTaskCmd(), newDAGCmd())
	return rootCmd
}

// setupLogger installs the default logger. The daemon logs JSON, one-shot
// commands log text to stderr.
func setupLogger(level string, jsonOutput bool) *slog.Logger {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	var logger *slog.Logger
	if jsonOutput {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	slog.SetDefault(logger)
	return logger
}

// loadConfig loads the configuration and sets up logging
func loadConfig(jsonOutput bool) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, setupLogger(cfg.LogLevel, jsonOutput), nil
}

// buildDAG wires the three stages. The loader opens a fresh connection for
// every load and closes it when done.
func buildDAG(cfg *config.Config) *pipeline.DAG {
	loader := load.NewLoader(cfg, func(ctx context.Context) (load.Store, error) {
		return database.OpenConfig(ctx, cfg)
	})
	return pipeline.NewOlympicsDAG(cfg,
		extract.NewExtractor(cfg),
		transform.NewTransformer(cfg),
		loader)
}

// openRunLog opens the database holding the run history and creates its tables
func openRunLog(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.OpenConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func pushMetrics(cfg *config.Config, logger *slog.Logger) {
	if cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := metrics.Push(ctx, cfg.PushgatewayURL, cfg.PipelineID); err != nil {
		logger.Error("Failed to push metrics", "error", err)
		return
	}
	logger.Info("Metrics pushed", "url", cfg.PushgatewayURL)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the whole pipeline once, with retries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(false)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := openRunLog(ctx, cfg)
			if err != nil {
				logger.Error("Failed to open database", "error", err)
				return err
			}
			defer db.Close()

			dag := buildDAG(cfg)
			scheduledFor := worker.ScheduledFor(dag.StartDate, dag.Interval, time.Now())

			runErr := worker.NewWorker(db).RunDAG(ctx, dag, scheduledFor)
			pushMetrics(cfg, logger)
			return runErr
		},
	}
}

func newTaskCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "task <" + strings.Join([]string{pipeline.TaskExtract, pipeline.TaskTransform, pipeline.TaskLoad}, "|") + ">",
		Short:     "Run a single stage once, without retries",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{pipeline.TaskExtract, pipeline.TaskTransform, pipeline.TaskLoad},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(false)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// single stages are not part of a run, so nothing is recorded
			note, err := worker.NewWorker(nil).RunTask(ctx, buildDAG(cfg), args[0])
			pushMetrics(cfg, logger)

			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], note)
			return nil
		},
	}
}

func newDAGCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dag",
		Short: "Print the pipeline declaration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(false)
			if err != nil {
				return err
			}

			dag := buildDAG(cfg)
			if err := dag.Validate(); err != nil {
				return err
			}
			order, err := dag.TopologicalOrder()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "DAG: %s\n", dag.ID)
			fmt.Fprintf(out, "  Description: %s\n", dag.Description)
			fmt.Fprintf(out, "  Schedule: every %s from %s\n", dag.Interval, dag.StartDate.Format(config.StartDateLayout))
			fmt.Fprintf(out, "  Next run: %s\n", worker.NextOccurrence(dag.StartDate, dag.Interval, time.Now()).Format(time.RFC3339))
			fmt.Fprintf(out, "  Retries: %d (delay %s)\n", dag.Retries, dag.RetryDelay)
			fmt.Fprintln(out, "  Tasks:")
			for _, t := range order {
				if len(t.DependsOn) == 0 {
					fmt.Fprintf(out, "    %s\n", t.ID)
				} else {
					fmt.Fprintf(out, "    %s (after %s)\n", t.ID, strings.Join(t.DependsOn, ", "))
				}
			}
			return nil
		},
	}
}

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on its schedule and serve run status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(true)
			if err != nil {
				return err
			}
			return runScheduler(cmd.Context(), cfg, logger)
		},
	}
}

func runScheduler(parent context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("Starting olympics-etl scheduler",
		"pipeline", cfg.PipelineID,
		"interval", cfg.ScheduleInterval,
		"start_date", cfg.StartDate.Format(config.StartDateLayout),
		"database_driver", cfg.DatabaseDriver,
		"log_level", cfg.LogLevel)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	db, err := openRunLog(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		return err
	}
	defer db.Close()

	logger.Info("Database opened successfully")

	// Create handlers
	statusHandler := handlers.NewStatusHandler(db, cfg)

	// Set up HTTP routes
	mux := http.NewServeMux()
	mux.Handle("/health", middleware.WrapHandler(metrics.EndpointHealth, statusHandler.HandleHealth))
	mux.Handle("/runs", middleware.WrapHandler(metrics.EndpointRuns, statusHandler.HandleRuns))
	mux.Handle("/medal-counts", middleware.WrapHandler(metrics.EndpointMedalCounts, statusHandler.HandleMedalCounts))
	mux.Handle("/country-counts", middleware.WrapHandler(metrics.EndpointCountryCounts, statusHandler.HandleCountryCounts))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start scheduler in background
	scheduler := worker.NewScheduler(worker.NewWorker(db), buildDAG(cfg))
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := scheduler.Start(ctx); err != nil {
			logger.Error("Scheduler failed", "error", err)
			cancel()
		}
	}()

	// Start table size collector and metrics server if enabled
	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		go func() {
			logger.Info("Starting table size collector")
			metrics.StartTableSizeCollector(ctx, db, time.Minute)
		}()

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())

		metricsAddr := fmt.Sprintf("%s:%d", cfg.MetricsHost, cfg.MetricsPort)
		metricsServer = &http.Server{
			Addr:    metricsAddr,
			Handler: metricsMux,
		}

		go func() {
			logger.Info("Metrics server listening", "addr", metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Start HTTP server in background
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var exitErr error
	select {
	case <-sigChan:
		logger.Info("Shutting down gracefully...")
	case err := <-serverErr:
		logger.Error("HTTP server failed", "error", err)
		exitErr = err
	case <-ctx.Done():
		exitErr = errors.New("scheduler stopped unexpectedly")
	}

	// Stop scheduler; a running pipeline sees the cancellation
	cancel()
	<-schedulerDone

	// Shutdown HTTP servers with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown failed", "error", err)
		}
	}

	logger.Info("Scheduler stopped")
	return exitErr
}
