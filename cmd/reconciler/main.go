// Package main is the entry point for the reconciler worker. It backfills
// missing embeddings, re-checks cluster consistency, and snapshots the
// vector index on a fixed cadence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opencivics/hustings/internal/cluster"
	"github.com/opencivics/hustings/internal/config"
	"github.com/opencivics/hustings/internal/db"
	"github.com/opencivics/hustings/internal/embed"
	"github.com/opencivics/hustings/internal/jobs"
	"github.com/opencivics/hustings/internal/middleware"
	"github.com/opencivics/hustings/internal/question"
	"github.com/opencivics/hustings/internal/vecindex"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Hustings Reconciler Worker")
		fmt.Println()
		fmt.Println("Usage: reconciler [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	var embedder embed.Provider
	if cfg.EmbedderURL != "" {
		embedder = embed.NewHTTPProvider(cfg.EmbedderURL, time.Duration(cfg.EmbedderTimeoutSeconds)*time.Second)
	} else {
		logger.Warn("EMBEDDER_URL not set; using deterministic local embedder")
		embedder = embed.NewLocalProvider()
	}

	index := vecindex.New(embedder.Dimensions())
	if cfg.SnapshotPath != "" {
		if err := index.Load(cfg.SnapshotPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to load index snapshot, starting cold", "error", err)
		}
	}
	pending := vecindex.NewPendingTracker()

	questionRepo := question.NewPostgresRepository(database, logger)
	clusterRepo := cluster.NewPostgresRepository(database, logger)
	manager := cluster.NewManager(clusterRepo, questionRepo, logger)

	registry := prometheus.NewRegistry()
	jobMetrics := jobs.NewMetrics()
	indexMetrics := vecindex.NewMetrics(index, pending)
	if err := jobMetrics.Register(registry); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}
	if err := indexMetrics.Register(registry); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	reconciler := jobs.NewReconciler(jobs.ReconcilerConfig{
		Interval:     time.Duration(cfg.ReconcileIntervalSeconds) * time.Second,
		SnapshotPath: cfg.SnapshotPath,
		Logger:       logger,
		Metrics:      jobMetrics,
	}, questionRepo, embedder, index, pending, clusterRepo, manager)

	if err := reconciler.Start(ctx); err != nil {
		logger.Error("failed to start reconciler", "error", err)
		os.Exit(1)
	}

	// Metrics and liveness endpoint.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !reconciler.IsRunning() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"status":"stopped"}`)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"running"}`)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      middleware.RequestID(middleware.Logging(logger)(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("reconciler started", "port", cfg.Port, "interval_seconds", cfg.ReconcileIntervalSeconds)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down reconciler...")
	reconciler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	if cfg.SnapshotPath != "" {
		if err := index.Save(cfg.SnapshotPath); err != nil {
			logger.Error("failed to save index snapshot", "error", err)
		}
	}

	logger.Info("reconciler stopped")
}
