// Package main is the entry point for the question ranking API server.
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
	"github.com/redis/go-redis/v9"

	"github.com/opencivics/hustings/internal/api"
	"github.com/opencivics/hustings/internal/audit"
	"github.com/opencivics/hustings/internal/auth"
	"github.com/opencivics/hustings/internal/cluster"
	"github.com/opencivics/hustings/internal/config"
	"github.com/opencivics/hustings/internal/db"
	"github.com/opencivics/hustings/internal/dedup"
	"github.com/opencivics/hustings/internal/embed"
	"github.com/opencivics/hustings/internal/fraud"
	"github.com/opencivics/hustings/internal/health"
	"github.com/opencivics/hustings/internal/middleware"
	"github.com/opencivics/hustings/internal/moderation"
	"github.com/opencivics/hustings/internal/question"
	"github.com/opencivics/hustings/internal/ranking"
	"github.com/opencivics/hustings/internal/stream"
	"github.com/opencivics/hustings/internal/tracing"
	"github.com/opencivics/hustings/internal/vecindex"
	"github.com/opencivics/hustings/internal/vote"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Hustings API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
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
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (no-op provider when no OTLP endpoint is configured)
	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "hustings-api",
		Enabled:      cfg.OTLPEndpoint != "",
		Environment:  cfg.Env,
		ExporterType: "otlp-grpc",
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: 1.0,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Database
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	// Redis is optional; rate limiting falls back to the in-process store.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	// Embedding provider: HTTP service when configured, deterministic
	// local embedder otherwise (development only).
	var embedder embed.Provider
	if cfg.EmbedderURL != "" {
		embedder = embed.NewHTTPProvider(cfg.EmbedderURL, time.Duration(cfg.EmbedderTimeoutSeconds)*time.Second)
	} else {
		logger.Warn("EMBEDDER_URL not set; using deterministic local embedder")
		embedder = embed.NewLocalProvider()
	}

	// Vector index, warmed from the last snapshot when one exists.
	index := vecindex.New(embedder.Dimensions())
	if cfg.SnapshotPath != "" {
		if err := index.Load(cfg.SnapshotPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Info("no index snapshot found, starting cold", "path", cfg.SnapshotPath)
			} else {
				logger.Warn("failed to load index snapshot, starting cold", "error", err)
			}
		} else {
			logger.Info("index snapshot loaded", "path", cfg.SnapshotPath, "vectors", index.TotalSize())
		}
	}
	pending := vecindex.NewPendingTracker()

	// Repositories
	questionRepo := question.NewPostgresRepository(database, logger)
	clusterRepo := cluster.NewPostgresRepository(database, logger)
	voteRepo := vote.NewPostgresRepository(database, logger)
	reportRepo := moderation.NewPostgresRepository(database, logger)
	auditRepo := audit.NewInMemoryRepository()

	// Metrics
	registry := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	dedupMetrics := dedup.NewMetrics()
	voteMetrics := vote.NewMetrics()
	moderationMetrics := moderation.NewMetrics()
	streamMetrics := stream.NewMetrics()
	fraudMetrics := fraud.NewMetrics()
	indexMetrics := vecindex.NewMetrics(index, pending)
	for _, m := range []interface {
		Register(prometheus.Registerer) error
	}{httpMetrics, dedupMetrics, voteMetrics, moderationMetrics, streamMetrics, fraudMetrics, indexMetrics} {
		if err := m.Register(registry); err != nil {
			logger.Error("failed to register metrics", "error", err)
			os.Exit(1)
		}
	}

	// Domain services
	clusterManager := cluster.NewManager(clusterRepo, questionRepo, logger)
	dedupEngine := dedup.NewEngine(embedder, index, questionRepo, cfg.SimilarityThreshold, dedupMetrics, logger)
	var screen question.IntakeScreen
	if len(cfg.BlockedTerms) > 0 {
		screen = question.NewTermScreen(cfg.BlockedTerms)
	}
	questionEngine := question.NewEngine(questionRepo, dedupEngine, clusterManager, index, pending, screen, logger)

	selection, err := ranking.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		logger.Warn("failed to load ranking calibration, using defaults", "error", err)
	}
	rankingEngine := ranking.NewEngine(questionRepo, clusterRepo, voteRepo, clusterManager, nil, selection, logger)

	fraud.SetScoringEnabled(cfg.FraudScoringEnabled)
	scorer := fraud.NewScorer(fraud.ScorerConfig{Logger: logger, Metrics: fraudMetrics})
	voteLedger := vote.NewLedger(voteRepo, questionRepo, clusterManager, rankingEngine, scorer.Weight, voteMetrics, logger)

	moderationService := moderation.NewService(questionRepo, clusterManager, index, reportRepo, dedupEngine, pending, auditRepo, moderationMetrics, logger)
	broadcaster := stream.NewEventBroadcaster(streamMetrics)

	// Health checkers; the embedder checker only applies to the HTTP provider.
	healthConfig := api.HealthHandlersConfig{
		DBChecker: health.NewDBChecker(database),
	}
	if redisClient != nil {
		healthConfig.RedisChecker = health.NewRedisChecker(redisClient)
	}
	if cfg.EmbedderURL != "" {
		healthConfig.EmbedderChecker = health.NewEmbedderChecker(cfg.EmbedderURL)
	}

	mux := api.NewRouter(api.RouterConfig{
		Questions:  api.NewQuestionHandlers(questionEngine, questionRepo, broadcaster),
		Votes:      api.NewVoteHandlers(voteLedger, broadcaster),
		TopList:    api.NewTopListHandlers(rankingEngine),
		Moderation: api.NewModerationHandlers(moderationService, broadcaster),
		Updates:    api.NewUpdatesHandlers(broadcaster),
		Health:     api.NewHealthHandlers(healthConfig),
		Metrics:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	// Middleware chain, outermost first: request id, tracing, logging,
	// metrics, CORS, auth, then rate limiting keyed on the authenticated
	// user. Profiling sits innermost so its routes bypass nothing.
	var handler http.Handler = mux
	if cfg.ProfilingEnabled {
		handler = middleware.Profiling(middleware.ProfilingConfig{
			Enabled:     true,
			Environment: cfg.Env,
		})(handler)
	}
	if cfg.RateLimitPerMinute > 0 {
		var store middleware.RateLimitStore
		if redisClient != nil {
			store = middleware.NewRedisRateLimitStore(redisClient)
		} else {
			store = middleware.NewInMemoryRateLimitStore()
		}
		limit := middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimitPerMinute,
			WindowDuration:    time.Minute,
		}
		handler = middleware.RateLimiter(store, limit, middleware.UserKeyFunc(), httpMetrics)(handler)
	}
	handler = api.Authenticate(auth.NewTokenParserWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret))(handler)
	// CORS wraps outside auth so preflight requests never need a token.
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowCredentials: true,
		MaxAge:           300,
	})(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Tracing("hustings-api")(handler)
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	if cfg.SnapshotPath != "" {
		if err := index.Save(cfg.SnapshotPath); err != nil {
			logger.Error("failed to save index snapshot", "error", err)
		} else {
			logger.Info("index snapshot saved", "path", cfg.SnapshotPath)
		}
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down tracing", "error", err)
	}

	logger.Info("server stopped")
}
