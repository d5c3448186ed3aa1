// Mood coach - emotional eating coaching server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ashureev/moodcoach/internal/api"
	"github.com/ashureev/moodcoach/internal/coach"
	"github.com/ashureev/moodcoach/internal/config"
	"github.com/ashureev/moodcoach/internal/identity"
	"github.com/ashureev/moodcoach/internal/llm"
	"github.com/ashureev/moodcoach/internal/metrics"
	"github.com/ashureev/moodcoach/internal/middleware"
	"github.com/ashureev/moodcoach/internal/retention"
	"github.com/ashureev/moodcoach/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	loc, err := cfg.Coach.Location()
	if err != nil {
		slog.Error("Invalid timezone", "error", err)
		os.Exit(1)
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	// The model client is optional; without it every turn uses the local fallbacks.
	var (
		classifier coach.Classifier
		generator  coach.Generator
	)
	aiEnabled := false
	if cfg.LLM.Enabled() {
		client, err := llm.New(llm.Config{
			APIKey:            cfg.LLM.APIKey,
			BaseURL:           cfg.LLM.BaseURL,
			ClassifierModel:   cfg.LLM.ClassifierModel,
			ReplyModel:        cfg.LLM.ReplyModel,
			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
			Burst:             cfg.LLM.Burst,
			MaxRetries:        cfg.LLM.MaxRetries,
			HTTPTimeout:       cfg.LLM.HTTPTimeout,
		}, logger)
		if err != nil {
			slog.Warn("Failed to initialize model client, AI features will be disabled", "error", err)
		} else {
			classifier, generator = client, client
			aiEnabled = true
			slog.Info("Model client initialized",
				"base_url", cfg.LLM.BaseURL,
				"classifier_model", cfg.LLM.ClassifierModel,
				"reply_model", cfg.LLM.ReplyModel,
			)
		}
	}
	if !aiEnabled {
		slog.Info("AI features disabled (OPENAI_API_KEY not set or client failed)")
	}

	svc := coach.NewService(repo, classifier, generator, coach.Options{
		ClassifyTimeout: cfg.Coach.ClassifyTimeout,
		GenerateTimeout: cfg.Coach.GenerateTimeout,
		HistoryLimit:    cfg.Coach.HistoryLimit,
		ContextTurns:    cfg.Coach.ContextTurns,
		CacheSize:       cfg.Coach.StateCacheSize,
		StateTTL:        cfg.Coach.StateTTL,
		Location:        loc,
		Metrics:         m,
	})

	limiter := api.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Stop()

	// Initialize handlers.
	coachHandler := api.NewHandler(svc, limiter, aiEnabled)
	healthHandler := api.NewHealthHandler(repo)
	chatSocket := api.NewChatSocket(svc, limiter, cfg.CORSAllowedOrigins, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins, cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	// Everything else carries an anonymous identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		coachHandler.RegisterRoutes(r)
		r.Get("/ws/chat", chatSocket.ServeHTTP)
	})

	// Create server. No WriteTimeout so chat sockets stay open.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start retention worker.
	retentionDone := retention.StartWorker(ctx, repo, cfg.Retention.Interval, cfg.Coach.HistoryLimit)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}
	<-retentionDone

	slog.Info("Server stopped successfully")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
