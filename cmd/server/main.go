package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/welldanyogia/feedback-forms/internal/api"
	"github.com/welldanyogia/feedback-forms/internal/auth"
	"github.com/welldanyogia/feedback-forms/internal/config"
	"github.com/welldanyogia/feedback-forms/internal/database"
	"github.com/welldanyogia/feedback-forms/internal/export"
	"github.com/welldanyogia/feedback-forms/internal/feedback"
	"github.com/welldanyogia/feedback-forms/internal/health"
	"github.com/welldanyogia/feedback-forms/internal/logger"
	"github.com/welldanyogia/feedback-forms/internal/mailer"
	"github.com/welldanyogia/feedback-forms/internal/metrics"
	appmw "github.com/welldanyogia/feedback-forms/internal/middleware"
	"github.com/welldanyogia/feedback-forms/internal/privacy"
	"github.com/welldanyogia/feedback-forms/internal/repository"
	"github.com/welldanyogia/feedback-forms/internal/retention"
	"github.com/welldanyogia/feedback-forms/internal/spam"
)

// Version is set at build time
var Version = "dev"

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Log)

	if cfg.JWT.AdminSecret == "" {
		log.Error("JWT_ADMIN_SECRET environment variable is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := database.Connect(ctx, cfg.Database, log)
	cancel()
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Migrate(cfg.Database, log); err != nil {
		log.Error("failed to apply migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db := database.SQLX(pool)
	defer db.Close()

	// Repositories
	feedbackRepo := repository.NewFeedbackRepo(db)
	formRepo := repository.NewFormRepo(db)

	// Submission pipeline
	classifier := spam.Chain{
		spam.NewFloodGuard(cfg.Forms.FloodLimit, cfg.Forms.FloodWindow, 0),
		spam.ContentRules{BlockedWords: cfg.Forms.BlockedWords, MaxLinks: cfg.Forms.MaxLinks},
	}
	processor := feedback.NewProcessor(feedback.ProcessorConfig{
		Store:      feedbackRepo,
		Classifier: classifier,
		Mailer:     mailer.New(cfg.Mail, log),
		Settings: feedback.Settings{
			SiteName:       cfg.Forms.SiteName,
			DefaultTo:      cfg.Forms.DefaultTo,
			StillEmailSpam: cfg.Forms.StillEmailSpam,
		},
		Logger: log,
	})

	// Exports, privacy tools and retention
	aggregator := export.NewAggregator(feedbackRepo, log)
	walker := privacy.NewWalker(feedbackRepo, log)
	sweeper := retention.NewSweeper(feedbackRepo, log)

	var archiver *export.Archiver
	optional := map[string]health.Pinger{}
	if cfg.Storage.Enabled() {
		archiver = export.NewArchiver(cfg.Storage, log)
		optional["storage"] = archiver
	} else {
		log.Info("export storage not configured, archiving disabled")
	}

	jobConfig := retention.DefaultJobConfig()
	jobConfig.Interval = cfg.Forms.SweepInterval
	jobConfig.SpamThreshold = cfg.Forms.SpamThreshold
	var pruner retention.ArchivePruner
	if archiver != nil {
		pruner = archiver
	}
	retentionJob := retention.NewJob(sweeper, pruner, jobConfig, log)
	if err := retentionJob.Start(); err != nil {
		log.Error("failed to start retention job", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer retentionJob.Stop()

	poolStats := metrics.NewPoolStatsCollector(pool, log)
	poolStats.Start(15 * time.Second)
	defer poolStats.Stop()

	// Handlers
	tokenService := auth.NewTokenService(cfg.JWT)
	authMiddleware := appmw.NewAuthMiddleware(tokenService)
	heavyLimiter := appmw.NewRateLimiter(10, time.Minute)

	submissionHandler := api.NewSubmissionHandler(formRepo, processor, cfg.Forms.SiteName, log)
	adminCfg := api.AdminConfig{
		Records:       feedbackRepo,
		Exporter:      aggregator,
		Privacy:       walker,
		Sweeper:       sweeper,
		SpamThreshold: cfg.Forms.SpamThreshold,
		Logger:        log,
	}
	if archiver != nil {
		adminCfg.Archiver = archiver
	}
	adminHandler := api.NewAdminHandler(adminCfg)

	healthHandler := health.NewHandler(health.Config{
		Database: pool,
		Optional: optional,
		Version:  Version,
	})

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appmw.StructuredLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		api.RegisterPublicRoutes(r, submissionHandler)
		api.RegisterAdminRoutes(r, adminHandler, authMiddleware.Authenticate, heavyLimiter.Limit(appmw.ByOperator))
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", slog.String("addr", addr), slog.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	healthHandler.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	log.Info("server exited")
}
