package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mythorath/m2p/internal/config"
	"github.com/mythorath/m2p/internal/dedup"
	"github.com/mythorath/m2p/internal/handler"
	"github.com/mythorath/m2p/internal/middleware"
	"github.com/mythorath/m2p/internal/notify"
	"github.com/mythorath/m2p/internal/pool"
	"github.com/mythorath/m2p/internal/reward"
	"github.com/mythorath/m2p/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := config.Load()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected and migrated")

	// Redis guard for at-most-once reward notifications
	var guard *dedup.Deduplicator
	for i := 0; i < 6; i++ {
		guard, err = dedup.New(cfg.RedisURL, cfg.RedisPassword)
		if err == nil {
			break
		}
		logger.Warn("redis not ready, retrying...", "attempt", i+1, "error", err)
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		logger.Error("failed to connect to redis after retries", "error", err)
		os.Exit(1)
	}
	defer guard.Close()
	logger.Info("redis connected for notification dedup")

	// Live-push hub
	hub := notify.NewHub(logger, func(r *http.Request) bool {
		return cfg.FrontendOrigin == "*" || r.Header.Get("Origin") == cfg.FrontendOrigin
	})

	// Reward-detection engine
	client := pool.NewClient(cfg.RequestTimeout)
	engine := reward.NewEngine(db, client, hub, guard, cfg.Sources, reward.Config{
		Interval:       cfg.PollInterval,
		RequestTimeout: cfg.RequestTimeout,
		DrainTimeout:   cfg.DrainTimeout,
		MaxConcurrent:  cfg.MaxConcurrent,
		MinPayoutDelta: cfg.MinPayoutDelta,
		APPerADVC:      cfg.APPerADVC,
	}, logger)

	engineDone := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(engineDone)
	}()

	// HTTP routes
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.FrontendOrigin))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	r.Get("/readyz", handler.Ready(db))
	r.Get("/ws", hub.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", handler.Stats(engine))
		r.Get("/sources", handler.Sources(engine))
		r.Get("/rewards", handler.RecentRewards(db))
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	cancel()

	// Let in-flight poll units drain before closing the stores.
	select {
	case <-engineDone:
	case <-time.After(cfg.DrainTimeout):
		logger.Warn("engine drain timed out")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
