// Package main is the entrypoint for the mltrainer API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sreevalsan/mltrainer/internal/api"
	"github.com/sreevalsan/mltrainer/internal/api/handler"
	mw "github.com/sreevalsan/mltrainer/internal/api/middleware"
	"github.com/sreevalsan/mltrainer/internal/api/response"
	"github.com/sreevalsan/mltrainer/internal/cache"
	"github.com/sreevalsan/mltrainer/internal/config"
	"github.com/sreevalsan/mltrainer/internal/mlconfig"
	"github.com/sreevalsan/mltrainer/internal/modelcache"
	"github.com/sreevalsan/mltrainer/internal/orchestrator"
	"github.com/sreevalsan/mltrainer/internal/scheduler"
	"github.com/sreevalsan/mltrainer/internal/stats"
	"github.com/sreevalsan/mltrainer/internal/store"
	"github.com/sreevalsan/mltrainer/internal/trainer"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "trainer_backend", cfg.Trainer.Backend, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create training backend
	tr, err := trainer.NewTrainer(cfg.Trainer)
	if err != nil {
		return fmt.Errorf("create trainer: %w", err)
	}
	slog.Info("trainer initialized", "backend", tr.Name())

	// 6. Build the service graph
	pgStore := store.NewPostgresStore(pool)
	mc := modelcache.New(cfg.ModelCache.MaxSize)
	orch := orchestrator.New(pgStore, redisCache, mc, tr, cfg.Orchestrator)
	configSvc := mlconfig.New(pgStore)
	aggregator := stats.New(pgStore, redisCache, mc)

	// 7. Start the scheduler
	sched := scheduler.New(pgStore, orch, cfg.Scheduler)
	go sched.Run(ctx)

	// 8. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, 120),

		HealthHandler:       healthHandler(pgStore, redisCache),
		GetConfigHandler:    handler.NewGetConfigHandler(configSvc),
		UpdateConfigHandler: handler.NewUpdateConfigHandler(configSvc),
		TriggerHandler:      handler.NewTriggerTrainingHandler(orch),
		LatestJobHandler:    handler.NewLatestJobHandler(orch),
		ListJobsHandler:     handler.NewListJobsHandler(pgStore),
		ModelInfoHandler:    handler.NewModelInfoHandler(aggregator),
		FeedbackHandler:     handler.NewFeedbackHandler(aggregator),
		SystemStatsHandler:  handler.NewSystemStatsHandler(aggregator),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // long-poll requests may hold for up to a minute
		IdleTimeout:  120 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown: stop accepting requests, then wait for in-flight
	// training runs so no job is left stuck in running.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := orch.Drain(shutdownCtx); err != nil {
		slog.Warn("training runs still in flight at shutdown", "error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
