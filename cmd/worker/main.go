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

	"github.com/prometheus/client_golang/prometheus"

	"faceattend/internal/attendance"
	"faceattend/internal/config"
	"faceattend/internal/logger"
	"faceattend/internal/metrics"
	"faceattend/internal/queue"
	"faceattend/internal/store"
)

// Worker consumes attendance events from redis and keeps the cached
// dashboard summary fresh.
func main() {
	cfg, err := config.Load()
	logger.SetupDefault(os.Stdout, logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.QueueBackend != "redis" {
		slog.Error("worker needs QUEUE_BACKEND=redis; the memory queue is consumed by the api process")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, store.Options{Driver: cfg.StoreDriver, URL: cfg.DatabaseURL})
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.StatsCacheTTL)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		slog.Warn("redis not reachable yet, consumer will retry", slog.String("addr", cfg.RedisAddr))
	}

	reg := prometheus.NewRegistry()
	col := metrics.NewCollector(reg)
	dashboard := attendance.NewDashboard(db, redisClient)

	srv := &http.Server{
		Addr:              ":" + cfg.WorkerPort,
		Handler:           metrics.Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	slog.Info("worker started, waiting for events", slog.String("queue", queue.DefaultKey))
	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	err = queue.Run(ctx, q, func(ctx context.Context, evt attendance.Event) error {
		col.EventProcessed(evt.Type)
		if err := dashboard.Invalidate(ctx, evt.At); err != nil {
			return err
		}
		// Recompute so the next dashboard read is served from the cache.
		_, err := dashboard.Summary(ctx)
		return err
	})
	if err != nil {
		slog.Error("worker stopped", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	slog.Info("worker stopped")
}
