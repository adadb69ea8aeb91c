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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/cloudinary"
	"faceattend/internal/config"
	"faceattend/internal/extractor"
	"faceattend/internal/handler"
	"faceattend/internal/httpmiddleware"
	"faceattend/internal/logger"
	"faceattend/internal/metrics"
	"faceattend/internal/queue"
	"faceattend/internal/store"
)

func main() {
	cfg, err := config.Load()
	logger.SetupDefault(os.Stdout, logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		slog.Error("http server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, store.Options{
		Driver:         cfg.StoreDriver,
		URL:            cfg.DatabaseURL,
		MigrateOnStart: cfg.MigrateOnStart,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.StatsCacheTTL)
	defer redisClient.Close()

	var cache attendance.SummaryCache
	if redisClient.Healthy(ctx) {
		cache = redisClient
	} else {
		slog.Warn("redis not reachable, dashboard summaries are not cached", slog.String("addr", cfg.RedisAddr))
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	col := metrics.NewCollector(reg)

	dashboard := attendance.NewDashboard(db, cache)

	// The memory queue is only visible in this process, so consume it here.
	if cfg.QueueBackend == "memory" {
		go func() {
			if err := queue.Run(ctx, q, invalidator(dashboard, col)); err != nil {
				slog.Error("event consumer stopped", slog.Any("error", err))
			}
		}()
	}

	backend, closeBackend := newBackend(cfg)
	defer closeBackend()
	faces := extractor.New(backend)
	warmCtx, cancelWarm := context.WithTimeout(ctx, 30*time.Second)
	if err := faces.Initialize(warmCtx); err != nil {
		// Detect retries the load on first use.
		slog.Warn("face model not loaded at startup", slog.Any("error", err))
	} else {
		slog.Info("face model loaded")
	}
	cancelWarm()

	var photos attendance.PhotoUploader
	if cfg.CloudinaryURL != "" {
		cdn, err := cloudinary.NewFromURL(cfg.CloudinaryURL)
		if err != nil {
			return err
		}
		photos = cdn
		slog.Info("cloudinary configured", slog.String("cloud", cdn.CloudName))
	} else {
		slog.Info("cloudinary not configured, enrollment snapshots are discarded")
	}

	events := queue.Publisher{Queue: q}
	sessions := attendance.NewSessions(attendance.EnrollDeps{
		Store:    db,
		Detector: faces,
		Events:   events,
		Observer: col,
		Photos:   photos,
	}, cfg.EnrollTTL)
	go sessions.Run(ctx, time.Minute)

	flows := attendance.NewFlows(attendance.MatchDeps{
		Store:     db,
		Detector:  faces,
		Events:    events,
		Observer:  col,
		Threshold: cfg.MatchThreshold,
	}, cfg.EnrollTTL)
	go flows.Run(ctx, time.Minute)

	signer := auth.NewSigner(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL)
	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin)
	defer limiter.Stop()

	r := handler.NewRouter(handler.Deps{
		Sessions:    sessions,
		Flows:       flows,
		Dashboard:   dashboard,
		Devices:     auth.NewDevices(db, signer),
		Signer:      signer,
		Metrics:     col,
		Gatherer:    reg,
		RateLimiter: limiter,
		Checks: map[string]handler.HealthCheck{
			"db": db.Ping,
			"redis": func(ctx context.Context) error {
				if !redisClient.Healthy(ctx) {
					return errors.New("redis unreachable")
				}
				return nil
			},
			"face": healthCheck(backend),
		},
		CORSOrigins:    cfg.CORSOrigins,
		MaxFrameWidth:  cfg.FrameMaxWidth,
		MaxFrameHeight: cfg.FrameMaxHeight,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", slog.String("addr", srv.Addr), slog.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", slog.Any("error", err))
	}
	slog.Info("server exited")
	return nil
}

// invalidator drops the cached summary for the day of each event.
func invalidator(d *attendance.Dashboard, col *metrics.Collector) queue.Handler {
	return func(ctx context.Context, evt attendance.Event) error {
		col.EventProcessed(evt.Type)
		return d.Invalidate(ctx, evt.At)
	}
}

// healthCheck uses the backend's own probe when it has one.
func healthCheck(b extractor.Backend) handler.HealthCheck {
	if h, ok := b.(interface{ Health(context.Context) error }); ok {
		return h.Health
	}
	return func(context.Context) error { return nil }
}
