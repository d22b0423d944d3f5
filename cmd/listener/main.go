package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/scrapeq/scrapeq/config"
	"github.com/scrapeq/scrapeq/internal/cache"
	"github.com/scrapeq/scrapeq/internal/listener"
	ctxlog "github.com/scrapeq/scrapeq/internal/log"
	"github.com/scrapeq/scrapeq/internal/metrics"
	"github.com/scrapeq/scrapeq/internal/queue"
	"github.com/scrapeq/scrapeq/internal/ratelimit"
	"github.com/scrapeq/scrapeq/internal/retry"
	"github.com/scrapeq/scrapeq/internal/scraper"
	"github.com/scrapeq/scrapeq/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	manager, err := queue.Dial(cfg.BrokerURL(), queue.Names{
		Tasks:      cfg.TasksQueue,
		Results:    cfg.ResultsQueue,
		Failed:     cfg.FailedQueue,
		Exchange:   cfg.Exchange,
		RoutingKey: cfg.RoutingKey,
	}, logger)
	if err != nil {
		stop()
		log.Fatalf("broker: %v", err)
	}
	defer manager.Close()

	pool, err := storage.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute:    cfg.RequestsPerMinute,
		MaxConcurrent:        cfg.MaxConcurrent,
		MaxRequestsPerSecond: cfg.MaxRequestsPerSecond,
		Jitter:               cfg.RateLimitJitter,
	}, logger)
	retrier := retry.New(retry.Config{
		MaxAttempts:     cfg.RetryMaxAttempts,
		BaseDelay:       cfg.RetryBaseDelay(),
		MaxDelay:        cfg.RetryMaxDelay(),
		ExponentialBase: cfg.RetryExponentBase,
		Jitter:          cfg.RetryJitterEnabled,
	}, logger)
	limited := ratelimit.NewLimited(limiter, retrier)

	dedup := cache.New(cfg.CacheTTL(), logger)
	extractor := scraper.New(limited, logger)
	store := storage.NewProductStore(pool, logger)

	metrics.Register()
	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	l := listener.New(manager, dedup, extractor, store, logger)
	if err := l.Run(ctx); err != nil {
		logger.Error("listener stopped", "error", err)
	}

	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
