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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/scrapeq/scrapeq/config"
	"github.com/scrapeq/scrapeq/internal/cache"
	"github.com/scrapeq/scrapeq/internal/health"
	ctxlog "github.com/scrapeq/scrapeq/internal/log"
	"github.com/scrapeq/scrapeq/internal/metrics"
	"github.com/scrapeq/scrapeq/internal/queue"
	"github.com/scrapeq/scrapeq/internal/schedule"
	"github.com/scrapeq/scrapeq/internal/storage"
	httptransport "github.com/scrapeq/scrapeq/internal/transport/http"
	"github.com/scrapeq/scrapeq/internal/transport/http/handler"
	"github.com/scrapeq/scrapeq/internal/usecase"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

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

	dedup := cache.New(cfg.CacheTTL(), logger)
	scrapeUsecase := usecase.NewScrapeUsecase(manager, dedup, cfg.BaseURL)
	scrapeHandler := handler.NewScrapeHandler(scrapeUsecase, logger)

	metrics.Register()
	checker := health.NewChecker(manager, pool, logger, prometheus.DefaultRegisterer)

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httptransport.NewRouter(logger, scrapeHandler, checker),
	}

	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)

	if cfg.ScrapeSchedule != "" {
		targets, err := schedule.ParseTargets(cfg.ScrapeCategories)
		if err != nil {
			stop()
			log.Fatalf("schedule targets: %v", err)
		}
		dispatcher, err := schedule.NewDispatcher(scrapeUsecase, cfg.ScrapeSchedule, targets, logger)
		if err != nil {
			stop()
			log.Fatalf("schedule: %v", err)
		}
		go dispatcher.Start(ctx)
	}

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
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
