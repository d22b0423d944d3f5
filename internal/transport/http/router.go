package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/scrapeq/scrapeq/internal/health"
	"github.com/scrapeq/scrapeq/internal/transport/http/handler"
	"github.com/scrapeq/scrapeq/internal/transport/http/middleware"
)

func NewRouter(logger *slog.Logger, scrapeHandler *handler.ScrapeHandler, checker *health.Checker) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	r.POST("/scrape", scrapeHandler.Submit)
	r.GET("/tasks", scrapeHandler.ListTasks)
	r.GET("/tasks/:id", scrapeHandler.GetTask)
	r.GET("/queues/stats", scrapeHandler.QueueStats)
	r.GET("/cache/stats", scrapeHandler.CacheStats)
	r.GET("/cache/keys", scrapeHandler.CacheKeys)
	r.GET("/categories", scrapeHandler.Categories)

	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, checker.Liveness(ctx.Request.Context()))
	})
	r.GET("/readyz", func(ctx *gin.Context) {
		result := checker.Readiness(ctx.Request.Context())
		status := http.StatusOK
		if result.Status != "up" {
			status = http.StatusServiceUnavailable
		}
		ctx.JSON(status, result)
	})

	return r
}
