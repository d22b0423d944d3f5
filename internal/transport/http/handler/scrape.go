package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scrapeq/scrapeq/internal/domain"
	"github.com/scrapeq/scrapeq/internal/usecase"
)

type ScrapeHandler struct {
	scrape *usecase.ScrapeUsecase
	logger *slog.Logger
}

func NewScrapeHandler(scrape *usecase.ScrapeUsecase, logger *slog.Logger) *ScrapeHandler {
	return &ScrapeHandler{scrape: scrape, logger: logger.With("component", "scrape_handler")}
}

type submitRequest struct {
	Category    string `json:"category" binding:"required"`
	Page        int    `json:"page"`
	MaxProducts int    `json:"max_products"`
}

func (h *ScrapeHandler) Submit(ctx *gin.Context) {
	var req submitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.scrape.Submit(ctx.Request.Context(), usecase.SubmitInput{
		Category:    req.Category,
		Page:        req.Page,
		MaxProducts: req.MaxProducts,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCategory) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidCategory})
			return
		}
		h.logger.Error("submit scrape", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	status := http.StatusAccepted
	if resp.Status != domain.StatusPending {
		// Cache hit on an already-resolved attempt.
		status = http.StatusOK
	}
	ctx.JSON(status, resp)
}

func (h *ScrapeHandler) GetTask(ctx *gin.Context) {
	taskID := ctx.Param("id")

	job, err := h.scrape.GetTask(ctx.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errTaskNotFound})
			return
		}
		h.logger.Error("get task", "task_id", taskID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, job)
}

func (h *ScrapeHandler) ListTasks(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))

	jobs, err := h.scrape.ListTasks(ctx.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list tasks", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if jobs == nil {
		jobs = []*domain.Job{}
	}

	ctx.JSON(http.StatusOK, jobs)
}

func (h *ScrapeHandler) QueueStats(ctx *gin.Context) {
	stats, err := h.scrape.QueueStats(ctx.Request.Context())
	if err != nil {
		h.logger.Error("queue stats", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, stats)
}

func (h *ScrapeHandler) CacheStats(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"cache_stats": h.scrape.CacheStats(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *ScrapeHandler) CacheKeys(ctx *gin.Context) {
	keys := h.scrape.CacheKeys()
	ctx.JSON(http.StatusOK, gin.H{
		"active_keys": keys,
		"total_count": len(keys),
	})
}

func (h *ScrapeHandler) Categories(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"pattern":     "ML[A-Z][0-9]{3,4}",
		"description": "Mercado Libre category codes: ML + site letter + 3-4 digits",
		"examples":    []string{"MLU107", "MLA1234", "MLC456", "MLB7890"},
	})
}
