package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrapeq/scrapeq/internal/cache"
	"github.com/scrapeq/scrapeq/internal/domain"
	"github.com/scrapeq/scrapeq/internal/metrics"
	"github.com/scrapeq/scrapeq/internal/queue"
)

// categoryPattern matches Mercado Libre category codes: ML + site letter +
// 3-4 digits, e.g. MLU107 or MLA1234.
var categoryPattern = regexp.MustCompile(`^ML[A-Z]\d{3,4}$`)

// TaskQueue is the slice of the queue manager the front door uses.
type TaskQueue interface {
	AddTask(ctx context.Context, job *domain.Job) error
	GetTask(ctx context.Context, taskID string) (*domain.Job, error)
	ListTasks(ctx context.Context, limit, offset int) ([]*domain.Job, error)
	QueueStats(ctx context.Context) (queue.Stats, error)
}

type SubmitInput struct {
	Category    string
	Page        int
	MaxProducts int
}

// ScrapeUsecase owns submission semantics: validate, dedup against the
// cache, publish the job, and write the pending placeholder that collapses
// concurrent submissions for the same (category, page).
type ScrapeUsecase struct {
	tasks   TaskQueue
	cache   *cache.Cache
	baseURL string
}

func NewScrapeUsecase(tasks TaskQueue, c *cache.Cache, baseURL string) *ScrapeUsecase {
	return &ScrapeUsecase{tasks: tasks, cache: c, baseURL: baseURL}
}

// Submit creates and queues a scraping job for (category, page). If the
// dedup cache already holds a response for the key, that response is
// returned and no new job is created: the in-flight or completed attempt
// owns the outcome.
func (u *ScrapeUsecase) Submit(ctx context.Context, input SubmitInput) (domain.Response, error) {
	category := strings.ToUpper(strings.TrimSpace(input.Category))
	if !categoryPattern.MatchString(category) {
		return domain.Response{}, fmt.Errorf("%w: %q", domain.ErrInvalidCategory, input.Category)
	}
	if input.Page < 1 {
		input.Page = 1
	}
	if input.MaxProducts < 1 {
		input.MaxProducts = 50
	}

	if cached, ok := u.cache.Get(category, input.Page); ok {
		metrics.TasksSubmittedTotal.WithLabelValues("cache_hit").Inc()
		return cached, nil
	}

	url := fmt.Sprintf("%s?category=%s&page=%d", u.baseURL, category, input.Page)

	job := &domain.Job{
		ID: uuid.NewString(),
		Request: domain.Request{
			URL:         url,
			Category:    category,
			Page:        input.Page,
			MaxProducts: input.MaxProducts,
		},
		Status:    domain.StatusPending,
		CreatedAt: domain.Timestamp(time.Now()),
	}

	if err := u.tasks.AddTask(ctx, job); err != nil {
		metrics.TasksSubmittedTotal.WithLabelValues("error").Inc()
		return domain.Response{}, fmt.Errorf("queue job: %w", err)
	}

	resp := domain.Response{
		TaskID:      job.ID,
		Status:      domain.StatusPending,
		Message:     "scraping task created",
		URL:         url,
		Category:    category,
		Page:        input.Page,
		MaxProducts: input.MaxProducts,
	}

	// Write the placeholder synchronously, before returning: a second
	// submission for the same key must observe it and short-circuit
	// instead of creating a second job.
	u.cache.Set(category, input.Page, resp)

	metrics.TasksSubmittedTotal.WithLabelValues("created").Inc()
	return resp, nil
}

func (u *ScrapeUsecase) GetTask(ctx context.Context, taskID string) (*domain.Job, error) {
	job, err := u.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return job, nil
}

func (u *ScrapeUsecase) ListTasks(ctx context.Context, limit, offset int) ([]*domain.Job, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	jobs, err := u.tasks.ListTasks(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return jobs, nil
}

func (u *ScrapeUsecase) QueueStats(ctx context.Context) (queue.Stats, error) {
	return u.tasks.QueueStats(ctx)
}

func (u *ScrapeUsecase) CacheStats() cache.Stats {
	return u.cache.Stats()
}

func (u *ScrapeUsecase) CacheKeys() []string {
	return u.cache.Keys()
}
