package handler_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scrapeq/scrapeq/internal/cache"
	"github.com/scrapeq/scrapeq/internal/domain"
	"github.com/scrapeq/scrapeq/internal/queue"
	"github.com/scrapeq/scrapeq/internal/transport/http/handler"
	"github.com/scrapeq/scrapeq/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---- fakes ----

type fakeTaskQueue struct {
	getTask func(ctx context.Context, taskID string) (*domain.Job, error)

	added []*domain.Job
}

func (q *fakeTaskQueue) AddTask(_ context.Context, job *domain.Job) error {
	q.added = append(q.added, job)
	return nil
}

func (q *fakeTaskQueue) GetTask(ctx context.Context, taskID string) (*domain.Job, error) {
	return q.getTask(ctx, taskID)
}

func (q *fakeTaskQueue) ListTasks(_ context.Context, _, _ int) ([]*domain.Job, error) {
	return nil, nil
}

func (q *fakeTaskQueue) QueueStats(_ context.Context) (queue.Stats, error) {
	return queue.Stats{}, nil
}

// ---- helpers ----

func newTestEngine(q *fakeTaskQueue) (*gin.Engine, *cache.Cache) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	c := cache.New(time.Hour, logger)
	u := usecase.NewScrapeUsecase(q, c, "https://example.com/ofertas")
	h := handler.NewScrapeHandler(u, logger)

	r := gin.New()
	r.POST("/scrape", h.Submit)
	r.GET("/tasks", h.ListTasks)
	r.GET("/tasks/:id", h.GetTask)
	r.GET("/cache/keys", h.CacheKeys)
	return r, c
}

// ---- Submit ----

func TestSubmit_Returns202ForNewJob(t *testing.T) {
	q := &fakeTaskQueue{}
	r, _ := newTestEngine(q)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/scrape",
		strings.NewReader(`{"category":"MLU107","page":2}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}

	var resp domain.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Status != domain.StatusPending {
		t.Errorf("status = %s, want pending", resp.Status)
	}
	if len(q.added) != 1 {
		t.Errorf("queued %d jobs, want 1", len(q.added))
	}
}

func TestSubmit_Returns200ForResolvedCacheHit(t *testing.T) {
	q := &fakeTaskQueue{}
	r, c := newTestEngine(q)
	c.Set("MLU107", 1, domain.Response{TaskID: "done-1", Status: domain.StatusCompleted})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/scrape",
		strings.NewReader(`{"category":"MLU107"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(q.added) != 0 {
		t.Errorf("queued %d jobs on cache hit, want 0", len(q.added))
	}
}

func TestSubmit_InvalidCategory_Returns400(t *testing.T) {
	q := &fakeTaskQueue{}
	r, _ := newTestEngine(q)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/scrape",
		strings.NewReader(`{"category":"NOPE"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSubmit_MissingCategory_Returns400(t *testing.T) {
	q := &fakeTaskQueue{}
	r, _ := newTestEngine(q)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/scrape", strings.NewReader(`{"page":1}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// ---- GetTask ----

func TestGetTask_Returns404WhenMissing(t *testing.T) {
	q := &fakeTaskQueue{
		getTask: func(_ context.Context, _ string) (*domain.Job, error) {
			return nil, domain.ErrJobNotFound
		},
	}
	r, _ := newTestEngine(q)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks/nope", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetTask_ReturnsJob(t *testing.T) {
	job := &domain.Job{ID: "task-1", Status: domain.StatusCompleted}
	q := &fakeTaskQueue{
		getTask: func(_ context.Context, taskID string) (*domain.Job, error) {
			if taskID != "task-1" {
				t.Errorf("taskID = %q", taskID)
			}
			return job, nil
		},
	}
	r, _ := newTestEngine(q)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks/task-1", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got domain.Job
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.ID != "task-1" {
		t.Errorf("id = %q, want task-1", got.ID)
	}
}

// ---- ListTasks ----

func TestListTasks_EmptyIsJSONArray(t *testing.T) {
	q := &fakeTaskQueue{}
	r, _ := newTestEngine(q)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("body = %q, want []", body)
	}
}

// ---- CacheKeys ----

func TestCacheKeys_ListsActiveKeys(t *testing.T) {
	q := &fakeTaskQueue{}
	r, c := newTestEngine(q)
	c.Set("MLU107", 1, domain.Response{TaskID: "t-1", Status: domain.StatusPending})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/cache/keys", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		ActiveKeys []string `json:"active_keys"`
		TotalCount int      `json:"total_count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.TotalCount != 1 || len(resp.ActiveKeys) != 1 {
		t.Fatalf("resp = %+v, want one key", resp)
	}
	if resp.ActiveKeys[0] != "MLU107:page:1" {
		t.Errorf("key = %q, want MLU107:page:1", resp.ActiveKeys[0])
	}
}
