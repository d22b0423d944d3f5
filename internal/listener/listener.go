package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/scrapeq/scrapeq/internal/cache"
	"github.com/scrapeq/scrapeq/internal/domain"
	"github.com/scrapeq/scrapeq/internal/metrics"
	"github.com/scrapeq/scrapeq/internal/taskid"
)

// Extractor turns a listing URL into structured product records.
// The scraper package provides the production implementation.
type Extractor interface {
	Extract(ctx context.Context, url string, maxItems int) ([]domain.Product, error)
}

// Store persists extracted records. A false-ish outcome is an error here.
type Store interface {
	Insert(ctx context.Context, products []domain.Product) error
}

// Broker is the slice of the queue manager the listener consumes.
type Broker interface {
	Consume() (<-chan amqp.Delivery, error)
	Ack(tag uint64) error
	Nack(tag uint64, requeue bool) error
	PublishStatus(ctx context.Context, job *domain.Job) error
}

// Listener is the single long-running control loop: it receives a job
// message, consults the dedup cache, delegates execution to the extractor,
// persists results, updates the cache and acknowledges or requeues.
// Prefetch is one, so each Listener processes strictly sequentially.
type Listener struct {
	broker    Broker
	cache     *cache.Cache
	extractor Extractor
	store     Store
	logger    *slog.Logger
}

func New(broker Broker, c *cache.Cache, extractor Extractor, store Store, logger *slog.Logger) *Listener {
	return &Listener{
		broker:    broker,
		cache:     c,
		extractor: extractor,
		store:     store,
		logger:    logger.With("component", "listener"),
	}
}

// Run consumes deliveries until ctx is cancelled or the broker closes the
// delivery stream.
func (l *Listener) Run(ctx context.Context) error {
	deliveries, err := l.broker.Consume()
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	l.logger.Info("listener started")

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("listener shut down")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery stream closed")
			}
			l.Handle(ctx, d)
		}
	}
}

// Handle runs one message through the state machine:
// received → normalized → cache-checked → {short-circuit-ack | process} →
// {ack | nack-requeue}. A message is never silently dropped: it is either
// acknowledged or requeued for broker-level redelivery.
func (l *Listener) Handle(ctx context.Context, d amqp.Delivery) {
	job, err := normalize(d.Body)
	if err != nil {
		l.logger.ErrorContext(ctx, "rejecting message", "message_id", d.MessageId, "error", err)
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		l.nack(ctx, d)
		return
	}

	ctx = taskid.WithTaskID(ctx, job.ID)
	category := job.Request.Category
	page := job.Request.Page

	if resp, ok := l.cache.Get(category, page); ok {
		l.logger.InfoContext(ctx, "cache hit, skipping processing",
			"category", category, "page", page, "cached_status", string(resp.Status))
		metrics.MessagesTotal.WithLabelValues("cache_hit").Inc()
		l.ack(ctx, d)
		return
	}

	l.logger.InfoContext(ctx, "cache miss, processing",
		"category", category, "page", page, "url", job.Request.URL)

	if err := l.process(ctx, job); err != nil {
		l.logger.ErrorContext(ctx, "processing failed", "error", err)

		// Remove any stale placeholder so a future submission for this
		// key is not permanently blocked by this attempt's ghost entry.
		l.cache.Invalidate(category, page)
		metrics.MessagesTotal.WithLabelValues("failed").Inc()
		l.nack(ctx, d)
		return
	}

	metrics.MessagesTotal.WithLabelValues("completed").Inc()
	l.ack(ctx, d)
}

func (l *Listener) process(ctx context.Context, job *domain.Job) error {
	start := time.Now()

	products, err := l.extractor.Extract(ctx, job.Request.URL, job.Request.MaxProducts)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	if err := l.store.Insert(ctx, products); err != nil {
		return fmt.Errorf("persist %d products: %w", len(products), err)
	}

	metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
	metrics.ProductsExtractedTotal.Add(float64(len(products)))

	job.Status = domain.StatusCompleted
	now := domain.Timestamp(time.Now())
	job.CompletedAt = &now
	if err := l.broker.PublishStatus(ctx, job); err != nil {
		// The work itself succeeded; a failed history write is not worth a
		// redelivery that would redo the scrape.
		l.logger.WarnContext(ctx, "record completed status", "error", err)
	}

	l.cache.Set(job.Request.Category, job.Request.Page, domain.Response{
		TaskID:      job.ID,
		Status:      domain.StatusCompleted,
		Message:     fmt.Sprintf("scraping completed, %d products found", len(products)),
		URL:         job.Request.URL,
		Category:    job.Request.Category,
		Page:        job.Request.Page,
		MaxProducts: job.Request.MaxProducts,
	})

	l.logger.InfoContext(ctx, "task completed", "products", len(products), "duration", time.Since(start))
	return nil
}

func (l *Listener) ack(ctx context.Context, d amqp.Delivery) {
	if err := l.broker.Ack(d.DeliveryTag); err != nil {
		l.logger.ErrorContext(ctx, "ack", "delivery_tag", d.DeliveryTag, "error", err)
	}
}

func (l *Listener) nack(ctx context.Context, d amqp.Delivery) {
	if err := l.broker.Nack(d.DeliveryTag, true); err != nil {
		l.logger.ErrorContext(ctx, "nack", "delivery_tag", d.DeliveryTag, "error", err)
	}
}

// rawMessage covers both payload shapes the listener accepts.
type rawMessage struct {
	// canonical
	ID        string          `json:"id"`
	Request   *domain.Request `json:"request"`
	Status    domain.Status   `json:"status"`
	CreatedAt string          `json:"created_at"`

	// legacy flat producer shape
	URL      string `json:"url"`
	Category string `json:"category"`
	Page     *int   `json:"page"`
	Metadata struct {
		MaxProducts *int `json:"max_products"`
	} `json:"metadata"`
	Timestamp string `json:"timestamp"`
}

const defaultMaxProducts = 50

// normalize parses a message body into the canonical job shape. Legacy flat
// messages (bare url/category/page/metadata) are synthesized into a job with
// a generated id and pending status. Anything else fails with a descriptive
// error so the caller can requeue rather than silently drop.
func normalize(body []byte) (*domain.Job, error) {
	var raw rawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnknownPayload, err)
	}

	if raw.ID != "" && raw.Request != nil && raw.Status != "" && raw.CreatedAt != "" {
		return &domain.Job{
			ID:        raw.ID,
			Request:   *raw.Request,
			Status:    raw.Status,
			CreatedAt: raw.CreatedAt,
		}, nil
	}

	if raw.URL != "" && raw.Category != "" {
		page := 1
		if raw.Page != nil {
			page = *raw.Page
		}
		maxProducts := defaultMaxProducts
		if raw.Metadata.MaxProducts != nil {
			maxProducts = *raw.Metadata.MaxProducts
		}
		createdAt := raw.Timestamp
		if createdAt == "" {
			createdAt = domain.Timestamp(time.Now())
		}
		return &domain.Job{
			ID: fmt.Sprintf("auto-%s", time.Now().Format("20060102-150405")),
			Request: domain.Request{
				URL:         raw.URL,
				Category:    raw.Category,
				Page:        page,
				MaxProducts: maxProducts,
			},
			Status:    domain.StatusPending,
			CreatedAt: createdAt,
		}, nil
	}

	return nil, fmt.Errorf("%w: body %q", domain.ErrUnknownPayload, truncate(body, 200))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
