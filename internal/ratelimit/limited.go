package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/scrapeq/scrapeq/internal/retry"
)

// Limited pairs a Limiter with a retry Handler so every outbound request goes
// through both: acquire a permit for the target domain, run the operation with
// retries, release the permit exactly once regardless of outcome.
type Limited struct {
	limiter *Limiter
	retrier *retry.Handler

	mu    sync.Mutex
	stats Stats
}

type Stats struct {
	TotalRequests      int64         `json:"total_requests"`
	SuccessfulRequests int64         `json:"successful_requests"`
	FailedRequests     int64         `json:"failed_requests"`
	TotalWaitTime      time.Duration `json:"total_wait_time"`
	StartTime          time.Time     `json:"start_time"`
}

func NewLimited(limiter *Limiter, retrier *retry.Handler) *Limited {
	return &Limited{
		limiter: limiter,
		retrier: retrier,
		stats:   Stats{StartTime: time.Now()},
	}
}

// Do executes op against domain under rate limiting and retry.
func (l *Limited) Do(ctx context.Context, domain string, op func(ctx context.Context) error) error {
	start := time.Now()

	if err := l.limiter.Acquire(ctx, domain); err != nil {
		return err
	}
	defer l.limiter.Release()
	defer l.record(start)

	err := l.retrier.Do(ctx, op)

	l.mu.Lock()
	l.stats.TotalRequests++
	if err != nil {
		l.stats.FailedRequests++
	} else {
		l.stats.SuccessfulRequests++
	}
	l.mu.Unlock()

	return err
}

func (l *Limited) record(start time.Time) {
	l.mu.Lock()
	l.stats.TotalWaitTime += time.Since(start)
	l.mu.Unlock()
}

func (l *Limited) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
