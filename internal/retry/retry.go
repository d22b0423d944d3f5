package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/scrapeq/scrapeq/internal/domain"
)

type Config struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
}

// Handler wraps a unit of work with bounded, classified, exponentially
// backed-off re-attempts.
type Handler struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Handler {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = time.Minute
	}
	if cfg.ExponentialBase <= 1 {
		cfg.ExponentialBase = 2.0
	}
	return &Handler{cfg: cfg, logger: logger.With("component", "retry")}
}

// Do runs op up to MaxAttempts times. Errors tagged non-retryable propagate
// immediately; everything else is retried with exponential backoff scaled by
// the error's classification. After exhaustion the most recent real error is
// returned, never a synthesized one.
func (h *Handler) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= h.cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				h.logger.InfoContext(ctx, "operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		lastErr = err
		kind := domain.Classify(err)
		h.logger.WarnContext(ctx, "attempt failed", "attempt", attempt, "kind", string(kind), "error", err)

		if kind == domain.KindNonRetryable {
			h.logger.ErrorContext(ctx, "non-retryable error, giving up", "error", err)
			return err
		}
		if ctx.Err() != nil {
			return lastErr
		}

		if attempt < h.cfg.MaxAttempts {
			delay := h.delay(attempt, kind)
			h.logger.InfoContext(ctx, "retrying", "in", delay)
			if sleepErr := sleep(ctx, delay); sleepErr != nil {
				return lastErr
			}
		} else {
			h.logger.ErrorContext(ctx, "all attempts exhausted", "attempts", h.cfg.MaxAttempts, "error", err)
		}
	}

	return lastErr
}

// delay computes the backoff before attempt+1. Extraction failures back off
// faster and throttling signals slower, mirroring how costly a retry is for
// each failure class.
func (h *Handler) delay(attempt int, kind domain.ErrorKind) time.Duration {
	d := float64(h.cfg.BaseDelay) * math.Pow(h.cfg.ExponentialBase, float64(attempt-1))

	switch kind {
	case domain.KindExtraction:
		d *= 0.5
	case domain.KindRateLimit:
		d *= 2.0
	}

	if h.cfg.Jitter {
		d *= 0.5 + rand.Float64() // uniform [0.5, 1.5)
	}

	if max := float64(h.cfg.MaxDelay); d > max {
		d = max
	}
	return time.Duration(d)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
