package ratelimit

import (
	"context"
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/scrapeq/scrapeq/internal/metrics"
)

// Config bounds outbound request pace. Zero values are replaced by defaults
// matching the scraper's production profile.
type Config struct {
	RequestsPerMinute    int
	MaxConcurrent        int
	MaxRequestsPerSecond float64
	Jitter               bool
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute:    30,
		MaxConcurrent:        3,
		MaxRequestsPerSecond: 1.0,
		Jitter:               true,
	}
}

type domainState struct {
	lastRequest time.Time
	count       int
	windowStart time.Time
}

// Limiter bounds total in-flight callers across all domains and, per domain,
// enforces a rolling one-minute request ceiling plus a minimum inter-request
// spacing. It is the only component here designed for concurrent callers.
// No FIFO ordering is guaranteed among waiters.
type Limiter struct {
	cfg    Config
	sem    chan struct{}
	logger *slog.Logger

	mu      sync.Mutex
	domains map[string]*domainState
}

func New(cfg Config, logger *slog.Logger) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 30
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.MaxRequestsPerSecond <= 0 {
		cfg.MaxRequestsPerSecond = 1.0
	}
	return &Limiter{
		cfg:     cfg,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		logger:  logger.With("component", "rate_limiter"),
		domains: make(map[string]*domainState),
	}
}

// Acquire blocks until the caller may issue one request against domain.
// Callers must call Release exactly once per successful Acquire, including on
// failure paths. A context error releases the concurrency permit internally,
// so no Release is owed after a failed Acquire.
func (l *Limiter) Acquire(ctx context.Context, domain string) error {
	start := time.Now()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := l.waitForDomain(ctx, domain); err != nil {
		<-l.sem
		return err
	}

	metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
	return nil
}

// Release returns the concurrency permit.
func (l *Limiter) Release() {
	<-l.sem
}

func (l *Limiter) waitForDomain(ctx context.Context, domain string) error {
	if domain == "" {
		domain = "default"
	}

	l.mu.Lock()
	st, ok := l.domains[domain]
	if !ok {
		st = &domainState{windowStart: time.Now()}
		l.domains[domain] = st
	}

	now := time.Now()

	// Roll the minute window.
	if now.Sub(st.windowStart) >= time.Minute {
		st.count = 0
		st.windowStart = now
	}

	if st.count >= l.cfg.RequestsPerMinute {
		wait := time.Minute - now.Sub(st.windowStart)
		l.mu.Unlock()
		l.logger.Info("per-minute ceiling reached, waiting for window rollover",
			"domain", domain, "wait", wait)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
		l.mu.Lock()
		st.count = 0
		st.windowStart = time.Now()
		now = st.windowStart
	}

	// Minimum spacing between consecutive requests to the same domain.
	minDelay := time.Duration(float64(time.Second) / l.cfg.MaxRequestsPerSecond)
	if since := now.Sub(st.lastRequest); since < minDelay {
		delay := minDelay - since
		if l.cfg.Jitter {
			delay += time.Duration(rand.Int63n(int64(200 * time.Millisecond)))
		}
		l.mu.Unlock()
		l.logger.Debug("spacing requests", "domain", domain, "delay", delay)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		l.mu.Lock()
	}

	st.lastRequest = time.Now()
	st.count++
	l.mu.Unlock()
	return nil
}

// InFlight reports how many concurrency permits are currently held.
func (l *Limiter) InFlight() int {
	return len(l.sem)
}

// DomainCount reports the request count inside domain's current minute window.
func (l *Limiter) DomainCount(domain string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.domains[domain]; ok {
		return st.count
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExtractDomain pulls the host out of a URL for per-domain budgeting.
// Unparseable or host-less URLs share the "default" budget.
func ExtractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "default"
	}
	return u.Host
}
