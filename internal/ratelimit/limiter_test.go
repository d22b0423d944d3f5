package ratelimit_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/scrapeq/scrapeq/internal/domain"
	"github.com/scrapeq/scrapeq/internal/ratelimit"
	"github.com/scrapeq/scrapeq/internal/retry"
)

// fastConfig removes all pacing so tests only exercise the behavior under
// test: a very high per-second rate means no spacing sleeps.
func fastConfig(maxConcurrent int) ratelimit.Config {
	return ratelimit.Config{
		RequestsPerMinute:    1000,
		MaxConcurrent:        maxConcurrent,
		MaxRequestsPerSecond: 10000,
		Jitter:               false,
	}
}

func TestAcquireRelease_TracksInFlight(t *testing.T) {
	l := ratelimit.New(fastConfig(3), slog.Default())
	ctx := context.Background()

	if err := l.Acquire(ctx, "example.com"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got := l.InFlight(); got != 1 {
		t.Errorf("InFlight = %d, want 1", got)
	}

	l.Release()
	if got := l.InFlight(); got != 0 {
		t.Errorf("InFlight = %d after release, want 0", got)
	}
}

func TestAcquire_BlocksAtMaxConcurrent(t *testing.T) {
	l := ratelimit.New(fastConfig(1), slog.Default())
	ctx := context.Background()

	if err := l.Acquire(ctx, "example.com"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	blockedCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := l.Acquire(blockedCtx, "example.com"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second acquire should block until deadline, got %v", err)
	}

	// The failed acquire must not leak a permit.
	l.Release()
	if err := l.Acquire(ctx, "example.com"); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestAcquire_EnforcesMinimumSpacing(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{
		RequestsPerMinute:    1000,
		MaxConcurrent:        3,
		MaxRequestsPerSecond: 20, // 50ms between requests
		Jitter:               false,
	}, slog.Default())
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx, "example.com"); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		l.Release()
	}

	// Second and third acquires each owe at least 50ms of spacing.
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("3 sequential acquires took %v, want >= 100ms", elapsed)
	}
}

func TestAcquire_DomainsAreIndependent(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{
		RequestsPerMinute:    1000,
		MaxConcurrent:        3,
		MaxRequestsPerSecond: 2, // 500ms spacing within one domain
		Jitter:               false,
	}, slog.Default())
	ctx := context.Background()

	start := time.Now()
	for _, d := range []string{"a.example.com", "b.example.com", "c.example.com"} {
		if err := l.Acquire(ctx, d); err != nil {
			t.Fatalf("acquire %s: %v", d, err)
		}
		l.Release()
	}

	// No two requests hit the same domain, so no spacing sleep applies.
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("acquires across distinct domains took %v, want well under the per-domain spacing", elapsed)
	}
}

func TestAcquire_CountsPerDomainWindow(t *testing.T) {
	l := ratelimit.New(fastConfig(3), slog.Default())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := l.Acquire(ctx, "example.com"); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		l.Release()
	}

	if got := l.DomainCount("example.com"); got != 4 {
		t.Errorf("DomainCount = %d, want 4", got)
	}
	if got := l.DomainCount("other.com"); got != 0 {
		t.Errorf("DomainCount(other) = %d, want 0", got)
	}
}

func TestAcquire_ConcurrentCallersRespectCeiling(t *testing.T) {
	const workers = 10
	l := ratelimit.New(fastConfig(2), slog.Default())
	ctx := context.Background()

	var mu sync.Mutex
	inFlight, peak := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(ctx, "example.com"); err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			l.Release()
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Errorf("observed %d concurrent holders, want <= 2", peak)
	}
}

func TestExtractDomain(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://www.mercadolibre.com.uy/ofertas?category=MLU107", "www.mercadolibre.com.uy"},
		{"http://localhost:8080/x", "localhost:8080"},
		{"not a url at all ://", "default"},
		{"/relative/path", "default"},
	}
	for _, tc := range cases {
		if got := ratelimit.ExtractDomain(tc.url); got != tc.want {
			t.Errorf("ExtractDomain(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

// ---- Limited ----

func TestLimitedDo_ReleasesOnSuccessAndFailure(t *testing.T) {
	limiter := ratelimit.New(fastConfig(1), slog.Default())
	retrier := retry.New(retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond}, slog.Default())
	limited := ratelimit.NewLimited(limiter, retrier)
	ctx := context.Background()

	if err := limited.Do(ctx, "example.com", func(_ context.Context) error { return nil }); err != nil {
		t.Fatalf("do: %v", err)
	}
	opErr := domain.NavigationError(errors.New("down"))
	if err := limited.Do(ctx, "example.com", func(_ context.Context) error { return opErr }); err == nil {
		t.Fatal("expected failure to propagate")
	}

	// With MaxConcurrent 1, a leaked permit would show up here and deadlock
	// every subsequent Do.
	if got := limiter.InFlight(); got != 0 {
		t.Fatalf("InFlight = %d after both calls, want 0", got)
	}

	stats := limited.Stats()
	if stats.TotalRequests != 2 || stats.SuccessfulRequests != 1 || stats.FailedRequests != 1 {
		t.Errorf("stats = %+v, want 2 total / 1 ok / 1 failed", stats)
	}
}

func TestLimitedDo_RetriesInsideOnePermit(t *testing.T) {
	limiter := ratelimit.New(fastConfig(1), slog.Default())
	retrier := retry.New(retry.Config{
		MaxAttempts:     3,
		BaseDelay:       time.Millisecond,
		MaxDelay:        10 * time.Millisecond,
		ExponentialBase: 2.0,
	}, slog.Default())
	limited := ratelimit.NewLimited(limiter, retrier)

	calls := 0
	err := limited.Do(context.Background(), "example.com", func(_ context.Context) error {
		calls++
		if calls < 3 {
			return domain.NavigationError(errors.New("flaky"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}
