package cache_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/scrapeq/scrapeq/internal/cache"
	"github.com/scrapeq/scrapeq/internal/domain"
)

func newCache(ttl time.Duration) *cache.Cache {
	return cache.New(ttl, slog.Default())
}

func resp(taskID string, status domain.Status) domain.Response {
	return domain.Response{TaskID: taskID, Status: status, Category: "MLU107", Page: 1}
}

func TestGet_MissOnEmptyCache(t *testing.T) {
	c := newCache(time.Hour)

	if _, ok := c.Get("MLU107", 1); ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestSetGet_RoundTrip(t *testing.T) {
	c := newCache(time.Hour)
	c.Set("MLU107", 1, resp("t-1", domain.StatusPending))

	got, ok := c.Get("MLU107", 1)
	if !ok {
		t.Fatal("expected hit")
	}
	if got.TaskID != "t-1" {
		t.Errorf("TaskID = %q, want t-1", got.TaskID)
	}
}

func TestGet_CategoryCaseInsensitive(t *testing.T) {
	c := newCache(time.Hour)
	c.Set("mlu107", 1, resp("t-1", domain.StatusPending))

	if _, ok := c.Get("MLU107", 1); !ok {
		t.Fatal("lowercase write not visible to uppercase read")
	}
}

func TestGet_ExpiredEntryIsGone(t *testing.T) {
	c := newCache(10 * time.Millisecond)
	c.Set("MLU107", 1, resp("t-1", domain.StatusCompleted))

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("MLU107", 1); ok {
		t.Fatal("expired entry still visible")
	}
	if got := c.Stats().TotalEntries; got != 0 {
		t.Errorf("TotalEntries = %d after expiry, want 0", got)
	}
}

func TestSet_OverwriteResetsTTL(t *testing.T) {
	c := newCache(50 * time.Millisecond)
	c.Set("MLU107", 1, resp("t-1", domain.StatusPending))

	time.Sleep(30 * time.Millisecond)
	c.Set("MLU107", 1, resp("t-2", domain.StatusCompleted))
	time.Sleep(30 * time.Millisecond)

	// 60ms after the first write but only 30ms after the second: the
	// overwrite must have restarted the clock.
	got, ok := c.Get("MLU107", 1)
	if !ok {
		t.Fatal("entry expired despite overwrite")
	}
	if got.TaskID != "t-2" {
		t.Errorf("TaskID = %q, want t-2", got.TaskID)
	}
}

func TestInvalidate_ReportsRemoval(t *testing.T) {
	c := newCache(time.Hour)
	c.Set("MLU107", 1, resp("t-1", domain.StatusPending))

	if !c.Invalidate("MLU107", 1) {
		t.Fatal("Invalidate returned false for present entry")
	}
	if c.Invalidate("MLU107", 1) {
		t.Fatal("Invalidate returned true for absent entry")
	}
	if _, ok := c.Get("MLU107", 1); ok {
		t.Fatal("entry survived invalidation")
	}
}

func TestClear_RemovesEverything(t *testing.T) {
	c := newCache(time.Hour)
	c.Set("MLU107", 1, resp("t-1", domain.StatusPending))
	c.Set("MLU107", 2, resp("t-2", domain.StatusPending))

	c.Clear()

	if got := len(c.Keys()); got != 0 {
		t.Errorf("Keys() has %d entries after Clear, want 0", got)
	}
}

func TestKeys_ListsUnexpiredOnly(t *testing.T) {
	c := newCache(20 * time.Millisecond)
	c.Set("MLU107", 1, resp("t-1", domain.StatusPending))

	time.Sleep(30 * time.Millisecond)
	c.Set("MLU107", 2, resp("t-2", domain.StatusPending))

	keys := c.Keys()
	if len(keys) != 1 {
		t.Fatalf("Keys() = %v, want exactly the fresh key", keys)
	}
	if keys[0] != "MLU107:page:2" {
		t.Errorf("keys[0] = %q, want MLU107:page:2", keys[0])
	}
}

func TestStats_ReflectsEntries(t *testing.T) {
	c := newCache(time.Hour)
	c.Set("MLU107", 1, resp("t-1", domain.StatusCompleted))

	s := c.Stats()
	if s.TotalEntries != 1 {
		t.Errorf("TotalEntries = %d, want 1", s.TotalEntries)
	}
	if s.TTLSeconds != 3600 {
		t.Errorf("TTLSeconds = %f, want 3600", s.TTLSeconds)
	}
	if s.AvgTimeToExpireSec <= 0 || s.AvgTimeToExpireSec > 3600 {
		t.Errorf("AvgTimeToExpireSec = %f, want (0, 3600]", s.AvgTimeToExpireSec)
	}
	if s.MemoryUsageBytes <= 0 {
		t.Errorf("MemoryUsageBytes = %d, want > 0", s.MemoryUsageBytes)
	}
}
