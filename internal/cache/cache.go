package cache

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/scrapeq/scrapeq/internal/domain"
)

type entry struct {
	data      domain.Response
	createdAt time.Time
	expiresAt time.Time
}

// Cache is a time-bounded mapping from a (category, page) dedup key to the
// last known response for that key. A submission writes a pending placeholder
// here before the consumer ever sees the message, so a second submission for
// the same key short-circuits instead of creating duplicate work.
//
// One lock guards the backing map; Get and Set sweep expired entries while
// they hold it, so the visible entry count always matches "currently
// unexpired". Expired entries never resurrect.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Stats reports the cache's current shape.
type Stats struct {
	TotalEntries       int     `json:"total_entries"`
	TTLSeconds         float64 `json:"ttl_seconds"`
	AvgTimeToExpireSec float64 `json:"avg_time_to_expire_seconds"`
	MemoryUsageBytes   int     `json:"memory_usage_bytes"`
}

func New(ttl time.Duration, logger *slog.Logger) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		logger:  logger.With("component", "cache"),
		now:     time.Now,
	}
	c.logger.Info("dedup cache initialized", "ttl", ttl)
	return c
}

// Get returns the response stored for (category, page), or false if absent
// or expired. Category matching is case-insensitive.
func (c *Cache) Get(category string, page int) (domain.Response, bool) {
	key := domain.DedupKey(category, page)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()

	e, ok := c.entries[key]
	if !ok {
		c.logger.Debug("cache miss", "key", key)
		return domain.Response{}, false
	}
	c.logger.Info("cache hit", "key", key)
	return e.data, true
}

// Set stores resp for (category, page), unconditionally overwriting any
// existing entry and resetting its TTL clock.
func (c *Cache) Set(category string, page int, resp domain.Response) {
	key := domain.DedupKey(category, page)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()

	c.entries[key] = entry{
		data:      resp,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
	c.logger.Info("cache set", "key", key, "status", string(resp.Status), "expires_at", now.Add(c.ttl))
}

// Invalidate removes the entry for (category, page) if present, reporting
// whether a removal occurred. Used to undo a placeholder after a failed
// attempt so a fresh submission is not blocked by its ghost.
func (c *Cache) Invalidate(category string, page int) bool {
	key := domain.DedupKey(category, page)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.logger.Info("cache invalidated", "key", key)
		return true
	}
	c.logger.Debug("nothing to invalidate", "key", key)
	return false
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]entry)
	c.logger.Info("cache cleared", "removed", n)
}

// Keys lists all currently unexpired keys.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()

	s := Stats{
		TotalEntries: len(c.entries),
		TTLSeconds:   c.ttl.Seconds(),
	}

	if len(c.entries) == 0 {
		return s
	}

	now := c.now()
	var remaining time.Duration
	for _, e := range c.entries {
		remaining += e.expiresAt.Sub(now)
		if b, err := json.Marshal(e.data); err == nil {
			s.MemoryUsageBytes += len(b)
		}
	}
	s.AvgTimeToExpireSec = remaining.Seconds() / float64(len(c.entries))
	return s
}

// sweep drops expired entries. Callers must hold c.mu.
func (c *Cache) sweep() {
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) || now.Equal(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("swept expired entries", "removed", removed)
	}
}
