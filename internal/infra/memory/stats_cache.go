package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"quiz-sync-service/internal/domain"
)

// StatsLoader computes an owner's aggregate stats from the backing store.
type StatsLoader interface {
	SessionStats(ctx context.Context, owner string) (domain.ProgressStats, error)
}

// StatsCache caches per-owner stats with TTL to avoid recomputing aggregates
// on every progress-view request.
type StatsCache struct {
	loader StatsLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedStats
}

type cachedStats struct {
	stats     domain.ProgressStats
	expiresAt time.Time
}

func NewStatsCache(loader StatsLoader, ttl time.Duration) *StatsCache {
	return &StatsCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedStats),
	}
}

func (c *StatsCache) Stats(ctx context.Context, owner string) (domain.ProgressStats, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[owner]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.stats, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(owner, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[owner]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.stats, nil
		}
		c.mu.RUnlock()

		stats, err := c.loader.SessionStats(ctx, owner)
		if err != nil {
			return domain.ProgressStats{}, err
		}

		c.mu.Lock()
		c.cache[owner] = cachedStats{
			stats:     stats,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return stats, nil
	})
	if err != nil {
		return domain.ProgressStats{}, err
	}
	return result.(domain.ProgressStats), nil
}

// Invalidate drops the cached entry after a write so the next read recomputes.
func (c *StatsCache) Invalidate(_ context.Context, owner string) {
	c.mu.Lock()
	delete(c.cache, owner)
	c.mu.Unlock()
}

func (c *StatsCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
