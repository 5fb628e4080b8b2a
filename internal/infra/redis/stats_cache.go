package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"quiz-sync-service/internal/domain"
)

// StatsLoader computes an owner's aggregate stats from the backing store.
type StatsLoader interface {
	SessionStats(ctx context.Context, owner string) (domain.ProgressStats, error)
}

// StatsCache caches per-owner progress stats as JSON in Redis and falls back
// to the loader on cache miss. Stored as: SET stats:{owner} {json} EX ttl.
type StatsCache struct {
	client *redis.Client
	loader StatsLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewStatsCache(client *redis.Client, loader StatsLoader, ttl time.Duration) *StatsCache {
	return &StatsCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *StatsCache) Stats(ctx context.Context, owner string) (domain.ProgressStats, error) {
	key := c.key(owner)

	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var stats domain.ProgressStats
		if err := json.Unmarshal(cached, &stats); err == nil {
			return stats, nil
		}
		// Unreadable payload; fall through and recompute.
	}

	result, err, _ := c.sf.Do(owner, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var stats domain.ProgressStats
			if err := json.Unmarshal(cached, &stats); err == nil {
				return stats, nil
			}
		}

		stats, err := c.loader.SessionStats(ctx, owner)
		if err != nil {
			return domain.ProgressStats{}, err
		}

		if payload, err := json.Marshal(stats); err == nil {
			// best-effort; a failed write just means a recompute later
			_ = c.client.Set(ctx, key, payload, c.ttlWithJitter()).Err()
		}
		return stats, nil
	})
	if err != nil {
		return domain.ProgressStats{}, err
	}
	return result.(domain.ProgressStats), nil
}

// Invalidate drops the cached entry after a write so the next read recomputes.
func (c *StatsCache) Invalidate(ctx context.Context, owner string) {
	_ = c.client.Del(ctx, c.key(owner)).Err()
}

func (c *StatsCache) key(owner string) string {
	return "stats:" + owner
}

func (c *StatsCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
