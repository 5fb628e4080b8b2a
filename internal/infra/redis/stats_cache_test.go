package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"quiz-sync-service/internal/domain"
)

func TestStatsCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	loader := &countingStatsLoader{stats: domain.ProgressStats{TotalSessions: 5, CorrectAnswers: 12}}
	cache := NewStatsCache(client, loader, time.Minute)

	stats, err := cache.Stats(context.Background(), "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalSessions != 5 || loader.calls != 1 {
		t.Fatalf("expected loader called once, got stats=%+v calls=%d", stats, loader.calls)
	}
	if !mr.Exists("stats:u1") {
		t.Fatalf("expected redis key to be set")
	}

	// Second call should hit cache, loader not incremented.
	stats, _ = cache.Stats(context.Background(), "u1")
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if stats.CorrectAnswers != 12 {
		t.Fatalf("cached payload mangled: %+v", stats)
	}
}

func TestStatsCacheInvalidateClearsKey(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	loader := &countingStatsLoader{}
	cache := NewStatsCache(client, loader, time.Minute)

	if _, err := cache.Stats(context.Background(), "u1"); err != nil {
		t.Fatalf("stats: %v", err)
	}
	cache.Invalidate(context.Background(), "u1")
	if mr.Exists("stats:u1") {
		t.Fatalf("expected redis key to be removed")
	}

	if _, err := cache.Stats(context.Background(), "u1"); err != nil {
		t.Fatalf("stats after invalidate: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected recompute after invalidate, calls=%d", loader.calls)
	}
}

type countingStatsLoader struct {
	stats domain.ProgressStats
	calls int
}

func (l *countingStatsLoader) SessionStats(_ context.Context, _ string) (domain.ProgressStats, error) {
	l.calls++
	return l.stats, nil
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
