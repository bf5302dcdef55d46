package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestResponseCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewResponseCache(newTestClient(t), time.Minute)

	entry, _, ok := c.Lookup(ctx, "cost:50")
	if ok {
		t.Fatalf("expected miss on empty cache")
	}
	c.Store(ctx, entry, []byte(`[1]`))
	_, got, ok := c.Lookup(ctx, "cost:50")
	if !ok || string(got) != `[1]` {
		t.Fatalf("expected hit, got %q %v", got, ok)
	}

	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	entry, _, ok = c.Lookup(ctx, "cost:50")
	if ok {
		t.Fatalf("expected miss after invalidation")
	}

	c.Store(ctx, entry, []byte(`[2]`))
	_, got, _ = c.Lookup(ctx, "cost:50")
	if string(got) != `[2]` {
		t.Fatalf("expected fresh value, got %q", got)
	}
}

func TestResponseCacheStoreAfterInvalidateIsRetired(t *testing.T) {
	ctx := context.Background()
	c := NewResponseCache(newTestClient(t), time.Minute)

	// a read misses, a write lands, then the read stores what it rendered
	entry, _, ok := c.Lookup(ctx, "stats")
	if ok {
		t.Fatalf("expected miss on empty cache")
	}
	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	c.Store(ctx, entry, []byte(`{"stale":true}`))

	if got, _, hit := c.Lookup(ctx, "stats"); hit {
		t.Fatalf("stale body served after invalidation: %q", got)
	}
}

func TestResponseCacheDisabled(t *testing.T) {
	ctx := context.Background()
	var nilCache *ResponseCache
	entry, _, ok := nilCache.Lookup(ctx, "k")
	if ok {
		t.Fatalf("nil cache should miss")
	}
	nilCache.Store(ctx, entry, []byte("v"))
	if err := nilCache.Invalidate(ctx); err != nil {
		t.Fatalf("nil cache invalidate: %v", err)
	}

	zeroTTL := NewResponseCache(newTestClient(t), 0)
	entry, _, _ = zeroTTL.Lookup(ctx, "k")
	zeroTTL.Store(ctx, entry, []byte("v"))
	if _, _, ok := zeroTTL.Lookup(ctx, "k"); ok {
		t.Fatalf("zero ttl disables caching")
	}
}

func TestIdempotencyCacheScopesByUser(t *testing.T) {
	ctx := context.Background()
	c := NewIdempotencyCache(newTestClient(t), time.Hour)

	c.Set(ctx, "alice", "req-1", []byte(`{"submissionId":"a"}`))
	if got, ok := c.Get(ctx, "alice", "req-1"); !ok || string(got) != `{"submissionId":"a"}` {
		t.Fatalf("expected hit, got %q %v", got, ok)
	}
	if _, ok := c.Get(ctx, "bob", "req-1"); ok {
		t.Fatalf("keys must not leak across users")
	}
	if _, ok := c.Get(ctx, "alice", ""); ok {
		t.Fatalf("empty key never hits")
	}
}
