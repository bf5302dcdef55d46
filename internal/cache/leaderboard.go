package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const versionKey = "lb:version"

// ResponseCache stores rendered leaderboard responses. Every write to the
// submission store bumps a version counter, which retires all cached entries
// at once without scanning keys.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResponseCache(client *redis.Client, ttl time.Duration) *ResponseCache {
	return &ResponseCache{client: client, ttl: ttl}
}

// Enabled reports whether lookups can ever hit.
func (c *ResponseCache) Enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Entry is a cache slot pinned to the version current at lookup time.
// Storing through it after a later Invalidate writes to the retired version,
// so a response rendered from pre-write rows is never served as fresh.
type Entry struct {
	key string
}

// Lookup resolves key against the current version and returns the cached
// body when present. The returned Entry is used to store a fresh response on
// a miss.
func (c *ResponseCache) Lookup(ctx context.Context, key string) (Entry, []byte, bool) {
	if !c.Enabled() {
		return Entry{}, nil, false
	}
	versioned, err := c.versioned(ctx, key)
	if err != nil {
		return Entry{}, nil, false
	}
	entry := Entry{key: versioned}
	data, err := c.client.Get(ctx, versioned).Bytes()
	if err != nil {
		return entry, nil, false
	}
	return entry, data, true
}

// Store writes value into the slot resolved by Lookup.
func (c *ResponseCache) Store(ctx context.Context, entry Entry, value []byte) {
	if !c.Enabled() || entry.key == "" || len(value) == 0 {
		return
	}
	c.client.Set(ctx, entry.key, value, c.ttl)
}

// Invalidate retires every cached response.
func (c *ResponseCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey).Err()
}

func (c *ResponseCache) versioned(ctx context.Context, key string) (string, error) {
	version, err := c.client.Get(ctx, versionKey).Int64()
	if err == redis.Nil {
		version = 0
	} else if err != nil {
		return "", err
	}
	return fmt.Sprintf("lb:v%d:%s", version, key), nil
}
