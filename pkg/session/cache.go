package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStatusCache mirrors Status results in Redis with a short TTL so a
// reconnecting poller (spec §4.6) doesn't hit the Store on every call. A
// cache miss or any Redis error simply falls through to the Store — this
// cache is never the source of truth.
type RedisStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStatusCache builds a RedisStatusCache. ttl <= 0 selects a 10
// second default, long enough to absorb a tight reconnect-poll loop. An
// entry is not invalidated when the session advances, so a cached status
// can lag the Store by up to ttl.
func NewRedisStatusCache(client *redis.Client, ttl time.Duration) *RedisStatusCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisStatusCache{client: client, ttl: ttl}
}

func (c *RedisStatusCache) key(sessionID string) string {
	return "roundtable:status:" + sessionID
}

// Get returns the cached StatusResult, or false on a miss or any error.
func (c *RedisStatusCache) Get(ctx context.Context, sessionID string) (*StatusResult, bool) {
	raw, err := c.client.Get(ctx, c.key(sessionID)).Bytes()
	if err != nil {
		return nil, false
	}
	var result StatusResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false
	}
	return &result, true
}

// Set stores result under sessionID's key. A failed write is logged, not
// returned — callers never fail a status check because the cache is down.
func (c *RedisStatusCache) Set(ctx context.Context, sessionID string, result *StatusResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(sessionID), raw, c.ttl).Err(); err != nil {
		slog.Warn("session: redis status cache write failed", "session_id", sessionID, "error", err)
	}
}
