package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/recallhub/recallhub/pkg/memory"
)

const redisKeyPrefix = "recallhub:candidates:"

// redisOpTimeout bounds individual cache operations so a slow Redis cannot
// eat into the retrieval latency budget.
const redisOpTimeout = 250 * time.Millisecond

// RedisCache implements memory.CandidateCache on Redis, letting multiple
// service replicas share one candidate cache. Failures degrade to cache
// misses; the cache never propagates errors to the retrieval path.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis-backed candidate cache. The cache owns the client
// and closes it on Close.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func redisKey(userID string) string {
	return redisKeyPrefix + userID
}

// Get returns the cached candidate set for the user, treating any Redis or
// decode failure as a miss.
func (c *RedisCache) Get(userID string) ([]*memory.ConversationRecord, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, redisKey(userID)).Bytes()
	if err != nil {
		return nil, false
	}
	var records []*memory.ConversationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, false
	}
	return records, true
}

// Set stores the candidate set with a server-side TTL.
func (c *RedisCache) Set(userID string, records []*memory.ConversationRecord) {
	data, err := json.Marshal(records)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	c.client.Set(ctx, redisKey(userID), data, c.ttl)
}

// Invalidate drops the user's entry.
func (c *RedisCache) Invalidate(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	c.client.Del(ctx, redisKey(userID))
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
