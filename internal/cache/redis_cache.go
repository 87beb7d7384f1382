package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geocoder89/eventhub/internal/queue/redisclient"
)

// RedisCache is the distributed counterpart to the in-memory Cache:
// same fixed-TTL, invalidate-on-write contract, backed by Redis so
// cached event/user/list reads survive a process restart and are
// shared across API replicas.
//
// Clear is a process-local approximation: Redis has no reverse index
// from "every key this cache ever set" without SCAN over the whole
// keyspace, so RedisCache tracks its own keys in memory and deletes
// them explicitly. That is sufficient for the handlers' invalidate-
// on-write usage (clear right after a write on the same replica that
// served the read); other replicas' copies still expire on their TTL.
type RedisCache struct {
	client *redisclient.Client
	prefix string
	ttl    time.Duration

	mu   sync.Mutex
	keys map[string]struct{}
}

func NewRedisCache(client *redisclient.Client, prefix string, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		keys:   make(map[string]struct{}),
	}
}

func (c *RedisCache) fullKey(key string) string {
	return c.prefix + ":" + key
}

func (c *RedisCache) Get(key string) (any, bool) {
	b, err := c.client.Raw().Get(context.Background(), c.fullKey(key)).Bytes()
	if err != nil {
		return nil, false
	}

	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false
	}
	return v, true
}

func (c *RedisCache) Set(key string, val any) {
	b, err := json.Marshal(val)
	if err != nil {
		return
	}

	if err := c.client.Raw().Set(context.Background(), c.fullKey(key), b, c.ttl).Err(); err != nil {
		return
	}

	c.mu.Lock()
	c.keys[key] = struct{}{}
	c.mu.Unlock()
}

func (c *RedisCache) Delete(key string) {
	_ = c.client.Raw().Del(context.Background(), c.fullKey(key)).Err()

	c.mu.Lock()
	delete(c.keys, key)
	c.mu.Unlock()
}

func (c *RedisCache) Clear() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.keys))
	for k := range c.keys {
		keys = append(keys, c.fullKey(k))
	}
	c.keys = make(map[string]struct{})
	c.mu.Unlock()

	if len(keys) == 0 {
		return
	}
	_ = c.client.Raw().Del(context.Background(), keys...).Err()
}

func isRedisNil(err error) bool {
	return err == redis.Nil
}
