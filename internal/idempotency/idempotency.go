// Package idempotency provides the TryClaim(key, ttl) primitive used
// to make a caller-supplied idempotency key observe a command exactly
// once: the registration service's Register claims a key before
// opening its write transaction.
package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geocoder89/eventhub/internal/queue/redisclient"
)

// Store claims a key for ttl, returning true the first time a key is
// seen and false on every repeat while the claim is live.
type Store interface {
	TryClaim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisStore claims keys with SETNX, the same primitive the teacher's
// redisclient was wired up for but never used.
type RedisStore struct {
	client *redisclient.Client
}

func NewRedisStore(client *redisclient.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) TryClaim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.Raw().SetNX(ctx, "idem:"+key, 1, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// MemStore is the in-memory fallback for tests and for running
// without Redis configured: an expiring set with a lazy reaper, built
// on the same map+mutex+exp shape as internal/cache.Cache.
type MemStore struct {
	mu sync.Mutex
	m  map[string]time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

func NewMemStore() *MemStore {
	s := &MemStore{
		m:    make(map[string]time.Time),
		stop: make(chan struct{}),
	}
	go s.reap()
	return s
}

func (s *MemStore) TryClaim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, ok := s.m[key]; ok && now.Before(exp) {
		return false, nil
	}

	s.m[key] = now.Add(ttl)
	return true, nil
}

func (s *MemStore) reap() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for k, exp := range s.m {
				if now.After(exp) {
					delete(s.m, k)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *MemStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// IsNil reports whether err is redis.Nil, surfaced so callers that
// also touch raw redis commands can share one sentinel check.
func IsNil(err error) bool {
	return err == redis.Nil
}
