package cache

// Store is the read-through cache contract used by the HTTP handlers:
// get a previously-set value, set one with the store's configured
// TTL, or drop entries on write-path invalidation. *Cache (in-memory)
// and *RedisCache both satisfy it.
type Store interface {
	Get(key string) (any, bool)
	Set(key string, val any)
	Delete(key string)
	Clear()
}

var (
	_ Store = (*Cache)(nil)
	_ Store = (*RedisCache)(nil)
)
