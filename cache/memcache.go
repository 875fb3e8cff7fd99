package cache

import (
	"time"

	"github.com/nci/gomemcache/memcache"
)

// MemcacheBackend is a shared cache tier over memcached. The
// connection is lazy; errors surface on first use.
type MemcacheBackend struct {
	client *memcache.Client
}

// NewMemcacheBackend connects to one or more "host:port" servers.
func NewMemcacheBackend(servers ...string) *MemcacheBackend {
	return &MemcacheBackend{client: memcache.New(servers...)}
}

func (m *MemcacheBackend) Get(key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if err == memcache.ErrCacheMiss {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

func (m *MemcacheBackend) Set(key string, value []byte, ttl time.Duration) error {
	return m.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(ttl / time.Second),
	})
}

func (m *MemcacheBackend) Close() error { return nil }
