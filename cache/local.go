package cache

import (
	"time"

	"github.com/coocood/freecache"
)

// LocalBackend is an in-process cache tier with bounded memory and
// per-entry TTL eviction.
type LocalBackend struct {
	cache *freecache.Cache
}

// NewLocalBackend allocates a cache of the given size in bytes.
func NewLocalBackend(sizeBytes int) *LocalBackend {
	return &LocalBackend{cache: freecache.NewCache(sizeBytes)}
}

func (l *LocalBackend) Get(key string) ([]byte, error) {
	val, err := l.cache.Get([]byte(key))
	if err != nil {
		return nil, ErrMiss
	}
	return val, nil
}

func (l *LocalBackend) Set(key string, value []byte, ttl time.Duration) error {
	return l.cache.Set([]byte(key), value, int(ttl/time.Second))
}

func (l *LocalBackend) Close() error {
	l.cache.Clear()
	return nil
}
