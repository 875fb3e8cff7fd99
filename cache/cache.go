// Package cache is the result cache for read operations: pluggable
// key-value backends behind deterministic fingerprint keys, signed
// payloads and jittered TTLs. The cache is strictly opportunistic;
// any backend failure degrades to a direct read.
package cache

import (
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"
)

// ErrMiss reports that a key is absent from the backend.
var ErrMiss = errors.New("cache: miss")

// Backend is a TTL'd key-value store.
type Backend interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte, ttl time.Duration) error
	Close() error
}

// Store wraps a backend with payload signing and TTL jitter. Methods
// never fail the caller: errors are logged and reads fall through as
// misses.
type Store struct {
	backend Backend
	signer  *Signer
	ttl     time.Duration
	jitter  time.Duration
	verbose bool

	mu  sync.Mutex
	rng *rand.Rand
}

func NewStore(backend Backend, signer *Signer, ttl, jitter time.Duration, verbose bool) *Store {
	return &Store{
		backend: backend,
		signer:  signer,
		ttl:     ttl,
		jitter:  jitter,
		verbose: verbose,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// TTL returns the expiry for one entry: the base TTL plus a random
// jitter so co-created entries do not expire in one burst.
func (s *Store) TTL() time.Duration {
	if s.jitter <= 0 {
		return s.ttl
	}
	s.mu.Lock()
	j := time.Duration(s.rng.Int63n(int64(s.jitter)))
	s.mu.Unlock()
	return s.ttl + j
}

// Get fetches and verifies a cached payload. Any failure, including a
// bad signature, reads as a miss.
func (s *Store) Get(key string) ([]byte, bool) {
	if s == nil || s.backend == nil {
		return nil, false
	}
	sealed, err := s.backend.Get(key)
	if err != nil {
		if err != ErrMiss && s.verbose {
			log.Printf("cache: get %s: %v", key, err)
		}
		return nil, false
	}
	payload, err := s.signer.Open(sealed)
	if err != nil {
		log.Printf("cache: rejecting %s: %v", key, err)
		return nil, false
	}
	return payload, true
}

// Put signs and stores a payload. Failures are logged, never
// returned.
func (s *Store) Put(key string, payload []byte) {
	if s == nil || s.backend == nil {
		return
	}
	if err := s.backend.Set(key, s.signer.Seal(payload), s.TTL()); err != nil && s.verbose {
		log.Printf("cache: put %s: %v", key, err)
	}
}

// Close releases the backend.
func (s *Store) Close() error {
	if s == nil || s.backend == nil {
		return nil
	}
	return s.backend.Close()
}
