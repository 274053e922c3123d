// Package memory is the in-memory contextstore.KV backend, used as the
// default when no Valkey address is configured. Adapted from the teacher's
// MemoryContextCacheStore: a mutex-protected map plus a background
// cleanup loop, generalized from provider-cache entries to arbitrary
// byte values with a per-key expiry.
package memory

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Store is a process-local KV with per-key TTL.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	stop    chan struct{}
}

// New creates a Store and starts its background cleanup loop.
func New() *Store {
	s := &Store{entries: make(map[string]entry), stop: make(chan struct{})}
	go s.cleanupLoop()
	return s
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if time.Now().After(e.expiresAt) {
		return nil, nil
	}
	return e.value, nil
}

func (s *Store) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Ping always succeeds — the in-memory backend has no external dependency
// to probe, so it never reports degraded.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Cleanup removes every expired entry. Called periodically by
// cleanupLoop, and exposed directly for tests.
func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// Close stops the background cleanup loop.
func (s *Store) Close() {
	close(s.stop)
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Cleanup()
		case <-s.stop:
			return
		}
	}
}
