package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store is keyed counter storage for the limiter. It is a dumb map: all
// window-rollover and expiry logic lives in the Limiter, which keeps stores
// trivial to implement and lets tests drive time through an injected clock.
//
// Get returns (nil, nil) for an absent key; absence is not an error.
// The retention hint on Set is a memory bound only (a TTL for backends that
// support one), never a correctness mechanism.
type Store interface {
	Get(ctx context.Context, identifier, action string) (*Entry, error)
	Set(ctx context.Context, entry Entry, retention time.Duration) error
	Delete(ctx context.Context, identifier, action string) error

	// DeleteOlderThan removes entries whose window started before cutoff.
	// Used by the background sweeper to bound growth from abandoned keys.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryStore holds entries in a mutex-guarded map. Suitable for a
// single-process deployment; use RedisStore to share state across replicas.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, identifier, action string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key(identifier, action)]
	if !ok {
		return nil, nil
	}
	// Copy out so callers never observe a partial write.
	return &entry, nil
}

func (s *MemoryStore) Set(_ context.Context, entry Entry, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key(entry.Identifier, entry.Action)] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, identifier, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key(identifier, action))
	return nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for k, entry := range s.entries {
		if entry.WindowStart.Before(cutoff) {
			delete(s.entries, k)
			deleted++
		}
	}
	return deleted, nil
}

// Len reports the number of live entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
