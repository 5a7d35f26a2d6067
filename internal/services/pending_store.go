package services

import (
	"context"
	"sync"
	"time"

	"github.com/tmcarvalho/gatehouse/internal/models"
)

// PendingLoginStore holds the server-side state between password check and
// code verification. At most one pending login per user is live: Upsert
// replaces any prior record for the same user, superseding its code.
type PendingLoginStore interface {
	Upsert(ctx context.Context, pending *models.PendingLogin) error
	Get(ctx context.Context, userID string) (*models.PendingLogin, error)
	Delete(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// MemoryPendingLoginStore is the in-process implementation. Pending logins
// are short-lived, so a mutex-guarded map is enough even under load.
type MemoryPendingLoginStore struct {
	mu      sync.RWMutex
	pending map[string]models.PendingLogin
}

// NewMemoryPendingLoginStore constructs an empty store.
func NewMemoryPendingLoginStore() *MemoryPendingLoginStore {
	return &MemoryPendingLoginStore{pending: make(map[string]models.PendingLogin)}
}

func (s *MemoryPendingLoginStore) Upsert(_ context.Context, pending *models.PendingLogin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[pending.UserID] = *pending
	return nil
}

func (s *MemoryPendingLoginStore) Get(_ context.Context, userID string) (*models.PendingLogin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending, ok := s.pending[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &pending, nil
}

func (s *MemoryPendingLoginStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, userID)
	return nil
}

func (s *MemoryPendingLoginStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for userID, pending := range s.pending {
		if pending.ExpiresAt.Before(now) {
			delete(s.pending, userID)
			deleted++
		}
	}
	return deleted, nil
}
