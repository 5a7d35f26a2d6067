package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/tmcarvalho/gatehouse/internal/clock"
)

// ExpiringStore is any store that can purge records past their expiry
type ExpiringStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// CleanupManager periodically removes expired sessions and pending logins.
// Both stores expire records lazily on read; this pass only bounds memory
// for records nobody touches again.
type CleanupManager struct {
	stores   map[string]ExpiringStore
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager. The stores map is keyed
// by a label used in log output.
func NewCleanupManager(
	stores map[string]ExpiringStore,
	clk clock.Clock,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		stores:   stores,
		clock:    clk,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := cm.clock.Now()
	for label, store := range cm.stores {
		deleted, err := store.DeleteExpired(cleanupCtx, now)
		if err != nil {
			cm.logger.Error("expired record cleanup failed",
				slog.String("store", label),
				slog.Any("error", err))
			continue
		}
		if deleted > 0 {
			cm.logger.Info("expired record cleanup completed",
				slog.String("store", label),
				slog.Int("deleted", deleted))
		}
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
