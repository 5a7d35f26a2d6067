package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/tmcarvalho/gatehouse/internal/clock"
)

// Sweeper periodically evicts entries whose window expired long ago. The
// limiter already treats such entries as absent (lazy expiry), so sweeping
// changes no observable throttling behavior; it only bounds memory growth
// from distinct attacking IPs in a long-lived process.
type Sweeper struct {
	store     Store
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *Metrics
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
}

// NewSweeper creates a sweeper that deletes entries whose window started more
// than retention ago. Retention should be at least the longest preset window
// so no live window is ever evicted.
func NewSweeper(store Store, clk clock.Clock, interval, retention time.Duration, logger *slog.Logger, metrics *Metrics) *Sweeper {
	return &Sweeper{
		store:     store,
		clock:     clk,
		logger:    logger,
		metrics:   metrics,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

// RetentionFor returns the smallest safe retention for a preset table: twice
// the longest configured window.
func RetentionFor(presets Presets) time.Duration {
	var longest time.Duration
	for _, cfg := range presets {
		if cfg.Window > longest {
			longest = cfg.Window
		}
	}
	return 2 * longest
}

// Start runs the eviction loop until Stop is called or ctx is cancelled.
// It sweeps once immediately on startup.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stopCh:
			s.logger.Info("rate limit sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info("rate limit sweeper context cancelled")
			return
		}
	}
}

// RunOnce performs a single bounded eviction pass.
func (s *Sweeper) RunOnce(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := s.clock.Now().Add(-s.retention)
	evicted, err := s.store.DeleteOlderThan(sweepCtx, cutoff)
	if err != nil {
		s.logger.Error("rate limit sweep failed", slog.Any("error", err))
		if s.metrics != nil {
			s.metrics.SweepsTotal.WithLabelValues("error").Inc()
		}
		return
	}

	if s.metrics != nil {
		s.metrics.SweepsTotal.WithLabelValues("ok").Inc()
		s.metrics.EntriesEvicted.Add(float64(evicted))
	}
	if evicted > 0 {
		s.logger.Info("rate limit sweep completed", slog.Int("entries_evicted", evicted))
	}
}

// Stop signals the eviction loop to exit.
func (s *Sweeper) Stop() {
	close(s.stopCh)
}
