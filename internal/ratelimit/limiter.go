package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/tmcarvalho/gatehouse/internal/clock"
)

// Decision is the outcome of a Check call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	// BlockedMinutes is the ceiling of the remaining window time in minutes,
	// for "try again in N minutes" messaging. Zero when allowed.
	BlockedMinutes int
}

// Limiter applies fixed-window counting per (identifier, action) key.
//
// A window starts at the first recorded attempt after the prior window's
// expiry and never slides: N attempts are permitted, then a hard wall for
// the remainder of the window, then a full reset. A caller can therefore get
// up to 2xMaxAttempts across a window boundary; that is an accepted property
// of fixed-window counting in exchange for O(1) state per key.
type Limiter struct {
	store   Store
	presets Presets
	clock   clock.Clock
	logger  *slog.Logger
	metrics *Metrics

	// mu serializes Record and Reset so two concurrent failed attempts for
	// the same key are both counted. Check stays lock-free relative to the
	// limiter; the store guarantees consistent snapshots.
	mu sync.Mutex
}

// Option customizes a Limiter.
type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// NewLimiter creates a Limiter over the given store and preset table.
func NewLimiter(store Store, presets Presets, clk clock.Clock, opts ...Option) (*Limiter, error) {
	for action, cfg := range presets {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid preset %q: %w", action, err)
		}
	}

	l := &Limiter{
		store:   store,
		presets: presets,
		clock:   clk,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// ConfigFor returns the preset for an action.
func (l *Limiter) ConfigFor(action string) (Config, error) {
	cfg, ok := l.presets[action]
	if !ok {
		return Config{}, fmt.Errorf("no rate limit preset for action %q", action)
	}
	return cfg, nil
}

// Check reports whether an attempt would currently be allowed. It never
// mutates the count. A missing entry, or one whose window has elapsed, counts
// as zero attempts.
func (l *Limiter) Check(ctx context.Context, identifier, action string) (Decision, error) {
	cfg, err := l.ConfigFor(action)
	if err != nil {
		return Decision{}, err
	}

	now := l.clock.Now()
	entry, err := l.store.Get(ctx, identifier, action)
	if err != nil {
		return Decision{}, err
	}

	if entry == nil || l.expired(entry, cfg, now) {
		dec := Decision{Allowed: true, Remaining: cfg.MaxAttempts, ResetAt: now.Add(cfg.Window)}
		l.observeCheck(action, dec)
		return dec, nil
	}

	resetAt := entry.WindowStart.Add(cfg.Window)
	remaining := cfg.MaxAttempts - entry.Count
	if remaining < 0 {
		remaining = 0
	}

	dec := Decision{
		Allowed:   entry.Count < cfg.MaxAttempts,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !dec.Allowed {
		dec.BlockedMinutes = blockedMinutes(resetAt.Sub(now))
		l.logger.Warn("rate limit exceeded",
			slog.String("identifier", identifier),
			slog.String("action", action),
			slog.Int("count", entry.Count),
			slog.Int("blocked_minutes", dec.BlockedMinutes))
	}
	l.observeCheck(action, dec)
	return dec, nil
}

// Record counts one real attempt. Calling it N times yields a count of N:
// the read-modify-write runs under the limiter lock so concurrent failures
// for the same key are never lost.
func (l *Limiter) Record(ctx context.Context, identifier, action string) error {
	cfg, err := l.ConfigFor(action)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	entry, err := l.store.Get(ctx, identifier, action)
	if err != nil {
		return err
	}

	if entry == nil || l.expired(entry, cfg, now) {
		entry = &Entry{
			Identifier:  identifier,
			Action:      action,
			Count:       1,
			WindowStart: now,
		}
	} else {
		entry.Count++
	}

	if err := l.store.Set(ctx, *entry, 2*cfg.Window); err != nil {
		return err
	}

	if l.metrics != nil {
		l.metrics.AttemptsRecorded.WithLabelValues(action).Inc()
	}
	return nil
}

// Reset deletes the key's entry, restoring full quota immediately. Called on
// full authentication success to forgive prior failures for that client.
func (l *Limiter) Reset(ctx context.Context, identifier, action string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Delete(ctx, identifier, action); err != nil {
		return err
	}
	if l.metrics != nil {
		l.metrics.Resets.WithLabelValues(action).Inc()
	}
	return nil
}

func (l *Limiter) expired(entry *Entry, cfg Config, now time.Time) bool {
	return !now.Before(entry.WindowStart.Add(cfg.Window))
}

func (l *Limiter) observeCheck(action string, dec Decision) {
	if l.metrics == nil {
		return
	}
	if dec.Allowed {
		l.metrics.Checks.WithLabelValues(action, "allowed").Inc()
	} else {
		l.metrics.Checks.WithLabelValues(action, "denied").Inc()
	}
}

// blockedMinutes rounds the remaining block time up to whole minutes, with a
// floor of one so the client is never told "try again in 0 minutes".
func blockedMinutes(remaining time.Duration) int {
	minutes := int(math.Ceil(remaining.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}
