package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmcarvalho/gatehouse/internal/clock"
	"github.com/tmcarvalho/gatehouse/internal/ratelimit"
)

func newTestLimiter(t *testing.T, presets ratelimit.Presets) (*ratelimit.Limiter, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	limiter, err := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), presets, clk)
	require.NoError(t, err)
	return limiter, clk
}

func loginPresets(maxAttempts int, window time.Duration) ratelimit.Presets {
	return ratelimit.Presets{
		ratelimit.ActionLogin: {MaxAttempts: maxAttempts, Window: window},
	}
}

func TestCheck_FreshKeyHasFullQuota(t *testing.T) {
	limiter, _ := newTestLimiter(t, loginPresets(5, 15*time.Minute))
	ctx := context.Background()

	dec, err := limiter.Check(ctx, "192.168.1.1", ratelimit.ActionLogin)

	assert.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 5, dec.Remaining)
	assert.Equal(t, 0, dec.BlockedMinutes)
}

func TestCheck_CountsDownThenBlocks(t *testing.T) {
	limiter, _ := newTestLimiter(t, loginPresets(3, 10*time.Minute))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, limiter.Record(ctx, "10.0.0.1", ratelimit.ActionLogin))
	}

	dec, err := limiter.Check(ctx, "10.0.0.1", ratelimit.ActionLogin)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 1, dec.Remaining)

	require.NoError(t, limiter.Record(ctx, "10.0.0.1", ratelimit.ActionLogin))

	dec, err = limiter.Check(ctx, "10.0.0.1", ratelimit.ActionLogin)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, 0, dec.Remaining)
	assert.Equal(t, 10, dec.BlockedMinutes)
}

func TestCheck_DoesNotMutateCount(t *testing.T) {
	limiter, _ := newTestLimiter(t, loginPresets(3, 10*time.Minute))
	ctx := context.Background()

	require.NoError(t, limiter.Record(ctx, "10.0.0.2", ratelimit.ActionLogin))

	for i := 0; i < 10; i++ {
		_, err := limiter.Check(ctx, "10.0.0.2", ratelimit.ActionLogin)
		require.NoError(t, err)
	}

	dec, err := limiter.Check(ctx, "10.0.0.2", ratelimit.ActionLogin)
	require.NoError(t, err)
	assert.Equal(t, 2, dec.Remaining)
}

func TestCheck_WindowExpiryRestoresQuota(t *testing.T) {
	limiter, clk := newTestLimiter(t, loginPresets(3, 10*time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Record(ctx, "10.0.0.3", ratelimit.ActionLogin))
	}

	dec, err := limiter.Check(ctx, "10.0.0.3", ratelimit.ActionLogin)
	require.NoError(t, err)
	require.False(t, dec.Allowed)

	// Fast-forward past the window; no explicit reset occurs.
	clk.Advance(10*time.Minute + time.Second)

	dec, err = limiter.Check(ctx, "10.0.0.3", ratelimit.ActionLogin)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 3, dec.Remaining)
}

func TestRecord_StartsFreshWindowAfterExpiry(t *testing.T) {
	limiter, clk := newTestLimiter(t, loginPresets(3, 10*time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Record(ctx, "10.0.0.4", ratelimit.ActionLogin))
	}

	clk.Advance(11 * time.Minute)
	require.NoError(t, limiter.Record(ctx, "10.0.0.4", ratelimit.ActionLogin))

	dec, err := limiter.Check(ctx, "10.0.0.4", ratelimit.ActionLogin)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 2, dec.Remaining)
}

func TestReset_RestoresQuotaImmediately(t *testing.T) {
	limiter, _ := newTestLimiter(t, loginPresets(5, 15*time.Minute))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, limiter.Record(ctx, "10.0.0.5", ratelimit.ActionLogin))
	}

	require.NoError(t, limiter.Reset(ctx, "10.0.0.5", ratelimit.ActionLogin))

	dec, err := limiter.Check(ctx, "10.0.0.5", ratelimit.ActionLogin)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 5, dec.Remaining)
}

func TestActions_HaveIndependentBudgets(t *testing.T) {
	presets := ratelimit.Presets{
		ratelimit.ActionLogin: {MaxAttempts: 2, Window: 10 * time.Minute},
		"test":                {MaxAttempts: 5, Window: time.Minute},
	}
	limiter, _ := newTestLimiter(t, presets)
	ctx := context.Background()

	require.NoError(t, limiter.Record(ctx, "10.0.0.6", ratelimit.ActionLogin))
	require.NoError(t, limiter.Record(ctx, "10.0.0.6", ratelimit.ActionLogin))

	dec, err := limiter.Check(ctx, "10.0.0.6", ratelimit.ActionLogin)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)

	dec, err = limiter.Check(ctx, "10.0.0.6", "test")
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 5, dec.Remaining)
}

func TestCheck_UnknownActionFails(t *testing.T) {
	limiter, _ := newTestLimiter(t, loginPresets(5, 15*time.Minute))

	_, err := limiter.Check(context.Background(), "10.0.0.7", "unconfigured")
	assert.Error(t, err)
}

func TestNewLimiter_RejectsInvalidPreset(t *testing.T) {
	clk := clock.NewFake(time.Now())

	_, err := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.Presets{
		"broken": {MaxAttempts: 0, Window: time.Minute},
	}, clk)
	assert.Error(t, err)

	_, err = ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.Presets{
		"broken": {MaxAttempts: 3, Window: 0},
	}, clk)
	assert.Error(t, err)
}

func TestRecord_ConcurrentIncrementsAreNotLost(t *testing.T) {
	const attempts = 100
	limiter, _ := newTestLimiter(t, loginPresets(attempts*2, time.Hour))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = limiter.Record(ctx, "10.0.0.8", ratelimit.ActionLogin)
		}()
	}
	wg.Wait()

	dec, err := limiter.Check(ctx, "10.0.0.8", ratelimit.ActionLogin)
	require.NoError(t, err)
	assert.Equal(t, attempts, attempts*2-dec.Remaining)
}

func TestBlockedMinutes_RoundsUp(t *testing.T) {
	limiter, clk := newTestLimiter(t, loginPresets(1, 10*time.Minute))
	ctx := context.Background()

	require.NoError(t, limiter.Record(ctx, "10.0.0.9", ratelimit.ActionLogin))

	// 30 seconds into the window: 9m30s remain, reported as 10 minutes.
	clk.Advance(30 * time.Second)
	dec, err := limiter.Check(ctx, "10.0.0.9", ratelimit.ActionLogin)
	require.NoError(t, err)
	require.False(t, dec.Allowed)
	assert.Equal(t, 10, dec.BlockedMinutes)

	// Seconds before expiry the answer is still at least one minute.
	clk.Advance(9*time.Minute + 20*time.Second)
	dec, err = limiter.Check(ctx, "10.0.0.9", ratelimit.ActionLogin)
	require.NoError(t, err)
	require.False(t, dec.Allowed)
	assert.Equal(t, 1, dec.BlockedMinutes)
}
