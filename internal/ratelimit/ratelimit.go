package ratelimit

import (
	"fmt"
	"time"
)

// Entry is the counter state for one (identifier, action) key within the
// current fixed window. Entries whose window has elapsed are treated as
// absent on the next access; the store itself never inspects timestamps.
type Entry struct {
	Identifier  string
	Action      string
	Count       int
	WindowStart time.Time
}

// Config bounds one action's budget: MaxAttempts per Window.
type Config struct {
	MaxAttempts int
	Window      time.Duration
}

// Validate checks the config invariants.
func (c Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", c.Window)
	}
	return nil
}

// Presets is the immutable named table of per-action configurations.
// The "login" preset is the single source of truth for both the gate
// decision and the user-facing "try again in N minutes" message.
type Presets map[string]Config

// ActionLogin is the limiter namespace for the login protocol.
const ActionLogin = "login"

// DefaultPresets returns the built-in preset table.
func DefaultPresets() Presets {
	return Presets{
		ActionLogin: {MaxAttempts: 5, Window: 15 * time.Minute},
		"test":      {MaxAttempts: 3, Window: 1 * time.Minute},
	}
}

// key builds the composite store key. Actions partition budgets so the same
// identifier has independent counters per action.
func key(identifier, action string) string {
	return action + ":" + identifier
}
