package cooldown

import (
	"sync"
	"time"

	"bybit-trading-bot/internal/clock"
)

// Tracker records the last trade time per symbol and answers whether a
// symbol may be traded again. Reads come from the scanner, writes from
// position close; both are safe concurrently.
type Tracker struct {
	mu         sync.RWMutex
	lastTraded map[string]time.Time
	window     time.Duration
	clock      clock.Clock
}

// New creates a tracker with the given cooldown window
func New(window time.Duration, clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Tracker{
		lastTraded: make(map[string]time.Time),
		window:     window,
		clock:      clk,
	}
}

// IsEligible reports whether the symbol is outside its cooldown window
func (t *Tracker) IsEligible(symbol string) bool {
	t.mu.RLock()
	last, ok := t.lastTraded[symbol]
	t.mu.RUnlock()
	if !ok {
		return true
	}
	return t.clock.Now().Sub(last) >= t.window
}

// MarkTraded stamps the symbol with the current time
func (t *Tracker) MarkTraded(symbol string) {
	now := t.clock.Now()
	t.mu.Lock()
	t.lastTraded[symbol] = now
	t.mu.Unlock()
}

// Remaining returns how long until the symbol is eligible again, zero when
// already eligible
func (t *Tracker) Remaining(symbol string) time.Duration {
	t.mu.RLock()
	last, ok := t.lastTraded[symbol]
	t.mu.RUnlock()
	if !ok {
		return 0
	}
	remaining := t.window - t.clock.Now().Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Snapshot returns a copy of the active cooldowns
func (t *Tracker) Snapshot() map[string]time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]time.Time, len(t.lastTraded))
	now := t.clock.Now()
	for symbol, last := range t.lastTraded {
		if now.Sub(last) < t.window {
			out[symbol] = last
		}
	}
	return out
}
