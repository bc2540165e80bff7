package lifecycle

import (
	"sync"
	"time"
)

// IntentGate is the per-intent rate-limit primitive described in spec.md
// §3/§5: a single last-send-timestamp-plus-minimum-interval token, simpler
// than internal/exchange.TokenBucket's continuous multi-request budget.
// It governs how often this process may dispatch a new place intent
// (RequestCancel does not acquire it); internal/exchange.TokenBucket remains the layer underneath it
// that protects against the exchange's own published per-window ceilings.
type IntentGate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// NewIntentGate returns a gate that permits at most one Acquire every interval.
func NewIntentGate(interval time.Duration) *IntentGate {
	return &IntentGate{interval: interval}
}

// Acquire reports whether a slot is available right now, and if so consumes
// it. It never blocks.
func (g *IntentGate) Acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	if !g.last.IsZero() && now.Sub(g.last) < g.interval {
		return false
	}
	g.last = now
	return true
}
