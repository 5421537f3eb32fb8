package rule

import (
	"sync"
	"time"
)

// CooldownTracker records the last fire time per rule id, so a rule
// configured with a cooldown duration skips re-evaluation while still
// within it (§4.8: "a rule within its cooldown window reports
// conditions_met=false without evaluating conditions").
type CooldownTracker struct {
	mu       sync.Mutex
	lastFire map[uint32]time.Time
}

func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{lastFire: make(map[uint32]time.Time)}
}

// Active reports whether ruleID is still within its cooldown window as
// of now, given the rule's configured cooldown duration.
func (c *CooldownTracker) Active(ruleID uint32, cooldown time.Duration, now time.Time) bool {
	if cooldown <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.lastFire[ruleID]
	return ok && now.Sub(last) < cooldown
}

// MarkFired records ruleID as having fired at now, starting its cooldown
// window.
func (c *CooldownTracker) MarkFired(ruleID uint32, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFire[ruleID] = now
}
