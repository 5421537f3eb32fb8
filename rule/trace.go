package rule

import (
	"sync"
	"time"
)

// Trace is one execution record for a rule (§4.8's execution trace).
type Trace struct {
	RuleID          uint32
	Timestamp       time.Time
	DurationMS      int64
	Success         bool
	ConditionsMet   bool
	ActionsExecuted int
	Error           string
}

// TraceHistory holds a bounded ring of Trace records per rule, evicting
// the oldest entry once a rule's history reaches capacity — the same
// bounded-map-with-eviction shape as dispatcher.IdempotencyWindow and,
// before it, statemanager.Manager.evictOldest.
type TraceHistory struct {
	mu       sync.Mutex
	capacity int
	byRule   map[uint32][]Trace
}

func NewTraceHistory(capacity int) *TraceHistory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &TraceHistory{capacity: capacity, byRule: make(map[uint32][]Trace)}
}

// Record appends t to its rule's history, dropping the oldest entry once
// the per-rule capacity is exceeded.
func (h *TraceHistory) Record(t Trace) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := h.byRule[t.RuleID]
	entries = append(entries, t)
	if len(entries) > h.capacity {
		entries = entries[len(entries)-h.capacity:]
	}
	h.byRule[t.RuleID] = entries
}

// Recent returns a copy of ruleID's trace history, oldest first.
func (h *TraceHistory) Recent(ruleID uint32) []Trace {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := h.byRule[ruleID]
	out := make([]Trace, len(entries))
	copy(out, entries)
	return out
}
