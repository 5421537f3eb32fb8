package rule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTraceHistory_EvictsOldestAtCapacity(t *testing.T) {
	h := NewTraceHistory(3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		h.Record(Trace{RuleID: 1, Timestamp: base.Add(time.Duration(i) * time.Second)})
	}

	entries := h.Recent(1)
	require.Len(t, entries, 3)
	require.Equal(t, base.Add(2*time.Second), entries[0].Timestamp)
	require.Equal(t, base.Add(4*time.Second), entries[2].Timestamp)
}

func TestTraceHistory_DefaultsCapacityWhenNonPositive(t *testing.T) {
	h := NewTraceHistory(0)
	require.Equal(t, 1000, h.capacity)
}

func TestTraceHistory_SeparateRulesDoNotShareHistory(t *testing.T) {
	h := NewTraceHistory(10)
	h.Record(Trace{RuleID: 1})
	h.Record(Trace{RuleID: 2})

	require.Len(t, h.Recent(1), 1)
	require.Len(t, h.Recent(2), 1)
}
