// Package channel implements the Channel Engine: one instance per
// configured field-device channel, owning a protocol adapter exclusively,
// scheduling polls, draining the command TODO queue, and driving
// reconnect with backoff.
package channel

// Phase is a channel's lifecycle state (spec §4.5).
type Phase string

const (
	PhaseCreated    Phase = "created"
	PhaseConnecting Phase = "connecting"
	PhasePolling    Phase = "polling"
	PhaseCommanding Phase = "commanding"
	PhaseBackoff    Phase = "backoff"
	PhaseStopped    Phase = "stopped"
)

// ValidTransitions is the adjacency map enumerating every allowed phase
// change, generalized from the teacher's workflow-phase transition table
// to the channel lifecycle.
var ValidTransitions = map[Phase][]Phase{
	PhaseCreated:    {PhaseConnecting},
	PhaseConnecting: {PhasePolling, PhaseBackoff, PhaseStopped},
	PhasePolling:    {PhaseCommanding, PhaseBackoff, PhaseStopped},
	PhaseCommanding: {PhasePolling, PhaseStopped},
	PhaseBackoff:    {PhaseConnecting, PhaseStopped},
	// Stopped is terminal.
}

// CanTransitionTo reports whether target is a valid next phase from p.
func (p Phase) CanTransitionTo(target Phase) bool {
	for _, valid := range ValidTransitions[p] {
		if valid == target {
			return true
		}
	}
	return false
}

func (p Phase) IsTerminal() bool { return p == PhaseStopped }
