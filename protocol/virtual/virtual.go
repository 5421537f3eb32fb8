// Package virtual is the in-memory reference Adapter used for tests and
// synthetic channels: points are plain map entries, writes land
// immediately, and there is no real transport to fail.
package virtual

import (
	"context"
	"sync"
	"time"

	"voltageems.io/core/point"
	"voltageems.io/core/protocol"
)

// PointSpec describes one virtual point: its kind and the scale/offset or
// reverse transform applied between raw and engineering values.
type PointSpec struct {
	PointID   uint32
	Kind      point.Kind
	Transform point.Transform
}

// Adapter is a process-local Adapter backed by a map of current raw
// values; PollOnce reports every configured point marked by SetRaw or by
// a pulse revert since the last poll. Writes through WriteControl or
// WriteAdjustment do not mark a point.
type Adapter struct {
	mu     sync.Mutex
	state  protocol.State
	points map[uint32]PointSpec
	raw    map[uint32]float64
	dirty  map[uint32]struct{}
}

// New returns a disconnected adapter configured with specs.
func New(specs []PointSpec) *Adapter {
	a := &Adapter{
		state:  protocol.Disconnected,
		points: make(map[uint32]PointSpec, len(specs)),
		raw:    make(map[uint32]float64, len(specs)),
		dirty:  make(map[uint32]struct{}),
	}
	for _, s := range specs {
		a.points[s.PointID] = s
	}
	return a
}

// SetRaw sets a point's raw value and marks it dirty for the next
// PollOnce, simulating a field device change.
func (a *Adapter) SetRaw(pointID uint32, raw float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.raw[pointID] = raw
	a.dirty[pointID] = struct{}{}
}

func (a *Adapter) Connect(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = protocol.Connected
	return nil
}

func (a *Adapter) Disconnect(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = protocol.Disconnected
	return nil
}

func (a *Adapter) ConnectionState() protocol.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Adapter) PollOnce(_ context.Context) (protocol.DataBatch, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var batch protocol.DataBatch
	now := time.Now()
	for id := range a.dirty {
		spec, ok := a.points[id]
		if !ok {
			continue
		}
		raw := a.raw[id]
		batch.Readings = append(batch.Readings, protocol.Reading{
			PointID:     id,
			Kind:        spec.Kind,
			RawValue:    raw,
			Engineering: spec.Transform.Apply(spec.Kind, raw),
			Timestamp:   now,
		})
	}
	a.dirty = make(map[uint32]struct{})
	return batch, nil
}

func (a *Adapter) WriteControl(_ context.Context, commands []protocol.ControlCommand) (protocol.WriteResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var result protocol.WriteResult
	for _, cmd := range commands {
		if _, ok := a.points[cmd.PointID]; !ok {
			result.Failures = append(result.Failures, protocol.WriteFailure{PointID: cmd.PointID, Err: errUnknownPoint(cmd.PointID)})
			continue
		}
		if cmd.Value {
			a.raw[cmd.PointID] = 1
		} else {
			a.raw[cmd.PointID] = 0
		}
		result.Successes = append(result.Successes, cmd.PointID)
		if cmd.Mode == protocol.Pulse {
			a.schedulePulseRevert(cmd.PointID, cmd.PulseDurationMs)
		}
	}
	return result, nil
}

// schedulePulseRevert flips pointID back to 0 after durationMs, mirroring a
// real adapter's write-delay-revert cycle for a Pulse control command.
func (a *Adapter) schedulePulseRevert(pointID uint32, durationMs uint32) {
	go func() {
		time.Sleep(time.Duration(durationMs) * time.Millisecond)
		a.mu.Lock()
		defer a.mu.Unlock()
		if _, ok := a.points[pointID]; ok {
			a.raw[pointID] = 0
			a.dirty[pointID] = struct{}{}
		}
	}()
}

func (a *Adapter) WriteAdjustment(_ context.Context, commands []protocol.AdjustmentCommand) (protocol.WriteResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var result protocol.WriteResult
	for _, cmd := range commands {
		if _, ok := a.points[cmd.PointID]; !ok {
			result.Failures = append(result.Failures, protocol.WriteFailure{PointID: cmd.PointID, Err: errUnknownPoint(cmd.PointID)})
			continue
		}
		a.raw[cmd.PointID] = cmd.Value
		result.Successes = append(result.Successes, cmd.PointID)
	}
	return result, nil
}

type unknownPointErr struct{ pointID uint32 }

func (e unknownPointErr) Error() string {
	return "virtual: unknown point id"
}

func errUnknownPoint(id uint32) error { return unknownPointErr{pointID: id} }
