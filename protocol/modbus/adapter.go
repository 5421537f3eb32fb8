package modbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"voltageems.io/core/logging"
	"voltageems.io/core/point"
	"voltageems.io/core/protocol"
)

// PointSpec binds one addressed point to its Modbus register address and
// engineering-unit transform.
type PointSpec struct {
	PointID   uint32
	Kind      point.Kind
	Address   Address
	Transform point.Transform
}

// Adapter is the reference Modbus Adapter: it drives a Transport (TCP or
// RTU, the framing differs but the PDU construction below does not) using
// a configured set of PointSpecs, and satisfies protocol.Adapter.
type Adapter struct {
	mu      sync.Mutex
	state   atomic.Value // protocol.State
	dial    func(ctx context.Context) (Transport, error)
	tr      Transport
	points  []PointSpec
	byID    map[uint32]PointSpec
	nextTxn uint16
}

// New returns a disconnected Adapter. dial opens the underlying Transport
// (a TCP dial or a serial port open) on Connect, so reconnects go through
// the same path as the first connection.
func New(dial func(ctx context.Context) (Transport, error), points []PointSpec) *Adapter {
	a := &Adapter{
		dial:   dial,
		points: points,
		byID:   make(map[uint32]PointSpec, len(points)),
	}
	for _, p := range points {
		a.byID[p.PointID] = p
	}
	a.state.Store(protocol.Disconnected)
	return a
}

func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state.Store(protocol.Connecting)
	tr, err := a.dial(ctx)
	if err != nil {
		a.state.Store(protocol.Error)
		return fmt.Errorf("modbus: connect: %w", err)
	}
	a.tr = tr
	a.state.Store(protocol.Connected)
	return nil
}

func (a *Adapter) Disconnect(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tr != nil {
		_ = a.tr.Close()
		a.tr = nil
	}
	a.state.Store(protocol.Disconnected)
	return nil
}

func (a *Adapter) ConnectionState() protocol.State {
	return a.state.Load().(protocol.State)
}

// PollOnce reads every configured read point in configuration order, one
// request per point; adjacent addresses are not merged into one request.
// The first point whose read fails ends the poll: the adapter moves to
// Error state so the channel engine's reconnect policy takes over, and
// the readings gathered so far are returned together with the error.
func (a *Adapter) PollOnce(ctx context.Context) (protocol.DataBatch, error) {
	a.mu.Lock()
	tr := a.tr
	a.mu.Unlock()
	if tr == nil {
		return protocol.DataBatch{}, fmt.Errorf("modbus: poll: %w", errNotConnected)
	}

	var batch protocol.DataBatch
	for _, spec := range a.points {
		if !spec.Address.Function.IsRead() {
			continue
		}
		reading, err := a.readPoint(ctx, tr, spec)
		if err != nil {
			a.state.Store(protocol.Error)
			return batch, fmt.Errorf("modbus: poll point %d: %w", spec.PointID, err)
		}
		batch.Readings = append(batch.Readings, reading)
	}
	return batch, nil
}

func (a *Adapter) readPoint(ctx context.Context, tr Transport, spec PointSpec) (protocol.Reading, error) {
	addr := spec.Address
	count := addr.Format.RegisterCount()
	if addr.Function.IsBitLevel() {
		count = 1
	}

	req := a.buildReadRequest(addr, uint16(count))
	if err := tr.WriteRaw(ctx, req); err != nil {
		return protocol.Reading{}, err
	}
	resp, err := tr.ReadRaw(ctx)
	if err != nil {
		return protocol.Reading{}, err
	}
	regs, err := parseReadResponse(resp, addr.Function, count)
	if err != nil {
		return protocol.Reading{}, err
	}

	var raw float64
	if addr.BitPosition != nil {
		bitVal := ExtractBit(regs[0], *addr.BitPosition)
		if bitVal {
			raw = 1
		}
	} else {
		raw, err = Decode(addr.Format, addr.ByteOrder, regs)
		if err != nil {
			return protocol.Reading{}, err
		}
	}

	return protocol.Reading{
		PointID:     spec.PointID,
		Kind:        spec.Kind,
		RawValue:    raw,
		Engineering: spec.Transform.Apply(spec.Kind, raw),
	}, nil
}

func (a *Adapter) WriteControl(ctx context.Context, commands []protocol.ControlCommand) (protocol.WriteResult, error) {
	a.mu.Lock()
	tr := a.tr
	a.mu.Unlock()
	if tr == nil {
		return protocol.WriteResult{}, errNotConnected
	}

	var result protocol.WriteResult
	for _, cmd := range commands {
		spec, ok := a.byID[cmd.PointID]
		if !ok {
			result.Failures = append(result.Failures, protocol.WriteFailure{PointID: cmd.PointID, Err: errUnknownPoint})
			continue
		}
		if err := a.writeCoil(ctx, tr, spec.Address, cmd.Value); err != nil {
			result.Failures = append(result.Failures, protocol.WriteFailure{PointID: cmd.PointID, Err: err})
			continue
		}
		result.Successes = append(result.Successes, cmd.PointID)
		if cmd.Mode == protocol.Pulse {
			a.schedulePulseRevert(tr, spec.Address, cmd.PointID, cmd.PulseDurationMs)
		}
	}
	return result, nil
}

// schedulePulseRevert writes addr back to false after durationMs, completing
// a Pulse control command's write-delay-revert cycle without blocking the
// batch the pulse command arrived in. Runs detached from the request ctx:
// the physical output must still revert even if the caller's request
// already returned.
func (a *Adapter) schedulePulseRevert(tr Transport, addr Address, pointID uint32, durationMs uint32) {
	go func() {
		time.Sleep(time.Duration(durationMs) * time.Millisecond)
		if err := a.writeCoil(context.Background(), tr, addr, false); err != nil {
			logging.Logger.WithError(err).WithField("point_id", pointID).Warn("pulse revert write failed")
		}
	}()
}

func (a *Adapter) WriteAdjustment(ctx context.Context, commands []protocol.AdjustmentCommand) (protocol.WriteResult, error) {
	a.mu.Lock()
	tr := a.tr
	a.mu.Unlock()
	if tr == nil {
		return protocol.WriteResult{}, errNotConnected
	}

	var result protocol.WriteResult
	for _, cmd := range commands {
		spec, ok := a.byID[cmd.PointID]
		if !ok {
			result.Failures = append(result.Failures, protocol.WriteFailure{PointID: cmd.PointID, Err: errUnknownPoint})
			continue
		}
		if err := a.writeRegisters(ctx, tr, spec.Address, cmd.Value); err != nil {
			result.Failures = append(result.Failures, protocol.WriteFailure{PointID: cmd.PointID, Err: err})
			continue
		}
		result.Successes = append(result.Successes, cmd.PointID)
	}
	return result, nil
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const (
	errNotConnected = sentinelErr("not connected")
	errUnknownPoint = sentinelErr("unknown point id")
)
