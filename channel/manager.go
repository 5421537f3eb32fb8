package channel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"voltageems.io/core/durable"
	"voltageems.io/core/logging"
	"voltageems.io/core/point"
	"voltageems.io/core/protocol"
	"voltageems.io/core/protocol/modbus"
	"voltageems.io/core/protocol/virtual"
	"voltageems.io/core/routing"
	"voltageems.io/core/rtdb"
)

// running pairs an Engine with the context cancel func that stops its
// supervising goroutine, so Manager can tear one down independently of
// the others.
type running struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns the fleet of running channel Engines, one per durable
// Channel record, and is the concrete ChannelController the reload
// package drives. Grounded on worker/pool.go's Pool, generalized from a
// fixed worker count to a dynamically added/removed/replaced set keyed
// by channel id.
type Manager struct {
	store       rtdb.Rtdb
	ks          rtdb.KeySpace
	cache       *routing.Cache
	maxC2CDepth int

	mu      sync.Mutex
	engines map[uint]running
}

// NewManager builds a Manager whose channels cascade C2C writes no deeper
// than maxC2CDepth (config.Core.MaxC2CDepth, §3's MAX_C2C_DEPTH).
func NewManager(store rtdb.Rtdb, ks rtdb.KeySpace, cache *routing.Cache, maxC2CDepth int) *Manager {
	return &Manager{store: store, ks: ks, cache: cache, maxC2CDepth: maxC2CDepth, engines: make(map[uint]running)}
}

// Create builds an adapter and Engine for ch and starts its supervising
// goroutine.
func (m *Manager) Create(ctx context.Context, ch durable.Channel) error {
	adapter, err := buildAdapter(ch)
	if err != nil {
		return fmt.Errorf("channel manager: build adapter for %q: %w", ch.Name, err)
	}
	cfg := configFromDurable(ch, m.maxC2CDepth)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.engines[ch.ID]; exists {
		return fmt.Errorf("channel manager: channel %d already running", ch.ID)
	}

	engine := New(cfg, adapter, m.store, m.ks, m.cache)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := engine.Run(runCtx); err != nil && runCtx.Err() == nil {
			logging.Logger.WithError(err).WithField("channel_id", ch.ID).Error("channel engine exited unexpectedly")
		}
	}()
	m.engines[ch.ID] = running{cancel: cancel, done: done}
	return nil
}

// Reconnect forces the channel's engine through a fresh disconnect and
// reconnect cycle by recreating it — the Engine type exposes no
// in-place "rebind connection tuning" hook, so a reconnect is
// implemented as a stop-then-start against the same adapter config.
func (m *Manager) Reconnect(ctx context.Context, ch durable.Channel) error {
	if err := m.Remove(ctx, ch.ID); err != nil {
		return err
	}
	return m.Create(ctx, ch)
}

// UpdateMetadata is a no-op against the running engine: name/description
// changes have no effect on adapter behavior, so nothing needs to
// restart. The durable record itself was already updated by the caller
// before classification ran.
func (m *Manager) UpdateMetadata(ctx context.Context, ch durable.Channel) error {
	return nil
}

// Recreate stops the existing engine (if any) and starts a new one from
// ch's current configuration.
func (m *Manager) Recreate(ctx context.Context, ch durable.Channel) error {
	m.mu.Lock()
	_, exists := m.engines[ch.ID]
	m.mu.Unlock()
	if exists {
		if err := m.Remove(ctx, ch.ID); err != nil {
			return err
		}
	}
	return m.Create(ctx, ch)
}

// Remove stops the channel's engine and waits for its goroutine to exit.
func (m *Manager) Remove(ctx context.Context, channelID uint) error {
	m.mu.Lock()
	r, exists := m.engines[channelID]
	if exists {
		delete(m.engines, channelID)
	}
	m.mu.Unlock()
	if !exists {
		return nil
	}
	r.cancel()
	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// configFromDurable derives an Engine Config from a durable Channel
// record: one default cadence group at PollInterval, a minimum backoff of
// ConnectTimeout (500ms when unset) and a maximum of twenty times that or
// KeepAlive, whichever is longer, and the cascade bound (§3's
// MAX_C2C_DEPTH) threaded in from config rather than hardcoded.
func configFromDurable(ch durable.Channel, maxC2CDepth int) Config {
	minBackoff := ch.ConnectTimeout
	if minBackoff <= 0 {
		minBackoff = 500 * time.Millisecond
	}
	maxBackoff := minBackoff * 20
	if ch.KeepAlive > maxBackoff {
		maxBackoff = ch.KeepAlive
	}
	return Config{
		ChannelID:           uint16(ch.ID),
		Cadences:            DefaultCadences(ch.PollInterval),
		ReconnectMinBackoff: minBackoff,
		ReconnectMaxBackoff: maxBackoff,
		CommandQueueTimeout: 2 * time.Second,
		MaxC2CDepth:         uint8(maxC2CDepth),
	}
}

// buildAdapter constructs the protocol.Adapter for ch's declared
// protocol, wiring its point catalog (MeasurementPoints/ActionPoints)
// into protocol-specific PointSpecs.
func buildAdapter(ch durable.Channel) (protocol.Adapter, error) {
	switch ch.Protocol {
	case "modbus_tcp":
		return buildModbusAdapter(ch, func(ctx context.Context) (modbus.Transport, error) {
			conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", ch.Address)
			if err != nil {
				return nil, err
			}
			return modbus.NewTCPTransport(conn), nil
		})
	case "modbus_rtu":
		// RTU framing over a TCP-exposed serial gateway, the common
		// deployment shape for field devices behind a terminal server.
		return buildModbusAdapter(ch, func(ctx context.Context) (modbus.Transport, error) {
			conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", ch.Address)
			if err != nil {
				return nil, err
			}
			return modbus.NewRTUTransport(conn), nil
		})
	case "virtual":
		return buildVirtualAdapter(ch), nil
	default:
		return nil, fmt.Errorf("channel manager: unknown protocol %q", ch.Protocol)
	}
}

func buildModbusAdapter(ch durable.Channel, dial func(context.Context) (modbus.Transport, error)) (protocol.Adapter, error) {
	specs := make([]modbus.PointSpec, 0, len(ch.MeasurementPoints)+len(ch.ActionPoints))
	for _, mp := range ch.MeasurementPoints {
		addr, err := modbusAddress(mp.SlaveID, mp.Register, mp.Function, mp.Format, mp.ByteOrder, mp.BitPosition, readFunctionFor(point.Kind(mp.Kind)))
		if err != nil {
			return nil, err
		}
		specs = append(specs, modbus.PointSpec{
			PointID:   mp.PointID,
			Kind:      point.Kind(mp.Kind),
			Address:   addr,
			Transform: point.Transform{Scale: orIdentity(mp.Scale), Offset: mp.Offset, Reverse: mp.Reverse},
		})
	}
	for _, ap := range ch.ActionPoints {
		addr, err := modbusAddress(ap.SlaveID, ap.Register, ap.Function, ap.Format, ap.ByteOrder, ap.BitPosition, writeFunctionFor(point.Kind(ap.Kind)))
		if err != nil {
			return nil, err
		}
		specs = append(specs, modbus.PointSpec{
			PointID:   ap.PointID,
			Kind:      point.Kind(ap.Kind),
			Address:   addr,
			Transform: point.Transform{Scale: orIdentity(ap.Scale), Offset: ap.Offset, Reverse: ap.Reverse},
		})
	}
	return modbus.New(dial, specs), nil
}

func buildVirtualAdapter(ch durable.Channel) protocol.Adapter {
	specs := make([]virtual.PointSpec, 0, len(ch.MeasurementPoints)+len(ch.ActionPoints))
	for _, mp := range ch.MeasurementPoints {
		specs = append(specs, virtual.PointSpec{
			PointID:   mp.PointID,
			Kind:      point.Kind(mp.Kind),
			Transform: point.Transform{Scale: orIdentity(mp.Scale), Offset: mp.Offset, Reverse: mp.Reverse},
		})
	}
	for _, ap := range ch.ActionPoints {
		specs = append(specs, virtual.PointSpec{
			PointID:   ap.PointID,
			Kind:      point.Kind(ap.Kind),
			Transform: point.Transform{Scale: orIdentity(ap.Scale), Offset: ap.Offset, Reverse: ap.Reverse},
		})
	}
	return virtual.New(specs)
}

func orIdentity(scale float64) float64 {
	if scale == 0 {
		return 1
	}
	return scale
}

// readFunctionFor picks the canonical read function code for a
// measurement point kind when Function wasn't explicitly set to
// something else by the operator (function codes are still configurable
// per-point via the durable record; this is only the fallback).
func readFunctionFor(kind point.Kind) modbus.FunctionCode {
	if kind == point.Signal {
		return modbus.FuncReadDiscreteInputs
	}
	return modbus.FuncReadHoldingRegs
}

// writeFunctionFor is the analogous fallback for action points: Control
// (boolean) defaults to a single coil write, Adjustment (analog) to a
// single register write.
func writeFunctionFor(kind point.Kind) modbus.FunctionCode {
	if kind == point.Control {
		return modbus.FuncWriteSingleCoil
	}
	return modbus.FuncWriteSingleReg
}

func modbusAddress(slaveID byte, register uint16, function byte, format, byteOrder string, bitPosition *uint8, fallbackFunc modbus.FunctionCode) (modbus.Address, error) {
	fn := modbus.FunctionCode(function)
	if fn == 0 {
		fn = fallbackFunc
	}
	addr := modbus.Address{
		SlaveID:     slaveID,
		Function:    fn,
		Register:    register,
		Format:      modbus.Format(format),
		ByteOrder:   modbus.ByteOrder(byteOrder),
		BitPosition: bitPosition,
	}
	if err := addr.Validate(); err != nil {
		return modbus.Address{}, err
	}
	return addr, nil
}
