package modbus

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voltageems.io/core/point"
	"voltageems.io/core/protocol"
)

// fakeTransport answers every request with a preset response, recording
// the last request it was asked to send. Guarded by a mutex since pulse
// reverts write from a background goroutine concurrently with the test.
type fakeTransport struct {
	mu       sync.Mutex
	lastReq  []byte
	response []byte
	closed   bool
	writes   int
}

func (f *fakeTransport) WriteRaw(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = append([]byte(nil), data...)
	f.writes++
	return nil
}

func (f *fakeTransport) ReadRaw(_ context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.response, nil
}

func (f *fakeTransport) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *fakeTransport) Close() error         { f.closed = true; return nil }
func (f *fakeTransport) LocalAddr() net.Addr  { return nil }
func (f *fakeTransport) RemoteAddr() net.Addr { return nil }
func (f *fakeTransport) MaxFrameSize() int    { return 260 }

// holdingRegResponse builds a fake read-holding-registers response:
// slave id, function code, byte count, then the big-endian register data.
func holdingRegResponse(slaveID byte, regs ...uint16) []byte {
	resp := []byte{slaveID, byte(FuncReadHoldingRegs), byte(len(regs) * 2)}
	for _, r := range regs {
		resp = append(resp, byte(r>>8), byte(r))
	}
	return resp
}

func TestAdapter_PollOnceDecodesReading(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{response: holdingRegResponse(1, 0x04D2)} // 1234

	a := New(func(context.Context) (Transport, error) { return tr, nil }, []PointSpec{
		{
			PointID:   7,
			Kind:      point.Telemetry,
			Address:   Address{SlaveID: 1, Function: FuncReadHoldingRegs, Register: 100, Format: FormatUInt16, ByteOrder: Abcd},
			Transform: point.Identity(),
		},
	})
	require.NoError(t, a.Connect(ctx))

	batch, err := a.PollOnce(ctx)
	require.NoError(t, err)
	require.Len(t, batch.Readings, 1)
	assert.Equal(t, uint32(7), batch.Readings[0].PointID)
	assert.InDelta(t, 1234, batch.Readings[0].Engineering, 1e-9)
}

func TestAdapter_PollOnceWithoutConnectErrors(t *testing.T) {
	ctx := context.Background()
	a := New(func(context.Context) (Transport, error) { return nil, nil }, nil)
	_, err := a.PollOnce(ctx)
	require.Error(t, err)
}

func TestAdapter_WriteControlUnknownPointFails(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{response: []byte{1, byte(FuncWriteSingleCoil), 0, 100, 0xFF, 0}}
	a := New(func(context.Context) (Transport, error) { return tr, nil }, nil)
	require.NoError(t, a.Connect(ctx))

	result, err := a.WriteControl(ctx, []protocol.ControlCommand{{PointID: 42, Value: true}})
	require.NoError(t, err)
	assert.False(t, result.OK())
	require.Len(t, result.Failures, 1)
	assert.Equal(t, uint32(42), result.Failures[0].PointID)
}

func TestAdapter_WriteControlPulseRevertsAfterDuration(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{response: []byte{1, byte(FuncWriteSingleCoil), 0, 100, 0xFF, 0}}
	a := New(func(context.Context) (Transport, error) { return tr, nil }, []PointSpec{
		{PointID: 1, Kind: point.Control, Address: Address{SlaveID: 1, Function: FuncWriteSingleCoil, Register: 100}},
	})
	require.NoError(t, a.Connect(ctx))

	result, err := a.WriteControl(ctx, []protocol.ControlCommand{
		{PointID: 1, Value: true, Mode: protocol.Pulse, PulseDurationMs: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, result.Successes)

	require.Eventually(t, func() bool {
		return tr.writeCount() == 2
	}, time.Second, 5*time.Millisecond, "pulse revert must issue a second write")
}

func TestAdapter_ConnectDisconnectTransitionsState(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{}
	a := New(func(context.Context) (Transport, error) { return tr, nil }, nil)

	assert.Equal(t, protocol.Disconnected, a.ConnectionState())
	require.NoError(t, a.Connect(ctx))
	assert.Equal(t, protocol.Connected, a.ConnectionState())
	require.NoError(t, a.Disconnect(ctx))
	assert.Equal(t, protocol.Disconnected, a.ConnectionState())
	assert.True(t, tr.closed)
}

func TestAdapter_ConnectFailurePropagatesError(t *testing.T) {
	ctx := context.Background()
	a := New(func(context.Context) (Transport, error) { return nil, assertDialErr }, nil)
	err := a.Connect(ctx)
	require.Error(t, err)
	assert.Equal(t, protocol.Error, a.ConnectionState())
}

var assertDialErr = dialFailure("dial failed")

type dialFailure string

func (d dialFailure) Error() string { return string(d) }
