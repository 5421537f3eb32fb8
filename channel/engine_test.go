package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voltageems.io/core/point"
	"voltageems.io/core/protocol/virtual"
	"voltageems.io/core/routing"
	"voltageems.io/core/rtdb"
	"voltageems.io/core/rtdb/memrtdb"
)

func TestEngine_PollLoopWritesToRTDB(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	store := memrtdb.New()
	ks := rtdb.NewKeySpace()
	cache := routing.NewCache()
	adapter := virtual.New([]virtual.PointSpec{
		{PointID: 1, Kind: point.Telemetry, Transform: point.Identity()},
	})

	cfg := Config{
		ChannelID:           1,
		Cadences:            DefaultCadences(20 * time.Millisecond),
		ReconnectMinBackoff: 10 * time.Millisecond,
		ReconnectMaxBackoff: 50 * time.Millisecond,
		CommandQueueTimeout: 20 * time.Millisecond,
	}
	e := New(cfg, adapter, store, ks, cache)

	adapter.SetRaw(1, 42)

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok, _ := store.HGet(ctx, ks.ChannelValue(1, point.Telemetry), "1")
		return ok
	}, 400*time.Millisecond, 10*time.Millisecond)

	cancel()
	<-done
}

func TestEngine_CommandDispatchWritesResult(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	store := memrtdb.New()
	ks := rtdb.NewKeySpace()
	cache := routing.NewCache()
	adapter := virtual.New([]virtual.PointSpec{
		{PointID: 9, Kind: point.Control},
	})

	cfg := Config{
		ChannelID:           2,
		Cadences:            DefaultCadences(50 * time.Millisecond),
		ReconnectMinBackoff: 10 * time.Millisecond,
		ReconnectMaxBackoff: 50 * time.Millisecond,
		CommandQueueTimeout: 20 * time.Millisecond,
	}
	e := New(cfg, adapter, store, ks, cache)

	go func() { _ = e.Run(ctx) }()

	require.Eventually(t, func() bool {
		return e.Phase() == PhasePolling
	}, 200*time.Millisecond, 5*time.Millisecond)

	encoded, err := EncodeCommand(CommandMessage{PointID: 9, Value: 1, RequestID: "req-1"})
	require.NoError(t, err)
	require.NoError(t, store.RPush(ctx, ks.ChannelTODO(2, point.Control), encoded))

	require.Eventually(t, func() bool {
		_, ok, _ := store.Get(ctx, ks.CommandResult(2, "req-1"))
		return ok
	}, 400*time.Millisecond, 10*time.Millisecond)

	cancel()
}

func TestPhase_CanTransitionTo(t *testing.T) {
	assert.True(t, PhaseCreated.CanTransitionTo(PhaseConnecting))
	assert.False(t, PhaseCreated.CanTransitionTo(PhasePolling))
	assert.True(t, PhasePolling.CanTransitionTo(PhaseCommanding))
	assert.True(t, PhaseBackoff.CanTransitionTo(PhaseConnecting))
	assert.False(t, PhaseStopped.CanTransitionTo(PhaseConnecting))
}

func TestCadenceGroup_Includes(t *testing.T) {
	all := CadenceGroup{}
	assert.True(t, all.includes(5))

	scoped := CadenceGroup{PointIDs: map[uint32]struct{}{1: {}}}
	assert.True(t, scoped.includes(1))
	assert.False(t, scoped.includes(2))
}
