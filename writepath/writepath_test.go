package writepath

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voltageems.io/core/point"
	"voltageems.io/core/routing"
	"voltageems.io/core/rtdb"
	"voltageems.io/core/rtdb/memrtdb"
)

func TestBatch_WritesEngineeringRawAndTimestamp(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()
	ks := rtdb.NewKeySpace()
	cache := routing.NewCache()

	raw := 1234.0
	u := point.Update{ChannelID: 1, Kind: point.Telemetry, PointID: 5, Value: 123.4, RawValue: &raw}

	require.NoError(t, Batch(ctx, store, ks, cache, []point.Update{u}, MaxC2CDepth))

	v, ok, _ := store.HGet(ctx, ks.ChannelValue(1, point.Telemetry), "5")
	require.True(t, ok)
	assert.Equal(t, "123.4", v)

	rv, ok, _ := store.HGet(ctx, ks.ChannelRaw(1, point.Telemetry), "5")
	require.True(t, ok)
	assert.Equal(t, "1234", rv)

	_, ok, _ = store.HGet(ctx, ks.ChannelTimestamp(1, point.Telemetry), "5")
	require.True(t, ok)
}

func TestBatch_C2MWritesInstanceMeasurement(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()
	ks := rtdb.NewKeySpace()
	cache := routing.NewCache()

	table := routing.NewTable()
	table.C2M["1:T:5"] = "10:M:5"
	cache.Update(table)

	u := point.Update{ChannelID: 1, Kind: point.Telemetry, PointID: 5, Value: 99}
	require.NoError(t, Batch(ctx, store, ks, cache, []point.Update{u}, MaxC2CDepth))

	v, ok, _ := store.HGet(ctx, ks.InstanceMeasurement(10), "5")
	require.True(t, ok)
	assert.Equal(t, "99", v)
}

// TestBatch_ThreeHopChainTruncatesAtMaxDepth exercises a C2C chain
// 1:T:1 -> 2:T:1 -> 3:T:1 -> 4:T:1 with MaxC2CDepth=2: hops 1 and 2 land,
// hop 3 (channel 4) is never reached.
func TestBatch_ThreeHopChainTruncatesAtMaxDepth(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()
	ks := rtdb.NewKeySpace()
	cache := routing.NewCache()

	table := routing.NewTable()
	table.C2C["1:T:1"] = "2:T:1"
	table.C2C["2:T:1"] = "3:T:1"
	table.C2C["3:T:1"] = "4:T:1"
	cache.Update(table)

	origin := point.Update{ChannelID: 1, Kind: point.Telemetry, PointID: 1, Value: 7}
	require.NoError(t, Batch(ctx, store, ks, cache, []point.Update{origin}, MaxC2CDepth))

	for _, cid := range []uint16{1, 2, 3} {
		_, ok, _ := store.HGet(ctx, ks.ChannelValue(cid, point.Telemetry), "1")
		assert.True(t, ok, "channel %d should have been written", cid)
	}
	_, ok, _ := store.HGet(ctx, ks.ChannelValue(4, point.Telemetry), "1")
	assert.False(t, ok, "hop 3 (channel 4) must not be reached with MaxC2CDepth=2")
}

func TestBatch_CycleTerminatesViaDepthBound(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()
	ks := rtdb.NewKeySpace()
	cache := routing.NewCache()

	table := routing.NewTable()
	table.C2C["1:T:1"] = "2:T:1"
	table.C2C["2:T:1"] = "1:T:1"
	cache.Update(table)

	origin := point.Update{ChannelID: 1, Kind: point.Telemetry, PointID: 1, Value: 7}

	done := make(chan error, 1)
	go func() { done <- Batch(ctx, store, ks, cache, []point.Update{origin}, MaxC2CDepth) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("write_batch did not terminate on a C2C cycle")
	}
}

func TestBatch_EmptyUpdatesIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()
	ks := rtdb.NewKeySpace()
	cache := routing.NewCache()

	assert.NoError(t, Batch(ctx, store, ks, cache, nil, MaxC2CDepth))
}
