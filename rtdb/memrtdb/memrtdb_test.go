package memrtdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Set(ctx, "k", "v"))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	exists, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.Del(ctx, "k"))
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok)
}

func TestHashOperations(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.HMSet(ctx, "h", map[string]string{"a": "1", "b": "2"}))
	all, err := s.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, all)

	require.NoError(t, s.HDel(ctx, "h", "a"))
	_, ok, _ := s.HGet(ctx, "h", "a")
	assert.False(t, ok)
}

func TestListFIFOOrdering(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.RPush(ctx, "q", "first"))
	require.NoError(t, s.RPush(ctx, "q", "second"))

	v, ok, err := s.LPop(ctx, "q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", v)
}

func TestBLPop_TimesOutOnEmptyQueue(t *testing.T) {
	ctx := context.Background()
	s := New()

	start := time.Now()
	_, ok, err := s.BLPop(ctx, "empty", 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestBLPop_ReturnsPushedValue(t *testing.T) {
	ctx := context.Background()
	s := New()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = s.RPush(ctx, "q", "value")
	}()

	v, ok, err := s.BLPop(ctx, "q", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "value", v)
}

func TestScanMatch(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "comsrv:1:T", "x"))
	require.NoError(t, s.Set(ctx, "comsrv:2:T", "y"))
	require.NoError(t, s.Set(ctx, "inst:1:M", "z"))

	keys, err := s.ScanMatch(ctx, "comsrv:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"comsrv:1:T", "comsrv:2:T"}, keys)
}

func TestPubSub(t *testing.T) {
	ctx := context.Background()
	s := New()

	ch, unsub, err := s.Subscribe(ctx, "events")
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, s.Publish(ctx, "events", "hello"))

	select {
	case msg := <-ch:
		assert.Equal(t, "hello", msg)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestHIncrBy(t *testing.T) {
	ctx := context.Background()
	s := New()

	v, err := s.HIncrBy(ctx, "counters", "n", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	v, err = s.HIncrBy(ctx, "counters", "n", -2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}
