package redisrtdb

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFromClient(client)
}

func TestScalarRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "k", "v"))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)
}

func TestGet_MissingKeyReturnsNotFoundNotError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.HMSet(ctx, "h", map[string]string{"a": "1", "b": "2"}))
	all, err := s.HGetAll(ctx, "h")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "1", "b": "2"}, all)
}

func TestBLPop_ReturnsValueFromOtherGoroutine(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = s.RPush(ctx, "q", "value")
	}()

	v, ok, err := s.BLPop(ctx, "q", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value", v)
}

func TestHIncrBy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v, err := s.HIncrBy(ctx, "counters", "n", 3)
	require.NoError(t, err)
	require.Equal(t, int64(3), v)
}
