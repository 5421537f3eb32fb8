// Package redisrtdb is the network-backed Rtdb implementation for
// multi-process deploys, wrapping go-redis the way the teacher's
// db/repository.RedisRepository and queue/redis.Queue do: parse the URL,
// ping to verify connectivity on construction, translate redis.Nil into
// the (value, false, nil) "not found" shape the Rtdb contract expects.
package redisrtdb

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store adapts a *redis.Client to the rtdb.Rtdb contract.
type Store struct {
	client *redis.Client
}

// New parses url, opens a client, and verifies connectivity with a bounded
// ping before returning — failures here are ConfigError/ConnectionError
// territory for the caller to classify, not silently deferred to first
// use.
func New(url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisrtdb: parse url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisrtdb: connect: %w", err)
	}

	return &Store{client: client}, nil
}

// NewFromClient wraps an already-constructed client, used by tests against
// miniredis.
func NewFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

// SetEx sets key with a TTL, natively via redis's SET EX option; ttl <= 0
// behaves like Set (no expiry).
func (s *Store) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Del(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (s *Store) HSet(ctx context.Context, key, field, value string) error {
	return s.client.HSet(ctx, key, field, value).Err()
}

func (s *Store) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := s.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) HMSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		args[k] = v
	}
	return s.client.HSet(ctx, key, args).Err()
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.client.HGetAll(ctx, key).Result()
}

func (s *Store) HDel(ctx context.Context, key, field string) error {
	return s.client.HDel(ctx, key, field).Err()
}

func (s *Store) HMGet(ctx context.Context, key string, fields []string) (map[string]string, error) {
	vals, err := s.client.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(fields))
	for i, f := range fields {
		if vals[i] != nil {
			out[f] = vals[i].(string)
		}
	}
	return out, nil
}

func (s *Store) HDelMany(ctx context.Context, key string, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	return s.client.HDel(ctx, key, fields...).Err()
}

func (s *Store) LPush(ctx context.Context, key, value string) error {
	return s.client.LPush(ctx, key, value).Err()
}

func (s *Store) RPush(ctx context.Context, key, value string) error {
	return s.client.RPush(ctx, key, value).Err()
}

func (s *Store) LPop(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.LPop(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) RPop(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.RPop(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) BLPop(ctx context.Context, key string, timeout time.Duration) (string, bool, error) {
	res, err := s.client.BLPop(ctx, timeout, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	// BLPop returns [key, value]
	return res[1], true, nil
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	return s.client.LRange(ctx, key, int64(start), int64(stop)).Result()
}

func (s *Store) LTrim(ctx context.Context, key string, start, stop int) error {
	return s.client.LTrim(ctx, key, int64(start), int64(stop)).Err()
}

func (s *Store) SAdd(ctx context.Context, key, member string) error {
	return s.client.SAdd(ctx, key, member).Err()
}

func (s *Store) SRem(ctx context.Context, key, member string) error {
	return s.client.SRem(ctx, key, member).Err()
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

func (s *Store) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	return s.client.HIncrBy(ctx, key, field, delta).Result()
}

func (s *Store) IncrByFloat(ctx context.Context, key string, delta float64) (float64, error) {
	return s.client.IncrByFloat(ctx, key, delta).Result()
}

func (s *Store) ScanMatch(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	return out, iter.Err()
}

func (s *Store) Publish(ctx context.Context, channel, msg string) error {
	return s.client.Publish(ctx, channel, msg).Err()
}

func (s *Store) Subscribe(ctx context.Context, channel string) (<-chan string, func(), error) {
	pubsub := s.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	unsub := func() { _ = pubsub.Close() }
	return out, unsub, nil
}

func (s *Store) TimeMillis() int64 {
	return time.Now().UnixMilli()
}

// FCall invokes a server-side function registered in Redis (the optional
// Script family from §4.1). Not wired to any component yet — no rule or
// dispatcher path needs server-side atomicity beyond what HIncrBy
// already gives us — but kept so a future caller can type-assert
// rtdb.FCaller without a redisrtdb API change.
func (s *Store) FCall(ctx context.Context, name string, keys []string, args []string) (string, error) {
	iargs := make([]interface{}, len(args))
	for i, a := range args {
		iargs[i] = a
	}
	return s.client.FCall(ctx, name, keys, iargs...).Text()
}
