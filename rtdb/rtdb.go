package rtdb

import (
	"context"
	"time"
)

// Rtdb is the typed key-value contract every component depends on. It is
// object-safe: callers hold it behind this interface and never branch on
// the concrete implementation. memrtdb and redisrtdb both satisfy it with
// identical observable semantics.
type Rtdb interface {
	// Scalar
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Hash
	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HMSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key, field string) error
	HMGet(ctx context.Context, key string, fields []string) (map[string]string, error)
	HDelMany(ctx context.Context, key string, fields []string) error

	// List
	LPush(ctx context.Context, key, value string) error
	RPush(ctx context.Context, key, value string) error
	LPop(ctx context.Context, key string) (string, bool, error)
	RPop(ctx context.Context, key string) (string, bool, error)
	BLPop(ctx context.Context, key string, timeout time.Duration) (string, bool, error)
	LRange(ctx context.Context, key string, start, stop int) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int) error

	// Set
	SAdd(ctx context.Context, key, member string) error
	SRem(ctx context.Context, key, member string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	// Counter
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	IncrByFloat(ctx context.Context, key string, delta float64) (float64, error)

	// Scan
	ScanMatch(ctx context.Context, pattern string) ([]string, error)

	// Pub/Sub
	Publish(ctx context.Context, channel, msg string) error
	Subscribe(ctx context.Context, channel string) (<-chan string, func(), error)

	// Time
	TimeMillis() int64
}

// FCaller is an optional extension implemented only by network-backed
// stores with server-side scripting (§4.1's "Script" family). Components
// type-assert for it rather than requiring it of every Rtdb.
type FCaller interface {
	FCall(ctx context.Context, name string, keys []string, args []string) (string, error)
}

// Expirer is an optional extension for a scalar set-with-expiry, used by
// rule actions (§4.8's `SetValue {key, value, ttl?}`) that need a value to
// disappear on its own. Both memrtdb and redisrtdb implement it; components
// type-assert for it the same way they do for FCaller.
type Expirer interface {
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
}
