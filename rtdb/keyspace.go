// Package rtdb is the typed real-time store abstraction: the Rtdb contract
// every component depends on, the KeySpace naming convention, and two
// implementations (memrtdb, redisrtdb) satisfying identical semantics.
package rtdb

import (
	"fmt"

	"voltageems.io/core/point"
)

// KeySpace builds every RTDB key name from its components, so changing the
// naming convention is a one-place edit rather than a grep across the
// codebase. A zero-value KeySpace is production-ready; WithPrefix returns
// a copy with all keys prefixed, used by tests and by M2C target
// substitution.
type KeySpace struct {
	prefix string
}

// NewKeySpace returns the production keyspace (no prefix).
func NewKeySpace() KeySpace { return KeySpace{} }

// TestKeySpace returns a keyspace with every key prefixed "test:", so test
// runs never collide with production keys in a shared backend.
func TestKeySpace() KeySpace { return KeySpace{prefix: "test:"} }

// WithPrefix returns a copy of ks with an additional prefix, used when a
// routing target substitutes a different root than comsrv/inst.
func (ks KeySpace) WithPrefix(prefix string) KeySpace {
	return KeySpace{prefix: ks.prefix + prefix}
}

func (ks KeySpace) key(parts ...string) string {
	k := parts[0]
	for _, p := range parts[1:] {
		k += ":" + p
	}
	return ks.prefix + k
}

// ChannelValue returns the hash key holding current values for one kind on
// one channel; field = point_id.
func (ks KeySpace) ChannelValue(channelID uint16, kind point.Kind) string {
	return ks.key("comsrv", fmt.Sprint(channelID), string(kind))
}

// ChannelTimestamp returns the hash key holding last-update timestamps.
func (ks KeySpace) ChannelTimestamp(channelID uint16, kind point.Kind) string {
	return ks.key("comsrv", fmt.Sprint(channelID), string(kind), "ts")
}

// ChannelRaw returns the hash key holding pre-transform raw values.
func (ks KeySpace) ChannelRaw(channelID uint16, kind point.Kind) string {
	return ks.key("comsrv", fmt.Sprint(channelID), string(kind), "raw")
}

// ChannelTODO returns the list key a channel's command dispatcher drains;
// kind is restricted to Control or Adjustment.
func (ks KeySpace) ChannelTODO(channelID uint16, kind point.Kind) string {
	return ks.key("comsrv", fmt.Sprint(channelID), string(kind), "TODO")
}

// CommandResult returns the key (a plain string value) a channel's
// command loop writes a command's outcome to, keyed by request id (§4.6
// step 5).
func (ks KeySpace) CommandResult(channelID uint16, requestID string) string {
	return ks.key("comsrv", fmt.Sprint(channelID), "result", requestID)
}

// CommandNotify returns the pub/sub channel name a dispatcher optionally
// publishes a command result to.
func (ks KeySpace) CommandNotify(channelID uint16) string {
	return ks.key("comsrv", fmt.Sprint(channelID), "notify")
}

// InstanceMeasurement returns the hash key holding an instance's
// measurement points.
func (ks KeySpace) InstanceMeasurement(instanceID uint32) string {
	return ks.key("inst", fmt.Sprint(instanceID), "M")
}

// InstanceAction returns the hash key holding an instance's action points.
func (ks KeySpace) InstanceAction(instanceID uint32) string {
	return ks.key("inst", fmt.Sprint(instanceID), "A")
}

// InstanceNameIndex returns the hash key mapping instance name to id.
func (ks KeySpace) InstanceNameIndex() string {
	return ks.key("inst", "name", "index")
}

// RoutingC2M, RoutingM2C and RoutingC2C return the hash keys holding each
// routing table's entries, keyed by the source token.
func (ks KeySpace) RoutingC2M() string { return ks.key("routing", "c2m") }
func (ks KeySpace) RoutingM2C() string { return ks.key("routing", "m2c") }
func (ks KeySpace) RoutingC2C() string { return ks.key("routing", "c2c") }
