package channel

import "time"

// CadenceGroup is one poll-interval bucket: a subset of a channel's
// points polled on a dedicated ticker. PointIDs nil/empty means "every
// point not claimed by a more specific group" — the default cadence.
// Grounded on original_source's point_manager.rs/optimized_point_manager.rs
// grouping points by poll interval (SPEC_FULL.md §10).
type CadenceGroup struct {
	Interval time.Duration
	PointIDs map[uint32]struct{}
}

// Config is the static, per-channel configuration the Engine is built
// from. It is replaced wholesale on reload (see the reload package); the
// Engine itself holds no config mutation API.
type Config struct {
	ChannelID uint16

	// Cadences must contain at least one group; a Config with a single
	// group and a nil PointIDs set is the common case (every point polled
	// on one interval).
	Cadences []CadenceGroup

	ReconnectMinBackoff time.Duration
	ReconnectMaxBackoff time.Duration

	CommandQueueTimeout time.Duration
	MaxC2CDepth         uint8
}

// DefaultCadences returns a single cadence group covering every point at
// interval.
func DefaultCadences(interval time.Duration) []CadenceGroup {
	return []CadenceGroup{{Interval: interval}}
}

// includes reports whether pointID belongs to this cadence group: either
// it is explicitly listed, or the group has no explicit list (the
// catch-all default group).
func (g CadenceGroup) includes(pointID uint32) bool {
	if len(g.PointIDs) == 0 {
		return true
	}
	_, ok := g.PointIDs[pointID]
	return ok
}
