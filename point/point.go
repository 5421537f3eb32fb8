// Package point defines the addressed-point domain types shared by the
// channel engine, write path, and routing fabric: the (channel, kind,
// point) tuple, the scale/offset/reverse transform applied between raw and
// engineering values, and the in-flight PointUpdate that flows through
// write_batch.
package point

import "fmt"

// Kind distinguishes the four point roles a channel can expose. T and A
// are analog (scale+offset); S and C are boolean (optional logical
// inversion).
type Kind string

const (
	Telemetry Kind = "T"
	Signal    Kind = "S"
	Control   Kind = "C"
	Adjustment Kind = "A"
)

// IsAnalog reports whether values of this kind carry a scale/offset
// transform rather than a boolean inversion.
func (k Kind) IsAnalog() bool {
	return k == Telemetry || k == Adjustment
}

func (k Kind) Valid() bool {
	switch k {
	case Telemetry, Signal, Control, Adjustment:
		return true
	}
	return false
}

// ID addresses a single point: (channel_id, kind, point_id) is unique
// within a channel and stable across reloads.
type ID struct {
	ChannelID uint16
	Kind      Kind
	PointID   uint32
}

// String renders the canonical "{channel_id}:{kind}:{point_id}" key
// fragment used throughout the RTDB keyspace and routing tables.
func (id ID) String() string {
	return fmt.Sprintf("%d:%s:%d", id.ChannelID, id.Kind, id.PointID)
}

// Transform holds the analog scale/offset or boolean reverse applied
// between a point's raw value and its engineering value.
type Transform struct {
	Scale   float64 // analog only; zero-value Scale of 0 is invalid, use 1 for identity
	Offset  float64 // analog only
	Reverse bool    // boolean only; logical inversion
}

// Identity returns the no-op transform (scale=1, offset=0, reverse=false).
func Identity() Transform {
	return Transform{Scale: 1}
}

// Apply converts a raw value to its engineering value according to kind:
// raw*scale+offset for analog kinds, raw XOR reverse for boolean kinds.
func (t Transform) Apply(kind Kind, raw float64) float64 {
	if kind.IsAnalog() {
		return raw*t.Scale + t.Offset
	}
	if boolFromFloat(raw) != t.Reverse {
		return 1
	}
	return 0
}

// Value is a small tagged union of the three shapes a point's engineering
// value can take. It is a struct rather than an interface so hot-path
// writes stay allocation-free; exactly one of the typed fields is
// meaningful per Tag.
type Value struct {
	Tag     ValueTag
	Analog  float64
	Digital bool
	Text    string
}

type ValueTag uint8

const (
	TagAnalog ValueTag = iota
	TagDigital
	TagText
)

func AnalogValue(v float64) Value  { return Value{Tag: TagAnalog, Analog: v} }
func DigitalValue(v bool) Value    { return Value{Tag: TagDigital, Digital: v} }
func TextValue(v string) Value     { return Value{Tag: TagText, Text: v} }

// Float64 flattens the value to a float64 for RTDB storage, the only
// representation the write path persists: digital true/false becomes
// 1/0, text values are not representable and return ok=false.
func (v Value) Float64() (f float64, ok bool) {
	switch v.Tag {
	case TagAnalog:
		return v.Analog, true
	case TagDigital:
		if v.Digital {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Update is the in-flight value produced by a channel read or a model
// write, carried through write_batch. CascadeDepth is a hop counter: 0 on
// the originating write, incremented on each C2C follow-through, and
// write_batch stops following C2C routes once it reaches MAX_C2C_DEPTH.
type Update struct {
	ChannelID    uint16
	Kind         Kind
	PointID      uint32
	Value        float64
	RawValue     *float64
	CascadeDepth uint8
}

// ID returns the (channel, kind, point) identity of this update.
func (u Update) ID() ID {
	return ID{ChannelID: u.ChannelID, Kind: u.Kind, PointID: u.PointID}
}

func boolFromFloat(f float64) bool {
	return f != 0
}
