// Package reload implements change classification and the hot-reload
// reconciliation contract of spec §4.9: diffing durable channel config
// against runtime state and deciding, per channel, whether a change needs
// a full recreate, a reconnect, or an in-place metadata update.
package reload

import "voltageems.io/core/durable"

// Class is the strength of a configuration change, strongest wins across
// every field that differs between an old and new channel record.
type Class int

const (
	// NoChange means every compared field is identical.
	NoChange Class = iota
	// MetadataOnly covers display fields that never affect the running
	// adapter: name, description.
	MetadataOnly
	// NonCritical covers connection tuning that only forces a
	// disconnect/reconnect: timeout, retry count, keep-alive.
	NonCritical
	// Critical covers anything that changes what the adapter actually
	// connects to or speaks: protocol, address, poll interval, enabled.
	Critical
)

func (c Class) String() string {
	switch c {
	case NoChange:
		return "no_change"
	case MetadataOnly:
		return "metadata_only"
	case NonCritical:
		return "non_critical"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// fieldClass is one entry of the explicit classification table, in the
// style of coordinator/phases.go's ValidTransitions map: enumerated
// outcomes, not ad-hoc branching.
type fieldClass struct {
	name  string
	class Class
	diff  func(old, new durable.Channel) bool
}

var classificationTable = []fieldClass{
	{"protocol", Critical, func(o, n durable.Channel) bool { return o.Protocol != n.Protocol }},
	{"address", Critical, func(o, n durable.Channel) bool { return o.Address != n.Address }},
	{"poll_interval", Critical, func(o, n durable.Channel) bool { return o.PollInterval != n.PollInterval }},
	{"enabled", Critical, func(o, n durable.Channel) bool { return o.Enabled != n.Enabled }},
	{"connect_timeout", NonCritical, func(o, n durable.Channel) bool { return o.ConnectTimeout != n.ConnectTimeout }},
	{"retry_count", NonCritical, func(o, n durable.Channel) bool { return o.RetryCount != n.RetryCount }},
	{"keep_alive", NonCritical, func(o, n durable.Channel) bool { return o.KeepAlive != n.KeepAlive }},
	{"name", MetadataOnly, func(o, n durable.Channel) bool { return o.Name != n.Name }},
	{"description", MetadataOnly, func(o, n durable.Channel) bool { return o.Description != n.Description }},
}

// Classify compares old and new field-by-field and returns the strongest
// class observed, plus the names of every field that differed.
func Classify(old, new durable.Channel) (Class, []string) {
	strongest := NoChange
	var changed []string
	for _, f := range classificationTable {
		if f.diff(old, new) {
			changed = append(changed, f.name)
			if f.class > strongest {
				strongest = f.class
			}
		}
	}
	return strongest, changed
}
