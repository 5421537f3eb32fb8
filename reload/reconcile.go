package reload

import (
	"context"
	"time"

	"voltageems.io/core/durable"
	"voltageems.io/core/routing"
)

// ChannelController is the set of lifecycle operations a Reconciler
// drives a running channel through. Point-of-use narrowing of whatever
// owns the fleet of channel.Engine instances (channel.Manager, wired up
// in cmd/voltagecore), the same pattern as instance.DurableStore.
type ChannelController interface {
	// Create starts a new channel engine for ch, which was not previously
	// running.
	Create(ctx context.Context, ch durable.Channel) error
	// Reconnect applies NonCritical changes: the channel is forced
	// through a disconnect/reconnect cycle to pick up the new connection
	// tuning (channel.Manager does this by stopping and recreating the
	// engine).
	Reconnect(ctx context.Context, ch durable.Channel) error
	// UpdateMetadata applies MetadataOnly changes in place, without
	// touching the adapter connection at all.
	UpdateMetadata(ctx context.Context, ch durable.Channel) error
	// Recreate applies Critical changes: stop the existing engine and
	// start a fresh one from ch.
	Recreate(ctx context.Context, ch durable.Channel) error
	// Remove stops and discards the engine for a channel that no longer
	// exists in the durable store.
	Remove(ctx context.Context, channelID uint) error
}

// DurableReader is the narrow read surface Reconciler needs from the
// durable store.
type DurableReader interface {
	Channels() ([]durable.Channel, error)
	LoadRoutingTable() (*routing.Table, error)
}

// ReloadResult is the hot-reload contract's outcome, per §4.9.
type ReloadResult struct {
	Total      int
	Added      int
	Updated    int
	Removed    int
	Errors     []EntityError
	DurationMS int64
}

// EntityError is one per-entity failure; errors never abort the batch.
type EntityError struct {
	ChannelID uint
	Op        string
	Err       error
}

// Reconciler holds the last-known durable snapshot of every running
// channel, so ReloadFromDatabase can diff it against what the store now
// reports.
type Reconciler struct {
	db         DurableReader
	controller ChannelController
	routing    *routing.Cache
	runtime    map[uint]durable.Channel
}

func NewReconciler(db DurableReader, controller ChannelController, cache *routing.Cache) *Reconciler {
	return &Reconciler{db: db, controller: controller, routing: cache, runtime: make(map[uint]durable.Channel)}
}

// ReloadFromDatabase computes added/updated/removed against the last
// reconciled runtime snapshot, applies each channel-level change, then
// refreshes the routing cache in one atomic swap. Per-entity errors are
// collected rather than aborting the batch.
func (r *Reconciler) ReloadFromDatabase(ctx context.Context) ReloadResult {
	start := time.Now()
	result := ReloadResult{}

	channels, err := r.db.Channels()
	if err != nil {
		result.Errors = append(result.Errors, EntityError{Op: "list_channels", Err: err})
		result.DurationMS = time.Since(start).Milliseconds()
		return result
	}

	seen := make(map[uint]bool, len(channels))
	for _, ch := range channels {
		seen[ch.ID] = true
		result.Total++

		old, existed := r.runtime[ch.ID]
		if !existed {
			if err := r.controller.Create(ctx, ch); err != nil {
				result.Errors = append(result.Errors, EntityError{ChannelID: ch.ID, Op: "create", Err: err})
				continue
			}
			r.runtime[ch.ID] = ch
			result.Added++
			continue
		}

		class, _ := Classify(old, ch)
		if class == NoChange {
			continue
		}

		var applyErr error
		switch class {
		case Critical:
			applyErr = r.controller.Recreate(ctx, ch)
		case NonCritical:
			applyErr = r.controller.Reconnect(ctx, ch)
		case MetadataOnly:
			applyErr = r.controller.UpdateMetadata(ctx, ch)
		}
		if applyErr != nil {
			result.Errors = append(result.Errors, EntityError{ChannelID: ch.ID, Op: "update:" + class.String(), Err: applyErr})
			continue
		}
		r.runtime[ch.ID] = ch
		result.Updated++
	}

	for id := range r.runtime {
		if seen[id] {
			continue
		}
		if err := r.controller.Remove(ctx, id); err != nil {
			result.Errors = append(result.Errors, EntityError{ChannelID: id, Op: "remove", Err: err})
			continue
		}
		delete(r.runtime, id)
		result.Removed++
	}

	if table, err := r.db.LoadRoutingTable(); err != nil {
		result.Errors = append(result.Errors, EntityError{Op: "load_routing_table", Err: err})
	} else {
		r.routing.Update(table)
	}

	result.DurationMS = time.Since(start).Milliseconds()
	return result
}
