// Package dispatcher implements the M2C half of the Command Dispatcher
// (spec §4.6): it turns a write to an instance's action point into a TODO
// message on the owning channel's queue, consulting the routing cache to
// find the target. The per-channel consumer loop that drains the queue
// lives in the channel package, grounded on the teacher pattern
// worker.Worker.processNext; the idempotency window's eviction follows
// statemanager's evictOldest (see IdempotencyWindow).
package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voltageems.io/core/channel"
	"voltageems.io/core/errs"
	"voltageems.io/core/point"
	"voltageems.io/core/routing"
	"voltageems.io/core/rtdb"
)

// Dispatcher turns instance-action writes into channel TODO messages.
type Dispatcher struct {
	store      rtdb.Rtdb
	ks         rtdb.KeySpace
	cache      *routing.Cache
	idempotent *IdempotencyWindow
}

// New builds a Dispatcher. idempotent may be nil to disable duplicate
// rejection (tests, or a caller that never retries).
func New(store rtdb.Rtdb, ks rtdb.KeySpace, cache *routing.Cache, idempotent *IdempotencyWindow) *Dispatcher {
	return &Dispatcher{store: store, ks: ks, cache: cache, idempotent: idempotent}
}

// Dispatch implements §4.6 steps 1-3: given a write of value to instance
// instanceID's action point pointID, look up "{iid}:A:{pid}" in the M2C
// table; on a miss it returns errs.RoutingMiss (not an error the caller
// should retry — it means nothing consumes this point). On a hit it
// parses the target "{cid}:{C|A}:{pid}" and pushes a CommandMessage onto
// that channel's TODO queue.
//
// requestID is the idempotency key (§4.6's "requests carry a
// request_id"); pass "" to have one generated, which makes this call
// never deduplicated — callers that need retry-safety must supply the
// same requestID on each retry attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, instanceID uint32, pointID uint32, value float64, requestID string) error {
	if requestID == "" {
		requestID = uuid.NewString()
	} else if d.idempotent != nil && d.idempotent.Check(requestID, time.Now()) {
		return errs.New("dispatcher.Dispatch", errs.ValidationError, map[string]any{"request_id": requestID, "reason": "duplicate"})
	}

	sourceKey := fmt.Sprintf("%d:%s:%d", instanceID, point.Adjustment, pointID)
	target, ok := d.cache.Snapshot().LookupM2C(sourceKey)
	if !ok {
		return errs.New("dispatcher.Dispatch", errs.RoutingMiss, map[string]any{"source": sourceKey})
	}

	channelID, kind, targetPointID, err := parseTarget(target)
	if err != nil {
		return errs.Wrap("dispatcher.Dispatch", errs.RoutingMiss, err, map[string]any{"target": target})
	}

	msg := channel.CommandMessage{
		PointID:   targetPointID,
		Value:     value,
		OriginIID: instanceID,
		RequestID: requestID,
	}
	encoded, err := channel.EncodeCommand(msg)
	if err != nil {
		return errs.Wrap("dispatcher.Dispatch", errs.ValidationError, err, nil)
	}

	if err := d.store.RPush(ctx, d.ks.ChannelTODO(channelID, kind), encoded); err != nil {
		return errs.Wrap("dispatcher.Dispatch", errs.ConnectionError, err, nil)
	}
	return nil
}

// parseTarget splits a "{cid}:{C|A}:{pid}" routing target token.
func parseTarget(target string) (channelID uint16, kind point.Kind, pointID uint32, err error) {
	parts := strings.Split(target, ":")
	if len(parts) != 3 {
		return 0, "", 0, fmt.Errorf("malformed routing target %q", target)
	}
	var cid uint64
	if _, err := fmt.Sscanf(parts[0], "%d", &cid); err != nil {
		return 0, "", 0, fmt.Errorf("malformed channel id in target %q: %w", target, err)
	}
	k := point.Kind(parts[1])
	if k != point.Control && k != point.Adjustment {
		return 0, "", 0, fmt.Errorf("target kind %q is not a command kind", parts[1])
	}
	var pid uint64
	if _, err := fmt.Sscanf(parts[2], "%d", &pid); err != nil {
		return 0, "", 0, fmt.Errorf("malformed point id in target %q: %w", target, err)
	}
	return uint16(cid), k, uint32(pid), nil
}

// IdempotencyWindow tracks recently-dispatched request ids and rejects
// duplicates for a configurable window, bounded the way
// statemanager.Manager bounds its operations map: when at capacity, the
// oldest entry is evicted to make room rather than growing without limit.
type IdempotencyWindow struct {
	mu       sync.Mutex
	seen     map[string]time.Time
	window   time.Duration
	capacity int
}

func NewIdempotencyWindow(window time.Duration, capacity int) *IdempotencyWindow {
	return &IdempotencyWindow{
		seen:     make(map[string]time.Time),
		window:   window,
		capacity: capacity,
	}
}

// Check reports whether requestID has already been seen within the
// window. A fresh id is recorded and returns false (not a duplicate); a
// stale entry past the window is treated as fresh and re-recorded.
func (w *IdempotencyWindow) Check(requestID string, now time.Time) (duplicate bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if seenAt, ok := w.seen[requestID]; ok && now.Sub(seenAt) < w.window {
		return true
	}

	if len(w.seen) >= w.capacity {
		w.evictOldest()
	}
	w.seen[requestID] = now
	return false
}

func (w *IdempotencyWindow) evictOldest() {
	var oldestID string
	var oldestTime time.Time
	for id, t := range w.seen {
		if oldestID == "" || t.Before(oldestTime) {
			oldestID, oldestTime = id, t
		}
	}
	if oldestID != "" {
		delete(w.seen, oldestID)
	}
}
