// Package writepath implements write_batch, the single choke-point every
// point update passes through: materialize engineering/raw/timestamp,
// then fan out through the routing cache to an instance measurement (C2M)
// and/or a different channel (C2C, depth-bounded).
//
// The cascade work-queue is drained iteratively (a plain slice used as a
// FIFO), not recursed, per §4.3 — grounded on the teacher's
// worker.Pool/Worker.processNext drain-loop discipline of pulling one item
// at a time from a queue rather than recursing.
package writepath

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"voltageems.io/core/logging"
	"voltageems.io/core/point"
	"voltageems.io/core/routing"
	"voltageems.io/core/rtdb"
)

// MaxC2CDepth is the default cascade bound (§3's key invariant). Callers
// needing a different bound pass it explicitly to Batch.
const MaxC2CDepth uint8 = 2

// Batch writes every update in updates to rtdb, fanning each out through
// routing's current snapshot. maxC2CDepth is typically writepath.MaxC2CDepth;
// it is a parameter (not a constant) so the channel engine can pass the
// bound that channel.Manager takes from config.Core.MaxC2CDepth.
func Batch(ctx context.Context, store rtdb.Rtdb, ks rtdb.KeySpace, cache *routing.Cache, updates []point.Update, maxC2CDepth uint8) error {
	queue := append([]point.Update(nil), updates...)

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]

		if u.CascadeDepth > maxC2CDepth {
			continue
		}

		if err := writeOne(ctx, store, ks, u); err != nil {
			logging.Logger.WithFields(logrus.Fields{
				"channel_id": u.ChannelID,
				"kind":       u.Kind,
				"point_id":   u.PointID,
				"error":      err,
			}).Error("writepath: point write failed, skipping")
			continue
		}

		table := cache.Snapshot()
		srcKey := u.ID().String()

		if target, ok := table.LookupC2M(srcKey); ok {
			if err := writeC2M(ctx, store, ks, target, u.Value); err != nil {
				logging.Logger.WithFields(logrus.Fields{"target": target, "error": err}).
					Error("writepath: C2M fan-out failed")
			}
		}

		if u.CascadeDepth < maxC2CDepth {
			if target, ok := table.LookupC2C(srcKey); ok {
				next, err := followC2C(target, u)
				if err != nil {
					logging.Logger.WithFields(logrus.Fields{"target": target, "error": err}).
						Error("writepath: malformed C2C routing entry")
				} else {
					queue = append(queue, next)
				}
			}
		}
	}

	return nil
}

func writeOne(ctx context.Context, store rtdb.Rtdb, ks rtdb.KeySpace, u point.Update) error {
	field := strconv.FormatUint(uint64(u.PointID), 10)

	if err := store.HSet(ctx, ks.ChannelValue(u.ChannelID, u.Kind), field, strconv.FormatFloat(u.Value, 'f', -1, 64)); err != nil {
		return fmt.Errorf("writepath: write engineering value: %w", err)
	}
	if u.RawValue != nil {
		if err := store.HSet(ctx, ks.ChannelRaw(u.ChannelID, u.Kind), field, strconv.FormatFloat(*u.RawValue, 'f', -1, 64)); err != nil {
			return fmt.Errorf("writepath: write raw value: %w", err)
		}
	}
	ts := strconv.FormatInt(store.TimeMillis(), 10)
	if err := store.HSet(ctx, ks.ChannelTimestamp(u.ChannelID, u.Kind), field, ts); err != nil {
		return fmt.Errorf("writepath: write timestamp: %w", err)
	}
	return nil
}

// writeC2M writes the engineering value into the target instance
// measurement hash. target has the shape "{iid}:M:{mid}"; C2M never
// cascades further, so no queue entry is produced.
func writeC2M(ctx context.Context, store rtdb.Rtdb, ks rtdb.KeySpace, target string, value float64) error {
	parts := strings.SplitN(target, ":", 3)
	if len(parts) != 3 || parts[1] != "M" {
		return fmt.Errorf("malformed C2M target %q", target)
	}
	instanceID, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return fmt.Errorf("malformed C2M target %q: %w", target, err)
	}
	return store.HSet(ctx, ks.InstanceMeasurement(uint32(instanceID)), parts[2], strconv.FormatFloat(value, 'f', -1, 64))
}

// followC2C parses target ("{cid'}:{kind'}:{pid'}") and produces the next
// cascade hop. Raw value and timestamp propagate verbatim; scale/offset
// are never re-applied at a hop (§4.3's cascade invariant).
func followC2C(target string, u point.Update) (point.Update, error) {
	parts := strings.SplitN(target, ":", 3)
	if len(parts) != 3 {
		return point.Update{}, fmt.Errorf("malformed C2C target %q", target)
	}
	channelID, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return point.Update{}, fmt.Errorf("malformed C2C target %q: %w", target, err)
	}
	pointID, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return point.Update{}, fmt.Errorf("malformed C2C target %q: %w", target, err)
	}

	return point.Update{
		ChannelID:    uint16(channelID),
		Kind:         point.Kind(parts[1]),
		PointID:      uint32(pointID),
		Value:        u.Value,
		RawValue:     u.RawValue,
		CascadeDepth: u.CascadeDepth + 1,
	}, nil
}
