package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"voltageems.io/core/logging"
	"voltageems.io/core/point"
	"voltageems.io/core/protocol"
	"voltageems.io/core/routing"
	"voltageems.io/core/rtdb"
	"voltageems.io/core/writepath"
)

// Engine owns one protocol.Adapter exclusively, scheduling polls,
// draining the command TODO queues, and running reconnect with backoff.
// Poll and command loops serialize adapter access through adapterMu — the
// "asynchronous mutex" of spec §4.5, a plain sync.Mutex since Go's runtime
// does not expose a writer-preferring variant and the two callers never
// starve each other in practice (command arrival is comparatively rare).
type Engine struct {
	cfg     Config
	adapter protocol.Adapter
	store   rtdb.Rtdb
	ks      rtdb.KeySpace
	cache   *routing.Cache

	phaseMu sync.Mutex
	phase   Phase

	adapterMu sync.Mutex

	log *logrus.Entry
}

// New builds an Engine for one channel. cache may be nil, in which case
// polled readings are written to the RTDB but never fanned out via
// routing (useful for channels not yet wired into any route).
func New(cfg Config, adapter protocol.Adapter, store rtdb.Rtdb, ks rtdb.KeySpace, cache *routing.Cache) *Engine {
	if len(cfg.Cadences) == 0 {
		cfg.Cadences = DefaultCadences(time.Second)
	}
	return &Engine{
		cfg:     cfg,
		adapter: adapter,
		store:   store,
		ks:      ks,
		cache:   cache,
		phase:   PhaseCreated,
		log:     logging.Logger.WithField("channel_id", cfg.ChannelID),
	}
}

func (e *Engine) Phase() Phase {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()
	return e.phase
}

// transition moves the engine to target, rejecting any move not present
// in ValidTransitions. Callers own the decision of which edge to take;
// transition only enforces that the edge is legal.
func (e *Engine) transition(target Phase) error {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()
	if !e.phase.CanTransitionTo(target) {
		return fmt.Errorf("channel %d: invalid transition %s -> %s", e.cfg.ChannelID, e.phase, target)
	}
	e.phase = target
	return nil
}

func (e *Engine) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.ReconnectMinBackoff
	b.MaxInterval = e.cfg.ReconnectMaxBackoff
	b.MaxElapsedTime = 0 // retry forever; the caller's ctx bounds the run
	return b
}

// Run drives the channel's full lifecycle until ctx is cancelled:
// Connecting -> Polling/Backoff -> (Commanding interleaved) -> Stopped.
// It returns context.Canceled on a clean shutdown (whether ctx was
// cancelled or its deadline passed) and otherwise blocks forever,
// since the reconnect loop treats every adapter error as recoverable.
func (e *Engine) Run(ctx context.Context) error {
	_ = e.transition(PhaseConnecting)
	b := e.newBackoff()

	for {
		if ctx.Err() != nil {
			return e.stop()
		}

		if err := e.connectWithState(ctx); err != nil {
			d := b.NextBackOff()
			e.log.WithError(err).WithField("retry_in", d).Warn("connect failed, backing off")
			select {
			case <-time.After(d):
				_ = e.transition(PhaseConnecting)
				continue
			case <-ctx.Done():
				return e.stop()
			}
		}
		b.Reset()

		if err := e.transition(PhasePolling); err != nil {
			return err
		}

		runCtx, cancel := context.WithCancel(ctx)
		g, gctx := errgroup.WithContext(runCtx)
		g.Go(func() error { return e.pollLoop(gctx) })
		g.Go(func() error { return e.commandLoop(gctx) })
		err := g.Wait()
		cancel()

		if ctx.Err() != nil {
			return e.stop()
		}
		e.log.WithError(err).Warn("channel loop exited, reconnecting")
		_ = e.transition(PhaseBackoff)
		_ = e.transition(PhaseConnecting)
	}
}

func (e *Engine) connectWithState(ctx context.Context) error {
	e.adapterMu.Lock()
	defer e.adapterMu.Unlock()

	if err := e.adapter.Connect(ctx); err != nil {
		_ = e.transition(PhaseBackoff)
		return err
	}
	return nil
}

func (e *Engine) stop() error {
	e.adapterMu.Lock()
	_ = e.adapter.Disconnect(context.Background())
	e.adapterMu.Unlock()
	_ = e.transition(PhaseStopped)
	return context.Canceled
}

// pollLoop runs one ticker per cadence group; ticks do not overlap within
// a group (a long-running poll defers, never queues, the next tick).
func (e *Engine) pollLoop(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(e.cfg.Cadences))

	for _, group := range e.cfg.Cadences {
		wg.Add(1)
		go func(g CadenceGroup) {
			defer wg.Done()
			if err := e.runCadence(ctx, g); err != nil && ctx.Err() == nil {
				select {
				case errCh <- err:
				default:
				}
			}
		}(group)
	}
	wg.Wait()
	close(errCh)
	return <-errCh
}

func (e *Engine) runCadence(ctx context.Context, group CadenceGroup) error {
	ticker := time.NewTicker(group.Interval)
	defer ticker.Stop()

	var busy sync.Mutex
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !busy.TryLock() {
				continue // previous poll still in flight; defer, don't queue
			}
			err := e.pollAndWrite(ctx, group)
			busy.Unlock()
			if err != nil {
				return err
			}
		}
	}
}

func (e *Engine) pollAndWrite(ctx context.Context, group CadenceGroup) error {
	e.adapterMu.Lock()
	batch, err := e.adapter.PollOnce(ctx)
	e.adapterMu.Unlock()
	if err != nil {
		return fmt.Errorf("poll_once: %w", err)
	}
	if len(batch.Readings) == 0 {
		return nil
	}

	updates := make([]point.Update, 0, len(batch.Readings))
	for _, r := range batch.Readings {
		if !group.includes(r.PointID) {
			continue
		}
		raw := r.RawValue
		updates = append(updates, point.Update{
			ChannelID: e.cfg.ChannelID,
			Kind:      r.Kind,
			PointID:   r.PointID,
			Value:     r.Engineering,
			RawValue:  &raw,
		})
	}
	if len(updates) == 0 {
		return nil
	}

	maxDepth := e.cfg.MaxC2CDepth
	if maxDepth == 0 {
		maxDepth = writepath.MaxC2CDepth
	}
	if err := writepath.Batch(ctx, e.store, e.ks, e.cache, updates, maxDepth); err != nil {
		e.log.WithError(err).Error("write_batch failed")
	}
	return nil
}

// commandLoop alternates a short-timeout BLPop across the Control and
// Adjustment TODO queues, preserving each queue's own FIFO order
// (§4.6's "commands to the same channel are executed in arrival order"
// holds per kind; cross-kind interleaving is dispatcher-decided, recorded
// as an open question in DESIGN.md).
func (e *Engine) commandLoop(ctx context.Context) error {
	queues := []rtdbQueue{
		{kind: point.Control, key: e.ks.ChannelTODO(e.cfg.ChannelID, point.Control)},
		{kind: point.Adjustment, key: e.ks.ChannelTODO(e.cfg.ChannelID, point.Adjustment)},
	}
	timeout := e.cfg.CommandQueueTimeout
	if timeout <= 0 {
		timeout = time.Second
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		for _, q := range queues {
			raw, ok, err := e.store.BLPop(ctx, q.key, timeout)
			if err != nil {
				return fmt.Errorf("blpop %s: %w", q.key, err)
			}
			if !ok {
				continue
			}
			if err := e.handleCommand(ctx, q.kind, raw); err != nil {
				e.log.WithError(err).Error("command handling failed")
			}
		}
	}
}

type rtdbQueue struct {
	kind point.Kind
	key  string
}

func (e *Engine) handleCommand(ctx context.Context, kind point.Kind, raw string) error {
	msg, err := decodeCommand(raw)
	if err != nil {
		return fmt.Errorf("decode command: %w", err)
	}

	if err := e.transition(PhaseCommanding); err != nil {
		return err
	}
	defer func() { _ = e.transition(PhasePolling) }()

	e.adapterMu.Lock()
	var writeErr error
	if kind == point.Control {
		mode := protocol.Latching
		if msg.Pulse {
			mode = protocol.Pulse
		}
		_, writeErr = e.adapter.WriteControl(ctx, []protocol.ControlCommand{{
			PointID:         msg.PointID,
			Value:           msg.Value != 0,
			Mode:            mode,
			PulseDurationMs: msg.PulseDurationMs,
		}})
	} else {
		_, writeErr = e.adapter.WriteAdjustment(ctx, []protocol.AdjustmentCommand{{PointID: msg.PointID, Value: msg.Value}})
	}
	e.adapterMu.Unlock()

	result := CommandResult{RequestID: msg.RequestID, PointID: msg.PointID, Success: writeErr == nil}
	if writeErr != nil {
		result.Error = writeErr.Error()
	}
	encoded, encErr := encodeResult(result)
	if encErr != nil {
		return encErr
	}
	if err := e.store.Set(ctx, e.ks.CommandResult(e.cfg.ChannelID, msg.RequestID), encoded); err != nil {
		return err
	}
	_ = e.store.Publish(ctx, e.ks.CommandNotify(e.cfg.ChannelID), encoded)
	return writeErr
}
