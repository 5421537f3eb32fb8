package rule

import (
	"context"
	"fmt"
	"time"

	"voltageems.io/core/rtdb"
)

// ActionKind distinguishes the four action shapes §4.8 defines.
type ActionKind string

const (
	ActionSetValue      ActionKind = "set_value"
	ActionNotify        ActionKind = "notify"
	ActionTriggerAction ActionKind = "trigger_action"
	ActionScript        ActionKind = "script"
)

// Action is one action invocation inside a rule. Fields are a union over
// the four kinds; only the fields relevant to Kind are meaningful.
type Action struct {
	Kind ActionKind

	// SetValue
	Key   string
	Value string
	TTL   time.Duration

	// Notify
	Level      string
	Message    string
	Recipients []string

	// TriggerAction
	InstanceID uint32
	PointID    uint32
	CommandVal float64

	// Script
	FunctionName string
	Args         map[string]any
}

// ActionResult is one action's outcome, collected into a Result even on
// failure — §4.8's "an error in one does not prevent later actions".
type ActionResult struct {
	Action Action
	Err    error
}

// Executor is the capability set an action kind is dispatched to,
// grounded directly on the teacher's executor.Executor
// (CanHandle/Execute/Name).
type Executor interface {
	CanHandle(a Action) bool
	Execute(ctx context.Context, a Action) error
	Name() string
}

// Registry dispatches an Action to the first registered Executor that
// claims it, grounded on executor.Registry's linear CanHandle scan.
type Registry struct {
	executors []Executor
}

func NewRegistry() *Registry { return &Registry{} }

func (r *Registry) Register(e Executor) { r.executors = append(r.executors, e) }

// Execute runs every action in order, collecting a result (success or
// error) per action without aborting on the first failure.
func (r *Registry) Execute(ctx context.Context, actions []Action) []ActionResult {
	results := make([]ActionResult, 0, len(actions))
	for _, a := range actions {
		results = append(results, ActionResult{Action: a, Err: r.dispatch(ctx, a)})
	}
	return results
}

func (r *Registry) dispatch(ctx context.Context, a Action) error {
	for _, e := range r.executors {
		if e.CanHandle(a) {
			return e.Execute(ctx, a)
		}
	}
	return fmt.Errorf("rule: no executor registered for action kind %q", a.Kind)
}

// SetValueExecutor implements ActionSetValue directly against the RTDB —
// the one action kind the rule engine can always satisfy itself, without
// an external executor registered.
type SetValueExecutor struct {
	Store rtdb.Rtdb
}

func (SetValueExecutor) Name() string { return "set_value" }

func (SetValueExecutor) CanHandle(a Action) bool { return a.Kind == ActionSetValue }

// Execute sets a.Key to a.Value, honoring a.TTL (§4.8's `SetValue {key,
// value, ttl?}`) when the configured Store implements rtdb.Expirer
// (memrtdb and redisrtdb both do). Against a store that doesn't, a
// nonzero TTL is silently treated as unsupported and the set is
// permanent — the Rtdb contract itself has no set-with-expiry op.
func (e SetValueExecutor) Execute(ctx context.Context, a Action) error {
	if a.TTL > 0 {
		if ex, ok := e.Store.(rtdb.Expirer); ok {
			return ex.SetEx(ctx, a.Key, a.Value, a.TTL)
		}
	}
	return e.Store.Set(ctx, a.Key, a.Value)
}

// NotifyExecutor implements ActionNotify by publishing the action's
// Message on the configured RTDB pub/sub Channel; the action's Level and
// Recipients are not used.
type NotifyExecutor struct {
	Store   rtdb.Rtdb
	Channel string
}

func (NotifyExecutor) Name() string { return "notify" }

func (NotifyExecutor) CanHandle(a Action) bool { return a.Kind == ActionNotify }

func (e NotifyExecutor) Execute(ctx context.Context, a Action) error {
	return e.Store.Publish(ctx, e.Channel, a.Message)
}
