package rule

import (
	"context"
	"time"

	"voltageems.io/core/rtdb"
)

// Rule ties a condition tree (or a DAG of them), an action list, and a
// cooldown together under one id (§4.8).
type Rule struct {
	ID       uint32
	Name     string
	Cooldown time.Duration

	// Exactly one of Conditions or DAG should be set: Conditions for the
	// plain AND/OR tree form, DAG for rules that chain sub-conditions and
	// actions with data dependencies.
	Conditions *ConditionGroup
	DAG        *DAG
	Actions    []Action
}

// Engine evaluates Rules against an RTDB store, dispatching matched
// actions through a Registry and recording a bounded trace per rule.
type Engine struct {
	store    rtdb.Rtdb
	registry *Registry
	cooldown *CooldownTracker
	trace    *TraceHistory
}

func NewEngine(store rtdb.Rtdb, registry *Registry, trace *TraceHistory) *Engine {
	return &Engine{store: store, registry: registry, cooldown: NewCooldownTracker(), trace: trace}
}

// Execute evaluates r's conditions (or runs its DAG) and, on a match,
// dispatches its Actions. A rule within its cooldown window is reported
// as not matched without evaluating anything.
func (e *Engine) Execute(ctx context.Context, r Rule, now time.Time) Trace {
	start := time.Now()
	t := Trace{RuleID: r.ID, Timestamp: now}

	if e.cooldown.Active(r.ID, r.Cooldown, now) {
		t.ConditionsMet = false
		t.Success = true
		t.Error = "cooldown active"
		t.DurationMS = sinceMS(start)
		e.trace.Record(t)
		return t
	}

	met, err := e.evaluate(ctx, r)
	if err != nil {
		t.Error = err.Error()
		t.DurationMS = sinceMS(start)
		e.trace.Record(t)
		return t
	}
	t.ConditionsMet = met

	if !met {
		t.Success = true
		t.DurationMS = sinceMS(start)
		e.trace.Record(t)
		return t
	}

	if r.DAG == nil {
		results := e.registry.Execute(ctx, r.Actions)
		t.ActionsExecuted = len(results)
		for _, res := range results {
			if res.Err != nil {
				t.Error = res.Err.Error()
			}
		}
	}
	t.Success = t.Error == ""
	if t.Success {
		e.cooldown.MarkFired(r.ID, now)
	}
	t.DurationMS = sinceMS(start)
	e.trace.Record(t)
	return t
}

func (e *Engine) evaluate(ctx context.Context, r Rule) (bool, error) {
	if r.DAG != nil {
		result := r.DAG.Execute(ctx, e.store, e.registry)
		for _, nr := range result.Nodes {
			if nr.Status == NodeFailed || nr.Status == NodeUnreachable {
				return false, nil
			}
		}
		return true, nil
	}
	if r.Conditions == nil {
		return true, nil
	}
	return r.Conditions.Evaluate(ctx, e.store)
}

func sinceMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
