package rule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voltageems.io/core/rtdb/memrtdb"
)

func TestEngine_ExecuteRunsActionsWhenConditionsMet(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()
	require.NoError(t, store.Set(ctx, "temp", "95"))

	reg := NewRegistry()
	reg.Register(SetValueExecutor{Store: store})
	engine := NewEngine(store, reg, NewTraceHistory(10))

	r := Rule{
		ID:         1,
		Conditions: &ConditionGroup{Operator: And, Children: []Node{Condition{Source: "temp", Op: Gt, Value: 90}}},
		Actions:    []Action{{Kind: ActionSetValue, Key: "alarm", Value: "high_temp"}},
	}

	trace := engine.Execute(ctx, r, time.Now())
	require.True(t, trace.ConditionsMet)
	require.True(t, trace.Success)
	require.Equal(t, 1, trace.ActionsExecuted)

	got, ok, err := store.Get(ctx, "alarm")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "high_temp", got)
}

func TestEngine_ExecuteSkipsActionsWhenConditionsNotMet(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()
	require.NoError(t, store.Set(ctx, "temp", "10"))

	reg := NewRegistry()
	reg.Register(SetValueExecutor{Store: store})
	engine := NewEngine(store, reg, NewTraceHistory(10))

	r := Rule{
		ID:         1,
		Conditions: &ConditionGroup{Operator: And, Children: []Node{Condition{Source: "temp", Op: Gt, Value: 90}}},
		Actions:    []Action{{Kind: ActionSetValue, Key: "alarm", Value: "high_temp"}},
	}

	trace := engine.Execute(ctx, r, time.Now())
	require.False(t, trace.ConditionsMet)
	require.True(t, trace.Success)

	_, ok, err := store.Get(ctx, "alarm")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEngine_ExecuteRespectsCooldown(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()
	require.NoError(t, store.Set(ctx, "temp", "95"))

	reg := NewRegistry()
	reg.Register(SetValueExecutor{Store: store})
	engine := NewEngine(store, reg, NewTraceHistory(10))

	r := Rule{
		ID:         1,
		Cooldown:   time.Minute,
		Conditions: &ConditionGroup{Operator: And, Children: []Node{Condition{Source: "temp", Op: Gt, Value: 90}}},
		Actions:    []Action{{Kind: ActionSetValue, Key: "fires", Value: "1"}},
	}

	now := time.Now()
	first := engine.Execute(ctx, r, now)
	require.True(t, first.ConditionsMet)

	require.NoError(t, store.Del(ctx, "fires"))
	second := engine.Execute(ctx, r, now.Add(10*time.Second))
	require.False(t, second.ConditionsMet)
	require.Equal(t, "cooldown active", second.Error)

	_, ok, err := store.Get(ctx, "fires")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEngine_ExecuteRecordsTraceHistory(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()
	reg := NewRegistry()
	engine := NewEngine(store, reg, NewTraceHistory(10))

	r := Rule{ID: 7, Conditions: &ConditionGroup{Operator: And}}
	engine.Execute(ctx, r, time.Now())

	history := engine.trace.Recent(7)
	require.Len(t, history, 1)
	require.Equal(t, uint32(7), history[0].RuleID)
}

func TestEngine_ExecuteUsesDAGWhenSet(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()
	require.NoError(t, store.Set(ctx, "gate", "1"))
	reg := NewRegistry()
	reg.Register(SetValueExecutor{Store: store})
	engine := NewEngine(store, reg, NewTraceHistory(10))

	d, err := NewDAG([]DAGNode{
		{ID: "check", Condition: &ConditionGroup{Operator: And, Children: []Node{Condition{Source: "gate", Op: Eq, Value: 1}}}},
		{ID: "act", Requires: []string{"check"}, Action: &Action{Kind: ActionSetValue, Key: "dag_result", Value: "done"}},
	})
	require.NoError(t, err)

	trace := engine.Execute(ctx, Rule{ID: 3, DAG: d}, time.Now())
	require.True(t, trace.ConditionsMet)
	require.True(t, trace.Success)

	got, ok, err := store.Get(ctx, "dag_result")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "done", got)
}
