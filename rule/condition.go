// Package rule is the Rule Engine (spec §4.8): condition trees and DAGs
// evaluated against RTDB source values, an action registry, cooldowns,
// and a bounded per-rule execution trace.
package rule

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"voltageems.io/core/rtdb"
)

// Op is a leaf condition's comparison operator.
type Op string

const (
	Eq          Op = "eq"
	Neq         Op = "neq"
	Gt          Op = "gt"
	Gte         Op = "gte"
	Lt          Op = "lt"
	Lte         Op = "lte"
	Contains    Op = "contains"
	NotContains Op = "not_contains"
	In          Op = "in"
	NotIn       Op = "not_in"
	Between     Op = "between"
	Exists      Op = "exists"
	NotExists   Op = "not_exists"
)

// GroupOp is a condition group's boolean combinator.
type GroupOp string

const (
	And GroupOp = "and"
	Or  GroupOp = "or"
)

// Node is anything a ConditionGroup can hold as a child: a leaf Condition
// or a nested ConditionGroup.
type Node interface {
	evaluate(ctx context.Context, store rtdb.Rtdb) (bool, error)
}

// Condition is a leaf: fetch Source from the RTDB, coerce it, and compare
// against Value (or Values, for In/NotIn/Between). A missing source
// evaluates to false without returning an error — §4.8's "missing sources
// evaluate to false and do not abort evaluation".
type Condition struct {
	// Source is either a plain RTDB key (Get) or "key.field" for a hash
	// lookup (HGet) — the dot-path convention spec §4.8 names directly.
	Source string
	Op     Op
	Value  float64
	Text   string
	Values []float64 // In/NotIn/Between operand list
}

func (c Condition) evaluate(ctx context.Context, store rtdb.Rtdb) (bool, error) {
	raw, ok, err := fetchSource(ctx, store, c.Source)
	if err != nil {
		return false, fmt.Errorf("rule: fetch source %q: %w", c.Source, err)
	}
	if !ok {
		if c.Op == NotExists {
			return true, nil
		}
		return false, nil
	}
	if c.Op == Exists {
		return true, nil
	}
	if c.Op == NotExists {
		return false, nil
	}

	switch c.Op {
	case Contains:
		return strings.Contains(raw, c.Text), nil
	case NotContains:
		return !strings.Contains(raw, c.Text), nil
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return false, nil // non-numeric source against a numeric op: not a match, not an error
	}

	switch c.Op {
	case Eq:
		return value == c.Value, nil
	case Neq:
		return value != c.Value, nil
	case Gt:
		return value > c.Value, nil
	case Gte:
		return value >= c.Value, nil
	case Lt:
		return value < c.Value, nil
	case Lte:
		return value <= c.Value, nil
	case In:
		return containsFloat(c.Values, value), nil
	case NotIn:
		return !containsFloat(c.Values, value), nil
	case Between:
		if len(c.Values) != 2 {
			return false, fmt.Errorf("rule: between requires exactly 2 values, got %d", len(c.Values))
		}
		lo, hi := c.Values[0], c.Values[1]
		return value >= lo && value <= hi, nil
	default:
		return false, fmt.Errorf("rule: unknown operator %q", c.Op)
	}
}

func containsFloat(values []float64, v float64) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// fetchSource resolves "key" via Get or "key.field" via HGet, the
// dot-path convention grounded on the teacher's
// semantic/runtime.getNestedField dot-notation walker (generalized here
// from nested-map lookup to a one-level RTDB hash field, since RTDB
// hashes are flat).
func fetchSource(ctx context.Context, store rtdb.Rtdb, source string) (string, bool, error) {
	if idx := strings.LastIndex(source, "."); idx >= 0 {
		key, field := source[:idx], source[idx+1:]
		return store.HGet(ctx, key, field)
	}
	return store.Get(ctx, source)
}

// ConditionGroup combines child Nodes with And/Or, short-circuiting in
// declaration order per §4.8.
type ConditionGroup struct {
	Operator GroupOp
	Children []Node
}

func (g ConditionGroup) evaluate(ctx context.Context, store rtdb.Rtdb) (bool, error) {
	if len(g.Children) == 0 {
		return g.Operator == And, nil // vacuous AND is true, vacuous OR is false
	}
	for _, child := range g.Children {
		ok, err := child.evaluate(ctx, store)
		if err != nil {
			return false, err
		}
		if g.Operator == And && !ok {
			return false, nil
		}
		if g.Operator == Or && ok {
			return true, nil
		}
	}
	return g.Operator == And, nil
}

// Evaluate runs the group against store and reports whether it matched.
func (g ConditionGroup) Evaluate(ctx context.Context, store rtdb.Rtdb) (bool, error) {
	return g.evaluate(ctx, store)
}
