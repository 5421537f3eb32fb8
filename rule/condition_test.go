package rule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"voltageems.io/core/rtdb/memrtdb"
)

func TestCondition_PlainKeyNumericComparison(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()
	require.NoError(t, store.Set(ctx, "sensor:temp", "42.5"))

	c := Condition{Source: "sensor:temp", Op: Gt, Value: 40}
	ok, err := c.evaluate(ctx, store)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCondition_DotPathResolvesToHashField(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()
	require.NoError(t, store.HSet(ctx, "instance:7:measurement", "pressure", "101.3"))

	c := Condition{Source: "instance:7:measurement.pressure", Op: Lte, Value: 102}
	ok, err := c.evaluate(ctx, store)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCondition_MissingSourceIsFalseNotError(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()

	c := Condition{Source: "does:not:exist", Op: Eq, Value: 1}
	ok, err := c.evaluate(ctx, store)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCondition_NotExistsTrueWhenSourceMissing(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()

	c := Condition{Source: "does:not:exist", Op: NotExists}
	ok, err := c.evaluate(ctx, store)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCondition_NonNumericSourceAgainstNumericOpIsFalse(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()
	require.NoError(t, store.Set(ctx, "mode", "auto"))

	c := Condition{Source: "mode", Op: Gt, Value: 1}
	ok, err := c.evaluate(ctx, store)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCondition_BetweenRequiresExactlyTwoValues(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()
	require.NoError(t, store.Set(ctx, "x", "5"))

	c := Condition{Source: "x", Op: Between, Values: []float64{1}}
	_, err := c.evaluate(ctx, store)
	require.Error(t, err)
}

func TestConditionGroup_AndShortCircuits(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()
	require.NoError(t, store.Set(ctx, "a", "1"))
	// "b" deliberately left unset.

	g := ConditionGroup{
		Operator: And,
		Children: []Node{
			Condition{Source: "a", Op: Eq, Value: 1},
			Condition{Source: "b", Op: Eq, Value: 1},
			// Would return an error if evaluated; the false "b" stops it.
			Condition{Source: "a", Op: Between, Values: []float64{1}},
		},
	}
	ok, err := g.Evaluate(ctx, store)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConditionGroup_OrShortCircuits(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()
	require.NoError(t, store.Set(ctx, "a", "1"))

	g := ConditionGroup{
		Operator: Or,
		Children: []Node{
			Condition{Source: "a", Op: Eq, Value: 1},
			Condition{Source: "nonexistent", Op: Eq, Value: 1},
			// Would return an error if evaluated; the true "a" stops it.
			Condition{Source: "a", Op: Between, Values: []float64{1}},
		},
	}
	ok, err := g.Evaluate(ctx, store)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestConditionGroup_VacuousAndIsTrueVacuousOrIsFalse(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()

	andGroup := ConditionGroup{Operator: And}
	ok, err := andGroup.Evaluate(ctx, store)
	require.NoError(t, err)
	require.True(t, ok)

	orGroup := ConditionGroup{Operator: Or}
	ok, err = orGroup.Evaluate(ctx, store)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConditionGroup_NestedGroups(t *testing.T) {
	ctx := context.Background()
	store := memrtdb.New()
	require.NoError(t, store.Set(ctx, "a", "1"))
	require.NoError(t, store.Set(ctx, "b", "2"))

	g := ConditionGroup{
		Operator: And,
		Children: []Node{
			Condition{Source: "a", Op: Eq, Value: 1},
			ConditionGroup{
				Operator: Or,
				Children: []Node{
					Condition{Source: "b", Op: Eq, Value: 99},
					Condition{Source: "b", Op: Eq, Value: 2},
				},
			},
		},
	}
	ok, err := g.Evaluate(ctx, store)
	require.NoError(t, err)
	require.True(t, ok)
}
