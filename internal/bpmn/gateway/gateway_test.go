package gateway_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpmnkit/engine/internal/bpmn/bctx"
	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
	"github.com/bpmnkit/engine/internal/bpmn/gateway"
	"github.com/bpmnkit/engine/internal/bpmn/model"
)

func conns(ids ...string) []*model.Connection {
	out := make([]*model.Connection, len(ids))
	for i, id := range ids {
		out[i] = &model.Connection{ID: id}
	}
	return out
}

func TestEvaluate_ExclusiveFirstMatchWins(t *testing.T) {
	gw := &model.Element{ID: "xor1", Kind: model.KindExclusiveGateway}
	store := bctx.New(map[string]any{"sum": 12})
	outgoing := []*model.Connection{
		{ID: "toSuccess", Condition: "${sum} > 10"},
		{ID: "toFailure", Condition: ""},
	}
	dec, err := gateway.Evaluate(gw, outgoing, store)
	require.NoError(t, err)
	require.Len(t, dec.Taken, 1)
	assert.Equal(t, "toSuccess", dec.Taken[0].ID)
	require.Len(t, dec.NotTaken, 1)
	assert.Equal(t, "toFailure", dec.NotTaken[0].ID)
}

func TestEvaluate_ExclusiveFallsBackToDefault(t *testing.T) {
	gw := &model.Element{ID: "xor1", Kind: model.KindExclusiveGateway}
	store := bctx.New(map[string]any{"sum": 8})
	outgoing := []*model.Connection{
		{ID: "toSuccess", Condition: "${sum} > 10"},
		{ID: "toFailure", Condition: ""},
	}
	dec, err := gateway.Evaluate(gw, outgoing, store)
	require.NoError(t, err)
	require.Len(t, dec.Taken, 1)
	assert.Equal(t, "toFailure", dec.Taken[0].ID)
}

func TestEvaluate_ExclusiveNoMatchNoDefault(t *testing.T) {
	gw := &model.Element{ID: "xor1", Kind: model.KindExclusiveGateway}
	store := bctx.New(map[string]any{"sum": 8})
	outgoing := []*model.Connection{
		{ID: "toSuccess", Condition: "${sum} > 10"},
	}
	_, err := gateway.Evaluate(gw, outgoing, store)
	require.Error(t, err)
	assert.Equal(t, bpmnerr.KindNoMatchingPath, bpmnerr.KindOf(err))
}

func TestEvaluate_ParallelTakesAllUnconditionally(t *testing.T) {
	gw := &model.Element{ID: "fork1", Kind: model.KindParallelGateway}
	outgoing := conns("a", "b", "c")
	dec, err := gateway.Evaluate(gw, outgoing, bctx.New(nil))
	require.NoError(t, err)
	assert.Len(t, dec.Taken, 3)
	assert.Empty(t, dec.NotTaken)
}

func TestEvaluate_InclusiveTakesAllTruthy(t *testing.T) {
	gw := &model.Element{ID: "or1", Kind: model.KindInclusiveGateway}
	store := bctx.New(map[string]any{"a": 1, "b": 0})
	outgoing := []*model.Connection{
		{ID: "toA", Condition: "${a} == 1"},
		{ID: "toB", Condition: "${b} == 1"},
		{ID: "toC", Condition: ""},
	}
	dec, err := gateway.Evaluate(gw, outgoing, store)
	require.NoError(t, err)
	assert.Len(t, dec.Taken, 2)
	assert.Len(t, dec.NotTaken, 1)
}

func TestEvaluate_FlowNameNeverAffectsDecision(t *testing.T) {
	gw := &model.Element{ID: "xor1", Kind: model.KindExclusiveGateway}
	store := bctx.New(map[string]any{"sum": 12})
	a := []*model.Connection{{ID: "toSuccess", Name: "Yes", Condition: "${sum} > 10"}, {ID: "toFailure", Condition: ""}}
	b := []*model.Connection{{ID: "toSuccess", Name: "Renamed completely", Condition: "${sum} > 10"}, {ID: "toFailure", Condition: ""}}
	dec1, err := gateway.Evaluate(gw, a, store)
	require.NoError(t, err)
	dec2, err := gateway.Evaluate(gw, b, store)
	require.NoError(t, err)
	assert.Equal(t, dec1.Taken[0].ID, dec2.Taken[0].ID)
}
