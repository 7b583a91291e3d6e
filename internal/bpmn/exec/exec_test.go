package exec_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpmnkit/engine/internal/bpmn/bctx"
	"github.com/bpmnkit/engine/internal/bpmn/correlation"
	"github.com/bpmnkit/engine/internal/bpmn/events"
	"github.com/bpmnkit/engine/internal/bpmn/exec"
	"github.com/bpmnkit/engine/internal/bpmn/model"
)

func newStore() *bctx.Store { return bctx.New(nil) }

func newRunContext(e *model.Element, deps *exec.Deps) *exec.RunContext {
	return &exec.RunContext{
		InstanceID: "inst-1",
		Element:    e,
		Store:      bctx.New(nil),
		Emit:       func(events.Event) {},
		Deps:       deps,
	}
}

func TestDefaultRegistry_InstantKindsCompleteImmediately(t *testing.T) {
	r := exec.NewDefaultRegistry()
	for _, kind := range []model.ElementKind{model.KindStartEvent, model.KindEndEvent, model.KindTask, model.KindManualTask} {
		ex, err := r.Lookup(kind)
		require.NoError(t, err)
		e := &model.Element{ID: "e1", Kind: kind}
		_, err = ex.Execute(context.Background(), newRunContext(e, nil))
		assert.NoError(t, err)
	}
}

func TestRegistry_LookupUnregisteredKindErrors(t *testing.T) {
	r := exec.NewRegistry()
	_, err := r.Lookup(model.KindScriptTask)
	assert.Error(t, err)
}

func TestScriptTask_AssignsResultVariable(t *testing.T) {
	r := exec.NewDefaultRegistry()
	ex, err := r.Lookup(model.KindScriptTask)
	require.NoError(t, err)

	e := &model.Element{
		ID:   "compute",
		Kind: model.KindScriptTask,
		Properties: map[string]any{
			"script":         "context.get('num1') + context.get('num2')",
			"resultVariable": "sum",
		},
	}
	rc := newRunContext(e, nil)
	rc.Store.Set("num1", int64(2))
	rc.Store.Set("num2", int64(3))

	result, err := ex.Execute(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, "sum", result.ResultVariable)
	assert.EqualValues(t, 5, rc.Store.Get("sum"))
}

func TestScriptTask_RejectsUnsupportedFormat(t *testing.T) {
	r := exec.NewDefaultRegistry()
	ex, _ := r.Lookup(model.KindScriptTask)
	e := &model.Element{ID: "compute", Kind: model.KindScriptTask, Properties: map[string]any{"scriptFormat": "python", "script": "1+1"}}
	_, err := ex.Execute(context.Background(), newRunContext(e, nil))
	assert.Error(t, err)
}

func TestBusinessRuleTask_DelegatesToEvaluator(t *testing.T) {
	r := exec.NewDefaultRegistry()
	ex, _ := r.Lookup(model.KindBusinessRuleTask)
	e := &model.Element{
		ID:         "rule",
		Kind:       model.KindBusinessRuleTask,
		Properties: map[string]any{"decisionRef": "approve-small-claims", "resultVariable": "decision"},
	}
	deps := &exec.Deps{Decisions: &exec.TableDecisionEvaluator{
		Table: map[string]map[string]any{"approve-small-claims": {"approved": true}},
	}}
	rc := newRunContext(e, deps)

	result, err := ex.Execute(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, "decision", result.ResultVariable)
	assert.Equal(t, map[string]any{"approved": true}, rc.Store.Get("decision"))
}

func TestBusinessRuleTask_UnknownDecisionRefErrors(t *testing.T) {
	r := exec.NewDefaultRegistry()
	ex, _ := r.Lookup(model.KindBusinessRuleTask)
	e := &model.Element{ID: "rule", Kind: model.KindBusinessRuleTask, Properties: map[string]any{"decisionRef": "missing"}}
	deps := &exec.Deps{Decisions: &exec.TableDecisionEvaluator{Table: map[string]map[string]any{}}}
	_, err := ex.Execute(context.Background(), newRunContext(e, deps))
	assert.Error(t, err)
}

func TestUserTask_SuspendsThenResumesOnCorrelationPublish(t *testing.T) {
	r := exec.NewDefaultRegistry()
	ex, _ := r.Lookup(model.KindUserTask)
	e := &model.Element{ID: "approval", Kind: model.KindUserTask, Properties: map[string]any{"assignee": "alice"}}
	bus := correlation.New(0)
	deps := &exec.Deps{Correlation: bus}
	rc := newRunContext(e, deps)

	done := make(chan struct {
		res exec.Result
		err error
	}, 1)
	go func() {
		res, err := ex.Execute(context.Background(), rc)
		done <- struct {
			res exec.Result
			err error
		}{res, err}
	}()

	time.Sleep(20 * time.Millisecond)
	bus.Publish(exec.UserTaskKey("inst-1", "approval"), map[string]any{"decision": "approved", "comments": "looks good"})

	select {
	case out := <-done:
		require.NoError(t, out.err)
	case <-time.After(time.Second):
		t.Fatal("userTask did not resume after publish")
	}

	assert.Equal(t, "approved", rc.Store.Get("approval_decision"))
	assert.Equal(t, "looks good", rc.Store.Get("approval_comments"))
}

func TestReceiveTask_TimesOutWithoutDelivery(t *testing.T) {
	r := exec.NewDefaultRegistry()
	ex, _ := r.Lookup(model.KindReceiveTask)
	e := &model.Element{
		ID:   "wait-for-payment",
		Kind: model.KindReceiveTask,
		Properties: map[string]any{
			"messageRef":     "payment.received",
			"correlationKey": "${orderId}",
			"timeout":        "0.05",
		},
	}
	deps := &exec.Deps{Correlation: correlation.New(0)}
	rc := newRunContext(e, deps)
	rc.Store.Set("orderId", "order-42")

	_, err := ex.Execute(context.Background(), rc)
	assert.Error(t, err)
}

func TestReceiveTask_MergesDeliveredPayload(t *testing.T) {
	r := exec.NewDefaultRegistry()
	ex, _ := r.Lookup(model.KindReceiveTask)
	e := &model.Element{
		ID:   "wait-for-payment",
		Kind: model.KindReceiveTask,
		Properties: map[string]any{
			"messageRef":     "payment.received",
			"correlationKey": "${orderId}",
		},
	}
	bus := correlation.New(0)
	deps := &exec.Deps{Correlation: bus}
	rc := newRunContext(e, deps)
	rc.Store.Set("orderId", "order-42")

	go func() {
		time.Sleep(10 * time.Millisecond)
		bus.Publish(correlation.Key{MessageRef: "payment.received", CorrelationKey: "order-42"}, map[string]any{"amount": 100})
	}()

	_, err := ex.Execute(context.Background(), rc)
	require.NoError(t, err)
	assert.EqualValues(t, 100, rc.Store.Get("amount"))
}

func TestTimerTask_CompletesAfterDelay(t *testing.T) {
	r := exec.NewDefaultRegistry()
	ex, _ := r.Lookup(model.KindTimerIntermediateCatch)
	e := &model.Element{
		ID:         "wait",
		Kind:       model.KindTimerIntermediateCatch,
		Properties: map[string]any{"timerType": "duration", "timerDuration": "PT0.01S"},
	}
	start := time.Now()
	_, err := ex.Execute(context.Background(), newRunContext(e, nil))
	require.NoError(t, err)
	assert.True(t, time.Since(start) >= 10*time.Millisecond)
}

func TestTimerTask_CancellableMidWait(t *testing.T) {
	r := exec.NewDefaultRegistry()
	ex, _ := r.Lookup(model.KindTimerIntermediateCatch)
	e := &model.Element{
		ID:         "wait",
		Kind:       model.KindTimerIntermediateCatch,
		Properties: map[string]any{"timerType": "duration", "timerDuration": "PT10S"},
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err := ex.Execute(ctx, newRunContext(e, nil))
	assert.Error(t, err)
}
