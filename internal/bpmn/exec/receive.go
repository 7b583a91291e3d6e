package exec

import (
	"context"

	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
	"github.com/bpmnkit/engine/internal/bpmn/correlation"
	"github.com/bpmnkit/engine/internal/bpmn/expr"
)

// executeReceiveTask registers a waiter with the correlation bus and
// suspends until the bus delivers a matching publish or the timeout elapses
// (spec §4.5 receiveTask row, §4.6). On delivery, the payload is merged into
// context.
func executeReceiveTask(ctx context.Context, rc *RunContext) (Result, error) {
	e := rc.Element
	messageRef := e.StringProp("messageRef")
	if messageRef == "" {
		return Result{}, bpmnerr.New(bpmnerr.KindMalformedDefinition, "receiveTask %s requires a messageRef", e.ID)
	}
	corrKey := expr.Resolve(e.StringProp("correlationKey"), rc.Store)

	if rc.Deps == nil || rc.Deps.Correlation == nil {
		return Result{}, bpmnerr.New(bpmnerr.KindExecutorException, "receiveTask %s: no correlation bus configured", e.ID)
	}

	key := correlation.Key{MessageRef: messageRef, CorrelationKey: corrKey}
	deadline := timeoutProp(e, 0)

	future, err := rc.Deps.Correlation.Wait(key, deadline)
	if err != nil {
		return Result{}, err
	}

	if e.BoolProp("useWebhook") && rc.Deps.Log != nil {
		rc.Deps.Log.Debug(ctx, "receiveTask awaiting webhook delivery", "elementId", e.ID, "messageRef", messageRef, "correlationKey", corrKey)
	}

	payload, err := future.Await(ctx)
	if err != nil {
		if ctx.Err() != nil {
			rc.Deps.Correlation.Cancel(key)
		}
		return Result{}, err
	}

	rc.Store.Merge(payload)
	return Result{}, nil
}
