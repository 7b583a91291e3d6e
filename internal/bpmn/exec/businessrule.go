package exec

import (
	"context"

	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
)

// executeBusinessRuleTask delegates to the injected DecisionEvaluator and
// completes instantly (spec §4.5 businessRuleTask row).
func executeBusinessRuleTask(ctx context.Context, rc *RunContext) (Result, error) {
	e := rc.Element
	decisionRef := e.StringProp("decisionRef")
	resultVar := e.StringProp("resultVariable")
	if resultVar == "" {
		resultVar = "result"
	}

	if rc.Deps == nil || rc.Deps.Decisions == nil {
		return Result{}, bpmnerr.New(bpmnerr.KindExecutorException, "businessRuleTask %s: no decision evaluator configured", e.ID)
	}

	output, err := rc.Deps.Decisions.Evaluate(ctx, decisionRef, rc.Store.Snapshot())
	if err != nil {
		return Result{}, err
	}
	rc.Store.Set(resultVar, output)
	return Result{ResultVariable: resultVar}, nil
}

// TableDecisionEvaluator is a simple in-memory DecisionEvaluator backed by a
// static decisionRef → output table, matching spec.md's framing of the
// decision collaborator as external while giving tests something concrete
// to exercise.
type TableDecisionEvaluator struct {
	Table map[string]map[string]any
}

func (t *TableDecisionEvaluator) Evaluate(ctx context.Context, decisionRef string, input map[string]any) (map[string]any, error) {
	out, ok := t.Table[decisionRef]
	if !ok {
		return nil, bpmnerr.New(bpmnerr.KindExecutorException, "businessRuleTask: no decision registered for decisionRef %q", decisionRef)
	}
	return out, nil
}
