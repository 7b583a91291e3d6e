package exec

import (
	"context"

	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
	"github.com/bpmnkit/engine/internal/bpmn/model"
)

// executeSubProcess recursively schedules the element's child graph as a
// sub-instance sharing the parent's context store (spec §4.5 subProcess
// row). The scheduler, injected as Deps.SubProcess, owns the actual
// frontier/join machinery; this executor only builds the child Process view
// and blocks until it reports completion.
func executeSubProcess(ctx context.Context, rc *RunContext) (Result, error) {
	e := rc.Element
	if !e.Expanded {
		return Result{}, bpmnerr.New(bpmnerr.KindMalformedDefinition, "subProcess %s is not expanded (missing childElements/childConnections)", e.ID)
	}
	if rc.Deps == nil || rc.Deps.SubProcess == nil {
		return Result{}, bpmnerr.New(bpmnerr.KindExecutorException, "subProcess %s: no sub-process runner configured", e.ID)
	}

	child := &model.Process{
		ID:          e.ID,
		Name:        e.Name,
		Elements:    e.ChildElements,
		Connections: e.ChildConnections,
	}
	if err := rc.Deps.SubProcess.RunSubProcess(ctx, rc.InstanceID, child, rc.Store); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}

// executeCallActivity locates the referenced process definition and spawns
// either a synchronous (blocking) or asynchronous (fire-and-continue)
// sub-instance (spec §4.5 callActivity row).
func executeCallActivity(ctx context.Context, rc *RunContext) (Result, error) {
	e := rc.Element
	calledElement := e.StringProp("calledElement")
	if calledElement == "" {
		return Result{}, bpmnerr.New(bpmnerr.KindMalformedDefinition, "callActivity %s requires calledElement", e.ID)
	}
	if rc.Deps == nil || rc.Deps.SubProcess == nil {
		return Result{}, bpmnerr.New(bpmnerr.KindExecutorException, "callActivity %s: no sub-process runner configured", e.ID)
	}

	async := e.BoolProp("async")
	inherit := e.BoolProp("inheritVariables")
	if err := rc.Deps.SubProcess.RunCallActivity(ctx, rc.InstanceID, calledElement, async, inherit, rc.Store); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}
