package exec

import (
	"context"

	"github.com/bpmnkit/engine/internal/bpmn/correlation"
	"github.com/bpmnkit/engine/internal/bpmn/events"
	"github.com/bpmnkit/engine/internal/bpmn/model"
)

// userTaskMessageRef is the synthetic correlation messageRef namespace used
// to resume a suspended userTask (spec §4.5 userTask row: "Suspend until an
// observer message completes the task"). Reusing the correlation bus (C7)
// for this rendezvous, instead of a second suspension mechanism, keeps the
// engine to the single suspend/resume primitive spec §4.6 already defines;
// the engine façade's CompleteUserTask publishes into this same namespace.
const userTaskMessageRef = "userTask"

// UserTaskKey returns the correlation Key a userTask with elementID
// suspended on instanceID waits on, so the engine façade can publish the
// completion without importing this package's internals.
func UserTaskKey(instanceID, elementID string) correlation.Key {
	return correlation.Key{MessageRef: userTaskMessageRef, CorrelationKey: instanceID + "/" + elementID}
}

// executeUserTask emits userTask.created, then suspends on the correlation
// bus until an observer completes the task (spec §4.5 userTask row). The
// decision and comments are recorded under `${elementId}_decision` and
// `${elementId}_comments`.
func executeUserTask(ctx context.Context, rc *RunContext) (Result, error) {
	e := rc.Element

	rc.Emit(events.UserTaskCreated{
		Base: events.NewBase(events.TypeUserTaskCreated, rc.InstanceID, e.ID),
		Data: events.UserTaskCreatedPayload{
			Assignee:        e.StringProp("assignee"),
			CandidateGroups: e.StringSliceProp("candidateGroups"),
			Priority:        e.StringProp("priority"),
			DueDate:         e.StringProp("dueDate"),
			FormFields:      formFields(e),
		},
	})

	if rc.Deps == nil || rc.Deps.Correlation == nil {
		return Result{}, nil
	}

	key := UserTaskKey(rc.InstanceID, e.ID)
	deadline := timeoutProp(e, 0)
	future, err := rc.Deps.Correlation.Wait(key, deadline)
	if err != nil {
		return Result{}, err
	}

	payload, err := future.Await(ctx)
	if err != nil {
		if ctx.Err() != nil {
			rc.Deps.Correlation.Cancel(key)
		}
		return Result{}, err
	}

	decision, _ := payload["decision"].(string)
	comments, _ := payload["comments"].(string)
	rc.Store.Set(e.ID+"_decision", decision)
	rc.Store.Set(e.ID+"_comments", comments)

	return Result{}, nil
}

func formFields(e *model.Element) map[string]any {
	v, _ := model.Property[map[string]any](e, "formFields")
	return v
}
