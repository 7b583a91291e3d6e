package engine

import (
	"github.com/bpmnkit/engine/internal/bpmn/correlation"
	"github.com/bpmnkit/engine/internal/bpmn/exec"
)

// PublishMessage implements spec §4.10's publishMessage operation: delivers
// payload to whichever receiveTask (or boundary/intermediate message event)
// is waiting on (messageRef, correlationKey) across every instance, since
// the correlation bus is shared process-wide rather than scoped to one
// instance (spec §4.6).
func (e *Engine) PublishMessage(messageRef, correlationKey string, payload map[string]any) {
	e.correlation.Publish(correlation.Key{MessageRef: messageRef, CorrelationKey: correlationKey}, payload)
}

// CompleteUserTask implements spec §4.10's completeUserTask operation by
// publishing into the synthetic correlation namespace userTask executors
// suspend on (exec.UserTaskKey), reusing the same rendezvous primitive
// rather than a second suspend/resume mechanism (see DESIGN.md's Open
// Question decision).
func (e *Engine) CompleteUserTask(instanceID, elementID, decision, comments, user string) {
	payload := map[string]any{"decision": decision, "comments": comments}
	if user != "" {
		payload["user"] = user
	}
	e.correlation.Publish(exec.UserTaskKey(instanceID, elementID), payload)
}
