package engine

import (
	"context"
	"time"

	"github.com/bpmnkit/engine/internal/bpmn/events"
	"github.com/bpmnkit/engine/internal/bpmn/persist"
)

// archiveInstance subscribes its own observer to bc and mirrors every event
// into e.store, recording the run's terminal status when the
// workflow.completed event arrives (seeing TypeWorkflowCompleted ends this
// loop and the deferred Unsubscribe detaches the observer). If the observer's
// channel closes first, the pending batch is flushed and no terminal status
// is recorded.
// A Store failure is logged and otherwise ignored: archiving must never
// slow down or fail a live instance (see package doc on internal/bpmn/persist).
func (e *Engine) archiveInstance(instanceID, processID string, startedAt time.Time) {
	ctx := context.Background()
	if err := e.store.RecordStarted(ctx, persist.RunRecord{
		InstanceID: instanceID,
		ProcessID:  processID,
		Status:     "running",
		StartedAt:  startedAt,
	}); err != nil {
		e.log.Warn(ctx, "persist: failed to record run start", "instance_id", instanceID, "error", err.Error())
	}

	obs, err := e.Subscribe(instanceID)
	if err != nil {
		return
	}
	defer e.Unsubscribe(instanceID, obs)

	const flushSize = 32
	batch := make([]persist.EventRecord, 0, flushSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := e.store.AppendEvents(ctx, instanceID, batch); err != nil {
			e.log.Warn(ctx, "persist: failed to archive events", "instance_id", instanceID, "error", err.Error())
		}
		batch = batch[:0]
	}

	for ev := range obs.Events() {
		batch = append(batch, persist.EventRecord{
			InstanceID: instanceID,
			ElementID:  ev.ElementID(),
			Type:       string(ev.Type()),
			Timestamp:  ev.Timestamp(),
			Payload:    payloadToMap(ev.Payload()),
			Extra:      eventExtra(ev),
		})
		if len(batch) >= flushSize {
			flush()
		}
		if completed, ok := ev.(events.WorkflowCompleted); ok {
			flush()
			errMsg := ""
			if completed.Data.Outcome != "success" {
				errMsg = completed.Data.Outcome
			}
			if err := e.store.RecordFinished(ctx, instanceID, completed.Data.Outcome, completed.Timestamp(), errMsg); err != nil {
				e.log.Warn(ctx, "persist: failed to record run finish", "instance_id", instanceID, "error", err.Error())
			}
			return
		}
	}
	flush()
}

// mirrorToStream subscribes its own observer and forwards every event to
// e.stream until the instance's workflow.completed event arrives. A publish
// failure is logged and dropped rather than retried: the Pulse mirror is a
// durability convenience, never the event path anything in this engine
// depends on.
func (e *Engine) mirrorToStream(instanceID string) {
	ctx := context.Background()
	obs, err := e.Subscribe(instanceID)
	if err != nil {
		return
	}
	defer e.Unsubscribe(instanceID, obs)

	for ev := range obs.Events() {
		if err := e.stream.Send(ctx, ev); err != nil {
			e.log.Warn(ctx, "stream: failed to mirror event", "instance_id", instanceID, "error", err.Error())
		}
		if _, ok := ev.(events.WorkflowCompleted); ok {
			return
		}
	}
}

// eventExtra pulls an event's ServerData side channel (spec §3.4) out into
// persist.EventRecord.Extra, independent of Payload so tool-call diagnostic
// payloads stay out of the wire-shaped Payload map. Only task.tool.end
// events carry ServerData today; every other event type archives with a
// nil Extra.
func eventExtra(ev events.Event) map[string]any {
	toolEnd, ok := ev.(events.TaskToolEnd)
	if !ok || len(toolEnd.Data.ServerData) == 0 {
		return nil
	}
	return map[string]any{"server_data": toolEnd.Data.ServerData}
}

// payloadToMap coerces an event's Payload() into a map for storage; a nil
// payload stays nil, and any other non-map payload (a struct or scalar) is
// wrapped under "value" so no event shape is silently dropped.
func payloadToMap(payload any) map[string]any {
	if payload == nil {
		return nil
	}
	if m, ok := payload.(map[string]any); ok {
		return m
	}
	return map[string]any{"value": payload}
}
