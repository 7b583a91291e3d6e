package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bpmnkit/engine/internal/bpmn/bctx"
	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
	"github.com/bpmnkit/engine/internal/bpmn/broadcaster"
	"github.com/bpmnkit/engine/internal/bpmn/events"
	"github.com/bpmnkit/engine/internal/bpmn/model"
	"github.com/bpmnkit/engine/internal/bpmn/scheduler"
)

// Start implements spec §4.10's start operation: constructs a new instance
// of processID seeded with initialContext, launches it on its own
// goroutine, and returns the assigned instance ID immediately without
// waiting for the workflow to finish.
func (e *Engine) Start(processID string, initialContext map[string]any) (string, error) {
	proc, ok := e.processLookup(processID)
	if !ok {
		return "", bpmnerr.New(bpmnerr.KindMalformedDefinition, "process %q is not registered", processID)
	}

	instanceID := uuid.NewString()
	store := bctx.New(initialContext)
	bc := broadcaster.New(e.cfg.ObserverQueueSize)

	deps := e.buildDeps()
	sched := scheduler.New(instanceID, proc, store, e.registry, deps, bc.Publish, e.cfg.DeadlockTimeout, e.processLookup)
	deps.SubProcess = sched

	e.instMu.Lock()
	e.instances[instanceID] = &instanceHandle{sched: sched, broadcaster: bc, processID: processID, startedAt: time.Now().UTC()}
	e.instMu.Unlock()

	go func() {
		if err := sched.Run(context.Background()); err != nil {
			e.log.Warn(context.Background(), "instance finished with error", "instance_id", instanceID, "error", err.Error())
		}
	}()

	if e.store != nil {
		go e.archiveInstance(instanceID, processID, time.Now().UTC())
	}
	if e.stream != nil {
		go e.mirrorToStream(instanceID)
	}

	return instanceID, nil
}

// StatusSnapshot reports an instance's lifecycle status and per-element
// progress, for the status operation (spec §4.10).
type StatusSnapshot struct {
	InstanceID      string
	ProcessID       string
	Status          scheduler.InstanceStatus
	Frontier        []string
	ElementStatuses map[string]scheduler.ElementStatus
	StartedAt       time.Time
	EndedAt         time.Time
	Error           string
}

// Status returns a snapshot of instanceID's current execution state.
func (e *Engine) Status(instanceID string) (StatusSnapshot, error) {
	h, ok := e.handle(instanceID)
	if !ok {
		return StatusSnapshot{}, bpmnerr.New(bpmnerr.KindMalformedDefinition, "instance %q not found", instanceID)
	}
	inst := h.sched.Instance()
	snap := StatusSnapshot{
		InstanceID:      instanceID,
		ProcessID:       h.processID,
		Status:          inst.Status(),
		Frontier:        inst.Frontier(),
		ElementStatuses: inst.ElementStatuses(),
		StartedAt:       inst.StartedAt,
		EndedAt:         inst.EndedAt,
	}
	if err := inst.LastError(); err != nil {
		snap.Error = err.Error()
	}
	return snap, nil
}

// Cancel implements spec §4.10's cancel operation. elementID == "" cancels
// the whole instance; otherwise only that element's activation is
// cancelled, leaving the rest of the instance running.
func (e *Engine) Cancel(instanceID, elementID string) error {
	h, ok := e.handle(instanceID)
	if !ok {
		return bpmnerr.New(bpmnerr.KindMalformedDefinition, "instance %q not found", instanceID)
	}
	h.sched.RequestCancel(elementID)
	return nil
}

// Subscribe attaches a new observer to instanceID's event stream (spec
// §4.10, §6.1).
func (e *Engine) Subscribe(instanceID string) (*broadcaster.Observer, error) {
	h, ok := e.handle(instanceID)
	if !ok {
		return nil, bpmnerr.New(bpmnerr.KindMalformedDefinition, "instance %q not found", instanceID)
	}
	return h.broadcaster.Subscribe(), nil
}

// Unsubscribe detaches obs from instanceID's event stream.
func (e *Engine) Unsubscribe(instanceID string, obs *broadcaster.Observer) {
	if h, ok := e.handle(instanceID); ok {
		h.broadcaster.Unsubscribe(obs)
	}
}

// ReplayHistory compiles the retained per-element history for elementID
// into a snapshot (spec §4.7.3), for an observer that joined late or asked
// to replay.
func (e *Engine) ReplayHistory(instanceID, elementID string) (events.MessagesSnapshot, error) {
	h, ok := e.handle(instanceID)
	if !ok {
		return events.MessagesSnapshot{}, bpmnerr.New(bpmnerr.KindMalformedDefinition, "instance %q not found", instanceID)
	}
	return h.broadcaster.Replay(instanceID, elementID), nil
}

// InstanceSummary is a lightweight row for ListInstances (SPEC_FULL
// addition: spec.md's façade only names start/status/cancel/subscribe, but
// an operable deployment needs a way to enumerate running/completed
// instances without the caller tracking every ID it started).
type InstanceSummary struct {
	InstanceID string
	ProcessID  string
	Status     scheduler.InstanceStatus
	StartedAt  time.Time
	EndedAt    time.Time
}

// ListInstances returns a summary of every instance the engine has started
// and not yet forgotten (see PruneCompleted). processID, when non-empty,
// filters to that process only.
func (e *Engine) ListInstances(processID string) []InstanceSummary {
	e.instMu.RLock()
	defer e.instMu.RUnlock()
	out := make([]InstanceSummary, 0, len(e.instances))
	for id, h := range e.instances {
		if processID != "" && h.processID != processID {
			continue
		}
		inst := h.sched.Instance()
		out = append(out, InstanceSummary{
			InstanceID: id,
			ProcessID:  h.processID,
			Status:     inst.Status(),
			StartedAt:  inst.StartedAt,
			EndedAt:    inst.EndedAt,
		})
	}
	return out
}

// PruneCompleted removes finished instances older than olderThan from the
// engine's in-memory registry, bounding memory growth for long-lived
// deployments (SPEC_FULL addition; spec.md has no instance-retention
// policy since it assumes an external persistence layer owns long-term
// history — see internal/bpmn/persist).
func (e *Engine) PruneCompleted(olderThan time.Duration) int {
	cutoff := time.Now().UTC().Add(-olderThan)
	e.instMu.Lock()
	defer e.instMu.Unlock()
	pruned := 0
	for id, h := range e.instances {
		inst := h.sched.Instance()
		if inst.Status() == scheduler.StatusRunning {
			continue
		}
		if inst.EndedAt.IsZero() || inst.EndedAt.After(cutoff) {
			continue
		}
		delete(e.instances, id)
		pruned++
	}
	return pruned
}

// Ping answers a keepalive ping with a pong, broadcast to every observer
// currently subscribed to instanceID (spec §6.1). The ping arrives on its
// own short-lived HTTP request, separate from the caller's long-lived SSE
// connection, so there's no way to address that one observer directly;
// fan-out is the only delivery that actually reaches it.
func (e *Engine) Ping(instanceID string) error {
	h, ok := e.handle(instanceID)
	if !ok {
		return bpmnerr.New(bpmnerr.KindMalformedDefinition, "instance %q not found", instanceID)
	}
	h.broadcaster.Publish(events.Pong{Base: events.NewBase(events.TypePong, instanceID, "")})
	return nil
}

// SendReplay compiles and delivers elementID's retained history to obs only
// (spec §6.1's replay.request message).
func (e *Engine) SendReplay(instanceID, elementID string, obs *broadcaster.Observer) error {
	h, ok := e.handle(instanceID)
	if !ok {
		return bpmnerr.New(bpmnerr.KindMalformedDefinition, "instance %q not found", instanceID)
	}
	h.broadcaster.SendTo(obs, h.broadcaster.Replay(instanceID, elementID))
	return nil
}

// ClearHistory purges instanceID's retained per-element history (spec
// §6.1's clear.history message).
func (e *Engine) ClearHistory(instanceID string) error {
	h, ok := e.handle(instanceID)
	if !ok {
		return bpmnerr.New(bpmnerr.KindMalformedDefinition, "instance %q not found", instanceID)
	}
	h.broadcaster.ClearHistory()
	return nil
}

// FormFields returns the formFields declaration for a userTask element on
// the process instanceID was started from, for validating a
// userTask.complete submission before it is published to the correlation
// bus (internal/bpmn/validate).
func (e *Engine) FormFields(instanceID, elementID string) (map[string]any, bool) {
	h, ok := e.handle(instanceID)
	if !ok {
		return nil, false
	}
	proc, ok := e.processLookup(h.processID)
	if !ok {
		return nil, false
	}
	el, ok := proc.ByID(elementID)
	if !ok {
		return nil, false
	}
	fields, _ := model.Property[map[string]any](el, "formFields")
	return fields, true
}

func (e *Engine) handle(instanceID string) (*instanceHandle, bool) {
	e.instMu.RLock()
	defer e.instMu.RUnlock()
	h, ok := e.instances[instanceID]
	return h, ok
}
