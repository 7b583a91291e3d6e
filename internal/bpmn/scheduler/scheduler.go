// Package scheduler implements the instance scheduler (C9, spec §4.8): the
// per-instance state machine that walks the process graph element by
// element, synchronizing parallel/inclusive joins, detecting deadlocked
// joins, and driving cooperative cancellation.
//
// One Scheduler owns one Instance. Element executors run on their own
// goroutines and report completions back to the Run loop over a channel.
// The Run loop is not the only writer of scheduling state: executor,
// boundary-timer and deadlock-timer goroutines also update element
// statuses, activations and join counters, so that state is guarded by the
// scheduler's mutex and the Instance's own lock.
package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bpmnkit/engine/internal/bpmn/bctx"
	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
	"github.com/bpmnkit/engine/internal/bpmn/events"
	"github.com/bpmnkit/engine/internal/bpmn/exec"
	"github.com/bpmnkit/engine/internal/bpmn/gateway"
	"github.com/bpmnkit/engine/internal/bpmn/model"
)

// DefaultDeadlockTimeout is used when a Scheduler is constructed with
// deadlockTimeout <= 0 (DEADLOCK_TIMEOUT_MS, spec §6.5).
const DefaultDeadlockTimeout = 30 * time.Second

// DrainDeadline bounds how long a cancelled element's executor is given to
// return before task.cancel.failed is emitted instead of task.cancelled
// (spec §4.8 cancellation, invariant P7).
const DrainDeadline = 5 * time.Second

// ElementStatus is a single element's position in the per-element state
// machine named in spec §4.8.
type ElementStatus string

const (
	ElementPending    ElementStatus = "pending"
	ElementActivated  ElementStatus = "activated"
	ElementRunning    ElementStatus = "running"
	ElementCancelling ElementStatus = "cancelling"
	ElementCompleted  ElementStatus = "completed"
	ElementFailed     ElementStatus = "failed"
	ElementCancelled  ElementStatus = "cancelled"
	ElementSkipped    ElementStatus = "skipped"
)

// InstanceStatus is the workflow instance's overall lifecycle status.
type InstanceStatus string

const (
	StatusRunning   InstanceStatus = "running"
	StatusSucceeded InstanceStatus = "succeeded"
	StatusFailed    InstanceStatus = "failed"
	StatusCancelled InstanceStatus = "cancelled"
)

// Instance is the mutable per-run state owned by a Scheduler (spec §3.2).
type Instance struct {
	ID              string
	ProcessID       string
	ParentInstanceID string
	ParentElementID  string
	Store           *bctx.Store
	StartedAt       time.Time
	EndedAt         time.Time

	mu            sync.RWMutex
	status        InstanceStatus
	elementStatus map[string]ElementStatus
	lastErr       error
}

func newInstance(id, processID string, store *bctx.Store) *Instance {
	return &Instance{
		ID:            id,
		ProcessID:     processID,
		Store:         store,
		StartedAt:     time.Now().UTC(),
		status:        StatusRunning,
		elementStatus: make(map[string]ElementStatus),
	}
}

// Status returns the instance's current lifecycle status.
func (in *Instance) Status() InstanceStatus {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.status
}

// ElementStatuses returns a snapshot of every element the scheduler has
// touched and its current status, for the façade's status operation.
func (in *Instance) ElementStatuses() map[string]ElementStatus {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make(map[string]ElementStatus, len(in.elementStatus))
	for k, v := range in.elementStatus {
		out[k] = v
	}
	return out
}

// Frontier returns the elements currently activated or running.
func (in *Instance) Frontier() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	var out []string
	for id, st := range in.elementStatus {
		if st == ElementActivated || st == ElementRunning || st == ElementCancelling {
			out = append(out, id)
		}
	}
	return out
}

// LastError returns the first unrecovered failure the instance encountered,
// if any.
func (in *Instance) LastError() error {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.lastErr
}

func (in *Instance) setElementStatus(id string, st ElementStatus) {
	in.mu.Lock()
	in.elementStatus[id] = st
	in.mu.Unlock()
}

func (in *Instance) elementStatusOf(id string) ElementStatus {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.elementStatus[id]
}

func (in *Instance) finish(status InstanceStatus, err error) {
	in.mu.Lock()
	in.status = status
	in.lastErr = err
	in.EndedAt = time.Now().UTC()
	in.mu.Unlock()
}

// ProcessLookup resolves a called process by its ID, for callActivity (spec
// §4.5 table). The engine façade supplies this from its loaded definition
// set.
type ProcessLookup func(processID string) (*model.Process, bool)

// Scheduler drives one Instance's execution over the process graph.
type Scheduler struct {
	instance      *Instance
	process       *model.Process
	registry      *exec.Registry
	deps          *exec.Deps
	emit          func(events.Event)
	deadlockTimeout time.Duration
	processLookup ProcessLookup

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu            sync.Mutex
	elementCancel map[string]context.CancelFunc
	activations   map[string]*activation
	joins         map[string]*joinState
	activeCount   int
	hadFailure    bool
	cancelRequested bool

	completions chan completion
	cancelReqs  chan cancelRequest
	wake        chan struct{}
	finished    chan struct{}
}

// New constructs a Scheduler for one instance. emit is called for every
// event the instance produces; deps is shared (process-wide) executor
// dependencies. deadlockTimeout <= 0 uses DefaultDeadlockTimeout.
func New(instanceID string, proc *model.Process, store *bctx.Store, registry *exec.Registry, deps *exec.Deps, emit func(events.Event), deadlockTimeout time.Duration, lookup ProcessLookup) *Scheduler {
	if deadlockTimeout <= 0 {
		deadlockTimeout = DefaultDeadlockTimeout
	}
	s := &Scheduler{
		instance:        newInstance(instanceID, proc.ID, store),
		process:         proc,
		registry:        registry,
		deps:            deps,
		emit:            emit,
		deadlockTimeout: deadlockTimeout,
		processLookup:   lookup,
		elementCancel:   make(map[string]context.CancelFunc),
		activations:     make(map[string]*activation),
		joins:           make(map[string]*joinState),
		completions:     make(chan completion, 16),
		cancelReqs:      make(chan cancelRequest, 4),
		wake:            make(chan struct{}, 1),
		finished:        make(chan struct{}),
	}
	return s
}

// Instance returns the scheduler's owned instance.
func (s *Scheduler) Instance() *Instance { return s.instance }

// completion reports one activation's terminal outcome back to the loop
// goroutine.
type completion struct {
	act    *activation
	result exec.Result
	err    error
	// boundaryFire, when set, is a boundary event whose own outgoing flows
	// should be activated instead of (or alongside) the host's.
	boundaryFire *model.Element
}

type cancelRequest struct {
	elementID string // empty means "cancel the whole instance"
}

// activation is the scheduler's record of one in-flight element execution.
type activation struct {
	element      *model.Element
	via          *model.Connection
	ctx          context.Context
	cancel       context.CancelFunc
	boundaryDone chan struct{}
	cancelling   bool
	cancelOnce   sync.Once
}

// Run executes the instance to completion (or until ctx is cancelled),
// blocking the calling goroutine. Callers that want "returns immediately"
// semantics (spec §4.10's start operation) must call Run in its own
// goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	s.rootCtx, s.rootCancel = context.WithCancel(ctx)
	defer s.rootCancel()

	start, ok := s.process.StartEvent()
	if !ok {
		err := bpmnerr.New(bpmnerr.KindMalformedDefinition, "process %q has no start event", s.process.ID)
		s.instance.finish(StatusFailed, err)
		return err
	}

	s.emit(events.WorkflowStarted{
		Base: events.NewBase(events.TypeWorkflowStarted, s.instance.ID, ""),
		Data: events.WorkflowStartedPayload{ProcessID: s.process.ID},
	})

	s.activate(start, nil)

	externalCancelApplied := false
	for {
		select {
		case <-s.rootCtx.Done():
			// Only reached via the parent ctx passed into Run, since
			// instance-level cancellation never calls s.rootCancel.
			if !externalCancelApplied {
				externalCancelApplied = true
				s.applyCancel(cancelRequest{})
			}
		case c := <-s.completions:
			s.handleCompletion(c)
		case req := <-s.cancelReqs:
			s.applyCancel(req)
		case <-s.wake:
		}
		if s.isFinished() {
			return s.finalize()
		}
	}
}

func (s *Scheduler) isFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeCount != 0 {
		return false
	}
	for _, j := range s.joins {
		if !j.satisfied && !j.deadlocked {
			return false
		}
	}
	return true
}

func (s *Scheduler) finalize() error {
	var status InstanceStatus
	var err error
	s.mu.Lock()
	switch {
	case s.cancelRequested:
		status = StatusCancelled
	case s.hadFailure:
		status = StatusFailed
		err = s.instance.LastError()
	default:
		status = StatusSucceeded
	}
	s.mu.Unlock()

	s.instance.finish(status, err)
	outcome := "success"
	errMsg := ""
	switch status {
	case StatusFailed:
		outcome = "failed"
		if err != nil {
			errMsg = err.Error()
		}
	case StatusCancelled:
		outcome = "cancelled"
	}
	s.emit(events.WorkflowCompleted{
		Base: events.NewBase(events.TypeWorkflowCompleted, s.instance.ID, ""),
		Data: events.WorkflowCompletedPayload{
			Outcome:  outcome,
			Duration: s.instance.EndedAt.Sub(s.instance.StartedAt),
			Error:    errMsg,
		},
	})
	close(s.finished)
	return err
}

// Done returns a channel closed once the instance reaches a terminal
// status.
func (s *Scheduler) Done() <-chan struct{} { return s.finished }

// RequestCancel enqueues a cancellation request for the whole instance
// (elementID == "") or a single element.
func (s *Scheduler) RequestCancel(elementID string) {
	s.requestCancel(elementID)
}

func (s *Scheduler) requestCancel(elementID string) {
	select {
	case s.cancelReqs <- cancelRequest{elementID: elementID}:
	default:
		go func() { s.cancelReqs <- cancelRequest{elementID: elementID} }()
	}
}

// activate schedules elementID to run, arriving via connection "via" (nil
// for the start event or a synthetic boundary-event firing). Gateways are
// handled inline (join synchronization + evaluation); every other kind is
// dispatched to the executor registry on its own goroutine.
func (s *Scheduler) activate(e *model.Element, via *model.Connection) {
	if e.Kind.IsGateway() {
		s.arriveAtGateway(e, via)
		return
	}
	s.instance.setElementStatus(e.ID, ElementActivated)
	s.emit(events.ElementActivated{Base: events.NewBase(events.TypeElementActivated, s.instance.ID, e.ID)})

	ctx, cancel := context.WithCancel(s.rootCtx)
	act := &activation{element: e, via: via, ctx: ctx, cancel: cancel, boundaryDone: make(chan struct{})}

	s.mu.Lock()
	s.elementCancel[e.ID] = cancel
	s.activations[e.ID] = act
	s.activeCount++
	s.mu.Unlock()

	for _, b := range s.process.BoundaryEventsFor(e.ID) {
		if b.Kind == model.KindBoundaryTimerEvent {
			go s.watchBoundaryTimer(act, b)
		}
	}

	go s.runElement(act)
}

func (s *Scheduler) runElement(act *activation) {
	s.instance.setElementStatus(act.element.ID, ElementRunning)
	ex, err := s.registry.Lookup(act.element.Kind)
	var result exec.Result
	if err != nil {
		err = bpmnerr.Wrap(bpmnerr.KindExecutorException, err, "element %q", act.element.ID)
	} else {
		rc := &exec.RunContext{
			InstanceID: s.instance.ID,
			Element:    act.element,
			Process:    s.process,
			Store:      s.instance.Store,
			Emit:       s.emit,
			Deps:       s.deps,
		}
		result, err = ex.Execute(act.ctx, rc)
	}
	close(act.boundaryDone)
	s.completions <- completion{act: act, result: result, err: err}
}

// handleCompletion is invoked only from the Run loop goroutine.
func (s *Scheduler) handleCompletion(c completion) {
	e := c.act.element
	s.mu.Lock()
	delete(s.elementCancel, e.ID)
	delete(s.activations, e.ID)
	s.activeCount--
	instanceCancelled := s.cancelRequested
	s.mu.Unlock()

	switch {
	case c.err == nil:
		s.instance.setElementStatus(e.ID, ElementCompleted)
		s.emit(events.ElementCompleted{
			Base: events.NewBase(events.TypeElementCompleted, s.instance.ID, e.ID),
			Data: events.ElementCompletedPayload{ResultVariable: c.result.ResultVariable},
		})
		if instanceCancelled {
			return
		}
		s.onElementSucceeded(e)

	case bpmnerr.IsCancelled(c.err):
		s.instance.setElementStatus(e.ID, ElementCancelled)
		c.act.cancelOnce.Do(func() {
			s.emit(events.TaskCancelled{
				Base: events.NewBase(events.TypeTaskCancelled, s.instance.ID, e.ID),
				Data: events.TaskCancelledPayload{},
			})
		})
		// A boundary-timer-triggered cancellation still routes through the
		// boundary event's own outgoing flows; see fireBoundaryTimer.

	default:
		if s.tryBoundaryError(c.act, c.err) {
			return
		}
		s.instance.setElementStatus(e.ID, ElementFailed)
		s.emit(events.TaskError{
			Base: events.NewBase(events.TypeTaskError, s.instance.ID, e.ID),
			Data: events.TaskErrorPayload{
				Message:   c.err.Error(),
				ErrorType: string(bpmnerr.KindOf(c.err)),
				Retryable: bpmnerr.Retryable(c.err),
			},
		})
		s.mu.Lock()
		s.hadFailure = true
		s.mu.Unlock()
		s.instance.finish(s.instance.Status(), c.err)
		s.recordFailure(c.err)
	}
}

func (s *Scheduler) recordFailure(err error) {
	s.instance.mu.Lock()
	if s.instance.lastErr == nil {
		s.instance.lastErr = err
	}
	s.instance.mu.Unlock()
}

// onElementSucceeded routes the frontier forward from a normally-completed
// element (spec §4.8 step 3): end events retire their token, everything
// else takes its outgoing flows.
func (s *Scheduler) onElementSucceeded(e *model.Element) {
	if e.Kind == model.KindEndEvent {
		if isFailureOutcome(e) {
			s.mu.Lock()
			s.hadFailure = true
			s.mu.Unlock()
			s.recordFailure(bpmnerr.New(bpmnerr.KindExecutorException, "end event %q marks a failure outcome", e.ID))
		}
		return
	}
	for _, c := range s.process.Outgoing(e.ID) {
		target, ok := s.process.ByID(c.To)
		if !ok {
			continue
		}
		s.activate(target, c)
	}
}

// isFailureOutcome implements spec §4.8's "failed if the end event's
// name/properties indicate a failure/rejection path".
func isFailureOutcome(e *model.Element) bool {
	if e.BoolProp("failure") {
		return true
	}
	switch strings.ToLower(e.StringProp("outcome")) {
	case "failure", "failed", "rejected", "reject":
		return true
	}
	name := strings.ToLower(e.Name)
	return strings.Contains(name, "fail") || strings.Contains(name, "reject")
}
