package scheduler

import (
	"time"

	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
	"github.com/bpmnkit/engine/internal/bpmn/exec"
	"github.com/bpmnkit/engine/internal/bpmn/model"
)

// watchBoundaryTimer races boundary b's delay against host task act
// finishing on its own (spec §4.9). If the host completes first,
// act.boundaryDone is closed and this goroutine exits without firing.
func (s *Scheduler) watchBoundaryTimer(act *activation, b *model.Element) {
	delay, err := exec.TimerDelay(b)
	if err != nil {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-act.boundaryDone:
		return
	case <-s.rootCtx.Done():
		return
	case <-timer.C:
		s.fireBoundaryTimer(act, b)
	}
}

// fireBoundaryTimer implements spec §4.9's two outcomes: if cancelActivity
// is true, the host is cancelled and the frontier advances along b's
// outgoing flows; if false, b's flows are activated while the host keeps
// running.
func (s *Scheduler) fireBoundaryTimer(act *activation, b *model.Element) {
	s.mu.Lock()
	already := act.cancelling
	if b.BoolProp("cancelActivity") {
		act.cancelling = true
	}
	s.mu.Unlock()
	if already {
		return
	}
	if b.BoolProp("cancelActivity") {
		act.cancel()
	}
	s.activateBoundarySuccessors(b)
}

// activateBoundarySuccessors takes boundary element b's outgoing flows as
// if b itself had just completed.
func (s *Scheduler) activateBoundarySuccessors(b *model.Element) {
	s.instance.setElementStatus(b.ID, ElementCompleted)
	for _, c := range s.process.Outgoing(b.ID) {
		target, ok := s.process.ByID(c.To)
		if !ok {
			continue
		}
		s.activate(target, c)
	}
}

// tryBoundaryError implements SPEC_FULL §4.9's boundary error event
// extension: if the failed element has an attached boundaryErrorEvent whose
// errorRef matches (or is the empty wildcard), the instance is not failed;
// instead the boundary event's outgoing flows are taken.
func (s *Scheduler) tryBoundaryError(act *activation, err error) bool {
	for _, b := range s.process.BoundaryEventsFor(act.element.ID) {
		if b.Kind != model.KindBoundaryErrorEvent {
			continue
		}
		ref := b.StringProp("errorRef")
		if ref != "" && ref != string(bpmnerr.KindOf(err)) && ref != act.element.StringProp("errorRef") {
			continue
		}
		s.instance.setElementStatus(act.element.ID, ElementFailed)
		s.activateBoundarySuccessors(b)
		return true
	}
	return false
}
