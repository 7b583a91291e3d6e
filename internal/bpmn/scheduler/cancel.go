package scheduler

import (
	"time"

	"github.com/bpmnkit/engine/internal/bpmn/events"
)

// applyCancel runs in the Run loop goroutine, dispatching an instance-wide
// or single-element cancellation request (spec §4.8, §4.10).
func (s *Scheduler) applyCancel(req cancelRequest) {
	if req.elementID == "" {
		s.mu.Lock()
		if s.cancelRequested {
			s.mu.Unlock()
			return
		}
		s.cancelRequested = true
		acts := make([]*activation, 0, len(s.activations))
		for _, a := range s.activations {
			acts = append(acts, a)
		}
		s.mu.Unlock()

		for _, a := range acts {
			s.cancelOne(a)
		}
		return
	}

	s.mu.Lock()
	act, ok := s.activations[req.elementID]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.cancelOne(act)
}

// cancelOne transitions act to cancelling, signals its executor, and arms a
// drain-deadline watchdog that emits task.cancel.failed if the executor
// never returns in time — mutually exclusive with handleCompletion's
// task.cancelled via act.cancelOnce (invariant P7).
func (s *Scheduler) cancelOne(act *activation) {
	s.mu.Lock()
	if act.cancelling {
		s.mu.Unlock()
		return
	}
	act.cancelling = true
	s.mu.Unlock()

	s.instance.setElementStatus(act.element.ID, ElementCancelling)
	s.emit(events.TaskCancelling{Base: events.NewBase(events.TypeTaskCancelling, s.instance.ID, act.element.ID)})
	act.cancel()

	go func() {
		select {
		case <-act.boundaryDone:
		case <-time.After(DrainDeadline):
			act.cancelOnce.Do(func() {
				s.emit(events.TaskCancelFailed{
					Base: events.NewBase(events.TypeTaskCancelFailed, s.instance.ID, act.element.ID),
					Data: events.TaskCancelFailedPayload{Reason: "drain deadline exceeded"},
				})
			})
		}
	}()
}
