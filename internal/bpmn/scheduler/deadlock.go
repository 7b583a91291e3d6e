package scheduler

import (
	"time"

	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
	"github.com/bpmnkit/engine/internal/bpmn/events"
	"github.com/bpmnkit/engine/internal/bpmn/model"
)

// startDeadlockTimer arms js's wall-clock timer (spec §4.8: "whenever the
// scheduler places a token at a parallel join... it starts a wall-clock
// timer"). Caller must hold s.mu.
func (s *Scheduler) startDeadlockTimer(js *joinState, incoming []*model.Connection) {
	js.deadlockTimer = time.AfterFunc(s.deadlockTimeout, func() {
		s.onDeadlock(js, incoming)
	})
}

// onDeadlock fires once a join's timer elapses without reaching its
// expected arrival count. It marks the join failed (so isFinished can stop
// waiting on it) and emits the diagnostic event naming arrived and missing
// branches.
func (s *Scheduler) onDeadlock(js *joinState, incoming []*model.Connection) {
	s.mu.Lock()
	if js.satisfied || js.deadlocked {
		s.mu.Unlock()
		return
	}
	js.deadlocked = true
	arrived := append([]string(nil), js.arrivalOrder...)
	var missing []string
	for _, c := range incoming {
		if !js.arrived[c.ID] {
			missing = append(missing, s.lastAliveAncestor(c))
		}
	}
	s.hadFailure = true
	s.mu.Unlock()

	s.instance.setElementStatus(js.gatewayID, ElementFailed)
	s.recordFailure(bpmnerr.New(bpmnerr.KindDeadlock, "join %q timed out waiting for %d more arrival(s)", js.gatewayID, len(incoming)-len(arrived)))

	s.emit(events.Deadlock{
		Base: events.NewBase(events.TypeDeadlock, s.instance.ID, js.gatewayID),
		Data: events.DeadlockPayload{
			JoinID:          js.gatewayID,
			ArrivedBranches: arrived,
			MissingBranches: missing,
		},
	})

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// lastAliveAncestor walks backward from a missing join predecessor to find
// the last element on that branch whose status the scheduler actually
// recorded (spec §4.8: "reverse-walk to find the last known alive
// predecessor on each").
func (s *Scheduler) lastAliveAncestor(c *model.Connection) string {
	id := c.From
	seen := make(map[string]bool)
	for id != "" && !seen[id] {
		seen[id] = true
		if st := s.instance.elementStatusOf(id); st != "" {
			return id
		}
		preds := s.process.Incoming(id)
		if len(preds) == 0 {
			return id
		}
		id = preds[0].From
	}
	return c.From
}
