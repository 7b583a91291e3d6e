package scheduler

import (
	"time"

	"github.com/bpmnkit/engine/internal/bpmn/events"
	"github.com/bpmnkit/engine/internal/bpmn/gateway"
	"github.com/bpmnkit/engine/internal/bpmn/model"
)

// joinState tracks arrivals at a gateway with multiple incoming flows (spec
// §4.8: "each parallel gateway with ≥2 incoming flows maintains an arrival
// counter"). The same bookkeeping serves inclusive joins, whose expected
// count is computed dynamically from which upstream branches are still
// reachable rather than fixed at len(incoming).
type joinState struct {
	gatewayID     string
	expected      int
	arrived       map[string]bool // connection IDs that have arrived, in arrival order via arrivalOrder
	arrivalOrder  []string
	satisfied     bool
	deadlocked    bool
	deadlockTimer *time.Timer
}

// arriveAtGateway processes a token reaching gateway gw via connection
// "via" (nil only for a start event, which is never a gateway, so via is
// always non-nil here). Single-incoming gateways evaluate immediately;
// multi-incoming gateways (joins) synchronize first.
func (s *Scheduler) arriveAtGateway(gw *model.Element, via *model.Connection) {
	incoming := s.process.Incoming(gw.ID)
	if len(incoming) <= 1 {
		s.fireGateway(gw)
		return
	}

	s.mu.Lock()
	js, ok := s.joins[gw.ID]
	if !ok {
		js = &joinState{gatewayID: gw.ID, arrived: make(map[string]bool)}
		js.expected = s.joinExpected(gw, incoming)
		s.joins[gw.ID] = js
		s.startDeadlockTimer(js, incoming)
	}
	if via != nil {
		js.arrived[via.ID] = true
		js.arrivalOrder = append(js.arrivalOrder, via.ID)
	}
	satisfied := len(js.arrived) >= js.expected && !js.satisfied
	if satisfied {
		js.satisfied = true
		if js.deadlockTimer != nil {
			js.deadlockTimer.Stop()
		}
	}
	s.mu.Unlock()

	if satisfied {
		s.fireGateway(gw)
	}
}

// joinExpected computes how many arrivals a join needs before it fires.
// Parallel joins always expect every incoming flow. Inclusive joins expect
// only the incoming flows whose immediate predecessor was not marked
// skipped by an earlier gateway decision (spec §4.8's dynamic inclusive-join
// count) — since skip-marking for a not-taken branch always reaches that
// branch's tail element before any token could arrive at this join, this
// check is safe to make at join-creation time.
func (s *Scheduler) joinExpected(gw *model.Element, incoming []*model.Connection) int {
	if gw.Kind != model.KindInclusiveGateway {
		return len(incoming)
	}
	n := 0
	for _, c := range incoming {
		if s.instance.elementStatusOf(c.From) == ElementSkipped {
			continue
		}
		n++
	}
	if n == 0 {
		return len(incoming)
	}
	return n
}

// fireGateway evaluates gw and activates its taken outgoing flows, marking
// everything reachable only via not-taken flows as skipped (invariant P8).
func (s *Scheduler) fireGateway(gw *model.Element) {
	s.instance.setElementStatus(gw.ID, ElementActivated)
	s.emit(events.GatewayEvaluating{Base: events.NewBase(events.TypeGatewayEvaluating, s.instance.ID, gw.ID)})

	outgoing := s.process.Outgoing(gw.ID)
	decision, err := gateway.Evaluate(gw, outgoing, s.instance.Store)
	if err != nil {
		s.instance.setElementStatus(gw.ID, ElementFailed)
		s.emit(events.TaskError{
			Base: events.NewBase(events.TypeTaskError, s.instance.ID, gw.ID),
			Data: events.TaskErrorPayload{Message: err.Error(), ErrorType: "NoMatchingPath"},
		})
		s.mu.Lock()
		s.hadFailure = true
		s.mu.Unlock()
		s.recordFailure(err)
		return
	}

	taken := make([]string, 0, len(decision.Taken))
	notTaken := make([]string, 0, len(decision.NotTaken))
	for _, c := range decision.Taken {
		taken = append(taken, c.ID)
	}
	for _, c := range decision.NotTaken {
		notTaken = append(notTaken, c.ID)
	}
	s.emit(events.GatewayPathTaken{
		Base: events.NewBase(events.TypeGatewayPathTaken, s.instance.ID, gw.ID),
		Data: events.GatewayPathTakenPayload{Taken: taken, NotTaken: notTaken},
	})
	s.instance.setElementStatus(gw.ID, ElementCompleted)
	s.emit(events.ElementCompleted{Base: events.NewBase(events.TypeElementCompleted, s.instance.ID, gw.ID)})

	s.markSkipped(decision)

	for _, c := range decision.Taken {
		target, ok := s.process.ByID(c.To)
		if !ok {
			continue
		}
		s.activate(target, c)
	}
}
