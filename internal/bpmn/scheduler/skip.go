package scheduler

import (
	"github.com/bpmnkit/engine/internal/bpmn/events"
	"github.com/bpmnkit/engine/internal/bpmn/gateway"
)

// markSkipped implements invariant P8: an element is skipped iff every path
// reaching it from the start event includes at least one not-taken flow.
// Computed as forward reachability from the not-taken flows' targets, minus
// whatever is also forward-reachable from the taken flows' targets. Cycles
// are handled by the visited set inside reach.
func (s *Scheduler) markSkipped(decision gateway.Decision) {
	if len(decision.NotTaken) == 0 {
		return
	}
	reachableFromTaken := make(map[string]bool)
	for _, c := range decision.Taken {
		s.reach(c.To, reachableFromTaken)
	}

	reachableFromNotTaken := make(map[string]bool)
	for _, c := range decision.NotTaken {
		s.reach(c.To, reachableFromNotTaken)
	}

	for id := range reachableFromNotTaken {
		if reachableFromTaken[id] {
			continue
		}
		if s.instance.elementStatusOf(id) == ElementSkipped {
			continue
		}
		s.instance.setElementStatus(id, ElementSkipped)
		s.emit(events.ElementSkipped{Base: events.NewBase(events.TypeElementSkipped, s.instance.ID, id)})
	}
}

// reach performs a forward BFS from elementID over the process graph,
// recording every element visited (including elementID itself) into seen.
func (s *Scheduler) reach(elementID string, seen map[string]bool) {
	if seen[elementID] {
		return
	}
	queue := []string{elementID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, c := range s.process.Outgoing(id) {
			if !seen[c.To] {
				queue = append(queue, c.To)
			}
		}
	}
}
