// Package gateway implements the gateway evaluator (C4, spec §4.4): given a
// gateway element and a context, decide which outgoing sequence flows are
// taken. Only Connection.Condition is ever interpreted — a flow's display
// Name never alters control flow (spec invariant P4).
package gateway

import (
	"github.com/bpmnkit/engine/internal/bpmn/bctx"
	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
	"github.com/bpmnkit/engine/internal/bpmn/expr"
	"github.com/bpmnkit/engine/internal/bpmn/model"
)

// Decision is the outcome of evaluating one gateway: the flows taken, in the
// order they were decided, and the flows considered but not taken — observers
// need both to mark skipped downstream paths (spec §4.4, §4.8).
type Decision struct {
	GatewayID string
	Taken     []*model.Connection
	NotTaken  []*model.Connection
}

// Evaluate dispatches on the gateway's kind. gw must satisfy
// gw.Kind.IsGateway(); callers (the scheduler) are expected to only invoke
// this for gateway elements.
func Evaluate(gw *model.Element, outgoing []*model.Connection, store *bctx.Store) (Decision, error) {
	switch gw.Kind {
	case model.KindExclusiveGateway:
		return evaluateExclusive(gw, outgoing, store)
	case model.KindParallelGateway:
		return evaluateParallel(gw, outgoing), nil
	case model.KindInclusiveGateway:
		return evaluateInclusive(gw, outgoing, store)
	default:
		return Decision{}, bpmnerr.New(bpmnerr.KindNoMatchingPath, "element %q is not a gateway", gw.ID)
	}
}

// evaluateExclusive implements XOR semantics: iterate outgoing flows in
// definition order, the first truthy non-empty condition wins and
// short-circuits; an empty condition marks the default candidate but is not
// taken immediately. If nothing matches, the default (if any) is taken.
func evaluateExclusive(gw *model.Element, outgoing []*model.Connection, store *bctx.Store) (Decision, error) {
	var def *model.Connection
	for _, c := range outgoing {
		if c.Condition == "" {
			if def == nil {
				def = c
			}
			continue
		}
		ok, err := expr.Evaluate(c.Condition, store)
		if err != nil {
			return Decision{}, bpmnerr.Wrap(bpmnerr.KindNoMatchingPath, err, "gateway %q: evaluating flow %q", gw.ID, c.ID)
		}
		if ok {
			return splitDecision(gw.ID, outgoing, c), nil
		}
	}
	if def != nil {
		return splitDecision(gw.ID, outgoing, def), nil
	}
	return Decision{}, bpmnerr.New(bpmnerr.KindNoMatchingPath, "exclusive gateway %q: no condition matched and no default flow", gw.ID)
}

// evaluateParallel implements AND-fork semantics: every outgoing flow is
// taken unconditionally; conditions, if present, are ignored.
func evaluateParallel(gw *model.Element, outgoing []*model.Connection) Decision {
	taken := make([]*model.Connection, len(outgoing))
	copy(taken, outgoing)
	return Decision{GatewayID: gw.ID, Taken: taken}
}

// evaluateInclusive implements OR semantics: take every flow whose condition
// is empty or truthy; at least one must be taken.
func evaluateInclusive(gw *model.Element, outgoing []*model.Connection, store *bctx.Store) (Decision, error) {
	var taken, notTaken []*model.Connection
	for _, c := range outgoing {
		if c.Condition == "" {
			taken = append(taken, c)
			continue
		}
		ok, err := expr.Evaluate(c.Condition, store)
		if err != nil {
			return Decision{}, bpmnerr.Wrap(bpmnerr.KindNoMatchingPath, err, "gateway %q: evaluating flow %q", gw.ID, c.ID)
		}
		if ok {
			taken = append(taken, c)
		} else {
			notTaken = append(notTaken, c)
		}
	}
	if len(taken) == 0 {
		return Decision{}, bpmnerr.New(bpmnerr.KindNoMatchingPath, "inclusive gateway %q: no flow matched", gw.ID)
	}
	return Decision{GatewayID: gw.ID, Taken: taken, NotTaken: notTaken}, nil
}

func splitDecision(gatewayID string, outgoing []*model.Connection, chosen *model.Connection) Decision {
	d := Decision{GatewayID: gatewayID, Taken: []*model.Connection{chosen}}
	for _, c := range outgoing {
		if c.ID != chosen.ID {
			d.NotTaken = append(d.NotTaken, c)
		}
	}
	return d
}
