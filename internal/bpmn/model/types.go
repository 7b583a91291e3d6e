// Package model defines the immutable process-definition graph produced by
// the loader (spec §3.1, §4.1). Process, Element, and Connection values are
// never mutated after Load returns; the scheduler and evaluators only read
// them.
package model

// ElementKind enumerates the BPMN element kinds recognized by the engine.
type ElementKind string

const (
	KindStartEvent                 ElementKind = "startEvent"
	KindEndEvent                    ElementKind = "endEvent"
	KindIntermediateEvent          ElementKind = "intermediateEvent"
	KindTimerIntermediateCatch     ElementKind = "timerIntermediateCatchEvent"
	KindBoundaryTimerEvent         ElementKind = "boundaryTimerEvent"
	KindBoundaryErrorEvent         ElementKind = "boundaryErrorEvent"
	KindTask                       ElementKind = "task"
	KindUserTask                   ElementKind = "userTask"
	KindServiceTask                ElementKind = "serviceTask"
	KindScriptTask                 ElementKind = "scriptTask"
	KindSendTask                   ElementKind = "sendTask"
	KindReceiveTask                ElementKind = "receiveTask"
	KindManualTask                 ElementKind = "manualTask"
	KindBusinessRuleTask           ElementKind = "businessRuleTask"
	KindAgenticTask                ElementKind = "agenticTask"
	KindSubProcess                 ElementKind = "subProcess"
	KindCallActivity               ElementKind = "callActivity"
	KindExclusiveGateway           ElementKind = "exclusiveGateway"
	KindParallelGateway             ElementKind = "parallelGateway"
	KindInclusiveGateway           ElementKind = "inclusiveGateway"
)

// IsGateway reports whether k is one of the three recognized gateway kinds.
func (k ElementKind) IsGateway() bool {
	switch k {
	case KindExclusiveGateway, KindParallelGateway, KindInclusiveGateway:
		return true
	default:
		return false
	}
}

// IsBoundaryEvent reports whether k attaches to a host activity rather than
// sitting on the normal sequence-flow path.
func (k ElementKind) IsBoundaryEvent() bool {
	return k == KindBoundaryTimerEvent || k == KindBoundaryErrorEvent
}

type (
	// Process is the top-level (or nested, for sub-processes) immutable
	// element/connection graph. Element and Connection order is preserved
	// exactly as authored because exclusive-gateway evaluation depends on it
	// (spec §6.4).
	Process struct {
		ID          string
		Name        string
		Elements    []*Element
		Connections []*Connection
		Pools       []Pool
	}

	// Pool groups lanes for presentation purposes only; lane-based routing
	// and authorization are explicitly out of scope (see SPEC_FULL §3.1).
	Pool struct {
		ID      string
		Name    string
		LaneIDs []string
	}

	// Element is one node of the process graph. Properties is a free-form
	// map; the recognized keys per kind are the ones read by that kind's
	// executor in internal/bpmn/exec.
	Element struct {
		ID         string
		Kind       ElementKind
		Name       string
		Properties map[string]any
		PoolID     string
		LaneID     string

		// Sub-process / call-activity children, present only when Kind is
		// KindSubProcess (or a KindCallActivity that embeds a local
		// definition for testing).
		Expanded        bool
		ChildElements   []*Element
		ChildConnections []*Connection

		// process links back to the owning Process. Not exported: populated
		// by Load; no method in this package reads it.
		process *Process
	}

	// Connection is a sequence flow between two elements identified by ID.
	Connection struct {
		ID        string
		From      string
		To        string
		Name      string
		Condition string // Properties.condition; empty means default/unconditional.
	}
)

// Property reads a named property with a typed default, returning the zero
// value of T if the key is absent or of the wrong type. Context/expression
// reads are total (internal/bpmn/bctx); property reads mirror that contract.
func Property[T any](e *Element, key string) (T, bool) {
	var zero T
	if e == nil || e.Properties == nil {
		return zero, false
	}
	v, ok := e.Properties[key]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// StringProp reads a string property, defaulting to "".
func (e *Element) StringProp(key string) string {
	v, _ := Property[string](e, key)
	return v
}

// BoolProp reads a bool property, defaulting to false.
func (e *Element) BoolProp(key string) bool {
	v, _ := Property[bool](e, key)
	return v
}

// IntProp reads an int-ish property, accepting int, int64, and float64 (YAML
// numbers decode as those types depending on decoder configuration).
func (e *Element) IntProp(key string) int {
	if e == nil || e.Properties == nil {
		return 0
	}
	switch v := e.Properties[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// StringSliceProp reads a []string (or []any of strings) property.
func (e *Element) StringSliceProp(key string) []string {
	if e == nil || e.Properties == nil {
		return nil
	}
	switch v := e.Properties[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// ByID finds an element by ID within p's top-level elements only (nested
// sub-process children are addressed via Element.ChildElements by the
// scheduler when it descends).
func (p *Process) ByID(id string) (*Element, bool) {
	for _, e := range p.Elements {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// Outgoing returns the connections whose From matches elementID, in
// authored order.
func (p *Process) Outgoing(elementID string) []*Connection {
	var out []*Connection
	for _, c := range p.Connections {
		if c.From == elementID {
			out = append(out, c)
		}
	}
	return out
}

// Incoming returns the connections whose To matches elementID, in authored
// order.
func (p *Process) Incoming(elementID string) []*Connection {
	var in []*Connection
	for _, c := range p.Connections {
		if c.To == elementID {
			in = append(in, c)
		}
	}
	return in
}

// StartEvent returns the single start event of the process.
func (p *Process) StartEvent() (*Element, bool) {
	for _, e := range p.Elements {
		if e.Kind == KindStartEvent {
			return e, true
		}
	}
	return nil, false
}

// BoundaryEventsFor returns the boundary timer/error events attached to
// hostID, in authored order.
func (p *Process) BoundaryEventsFor(hostID string) []*Element {
	var out []*Element
	for _, e := range p.Elements {
		if !e.Kind.IsBoundaryEvent() {
			continue
		}
		if e.StringProp("attachedTo") == hostID {
			out = append(out, e)
		}
	}
	return out
}
