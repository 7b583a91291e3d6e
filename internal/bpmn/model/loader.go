package model

import (
	"gopkg.in/yaml.v3"

	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
)

// rawProcess mirrors the YAML shape documented in SPEC_FULL §6.4. Load
// decodes straight into these plain structs and wraps any yaml.v3 decode
// error, which carries the offending line; the structural checks made
// afterwards name the element or connection id rather than a position.
type rawProcess struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Elements    []rawElement   `yaml:"elements"`
	Connections []rawConnection `yaml:"connections"`
	Pools       []rawPool      `yaml:"pools"`
}

type rawPool struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	LaneIDs []string `yaml:"laneIds"`
}

type rawElement struct {
	ID               string          `yaml:"id"`
	Kind             string          `yaml:"kind"`
	Name             string          `yaml:"name"`
	Properties       map[string]any  `yaml:"properties"`
	PoolID           string          `yaml:"poolId"`
	LaneID           string          `yaml:"laneId"`
	Expanded         bool            `yaml:"expanded"`
	ChildElements    []rawElement    `yaml:"childElements"`
	ChildConnections []rawConnection `yaml:"childConnections"`
}

type rawConnection struct {
	ID         string         `yaml:"id"`
	From       string         `yaml:"from"`
	To         string         `yaml:"to"`
	Name       string         `yaml:"name"`
	Properties map[string]any `yaml:"properties"`
}

// Load parses a serialized (YAML) process definition and returns the
// immutable graph, or a *bpmnerr.Error of kind KindMalformedDefinition.
//
// Load validates the §3.1 invariants: every connection endpoint resolves,
// exactly one start event exists at the top level, exclusive gateways with
// multiple outgoing flows have at most one default (empty-condition) flow,
// and parallel-gateway joins (>=2 incoming) have exactly one outgoing flow.
func Load(data []byte) (*Process, error) {
	var raw rawProcess
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, bpmnerr.Wrap(bpmnerr.KindMalformedDefinition, err, "invalid YAML process definition")
	}
	return fromRaw(raw)
}

// LoadMap builds a Process from an already-decoded map (for embedding
// definitions directly in Go, e.g. tests or the /workflows/execute JSON
// body). The shape matches the YAML structure.
func LoadMap(m map[string]any) (*Process, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, bpmnerr.Wrap(bpmnerr.KindMalformedDefinition, err, "invalid process definition map")
	}
	return Load(data)
}

func fromRaw(raw rawProcess) (*Process, error) {
	if raw.ID == "" {
		return nil, bpmnerr.New(bpmnerr.KindMalformedDefinition, "process id is required")
	}
	p := &Process{ID: raw.ID, Name: raw.Name}
	for _, rp := range raw.Pools {
		p.Pools = append(p.Pools, Pool{ID: rp.ID, Name: rp.Name, LaneIDs: rp.LaneIDs})
	}
	for _, re := range raw.Elements {
		el, err := elementFromRaw(re)
		if err != nil {
			return nil, err
		}
		el.process = p
		p.Elements = append(p.Elements, el)
	}
	for _, rc := range raw.Connections {
		p.Connections = append(p.Connections, connectionFromRaw(rc))
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func elementFromRaw(re rawElement) (*Element, error) {
	if re.ID == "" {
		return nil, bpmnerr.New(bpmnerr.KindMalformedDefinition, "element missing id")
	}
	if re.Kind == "" {
		return nil, bpmnerr.New(bpmnerr.KindMalformedDefinition, "element %q missing kind", re.ID)
	}
	kind := ElementKind(re.Kind)
	if !knownKind(kind) {
		return nil, bpmnerr.New(bpmnerr.KindMalformedDefinition, "element %q has unknown kind %q", re.ID, re.Kind)
	}
	el := &Element{
		ID:         re.ID,
		Kind:       kind,
		Name:       re.Name,
		Properties: re.Properties,
		PoolID:     re.PoolID,
		LaneID:     re.LaneID,
		Expanded:   re.Expanded,
	}
	for _, rc := range re.ChildElements {
		child, err := elementFromRaw(rc)
		if err != nil {
			return nil, err
		}
		el.ChildElements = append(el.ChildElements, child)
	}
	for _, rc := range re.ChildConnections {
		el.ChildConnections = append(el.ChildConnections, connectionFromRaw(rc))
	}
	if el.Kind == KindSubProcess && len(el.ChildElements) > 0 {
		sub := &Process{ID: el.ID + "#sub", Elements: el.ChildElements, Connections: el.ChildConnections}
		for _, c := range sub.Elements {
			c.process = sub
		}
		if err := validate(sub); err != nil {
			return nil, err
		}
	}
	return el, nil
}

func connectionFromRaw(rc rawConnection) *Connection {
	cond, _ := rc.Properties["condition"].(string)
	return &Connection{ID: rc.ID, From: rc.From, To: rc.To, Name: rc.Name, Condition: cond}
}

func knownKind(k ElementKind) bool {
	switch k {
	case KindStartEvent, KindEndEvent, KindIntermediateEvent, KindTimerIntermediateCatch,
		KindBoundaryTimerEvent, KindBoundaryErrorEvent, KindTask, KindUserTask, KindServiceTask,
		KindScriptTask, KindSendTask, KindReceiveTask, KindManualTask, KindBusinessRuleTask,
		KindAgenticTask, KindSubProcess, KindCallActivity, KindExclusiveGateway,
		KindParallelGateway, KindInclusiveGateway:
		return true
	default:
		return false
	}
}

// validate checks the §3.1 structural invariants against a single process
// graph (top-level or a sub-process's nested graph).
func validate(p *Process) error {
	ids := make(map[string]struct{}, len(p.Elements))
	for _, e := range p.Elements {
		if _, dup := ids[e.ID]; dup {
			return bpmnerr.New(bpmnerr.KindMalformedDefinition, "duplicate element id %q", e.ID)
		}
		ids[e.ID] = struct{}{}
	}
	for _, c := range p.Connections {
		if _, ok := ids[c.From]; !ok {
			return bpmnerr.New(bpmnerr.KindMalformedDefinition, "connection %q has dangling from-reference %q", c.ID, c.From)
		}
		if _, ok := ids[c.To]; !ok {
			return bpmnerr.New(bpmnerr.KindMalformedDefinition, "connection %q has dangling to-reference %q", c.ID, c.To)
		}
	}

	starts := 0
	for _, e := range p.Elements {
		if e.Kind == KindStartEvent {
			starts++
		}
	}
	if starts != 1 {
		return bpmnerr.New(bpmnerr.KindMalformedDefinition, "process %q must have exactly one start event, found %d", p.ID, starts)
	}

	for _, e := range p.Elements {
		out := p.Outgoing(e.ID)
		switch e.Kind {
		case KindExclusiveGateway:
			if len(out) > 1 {
				defaults := 0
				for _, c := range out {
					if c.Condition == "" {
						defaults++
					}
				}
				if defaults > 1 {
					return bpmnerr.New(bpmnerr.KindMalformedDefinition,
						"exclusive gateway %q has %d default (empty-condition) flows, at most one allowed", e.ID, defaults)
				}
			}
		case KindParallelGateway, KindInclusiveGateway:
			in := p.Incoming(e.ID)
			if len(in) >= 2 && len(out) != 1 {
				return bpmnerr.New(bpmnerr.KindMalformedDefinition,
					"gateway %q is a join (%d incoming) and must have exactly one outgoing flow, found %d", e.ID, len(in), len(out))
			}
		}
	}
	return nil
}
