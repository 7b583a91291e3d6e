package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
	"github.com/bpmnkit/engine/internal/bpmn/model"
)

const addNumbersYAML = `
id: add-numbers
name: Add Numbers
elements:
  - id: start
    kind: startEvent
  - id: compute
    kind: scriptTask
    properties:
      scriptFormat: expr
      script: "sum = num1 + num2"
      resultVariable: sum
  - id: gw
    kind: exclusiveGateway
  - id: success
    kind: endEvent
  - id: failure
    kind: endEvent
connections:
  - id: c1
    from: start
    to: compute
  - id: c2
    from: compute
    to: gw
  - id: c3
    from: gw
    to: success
    properties:
      condition: "${sum} > 10"
  - id: c4
    from: gw
    to: failure
`

func TestLoad_Valid(t *testing.T) {
	p, err := model.Load([]byte(addNumbersYAML))
	require.NoError(t, err)
	assert.Equal(t, "add-numbers", p.ID)
	assert.Len(t, p.Elements, 5)
	assert.Len(t, p.Connections, 4)

	start, ok := p.StartEvent()
	require.True(t, ok)
	assert.Equal(t, "start", start.ID)

	out := p.Outgoing("gw")
	require.Len(t, out, 2)
	assert.Equal(t, "${sum} > 10", out[0].Condition)
	assert.Equal(t, "", out[1].Condition)
}

func TestLoad_DanglingReference(t *testing.T) {
	bad := `
id: p
elements:
  - id: start
    kind: startEvent
connections:
  - id: c1
    from: start
    to: missing
`
	_, err := model.Load([]byte(bad))
	require.Error(t, err)
	assert.Equal(t, bpmnerr.KindMalformedDefinition, bpmnerr.KindOf(err))
}

func TestLoad_MultipleStartEvents(t *testing.T) {
	bad := `
id: p
elements:
  - id: s1
    kind: startEvent
  - id: s2
    kind: startEvent
`
	_, err := model.Load([]byte(bad))
	require.Error(t, err)
}

func TestLoad_ExclusiveGatewayMultipleDefaults(t *testing.T) {
	bad := `
id: p
elements:
  - id: start
    kind: startEvent
  - id: gw
    kind: exclusiveGateway
  - id: a
    kind: endEvent
  - id: b
    kind: endEvent
connections:
  - id: c0
    from: start
    to: gw
  - id: c1
    from: gw
    to: a
  - id: c2
    from: gw
    to: b
`
	_, err := model.Load([]byte(bad))
	require.Error(t, err)
	assert.Equal(t, bpmnerr.KindMalformedDefinition, bpmnerr.KindOf(err))
}

func TestLoad_ParallelJoinMustHaveSingleOutgoing(t *testing.T) {
	bad := `
id: p
elements:
  - id: start
    kind: startEvent
  - id: fork
    kind: parallelGateway
  - id: a
    kind: task
  - id: b
    kind: task
  - id: join
    kind: parallelGateway
  - id: e1
    kind: endEvent
  - id: e2
    kind: endEvent
connections:
  - id: c0
    from: start
    to: fork
  - id: c1
    from: fork
    to: a
  - id: c2
    from: fork
    to: b
  - id: c3
    from: a
    to: join
  - id: c4
    from: b
    to: join
  - id: c5
    from: join
    to: e1
  - id: c6
    from: join
    to: e2
`
	_, err := model.Load([]byte(bad))
	require.Error(t, err)
}

func TestLoad_UnknownKind(t *testing.T) {
	bad := `
id: p
elements:
  - id: start
    kind: bogusKind
`
	_, err := model.Load([]byte(bad))
	require.Error(t, err)
}
