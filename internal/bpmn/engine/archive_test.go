package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bpmnkit/engine/internal/bpmn/events"
	"github.com/bpmnkit/engine/internal/bpmn/mcp"
)

func TestEventExtra_CarriesToolServerData(t *testing.T) {
	ev := events.TaskToolEnd{
		Base: events.NewBase(events.TypeTaskToolEnd, "inst-1", "task-1"),
		Data: events.TaskToolEndPayload{
			ToolCallID: "call-1",
			Name:       "files.read",
			Result:     json.RawMessage(`"contents"`),
			ServerData: []mcp.ServerDataItem{{Kind: "trace", Audience: "ops", Data: json.RawMessage(`{"latency_ms":12}`)}},
		},
	}

	extra := eventExtra(ev)
	assert.Equal(t, ev.Data.ServerData, extra["server_data"])
}

func TestEventExtra_NilWhenNoServerData(t *testing.T) {
	ev := events.TaskToolEnd{
		Base: events.NewBase(events.TypeTaskToolEnd, "inst-1", "task-1"),
		Data: events.TaskToolEndPayload{ToolCallID: "call-1", Name: "files.read", Result: json.RawMessage(`"contents"`)},
	}
	assert.Nil(t, eventExtra(ev))
}

func TestEventExtra_NilForOtherEventTypes(t *testing.T) {
	ev := events.ElementActivated{
		Base: events.NewBase(events.TypeElementActivated, "inst-1", "task-1"),
	}
	assert.Nil(t, eventExtra(ev))
}
