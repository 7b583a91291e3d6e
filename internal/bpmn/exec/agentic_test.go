package exec_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpmnkit/engine/internal/bpmn/aiclient"
	"github.com/bpmnkit/engine/internal/bpmn/events"
	"github.com/bpmnkit/engine/internal/bpmn/exec"
	"github.com/bpmnkit/engine/internal/bpmn/mcp"
	"github.com/bpmnkit/engine/internal/bpmn/model"
)

type fakeStream struct {
	events []aiclient.Event
	idx    int
}

func (s *fakeStream) Next(ctx context.Context) (aiclient.Event, bool, error) {
	if s.idx >= len(s.events) {
		return aiclient.Event{}, false, nil
	}
	ev := s.events[s.idx]
	s.idx++
	return ev, true, nil
}

func (s *fakeStream) Close() error { return nil }

type fakeClient struct {
	attempts [][]aiclient.Event
	calls    int
}

func (c *fakeClient) Stream(ctx context.Context, req aiclient.Request) (aiclient.Stream, error) {
	evs := c.attempts[c.calls]
	c.calls++
	return &fakeStream{events: evs}, nil
}

type fakeCaller struct{}

func (fakeCaller) CallTool(ctx context.Context, req mcp.CallRequest) (mcp.CallResponse, error) {
	return mcp.CallResponse{Result: json.RawMessage(`{"ok":true}`)}, nil
}

func TestAgenticTask_AcceptsFirstHighConfidenceAttempt(t *testing.T) {
	r := exec.NewDefaultRegistry()
	ex, _ := r.Lookup(model.KindAgenticTask)

	registry := aiclient.NewRegistry()
	client := &fakeClient{attempts: [][]aiclient.Event{
		{
			{Kind: aiclient.EventDelta, Delta: "All good."},
			{Kind: aiclient.EventDone, Content: "All good.", Confidence: 0.95},
		},
	}}
	registry.SetFallback(client)

	var captured []events.Event
	e := &model.Element{
		ID:   "draft",
		Kind: model.KindAgenticTask,
		Properties: map[string]any{
			"model":               "anthropic/claude",
			"confidenceThreshold": 0.8,
			"maxRetries":          3,
		},
	}
	rc := &exec.RunContext{
		InstanceID: "inst-1",
		Element:    e,
		Store:      newStore(),
		Emit:       func(ev events.Event) { captured = append(captured, ev) },
		Deps:       &exec.Deps{AI: registry, MCP: fakeCaller{}},
	}

	result, err := ex.Execute(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, "result", result.ResultVariable)
	assert.Equal(t, "All good.", rc.Store.Get("result"))
	assert.Equal(t, 1, client.calls)

	var sawEnd bool
	for _, ev := range captured {
		if ev.Type() == events.TypeTextMessageEnd {
			sawEnd = true
		}
	}
	assert.True(t, sawEnd)
}

func TestAgenticTask_RetriesBelowThresholdThenFails(t *testing.T) {
	r := exec.NewDefaultRegistry()
	ex, _ := r.Lookup(model.KindAgenticTask)

	registry := aiclient.NewRegistry()
	client := &fakeClient{attempts: [][]aiclient.Event{
		{{Kind: aiclient.EventDone, Content: "unsure", Confidence: 0.1}},
		{{Kind: aiclient.EventDone, Content: "still unsure", Confidence: 0.2}},
	}}
	registry.SetFallback(client)

	e := &model.Element{
		ID:   "draft",
		Kind: model.KindAgenticTask,
		Properties: map[string]any{
			"model":               "anthropic/claude",
			"confidenceThreshold": 0.9,
			"maxRetries":          2,
		},
	}
	rc := &exec.RunContext{
		InstanceID: "inst-1",
		Element:    e,
		Store:      newStore(),
		Emit:       func(events.Event) {},
		Deps:       &exec.Deps{AI: registry},
	}

	_, err := ex.Execute(context.Background(), rc)
	assert.Error(t, err)
	assert.Equal(t, 2, client.calls)
}

func TestAgenticTask_InvokesMCPToolCall(t *testing.T) {
	r := exec.NewDefaultRegistry()
	ex, _ := r.Lookup(model.KindAgenticTask)

	registry := aiclient.NewRegistry()
	client := &fakeClient{attempts: [][]aiclient.Event{
		{
			{Kind: aiclient.EventToolCall, ToolCall: &aiclient.ToolCallRequest{ID: "call-1", Name: "search.lookup", Args: map[string]any{"q": "x"}}},
			{Kind: aiclient.EventDone, Content: "done", Confidence: 1.0},
		},
	}}
	registry.SetFallback(client)

	var toolEnded bool
	e := &model.Element{ID: "draft", Kind: model.KindAgenticTask, Properties: map[string]any{"model": "anthropic/claude"}}
	rc := &exec.RunContext{
		InstanceID: "inst-1",
		Element:    e,
		Store:      newStore(),
		Emit: func(ev events.Event) {
			if ev.Type() == events.TypeTaskToolEnd {
				toolEnded = true
			}
		},
		Deps: &exec.Deps{AI: registry, MCP: fakeCaller{}},
	}

	_, err := ex.Execute(context.Background(), rc)
	require.NoError(t, err)
	assert.True(t, toolEnded)
}
