package broadcaster_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpmnkit/engine/internal/bpmn/broadcaster"
	"github.com/bpmnkit/engine/internal/bpmn/events"
)

func TestPublish_FanOutToAllObservers(t *testing.T) {
	b := broadcaster.New(4)
	o1 := b.Subscribe()
	o2 := b.Subscribe()

	ev := events.ElementActivated{Base: events.NewBase(events.TypeElementActivated, "inst1", "task1")}
	b.Publish(ev)

	select {
	case got := <-o1.Events():
		assert.Equal(t, events.TypeElementActivated, got.Type())
	case <-time.After(time.Second):
		t.Fatal("o1 did not receive event")
	}
	select {
	case got := <-o2.Events():
		assert.Equal(t, events.TypeElementActivated, got.Type())
	case <-time.After(time.Second):
		t.Fatal("o2 did not receive event")
	}
}

func TestPublish_OverflowDropsObserverWithoutBlocking(t *testing.T) {
	b := broadcaster.New(1)
	o := b.Subscribe()

	for i := 0; i < 10; i++ {
		b.Publish(events.ElementActivated{Base: events.NewBase(events.TypeElementActivated, "inst1", "task1")})
	}

	select {
	case <-o.Dropped():
	case <-time.After(time.Second):
		t.Fatal("observer was not dropped on overflow")
	}
}

func TestReplay_CollapsesChunksIntoWholeMessage(t *testing.T) {
	b := broadcaster.New(16)
	inst, el := "inst1", "agentic1"

	b.Publish(events.TextMessageStart{Base: events.NewBase(events.TypeTextMessageStart, inst, el), Data: events.TextMessagePayload{MessageID: "m1", Role: "assistant"}})
	b.Publish(events.TextMessageChunk{Base: events.NewBase(events.TypeTextMessageChunk, inst, el), Data: events.TextMessageChunkPayload{MessageID: "m1", Sentence: "Hello. "}})
	b.Publish(events.TextMessageChunk{Base: events.NewBase(events.TypeTextMessageChunk, inst, el), Data: events.TextMessageChunkPayload{MessageID: "m1", Sentence: "World."}})
	b.Publish(events.TextMessageEnd{Base: events.NewBase(events.TypeTextMessageEnd, inst, el), Data: events.TextMessageEndPayload{MessageID: "m1"}})

	snap := b.Replay(inst, el)
	require.Len(t, snap.Data.Messages, 1)
	assert.Equal(t, "Hello. World.", snap.Data.Messages[0].Content)
}

func TestReplay_PairsToolStartAndEnd(t *testing.T) {
	b := broadcaster.New(16)
	inst, el := "inst1", "agentic1"

	b.Publish(events.TaskToolStart{Base: events.NewBase(events.TypeTaskToolStart, inst, el), Data: events.TaskToolStartPayload{ToolCallID: "t1", Name: "search"}})
	b.Publish(events.TaskToolEnd{Base: events.NewBase(events.TypeTaskToolEnd, inst, el), Data: events.TaskToolEndPayload{ToolCallID: "t1", Result: "ok"}})

	snap := b.Replay(inst, el)
	require.Len(t, snap.Data.Tools, 1)
	assert.Equal(t, "search", snap.Data.Tools[0].Name)
	assert.NotNil(t, snap.Data.Tools[0].EndTime)
}

func TestClearHistory_PurgesAllElements(t *testing.T) {
	b := broadcaster.New(16)
	b.Publish(events.TaskThinking{Base: events.NewBase(events.TypeTaskThinking, "inst1", "el1"), Data: events.TaskThinkingPayload{Message: "hi"}})
	b.ClearHistory()
	snap := b.Replay("inst1", "el1")
	assert.Empty(t, snap.Data.Thinking)
}
