// Package broadcaster implements the event broadcaster (C8, spec §4.7): fan
// out executor/scheduler events to observers, retain per-element history for
// replay, and never let a slow observer block the scheduler.
//
// The fan-out shape is grounded on the teacher's hooks.Bus synchronous
// registry, generalized from a fail-fast error-propagating publish to a
// best-effort, backpressure-safe one: each observer gets its own bounded
// channel (sized by OBSERVER_QUEUE_SIZE) and a full channel drops the
// observer rather than blocking Publish (spec §5, §4.7.1).
package broadcaster

import (
	"sync"

	"github.com/bpmnkit/engine/internal/bpmn/events"
)

// DefaultQueueSize is used when NewObserver is called with size <= 0.
const DefaultQueueSize = 256

// Observer is a single subscriber's view onto an instance's event stream.
type Observer struct {
	id      uint64
	ch      chan events.Event
	dropped chan struct{}
	once    sync.Once
}

// Events returns the channel of events delivered to this observer. The
// channel is closed when the observer is detached (explicitly, or because
// its queue overflowed).
func (o *Observer) Events() <-chan events.Event { return o.ch }

// Dropped reports, via a channel closed on drop, whether this observer was
// disconnected for falling behind (spec invariant P10: a wedged observer is
// disconnected within a bounded time rather than stalling the scheduler).
func (o *Observer) Dropped() <-chan struct{} { return o.dropped }

func (o *Observer) close() {
	o.once.Do(func() {
		close(o.ch)
		close(o.dropped)
	})
}

// elementHistory retains the ordered per-element entries that back replay
// (spec §3.4, §4.7.2).
type elementHistory struct {
	thinking []events.ThinkingEntry
	tools    map[string]*events.ToolEntry // keyed by tool_call_id, open until End arrives
	toolOrder []string
	messages map[string]*events.MessageEntry // keyed by message_id
	msgOrder []string
}

// Broadcaster fans out events for a single workflow instance. One
// Broadcaster is owned per Instance by the scheduler/façade.
type Broadcaster struct {
	mu        sync.Mutex
	nextID    uint64
	observers map[uint64]*Observer
	queueSize int
	history   map[string]*elementHistory // keyed by element id
}

// New constructs a Broadcaster. queueSize <= 0 uses DefaultQueueSize.
func New(queueSize int) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Broadcaster{
		observers: make(map[uint64]*Observer),
		queueSize: queueSize,
		history:   make(map[string]*elementHistory),
	}
}

// Subscribe attaches a new observer and returns its handle.
func (b *Broadcaster) Subscribe() *Observer {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	obs := &Observer{
		id:      b.nextID,
		ch:      make(chan events.Event, b.queueSize),
		dropped: make(chan struct{}),
	}
	b.observers[obs.id] = obs
	return obs
}

// Unsubscribe detaches an observer, closing its channel.
func (b *Broadcaster) Unsubscribe(obs *Observer) {
	b.mu.Lock()
	delete(b.observers, obs.id)
	b.mu.Unlock()
	obs.close()
}

// Publish fans out ev to every subscribed observer and records it into
// per-element history where applicable. It never blocks: an observer whose
// queue is full is dropped rather than stalling the caller (spec §5, P10).
func (b *Broadcaster) Publish(ev events.Event) {
	b.mu.Lock()
	b.record(ev)
	obs := make([]*Observer, 0, len(b.observers))
	for _, o := range b.observers {
		obs = append(obs, o)
	}
	var overflowed []*Observer
	for _, o := range obs {
		select {
		case o.ch <- ev:
		default:
			overflowed = append(overflowed, o)
		}
	}
	for _, o := range overflowed {
		delete(b.observers, o.id)
	}
	b.mu.Unlock()

	for _, o := range overflowed {
		o.close()
	}
}

// SendTo delivers ev only to the given observer (used for replay.request
// responses, which target the requesting observer exclusively per spec
// §4.7.3). Overflow still drops the observer rather than blocking.
func (b *Broadcaster) SendTo(obs *Observer, ev events.Event) {
	select {
	case obs.ch <- ev:
	default:
		b.mu.Lock()
		delete(b.observers, obs.id)
		b.mu.Unlock()
		obs.close()
	}
}

// record appends ev into the retained per-element history, merging tool
// start/end pairs and collapsing sentence chunks into whole messages (spec
// §4.7.2, §4.7.3). Caller must hold b.mu.
func (b *Broadcaster) record(ev events.Event) {
	elementID := ev.ElementID()
	if elementID == "" {
		return
	}
	h := b.history[elementID]
	if h == nil {
		h = &elementHistory{
			tools:    make(map[string]*events.ToolEntry),
			messages: make(map[string]*events.MessageEntry),
		}
		b.history[elementID] = h
	}

	switch t := ev.(type) {
	case events.TaskThinking:
		h.thinking = append(h.thinking, events.ThinkingEntry{
			Timestamp: t.Timestamp(),
			Message:   t.Data.Message,
		})
	case events.TaskToolStart:
		entry := &events.ToolEntry{
			Name:      t.Data.Name,
			StartTime: t.Timestamp(),
			Args:      t.Data.Args,
		}
		h.tools[t.Data.ToolCallID] = entry
		h.toolOrder = append(h.toolOrder, t.Data.ToolCallID)
	case events.TaskToolEnd:
		if entry, ok := h.tools[t.Data.ToolCallID]; ok {
			end := t.Timestamp()
			entry.EndTime = &end
			entry.Result = t.Data.Result
		}
	case events.TextMessageStart:
		h.messages[t.Data.MessageID] = &events.MessageEntry{
			ID:        t.Data.MessageID,
			Role:      t.Data.Role,
			Timestamp: t.Timestamp(),
		}
		h.msgOrder = append(h.msgOrder, t.Data.MessageID)
	case events.TextMessageChunk:
		if entry, ok := h.messages[t.Data.MessageID]; ok {
			entry.Content += t.Data.Sentence
		} else {
			entry = &events.MessageEntry{ID: t.Data.MessageID, Content: t.Data.Sentence, Timestamp: t.Timestamp()}
			h.messages[t.Data.MessageID] = entry
			h.msgOrder = append(h.msgOrder, t.Data.MessageID)
		}
	case events.TextMessageEnd:
		entry, ok := h.messages[t.Data.MessageID]
		if !ok {
			entry = &events.MessageEntry{ID: t.Data.MessageID, Timestamp: t.Timestamp()}
			h.messages[t.Data.MessageID] = entry
			h.msgOrder = append(h.msgOrder, t.Data.MessageID)
		}
		if t.Data.Content != "" {
			entry.Content = t.Data.Content
		}
		entry.Cancelled = t.Data.Cancelled
		entry.CancellationReason = t.Data.CancellationReason
	}
}

// Replay compiles the retained history for elementID into a
// MessagesSnapshot, sent only to the requesting observer (spec §4.7.3,
// invariant P6: the same server-assigned timestamps a live observer would
// have seen).
func (b *Broadcaster) Replay(instanceID, elementID string) events.MessagesSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := events.MessagesSnapshotPayload{}
	h := b.history[elementID]
	if h != nil {
		snap.Thinking = append(snap.Thinking, h.thinking...)
		for _, id := range h.toolOrder {
			snap.Tools = append(snap.Tools, *h.tools[id])
		}
		for _, id := range h.msgOrder {
			snap.Messages = append(snap.Messages, *h.messages[id])
		}
	}
	return events.MessagesSnapshot{
		Base: events.NewBase(events.TypeMessagesSnapshot, instanceID, elementID),
		Data: snap,
	}
}

// ClearHistory purges retained entries for every element of the instance
// (observer-initiated clear.history, spec §4.7.4). Active waiters are
// untouched — this only affects the replay buffer.
func (b *Broadcaster) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = make(map[string]*elementHistory)
}

// ObserverCount reports the number of currently attached observers, used by
// the façade's status snapshot.
func (b *Broadcaster) ObserverCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}
