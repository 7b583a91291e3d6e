// Package correlation implements the message-correlation bus (C7, spec
// §4.6): a process-wide rendezvous between inbound external messages
// (webhook callbacks, UI decisions) and the single suspended executor
// awaiting a given (messageRef, correlationKey) pair.
//
// The shape — a mutex-guarded registry of one-shot notifiers keyed by a
// compound key, with suspension implemented by handing a continuation to the
// registry rather than blocking with a held lock — mirrors the teacher's
// interrupt.Controller signal-channel model, generalized from Temporal
// signal channels to a plain Go channel-based future since the engine is
// in-memory (spec Non-goals: no durable recovery across restarts).
package correlation

import (
	"context"
	"sync"
	"time"

	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
)

// DefaultBufferTTL is the grace window (CORRELATION_BUFFER_TTL_S, spec
// §6.5) during which an early-arriving publish is retained for a
// not-yet-registered waiter.
const DefaultBufferTTL = 300 * time.Second

// Key identifies a correlation rendezvous point.
type Key struct {
	MessageRef     string
	CorrelationKey string
}

// Future is returned by Wait and resolves exactly once, either with a
// delivered payload or with an error (ReceiveTimeout, Cancelled).
type Future struct {
	ch chan result
}

type result struct {
	payload map[string]any
	err     error
}

// Await blocks until the future resolves or ctx is cancelled.
func (f *Future) Await(ctx context.Context) (map[string]any, error) {
	select {
	case r := <-f.ch:
		return r.payload, r.err
	case <-ctx.Done():
		return nil, bpmnerr.Wrap(bpmnerr.KindCancelled, ctx.Err(), "correlation wait cancelled")
	}
}

type waiter struct {
	resultCh chan result
	once     sync.Once
	timer    *time.Timer
}

func (w *waiter) resolve(r result) {
	w.once.Do(func() {
		if w.timer != nil {
			w.timer.Stop()
		}
		w.resultCh <- r
	})
}

type buffered struct {
	payload map[string]any
	expires time.Time
}

// Bus is the process-wide correlation registry.
type Bus struct {
	mu        sync.Mutex
	waiters   map[Key]*waiter
	buffer    map[Key]buffered
	bufferTTL time.Duration
	onDiscard func(Key)
}

// New constructs a Bus. bufferTTL <= 0 uses DefaultBufferTTL.
func New(bufferTTL time.Duration) *Bus {
	if bufferTTL <= 0 {
		bufferTTL = DefaultBufferTTL
	}
	return &Bus{
		waiters:   make(map[Key]*waiter),
		buffer:    make(map[Key]buffered),
		bufferTTL: bufferTTL,
	}
}

// OnDiscard registers a callback invoked when a buffered message expires
// unclaimed (spec §4.6: "after T, enqueued messages are discarded and
// logged").
func (b *Bus) OnDiscard(fn func(Key)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDiscard = fn
}

// Wait registers a waiter for key and returns a Future. At most one waiter
// may be registered per key at a time; a second registration fails with
// DuplicateWaiter (spec §4.6). If a message was already buffered for key
// (an "early" webhook delivery, spec §9 open question — resolved here as a
// best-effort grace window), it is delivered immediately instead of
// registering a new waiter.
//
// If deadline is non-zero, the future resolves with ReceiveTimeout once it
// elapses without a matching publish.
func (b *Bus) Wait(key Key, deadline time.Duration) (*Future, error) {
	b.mu.Lock()
	if buf, ok := b.buffer[key]; ok {
		delete(b.buffer, key)
		b.mu.Unlock()
		f := &Future{ch: make(chan result, 1)}
		f.ch <- result{payload: buf.payload}
		return f, nil
	}
	if _, exists := b.waiters[key]; exists {
		b.mu.Unlock()
		return nil, bpmnerr.New(bpmnerr.KindDuplicateWaiter, "waiter already registered for messageRef=%q correlationKey=%q", key.MessageRef, key.CorrelationKey)
	}
	w := &waiter{resultCh: make(chan result, 1)}
	b.waiters[key] = w
	b.mu.Unlock()

	if deadline > 0 {
		w.timer = time.AfterFunc(deadline, func() {
			b.mu.Lock()
			if b.waiters[key] == w {
				delete(b.waiters, key)
			}
			b.mu.Unlock()
			w.resolve(result{err: bpmnerr.New(bpmnerr.KindReceiveTimeout, "no message received for messageRef=%q correlationKey=%q within deadline", key.MessageRef, key.CorrelationKey)})
		})
	}

	return &Future{ch: w.resultCh}, nil
}

// Publish delivers payload to the waiter registered for key. If no waiter is
// registered, the message is buffered for bufferTTL so a slightly-late Wait
// still observes it (spec §4.6). Delivery is exactly once: the registry
// entry is removed atomically with delivery.
func (b *Bus) Publish(key Key, payload map[string]any) {
	b.mu.Lock()
	w, ok := b.waiters[key]
	if ok {
		delete(b.waiters, key)
	}
	var discard func(Key)
	if !ok {
		b.buffer[key] = buffered{payload: payload, expires: time.Now().Add(b.bufferTTL)}
		discard = b.onDiscard
		ttl := b.bufferTTL
		go b.expireBuffer(key, ttl, discard)
	}
	b.mu.Unlock()

	if ok {
		w.resolve(result{payload: payload})
	}
}

func (b *Bus) expireBuffer(key Key, ttl time.Duration, discard func(Key)) {
	t := time.NewTimer(ttl)
	defer t.Stop()
	<-t.C
	b.mu.Lock()
	buf, ok := b.buffer[key]
	expired := ok && !time.Now().Before(buf.expires)
	if expired {
		delete(b.buffer, key)
	}
	b.mu.Unlock()
	if expired && discard != nil {
		discard(key)
	}
}

// Cancel removes the waiter registered for key, resolving its future with a
// Cancelled error. Used when the waiting instance is cancelled (spec §4.6:
// "Cancellation of the waiting instance removes its entry").
func (b *Bus) Cancel(key Key) {
	b.mu.Lock()
	w, ok := b.waiters[key]
	if ok {
		delete(b.waiters, key)
	}
	b.mu.Unlock()
	if ok {
		w.resolve(result{err: bpmnerr.New(bpmnerr.KindCancelled, "waiter for messageRef=%q correlationKey=%q was cancelled", key.MessageRef, key.CorrelationKey)})
	}
}
