// Package stream is an optional durable mirror of the event broadcaster's
// fan-out onto a Redis-backed Pulse stream, so observers can reconnect
// after a restart and continue consuming from where they left off, or a
// separate process can tail the same instance's events. It is additive:
// the in-process broadcaster (internal/bpmn/broadcaster) remains the only
// thing the scheduler and SSE handlers depend on, and a deployment that
// never configures a Client simply doesn't get durable fan-out.
//
// The client/Stream/Sink split and the Redis-backed implementation wrapping
// goa.design/pulse/streaming are grounded on the teacher's
// features/stream/pulse/clients/pulse package.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"
)

// Client exposes the subset of Pulse operations the event sink needs.
type Client interface {
	Stream(name string, opts ...streamopts.Stream) (Stream, error)
	Close(ctx context.Context) error
}

// Stream is a single named Pulse stream.
type Stream interface {
	Add(ctx context.Context, eventType string, payload []byte) (string, error)
	Destroy(ctx context.Context) error
}

// ClientOptions configures a Redis-backed Client.
type ClientOptions struct {
	Redis            *redis.Client
	StreamMaxLen     int
	OperationTimeout time.Duration
}

type client struct {
	redis   *redis.Client
	maxLen  int
	timeout time.Duration
}

// NewClient builds a Client backed by opts.Redis.
func NewClient(opts ClientOptions) (Client, error) {
	if opts.Redis == nil {
		return nil, errors.New("stream: redis client is required")
	}
	return &client{redis: opts.Redis, maxLen: opts.StreamMaxLen, timeout: opts.OperationTimeout}, nil
}

func (c *client) Stream(name string, opts ...streamopts.Stream) (Stream, error) {
	if name == "" {
		return nil, errors.New("stream: name is required")
	}
	var streamOptions []streamopts.Stream
	if c.maxLen > 0 {
		streamOptions = append(streamOptions, streamopts.WithStreamMaxLen(c.maxLen))
	}
	streamOptions = append(streamOptions, opts...)
	str, err := streaming.NewStream(name, c.redis, streamOptions...)
	if err != nil {
		return nil, fmt.Errorf("stream: create pulse stream: %w", err)
	}
	return &handle{stream: str, timeout: c.timeout}, nil
}

func (c *client) Close(ctx context.Context) error {
	return nil
}

type handle struct {
	stream  *streaming.Stream
	timeout time.Duration
}

func (h *handle) Add(ctx context.Context, eventType string, payload []byte) (string, error) {
	if eventType == "" {
		return "", errors.New("stream: event type is required")
	}
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	id, err := h.stream.Add(ctx, eventType, payload)
	if err != nil {
		return "", fmt.Errorf("stream: pulse add: %w", err)
	}
	return id, nil
}

func (h *handle) Destroy(ctx context.Context) error {
	return h.stream.Destroy(ctx)
}
