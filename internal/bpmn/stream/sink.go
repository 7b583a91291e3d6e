package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bpmnkit/engine/internal/bpmn/events"
)

// Envelope wraps a BPMN event for transmission over a Pulse stream,
// grounded on the teacher's pulse sink Envelope.
type Envelope struct {
	Type       string    `json:"type"`
	InstanceID string    `json:"instance_id"`
	ElementID  string    `json:"element_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Payload    any       `json:"payload,omitempty"`
}

// SinkOptions configures a Sink.
type SinkOptions struct {
	// Client publishes events. Required.
	Client Client
	// StreamID derives the target Pulse stream name from an event.
	// Defaults to "instance/<InstanceID>".
	StreamID func(events.Event) (string, error)
}

// Sink publishes BPMN events onto Pulse streams, one stream per instance by
// default. It is handed to the engine façade as an optional second observer
// per instance, alongside the in-process broadcaster.
type Sink struct {
	client   Client
	streamID func(events.Event) (string, error)
}

// NewSink constructs a Sink. opts.Client is required.
func NewSink(opts SinkOptions) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("stream: pulse client is required")
	}
	streamID := opts.StreamID
	if streamID == nil {
		streamID = defaultStreamID
	}
	return &Sink{client: opts.Client, streamID: streamID}, nil
}

// Send publishes ev to its derived Pulse stream.
func (s *Sink) Send(ctx context.Context, ev events.Event) error {
	streamID, err := s.streamID(ev)
	if err != nil {
		return err
	}
	h, err := s.client.Stream(streamID)
	if err != nil {
		return err
	}
	env := Envelope{
		Type:       string(ev.Type()),
		InstanceID: ev.InstanceID(),
		ElementID:  ev.ElementID(),
		Timestamp:  ev.Timestamp(),
		Payload:    ev.Payload(),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = h.Add(ctx, env.Type, payload)
	return err
}

// Close releases resources owned by the sink's client.
func (s *Sink) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

func defaultStreamID(ev events.Event) (string, error) {
	if ev.InstanceID() == "" {
		return "", errors.New("stream: event missing instance id")
	}
	return fmt.Sprintf("instance/%s", ev.InstanceID()), nil
}
