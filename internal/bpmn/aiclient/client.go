// Package aiclient defines the streaming AI-provider collaborator the
// agentic task executor drives (spec §4.5.1). The concrete provider client
// is explicitly out of scope (spec §1): this package only fixes the
// streaming contract (incremental deltas, tool-call requests, a confidence
// score on completion) and its provider adapters, mirroring the teacher's
// features/model/{anthropic,bedrock,openai} adapter split.
package aiclient

import "context"

// ToolSpec describes one MCP-backed tool the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Request starts one streaming completion for an agentic task attempt.
type Request struct {
	Model        string
	SystemPrompt string
	Input        string
	Tools        []ToolSpec
}

// EventKind discriminates the variants of Event.
type EventKind int

const (
	// EventDelta carries an incremental text fragment.
	EventDelta EventKind = iota
	// EventToolCall carries a model-requested tool invocation.
	EventToolCall
	// EventDone marks stream completion and carries the parsed confidence
	// score (spec §4.5.1.d: "If absent, assume 1.0").
	EventDone
)

// Event is one item yielded by a Stream.
type Event struct {
	Kind       EventKind
	Delta      string
	ToolCall   *ToolCallRequest
	Confidence float64
	Content    string // full assembled content, set only on EventDone
}

// ToolCallRequest is a model-issued request to invoke a tool.
type ToolCallRequest struct {
	ID   string
	Name string
	Args map[string]any
}

// Stream yields Events until EventDone (or ctx is cancelled / the
// underlying transport errors). Implementations must support cancellation
// at every read: the agentic executor's cancellation contract (spec §5)
// requires the AI collaborator to abort inflight streams on cancel.
type Stream interface {
	Next(ctx context.Context) (Event, bool, error) // ok=false at end of stream
	Close() error
}

// Client opens a streaming completion against a model provider.
type Client interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Registry resolves a model identifier (e.g. "anthropic/claude-sonnet",
// "bedrock/amazon.titan", "openai/gpt-4o") to the Client that serves it.
type Registry struct {
	clients map[string]Client
	fallback Client
}

// NewRegistry constructs an empty Registry. Use Register to wire providers.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register associates a provider prefix (e.g. "anthropic") with a Client.
func (r *Registry) Register(provider string, c Client) {
	r.clients[provider] = c
}

// SetFallback designates a Client used when no provider prefix matches.
func (r *Registry) SetFallback(c Client) { r.fallback = c }

// Resolve returns the Client for model, splitting on the first "/" as the
// provider prefix. Falls back to the registry's fallback client, and then to
// any single registered client, if no exact prefix match is found.
func (r *Registry) Resolve(model string) (Client, string) {
	provider, rest := splitProvider(model)
	if c, ok := r.clients[provider]; ok {
		return c, rest
	}
	if r.fallback != nil {
		return r.fallback, model
	}
	for _, c := range r.clients {
		return c, model
	}
	return nil, model
}

func splitProvider(model string) (provider, rest string) {
	for i := 0; i < len(model); i++ {
		if model[i] == '/' {
			return model[:i], model[i+1:]
		}
	}
	return "", model
}
