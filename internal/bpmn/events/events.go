// Package events defines the wire event types the engine emits to observers
// (spec §4.7, §6.1). Every concrete event embeds Base, which carries the
// common envelope fields (type, instance id, element id, timestamp) behind
// accessor methods, mirroring the teacher stream package's Base/Event split
// so sinks can marshal generically while typed consumers still get field
// access via assertions.
package events

import (
	"time"

	"github.com/bpmnkit/engine/internal/bpmn/mcp"
)

// Type enumerates the event kinds observers may receive.
type Type string

const (
	TypeWorkflowStarted   Type = "workflow.started"
	TypeWorkflowCompleted Type = "workflow.completed"
	TypeElementActivated  Type = "element.activated"
	TypeElementCompleted  Type = "element.completed"
	TypeElementSkipped    Type = "element.skipped"
	TypeTaskProgress      Type = "task.progress"
	TypeTaskThinking      Type = "task.thinking"
	TypeTaskToolStart     Type = "task.tool.start"
	TypeTaskToolEnd       Type = "task.tool.end"
	TypeTextMessageStart  Type = "text.message.start"
	TypeTextMessageContent Type = "text.message.content"
	TypeTextMessageChunk  Type = "text.message.chunk"
	TypeTextMessageEnd    Type = "text.message.end"
	TypeAgentToolUse      Type = "agent.tool_use"
	TypeUserTaskCreated   Type = "userTask.created"
	TypeGatewayEvaluating Type = "gateway.evaluating"
	TypeGatewayPathTaken  Type = "gateway.path_taken"
	TypeTaskError         Type = "task.error"
	TypeTaskCancellable   Type = "task.cancellable"
	TypeTaskCancelling    Type = "task.cancelling"
	TypeTaskCancelled     Type = "task.cancelled"
	TypeTaskCancelFailed  Type = "task.cancel.failed"
	TypeMessagesSnapshot  Type = "messages.snapshot"
	TypeDeadlock          Type = "deadlock"
	TypePong              Type = "pong"
)

// Base carries the envelope fields common to every event. The timestamp is
// assigned once, at emission, and is the canonical time for both live
// delivery and replay (spec §6.1: observers must not substitute local time).
type Base struct {
	t          Type
	instanceID string
	elementID  string
	ts         time.Time
}

// NewBase constructs a Base with the current wall-clock time as its
// server-assigned timestamp.
func NewBase(t Type, instanceID, elementID string) Base {
	return Base{t: t, instanceID: instanceID, elementID: elementID, ts: time.Now().UTC()}
}

func (b Base) Type() Type           { return b.t }
func (b Base) InstanceID() string   { return b.instanceID }
func (b Base) ElementID() string    { return b.elementID }
func (b Base) Timestamp() time.Time { return b.ts }

// Event is implemented by every concrete event type. Sinks marshal events
// generically via Payload(); typed consumers type-assert to the concrete
// struct for field access.
type Event interface {
	Type() Type
	InstanceID() string
	ElementID() string
	Timestamp() time.Time
	Payload() any
}

type (
	// WorkflowStarted is emitted once when the engine façade begins an
	// instance.
	WorkflowStarted struct {
		Base
		Data WorkflowStartedPayload
	}
	WorkflowStartedPayload struct {
		ProcessID string `json:"process_id"`
	}

	// WorkflowCompleted is emitted once an instance reaches a terminal
	// status.
	WorkflowCompleted struct {
		Base
		Data WorkflowCompletedPayload
	}
	WorkflowCompletedPayload struct {
		Outcome  string        `json:"outcome"` // success|failed|cancelled
		Duration time.Duration `json:"duration"`
		Error    string        `json:"error,omitempty"`
	}

	// ElementActivated is emitted when the scheduler adds an element to the
	// live frontier.
	ElementActivated struct {
		Base
	}

	// ElementCompleted is emitted when an element's executor finishes; the
	// engine treats this as the canonical completion signal: token movement
	// is a presentation-level consequence of this event, not a separately
	// ordered signal.
	ElementCompleted struct {
		Base
		Data ElementCompletedPayload
	}
	ElementCompletedPayload struct {
		ResultVariable string `json:"result_variable,omitempty"`
	}

	// ElementSkipped marks an element unreachable after a gateway decision
	// (spec §4.8, invariant P8).
	ElementSkipped struct {
		Base
	}

	// TaskProgress carries a generic incremental progress update.
	TaskProgress struct {
		Base
		Data TaskProgressPayload
	}
	TaskProgressPayload struct {
		Message string `json:"message"`
	}

	// TaskThinking carries a human-readable "thinking" annotation, retained
	// for replay (spec §3.4).
	TaskThinking struct {
		Base
		Data TaskThinkingPayload
	}
	TaskThinkingPayload struct {
		Message string `json:"message"`
	}

	// TaskToolStart/TaskToolEnd bracket an MCP tool invocation within an
	// agentic task (spec §4.5.1).
	TaskToolStart struct {
		Base
		Data TaskToolStartPayload
	}
	TaskToolStartPayload struct {
		ToolCallID string `json:"tool_call_id"`
		Name       string `json:"name"`
		Args       any    `json:"args"`
	}
	TaskToolEnd struct {
		Base
		Data TaskToolEndPayload
	}
	TaskToolEndPayload struct {
		ToolCallID string `json:"tool_call_id"`
		Name       string `json:"name"`
		Result     any    `json:"result,omitempty"`
		Error      string `json:"error,omitempty"`

		// ServerData carries the tool call's server-only diagnostic payloads
		// (spec §3.4), never part of the model-facing conversation. Archived
		// separately from Result in persist.EventRecord.Extra.
		ServerData []mcp.ServerDataItem `json:"server_data,omitempty"`
	}

	// TextMessageStart/Content/Chunk/End stream an agentic task's model
	// output. Content carries per-delta increments; Chunk carries complete
	// sentences (spec §4.5.1.b). Both share MessageID within one attempt.
	TextMessageStart struct {
		Base
		Data TextMessagePayload
	}
	TextMessageContent struct {
		Base
		Data TextMessageContentPayload
	}
	TextMessageContentPayload struct {
		MessageID string `json:"message_id"`
		Delta     string `json:"delta"`
	}
	TextMessageChunk struct {
		Base
		Data TextMessageChunkPayload
	}
	TextMessageChunkPayload struct {
		MessageID string `json:"message_id"`
		Sentence  string `json:"sentence"`
	}
	TextMessageEnd struct {
		Base
		Data TextMessageEndPayload
	}
	TextMessageEndPayload struct {
		MessageID           string `json:"message_id"`
		Content             string `json:"content"`
		Cancelled           bool   `json:"cancelled,omitempty"`
		CancellationReason  string `json:"cancellation_reason,omitempty"`
	}
	TextMessagePayload struct {
		MessageID string `json:"message_id"`
		Role      string `json:"role"`
	}

	// AgentToolUse is a coarse-grained summary event mirroring ToolStart and
	// ToolEnd for observers that only want a single tool-use record.
	AgentToolUse struct {
		Base
		Data AgentToolUsePayload
	}
	AgentToolUsePayload struct {
		Name string `json:"name"`
	}

	// UserTaskCreated is emitted when a user task suspends awaiting a
	// decision (spec §4.5, userTask row).
	UserTaskCreated struct {
		Base
		Data UserTaskCreatedPayload
	}
	UserTaskCreatedPayload struct {
		Assignee        string         `json:"assignee,omitempty"`
		CandidateGroups []string       `json:"candidate_groups,omitempty"`
		Priority        string         `json:"priority,omitempty"`
		DueDate         string         `json:"due_date,omitempty"`
		FormFields      map[string]any `json:"form_fields,omitempty"`
	}

	// GatewayEvaluating/GatewayPathTaken bracket a gateway decision (spec
	// §4.4).
	GatewayEvaluating struct {
		Base
	}
	GatewayPathTaken struct {
		Base
		Data GatewayPathTakenPayload
	}
	GatewayPathTakenPayload struct {
		Taken    []string `json:"taken"`
		NotTaken []string `json:"not_taken"`
	}

	// TaskError reports an element failure (spec §7).
	TaskError struct {
		Base
		Data TaskErrorPayload
	}
	TaskErrorPayload struct {
		Message   string `json:"message"`
		ErrorType string `json:"type"`
		Retryable bool   `json:"retryable"`
	}

	// TaskCancellable/Cancelling/Cancelled/CancelFailed bracket the
	// cancellation protocol (spec §4.8, §5).
	TaskCancellable struct{ Base }
	TaskCancelling  struct{ Base }
	TaskCancelled   struct {
		Base
		Data TaskCancelledPayload
	}
	TaskCancelledPayload struct {
		PartialResult any    `json:"partial_result,omitempty"`
		Error         string `json:"error,omitempty"`
	}
	TaskCancelFailed struct {
		Base
		Data TaskCancelFailedPayload
	}
	TaskCancelFailedPayload struct {
		Reason string `json:"reason"`
	}

	// MessagesSnapshot is sent to a single requesting observer in response to
	// a replay.request (spec §4.7.3).
	MessagesSnapshot struct {
		Base
		Data MessagesSnapshotPayload
	}
	MessagesSnapshotPayload struct {
		Thinking []ThinkingEntry `json:"thinking,omitempty"`
		Tools    []ToolEntry     `json:"tools,omitempty"`
		Messages []MessageEntry  `json:"messages,omitempty"`
	}
	ThinkingEntry struct {
		Timestamp time.Time `json:"timestamp"`
		Message   string    `json:"message"`
	}
	ToolEntry struct {
		Name      string     `json:"name"`
		StartTime time.Time  `json:"start_time"`
		EndTime   *time.Time `json:"end_time,omitempty"`
		Args      any        `json:"args,omitempty"`
		Result    any        `json:"result,omitempty"`
	}
	MessageEntry struct {
		ID                 string    `json:"id"`
		Role               string    `json:"role"`
		Content            string    `json:"content"`
		Timestamp          time.Time `json:"timestamp"`
		Cancelled          bool      `json:"cancelled,omitempty"`
		CancellationReason string    `json:"cancellation_reason,omitempty"`
	}

	// Deadlock is the diagnostic event emitted by the scheduler's deadlock
	// monitor (spec §4.8).
	Deadlock struct {
		Base
		Data DeadlockPayload
	}
	DeadlockPayload struct {
		JoinID           string   `json:"join_id"`
		ArrivedBranches  []string `json:"arrived_branches"`
		MissingBranches  []string `json:"missing_branches"`
	}

	// Pong answers an observer ping (spec §6.1).
	Pong struct{ Base }
)

func (e WorkflowStarted) Payload() any     { return e.Data }
func (e WorkflowCompleted) Payload() any   { return e.Data }
func (e ElementActivated) Payload() any    { return nil }
func (e ElementCompleted) Payload() any    { return e.Data }
func (e ElementSkipped) Payload() any      { return nil }
func (e TaskProgress) Payload() any        { return e.Data }
func (e TaskThinking) Payload() any        { return e.Data }
func (e TaskToolStart) Payload() any       { return e.Data }
func (e TaskToolEnd) Payload() any         { return e.Data }
func (e TextMessageStart) Payload() any    { return e.Data }
func (e TextMessageContent) Payload() any  { return e.Data }
func (e TextMessageChunk) Payload() any    { return e.Data }
func (e TextMessageEnd) Payload() any      { return e.Data }
func (e AgentToolUse) Payload() any        { return e.Data }
func (e UserTaskCreated) Payload() any     { return e.Data }
func (e GatewayEvaluating) Payload() any   { return nil }
func (e GatewayPathTaken) Payload() any    { return e.Data }
func (e TaskError) Payload() any           { return e.Data }
func (e TaskCancellable) Payload() any     { return nil }
func (e TaskCancelling) Payload() any      { return nil }
func (e TaskCancelled) Payload() any       { return e.Data }
func (e TaskCancelFailed) Payload() any    { return e.Data }
func (e MessagesSnapshot) Payload() any    { return e.Data }
func (e Deadlock) Payload() any            { return e.Data }
func (e Pong) Payload() any                { return nil }
