// Package exec implements the executor registry and task executors (C5, C6,
// spec §4.5): one Executor per recognized element kind, each driving a
// single element to completion and forwarding progress events to the
// broadcaster. The single-operation shape — execute(element, instance) →
// stream of progress events, terminating in a result or an error — is
// realized as a blocking Execute call per element: the scheduler runs each
// frontier element on its own goroutine (spec §5), so a suspended executor
// (userTask, receiveTask, timer) blocks only its own goroutine.
package exec

import (
	"context"

	"github.com/bpmnkit/engine/internal/bpmn/aiclient"
	"github.com/bpmnkit/engine/internal/bpmn/bctx"
	"github.com/bpmnkit/engine/internal/bpmn/correlation"
	"github.com/bpmnkit/engine/internal/bpmn/events"
	"github.com/bpmnkit/engine/internal/bpmn/mcp"
	"github.com/bpmnkit/engine/internal/bpmn/model"
	"github.com/bpmnkit/engine/internal/bpmn/telemetry"
)

// Result carries an executor's outcome. Suspending executors (userTask,
// receiveTask, timer, agenticTask) return only after resuming; Result
// describes the final, resumed outcome, never an intermediate suspension.
type Result struct {
	// ResultVariable, when non-empty, is the context key the scheduler
	// should report alongside element.completed (spec §4.7 ElementCompleted
	// payload); the executor itself already wrote the value into Store.
	ResultVariable string
}

// RunContext bundles everything one Execute call needs: the element and its
// owning process, the instance's context store, an emit function wired to
// the broadcaster, and the shared collaborators (correlation bus, AI
// registry, MCP caller, decision evaluator, sender, sub-process runner).
type RunContext struct {
	InstanceID string
	Element    *model.Element
	Process    *model.Process
	Store      *bctx.Store
	Emit       func(events.Event)

	Deps *Deps
}

// Deps groups the collaborators injected into every executor. A nil field
// is valid when the corresponding element kind is never exercised by a
// given deployment (e.g. no agentic tasks, no AI registry needed).
type Deps struct {
	Correlation *correlation.Bus
	AI          *aiclient.Registry
	MCP         mcp.Caller
	Decisions   DecisionEvaluator
	Sender      Sender
	SubProcess  SubProcessRunner

	Log     telemetry.Logger
	Metrics telemetry.Metrics

	CorrelationBufferTTL    int64 // seconds, informational; the Bus already owns its own TTL
	MaxRetriesDefault       int
	ConfidenceDefault       float64
	PublicBaseURL           string
}

// SubProcessRunner lets subProcess/callActivity executors recurse into the
// scheduler without exec importing scheduler (which imports exec). The
// scheduler package implements this interface and is injected via Deps.
type SubProcessRunner interface {
	RunSubProcess(ctx context.Context, parentInstanceID string, proc *model.Process, store *bctx.Store) error
	RunCallActivity(ctx context.Context, parentInstanceID, calledElement string, async, inheritVariables bool, store *bctx.Store) error
}

// DecisionEvaluator delegates businessRuleTask evaluation to an external
// decision collaborator (spec §4.5 row, explicitly framed as external).
type DecisionEvaluator interface {
	Evaluate(ctx context.Context, decisionRef string, input map[string]any) (map[string]any, error)
}

// Executor drives one element kind to completion.
type Executor interface {
	Execute(ctx context.Context, rc *RunContext) (Result, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, rc *RunContext) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, rc *RunContext) (Result, error) {
	return f(ctx, rc)
}
