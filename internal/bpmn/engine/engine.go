// Package engine implements the engine façade (C10, spec §4.10): the single
// entry point that loads process definitions, starts and tracks instances,
// and exposes the start/status/cancel/subscribe/publishMessage/
// completeUserTask operations spec §6 describes as the external interface.
//
// The registry-of-registrations shape — a mutex-guarded map plus an Options
// struct assembling the engine's shared collaborators at construction time —
// is grounded on the teacher's runtime.Runtime/runtime.Options pair
// (runtime/agent/runtime/runtime.go), generalized from agent/toolset/model
// registrations to process definitions and running instances.
package engine

import (
	"sync"
	"time"

	"github.com/bpmnkit/engine/internal/bpmn/aiclient"
	"github.com/bpmnkit/engine/internal/bpmn/broadcaster"
	"github.com/bpmnkit/engine/internal/bpmn/config"
	"github.com/bpmnkit/engine/internal/bpmn/correlation"
	"github.com/bpmnkit/engine/internal/bpmn/exec"
	"github.com/bpmnkit/engine/internal/bpmn/mcp"
	"github.com/bpmnkit/engine/internal/bpmn/model"
	"github.com/bpmnkit/engine/internal/bpmn/persist"
	"github.com/bpmnkit/engine/internal/bpmn/scheduler"
	"github.com/bpmnkit/engine/internal/bpmn/stream"
	"github.com/bpmnkit/engine/internal/bpmn/telemetry"
)

// Options configures an Engine. Every field is optional (New loads a nil
// Config from the environment); a nil collaborator simply means element kinds depending on it are never
// exercised by this deployment (agenticTask without AI, businessRuleTask
// without Decisions, and so on — mirroring exec.Deps's own nil-is-valid
// contract).
type Options struct {
	Config      *config.Config
	Registry    *exec.Registry
	Correlation *correlation.Bus
	AI          *aiclient.Registry
	MCP         mcp.Caller
	Decisions   exec.DecisionEvaluator
	Sender      exec.Sender
	Logger      telemetry.Logger
	Metrics     telemetry.Metrics

	// Store, when set, archives run metadata and event history for every
	// instance this engine starts (internal/bpmn/persist). Never required:
	// a nil Store simply means instances are not durably indexed.
	Store persist.Store

	// Stream, when set, additionally mirrors every instance's event stream
	// onto a durable Pulse stream (internal/bpmn/stream). Never required:
	// the in-process broadcaster is always the primary event path.
	Stream *stream.Sink
}

// Engine is the process-wide façade: one Engine per deployment, owning every
// loaded process definition and every instance started from them.
type Engine struct {
	cfg         *config.Config
	registry    *exec.Registry
	correlation *correlation.Bus
	ai          *aiclient.Registry
	mcpCaller   mcp.Caller
	decisions   exec.DecisionEvaluator
	sender      exec.Sender
	log         telemetry.Logger
	metrics     telemetry.Metrics
	store       persist.Store
	stream      *stream.Sink

	procMu    sync.RWMutex
	processes map[string]*model.Process

	instMu    sync.RWMutex
	instances map[string]*instanceHandle
}

// instanceHandle bundles everything the façade needs to track one running
// (or completed) instance after Start returns.
type instanceHandle struct {
	sched       *scheduler.Scheduler
	broadcaster *broadcaster.Broadcaster
	processID   string
	startedAt   time.Time
}

// New assembles an Engine from opts. A nil Config loads defaults from the
// environment (spec §6.5); a nil Registry uses exec.NewDefaultRegistry(); a
// nil Correlation bus constructs one sized from Config.CorrelationBufferTTL.
func New(opts Options) *Engine {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Load()
	}
	reg := opts.Registry
	if reg == nil {
		reg = exec.NewDefaultRegistry()
	}
	corr := opts.Correlation
	if corr == nil {
		corr = correlation.New(cfg.CorrelationBufferTTL)
	}

	noopLog, noopMetrics, _ := telemetry.NewNoop()
	logger := opts.Logger
	if logger == nil {
		logger = noopLog
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics
	}

	return &Engine{
		cfg:         cfg,
		registry:    reg,
		correlation: corr,
		ai:          opts.AI,
		mcpCaller:   opts.MCP,
		decisions:   opts.Decisions,
		sender:      opts.Sender,
		log:         logger,
		metrics:     metrics,
		store:       opts.Store,
		stream:      opts.Stream,
		processes:   make(map[string]*model.Process),
		instances:   make(map[string]*instanceHandle),
	}
}

// buildDeps assembles a fresh exec.Deps for one instance from the engine's
// shared collaborators. SubProcess is intentionally left nil here; the
// caller (Start) sets it to the instance's own Scheduler once constructed,
// since exec.Deps must exist before scheduler.New can be called but
// RunContext only reads Deps.SubProcess lazily at call time.
func (e *Engine) buildDeps() *exec.Deps {
	return &exec.Deps{
		Correlation:          e.correlation,
		AI:                   e.ai,
		MCP:                  e.mcpCaller,
		Decisions:            e.decisions,
		Sender:                e.sender,
		Log:                  e.log,
		Metrics:              e.metrics,
		CorrelationBufferTTL: int64(e.cfg.CorrelationBufferTTL / time.Second),
		MaxRetriesDefault:    e.cfg.MaxRetriesDefault,
		ConfidenceDefault:    e.cfg.ConfidenceDefault,
		PublicBaseURL:        e.cfg.PublicBaseURL,
	}
}

// processLookup resolves a loaded process definition by ID, satisfying
// scheduler.ProcessLookup for callActivity (spec §4.5 table).
func (e *Engine) processLookup(processID string) (*model.Process, bool) {
	e.procMu.RLock()
	defer e.procMu.RUnlock()
	p, ok := e.processes[processID]
	return p, ok
}
