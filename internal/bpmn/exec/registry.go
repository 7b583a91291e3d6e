package exec

import (
	"fmt"
	"sync"

	"github.com/bpmnkit/engine/internal/bpmn/model"
)

// Registry maps an ElementKind to the Executor that handles it, mirroring
// the teacher's toolset-keyed registration pattern (runtime/agent/tools)
// generalized from string tool names to BPMN element kinds.
type Registry struct {
	mu        sync.RWMutex
	executors map[model.ElementKind]Executor
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[model.ElementKind]Executor)}
}

// Register associates kind with ex, overwriting any prior registration.
func (r *Registry) Register(kind model.ElementKind, ex Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[kind] = ex
}

// Lookup returns the Executor registered for kind.
func (r *Registry) Lookup(kind model.ElementKind) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ex, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("exec: no executor registered for element kind %q", kind)
	}
	return ex, nil
}

// NewDefaultRegistry builds a Registry with every executor named in spec
// §4.5 wired to its recognized element kind(s).
func NewDefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(model.KindStartEvent, ExecutorFunc(executeInstant))
	r.Register(model.KindEndEvent, ExecutorFunc(executeInstant))
	r.Register(model.KindTask, ExecutorFunc(executeInstant))
	r.Register(model.KindManualTask, ExecutorFunc(executeInstant))

	r.Register(model.KindScriptTask, ExecutorFunc(executeScriptTask))
	r.Register(model.KindServiceTask, ExecutorFunc(executeServiceTask))
	r.Register(model.KindSendTask, ExecutorFunc(executeSendTask))
	r.Register(model.KindReceiveTask, ExecutorFunc(executeReceiveTask))
	r.Register(model.KindUserTask, ExecutorFunc(executeUserTask))
	r.Register(model.KindBusinessRuleTask, ExecutorFunc(executeBusinessRuleTask))
	r.Register(model.KindAgenticTask, ExecutorFunc(executeAgenticTask))
	r.Register(model.KindTimerIntermediateCatch, ExecutorFunc(executeTimer))
	r.Register(model.KindSubProcess, ExecutorFunc(executeSubProcess))
	r.Register(model.KindCallActivity, ExecutorFunc(executeCallActivity))

	return r
}
