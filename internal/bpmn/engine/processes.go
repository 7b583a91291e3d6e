package engine

import (
	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
	"github.com/bpmnkit/engine/internal/bpmn/model"
)

// LoadProcess parses a serialized process definition and registers it under
// its own ID, returning the parsed graph.
func (e *Engine) LoadProcess(data []byte) (*model.Process, error) {
	proc, err := model.Load(data)
	if err != nil {
		return nil, err
	}
	return proc, e.RegisterProcess(proc)
}

// RegisterProcess makes an already-parsed process definition available to
// Start and to callActivity's process lookup. Re-registering the same ID
// replaces the previous definition; running instances keep referencing the
// *model.Process they were started with, since Start looks the pointer up
// once at instantiation time and hands it to the instance's scheduler.
func (e *Engine) RegisterProcess(proc *model.Process) error {
	if proc == nil || proc.ID == "" {
		return bpmnerr.New(bpmnerr.KindMalformedDefinition, "process must have a non-empty id")
	}
	e.procMu.Lock()
	e.processes[proc.ID] = proc
	e.procMu.Unlock()
	return nil
}

// GetProcess returns the registered definition for processID, if any.
func (e *Engine) GetProcess(processID string) (*model.Process, bool) {
	return e.processLookup(processID)
}

// ListProcesses returns every currently registered process ID.
func (e *Engine) ListProcesses() []string {
	e.procMu.RLock()
	defer e.procMu.RUnlock()
	ids := make([]string, 0, len(e.processes))
	for id := range e.processes {
		ids = append(ids, id)
	}
	return ids
}
