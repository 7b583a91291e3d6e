package scheduler

import (
	"context"

	"github.com/bpmnkit/engine/internal/bpmn/bctx"
	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
	"github.com/bpmnkit/engine/internal/bpmn/model"
)

// RunSubProcess implements exec.SubProcessRunner for an inline expanded
// subProcess element (spec §9: "subprocesses' DOM-style child graphs become
// ordinary nested process definitions; the scheduler recurses"). The child
// shares the caller's own context store directly — an inline subProcess is
// part of the same instance, not an isolated one.
func (s *Scheduler) RunSubProcess(ctx context.Context, parentInstanceID string, proc *model.Process, store *bctx.Store) error {
	return s.runNested(ctx, proc, store)
}

// RunCallActivity implements exec.SubProcessRunner for a callActivity
// referencing a separately-defined process by ID. async launches the child
// and returns immediately without waiting for its result; inheritVariables
// seeds the child's own store from the caller's snapshot, otherwise the
// child starts with an empty context. The caller's store is never mutated
// by a callActivity (unlike an inline subProcess) since the called process
// is a distinct definition with its own variable namespace.
func (s *Scheduler) RunCallActivity(ctx context.Context, parentInstanceID, calledElement string, async, inheritVariables bool, store *bctx.Store) error {
	if s.processLookup == nil {
		return bpmnerr.New(bpmnerr.KindMalformedDefinition, "callActivity %q: no process lookup configured", calledElement)
	}
	called, ok := s.processLookup(calledElement)
	if !ok {
		return bpmnerr.New(bpmnerr.KindMalformedDefinition, "callActivity %q: process not found", calledElement)
	}

	var childStore *bctx.Store
	if inheritVariables {
		childStore = bctx.New(store.Snapshot())
	} else {
		childStore = bctx.New(nil)
	}

	if async {
		go func() {
			_ = s.runNested(context.Background(), called, childStore)
		}()
		return nil
	}
	return s.runNested(ctx, called, childStore)
}

// runNested drives child to completion on a fresh Scheduler sharing this
// scheduler's registry, deps, emit sink, deadlock timeout, and process
// lookup.
func (s *Scheduler) runNested(ctx context.Context, child *model.Process, childStore *bctx.Store) error {
	nested := New(s.instance.ID+"/"+child.ID, child, childStore, s.registry, s.deps, s.emit, s.deadlockTimeout, s.processLookup)
	err := nested.Run(ctx)
	if nested.Instance().Status() == StatusFailed && err == nil {
		err = nested.Instance().LastError()
	}
	return err
}
