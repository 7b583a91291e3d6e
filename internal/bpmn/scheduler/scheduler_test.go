package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpmnkit/engine/internal/bpmn/bctx"
	"github.com/bpmnkit/engine/internal/bpmn/events"
	"github.com/bpmnkit/engine/internal/bpmn/exec"
	"github.com/bpmnkit/engine/internal/bpmn/model"
	"github.com/bpmnkit/engine/internal/bpmn/scheduler"
)

// collector is a concurrency-safe events.Event sink for assertions.
type collector struct {
	mu sync.Mutex
	ev []events.Event
}

func (c *collector) emit(e events.Event) {
	c.mu.Lock()
	c.ev = append(c.ev, e)
	c.mu.Unlock()
}

func (c *collector) byType(t events.Type) []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Event
	for _, e := range c.ev {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

func conn(id, from, to, condition string) *model.Connection {
	return &model.Connection{ID: id, From: from, To: to, Condition: condition}
}

func newScheduler(t *testing.T, proc *model.Process, deadlock time.Duration) (*scheduler.Scheduler, *collector) {
	t.Helper()
	c := &collector{}
	reg := exec.NewDefaultRegistry()
	store := bctx.New(nil)
	s := scheduler.New("inst-"+proc.ID, proc, store, reg, &exec.Deps{}, c.emit, deadlock, nil)
	return s, c
}

// scenario 1 (spec §8): add-numbers then branch on an exclusive gateway.
func TestScheduler_ExclusiveGatewayAddNumbers(t *testing.T) {
	proc := &model.Process{
		ID: "add-numbers",
		Elements: []*model.Element{
			{ID: "start", Kind: model.KindStartEvent},
			{ID: "sum", Kind: model.KindScriptTask, Properties: map[string]any{
				"script":         "context.get('num1') + context.get('num2')",
				"resultVariable": "sum",
			}},
			{ID: "gw", Kind: model.KindExclusiveGateway},
			{ID: "high", Kind: model.KindEndEvent},
			{ID: "low", Kind: model.KindEndEvent},
		},
		Connections: []*model.Connection{
			conn("c1", "start", "sum", ""),
			conn("c2", "sum", "gw", ""),
			conn("c3", "gw", "high", "sum > 10"),
			conn("c4", "gw", "low", ""),
		},
	}

	s, c := newScheduler(t, proc, time.Second)
	s.Instance().Store.Set("num1", int64(8))
	s.Instance().Store.Set("num2", int64(9))

	err := run(t, s)
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusSucceeded, s.Instance().Status())

	statuses := s.Instance().ElementStatuses()
	assert.Equal(t, scheduler.ElementCompleted, statuses["high"])
	assert.Equal(t, scheduler.ElementSkipped, statuses["low"])
	assert.Len(t, c.byType(events.TypeGatewayPathTaken), 1)
}

// scenario 4 (spec §8): parallel fork with a fast and a slow branch; the
// join must fire exactly once, after the slower branch arrives.
func TestScheduler_ParallelForkJoin(t *testing.T) {
	proc := &model.Process{
		ID: "parallel-fork",
		Elements: []*model.Element{
			{ID: "start", Kind: model.KindStartEvent},
			{ID: "fork", Kind: model.KindParallelGateway},
			{ID: "fast", Kind: model.KindTask},
			{ID: "slow", Kind: model.KindTimerIntermediateCatch, Properties: map[string]any{
				"timerType": "duration", "timerDuration": "PT0.03S",
			}},
			{ID: "join", Kind: model.KindParallelGateway},
			{ID: "end", Kind: model.KindEndEvent},
		},
		Connections: []*model.Connection{
			conn("c1", "start", "fork", ""),
			conn("c2", "fork", "fast", ""),
			conn("c3", "fork", "slow", ""),
			conn("c4", "fast", "join", ""),
			conn("c5", "slow", "join", ""),
			conn("c6", "join", "end", ""),
		},
	}

	s, c := newScheduler(t, proc, time.Second)
	err := run(t, s)
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusSucceeded, s.Instance().Status())

	completed := c.byType(events.TypeElementCompleted)
	joinCompletions := 0
	for _, e := range completed {
		if e.(events.ElementCompleted).Base.ElementID() == "join" {
			joinCompletions++
		}
	}
	assert.Equal(t, 1, joinCompletions, "join must fire exactly once")
	assert.Equal(t, scheduler.ElementCompleted, s.Instance().ElementStatuses()["end"])
}

// scenario 5 (spec §8): one parallel branch fails before reaching its join;
// the sibling join's deadlock timer must elapse and emit a diagnostic naming
// the stuck join, rather than the instance failing immediately.
func TestScheduler_DeadlockOnStuckJoin(t *testing.T) {
	proc := &model.Process{
		ID: "deadlock-flow",
		Elements: []*model.Element{
			{ID: "start", Kind: model.KindStartEvent},
			{ID: "fork", Kind: model.KindParallelGateway},
			{ID: "ok", Kind: model.KindTask},
			{ID: "broken", Kind: model.KindScriptTask, Properties: map[string]any{
				"scriptFormat": "python", "script": "1+1",
			}},
			{ID: "join", Kind: model.KindParallelGateway},
			{ID: "end", Kind: model.KindEndEvent},
		},
		Connections: []*model.Connection{
			conn("c1", "start", "fork", ""),
			conn("c2", "fork", "ok", ""),
			conn("c3", "fork", "broken", ""),
			conn("c4", "ok", "join", ""),
			conn("c5", "broken", "join", ""),
			conn("c6", "join", "end", ""),
		},
	}

	s, c := newScheduler(t, proc, 20*time.Millisecond)
	err := run(t, s)
	assert.Error(t, err)
	assert.Equal(t, scheduler.StatusFailed, s.Instance().Status())

	deadlocks := c.byType(events.TypeDeadlock)
	require.Len(t, deadlocks, 1)
	payload := deadlocks[0].(events.Deadlock).Data
	assert.Equal(t, "join", payload.JoinID)
	assert.Contains(t, payload.ArrivedBranches, "c4")
	assert.Contains(t, payload.MissingBranches, "broken")
}

// invariant P7: cancellation is mutually exclusive, never both task.cancelled
// and task.cancel.failed for the same element.
func TestScheduler_CancelWaitingTask(t *testing.T) {
	proc := &model.Process{
		ID: "cancel-flow",
		Elements: []*model.Element{
			{ID: "start", Kind: model.KindStartEvent},
			{ID: "wait", Kind: model.KindTimerIntermediateCatch, Properties: map[string]any{
				"timerType": "duration", "timerDuration": "PT10S",
			}},
			{ID: "end", Kind: model.KindEndEvent},
		},
		Connections: []*model.Connection{
			conn("c1", "start", "wait", ""),
			conn("c2", "wait", "end", ""),
		},
	}

	s, c := newScheduler(t, proc, time.Second)
	go func() {
		time.Sleep(20 * time.Millisecond)
		s.RequestCancel("")
	}()

	err := run(t, s)
	assert.NoError(t, err)
	assert.Equal(t, scheduler.StatusCancelled, s.Instance().Status())

	cancelled := c.byType(events.TypeTaskCancelled)
	failed := c.byType(events.TypeTaskCancelFailed)
	assert.Len(t, cancelled, 1)
	assert.Len(t, failed, 0)
}

// invariant P8: elements reachable only via a gateway's not-taken flow are
// marked skipped, never activated.
func TestScheduler_SkipsNotTakenBranch(t *testing.T) {
	proc := &model.Process{
		ID: "skip-flow",
		Elements: []*model.Element{
			{ID: "start", Kind: model.KindStartEvent},
			{ID: "gw", Kind: model.KindExclusiveGateway},
			{ID: "taken", Kind: model.KindTask},
			{ID: "notTaken", Kind: model.KindTask},
			{ID: "mid", Kind: model.KindTask},
			{ID: "end", Kind: model.KindEndEvent},
		},
		Connections: []*model.Connection{
			conn("c1", "start", "gw", ""),
			conn("c2", "gw", "taken", "true"),
			conn("c3", "gw", "notTaken", "false"),
			conn("c4", "notTaken", "mid", ""),
			conn("c5", "taken", "end", ""),
		},
	}

	s, _ := newScheduler(t, proc, time.Second)
	err := run(t, s)
	require.NoError(t, err)

	statuses := s.Instance().ElementStatuses()
	assert.Equal(t, scheduler.ElementSkipped, statuses["notTaken"])
	assert.Equal(t, scheduler.ElementSkipped, statuses["mid"])
	_, touched := statuses["mid"]
	assert.True(t, touched)
}

func run(t *testing.T, s *scheduler.Scheduler) error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()
	select {
	case err := <-errCh:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not finish in time")
		return nil
	}
}
