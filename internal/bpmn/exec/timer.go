package exec

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
)

const (
	timerTypeDuration = "duration"
	timerTypeDate     = "date"
	timerTypeCycle    = "cycle"
)

// executeTimer sleeps interruptibly until the configured deadline elapses or
// ctx is cancelled (spec §4.5 timerIntermediateCatchEvent row). A
// boundaryTimerEvent reuses this logic through the scheduler, which races it
// against the host activity rather than invoking it as a standalone
// executor (spec §4.9).
func executeTimer(ctx context.Context, rc *RunContext) (Result, error) {
	d, err := TimerDelay(rc.Element)
	if err != nil {
		return Result{}, err
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return Result{}, nil
	case <-ctx.Done():
		return Result{}, bpmnerr.Wrap(bpmnerr.KindCancelled, ctx.Err(), "timer %s cancelled mid-wait", rc.Element.ID)
	}
}

// TimerDelay computes the sleep duration for a timer element from its
// timerType and corresponding field, exported so the scheduler can compute
// a boundary timer's delay without duplicating the parsing logic.
func TimerDelay(e interface {
	StringProp(string) string
}) (time.Duration, error) {
	timerType := e.StringProp("timerType")
	switch timerType {
	case timerTypeDuration, "":
		raw := e.StringProp("timerDuration")
		d, err := parseISO8601Duration(raw)
		if err != nil {
			return 0, bpmnerr.Wrap(bpmnerr.KindMalformedDefinition, err, "invalid timerDuration %q", raw)
		}
		return d, nil
	case timerTypeDate:
		raw := e.StringProp("timerDate")
		target, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return 0, bpmnerr.Wrap(bpmnerr.KindMalformedDefinition, err, "invalid timerDate %q", raw)
		}
		d := time.Until(target)
		if d < 0 {
			d = 0
		}
		return d, nil
	case timerTypeCycle:
		raw := e.StringProp("timerCycle")
		d, err := parseCycle(raw)
		if err != nil {
			return 0, bpmnerr.Wrap(bpmnerr.KindMalformedDefinition, err, "invalid timerCycle %q", raw)
		}
		return d, nil
	default:
		return 0, bpmnerr.New(bpmnerr.KindMalformedDefinition, "unrecognized timerType %q", timerType)
	}
}

// parseCycle parses R{n}/PT{duration} (spec §4.5: "cycle is R{n}/PT{duration}"),
// returning the duration of a single occurrence. The engine schedules one
// intermediate-catch wait per activation, so the repeat count is the
// caller's concern (subProcess looping), not this executor's.
func parseCycle(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "R") {
		return 0, errNotISODuration
	}
	idx := strings.IndexByte(s, '/')
	if idx < 0 {
		return 0, errNotISODuration
	}
	countPart := s[1:idx]
	if countPart != "" {
		if _, err := strconv.Atoi(countPart); err != nil {
			return 0, errNotISODuration
		}
	}
	return parseISO8601Duration(s[idx+1:])
}
