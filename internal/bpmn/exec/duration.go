package exec

import (
	"strconv"
	"strings"
	"time"

	"github.com/bpmnkit/engine/internal/bpmn/model"
)

// timeoutProp reads a numeric or ISO-8601-duration "timeout"/"timerDuration"
// style property from element, falling back to def when absent or
// unparseable. A zero result means "no deadline".
func timeoutProp(e *model.Element, def time.Duration) time.Duration {
	raw := e.StringProp("timeout")
	if raw == "" {
		return def
	}
	if d, err := parseISO8601Duration(raw); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}

// parseISO8601Duration parses a restricted ISO-8601 duration of the shape
// PnDTnHnMnS (spec §4.5 timerIntermediateCatchEvent row: "Duration is
// ISO-8601-like"). Only the units the engine needs (days, hours, minutes,
// seconds) are supported; years/months are rejected since their length is
// calendar-dependent and out of scope for a duration timer.
func parseISO8601Duration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "P") {
		return 0, errNotISODuration
	}
	s = s[1:]

	var datePart, timePart string
	if idx := strings.IndexByte(s, 'T'); idx >= 0 {
		datePart, timePart = s[:idx], s[idx+1:]
	} else {
		datePart = s
	}

	var total time.Duration
	if datePart != "" {
		days, rest, err := consumeUnit(datePart, 'D')
		if err != nil {
			return 0, err
		}
		if rest != "" {
			return 0, errNotISODuration
		}
		total += time.Duration(days) * 24 * time.Hour
	}
	if timePart != "" {
		rest := timePart
		hours, rest, err := consumeUnit(rest, 'H')
		if err != nil {
			return 0, err
		}
		total += time.Duration(hours) * time.Hour
		minutes, rest, err := consumeUnit(rest, 'M')
		if err != nil {
			return 0, err
		}
		total += time.Duration(minutes) * time.Minute
		seconds, rest, err := consumeUnit(rest, 'S')
		if err != nil {
			return 0, err
		}
		total += time.Duration(seconds * float64(time.Second))
		if rest != "" {
			return 0, errNotISODuration
		}
	}
	return total, nil
}

func consumeUnit(s string, unit byte) (float64, string, error) {
	idx := strings.IndexByte(s, unit)
	if idx < 0 {
		return 0, s, nil
	}
	val, err := strconv.ParseFloat(s[:idx], 64)
	if err != nil {
		return 0, s, errNotISODuration
	}
	return val, s[idx+1:], nil
}

type isoDurationError string

func (e isoDurationError) Error() string { return string(e) }

const errNotISODuration = isoDurationError("exec: not a valid ISO-8601 duration")
