package exec

import "context"

// executeInstant handles startEvent, endEvent, task, and manualTask: none of
// these declare recognized properties (spec §4.5) and all complete
// instantly with no context mutation.
func executeInstant(ctx context.Context, rc *RunContext) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}
	return Result{}, nil
}
