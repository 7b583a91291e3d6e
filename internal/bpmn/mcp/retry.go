package mcp

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryCaller wraps another Caller with exponential backoff over transient
// failures (transport errors and JSON-RPC internal errors), grounded on the
// same AIMD/backoff idiom internal/bpmn/aiclient's RateLimitedClient uses
// for AI provider throttling — runtime/mcp/retry/retry.go turns out to
// build LLM repair prompts for invalid tool parameters rather than
// transport backoff, so it isn't a fit here.
type RetryCaller struct {
	next       Caller
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryCaller wraps next with up to maxRetries retries, backing off
// exponentially from baseDelay up to maxDelay with jitter.
func NewRetryCaller(next Caller, maxRetries int, baseDelay, maxDelay time.Duration) *RetryCaller {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	return &RetryCaller{next: next, maxRetries: maxRetries, baseDelay: baseDelay, maxDelay: maxDelay}
}

func (c *RetryCaller) CallTool(ctx context.Context, req CallRequest) (CallResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			select {
			case <-ctx.Done():
				return CallResponse{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.next.CallTool(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return CallResponse{}, err
		}
	}
	return CallResponse{}, lastErr
}

// backoff returns baseDelay*2^(attempt-1), capped at maxDelay, with up to
// 20% jitter so concurrent callers don't retry in lockstep.
func (c *RetryCaller) backoff(attempt int) time.Duration {
	d := c.baseDelay << uint(attempt-1)
	if d <= 0 || d > c.maxDelay {
		d = c.maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 5))
	return d + jitter
}

// isRetryable reports whether err is worth retrying: a transport-level
// failure (no *Error at all) or a JSON-RPC internal error, as opposed to a
// client-side mistake (invalid params, method not found) that will fail
// identically on every attempt.
func isRetryable(err error) bool {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == JSONRPCInternalError
	}
	return true
}
