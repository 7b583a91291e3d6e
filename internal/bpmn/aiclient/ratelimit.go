package aiclient

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned (or wrapped) by a Client's Stream when the
// underlying provider signals it is throttling requests, so the agentic
// task executor's retry loop (spec §4.5.1) and RateLimitedClient's AIMD
// backoff can recognize it independent of provider-specific error shapes.
var ErrRateLimited = errors.New("aiclient: provider rate limit exceeded")

// RateLimitedClient wraps a Client with a process-local, adaptive
// tokens-per-minute budget: an AIMD token bucket that halves its effective
// rate on a rate-limited response and recovers gradually on success.
//
// Grounded on the teacher's features/model/middleware.AdaptiveRateLimiter,
// simplified to a single process (the teacher's cluster-coordination via a
// Pulse replicated map has no equivalent need here: one engine process owns
// every agentic task's AI calls, so there is nothing to coordinate across).
type RateLimitedClient struct {
	next Client

	mu           sync.Mutex
	limiter      *rate.Limiter
	currentTPM   float64
	minTPM       float64
	maxTPM       float64
	recoveryRate float64
}

// NewRateLimitedClient wraps next with an adaptive limiter starting at
// initialTPM tokens per minute, never exceeding maxTPM. maxTPM <= 0 or
// below initialTPM is clamped to initialTPM.
func NewRateLimitedClient(next Client, initialTPM, maxTPM float64) *RateLimitedClient {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &RateLimitedClient{
		next:         next,
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Stream waits for budget, delegates to the wrapped Client, and adjusts the
// limiter's rate based on whether the call was itself rate-limited.
func (c *RateLimitedClient) Stream(ctx context.Context, req Request) (Stream, error) {
	if err := c.limiter.WaitN(ctx, estimateTokens(req)); err != nil {
		return nil, err
	}
	stream, err := c.next.Stream(ctx, req)
	c.observe(err)
	return stream, err
}

func (c *RateLimitedClient) observe(err error) {
	if err == nil {
		c.probe()
		return
	}
	if errors.Is(err, ErrRateLimited) {
		c.backoff()
	}
}

func (c *RateLimitedClient) backoff() {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.currentTPM * 0.5
	if next < c.minTPM {
		next = c.minTPM
	}
	c.setRate(next)
}

func (c *RateLimitedClient) probe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.currentTPM + c.recoveryRate
	if next > c.maxTPM {
		next = c.maxTPM
	}
	c.setRate(next)
}

// setRate must be called with mu held.
func (c *RateLimitedClient) setRate(tpm float64) {
	if tpm == c.currentTPM {
		return
	}
	c.currentTPM = tpm
	c.limiter.SetLimit(rate.Limit(tpm / 60.0))
	c.limiter.SetBurst(int(tpm))
}

// estimateTokens applies a cheap characters-per-token heuristic to req's
// system prompt and input text, matching the teacher middleware's fixed
// 1-token-per-3-characters ratio plus a fixed framing overhead.
func estimateTokens(req Request) int {
	charCount := len(req.SystemPrompt) + len(req.Input)
	if charCount <= 0 {
		return 500
	}
	tokens := charCount/3 + 500
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
