// Package errhandler implements the built-in ErrorHandler strategies: stop,
// continue, retry with exponential backoff, and skip. Each also implements
// flow.NamedErrorHandler for the serialization contract.
package errhandler

import (
	"math"
	"time"

	"github.com/flowmesh/flowengine/flow"
)

// Stop fails the job immediately on the first error, dropping its
// remaining tasks. This is also the Runtime's built-in default when no
// handler is registered at either the routine or flow level.
type Stop struct{}

// NewStop returns a Stop handler.
func NewStop() Stop { return Stop{} }

func (Stop) Handle(flow.FailureInfo) flow.Decision {
	return flow.Decision{Kind: flow.DecisionStop}
}
func (Stop) HandlerName() string         { return "stop" }
func (Stop) HandlerArgs() map[string]any { return map[string]any{} }

// Continue logs the error (via the Runtime's hooks/telemetry, not this
// type) and lets the job proceed; the failed routine simply contributes no
// output for this invocation.
type Continue struct{}

// NewContinue returns a Continue handler.
func NewContinue() Continue { return Continue{} }

func (Continue) Handle(flow.FailureInfo) flow.Decision {
	return flow.Decision{Kind: flow.DecisionContinue}
}
func (Continue) HandlerName() string         { return "continue" }
func (Continue) HandlerArgs() map[string]any { return map[string]any{} }

// Skip behaves like Continue but additionally tells the Runtime to drop
// every future task against (job, routine): the routine takes no further
// part in this job once it has failed once.
type Skip struct{}

// NewSkip returns a Skip handler.
func NewSkip() Skip { return Skip{} }

func (Skip) Handle(flow.FailureInfo) flow.Decision {
	return flow.Decision{Kind: flow.DecisionSkip}
}
func (Skip) HandlerName() string         { return "skip" }
func (Skip) HandlerArgs() map[string]any { return map[string]any{} }

// Retry retries a failed invocation up to MaxAttempts additional times
// beyond the initial attempt (the initial failure counts as attempt 1),
// with exponential backoff between attempts: BaseDelay *
// Backoff^(attempt-1), capped at MaxDelay. Once MaxAttempts retries are
// exhausted it falls back to the next-outer handler so a flow-level
// policy (or the built-in stop default) decides the final outcome: a
// persistently-failing logic call under retry(max=N) produces exactly
// N+1 failed invocations (the initial attempt plus N retries) before
// falling through.
type Retry struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Backoff     float64
	MaxDelay    time.Duration
}

// NewRetry returns a Retry handler. backoff <= 0 defaults to 2.0; maxDelay
// <= 0 disables capping.
func NewRetry(maxAttempts int, baseDelay time.Duration, backoff float64, maxDelay time.Duration) *Retry {
	if backoff <= 0 {
		backoff = 2.0
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Retry{MaxAttempts: maxAttempts, BaseDelay: baseDelay, Backoff: backoff, MaxDelay: maxDelay}
}

func (r *Retry) Handle(info flow.FailureInfo) flow.Decision {
	if info.Attempt > r.MaxAttempts {
		return flow.Decision{Kind: flow.DecisionFallback}
	}
	delay := time.Duration(float64(r.BaseDelay) * math.Pow(r.Backoff, float64(info.Attempt-1)))
	if r.MaxDelay > 0 && delay > r.MaxDelay {
		delay = r.MaxDelay
	}
	return flow.Decision{Kind: flow.DecisionRetry, RetryAfter: delay}
}

func (r *Retry) HandlerName() string { return "retry" }
func (r *Retry) HandlerArgs() map[string]any {
	return map[string]any{
		"max_attempts":  r.MaxAttempts,
		"base_delay_ms": r.BaseDelay.Milliseconds(),
		"backoff":       r.Backoff,
		"max_delay_ms":  r.MaxDelay.Milliseconds(),
	}
}

var (
	_ flow.NamedErrorHandler = Stop{}
	_ flow.NamedErrorHandler = Continue{}
	_ flow.NamedErrorHandler = Skip{}
	_ flow.NamedErrorHandler = (*Retry)(nil)
)
