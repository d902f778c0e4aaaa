package errhandler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flowmesh/flowengine/flow"
)

func TestRetryBacksOffExponentiallyThenFallsBack(t *testing.T) {
	r := NewRetry(3, 10*time.Millisecond, 2, 0)

	d1 := r.Handle(flow.FailureInfo{Attempt: 1})
	assert.Equal(t, flow.DecisionRetry, d1.Kind)
	assert.Equal(t, 10*time.Millisecond, d1.RetryAfter)

	d2 := r.Handle(flow.FailureInfo{Attempt: 2})
	assert.Equal(t, flow.DecisionRetry, d2.Kind)
	assert.Equal(t, 20*time.Millisecond, d2.RetryAfter)

	d3 := r.Handle(flow.FailureInfo{Attempt: 3})
	assert.Equal(t, flow.DecisionRetry, d3.Kind, "max=3 means 3 retries beyond the initial attempt")
	assert.Equal(t, 40*time.Millisecond, d3.RetryAfter)

	d4 := r.Handle(flow.FailureInfo{Attempt: 4})
	assert.Equal(t, flow.DecisionFallback, d4.Kind, "the 3 retries are exhausted after the 4th failed attempt")
}

// TestRetryExhaustionProducesExactlyMaxAttemptsPlusOneFailures drives a
// persistently-failing routine through a Retry(max=N) handler directly and
// counts failed invocations: it must be exactly N+1 (the initial attempt
// plus N retries) before the handler falls through.
func TestRetryExhaustionProducesExactlyMaxAttemptsPlusOneFailures(t *testing.T) {
	const maxAttempts = 3
	r := NewRetry(maxAttempts, time.Microsecond, 1, 0)

	failures := 0
	attempt := 1
	for {
		d := r.Handle(flow.FailureInfo{Attempt: attempt})
		failures++
		if d.Kind == flow.DecisionFallback {
			break
		}
		assert.Equal(t, flow.DecisionRetry, d.Kind)
		attempt++
	}
	assert.Equal(t, maxAttempts+1, failures)
}

func TestRetryCapsDelayAtMaxDelay(t *testing.T) {
	r := NewRetry(5, 100*time.Millisecond, 10, 150*time.Millisecond)
	d := r.Handle(flow.FailureInfo{Attempt: 2})
	assert.Equal(t, 150*time.Millisecond, d.RetryAfter)
}

func TestStopContinueSkipDecisions(t *testing.T) {
	assert.Equal(t, flow.DecisionStop, Stop{}.Handle(flow.FailureInfo{}).Kind)
	assert.Equal(t, flow.DecisionContinue, Continue{}.Handle(flow.FailureInfo{}).Kind)
	assert.Equal(t, flow.DecisionSkip, Skip{}.Handle(flow.FailureInfo{}).Kind)
}
