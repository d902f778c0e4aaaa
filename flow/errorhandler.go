package flow

import "time"

// DecisionKind enumerates the outcomes an ErrorHandler can hand back to the
// Runtime after a logic invocation fails.
type DecisionKind int

const (
	// DecisionStop fails the job and drops its remaining tasks.
	DecisionStop DecisionKind = iota
	// DecisionContinue logs the error and lets other tasks for the job
	// proceed.
	DecisionContinue
	// DecisionSkip behaves like Continue but additionally marks the
	// routine skipped for the rest of this job: further tasks tagged with
	// (job, routine) are dropped at dequeue, so the routine no longer
	// participates in this job.
	DecisionSkip
	// DecisionRetry asks the Runtime to re-enqueue the same data slice
	// after RetryAfter.
	DecisionRetry
	// DecisionFallback asks the Runtime to consult the next-outer handler
	// (flow-level, then the built-in stop default) because this handler's
	// own strategy is exhausted (e.g. retry attempts used up).
	DecisionFallback
)

// Decision is the verdict an ErrorHandler returns for a single failure.
type Decision struct {
	Kind       DecisionKind
	RetryAfter time.Duration
}

// FailureInfo describes a single failed logic invocation, passed to
// ErrorHandler.Handle.
type FailureInfo struct {
	JobID     string
	RoutineID string
	Err       error
	// Attempt is 1 for the initial invocation and increments on each
	// automatic retry the Runtime performs on this handler's behalf.
	Attempt int
	// DataSlice is the slot data the failed invocation was given; a retry
	// decision replays exactly this slice.
	DataSlice map[string][]Payload
	Message   string
}

// ErrorHandler is the per-routine or per-flow strategy consulted by the
// Runtime when a logic invocation returns an error. Resolution order is
// routine-level handler, then flow-level handler, then the built-in stop
// default (§4.10).
type ErrorHandler interface {
	Handle(info FailureInfo) Decision
}

// NamedErrorHandler mirrors NamedPolicy for the serialization contract.
type NamedErrorHandler interface {
	ErrorHandler
	HandlerName() string
	HandlerArgs() map[string]any
}
