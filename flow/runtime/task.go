package runtime

import (
	"time"

	"github.com/flowmesh/flowengine/flow"
)

// Priority orders tasks within the scheduler's queue. Tasks of equal
// priority are dispatched FIFO.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// task is one unit of scheduler work: "go evaluate this routine's
// activation policy and, if it fires, run its logic." The payload that
// triggered the task has already been enqueued into the target slot by the
// producer (Runtime.Post or Runtime.Emit) before the task is pushed, so a
// worker goroutine never performs a slot mutation on someone else's behalf.
//
// A retry task (isRetry) carries its own replacement data slice instead:
// the original slot data was already consumed by the failed attempt, so
// re-evaluating the policy against current slot contents would replay the
// wrong inputs.
type task struct {
	priority  Priority
	routineID string
	slotName  string
	jobID     string
	workerID  string
	flowID    string

	enqueuedAt time.Time
	attempt    int

	isRetry        bool
	retryDataSlice map[string][]flow.Payload
	retryMessage   string
}
