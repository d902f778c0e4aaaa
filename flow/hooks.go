package flow

// Hooks is the interception interface the Runtime calls synchronously, on
// the worker goroutine executing the related work, at the eight
// well-defined lifecycle points in §4.9. The core never imports an
// observer module; Hooks is the only coupling point. A no-op
// implementation (NoopHooks) is installed by default.
type Hooks interface {
	// OnWorkerStart fires on the first Exec of a flow. Advisory.
	OnWorkerStart(f *Flow, ws *WorkerState)
	// OnWorkerStop fires on shutdown. Advisory.
	OnWorkerStop(f *Flow, ws *WorkerState, status WorkerStatus)
	// OnJobStart fires before the first task of a job runs. Advisory.
	OnJobStart(job *JobContext, ws *WorkerState)
	// OnJobEnd fires once a job reaches a terminal status. Advisory.
	OnJobEnd(job *JobContext, ws *WorkerState, status JobStatus, err error)
	// OnRoutineStart fires before logic runs. Returning false skips the
	// logic call, which the scheduler treats as a successful no-op.
	OnRoutineStart(routineID string, ws *WorkerState, job *JobContext) bool
	// OnRoutineEnd fires after logic returns (or is skipped). Advisory.
	OnRoutineEnd(routineID string, ws *WorkerState, job *JobContext, status string, err error)
	// OnEventEmit fires inside Emit, before routing. Returning false
	// suppresses the emit entirely (no enqueue to any connected slot).
	OnEventEmit(eventName, sourceRoutineID string, ws *WorkerState, job *JobContext, data Payload) bool
	// OnSlotBeforeEnqueue fires before each enqueue into a target slot.
	// Returning false skips that one enqueue and reports why, which is
	// exactly the mechanism a debugger uses to implement breakpoints.
	OnSlotBeforeEnqueue(slotName, targetRoutineID string, job *JobContext, data Payload, flowID string) (bool, string)
}

// NoopHooks implements Hooks with the advisory no-op behavior: every
// interception point is inert, and every gate (OnRoutineStart,
// OnEventEmit, OnSlotBeforeEnqueue) allows the action to proceed.
type NoopHooks struct{}

func (NoopHooks) OnWorkerStart(*Flow, *WorkerState)                     {}
func (NoopHooks) OnWorkerStop(*Flow, *WorkerState, WorkerStatus)        {}
func (NoopHooks) OnJobStart(*JobContext, *WorkerState)                  {}
func (NoopHooks) OnJobEnd(*JobContext, *WorkerState, JobStatus, error)  {}
func (NoopHooks) OnRoutineStart(string, *WorkerState, *JobContext) bool { return true }
func (NoopHooks) OnRoutineEnd(string, *WorkerState, *JobContext, string, error) {
}
func (NoopHooks) OnEventEmit(string, string, *WorkerState, *JobContext, Payload) bool {
	return true
}
func (NoopHooks) OnSlotBeforeEnqueue(string, string, *JobContext, Payload, string) (bool, string) {
	return true, ""
}

var _ Hooks = NoopHooks{}
