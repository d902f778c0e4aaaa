package flow

import (
	"context"
	"fmt"

	"github.com/flowmesh/flowengine/flow/errs"
)

// Emitter is implemented by the Runtime so that package flow can route an
// Emit call without importing the runtime package. Emit resolves the
// connections wired to (routineID, eventName), applies each connection's
// param map, runs the before-enqueue hook, and enqueues a follow-up task
// per target slot.
type Emitter interface {
	Emit(ctx context.Context, routineID, eventName string, payload Payload) error
}

type execContextKey struct{}

// execContext is the ambient "thread-local" execution context the Runtime
// installs on a context.Context before invoking a Routine's logic. This is
// the Go-idiomatic rendering of §9's design note: a context handle carried
// through the scheduler, rather than a process-wide thread-local.
type execContext struct {
	job       *JobContext
	worker    *WorkerState
	routineID string
	emitter   Emitter
}

// WithExecution installs the ambient execution context for a single logic
// invocation. Routine logic receives the returned context and must pass it
// (or a derivative) to Emit and CurrentJob/CurrentWorkerState.
func WithExecution(ctx context.Context, job *JobContext, worker *WorkerState, routineID string, emitter Emitter) context.Context {
	return context.WithValue(ctx, execContextKey{}, &execContext{
		job:       job,
		worker:    worker,
		routineID: routineID,
		emitter:   emitter,
	})
}

func fromContext(ctx context.Context) (*execContext, bool) {
	ec, ok := ctx.Value(execContextKey{}).(*execContext)
	return ec, ok
}

// Emit routes a payload from the currently executing routine's named event
// to every connected slot. It fails with errs.ErrNoExecutionContext if
// called outside of a logic invocation (i.e. ctx was not produced by
// WithExecution).
func Emit(ctx context.Context, eventName string, payload Payload) error {
	ec, ok := fromContext(ctx)
	if !ok {
		return fmt.Errorf("emit %q: %w", eventName, errs.ErrNoExecutionContext)
	}
	return ec.emitter.Emit(ctx, ec.routineID, eventName, payload)
}

// CurrentJob returns the JobContext of the logic invocation ctx belongs to.
func CurrentJob(ctx context.Context) (*JobContext, bool) {
	ec, ok := fromContext(ctx)
	if !ok {
		return nil, false
	}
	return ec.job, true
}

// CurrentWorkerState returns the WorkerState of the logic invocation ctx
// belongs to.
func CurrentWorkerState(ctx context.Context) (*WorkerState, bool) {
	ec, ok := fromContext(ctx)
	if !ok {
		return nil, false
	}
	return ec.worker, true
}

// CurrentRoutineID returns the id of the routine currently executing under
// ctx.
func CurrentRoutineID(ctx context.Context) (string, bool) {
	ec, ok := fromContext(ctx)
	if !ok {
		return "", false
	}
	return ec.routineID, true
}
