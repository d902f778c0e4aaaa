package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/flowmesh/flowengine/flow"
	"github.com/flowmesh/flowengine/flow/errs"
)

// Emit implements flow.Emitter. It is called through flow.Emit(ctx, ...)
// from inside a routine's logic invocation. Per §4.7 step 7, it resolves
// the connections wired to (routineID, eventName), applies each
// connection's param map, runs the before-enqueue hook, enqueues the
// resulting payload into the target slot, and schedules a follow-up task.
// Emit never blocks on downstream execution.
func (rt *Runtime) Emit(ctx context.Context, routineID, eventName string, payload flow.Payload) error {
	job, ok := flow.CurrentJob(ctx)
	if !ok {
		return fmt.Errorf("emit %q: %w", eventName, errs.ErrNoExecutionContext)
	}
	ws, ok := flow.CurrentWorkerState(ctx)
	if !ok {
		return fmt.Errorf("emit %q: %w", eventName, errs.ErrNoExecutionContext)
	}
	flowID := ws.FlowID()

	if rt.isCancelled(job.ID()) {
		return nil
	}

	f, ok := rt.flows.Get(flowID)
	if !ok {
		return fmt.Errorf("emit %q: %w", eventName, errs.ErrFlowNotFound)
	}

	if !rt.hooks.OnEventEmit(eventName, routineID, ws, job, payload) {
		job.Trace(routineID, "emit_suppressed", map[string]any{"event": eventName})
		return nil
	}

	conns := f.ConnectionsFrom(routineID, eventName)
	for _, c := range conns {
		targetPayload, err := flow.ApplyParamMap(payload, c.ParamMap)
		if err != nil {
			return fmt.Errorf("emit %q: %w", eventName, err)
		}
		targetRoutine, ok := f.GetRoutine(c.TargetRoutineID)
		if !ok {
			continue
		}
		slot, ok := targetRoutine.Slot(c.TargetSlotName)
		if !ok {
			continue
		}

		ok2, reason := rt.hooks.OnSlotBeforeEnqueue(c.TargetSlotName, c.TargetRoutineID, job, targetPayload, flowID)
		if !ok2 {
			job.Trace(routineID, "enqueue_vetoed", map[string]any{
				"target_routine": c.TargetRoutineID,
				"target_slot":    c.TargetSlotName,
				"reason":         reason,
			})
			continue
		}

		if err := slot.Enqueue(targetPayload, routineID, time.Now()); err != nil {
			return fmt.Errorf("emit %q -> %s.%s: %w", eventName, c.TargetRoutineID, c.TargetSlotName, err)
		}

		rt.bumpTaskCount(job.ID(), 1)
		rt.queue.push(&task{
			priority:   PriorityNormal,
			routineID:  c.TargetRoutineID,
			slotName:   c.TargetSlotName,
			jobID:      job.ID(),
			workerID:   ws.ID(),
			flowID:     flowID,
			enqueuedAt: time.Now(),
		})
	}
	return nil
}

var _ flow.Emitter = (*Runtime)(nil)
