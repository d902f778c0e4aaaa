package runtime

import (
	"context"
	"time"

	"github.com/flowmesh/flowengine/flow"
)

// workerLoop is the 9-step scheduling loop (§4.7) run by each pool
// goroutine until the task queue closes.
func (rt *Runtime) workerLoop() {
	defer rt.wg.Done()
	for {
		t, ok := rt.queue.pop()
		if !ok {
			return
		}
		rt.processTask(t)
	}
}

// processTask handles one dequeued task: cancellation/pause filtering,
// policy evaluation, hook invocation, the logic call itself, and failure
// resolution.
func (rt *Runtime) processTask(t *task) {
	if rt.isCancelled(t.jobID) {
		rt.finishTask(t.jobID)
		return
	}
	if rt.isPaused(t.jobID) {
		rt.requeueAfter(t, pausedRequeueDelay)
		return
	}

	job, ok := rt.GetJob(t.jobID)
	if !ok {
		rt.finishTask(t.jobID)
		return
	}
	f, ok := rt.flows.Get(t.flowID)
	if !ok {
		rt.finishTask(t.jobID)
		return
	}
	r, ok := f.GetRoutine(t.routineID)
	if !ok {
		rt.finishTask(t.jobID)
		return
	}
	ws, ok := rt.workers.Get(t.workerID)
	if !ok {
		rt.finishTask(t.jobID)
		return
	}

	if job.Status() == flow.JobPending {
		job.MarkRunning()
		rt.hooks.OnJobStart(job, ws)
	}

	if rt.isSkipped(t.jobID, t.routineID) {
		rt.finishTask(t.jobID)
		return
	}

	var result flow.PolicyResult
	if t.isRetry {
		result = flow.PolicyResult{Fire: true, Data: t.retryDataSlice, Message: t.retryMessage}
	} else {
		policy := r.ActivationPolicy()
		result = policy.Evaluate(r.Slots(), ws)
		if !result.Fire {
			rt.finishTask(t.jobID)
			return
		}
	}

	if !rt.hooks.OnRoutineStart(t.routineID, ws, job) {
		rt.hooks.OnRoutineEnd(t.routineID, ws, job, "skipped", nil)
		rt.finishTask(t.jobID)
		return
	}

	ctx := flow.WithExecution(context.Background(), job, ws, t.routineID, rt)
	start := time.Now()
	err := r.Logic()(ctx, result.Data, result.Message, ws)
	rt.metrics.RecordTimer("flowengine.routine.duration", time.Since(start), "routine_id", t.routineID, "flow_id", t.flowID)

	if err != nil {
		rt.hooks.OnRoutineEnd(t.routineID, ws, job, "failed", err)
		job.Trace(t.routineID, "failed", map[string]any{"error": err.Error(), "attempt": t.attempt + 1})
		rt.handleFailure(t, f, r, job, err, result)
		return
	}
	rt.hooks.OnRoutineEnd(t.routineID, ws, job, "ok", nil)
	rt.finishTask(t.jobID)
}

// handleFailure resolves the error-handler chain (routine, then flow, then
// the built-in default) for a failed logic invocation and acts on the
// resulting decision.
func (rt *Runtime) handleFailure(t *task, f *flow.Flow, r *flow.Routine, job *flow.JobContext, err error, result flow.PolicyResult) {
	attempt := t.attempt + 1
	info := flow.FailureInfo{
		JobID:     t.jobID,
		RoutineID: t.routineID,
		Err:       err,
		Attempt:   attempt,
		DataSlice: result.Data,
		Message:   result.Message,
	}

	decision := rt.resolveDecision(r, f, info)

	switch decision.Kind {
	case flow.DecisionRetry:
		nt := *t
		nt.attempt = attempt
		nt.isRetry = true
		nt.retryDataSlice = result.Data
		nt.retryMessage = result.Message
		nt.priority = PriorityLow
		rt.requeueAfter(&nt, decision.RetryAfter)
		// The task stays "in flight": no finishTask call here, since
		// jobTaskCount already accounts for it and a retry is a
		// continuation, not a new unit of work.
	case flow.DecisionSkip:
		rt.markSkipped(t.jobID, t.routineID)
		rt.finishTask(t.jobID)
	case flow.DecisionContinue:
		rt.finishTask(t.jobID)
	default: // DecisionStop, or an unresolved DecisionFallback
		job.Complete(flow.JobFailed, err)
		rt.lifecycleMu.Lock()
		rt.cancelledJobs[t.jobID] = true
		rt.lifecycleMu.Unlock()
		rt.finishTask(t.jobID)
	}
}

// resolveDecision walks the routine-level, then flow-level, then built-in
// default handler chain, following DecisionFallback at each step.
func (rt *Runtime) resolveDecision(r *flow.Routine, f *flow.Flow, info flow.FailureInfo) flow.Decision {
	if h := r.ErrorHandler(); h != nil {
		d := h.Handle(info)
		if d.Kind != flow.DecisionFallback {
			return d
		}
	}
	if h := f.ErrorHandler(); h != nil {
		d := h.Handle(info)
		if d.Kind != flow.DecisionFallback {
			return d
		}
	}
	d := rt.defaultErrorHandler.Handle(info)
	if d.Kind == flow.DecisionFallback {
		return flow.Decision{Kind: flow.DecisionStop}
	}
	return d
}

// requeueAfter schedules t to be pushed back onto the queue after delay. A
// zero or negative delay pushes immediately.
func (rt *Runtime) requeueAfter(t *task, delay time.Duration) {
	if delay <= 0 {
		rt.queue.push(t)
		return
	}
	time.AfterFunc(delay, func() {
		rt.queue.push(t)
	})
}

func (rt *Runtime) bumpTaskCount(jobID string, delta int) int {
	rt.taskCountMu.Lock()
	rt.jobTaskCount[jobID] += delta
	n := rt.jobTaskCount[jobID]
	rt.taskCountMu.Unlock()
	return n
}

// finishTask decrements jobID's in-flight task count and, once it reaches
// zero, marks the job completed (unless it already reached a terminal
// status via a Stop decision or explicit cancellation) and fires
// on_job_end. This implements §4.7 step 9's completion rule: a job is done
// when no task tagged with it is queued or executing.
func (rt *Runtime) finishTask(jobID string) {
	remaining := rt.bumpTaskCount(jobID, -1)
	if remaining > 0 {
		return
	}
	job, ok := rt.GetJob(jobID)
	if !ok {
		return
	}
	ws, _ := rt.workers.Get(job.WorkerID())
	if job.Status().IsTerminal() {
		rt.hooks.OnJobEnd(job, ws, job.Status(), job.Error())
		return
	}
	rt.completeJob(job, ws, flow.JobCompleted, nil)
}

func (rt *Runtime) completeJob(job *flow.JobContext, ws *flow.WorkerState, status flow.JobStatus, err error) {
	job.Complete(status, err)
	rt.hooks.OnJobEnd(job, ws, status, err)
}
