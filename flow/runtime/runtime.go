// Package runtime implements the scheduler that turns a wired flow.Flow
// into a running instance: it owns the task queue, the worker pool, job and
// worker lifecycles, hook invocation, and error-handler resolution.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowmesh/flowengine/flow"
	"github.com/flowmesh/flowengine/flow/errhandler"
	"github.com/flowmesh/flowengine/flow/errs"
	"github.com/flowmesh/flowengine/flow/registry"
	"github.com/flowmesh/flowengine/flow/telemetry"
)

// pausedRequeueDelay is how long a task for a paused job waits before the
// scheduler checks again.
const pausedRequeueDelay = 50 * time.Millisecond

// Options configures a Runtime. Flows and Workers are required; every other
// field has a usable default.
type Options struct {
	Flows   *registry.FlowRegistry
	Workers *registry.WorkerRegistry

	// Hooks is consulted at the eight interception points (§4.9). Defaults
	// to flow.NoopHooks{}.
	Hooks flow.Hooks

	// PoolSize is the number of worker goroutines draining the task queue.
	// Defaults to 4.
	PoolSize int

	// DefaultErrorHandler is consulted when neither the failing routine nor
	// its flow has an error handler bound. Defaults to errhandler.Stop{}.
	DefaultErrorHandler flow.ErrorHandler

	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

// Runtime is the engine's scheduler: one Runtime typically serves a process,
// executing jobs against every flow registered in its Flows registry.
type Runtime struct {
	flows   *registry.FlowRegistry
	workers *registry.WorkerRegistry
	hooks   flow.Hooks

	defaultErrorHandler flow.ErrorHandler

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	queue    *taskQueue
	poolSize int
	wg       sync.WaitGroup

	jobsMu sync.Mutex
	jobs   map[string]*flow.JobContext

	taskCountMu  sync.Mutex
	jobTaskCount map[string]int

	lifecycleMu   sync.Mutex
	cancelledJobs map[string]bool
	pausedJobs    map[string]bool

	skipMu  sync.Mutex
	skipped map[string]map[string]bool // jobID -> routineID -> true

	startedMu     sync.Mutex
	workerForFlow map[string]*flow.WorkerState // flowID -> the single WorkerState Exec created for it

	shutdownOnce sync.Once
}

// New constructs a Runtime and starts its worker pool.
func New(opts Options) (*Runtime, error) {
	if opts.Flows == nil || opts.Workers == nil {
		return nil, fmt.Errorf("runtime: Flows and Workers registries are required")
	}
	hooks := opts.Hooks
	if hooks == nil {
		hooks = flow.NoopHooks{}
	}
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}
	defaultHandler := opts.DefaultErrorHandler
	if defaultHandler == nil {
		defaultHandler = errhandler.NewStop()
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}

	rt := &Runtime{
		flows:               opts.Flows,
		workers:             opts.Workers,
		hooks:               hooks,
		defaultErrorHandler: defaultHandler,
		logger:              logger,
		metrics:             metrics,
		tracer:              tracer,
		queue:               newTaskQueue(),
		poolSize:            poolSize,
		jobs:                make(map[string]*flow.JobContext),
		jobTaskCount:        make(map[string]int),
		cancelledJobs:       make(map[string]bool),
		pausedJobs:          make(map[string]bool),
		skipped:             make(map[string]map[string]bool),
		workerForFlow:       make(map[string]*flow.WorkerState),
	}
	for i := 0; i < poolSize; i++ {
		rt.wg.Add(1)
		go rt.workerLoop()
	}
	return rt, nil
}

// Exec starts (or returns the existing) worker for flowID. Idempotent: a
// second Exec against the same flow returns the same WorkerState.
func (rt *Runtime) Exec(flowID string) (*flow.WorkerState, error) {
	f, ok := rt.flows.Get(flowID)
	if !ok {
		return nil, fmt.Errorf("exec %q: %w", flowID, errs.ErrFlowNotFound)
	}

	rt.startedMu.Lock()
	if ws, ok := rt.workerForFlow[flowID]; ok {
		rt.startedMu.Unlock()
		return ws, nil
	}

	if err := f.Validate(); err != nil {
		rt.startedMu.Unlock()
		return nil, fmt.Errorf("exec %q: %w", flowID, err)
	}

	ws := flow.NewWorkerState(uuid.NewString(), flowID)
	rt.workerForFlow[flowID] = ws
	rt.startedMu.Unlock()

	f.FreezeRoutineConfigs()
	f.MarkRunning()
	ws.SetStatus(flow.WorkerRunning)
	rt.workers.Add(ws)
	rt.hooks.OnWorkerStart(f, ws)
	return ws, nil
}

// ensureRunning returns the flow and its running WorkerState, starting the
// worker via Exec if it has not been started yet.
func (rt *Runtime) ensureRunning(flowID string) (*flow.WorkerState, *flow.Flow, error) {
	ws, err := rt.Exec(flowID)
	if err != nil {
		return nil, nil, err
	}
	f, _ := rt.flows.Get(flowID)
	return ws, f, nil
}

// Post creates a new JobContext, enqueues payload into the named routine's
// slot, and schedules an activation check. It never blocks waiting for the
// job to run: emits and downstream logic execute asynchronously on the
// worker pool.
func (rt *Runtime) Post(flowID, routineID, slotName string, payload flow.Payload, metadata map[string]any) (*flow.WorkerState, *flow.JobContext, error) {
	ws, f, err := rt.ensureRunning(flowID)
	if err != nil {
		return nil, nil, err
	}
	r, ok := f.GetRoutine(routineID)
	if !ok {
		return nil, nil, fmt.Errorf("post: routine %q: %w", routineID, errs.ErrRoutineNotFound)
	}
	slot, ok := r.Slot(slotName)
	if !ok {
		return nil, nil, fmt.Errorf("post: slot %q on %q: %w", slotName, routineID, errs.ErrRoutineNotFound)
	}

	jobID := uuid.NewString()
	job := flow.NewJobContext(jobID, ws.ID(), flowID, metadata, time.Now())
	rt.registerJob(job)

	ok2, reason := rt.hooks.OnSlotBeforeEnqueue(slotName, routineID, job, payload, flowID)
	if !ok2 {
		rt.logger.Debug(context.Background(), "post: enqueue vetoed by hook", "reason", reason, "routine_id", routineID, "slot", slotName)
		rt.completeJob(job, ws, flow.JobCompleted, nil)
		return ws, job, nil
	}
	if err := slot.Enqueue(payload, "", time.Now()); err != nil {
		return ws, job, err
	}

	rt.bumpTaskCount(jobID, 1)
	rt.queue.push(&task{
		priority:   PriorityNormal,
		routineID:  routineID,
		slotName:   slotName,
		jobID:      jobID,
		workerID:   ws.ID(),
		flowID:     flowID,
		enqueuedAt: time.Now(),
	})
	return ws, job, nil
}

// GetJob looks up a job by id.
func (rt *Runtime) GetJob(jobID string) (*flow.JobContext, bool) {
	rt.jobsMu.Lock()
	defer rt.jobsMu.Unlock()
	j, ok := rt.jobs[jobID]
	return j, ok
}

func (rt *Runtime) registerJob(job *flow.JobContext) {
	rt.jobsMu.Lock()
	rt.jobs[job.ID()] = job
	rt.jobsMu.Unlock()
}

// PauseJob marks a job paused: tasks tagged with it are requeued (not run)
// until ResumeJob is called. Fails with errs.ErrJobNotFound for an unknown
// job.
func (rt *Runtime) PauseJob(jobID string) error {
	job, ok := rt.GetJob(jobID)
	if !ok {
		return fmt.Errorf("pause %q: %w", jobID, errs.ErrJobNotFound)
	}
	if !job.MarkPaused() {
		return nil // already terminal, nothing to pause
	}
	rt.lifecycleMu.Lock()
	rt.pausedJobs[jobID] = true
	rt.lifecycleMu.Unlock()
	return nil
}

// ResumeJob clears a job's paused flag.
func (rt *Runtime) ResumeJob(jobID string) error {
	job, ok := rt.GetJob(jobID)
	if !ok {
		return fmt.Errorf("resume %q: %w", jobID, errs.ErrJobNotFound)
	}
	job.MarkResumed()
	rt.lifecycleMu.Lock()
	delete(rt.pausedJobs, jobID)
	rt.lifecycleMu.Unlock()
	return nil
}

// CancelJob marks a job cancelled; its status becomes cancelled at once.
// Tasks already queued for it are dropped the next time a worker dequeues
// them; a task currently executing finishes its current logic call, and any
// emits it makes after the cancellation are suppressed.
func (rt *Runtime) CancelJob(jobID string) error {
	job, ok := rt.GetJob(jobID)
	if !ok {
		return fmt.Errorf("cancel %q: %w", jobID, errs.ErrJobNotFound)
	}
	rt.lifecycleMu.Lock()
	rt.cancelledJobs[jobID] = true
	delete(rt.pausedJobs, jobID)
	rt.lifecycleMu.Unlock()
	job.Complete(flow.JobCancelled, errs.ErrCancelled)
	return nil
}

func (rt *Runtime) isCancelled(jobID string) bool {
	rt.lifecycleMu.Lock()
	defer rt.lifecycleMu.Unlock()
	return rt.cancelledJobs[jobID]
}

func (rt *Runtime) isPaused(jobID string) bool {
	rt.lifecycleMu.Lock()
	defer rt.lifecycleMu.Unlock()
	return rt.pausedJobs[jobID]
}

func (rt *Runtime) markSkipped(jobID, routineID string) {
	rt.skipMu.Lock()
	m, ok := rt.skipped[jobID]
	if !ok {
		m = make(map[string]bool)
		rt.skipped[jobID] = m
	}
	m[routineID] = true
	rt.skipMu.Unlock()
}

func (rt *Runtime) isSkipped(jobID, routineID string) bool {
	rt.skipMu.Lock()
	defer rt.skipMu.Unlock()
	return rt.skipped[jobID][routineID]
}

// WaitUntilAllJobsFinished blocks until every job the Runtime knows about
// has reached a terminal status, or timeout elapses. Returns true if it
// observed completion before timing out.
func (rt *Runtime) WaitUntilAllJobsFinished(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if rt.allJobsTerminal() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (rt *Runtime) allJobsTerminal() bool {
	rt.jobsMu.Lock()
	defer rt.jobsMu.Unlock()
	for _, j := range rt.jobs {
		if !j.Status().IsTerminal() {
			return false
		}
	}
	return true
}

// Shutdown stops the worker pool. If wait is true, it first waits
// (indefinitely) for all in-flight and queued tasks to drain; if false, it
// closes the queue immediately and abandons anything still queued.
func (rt *Runtime) Shutdown(wait bool) {
	rt.shutdownOnce.Do(func() {
		if wait {
			for !rt.allJobsTerminal() || rt.queue.pending() > 0 {
				time.Sleep(5 * time.Millisecond)
			}
		}
		rt.queue.close()
		rt.wg.Wait()

		rt.startedMu.Lock()
		flowIDs := make([]string, 0, len(rt.workerForFlow))
		for id := range rt.workerForFlow {
			flowIDs = append(flowIDs, id)
		}
		rt.startedMu.Unlock()

		for _, flowID := range flowIDs {
			rt.startedMu.Lock()
			ws := rt.workerForFlow[flowID]
			rt.startedMu.Unlock()
			if ws == nil {
				continue
			}
			ws.SetStatus(flow.WorkerStopped)
			if f, ok := rt.flows.Get(flowID); ok {
				f.MarkStopped()
				rt.hooks.OnWorkerStop(f, ws, flow.WorkerStopped)
			}
			rt.workers.Remove(ws.ID())
		}
	})
}
