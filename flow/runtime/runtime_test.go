package runtime

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowengine/flow"
	"github.com/flowmesh/flowengine/flow/errhandler"
	"github.com/flowmesh/flowengine/flow/policy"
	"github.com/flowmesh/flowengine/flow/registry"
)

func newTestRuntime(t *testing.T) (*Runtime, *registry.FlowRegistry) {
	t.Helper()
	flows := registry.NewFlowRegistry()
	workers := registry.NewWorkerRegistry()
	rt, err := New(Options{Flows: flows, Workers: workers, PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { rt.Shutdown(false) })
	return rt, flows
}

// TestEmitChainPropagatesAcrossTwoRoutines covers scenario S1: a payload
// posted to one routine's slot fires its logic, which emits to a connected
// routine's slot, which in turn fires and records the final value.
func TestEmitChainPropagatesAcrossTwoRoutines(t *testing.T) {
	rt, flows := newTestRuntime(t)

	results := make(chan int, 1)

	f := flow.NewFlow("doubler")
	doubler := flow.NewRoutine()
	require.NoError(t, doubler.AddSlot("in", 10, 0))
	require.NoError(t, doubler.AddEvent("out", []string{"n"}))
	doubler.SetActivationPolicy(policy.NewImmediate("in"))
	doubler.SetLogic(func(ctx context.Context, data map[string][]flow.Payload, _ string, _ *flow.WorkerState) error {
		n := data["in"][0]["n"].(int)
		return flow.Emit(ctx, "out", flow.Payload{"n": n * 2})
	})
	require.NoError(t, f.AddRoutine("doubler", doubler))

	sink := flow.NewRoutine()
	require.NoError(t, sink.AddSlot("in", 10, 0))
	sink.SetActivationPolicy(policy.NewImmediate("in"))
	sink.SetLogic(func(_ context.Context, data map[string][]flow.Payload, _ string, _ *flow.WorkerState) error {
		results <- data["in"][0]["n"].(int)
		return nil
	})
	require.NoError(t, f.AddRoutine("sink", sink))

	require.NoError(t, f.Connect(flow.Connection{
		SourceRoutineID: "doubler", SourceEventName: "out",
		TargetRoutineID: "sink", TargetSlotName: "in",
	}))
	require.NoError(t, flows.Register(f))

	_, job, err := rt.Post("doubler", "doubler", "in", flow.Payload{"n": 21}, nil)
	require.NoError(t, err)

	select {
	case got := <-results:
		assert.Equal(t, 42, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for emitted value")
	}

	require.True(t, rt.WaitUntilAllJobsFinished(time.Second))
	assert.Equal(t, flow.JobCompleted, job.Status())
}

// TestBatchSizePolicyWaitsForThreshold covers a batch_size routine that only
// fires once enough payloads have accumulated across separate posts.
func TestBatchSizePolicyWaitsForThreshold(t *testing.T) {
	rt, flows := newTestRuntime(t)

	fired := make(chan int, 1)

	f := flow.NewFlow("batcher")
	r := flow.NewRoutine()
	require.NoError(t, r.AddSlot("in", 10, 0))
	r.SetActivationPolicy(policy.NewBatchSize("in", 3))
	r.SetLogic(func(_ context.Context, data map[string][]flow.Payload, _ string, _ *flow.WorkerState) error {
		fired <- len(data["in"])
		return nil
	})
	require.NoError(t, f.AddRoutine("r", r))
	require.NoError(t, flows.Register(f))

	for i := 0; i < 2; i++ {
		_, _, err := rt.Post("batcher", "r", "in", flow.Payload{"n": i}, nil)
		require.NoError(t, err)
	}
	select {
	case <-fired:
		t.Fatal("fired before batch threshold reached")
	case <-time.After(100 * time.Millisecond):
	}

	_, _, err := rt.Post("batcher", "r", "in", flow.Payload{"n": 2}, nil)
	require.NoError(t, err)

	select {
	case n := <-fired:
		assert.Equal(t, 3, n)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for batch fire")
	}
}

// TestRetryErrorHandlerEventuallySucceeds covers the retry decision path:
// a routine fails twice, then succeeds on the third attempt, all against
// the same originally-consumed data slice.
func TestRetryErrorHandlerEventuallySucceeds(t *testing.T) {
	rt, flows := newTestRuntime(t)

	attempts := make(chan int, 5)

	f := flow.NewFlow("retrier")
	r := flow.NewRoutine()
	require.NoError(t, r.AddSlot("in", 10, 0))
	r.SetActivationPolicy(policy.NewImmediate("in"))
	r.SetErrorHandler(errhandler.NewRetry(3, 5*time.Millisecond, 1, 0))

	count := 0
	r.SetLogic(func(_ context.Context, data map[string][]flow.Payload, _ string, _ *flow.WorkerState) error {
		count++
		attempts <- count
		if count < 3 {
			return fmt.Errorf("transient failure")
		}
		return nil
	})
	require.NoError(t, f.AddRoutine("r", r))
	require.NoError(t, flows.Register(f))

	_, job, err := rt.Post("retrier", "r", "in", flow.Payload{"n": 1}, nil)
	require.NoError(t, err)

	for want := 1; want <= 3; want++ {
		select {
		case got := <-attempts:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for attempt %d", want)
		}
	}
	require.True(t, rt.WaitUntilAllJobsFinished(time.Second))
	assert.Equal(t, flow.JobCompleted, job.Status())
}

type failCountingHooks struct {
	flow.NoopHooks
	mu     sync.Mutex
	failed int
}

func (h *failCountingHooks) OnRoutineEnd(_ string, _ *flow.WorkerState, _ *flow.JobContext, status string, _ error) {
	if status != "failed" {
		return
	}
	h.mu.Lock()
	h.failed++
	h.mu.Unlock()
}

func (h *failCountingHooks) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failed
}

// TestRetryExhaustionFailsExactlyMaxAttemptsPlusOneTimes covers property #10
// and scenario S4: a persistently-failing routine under retry(max=2) must
// produce exactly 3 failed on_routine_end events (the initial attempt plus
// 2 retries) before the flow-level stop default fails the job.
func TestRetryExhaustionFailsExactlyMaxAttemptsPlusOneTimes(t *testing.T) {
	flows := registry.NewFlowRegistry()
	workers := registry.NewWorkerRegistry()
	hooks := &failCountingHooks{}
	rt, err := New(Options{Flows: flows, Workers: workers, PoolSize: 2, Hooks: hooks})
	require.NoError(t, err)
	t.Cleanup(func() { rt.Shutdown(false) })

	f := flow.NewFlow("retry-exhaustion")
	r := flow.NewRoutine()
	require.NoError(t, r.AddSlot("in", 10, 0))
	r.SetActivationPolicy(policy.NewImmediate("in"))
	r.SetErrorHandler(errhandler.NewRetry(2, time.Millisecond, 1, 0))
	f.SetErrorHandler(errhandler.NewStop())
	r.SetLogic(func(context.Context, map[string][]flow.Payload, string, *flow.WorkerState) error {
		return fmt.Errorf("persistent failure")
	})
	require.NoError(t, f.AddRoutine("r", r))
	require.NoError(t, flows.Register(f))

	_, job, err := rt.Post("retry-exhaustion", "r", "in", flow.Payload{"n": 1}, nil)
	require.NoError(t, err)

	require.True(t, rt.WaitUntilAllJobsFinished(time.Second))
	assert.Equal(t, flow.JobFailed, job.Status())
	assert.Equal(t, 3, hooks.count(), "initial attempt plus 2 retries must each report failed")
}

// TestStopErrorHandlerFailsJobAndDropsRemainingWork covers the default stop
// decision: a failing routine with no handler bound fails the whole job.
func TestStopErrorHandlerFailsJobAndDropsRemainingWork(t *testing.T) {
	rt, flows := newTestRuntime(t)

	f := flow.NewFlow("stopper")
	r := flow.NewRoutine()
	require.NoError(t, r.AddSlot("in", 10, 0))
	r.SetActivationPolicy(policy.NewImmediate("in"))
	r.SetLogic(func(context.Context, map[string][]flow.Payload, string, *flow.WorkerState) error {
		return fmt.Errorf("boom")
	})
	require.NoError(t, f.AddRoutine("r", r))
	require.NoError(t, flows.Register(f))

	_, job, err := rt.Post("stopper", "r", "in", flow.Payload{"n": 1}, nil)
	require.NoError(t, err)

	require.True(t, rt.WaitUntilAllJobsFinished(time.Second))
	assert.Equal(t, flow.JobFailed, job.Status())
	assert.ErrorContains(t, job.Error(), "boom")
}

// TestCancelJobDropsQueuedTask covers mid-flight cancellation: a task
// already queued for a cancelled job is dropped at dequeue without
// invoking logic. processTask is exercised directly (this file is part of
// package runtime) to make the cancel-before-dequeue ordering deterministic
// instead of racing a real worker goroutine against CancelJob.
func TestCancelJobDropsQueuedTask(t *testing.T) {
	rt, flows := newTestRuntime(t)

	ran := make(chan struct{}, 1)

	f := flow.NewFlow("cancellable")
	r := flow.NewRoutine()
	require.NoError(t, r.AddSlot("in", 10, 0))
	r.SetActivationPolicy(policy.NewImmediate("in"))
	r.SetLogic(func(context.Context, map[string][]flow.Payload, string, *flow.WorkerState) error {
		ran <- struct{}{}
		return nil
	})
	require.NoError(t, f.AddRoutine("r", r))
	require.NoError(t, flows.Register(f))

	ws, err := rt.Exec("cancellable")
	require.NoError(t, err)
	slot, _ := r.Slot("in")
	require.NoError(t, slot.Enqueue(flow.Payload{"n": 1}, "", time.Now()))

	job := flow.NewJobContext("job-1", ws.ID(), "cancellable", nil, time.Now())
	rt.registerJob(job)
	rt.bumpTaskCount(job.ID(), 1)
	require.NoError(t, rt.CancelJob(job.ID()))

	rt.processTask(&task{
		priority:  PriorityNormal,
		routineID: "r",
		slotName:  "in",
		jobID:     job.ID(),
		workerID:  ws.ID(),
		flowID:    "cancellable",
	})

	select {
	case <-ran:
		t.Fatal("logic ran for a cancelled job")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, flow.JobCancelled, job.Status())
}
