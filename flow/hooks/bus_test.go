package hooks

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowmesh/flowengine/flow"
)

type recordingHooks struct {
	flow.NoopHooks
	starts []string
}

func (r *recordingHooks) OnWorkerStart(f *flow.Flow, ws *flow.WorkerState) {
	r.starts = append(r.starts, f.ID())
}

type vetoingHooks struct {
	flow.NoopHooks
	veto bool
}

func (v *vetoingHooks) OnRoutineStart(string, *flow.WorkerState, *flow.JobContext) bool {
	return !v.veto
}

func TestBusFansOutAdvisoryCallsToEverySubscriber(t *testing.T) {
	bus := NewBus()
	a := &recordingHooks{}
	b := &recordingHooks{}
	bus.Register(a)
	bus.Register(b)

	f := flow.NewFlow("f1")
	ws := flow.NewWorkerState("w1", "f1")
	bus.OnWorkerStart(f, ws)

	assert.Equal(t, []string{"f1"}, a.starts)
	assert.Equal(t, []string{"f1"}, b.starts)
}

func TestBusGateStopsAtFirstVeto(t *testing.T) {
	bus := NewBus()
	allow := &vetoingHooks{veto: false}
	deny := &vetoingHooks{veto: true}
	bus.Register(allow)
	bus.Register(deny)

	ok := bus.OnRoutineStart("r1", nil, nil)
	assert.False(t, ok, "any subscriber vetoing must veto the whole bus")
}

func TestBusSubscriptionCloseStopsDelivery(t *testing.T) {
	bus := NewBus()
	a := &recordingHooks{}
	sub := bus.Register(a)
	sub.Close()
	sub.Close() // idempotent

	f := flow.NewFlow("f1")
	ws := flow.NewWorkerState("w1", "f1")
	bus.OnWorkerStart(f, ws)

	assert.Empty(t, a.starts)
}
