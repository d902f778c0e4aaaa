package policy

import (
	"testing"
	"time"

	"github.com/flowmesh/flowengine/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slotWith(t *testing.T, name string, items ...flow.Payload) *flow.Slot {
	t.Helper()
	s := flow.NewSlot(name, 100, 0)
	for _, p := range items {
		require.NoError(t, s.Enqueue(p, "", time.Now()))
	}
	return s
}

func TestImmediateFiresOncePerItem(t *testing.T) {
	s := slotWith(t, "in", flow.Payload{"n": 1}, flow.Payload{"n": 2})
	p := NewImmediate("in")

	r1 := p.Evaluate(map[string]*flow.Slot{"in": s}, nil)
	require.True(t, r1.Fire)
	assert.Equal(t, 1, s.UnconsumedCount())

	r2 := p.Evaluate(map[string]*flow.Slot{"in": s}, nil)
	require.True(t, r2.Fire)
	assert.Equal(t, 0, s.UnconsumedCount())

	r3 := p.Evaluate(map[string]*flow.Slot{"in": s}, nil)
	assert.False(t, r3.Fire)
}

func TestAllSlotsReadyRequiresEveryNamedSlot(t *testing.T) {
	a := slotWith(t, "a", flow.Payload{"n": 1})
	b := flow.NewSlot("b", 100, 0)
	p := NewAllSlotsReady([]string{"a", "b"})

	slots := map[string]*flow.Slot{"a": a, "b": b}
	result := p.Evaluate(slots, nil)
	assert.False(t, result.Fire)
	assert.Equal(t, 1, a.UnconsumedCount(), "slot a must not be consumed when b isn't ready")

	require.NoError(t, b.Enqueue(flow.Payload{"n": 2}, "", time.Now()))
	result = p.Evaluate(slots, nil)
	require.True(t, result.Fire)
	assert.Equal(t, 0, a.UnconsumedCount())
	assert.Equal(t, 0, b.UnconsumedCount())
}

func TestBatchSizeWaitsForThreshold(t *testing.T) {
	s := slotWith(t, "in", flow.Payload{"n": 1}, flow.Payload{"n": 2})
	p := NewBatchSize("in", 3)
	result := p.Evaluate(map[string]*flow.Slot{"in": s}, nil)
	assert.False(t, result.Fire)

	require.NoError(t, s.Enqueue(flow.Payload{"n": 3}, "", time.Now()))
	result = p.Evaluate(map[string]*flow.Slot{"in": s}, nil)
	require.True(t, result.Fire)
	assert.Len(t, result.Data["in"], 3)
}

func TestTimeIntervalFiresAtMostOncePerInterval(t *testing.T) {
	ws := flow.NewWorkerState("w1", "f1")
	s := slotWith(t, "in", flow.Payload{"n": 1})
	p := NewTimeInterval("r1", 50*time.Millisecond)

	result := p.Evaluate(map[string]*flow.Slot{"in": s}, ws)
	require.True(t, result.Fire)

	require.NoError(t, s.Enqueue(flow.Payload{"n": 2}, "", time.Now()))
	result = p.Evaluate(map[string]*flow.Slot{"in": s}, ws)
	assert.False(t, result.Fire, "second fire within the interval should be suppressed")

	time.Sleep(60 * time.Millisecond)
	result = p.Evaluate(map[string]*flow.Slot{"in": s}, ws)
	assert.True(t, result.Fire)
}

func TestTimeIntervalScopesStatePerRoutine(t *testing.T) {
	ws := flow.NewWorkerState("w1", "f1")
	sA := slotWith(t, "in", flow.Payload{"n": 1})
	sB := slotWith(t, "in", flow.Payload{"n": 1})
	pA := NewTimeInterval("routine-a", time.Hour)
	pB := NewTimeInterval("routine-b", time.Hour)

	require.True(t, pA.Evaluate(map[string]*flow.Slot{"in": sA}, ws).Fire)
	// routine-b's clock must be independent of routine-a's.
	require.NoError(t, sB.Enqueue(flow.Payload{"n": 2}, "", time.Now()))
	assert.True(t, pB.Evaluate(map[string]*flow.Slot{"in": sB}, ws).Fire)
}

func TestBreakpointHoldsWhileConditionTrueThenDelegatesToBase(t *testing.T) {
	s := slotWith(t, "in", flow.Payload{"n": 1})
	held := true
	p := NewBreakpoint(NewImmediate("in"), func(map[string]*flow.Slot, *flow.WorkerState) (bool, string) {
		return held, "waiting"
	})

	result := p.Evaluate(map[string]*flow.Slot{"in": s}, nil)
	assert.False(t, result.Fire, "base must not even be consulted while held")
	assert.Equal(t, 1, s.UnconsumedCount(), "held breakpoint must not consume from the base policy's slot")

	held = false
	result = p.Evaluate(map[string]*flow.Slot{"in": s}, nil)
	require.True(t, result.Fire, "base would fire and cond is now false")
	assert.Equal(t, 0, s.UnconsumedCount())
	assert.Equal(t, []flow.Payload{{"n": 1}}, result.Data["in"])
}

func TestBreakpointWithheldEvenWhenBaseWouldFire(t *testing.T) {
	s := slotWith(t, "in", flow.Payload{"n": 1})
	p := NewBreakpoint(NewImmediate("in"), func(map[string]*flow.Slot, *flow.WorkerState) (bool, string) {
		return true, "bp"
	})

	result := p.Evaluate(map[string]*flow.Slot{"in": s}, nil)
	assert.False(t, result.Fire, "cond true must hold even though the base policy has data ready")
	assert.Equal(t, 1, s.UnconsumedCount())
}
