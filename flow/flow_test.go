package flow

import (
	"context"
	"testing"

	"github.com/flowmesh/flowengine/flow/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoutine(t *testing.T, slotName, eventName string) *Routine {
	t.Helper()
	r := NewRoutine()
	require.NoError(t, r.AddSlot(slotName, 10, 0))
	require.NoError(t, r.AddEvent(eventName, nil))
	r.SetLogic(func(context.Context, map[string][]Payload, string, *WorkerState) error { return nil })
	r.SetActivationPolicy(fireImmediately{})
	return r
}

type fireImmediately struct{}

func (fireImmediately) Evaluate(map[string]*Slot, *WorkerState) PolicyResult {
	return PolicyResult{Fire: true}
}

func TestFlowConnectRejectsDanglingEndpoints(t *testing.T) {
	f := NewFlow("f1")
	a := newTestRoutine(t, "in", "out")
	require.NoError(t, f.AddRoutine("a", a))

	err := f.Connect(Connection{SourceRoutineID: "a", SourceEventName: "out", TargetRoutineID: "missing", TargetSlotName: "in"})
	assert.ErrorIs(t, err, errs.ErrInvalidConnection)
}

func TestFlowConnectRejectsDuplicate(t *testing.T) {
	f := NewFlow("f1")
	a := newTestRoutine(t, "in", "out")
	b := newTestRoutine(t, "in", "out")
	require.NoError(t, f.AddRoutine("a", a))
	require.NoError(t, f.AddRoutine("b", b))

	c := Connection{SourceRoutineID: "a", SourceEventName: "out", TargetRoutineID: "b", TargetSlotName: "in"}
	require.NoError(t, f.Connect(c))
	assert.ErrorIs(t, f.Connect(c), errs.ErrInvalidConnection)
}

func TestFlowAddRoutineRejectedWhileRunning(t *testing.T) {
	f := NewFlow("f1")
	f.MarkRunning()
	err := f.AddRoutine("a", newTestRoutine(t, "in", "out"))
	assert.ErrorIs(t, err, errs.ErrFlowRunning)
}

func TestFlowValidateCatchesMissingLogicAndPolicy(t *testing.T) {
	f := NewFlow("f1")
	r := NewRoutine()
	require.NoError(t, f.AddRoutine("a", r))
	err := f.Validate()
	assert.ErrorIs(t, err, errs.ErrMissingLogic)

	r.SetLogic(func(context.Context, map[string][]Payload, string, *WorkerState) error { return nil })
	err = f.Validate()
	assert.ErrorIs(t, err, errs.ErrNoActivationPolicy)
}

func TestFlowRemoveRoutineStripsConnections(t *testing.T) {
	f := NewFlow("f1")
	a := newTestRoutine(t, "in", "out")
	b := newTestRoutine(t, "in", "out")
	require.NoError(t, f.AddRoutine("a", a))
	require.NoError(t, f.AddRoutine("b", b))
	require.NoError(t, f.Connect(Connection{SourceRoutineID: "a", SourceEventName: "out", TargetRoutineID: "b", TargetSlotName: "in"}))

	require.NoError(t, f.RemoveRoutine("a"))
	assert.Empty(t, f.Connections())
}

func TestApplyParamMapPassthroughAndRemap(t *testing.T) {
	payload := Payload{"x": 1, "y": 2}

	out, err := ApplyParamMap(payload, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, out)

	out, err = ApplyParamMap(payload, ParamMap{"z": FromSource("x"), "const": Literal("fixed")})
	require.NoError(t, err)
	assert.Equal(t, 1, out["z"])
	assert.Equal(t, "fixed", out["const"])
	assert.NotContains(t, out, "y")

	_, err = ApplyParamMap(payload, ParamMap{"z": FromSource("missing")})
	assert.ErrorIs(t, err, errs.ErrParamMapMissingSource)
}
