// Package policy implements the built-in ActivationPolicy variants: the
// rules that decide when a Routine's logic should fire given its slots'
// current contents. Each variant also implements flow.NamedPolicy so it can
// round-trip through flow/serialize.
package policy

import (
	"time"

	"github.com/flowmesh/flowengine/flow"
)

// Immediate fires once per unconsumed item on a single designated slot,
// one item at a time, as soon as anything is enqueued.
type Immediate struct {
	SlotName string
}

// NewImmediate returns an Immediate policy bound to slotName.
func NewImmediate(slotName string) *Immediate {
	return &Immediate{SlotName: slotName}
}

func (p *Immediate) Evaluate(slots map[string]*flow.Slot, _ *flow.WorkerState) flow.PolicyResult {
	s, ok := slots[p.SlotName]
	if !ok {
		return flow.PolicyResult{}
	}
	payload, ok := s.ConsumeOneNew()
	if !ok {
		return flow.PolicyResult{}
	}
	return flow.PolicyResult{
		Fire: true,
		Data: map[string][]flow.Payload{p.SlotName: {payload}},
	}
}

func (p *Immediate) PolicyName() string { return "immediate" }
func (p *Immediate) PolicyArgs() map[string]any {
	return map[string]any{"slot": p.SlotName}
}

// AllSlotsReady fires only once every named slot has at least one
// unconsumed item, consuming exactly one item from each simultaneously.
type AllSlotsReady struct {
	SlotNames []string
}

// NewAllSlotsReady returns an AllSlotsReady policy over slotNames.
func NewAllSlotsReady(slotNames []string) *AllSlotsReady {
	return &AllSlotsReady{SlotNames: slotNames}
}

func (p *AllSlotsReady) Evaluate(slots map[string]*flow.Slot, _ *flow.WorkerState) flow.PolicyResult {
	for _, name := range p.SlotNames {
		s, ok := slots[name]
		if !ok || s.UnconsumedCount() == 0 {
			return flow.PolicyResult{}
		}
	}
	// All slots observed ready; consume under a second pass. A slot drained
	// by a concurrent evaluation between the check and this consume simply
	// fails to yield an item, and the whole evaluation aborts without
	// having mutated any other slot's queue pointer in a way the next
	// evaluation can't recover from, since ConsumeOneNew is a no-op on an
	// empty slot.
	data := make(map[string][]flow.Payload, len(p.SlotNames))
	for _, name := range p.SlotNames {
		payload, ok := slots[name].ConsumeOneNew()
		if !ok {
			return flow.PolicyResult{}
		}
		data[name] = []flow.Payload{payload}
	}
	return flow.PolicyResult{Fire: true, Data: data}
}

func (p *AllSlotsReady) PolicyName() string { return "all_slots_ready" }
func (p *AllSlotsReady) PolicyArgs() map[string]any {
	return map[string]any{"slots": p.SlotNames}
}

// BatchSize fires once a single designated slot holds at least N unconsumed
// items, draining every unconsumed item on that slot (not just N) once the
// threshold is met.
type BatchSize struct {
	SlotName string
	N        int
}

// NewBatchSize returns a BatchSize policy over slotName requiring n items.
func NewBatchSize(slotName string, n int) *BatchSize {
	return &BatchSize{SlotName: slotName, N: n}
}

func (p *BatchSize) Evaluate(slots map[string]*flow.Slot, _ *flow.WorkerState) flow.PolicyResult {
	s, ok := slots[p.SlotName]
	if !ok || s.UnconsumedCount() < p.N {
		return flow.PolicyResult{}
	}
	items := s.ConsumeNewAll()
	if len(items) < p.N {
		return flow.PolicyResult{}
	}
	return flow.PolicyResult{Fire: true, Data: map[string][]flow.Payload{p.SlotName: items}}
}

func (p *BatchSize) PolicyName() string { return "batch_size" }
func (p *BatchSize) PolicyArgs() map[string]any {
	return map[string]any{"slot": p.SlotName, "n": p.N}
}

// TimeInterval fires at most once every Interval, draining every
// unconsumed item across every slot when it does. The interval clock is
// stored in the WorkerState so it survives across task dequeues and ties
// its lifetime to the worker rather than to this policy instance.
type TimeInterval struct {
	RoutineID string
	Interval  time.Duration
}

const timeIntervalLastFireKey = "last_fire"

// NewTimeInterval returns a TimeInterval policy that fires at most once per
// interval. routineID scopes the clock state in WorkerState so distinct
// routines sharing a worker never collide on the same fire timestamp.
func NewTimeInterval(routineID string, interval time.Duration) *TimeInterval {
	return &TimeInterval{RoutineID: routineID, Interval: interval}
}

func (p *TimeInterval) Evaluate(slots map[string]*flow.Slot, worker *flow.WorkerState) flow.PolicyResult {
	anyUnconsumed := false
	for _, s := range slots {
		if s.UnconsumedCount() > 0 {
			anyUnconsumed = true
			break
		}
	}
	if !anyUnconsumed {
		return flow.PolicyResult{}
	}

	st, _ := worker.GetRoutineState(p.RoutineID)
	now := time.Now()
	if st != nil {
		if last, ok := st[timeIntervalLastFireKey].(time.Time); ok && now.Sub(last) < p.Interval {
			return flow.PolicyResult{}
		}
	}

	data := make(map[string][]flow.Payload)
	for name, s := range slots {
		items := s.ConsumeNewAll()
		if len(items) > 0 {
			data[name] = items
		}
	}
	if len(data) == 0 {
		return flow.PolicyResult{}
	}
	worker.UpdateRoutineState(p.RoutineID, map[string]any{timeIntervalLastFireKey: now})
	return flow.PolicyResult{Fire: true, Data: data, Message: "time_interval elapsed"}
}

func (p *TimeInterval) PolicyName() string { return "time_interval" }
func (p *TimeInterval) PolicyArgs() map[string]any {
	return map[string]any{"routine_id": p.RoutineID, "interval_ms": p.Interval.Milliseconds()}
}

// BreakpointFunc reports whether a breakpoint condition currently holds the
// routine back from firing.
type BreakpointFunc func(slots map[string]*flow.Slot, worker *flow.WorkerState) (bool, string)

// Breakpoint wraps a Base ActivationPolicy and gates it with Cond: it fires
// (and consumes) exactly when Base would fire and Cond reports false. While
// Cond reports true, Base is never evaluated, so nothing is consumed and a
// debugger can step through held state by poking Cond's backing condition
// externally without losing buffered slot items.
type Breakpoint struct {
	Base flow.ActivationPolicy
	Cond BreakpointFunc
}

// NewBreakpoint returns a Breakpoint policy delegating to base once cond
// reports false.
func NewBreakpoint(base flow.ActivationPolicy, cond BreakpointFunc) *Breakpoint {
	return &Breakpoint{Base: base, Cond: cond}
}

func (p *Breakpoint) Evaluate(slots map[string]*flow.Slot, worker *flow.WorkerState) flow.PolicyResult {
	held, msg := p.Cond(slots, worker)
	if held {
		return flow.PolicyResult{Message: msg}
	}
	result := p.Base.Evaluate(slots, worker)
	if result.Fire && result.Message == "" {
		result.Message = msg
	}
	return result
}

func (p *Breakpoint) PolicyName() string { return "breakpoint" }

// PolicyArgs is empty: neither Base nor Cond is written out, so a decoder's
// "breakpoint" factory has to supply both itself.
func (p *Breakpoint) PolicyArgs() map[string]any {
	return map[string]any{}
}

// CustomFunc is an arbitrary user-supplied evaluation function.
type CustomFunc func(slots map[string]*flow.Slot, worker *flow.WorkerState) flow.PolicyResult

// Custom wraps a user function as an ActivationPolicy. It implements
// NamedPolicy using Name so it can still be referenced in a serialized flow
// document, but round-trips only if Name is registered in a policy
// registry that maps it back to an equivalent CustomFunc — Fn itself is not
// serializable.
type Custom struct {
	Name string
	Fn   CustomFunc
}

// NewCustom returns a Custom policy identified by name and backed by fn.
func NewCustom(name string, fn CustomFunc) *Custom {
	return &Custom{Name: name, Fn: fn}
}

func (p *Custom) Evaluate(slots map[string]*flow.Slot, worker *flow.WorkerState) flow.PolicyResult {
	return p.Fn(slots, worker)
}

func (p *Custom) PolicyName() string         { return p.Name }
func (p *Custom) PolicyArgs() map[string]any { return map[string]any{} }

var (
	_ flow.NamedPolicy = (*Immediate)(nil)
	_ flow.NamedPolicy = (*AllSlotsReady)(nil)
	_ flow.NamedPolicy = (*BatchSize)(nil)
	_ flow.NamedPolicy = (*TimeInterval)(nil)
	_ flow.NamedPolicy = (*Breakpoint)(nil)
	_ flow.NamedPolicy = (*Custom)(nil)
)
