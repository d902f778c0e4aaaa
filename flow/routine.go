package flow

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowmesh/flowengine/flow/errs"
)

// LogicFunc is the signature every Routine's business logic implements. ctx
// carries the ambient execution context: Emit(ctx, ...) and CurrentJob(ctx)
// only work when called with this exact context (or a context derived from
// it via context.WithValue-preserving wrappers, e.g. context.WithTimeout).
type LogicFunc func(ctx context.Context, dataSlice map[string][]Payload, policyMessage string, worker *WorkerState) error

// RoutineFactory constructs a fresh, unconfigured Routine. Every Routine
// must be reachable through a no-arg factory so it can be rebuilt from a
// serialized flow document; per-instance tuning belongs in Config, set
// after construction.
type RoutineFactory func() *Routine

// Routine is a user-authored unit of work: a set of input Slots, a set of
// output Events, a read-only (after first use) configuration map, a logic
// function, and a bound ActivationPolicy.
type Routine struct {
	mu sync.RWMutex

	id string

	slots      map[string]*Slot
	slotOrder  []string
	events     map[string]*Event
	eventOrder []string

	config       map[string]any
	configFrozen bool

	logic        LogicFunc
	policy       ActivationPolicy
	errorHandler ErrorHandler
}

// NewRoutine constructs an empty Routine with no slots, events, config,
// logic, or policy. Callers configure it with AddSlot/AddEvent/SetConfig/
// SetLogic/SetActivationPolicy before adding it to a Flow.
func NewRoutine() *Routine {
	return &Routine{
		slots:  make(map[string]*Slot),
		events: make(map[string]*Event),
		config: make(map[string]any),
	}
}

// ID returns the routine's id within its owning flow, or "" if it has not
// been added to one yet.
func (r *Routine) ID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.id
}

// setID is called by Flow.AddRoutine.
func (r *Routine) setID(id string) {
	r.mu.Lock()
	r.id = id
	r.mu.Unlock()
}

// AddSlot declares a new input slot. maxQueueLength <= 0 and watermark
// outside (0,1] fall back to the package defaults.
func (r *Routine) AddSlot(name string, maxQueueLength int, watermark float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.slots[name]; dup {
		return fmt.Errorf("slot %q: %w", name, errs.ErrDuplicateName)
	}
	r.slots[name] = NewSlot(name, maxQueueLength, watermark)
	r.slotOrder = append(r.slotOrder, name)
	return nil
}

// AddEvent declares a new output event.
func (r *Routine) AddEvent(name string, paramKeys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.events[name]; dup {
		return fmt.Errorf("event %q: %w", name, errs.ErrDuplicateName)
	}
	r.events[name] = NewEvent(name, paramKeys)
	r.eventOrder = append(r.eventOrder, name)
	return nil
}

// SetConfig merges kv into the routine's configuration map. It fails once
// the routine's config has been frozen (a Runtime has started a worker for
// the containing flow).
func (r *Routine) SetConfig(kv map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.configFrozen {
		return fmt.Errorf("routine %q: config is frozen", r.id)
	}
	for k, v := range kv {
		r.config[k] = v
	}
	return nil
}

// GetConfig returns the configured value for key, or def if unset.
func (r *Routine) GetConfig(key string, def any) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.config[key]; ok {
		return v
	}
	return def
}

// Config returns a copy of the routine's full configuration map.
func (r *Routine) Config() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneAnyMap(r.config)
}

// freeze prevents further SetConfig calls. Called through
// Flow.FreezeRoutineConfigs when a Runtime starts the containing flow's
// worker.
func (r *Routine) freeze() {
	r.mu.Lock()
	r.configFrozen = true
	r.mu.Unlock()
}

// SetLogic binds the routine's business logic function.
func (r *Routine) SetLogic(fn LogicFunc) {
	r.mu.Lock()
	r.logic = fn
	r.mu.Unlock()
}

// Logic returns the routine's bound logic function, or nil if unset.
func (r *Routine) Logic() LogicFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logic
}

// SetActivationPolicy binds the routine's activation policy. A routine with
// no policy set is rejected at Flow.Validate time.
func (r *Routine) SetActivationPolicy(p ActivationPolicy) {
	r.mu.Lock()
	r.policy = p
	r.mu.Unlock()
}

// ActivationPolicy returns the routine's bound policy, or nil if unset.
func (r *Routine) ActivationPolicy() ActivationPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policy
}

// SetErrorHandler binds a routine-level error handler, overriding the
// flow-level and default handlers for this routine.
func (r *Routine) SetErrorHandler(h ErrorHandler) {
	r.mu.Lock()
	r.errorHandler = h
	r.mu.Unlock()
}

// ErrorHandler returns the routine's bound error handler, or nil if unset.
func (r *Routine) ErrorHandler() ErrorHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.errorHandler
}

// Slot returns a routine's named slot.
func (r *Routine) Slot(name string) (*Slot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[name]
	return s, ok
}

// Slots returns the routine's slots keyed by name. The returned map is the
// routine's live internal map and must not be mutated by callers outside
// package flow.
func (r *Routine) Slots() map[string]*Slot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slots
}

// SlotOrder returns slot names in declaration order, used to break ties in
// the all_slots_ready policy.
func (r *Routine) SlotOrder() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.slotOrder))
	copy(out, r.slotOrder)
	return out
}

// Event returns a routine's named event.
func (r *Routine) Event(name string) (*Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[name]
	return e, ok
}

// EventOrder returns event names in declaration order.
func (r *Routine) EventOrder() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.eventOrder))
	copy(out, r.eventOrder)
	return out
}
