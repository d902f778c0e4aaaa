package flow

import (
	"fmt"
	"sync"

	"github.com/flowmesh/flowengine/flow/errs"
)

// Flow is a directed graph of Routines wired together by Connections. A
// Flow is built once (AddRoutine/Connect), then handed to a Runtime to
// execute jobs against; Connect/Disconnect/RemoveRoutine reject mutation
// while the flow has a running worker, per the no-dynamic-graph-mutation
// non-goal.
type Flow struct {
	mu sync.RWMutex

	id      string
	version string

	routines     map[string]*Routine
	routineOrder []string

	connections []Connection

	running      bool
	errorHandler ErrorHandler
}

// NewFlow constructs an empty, named Flow.
func NewFlow(id string) *Flow {
	return &Flow{
		id:       id,
		version:  "1",
		routines: make(map[string]*Routine),
	}
}

// ID returns the flow's identifier.
func (f *Flow) ID() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.id
}

// Version returns the flow document's schema version tag.
func (f *Flow) Version() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.version
}

// SetVersion overrides the schema version tag; used by flow/serialize when
// reconstructing a flow from a stored document.
func (f *Flow) SetVersion(v string) {
	f.mu.Lock()
	f.version = v
	f.mu.Unlock()
}

// IsRunning reports whether a Runtime currently has a live worker against
// this flow.
func (f *Flow) IsRunning() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.running
}

// MarkRunning and MarkStopped are called by the Runtime around a worker's
// lifetime; they gate graph mutation.
func (f *Flow) MarkRunning() {
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
}

func (f *Flow) MarkStopped() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
}

// SetErrorHandler binds a flow-level error handler, consulted by the Runtime
// when a failing routine has no routine-level handler of its own.
func (f *Flow) SetErrorHandler(h ErrorHandler) {
	f.mu.Lock()
	f.errorHandler = h
	f.mu.Unlock()
}

// ErrorHandler returns the flow's bound error handler, or nil if unset.
func (f *Flow) ErrorHandler() ErrorHandler {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.errorHandler
}

// FreezeRoutineConfigs prevents further SetConfig calls on every routine in
// the flow. Called by Runtime.Exec when it starts the flow's worker; Post
// starts the worker through Exec, so configs are frozen no later than the
// first job.
func (f *Flow) FreezeRoutineConfigs() {
	f.mu.RLock()
	routines := make([]*Routine, 0, len(f.routines))
	for _, r := range f.routines {
		routines = append(routines, r)
	}
	f.mu.RUnlock()
	for _, r := range routines {
		r.freeze()
	}
}

// AddRoutine registers routine under id. Fails if id is already taken or
// the flow is running.
func (f *Flow) AddRoutine(id string, r *Routine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return fmt.Errorf("add routine %q: %w", id, errs.ErrFlowRunning)
	}
	if _, dup := f.routines[id]; dup {
		return fmt.Errorf("add routine %q: %w", id, errs.ErrDuplicateName)
	}
	r.setID(id)
	f.routines[id] = r
	f.routineOrder = append(f.routineOrder, id)
	return nil
}

// RemoveRoutine removes a routine and every connection touching it. Fails
// if the flow is running.
func (f *Flow) RemoveRoutine(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return fmt.Errorf("remove routine %q: %w", id, errs.ErrFlowRunning)
	}
	if _, ok := f.routines[id]; !ok {
		return fmt.Errorf("remove routine %q: %w", id, errs.ErrRoutineNotFound)
	}
	delete(f.routines, id)
	for i, rid := range f.routineOrder {
		if rid == id {
			f.routineOrder = append(f.routineOrder[:i], f.routineOrder[i+1:]...)
			break
		}
	}
	kept := f.connections[:0]
	for _, c := range f.connections {
		if c.SourceRoutineID != id && c.TargetRoutineID != id {
			kept = append(kept, c)
		}
	}
	f.connections = kept
	return nil
}

// GetRoutine returns the routine registered under id.
func (f *Flow) GetRoutine(id string) (*Routine, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	r, ok := f.routines[id]
	return r, ok
}

// RoutineOrder returns routine ids in declaration order.
func (f *Flow) RoutineOrder() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.routineOrder))
	copy(out, f.routineOrder)
	return out
}

// Connect wires sourceRoutineID's sourceEventName to targetRoutineID's
// targetSlotName, applying paramMap (nil means verbatim passthrough) to
// every payload routed across the edge. Fails if either endpoint doesn't
// exist, if the connection duplicates an existing one, or if the flow is
// running.
func (f *Flow) Connect(c Connection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return fmt.Errorf("connect: %w", errs.ErrFlowRunning)
	}
	src, ok := f.routines[c.SourceRoutineID]
	if !ok {
		return fmt.Errorf("connect: source routine %q: %w", c.SourceRoutineID, errs.ErrInvalidConnection)
	}
	if _, ok := src.Event(c.SourceEventName); !ok {
		return fmt.Errorf("connect: source event %q on %q: %w", c.SourceEventName, c.SourceRoutineID, errs.ErrInvalidConnection)
	}
	tgt, ok := f.routines[c.TargetRoutineID]
	if !ok {
		return fmt.Errorf("connect: target routine %q: %w", c.TargetRoutineID, errs.ErrInvalidConnection)
	}
	if _, ok := tgt.Slot(c.TargetSlotName); !ok {
		return fmt.Errorf("connect: target slot %q on %q: %w", c.TargetSlotName, c.TargetRoutineID, errs.ErrInvalidConnection)
	}
	for _, existing := range f.connections {
		if existing.Equal(c) {
			return fmt.Errorf("connect: duplicate connection: %w", errs.ErrInvalidConnection)
		}
	}
	f.connections = append(f.connections, c)
	return nil
}

// Disconnect removes a connection equal to c. Fails if the flow is running
// or no matching connection exists.
func (f *Flow) Disconnect(c Connection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return fmt.Errorf("disconnect: %w", errs.ErrFlowRunning)
	}
	for i, existing := range f.connections {
		if existing.Equal(c) {
			f.connections = append(f.connections[:i], f.connections[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("disconnect: %w", errs.ErrInvalidConnection)
}

// Connections returns every wired connection.
func (f *Flow) Connections() []Connection {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Connection, len(f.connections))
	copy(out, f.connections)
	return out
}

// ConnectionsFrom returns the connections sourced at (routineID, eventName),
// in the order they were added — the fan-out order Emit routes in.
func (f *Flow) ConnectionsFrom(routineID, eventName string) []Connection {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []Connection
	for _, c := range f.connections {
		if c.SourceRoutineID == routineID && c.SourceEventName == eventName {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks the flow is well-formed: every routine has logic and an
// activation policy bound, and every connection references routines and
// slots/events that still exist.
func (f *Flow) Validate() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for id, r := range f.routines {
		if r.Logic() == nil {
			return fmt.Errorf("routine %q: %w", id, errs.ErrMissingLogic)
		}
		if r.ActivationPolicy() == nil {
			return fmt.Errorf("routine %q: %w", id, errs.ErrNoActivationPolicy)
		}
	}
	for _, c := range f.connections {
		src, ok := f.routines[c.SourceRoutineID]
		if !ok {
			return fmt.Errorf("connection %+v: source: %w", c, errs.ErrInvalidConnection)
		}
		if _, ok := src.Event(c.SourceEventName); !ok {
			return fmt.Errorf("connection %+v: source event: %w", c, errs.ErrInvalidConnection)
		}
		tgt, ok := f.routines[c.TargetRoutineID]
		if !ok {
			return fmt.Errorf("connection %+v: target: %w", c, errs.ErrInvalidConnection)
		}
		if _, ok := tgt.Slot(c.TargetSlotName); !ok {
			return fmt.Errorf("connection %+v: target slot: %w", c, errs.ErrInvalidConnection)
		}
	}
	return nil
}
