// Package registry implements FlowRegistry and WorkerRegistry (§4.11):
// explicit, injected lookup tables rather than process-wide singletons, so
// multiple independent registries can coexist in the same process (e.g.
// one per tenant).
package registry

import (
	"fmt"
	"sync"

	"github.com/flowmesh/flowengine/flow"
	"github.com/flowmesh/flowengine/flow/errs"
)

// FlowRegistry tracks the set of known flows by id. Registering a duplicate
// id fails with errs.ErrFlowAlreadyExists; unregistering a flow with a
// running worker fails with errs.ErrFlowRunning.
type FlowRegistry struct {
	mu    sync.RWMutex
	flows map[string]*flow.Flow
}

// NewFlowRegistry constructs an empty FlowRegistry.
func NewFlowRegistry() *FlowRegistry {
	return &FlowRegistry{flows: make(map[string]*flow.Flow)}
}

// Register adds f to the registry under its own id.
func (r *FlowRegistry) Register(f *flow.Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := f.ID()
	if _, dup := r.flows[id]; dup {
		return fmt.Errorf("register flow %q: %w", id, errs.ErrFlowAlreadyExists)
	}
	r.flows[id] = f
	return nil
}

// Unregister removes flowID from the registry. Fails if the flow is
// currently running.
func (r *FlowRegistry) Unregister(flowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[flowID]
	if !ok {
		return fmt.Errorf("unregister flow %q: %w", flowID, errs.ErrFlowNotFound)
	}
	if f.IsRunning() {
		return fmt.Errorf("unregister flow %q: %w", flowID, errs.ErrFlowRunning)
	}
	delete(r.flows, flowID)
	return nil
}

// Get returns the flow registered under flowID.
func (r *FlowRegistry) Get(flowID string) (*flow.Flow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flows[flowID]
	return f, ok
}

// List returns every registered flow id.
func (r *FlowRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.flows))
	for id := range r.flows {
		out = append(out, id)
	}
	return out
}

// WorkerRegistry tracks live WorkerStates for introspection. It is
// non-owning: entries are removed on worker shutdown, and the registry
// holding a reference does not keep a worker's goroutines alive.
type WorkerRegistry struct {
	mu      sync.RWMutex
	workers map[string]*flow.WorkerState
}

// NewWorkerRegistry constructs an empty WorkerRegistry.
func NewWorkerRegistry() *WorkerRegistry {
	return &WorkerRegistry{workers: make(map[string]*flow.WorkerState)}
}

// Add registers ws under its own id, overwriting any prior entry with the
// same id.
func (r *WorkerRegistry) Add(ws *flow.WorkerState) {
	r.mu.Lock()
	r.workers[ws.ID()] = ws
	r.mu.Unlock()
}

// Remove drops workerID from the registry. Safe to call on an id that was
// never added.
func (r *WorkerRegistry) Remove(workerID string) {
	r.mu.Lock()
	delete(r.workers, workerID)
	r.mu.Unlock()
}

// Get returns the worker state registered under workerID.
func (r *WorkerRegistry) Get(workerID string) (*flow.WorkerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ws, ok := r.workers[workerID]
	return ws, ok
}

// List returns every currently live worker id.
func (r *WorkerRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.workers))
	for id := range r.workers {
		out = append(out, id)
	}
	return out
}
