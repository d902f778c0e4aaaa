// Package hooks provides a fan-out flow.Hooks implementation: Bus lets
// several independent observers (a logger, a metrics recorder, a debugger)
// each implement flow.Hooks and all be installed on a single Runtime.
package hooks

import (
	"sync"

	"github.com/flowmesh/flowengine/flow"
)

// Bus fans every flow.Hooks call out to a set of registered subscribers, in
// registration order. Advisory calls (OnWorkerStart, OnJobEnd, ...) are
// delivered to every subscriber regardless of what earlier ones return.
// Gate calls (OnRoutineStart, OnEventEmit, OnSlotBeforeEnqueue) stop at the
// first subscriber that vetoes, mirroring how a single Hooks implementation
// would short-circuit its own gate.
//
// Bus itself implements flow.Hooks, so it can be installed on a Runtime in
// place of any single implementation.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*subscription]flow.Hooks
	order       []*subscription
}

// NewBus constructs an empty Bus ready to accept subscribers.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[*subscription]flow.Hooks)}
}

// Register adds sub to the bus and returns a Subscription that can be
// closed to unregister it.
func (b *Bus) Register(sub flow.Hooks) *Subscription {
	s := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers[s] = sub
	b.order = append(b.order, s)
	b.mu.Unlock()
	return &Subscription{s: s}
}

// snapshot returns the currently registered subscribers in registration
// order, skipping any that have since been closed. A plain map iteration
// would not preserve order, so membership is tracked separately from it.
func (b *Bus) snapshot() []flow.Hooks {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]flow.Hooks, 0, len(b.subscribers))
	for _, s := range b.order {
		if h, ok := b.subscribers[s]; ok {
			out = append(out, h)
		}
	}
	return out
}

type subscription struct {
	bus  *Bus
	once sync.Once
}

// Subscription is the handle returned by Bus.Register. Close is idempotent.
type Subscription struct{ s *subscription }

// Close unregisters the subscription. Safe to call more than once.
func (sub *Subscription) Close() {
	sub.s.once.Do(func() {
		sub.s.bus.mu.Lock()
		delete(sub.s.bus.subscribers, sub.s)
		sub.s.bus.mu.Unlock()
	})
}

func (b *Bus) OnWorkerStart(f *flow.Flow, ws *flow.WorkerState) {
	for _, s := range b.snapshot() {
		s.OnWorkerStart(f, ws)
	}
}

func (b *Bus) OnWorkerStop(f *flow.Flow, ws *flow.WorkerState, status flow.WorkerStatus) {
	for _, s := range b.snapshot() {
		s.OnWorkerStop(f, ws, status)
	}
}

func (b *Bus) OnJobStart(job *flow.JobContext, ws *flow.WorkerState) {
	for _, s := range b.snapshot() {
		s.OnJobStart(job, ws)
	}
}

func (b *Bus) OnJobEnd(job *flow.JobContext, ws *flow.WorkerState, status flow.JobStatus, err error) {
	for _, s := range b.snapshot() {
		s.OnJobEnd(job, ws, status, err)
	}
}

func (b *Bus) OnRoutineStart(routineID string, ws *flow.WorkerState, job *flow.JobContext) bool {
	for _, s := range b.snapshot() {
		if !s.OnRoutineStart(routineID, ws, job) {
			return false
		}
	}
	return true
}

func (b *Bus) OnRoutineEnd(routineID string, ws *flow.WorkerState, job *flow.JobContext, status string, err error) {
	for _, s := range b.snapshot() {
		s.OnRoutineEnd(routineID, ws, job, status, err)
	}
}

func (b *Bus) OnEventEmit(eventName, sourceRoutineID string, ws *flow.WorkerState, job *flow.JobContext, data flow.Payload) bool {
	for _, s := range b.snapshot() {
		if !s.OnEventEmit(eventName, sourceRoutineID, ws, job, data) {
			return false
		}
	}
	return true
}

func (b *Bus) OnSlotBeforeEnqueue(slotName, targetRoutineID string, job *flow.JobContext, data flow.Payload, flowID string) (bool, string) {
	for _, s := range b.snapshot() {
		if ok, reason := s.OnSlotBeforeEnqueue(slotName, targetRoutineID, job, data, flowID); !ok {
			return false, reason
		}
	}
	return true, ""
}

var _ flow.Hooks = (*Bus)(nil)
