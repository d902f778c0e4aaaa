package flow

// PolicyResult is the outcome of evaluating a Routine's ActivationPolicy.
type PolicyResult struct {
	// Fire is true if the routine should run its logic now.
	Fire bool
	// Data holds the slot items handed to logic, keyed by slot name. It is
	// only meaningful when Fire is true, and its items have already been
	// marked consumed on their originating Slot by the time Evaluate
	// returns.
	Data map[string][]Payload
	// Message is a short, policy-specific annotation passed through to
	// logic (e.g. why a breakpoint held, or what triggered a time-interval
	// fire).
	Message string
}

// ActivationPolicy decides whether a Routine should fire given its current
// slot contents and the shared WorkerState, and is responsible for
// consuming the matched slot items as a side effect of firing. It must be
// safe for concurrent invocation across independent task dequeues; a
// policy that cannot tolerate concurrent evaluation (most can't safely
// allow two fires to race over the same items) must perform its
// fire-and-consume decision atomically with respect to the slots it reads,
// which in practice means acquiring each Slot's lock once via its Consume*
// methods rather than Peek-then-Consume across two steps.
type ActivationPolicy interface {
	Evaluate(slots map[string]*Slot, worker *WorkerState) PolicyResult
}

// NamedPolicy is implemented by ActivationPolicy values that can describe
// themselves for the serialization contract (§4.12): a registered factory
// name plus the constructor arguments needed to rebuild an equivalent
// policy. Built-in policies always implement it; a custom policy only does
// if it was constructed through a registered factory (see flow/policy).
type NamedPolicy interface {
	ActivationPolicy
	PolicyName() string
	PolicyArgs() map[string]any
}
