// Package errs defines the sentinel error values surfaced to callers of the
// flow engine. Every signal named in the engine's error table is a distinct
// sentinel so callers can match with errors.Is regardless of the wrapping
// context a component adds around it.
package errs

import "errors"

var (
	// ErrQueueFull is returned when a slot is at capacity on enqueue.
	ErrQueueFull = errors.New("queue_full")

	// ErrFlowNotFound is returned on a registry miss.
	ErrFlowNotFound = errors.New("flow_not_found")

	// ErrFlowAlreadyExists is returned when registering a duplicate flow id.
	ErrFlowAlreadyExists = errors.New("flow_already_exists")

	// ErrRoutineNotFound is returned when a routine id is missing on add,
	// remove, or connect.
	ErrRoutineNotFound = errors.New("routine_not_found")

	// ErrInvalidConnection is returned for a dangling endpoint or a
	// duplicate connection.
	ErrInvalidConnection = errors.New("invalid_connection")

	// ErrNoExecutionContext is returned when Emit is called outside of a
	// logic invocation. CurrentJob and the other Current* accessors report
	// false instead of returning it.
	ErrNoExecutionContext = errors.New("no_execution_context")

	// ErrNoActivationPolicy is returned at flow validation time for a
	// routine with no activation policy bound.
	ErrNoActivationPolicy = errors.New("no_activation_policy")

	// ErrParamMapMissingSource is returned when a param-map spec references
	// a key absent from the emitted payload.
	ErrParamMapMissingSource = errors.New("param_map_missing_source")

	// ErrIncompatibleVersion is returned when decoding a serialized flow
	// document tagged with an unknown schema version.
	ErrIncompatibleVersion = errors.New("incompatible_version")

	// ErrJobNotFound is returned on lookup or cancellation of an unknown job.
	ErrJobNotFound = errors.New("job_not_found")

	// ErrCancelled is observed via JobContext.Status, not normally returned
	// directly, but is exposed for callers that want to compare against it.
	ErrCancelled = errors.New("cancelled")

	// ErrFlowRunning is returned when a structural mutation (add/remove
	// routine, connect/disconnect) is attempted while a worker for the flow
	// is running.
	ErrFlowRunning = errors.New("flow_running")

	// ErrDuplicateName is returned when adding a slot or event whose name
	// already exists on the routine, or a duplicate routine id on a flow.
	ErrDuplicateName = errors.New("duplicate_name")

	// ErrMissingLogic is returned at flow validation time for a routine with
	// no logic function bound.
	ErrMissingLogic = errors.New("missing_logic")
)
