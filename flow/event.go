package flow

// Event is a named output port on a Routine. It carries no runtime state of
// its own; routing an emitted payload to connected slots is the Runtime's
// job. The declared ParamKeys exist purely for documentation and
// introspection (tooling can show authors what an event is expected to
// carry without inspecting call sites).
type Event struct {
	name      string
	paramKeys []string
}

// NewEvent constructs an Event descriptor.
func NewEvent(name string, paramKeys []string) *Event {
	keys := make([]string, len(paramKeys))
	copy(keys, paramKeys)
	return &Event{name: name, paramKeys: keys}
}

// Name returns the event's name.
func (e *Event) Name() string { return e.name }

// ParamKeys returns a copy of the event's declared parameter keys.
func (e *Event) ParamKeys() []string {
	out := make([]string, len(e.paramKeys))
	copy(out, e.paramKeys)
	return out
}
