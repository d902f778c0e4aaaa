package flow

import (
	"fmt"

	"github.com/flowmesh/flowengine/flow/errs"
)

type (
	// ParamSpec is one entry of a Connection's parameter remap: either a
	// reference to a key in the source payload, or a literal value to
	// inject unconditionally.
	ParamSpec struct {
		sourceKey string
		literal   any
		isLiteral bool
	}

	// ParamMap maps target payload keys to ParamSpecs. A nil ParamMap means
	// "pass the source payload through unchanged"; a non-nil, possibly
	// empty ParamMap means "build the target payload from these entries
	// only, dropping everything else."
	ParamMap map[string]ParamSpec

	// Connection is an immutable directed wire from one routine's event to
	// another routine's slot, with an optional parameter remap.
	Connection struct {
		SourceRoutineID string
		SourceEventName string
		TargetRoutineID string
		TargetSlotName  string
		ParamMap        ParamMap
	}
)

// FromSource builds a ParamSpec that copies a key from the source payload.
func FromSource(key string) ParamSpec {
	return ParamSpec{sourceKey: key}
}

// Literal builds a ParamSpec that injects a fixed value regardless of the
// source payload's contents.
func Literal(value any) ParamSpec {
	return ParamSpec{literal: value, isLiteral: true}
}

// AsLiteral returns the spec's literal value and true if it is a literal
// spec, for inspection by flow/serialize.
func (s ParamSpec) AsLiteral() (any, bool) {
	return s.literal, s.isLiteral
}

// Source returns the spec's source payload key. Meaningless if the spec is
// a literal.
func (s ParamSpec) Source() string {
	return s.sourceKey
}

// Equal reports whether two connections describe the same wire, including
// an equivalent parameter remap. Used to reject duplicate connections.
func (c Connection) Equal(o Connection) bool {
	if c.SourceRoutineID != o.SourceRoutineID ||
		c.SourceEventName != o.SourceEventName ||
		c.TargetRoutineID != o.TargetRoutineID ||
		c.TargetSlotName != o.TargetSlotName {
		return false
	}
	if (c.ParamMap == nil) != (o.ParamMap == nil) {
		return false
	}
	if len(c.ParamMap) != len(o.ParamMap) {
		return false
	}
	for k, v := range c.ParamMap {
		ov, ok := o.ParamMap[k]
		if !ok || v != ov {
			return false
		}
	}
	return true
}

// ApplyParamMap builds the payload delivered to a connection's target slot
// from the payload emitted at its source event.
//
//   - A nil ParamMap passes the source payload through verbatim.
//   - A non-nil ParamMap builds a fresh payload: for each (targetKey, spec)
//     pair, a source-key spec copies that key's value (failing with
//     errs.ErrParamMapMissingSource if absent), and a literal spec injects
//     its fixed value. Keys not listed in the map are dropped.
func ApplyParamMap(payload Payload, pm ParamMap) (Payload, error) {
	if pm == nil {
		out := make(Payload, len(payload))
		for k, v := range payload {
			out[k] = v
		}
		return out, nil
	}
	out := make(Payload, len(pm))
	for targetKey, spec := range pm {
		if spec.isLiteral {
			out[targetKey] = spec.literal
			continue
		}
		v, ok := payload[spec.sourceKey]
		if !ok {
			return nil, fmt.Errorf("target key %q wants source key %q: %w", targetKey, spec.sourceKey, errs.ErrParamMapMissingSource)
		}
		out[targetKey] = v
	}
	return out, nil
}
