// Package serialize implements the versioned flow document: the on-disk
// and on-wire representation of a flow's routine graph (§4.12). A document
// round-trips through Encode/Decode with structural fidelity, and a small
// migration registry upgrades documents written by an older schema version
// before decoding.
package serialize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/flowmesh/flowengine/flow"
	"github.com/flowmesh/flowengine/flow/errs"
)

// CurrentVersion is the schema version Encode writes.
const CurrentVersion = 1

// RoutineDocument is the serialized form of a single Routine.
type RoutineDocument struct {
	Class            string           `json:"class"`
	Config           map[string]any   `json:"config,omitempty"`
	ActivationPolicy PolicyDocument   `json:"activation_policy"`
	ErrorHandler     *HandlerDocument `json:"error_handler,omitempty"`
}

// PolicyDocument names a registered ActivationPolicy factory plus the
// constructor arguments needed to rebuild an equivalent policy.
type PolicyDocument struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// HandlerDocument mirrors PolicyDocument for ErrorHandler.
type HandlerDocument struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ConnectionDocument is the serialized form of a Connection: endpoints
// written as "<routine_id>.<event_or_slot_name>".
type ConnectionDocument struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	ParamMap map[string]any `json:"param_map,omitempty"`
}

// Document is the full versioned flow document (§4.12).
type Document struct {
	Version     int                        `json:"version"`
	FlowID      string                     `json:"flow_id"`
	RoutineIDs  []string                   `json:"routine_order"`
	Routines    map[string]RoutineDocument `json:"routines"`
	Connections []ConnectionDocument       `json:"connections"`
}

// RoutineFactoryRegistry resolves a document's `class` field to a
// flow.RoutineFactory, and a policy/handler `name` field to a constructor
// of the matching flow.ActivationPolicy/flow.ErrorHandler. It is the
// counterpart to the NamedPolicy/NamedErrorHandler interfaces: Encode reads
// self-descriptions off live values, Decode asks the registry to rebuild
// them.
type RoutineFactoryRegistry interface {
	RoutineFactory(class string) (flow.RoutineFactory, bool)
	PolicyFactory(name string) (func(args map[string]any) (flow.ActivationPolicy, error), bool)
	HandlerFactory(name string) (func(args map[string]any) (flow.ErrorHandler, error), bool)
}

// ClassOf maps a Routine to the registered factory name used to rebuild it.
// Callers populate this themselves (e.g. by routine id or a bespoke
// registry) since a Routine carries no class tag of its own; Encode takes
// a lookup function rather than assuming one.
type ClassOf func(routineID string, r *flow.Routine) (string, error)

// Encode serializes f into a Document. classOf resolves each routine to
// its registered factory name.
func Encode(f *flow.Flow, classOf ClassOf) (*Document, error) {
	order := f.RoutineOrder()
	doc := &Document{
		Version:    CurrentVersion,
		FlowID:     f.ID(),
		RoutineIDs: order,
		Routines:   make(map[string]RoutineDocument, len(order)),
	}
	for _, id := range order {
		r, ok := f.GetRoutine(id)
		if !ok {
			continue
		}
		class, err := classOf(id, r)
		if err != nil {
			return nil, fmt.Errorf("encode routine %q: %w", id, err)
		}
		rd := RoutineDocument{Class: class, Config: r.Config()}
		if np, ok := r.ActivationPolicy().(flow.NamedPolicy); ok {
			rd.ActivationPolicy = PolicyDocument{Name: np.PolicyName(), Args: np.PolicyArgs()}
		} else if r.ActivationPolicy() != nil {
			return nil, fmt.Errorf("encode routine %q: activation policy is not a NamedPolicy", id)
		}
		if neh, ok := r.ErrorHandler().(flow.NamedErrorHandler); ok {
			rd.ErrorHandler = &HandlerDocument{Name: neh.HandlerName(), Args: neh.HandlerArgs()}
		}
		doc.Routines[id] = rd
	}
	for _, c := range f.Connections() {
		cd := ConnectionDocument{
			From: c.SourceRoutineID + "." + c.SourceEventName,
			To:   c.TargetRoutineID + "." + c.TargetSlotName,
		}
		if c.ParamMap != nil {
			cd.ParamMap = paramMapToDoc(c.ParamMap)
		}
		doc.Connections = append(doc.Connections, cd)
	}
	return doc, nil
}

// Decode rebuilds a Flow from a Document using reg to resolve classes and
// policy/handler names. Version 0 documents (untagged legacy) are accepted
// read-only through the same path once migrated.
func Decode(doc *Document, reg RoutineFactoryRegistry) (*flow.Flow, error) {
	migrated, err := Migrate(doc)
	if err != nil {
		return nil, err
	}
	doc = migrated
	if doc.Version != CurrentVersion {
		return nil, fmt.Errorf("decode: version %d: %w", doc.Version, errs.ErrIncompatibleVersion)
	}

	f := flow.NewFlow(doc.FlowID)
	f.SetVersion(fmt.Sprintf("%d", doc.Version))

	order := doc.RoutineIDs
	if len(order) == 0 {
		for id := range doc.Routines {
			order = append(order, id)
		}
		sort.Strings(order)
	}
	for _, id := range order {
		rd, ok := doc.Routines[id]
		if !ok {
			continue
		}
		factory, ok := reg.RoutineFactory(rd.Class)
		if !ok {
			return nil, fmt.Errorf("decode routine %q: unregistered class %q", id, rd.Class)
		}
		r := factory()
		if len(rd.Config) > 0 {
			if err := r.SetConfig(rd.Config); err != nil {
				return nil, fmt.Errorf("decode routine %q: %w", id, err)
			}
		}
		if rd.ActivationPolicy.Name != "" {
			pf, ok := reg.PolicyFactory(rd.ActivationPolicy.Name)
			if !ok {
				return nil, fmt.Errorf("decode routine %q: unregistered policy %q", id, rd.ActivationPolicy.Name)
			}
			policy, err := pf(rd.ActivationPolicy.Args)
			if err != nil {
				return nil, fmt.Errorf("decode routine %q: build policy: %w", id, err)
			}
			r.SetActivationPolicy(policy)
		}
		if rd.ErrorHandler != nil {
			hf, ok := reg.HandlerFactory(rd.ErrorHandler.Name)
			if !ok {
				return nil, fmt.Errorf("decode routine %q: unregistered handler %q", id, rd.ErrorHandler.Name)
			}
			handler, err := hf(rd.ErrorHandler.Args)
			if err != nil {
				return nil, fmt.Errorf("decode routine %q: build handler: %w", id, err)
			}
			r.SetErrorHandler(handler)
		}
		if err := f.AddRoutine(id, r); err != nil {
			return nil, fmt.Errorf("decode routine %q: %w", id, err)
		}
	}

	for _, cd := range doc.Connections {
		srcID, srcEvt, err := splitRef(cd.From)
		if err != nil {
			return nil, fmt.Errorf("decode connection %q: %w", cd.From, err)
		}
		tgtID, tgtSlot, err := splitRef(cd.To)
		if err != nil {
			return nil, fmt.Errorf("decode connection %q: %w", cd.To, err)
		}
		conn := flow.Connection{
			SourceRoutineID: srcID,
			SourceEventName: srcEvt,
			TargetRoutineID: tgtID,
			TargetSlotName:  tgtSlot,
		}
		if cd.ParamMap != nil {
			pm, err := paramMapFromDoc(cd.ParamMap)
			if err != nil {
				return nil, fmt.Errorf("decode connection %q -> %q: %w", cd.From, cd.To, err)
			}
			conn.ParamMap = pm
		}
		if err := f.Connect(conn); err != nil {
			return nil, fmt.Errorf("decode connection %q -> %q: %w", cd.From, cd.To, err)
		}
	}
	return f, nil
}

// Marshal is a convenience wrapper producing the JSON bytes for doc.
func Marshal(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// Unmarshal parses JSON bytes into a Document.
func Unmarshal(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal flow document: %w", err)
	}
	return &doc, nil
}

func splitRef(ref string) (id, name string, err error) {
	i := strings.LastIndexByte(ref, '.')
	if i < 0 {
		return "", "", fmt.Errorf("malformed reference %q", ref)
	}
	return ref[:i], ref[i+1:], nil
}

func paramMapToDoc(pm flow.ParamMap) map[string]any {
	out := make(map[string]any, len(pm))
	for k, spec := range pm {
		if lit, isLit := spec.AsLiteral(); isLit {
			out[k] = map[string]any{"literal": lit}
			continue
		}
		out[k] = map[string]any{"source": spec.Source()}
	}
	return out
}

func paramMapFromDoc(m map[string]any) (flow.ParamMap, error) {
	pm := make(flow.ParamMap, len(m))
	for k, v := range m {
		entry, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("param %q: malformed entry", k)
		}
		if lit, ok := entry["literal"]; ok {
			pm[k] = flow.Literal(lit)
			continue
		}
		src, ok := entry["source"].(string)
		if !ok {
			return nil, fmt.Errorf("param %q: missing source or literal", k)
		}
		pm[k] = flow.FromSource(src)
	}
	return pm, nil
}
