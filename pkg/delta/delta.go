// Package delta implements the ordered, component-granular change feed
// exchanged between the coordinator and a worker. A Delta is source-relative: remote handles inside it are remapped
// through an EntityMap at import time, never resolved by the sender.
//
// The shape is grounded on the teacher's Delta/DeltaResult pair
// (pkg/world/world.go in the retrieval pack: DeltaType enum, ordered
// entity-created/updated/destroyed sections), generalized with an explicit
// entity-mapping section and component.Index-keyed ops.
package delta

import (
	"github.com/solstice-phys/islands/pkg/component"
	"github.com/solstice-phys/islands/pkg/handle"
)

// ComponentOp is one write against a single component type on one entity.
type ComponentOp struct {
	Index component.Index
	Value any // nil for a destroy op
}

// EntityOp groups every component write touching one entity in one
// delta section.
type EntityOp struct {
	Remote handle.Handle
	Ops    []ComponentOp
}

// Mapping installs a (remote, local) handle pair before payload import.
type Mapping struct {
	Remote handle.Handle
	Local  handle.Handle
}

// Delta is the three-section ordered change-set: mappings, then creates
// (construction-ordered: nodes before edges, endpoints before
// constraints), then updates and destructions.
type Delta struct {
	Mappings []Mapping
	Creates  []EntityOp
	Updates  []EntityOp
	Destroys []handle.Handle // remote handles
}

func (d Delta) IsEmpty() bool {
	return len(d.Mappings) == 0 && len(d.Creates) == 0 && len(d.Updates) == 0 && len(d.Destroys) == 0
}

// Merge appends other onto d, preserving section order, so two deltas for
// the same island can be coalesced into one. The coordinator does not
// call it: it stages each island's egress into a single Builder instead.
func (d *Delta) Merge(other Delta) {
	d.Mappings = append(d.Mappings, other.Mappings...)
	d.Creates = append(d.Creates, other.Creates...)
	d.Updates = append(d.Updates, other.Updates...)
	d.Destroys = append(d.Destroys, other.Destroys...)
}
