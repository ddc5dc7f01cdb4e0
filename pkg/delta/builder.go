package delta

import (
	"github.com/solstice-phys/islands/pkg/component"
	"github.com/solstice-phys/islands/pkg/handle"
)

// Builder accumulates a Delta across a step. It is not safe for
// concurrent use; each worker and the coordinator own one builder apiece.
type Builder struct {
	d Delta
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) AddMapping(remote, local handle.Handle) {
	b.d.Mappings = append(b.d.Mappings, Mapping{Remote: remote, Local: local})
}

func (b *Builder) Create(remote handle.Handle, ops ...ComponentOp) {
	b.d.Creates = append(b.d.Creates, EntityOp{Remote: remote, Ops: ops})
}

func (b *Builder) Update(remote handle.Handle, ops ...ComponentOp) {
	b.d.Updates = append(b.d.Updates, EntityOp{Remote: remote, Ops: ops})
}

func (b *Builder) Destroy(remote handle.Handle) {
	b.d.Destroys = append(b.d.Destroys, remote)
}

func (b *Builder) IsEmpty() bool {
	return b.d.IsEmpty()
}

// Build returns the accumulated delta and resets the builder.
func (b *Builder) Build() Delta {
	out := b.d
	b.d = Delta{}
	return out
}

func Set(idx component.Index, v any) ComponentOp {
	return ComponentOp{Index: idx, Value: v}
}
