// Package wire declares the serialization contract named in the external
// interfaces table: a visitor that can read or write any registered
// component by type-index. This core has no wire protocol of its own
// (the networking layer, if a host adds one, builds on top and owns
// framing, compression and transport); wire only pins the shape a
// concrete codec has to satisfy to round-trip a single entity's
// component set.
//
// Grounded on the teacher's bufti field/model declarations (an ordered,
// index-keyed field list per message type), adapted here to the
// component.Registry's own index space instead of a separate schema
// language: this module's registry already is the schema.
package wire

import (
	"github.com/solstice-phys/islands/pkg/component"
	"github.com/solstice-phys/islands/pkg/delta"
	"github.com/solstice-phys/islands/pkg/handle"
)

// Visitor is implemented by a concrete codec. WriteComponent/ReadComponent
// operate one type-index at a time so a codec never needs reflection over
// this module's component types; it only needs to know how to encode the
// handful of primitive field shapes (floats, vectors, quaternions,
// handles, enums) those types are built from. ReadComponent reports the
// index it decoded alongside the value, since a reader does not know in
// advance which component comes next in an entity's op list.
type Visitor interface {
	WriteComponent(idx component.Index, v any) error
	ReadComponent() (component.Index, any, error)
	WriteHandle(h handle.Handle) error
	ReadHandle() (handle.Handle, error)
	WriteCount(n int) error
	ReadCount() (int, error)
}

// WriteEntity writes op's remote handle followed by its ops, each
// prefixed by its own type-index.
func WriteEntity(v Visitor, op delta.EntityOp) error {
	if err := v.WriteHandle(op.Remote); err != nil {
		return err
	}
	if err := v.WriteCount(len(op.Ops)); err != nil {
		return err
	}
	for _, compOp := range op.Ops {
		if err := v.WriteComponent(compOp.Index, compOp.Value); err != nil {
			return err
		}
	}
	return nil
}

// ReadEntity is WriteEntity's inverse.
func ReadEntity(v Visitor) (delta.EntityOp, error) {
	remote, err := v.ReadHandle()
	if err != nil {
		return delta.EntityOp{}, err
	}
	count, err := v.ReadCount()
	if err != nil {
		return delta.EntityOp{}, err
	}
	op := delta.EntityOp{Remote: remote, Ops: make([]delta.ComponentOp, 0, count)}
	for i := 0; i < count; i++ {
		idx, val, err := v.ReadComponent()
		if err != nil {
			return delta.EntityOp{}, err
		}
		op.Ops = append(op.Ops, delta.ComponentOp{Index: idx, Value: val})
	}
	return op, nil
}
