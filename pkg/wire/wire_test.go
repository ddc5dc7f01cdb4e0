package wire

import (
	"testing"

	"github.com/solstice-phys/islands/pkg/bodycomp"
	"github.com/solstice-phys/islands/pkg/delta"
	"github.com/solstice-phys/islands/pkg/handle"
	"github.com/solstice-phys/islands/pkg/vecmath"
)

func init() {
	RegisterValue(bodycomp.Position{})
	RegisterValue(bodycomp.Mass{})
}

func TestWriteReadEntityRoundTrips(t *testing.T) {
	alloc := handle.NewAllocator()
	h := alloc.Alloc()

	op := delta.EntityOp{
		Remote: h,
		Ops: []delta.ComponentOp{
			{Index: bodycomp.IdxPosition, Value: bodycomp.Position{Vec3: vecmath.Vec3{X: 1, Y: 2, Z: 3}}},
			{Index: bodycomp.IdxMass, Value: bodycomp.Mass{InverseMass: 0.5}},
		},
	}

	w := NewGobVisitor()
	if err := WriteEntity(w, op); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	r := NewGobVisitor()
	r.LoadBytes(w.Bytes())
	got, err := ReadEntity(r)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}

	if got.Remote != op.Remote {
		t.Fatalf("expected remote %v, got %v", op.Remote, got.Remote)
	}
	if len(got.Ops) != len(op.Ops) {
		t.Fatalf("expected %d ops, got %d", len(op.Ops), len(got.Ops))
	}
	pos, ok := got.Ops[0].Value.(bodycomp.Position)
	if !ok || pos.Vec3 != (vecmath.Vec3{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("expected decoded position %+v, got %+v (ok=%v)", op.Ops[0].Value, pos, ok)
	}
	mass, ok := got.Ops[1].Value.(bodycomp.Mass)
	if !ok || mass.InverseMass != 0.5 {
		t.Fatalf("expected decoded mass, got %+v (ok=%v)", mass, ok)
	}
}

func TestWriteReadEntityNoComponents(t *testing.T) {
	alloc := handle.NewAllocator()
	h := alloc.Alloc()

	w := NewGobVisitor()
	if err := WriteEntity(w, delta.EntityOp{Remote: h}); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	r := NewGobVisitor()
	r.LoadBytes(w.Bytes())
	got, err := ReadEntity(r)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if got.Remote != h {
		t.Fatalf("expected remote %v, got %v", h, got.Remote)
	}
	if len(got.Ops) != 0 {
		t.Fatalf("expected no ops, got %d", len(got.Ops))
	}
}
