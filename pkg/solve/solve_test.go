package solve

import (
	"testing"
	"time"

	"github.com/solstice-phys/islands/pkg/bodycomp"
	"github.com/solstice-phys/islands/pkg/component"
	"github.com/solstice-phys/islands/pkg/ecs"
	"github.com/solstice-phys/islands/pkg/vecmath"
)

func newTestStore(t *testing.T) *ecs.Store {
	t.Helper()
	reg := component.NewStandardRegistry()
	s := ecs.NewStore(reg, nil)
	bodycomp.RegisterAll(s)
	return s
}

// Two equal-mass bodies approaching head-on with restitution 1 should
// swap velocities exactly, the classic elastic-collision scenario this
// reference solver is built to reproduce.
func TestSequentialImpulseElasticSwap(t *testing.T) {
	s := newTestStore(t)

	a := s.CreateEntity()
	b := s.CreateEntity()
	ecs.Emplace(s, a, bodycomp.Mass{InverseMass: 1})
	ecs.Emplace(s, b, bodycomp.Mass{InverseMass: 1})
	ecs.Emplace(s, a, bodycomp.LinearVelocity{Vec3: vecmath.Vec3{X: 1}})
	ecs.Emplace(s, b, bodycomp.LinearVelocity{Vec3: vecmath.Vec3{X: -1}})
	ecs.Emplace(s, a, bodycomp.Material{Restitution: 1})
	ecs.Emplace(s, b, bodycomp.Material{Restitution: 1})

	manifold := s.CreateEntity()
	ecs.Emplace(s, manifold, bodycomp.ContactManifold{
		BodyA: a,
		BodyB: b,
		Points: []bodycomp.ContactPoint{{
			FeatureID:   0,
			Normal:      vecmath.Vec3{X: 1},
			Penetration: 0,
		}},
	})

	solver := NewSequentialImpulse()
	solver.Bias = 0
	var cache RowCache
	if err := solver.PrepareConstraints(s, &cache, time.Second/60); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cache.Rows) != 1 {
		t.Fatalf("expected one prepared row, got %d", len(cache.Rows))
	}
	if err := solver.IterateConstraints(s, &cache); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	velA, _ := ecs.Get[bodycomp.LinearVelocity](s, a)
	velB, _ := ecs.Get[bodycomp.LinearVelocity](s, b)
	if got, want := velA.Vec3.X, -1.0; got != want {
		t.Fatalf("expected body A velocity %v after elastic swap, got %v", want, got)
	}
	if got, want := velB.Vec3.X, 1.0; got != want {
		t.Fatalf("expected body B velocity %v after elastic swap, got %v", want, got)
	}
}

// A separating pair (already moving apart) should receive no impulse.
func TestSequentialImpulseSkipsSeparatingPair(t *testing.T) {
	s := newTestStore(t)

	a := s.CreateEntity()
	b := s.CreateEntity()
	ecs.Emplace(s, a, bodycomp.Mass{InverseMass: 1})
	ecs.Emplace(s, b, bodycomp.Mass{InverseMass: 1})
	ecs.Emplace(s, a, bodycomp.LinearVelocity{Vec3: vecmath.Vec3{X: -1}})
	ecs.Emplace(s, b, bodycomp.LinearVelocity{Vec3: vecmath.Vec3{X: 1}})
	ecs.Emplace(s, a, bodycomp.Material{})
	ecs.Emplace(s, b, bodycomp.Material{})

	manifold := s.CreateEntity()
	ecs.Emplace(s, manifold, bodycomp.ContactManifold{
		BodyA:  a,
		BodyB:  b,
		Points: []bodycomp.ContactPoint{{Normal: vecmath.Vec3{X: 1}}},
	})

	solver := NewSequentialImpulse()
	var cache RowCache
	solver.PrepareConstraints(s, &cache, time.Second/60)
	solver.IterateConstraints(s, &cache)

	velA, _ := ecs.Get[bodycomp.LinearVelocity](s, a)
	velB, _ := ecs.Get[bodycomp.LinearVelocity](s, b)
	if velA.Vec3.X != -1 || velB.Vec3.X != 1 {
		t.Fatalf("expected separating pair's velocities to stay unchanged, got A=%v B=%v", velA.Vec3, velB.Vec3)
	}
}

// Two infinite-mass (static) bodies in contact take no impulse; the
// solver must not divide by the zero inverse-mass sum.
func TestSequentialImpulseSkipsInfiniteMassPair(t *testing.T) {
	s := newTestStore(t)

	a := s.CreateEntity()
	b := s.CreateEntity()
	ecs.Emplace(s, a, bodycomp.Mass{InverseMass: 0})
	ecs.Emplace(s, b, bodycomp.Mass{InverseMass: 0})
	ecs.Emplace(s, a, bodycomp.Material{})
	ecs.Emplace(s, b, bodycomp.Material{})

	manifold := s.CreateEntity()
	ecs.Emplace(s, manifold, bodycomp.ContactManifold{
		BodyA:  a,
		BodyB:  b,
		Points: []bodycomp.ContactPoint{{Normal: vecmath.Vec3{X: 1}}},
	})

	solver := NewSequentialImpulse()
	var cache RowCache
	solver.PrepareConstraints(s, &cache, time.Second/60)
	if err := solver.IterateConstraints(s, &cache); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
