// Package solve declares the constraint-solving contract consumed by an
// island worker's solve phase and ships one reference implementation, a
// single-iteration sequential-impulse contact solver, sufficient to
// reproduce the elastic two-sphere swap scenario within tolerance. A
// production-grade iterative solver with warm starting and friction
// cones is an external collaborator's responsibility.
package solve

import (
	"time"

	"github.com/solstice-phys/islands/pkg/bodycomp"
	"github.com/solstice-phys/islands/pkg/component"
	"github.com/solstice-phys/islands/pkg/ecs"
	"github.com/solstice-phys/islands/pkg/handle"
	"github.com/solstice-phys/islands/pkg/vecmath"
)

// Row is one prepared constraint, referencing its bodies by handle so the
// solver never holds a pointer into store-owned memory across a step.
type Row struct {
	BodyA, BodyB       handle.Handle
	Normal             vecmath.Vec3
	Penetration        float64
	Restitution        float64
	AccumulatedImpulse float64
}

// RowCache holds the rows prepared for one step; callers reuse the same
// RowCache across PrepareConstraints/IterateConstraints calls.
type RowCache struct {
	Rows []Row
}

// Solver is implemented by a constraint-solving backend.
type Solver interface {
	PrepareConstraints(store *ecs.Store, cache *RowCache, dt time.Duration) error
	IterateConstraints(store *ecs.Store, cache *RowCache) error
}

// SequentialImpulse is the reference Solver: one pass of sequential
// impulse resolution over every ContactManifold in the store, with
// Baumgarte position correction folded into the normal impulse.
type SequentialImpulse struct {
	Bias float64 // Baumgarte stabilization factor, applied to penetration
}

func NewSequentialImpulse() *SequentialImpulse {
	return &SequentialImpulse{Bias: 0.2}
}

func (s *SequentialImpulse) PrepareConstraints(store *ecs.Store, cache *RowCache, dt time.Duration) error {
	cache.Rows = cache.Rows[:0]
	view := ecs.NewView([]component.Index{bodycomp.IdxContactManifold})
	for _, h := range store.Query(view) {
		manifold, ok := ecs.Get[bodycomp.ContactManifold](store, h)
		if !ok {
			continue
		}
		matA, okA := ecs.Get[bodycomp.Material](store, manifold.BodyA)
		matB, okB := ecs.Get[bodycomp.Material](store, manifold.BodyB)
		restitution := 0.0
		if okA && okB {
			restitution = (matA.Restitution + matB.Restitution) / 2
		}
		for _, p := range manifold.Points {
			cache.Rows = append(cache.Rows, Row{
				BodyA:       manifold.BodyA,
				BodyB:       manifold.BodyB,
				Normal:      p.Normal,
				Penetration: p.Penetration,
				Restitution: restitution,
			})
		}
	}
	return nil
}

func (s *SequentialImpulse) IterateConstraints(store *ecs.Store, cache *RowCache) error {
	for i := range cache.Rows {
		row := &cache.Rows[i]
		massA, okA := ecs.Get[bodycomp.Mass](store, row.BodyA)
		massB, okB := ecs.Get[bodycomp.Mass](store, row.BodyB)
		if !okA || !okB {
			continue
		}
		velA, _ := ecs.Get[bodycomp.LinearVelocity](store, row.BodyA)
		velB, _ := ecs.Get[bodycomp.LinearVelocity](store, row.BodyB)

		relVel := velB.Vec3.Sub(velA.Vec3).Dot(row.Normal)
		invMassSum := massA.InverseMass + massB.InverseMass
		if invMassSum == 0 {
			continue
		}
		targetVel := -relVel * row.Restitution
		bias := s.Bias * row.Penetration
		impulseMag := (targetVel + bias - relVel) / invMassSum
		if impulseMag < 0 {
			impulseMag = 0
		}
		row.AccumulatedImpulse += impulseMag
		impulse := row.Normal.Scale(impulseMag)

		newVelA := velA.Vec3.Sub(impulse.Scale(massA.InverseMass))
		newVelB := velB.Vec3.Add(impulse.Scale(massB.InverseMass))
		ecs.Replace(store, row.BodyA, bodycomp.LinearVelocity{Vec3: newVelA})
		ecs.Replace(store, row.BodyB, bodycomp.LinearVelocity{Vec3: newVelB})
	}
	return nil
}
