// Package collide declares the narrowphase collision contract consumed
// by an island worker and ships one reference implementation, a
// sphere-sphere test, sufficient to drive the end-to-end scenario tests.
// Geometry fidelity for other shape kinds is an external collaborator's
// responsibility.
package collide

import (
	"github.com/solstice-phys/islands/pkg/bodycomp"
	"github.com/solstice-phys/islands/pkg/vecmath"
)

// Point is one contact point inside a Result, prior to being merged into
// a persistent manifold.
type Point struct {
	FeatureID   uint64
	LocalA      vecmath.Vec3
	LocalB      vecmath.Vec3
	Normal      vecmath.Vec3
	Penetration float64
}

// Result is the output of a single shape-pair test.
type Result struct {
	Points []Point
}

// Collider is implemented by a narrowphase backend. shapeA/shapeB are
// body-local to poseA/poseB respectively.
type Collider interface {
	Collide(shapeA, shapeB bodycomp.Shape, poseA, poseB Pose) (Result, bool)
}

// Pose is the minimal world placement a collider needs.
type Pose struct {
	Position    vecmath.Vec3
	Orientation vecmath.Quat
}

// BreakingThreshold is the distance under which two contact points are
// considered co-located when merging into a manifold.
const BreakingThreshold = 0.02

// MaybeAddPoint merges p into points, deterministically: an existing
// point within BreakingThreshold of p's feature is replaced, otherwise p
// is appended, and the manifold is capped at 4 points by dropping the
// shallowest one once full.
func MaybeAddPoint(points []bodycomp.ContactPoint, p bodycomp.ContactPoint) []bodycomp.ContactPoint {
	for i, existing := range points {
		if existing.FeatureID == p.FeatureID {
			points[i] = p
			return points
		}
		if existing.LocalA.Sub(p.LocalA).Length() < BreakingThreshold {
			points[i] = p
			return points
		}
	}
	if len(points) < 4 {
		return append(points, p)
	}
	shallowest := 0
	for i := 1; i < len(points); i++ {
		if points[i].Penetration < points[shallowest].Penetration {
			shallowest = i
		}
	}
	if p.Penetration > points[shallowest].Penetration {
		points[shallowest] = p
	}
	return points
}

// SphereSphere is the reference Collider: exact analytic sphere-sphere
// overlap, one contact point.
type SphereSphere struct{}

func (SphereSphere) Collide(shapeA, shapeB bodycomp.Shape, poseA, poseB Pose) (Result, bool) {
	delta := poseB.Position.Sub(poseA.Position)
	dist := delta.Length()
	radiusSum := shapeA.Radius + shapeB.Radius
	if dist >= radiusSum || dist == 0 {
		return Result{}, false
	}
	normal := delta.Scale(1.0 / dist)
	penetration := radiusSum - dist
	contactOnA := normal.Scale(shapeA.Radius)
	contactOnB := normal.Scale(-shapeB.Radius)
	return Result{Points: []Point{{
		FeatureID:   0,
		LocalA:      contactOnA,
		LocalB:      contactOnB,
		Normal:      normal,
		Penetration: penetration,
	}}}, true
}
