package island

import (
	"time"

	"github.com/solstice-phys/islands/pkg/bodycomp"
	"github.com/solstice-phys/islands/pkg/ecs"
	"github.com/solstice-phys/islands/pkg/handle"
	"github.com/solstice-phys/islands/pkg/vecmath"
)

// presentDt implements the interpolation window from 4.5.2: the gap
// between the caller-supplied wall-clock instant and the owning island's
// last-observed simulated instant, minus one fixed step, clamped to
// [0, fixed_dt]. An entity with no island yet (never attached to a
// worker) presents with zero extrapolation.
func (c *Coordinator) presentDt(h handle.Handle, now time.Time) float64 {
	islandHandle, ok := c.residentOf[h]
	if !ok {
		if mr, ok := ecs.Get[bodycomp.MultiIslandResident](c.Store, h); ok && len(mr.Islands) > 0 {
			islandHandle = mr.Islands[0]
		} else {
			return 0
		}
	}
	rec, ok := c.islands[islandHandle]
	if !ok {
		return 0
	}

	fixedDt := c.cfg.FixedDt.Seconds()
	dt := now.Sub(rec.workerTime).Seconds() - fixedDt
	if dt > fixedDt {
		dt = fixedDt
	}
	if dt < 0 {
		dt = 0
	}
	return dt
}

// PresentPosition extrapolates h's authoritative position forward by the
// interpolation window, then adds any active discontinuity offset.
func (c *Coordinator) PresentPosition(h handle.Handle, now time.Time) (vecmath.Vec3, bool) {
	pos, ok := ecs.Get[bodycomp.Position](c.Store, h)
	if !ok {
		return vecmath.Vec3{}, false
	}
	vel, _ := ecs.Get[bodycomp.LinearVelocity](c.Store, h)
	dt := c.presentDt(h, now)
	present := pos.Vec3.Add(vel.Vec3.Scale(dt))
	if off, ok := ecs.Get[bodycomp.DiscontinuityOffset](c.Store, h); ok {
		present = present.Add(off.Position)
	}
	return present, true
}

// PresentOrientation extrapolates h's authoritative orientation forward
// by the interpolation window using the same first-order quaternion
// integration the worker uses internally, then applies any active
// discontinuity offset.
func (c *Coordinator) PresentOrientation(h handle.Handle, now time.Time) (vecmath.Quat, bool) {
	orient, ok := ecs.Get[bodycomp.Orientation](c.Store, h)
	if !ok {
		return vecmath.Quat{}, false
	}
	angvel, _ := ecs.Get[bodycomp.AngularVelocity](c.Store, h)
	dt := c.presentDt(h, now)
	present := vecmath.Integrate(orient.Quat, angvel.Vec3, dt)
	if off, ok := ecs.Get[bodycomp.DiscontinuityOffset](c.Store, h); ok {
		present = quatCompose(off.Orientation, present)
	}
	return present, true
}

// quatCompose applies a as a correction on top of b (a ∘ b), used to fold
// a discontinuity offset onto an already-integrated presentation
// orientation.
func quatCompose(a, b vecmath.Quat) vecmath.Quat {
	return vecmath.Quat{
		X: a.W*b.X + a.X*b.W + a.Y*b.Z - a.Z*b.Y,
		Y: a.W*b.Y - a.X*b.Z + a.Y*b.W + a.Z*b.X,
		Z: a.W*b.Z + a.X*b.Y - a.Y*b.X + a.Z*b.W,
		W: a.W*b.W - a.X*b.X - a.Y*b.Y - a.Z*b.Z,
	}.Normalized()
}

// SnapPresentation resets h's presentation to its authoritative state:
// any discontinuity offset is cleared and the interpolation window for
// h's island is collapsed to zero, so the very next PresentPosition /
// PresentOrientation call returns the actual values with no
// extrapolation.
func (c *Coordinator) SnapPresentation(h handle.Handle, now time.Time) {
	ecs.Remove[bodycomp.DiscontinuityOffset](c.Store, h)
	islandHandle, ok := c.residentOf[h]
	if !ok {
		mr, isMulti := ecs.Get[bodycomp.MultiIslandResident](c.Store, h)
		if !isMulti || len(mr.Islands) == 0 {
			return
		}
		islandHandle = mr.Islands[0]
	}
	if rec, ok := c.islands[islandHandle]; ok {
		rec.workerTime = now.Add(-c.cfg.FixedDt)
	}
}
