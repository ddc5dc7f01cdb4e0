// Package bodycomp pins the concrete component types named only
// semantically (body pose, motion, class tag, inertial, shape, AABB,
// graph markers, island membership, sleeping tags, material) to real Go
// types with stable wire indices. Index values
// match the position of each name in component.StandardNames, so both
// the coordinator and every worker assign them identically by
// constructing their registry from that same declared list.
package bodycomp

import (
	"github.com/solstice-phys/islands/pkg/component"
	"github.com/solstice-phys/islands/pkg/ecs"
	"github.com/solstice-phys/islands/pkg/graph"
	"github.com/solstice-phys/islands/pkg/handle"
	"github.com/solstice-phys/islands/pkg/vecmath"
)

const (
	IdxPosition            = component.Index(0)
	IdxOrientation         = component.Index(1)
	IdxLinearVelocity      = component.Index(2)
	IdxAngularVelocity     = component.Index(3)
	IdxLinearAcceleration  = component.Index(4)
	IdxBodyClass           = component.Index(5)
	IdxMass                = component.Index(6)
	IdxShape               = component.Index(7)
	IdxAABB                = component.Index(8)
	IdxGraphNode           = component.Index(9)
	IdxGraphEdge           = component.Index(10)
	IdxIslandResident      = component.Index(11)
	IdxMultiIslandResident = component.Index(12)
	IdxSleeping            = component.Index(13)
	IdxSleepingDisabled    = component.Index(14)
	// index 15, "Continuous", is reserved in the declared list but has no
	// Go component type: the continuous set is store-level metadata
	// (ecs.Store.SetContinuous), not a value shipped through deltas.
	IdxMaterial             = component.Index(16)
	IdxContactManifold      = component.Index(17)
	IdxDiscontinuityOffset  = component.Index(18)
	IdxConstraint           = component.Index(19)
)

type Position struct{ vecmath.Vec3 }

func (Position) Index() component.Index { return IdxPosition }

type Orientation struct{ vecmath.Quat }

func (Orientation) Index() component.Index { return IdxOrientation }

type LinearVelocity struct{ vecmath.Vec3 }

func (LinearVelocity) Index() component.Index { return IdxLinearVelocity }

type AngularVelocity struct{ vecmath.Vec3 }

func (AngularVelocity) Index() component.Index { return IdxAngularVelocity }

type LinearAcceleration struct{ vecmath.Vec3 }

func (LinearAcceleration) Index() component.Index { return IdxLinearAcceleration }

type Class uint8

const (
	ClassDynamic Class = iota
	ClassKinematic
	ClassStatic
	ClassExternal
)

// Procedural reports whether bodies of this class participate in
// connectivity: dynamic and external bodies are procedural.
func (c Class) Procedural() bool {
	return c == ClassDynamic || c == ClassExternal
}

type BodyClass struct{ Class Class }

func (BodyClass) Index() component.Index { return IdxBodyClass }

type Mass struct {
	InverseMass    float64
	InverseInertia vecmath.Vec3 // diagonal approximation of the inverse inertia tensor
	COM            vecmath.Vec3
}

func (Mass) Index() component.Index { return IdxMass }

type ShapeKind uint8

const (
	ShapeSphere ShapeKind = iota
	ShapeBox
	ShapeCapsule
	ShapeCylinder
	ShapePolyhedron
	ShapeCompound
	ShapeTriangleMesh
	ShapePagedTriangleMesh
	ShapePlane
)

// Shape carries an opaque geometry payload; this module never interprets
// it beyond the Radius convenience field the reference AABB/collide
// helpers use for ShapeSphere. Real geometry routines are an external
// collaborator of this module.
type Shape struct {
	Kind     ShapeKind
	Radius   float64
	Geometry any
}

func (Shape) Index() component.Index { return IdxShape }

type AABB struct{ Min, Max vecmath.Vec3 }

func (AABB) Index() component.Index { return IdxAABB }

// GraphNode mirrors the entity's slot in the worker's interaction graph,
// so an imported body acquires a local node without a side channel.
type GraphNode struct {
	Node       graph.NodeIndex
	Connecting bool
}

func (GraphNode) Index() component.Index { return IdxGraphNode }

type GraphEdge struct {
	Edge graph.EdgeIndex
}

func (GraphEdge) Index() component.Index { return IdxGraphEdge }

type IslandResident struct {
	Island handle.Handle
}

func (IslandResident) Index() component.Index { return IdxIslandResident }

type MultiIslandResident struct {
	Islands []handle.Handle
}

func (MultiIslandResident) Index() component.Index { return IdxMultiIslandResident }

type Sleeping struct{}

func (Sleeping) Index() component.Index { return IdxSleeping }

type SleepingDisabled struct{}

func (SleepingDisabled) Index() component.Index { return IdxSleepingDisabled }

type Material struct {
	Restitution float64
	Friction    float64
}

func (Material) Index() component.Index { return IdxMaterial }

type ContactPoint struct {
	FeatureID   uint64
	LocalA      vecmath.Vec3
	LocalB      vecmath.Vec3
	Normal      vecmath.Vec3
	Penetration float64
	Impulse     float64
}

// ContactManifold is the persistent contact record between two bodies,
// capped at 4 points via maybeAddPoint semantics.
type ContactManifold struct {
	BodyA, BodyB handle.Handle
	Points       []ContactPoint
}

func (ContactManifold) Index() component.Index { return IdxContactManifold }

// DiscontinuityOffset is the networked-rollback correction added on top
// of the interpolated presentation position/orientation.
type DiscontinuityOffset struct {
	Position    vecmath.Vec3
	Orientation vecmath.Quat
}

func (DiscontinuityOffset) Index() component.Index { return IdxDiscontinuityOffset }

type ConstraintKind uint8

const (
	ConstraintDistance ConstraintKind = iota
	ConstraintContact
)

// SolveOrder is the fixed tuple naming solve order: contacts are solved
// last because they are the most important.
var SolveOrder = []ConstraintKind{ConstraintDistance, ConstraintContact}

// Constraint is a user-authored joint; contacts are tracked separately as
// ContactManifold and do not use this type. Body0/Body1 name existing
// graph nodes, which is what drives graph-edge insertion on creation
// on construction.
type Constraint struct {
	Kind          ConstraintKind
	Body0, Body1  handle.Handle
	RestLength    float64
}

func (Constraint) Index() component.Index { return IdxConstraint }

// RemapEntityHandles rewrites the entity-reference fields of h's
// Constraint and ContactManifold components (whichever is present) through
// translate. A component value arriving over a Delta still carries the
// sender's own handles for any entity it references internally, since
// generic delta import only remaps EntityOp.Remote itself; callers apply
// this once every handle in the delta has a local mapping.
func RemapEntityHandles(s *ecs.Store, h handle.Handle, translate func(handle.Handle) handle.Handle) {
	if c, ok := ecs.Get[Constraint](s, h); ok {
		c.Body0 = translate(c.Body0)
		c.Body1 = translate(c.Body1)
		ecs.Replace(s, h, c)
	}
	if m, ok := ecs.Get[ContactManifold](s, h); ok {
		m.BodyA = translate(m.BodyA)
		m.BodyB = translate(m.BodyB)
		ecs.Replace(s, h, m)
	}
}

// RegisterAll installs the index-keyed dispatch table for every
// wire-eligible component type in this catalogue on s. Both the
// coordinator's store and every worker's store call this during
// construction so their kinds tables agree structurally.
//
// GraphNode and GraphEdge are deliberately not registered here: a graph
// node/edge index is local to one store's graph.Graph instance, so
// shipping one across a delta would alias an unrelated node in the
// receiving store. Both components are still emplaced locally (by
// island.Worker and island.Coordinator) for local bookkeeping; they are
// simply never part of a Delta.
func RegisterAll(s *ecs.Store) {
	ecs.RegisterKind[Position](s)
	ecs.RegisterKind[Orientation](s)
	ecs.RegisterKind[LinearVelocity](s)
	ecs.RegisterKind[AngularVelocity](s)
	ecs.RegisterKind[LinearAcceleration](s)
	ecs.RegisterKind[BodyClass](s)
	ecs.RegisterKind[Mass](s)
	ecs.RegisterKind[Shape](s)
	ecs.RegisterKind[AABB](s)
	ecs.RegisterKind[IslandResident](s)
	ecs.RegisterKind[MultiIslandResident](s)
	ecs.RegisterKind[Sleeping](s)
	ecs.RegisterKind[SleepingDisabled](s)
	ecs.RegisterKind[Material](s)
	ecs.RegisterKind[ContactManifold](s)
	ecs.RegisterKind[DiscontinuityOffset](s)
	ecs.RegisterKind[Constraint](s)
}
