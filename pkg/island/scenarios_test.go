package island

import (
	"testing"
	"time"

	"github.com/solstice-phys/islands/pkg/bodycomp"
	"github.com/solstice-phys/islands/pkg/collide"
	"github.com/solstice-phys/islands/pkg/dispatch"
	"github.com/solstice-phys/islands/pkg/ecs"
	"github.com/solstice-phys/islands/pkg/solve"
	"github.com/solstice-phys/islands/pkg/vecmath"
)

// newScenarioCoordinator builds a coordinator driven by a real pool, with
// a fast fixed step so scenario tests converge quickly against real wall
// clock time rather than simulated time.
func newScenarioCoordinator(t *testing.T, cfg Config) *Coordinator {
	t.Helper()
	pool := dispatch.NewPool(4, nil)
	pool.Start()
	t.Cleanup(pool.Stop)
	c := NewCoordinator(pool, cfg, collide.SphereSphere{}, solve.NewSequentialImpulse(), nil)
	t.Cleanup(c.Shutdown)
	return c
}

func pollUntil(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

// TestScenarioTwoBodyElasticSwap drives two overlapping, equal-mass,
// unit-restitution spheres through the full worker pipeline (broadphase,
// narrowphase, solve, delta emission and ingress) rather than exercising
// the solver kernel directly. It asserts the two properties that hold
// regardless of iteration count or Baumgarte bias: momentum is conserved
// (equal-and-opposite impulses each pass) and the bodies end up
// separating rather than still approaching.
func TestScenarioTwoBodyElasticSwap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FixedDt = 2 * time.Millisecond
	c := newScenarioCoordinator(t, cfg)

	a := c.CreateBody(bodycomp.BodyClass{Class: bodycomp.ClassDynamic},
		bodycomp.Position{Vec3: vecmath.Vec3{X: 0}},
		bodycomp.LinearVelocity{Vec3: vecmath.Vec3{X: 1}},
		bodycomp.Mass{InverseMass: 1},
		bodycomp.Shape{Kind: bodycomp.ShapeSphere, Radius: 1},
		bodycomp.Material{Restitution: 1},
	)
	b := c.CreateBody(bodycomp.BodyClass{Class: bodycomp.ClassDynamic},
		bodycomp.Position{Vec3: vecmath.Vec3{X: 1.5}},
		bodycomp.LinearVelocity{Vec3: vecmath.Vec3{X: -1}},
		bodycomp.Mass{InverseMass: 1},
		bodycomp.Shape{Kind: bodycomp.ShapeSphere, Radius: 1},
		bodycomp.Material{Restitution: 1},
	)
	c.CreateConstraint(bodycomp.Constraint{Body0: a, Body1: b})

	initialMomentum := 1.0 + (-1.0)

	ok := pollUntil(t, 2*time.Second, func() bool {
		c.Update(time.Now())
		velA, okA := ecs.Get[bodycomp.LinearVelocity](c.Store, a)
		velB, okB := ecs.Get[bodycomp.LinearVelocity](c.Store, b)
		return okA && okB && velA.Vec3.X <= 0 && velB.Vec3.X >= 0
	})
	if !ok {
		t.Fatalf("expected the pair to bounce apart within the time budget")
	}

	velA, _ := ecs.Get[bodycomp.LinearVelocity](c.Store, a)
	velB, _ := ecs.Get[bodycomp.LinearVelocity](c.Store, b)
	if got := velA.Vec3.X + velB.Vec3.X; got < initialMomentum-1e-6 || got > initialMomentum+1e-6 {
		t.Fatalf("expected momentum conserved at %v, got %v (velA=%v velB=%v)", initialMomentum, got, velA.Vec3.X, velB.Vec3.X)
	}
}

// TestScenarioRefreshPropagatesToOutboundDelta exercises S6: a host-side
// Refresh call on an already-simulated entity must reach the owning
// worker's store and come back out in that worker's next outbound delta,
// round-tripping through the coordinator's authoritative store.
func TestScenarioRefreshPropagatesToOutboundDelta(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FixedDt = 2 * time.Millisecond
	c := newScenarioCoordinator(t, cfg)

	h := c.CreateBody(bodycomp.BodyClass{Class: bodycomp.ClassDynamic},
		bodycomp.Position{Vec3: vecmath.Vec3{X: 0}},
		bodycomp.LinearVelocity{},
		bodycomp.Mass{InverseMass: 1},
		bodycomp.Shape{Kind: bodycomp.ShapeSphere, Radius: 0.5},
	)

	if ok := pollUntil(t, time.Second, func() bool {
		c.Update(time.Now())
		_, ok := ecs.Get[bodycomp.AABB](c.Store, h)
		return ok
	}); !ok {
		t.Fatalf("expected the island to complete at least one step before refreshing")
	}

	if err := c.Refresh(h, bodycomp.Position{Vec3: vecmath.Vec3{X: 9, Y: 9, Z: 9}}); err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}

	ok := pollUntil(t, time.Second, func() bool {
		c.Update(time.Now())
		pos, ok := ecs.Get[bodycomp.Position](c.Store, h)
		return ok && pos.Vec3 == (vecmath.Vec3{X: 9, Y: 9, Z: 9})
	})
	if !ok {
		t.Fatalf("expected the refreshed position to round-trip back into the authoritative store")
	}
}

// TestScenarioSplitAfterDebounce exercises S3 end to end through the real
// debounce timer and executeSplit: two bodies joined by a constraint
// share one island; the constraint's edge is then removed from the
// worker's own replica graph (standing in for a constraint-break, since
// wiring a constraint-destroy operation across the wire is out of scope
// here), which is exactly the topology change checkSplit watches for.
// Once the debounce elapses the worker advertises the split and the
// coordinator executes it, leaving each body in its own island.
func TestScenarioSplitAfterDebounce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FixedDt = 2 * time.Millisecond
	cfg.SplitDebounce = 20 * time.Millisecond
	c := newScenarioCoordinator(t, cfg)

	a := c.CreateBody(bodycomp.BodyClass{Class: bodycomp.ClassDynamic},
		bodycomp.Position{Vec3: vecmath.Vec3{X: 0}},
		bodycomp.LinearVelocity{},
		bodycomp.Mass{InverseMass: 1},
		bodycomp.Shape{Kind: bodycomp.ShapeSphere, Radius: 0.5},
	)
	b := c.CreateBody(bodycomp.BodyClass{Class: bodycomp.ClassDynamic},
		bodycomp.Position{Vec3: vecmath.Vec3{X: 10}},
		bodycomp.LinearVelocity{},
		bodycomp.Mass{InverseMass: 1},
		bodycomp.Shape{Kind: bodycomp.ShapeSphere, Radius: 0.5},
	)
	constraintEntity := c.CreateConstraint(bodycomp.Constraint{Body0: a, Body1: b})

	if ok := pollUntil(t, time.Second, func() bool {
		c.Update(time.Now())
		return c.residentOf[a] == c.residentOf[b] && !c.residentOf[a].IsNil()
	}); !ok {
		t.Fatalf("expected merge to place both bodies in the same island")
	}
	sharedIsland := c.residentOf[a]
	rec := c.islands[sharedIsland]

	if ok := pollUntil(t, time.Second, func() bool {
		c.Update(time.Now())
		rec.worker.mu.Lock()
		local, mapped := rec.worker.entityMap.Local(constraintEntity)
		_, edgeKnown := rec.worker.edgeOf[local]
		rec.worker.mu.Unlock()
		return mapped && edgeKnown
	}); !ok {
		t.Fatalf("expected the worker to reconcile the constraint's edge into its replica graph")
	}

	rec.worker.mu.Lock()
	localConstraint, _ := rec.worker.entityMap.Local(constraintEntity)
	if edge, ok := rec.worker.edgeOf[localConstraint]; ok {
		rec.worker.Graph.RemoveEdge(edge)
		delete(rec.worker.edgeOf, localConstraint)
		rec.worker.topologyChanged = true
	} else {
		rec.worker.mu.Unlock()
		t.Fatalf("expected the worker's replica graph to carry an edge for the constraint")
	}
	rec.worker.mu.Unlock()

	ok := pollUntil(t, 2*time.Second, func() bool {
		c.Update(time.Now())
		return !c.residentOf[a].IsNil() && !c.residentOf[b].IsNil() && c.residentOf[a] != c.residentOf[b]
	})
	if !ok {
		t.Fatalf("expected the island to split into two once the debounce timer elapsed")
	}
	if c.residentOf[a] != sharedIsland && c.residentOf[b] != sharedIsland {
		t.Fatalf("expected the larger remaining component to keep the original island handle")
	}
}

// TestScenarioCatchUpClampsUnderRealLag exercises S5 end to end: a worker
// left to run freely under a coarse MaxLaggingSteps, stalled relative to
// wall clock by scheduling jitter under a short FixedDt, must never let
// its simulated clock fall behind by more than MaxLaggingSteps steps,
// observed directly off the real worker driving the island rather than
// by calling runFinishStep in isolation.
func TestScenarioCatchUpClampsUnderRealLag(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FixedDt = 2 * time.Millisecond
	cfg.MaxLaggingSteps = 3
	c := newScenarioCoordinator(t, cfg)

	h := c.CreateBody(bodycomp.BodyClass{Class: bodycomp.ClassDynamic},
		bodycomp.Position{Vec3: vecmath.Vec3{X: 0}},
		bodycomp.LinearVelocity{},
		bodycomp.Mass{InverseMass: 1},
		bodycomp.Shape{Kind: bodycomp.ShapeSphere, Radius: 0.5},
	)

	time.Sleep(200 * time.Millisecond)
	c.Update(time.Now())

	islandHandle := c.residentOf[h]
	rec := c.islands[islandHandle]
	maxLag := time.Duration(cfg.MaxLaggingSteps)*cfg.FixedDt + cfg.FixedDt

	rec.worker.mu.Lock()
	lastSimulated := rec.worker.lastSimulated
	rec.worker.mu.Unlock()

	if lag := time.Since(lastSimulated); lag > maxLag {
		t.Fatalf("expected worker clock clamped to at most %v behind real time, got %v behind", maxLag, lag)
	}
}
