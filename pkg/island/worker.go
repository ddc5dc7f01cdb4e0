package island

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/solstice-phys/islands/pkg/axlog"
	"github.com/solstice-phys/islands/pkg/bodycomp"
	"github.com/solstice-phys/islands/pkg/collide"
	"github.com/solstice-phys/islands/pkg/component"
	"github.com/solstice-phys/islands/pkg/delta"
	"github.com/solstice-phys/islands/pkg/dispatch"
	"github.com/solstice-phys/islands/pkg/ecs"
	"github.com/solstice-phys/islands/pkg/graph"
	"github.com/solstice-phys/islands/pkg/handle"
	"github.com/solstice-phys/islands/pkg/mailbox"
	"github.com/solstice-phys/islands/pkg/solve"
	"github.com/solstice-phys/islands/pkg/vecmath"
)

// State names the worker's position in the cooperative step state
// machine. Broadphase/narrowphase's async variants are folded into the
// synchronous Broadphase/Narrowphase states here: broadphase runs its
// per-body AABB pass through the pool's ParallelFor, which already blocks
// the calling tick to completion, and narrowphase runs serially on the
// tick, so this module does not expose the intermediate
// suspended-on-subtask state as a distinct value.
type State uint8

const (
	StateInit State = iota
	StateStep
	StateBeginStep
	StateBroadphase
	StateNarrowphase
	StateSolve
	StateFinishStep
	StateSplitting
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateStep:
		return "step"
	case StateBeginStep:
		return "begin_step"
	case StateBroadphase:
		return "broadphase"
	case StateNarrowphase:
		return "narrowphase"
	case StateSolve:
		return "solve"
	case StateFinishStep:
		return "finish_step"
	case StateSplitting:
		return "splitting"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type pairKey struct {
	A, B handle.Handle
}

func canonicalPair(a, b handle.Handle) pairKey {
	if a.Index > b.Index || (a.Index == b.Index && a.Generation > b.Generation) {
		a, b = b, a
	}
	return pairKey{A: a, B: b}
}

// PreStepHook and PostStepHook are the opaque per-step external callbacks
// named by the begin_step and finish_step phases.
type PreStepHook func(store *ecs.Store)
type PostStepHook func(store *ecs.Store)

// Worker owns a private replica store and interaction graph for exactly
// one island, and advances it through the cooperative state machine
// described across begin_step/broadphase/narrowphase/solve/finish_step.
// It never shares its store with any other goroutine: all cross-thread
// contact is through its mailbox.Link.
type Worker struct {
	ID     uuid.UUID
	Island handle.Handle

	Store *ecs.Store
	Graph *graph.Graph

	PreStep  PreStepHook
	PostStep PostStepHook

	link       *mailbox.Link
	dispatcher *mailbox.Dispatcher
	logger     axlog.Logger
	pool       *dispatch.Pool

	cfg      Config
	collider collide.Collider
	solver   solve.Solver
	rows     solve.RowCache

	entityMap *delta.EntityMap
	nodeOf    map[handle.Handle]graph.NodeIndex
	edgeOf    map[handle.Handle]graph.EdgeIndex

	mu    sync.Mutex
	state State

	splitting         atomic.Bool
	terminating       atomic.Bool
	terminated        atomic.Bool
	rescheduleCounter atomic.Int32

	doneCh chan struct{}

	lastSimulated   time.Time
	paused          bool
	forceStep       bool
	asleep          bool
	stillSince      time.Time
	topologyChanged bool
	splitTimerArmed bool

	manifoldOwner map[pairKey]handle.Handle

	// materialTable is bookkeeping only: the reference solver in this
	// module resolves restitution/friction from each manifold's own
	// bodycomp.Material components, not from a material id lookup, so
	// this table has no reader yet. A fuller solver would key contacts
	// by material id into this table.
	materialTable mailbox.MaterialTable
}

// NewWorker constructs a worker with a fresh, empty replica store and
// graph. reg must be the same component.Registry instance (or an
// Agrees-equal one) the coordinator uses.
func NewWorker(reg *component.Registry, link *mailbox.Link, pool *dispatch.Pool, cfg Config, collider collide.Collider, solver solve.Solver, logger axlog.Logger) *Worker {
	if logger == nil {
		logger = axlog.Nop{}
	}
	store := ecs.NewStore(reg, logger)
	bodycomp.RegisterAll(store)
	w := &Worker{
		ID:            uuid.New(),
		Store:         store,
		Graph:         graph.New(),
		link:          link,
		logger:        logger,
		pool:          pool,
		cfg:           cfg,
		collider:      collider,
		solver:        solver,
		entityMap:     delta.NewEntityMap(),
		nodeOf:        make(map[handle.Handle]graph.NodeIndex),
		edgeOf:        make(map[handle.Handle]graph.EdgeIndex),
		manifoldOwner: make(map[pairKey]handle.Handle),
		doneCh:        make(chan struct{}),
		state:         StateInit,
	}
	w.dispatcher = w.buildDispatcher()
	return w
}

// buildDispatcher registers this worker's inbound message handlers, the
// real analog of the ad-hoc type switch it replaces: every
// coordinator->worker message named in messages.go gets exactly one
// sink here.
func (w *Worker) buildDispatcher() *mailbox.Dispatcher {
	d := mailbox.NewDispatcher()
	mailbox.On(d, func(m mailbox.IslandDelta) {
		res := delta.Import(w.Store, w.entityMap, m.Delta)
		for _, remote := range res.UnknownRemote {
			w.logger.Warn("island worker dropped update for unmapped remote entity", "worker", w.ID, "remote", remote.String())
		}
		w.remapImportedReferences(m.Delta)
		w.reconcileGraph(m.Delta)
		w.WakeUp()
	})
	mailbox.On(d, func(m mailbox.SetPaused) {
		w.paused = m.Paused
	})
	mailbox.On(d, func(m mailbox.StepSimulation) {
		w.forceStep = true
	})
	mailbox.On(d, func(m mailbox.SetSettings) {
		w.cfg.FixedDt = m.Settings.FixedDt
		w.cfg.SleepLinearThresh = m.Settings.SleepLinearThresh
		w.cfg.SleepAngularThresh = m.Settings.SleepAngularThresh
		w.cfg.IslandTimeToSleep = m.Settings.IslandTimeToSleep
		w.cfg.SplitDebounce = m.Settings.SplitDebounce
		w.cfg.MaxLaggingSteps = m.Settings.MaxLaggingSteps
	})
	mailbox.On(d, func(m mailbox.WakeUpIsland) {
		w.WakeUp()
	})
	mailbox.On(d, func(m mailbox.SetMaterialTable) {
		w.materialTable = m.Table
	})
	mailbox.On(d, func(m mailbox.SetCOM) {
		if local, ok := w.entityMap.Local(m.Entity); ok {
			if mass, ok := ecs.Get[bodycomp.Mass](w.Store, local); ok {
				mass.COM = m.COM
				ecs.Replace(w.Store, local, mass)
			}
		}
	})
	return d
}

// Run schedules the worker's first tick, entering StateInit.
func (w *Worker) Run(now time.Time) {
	w.lastSimulated = now
	w.scheduleSelf()
}

// Terminate begins cooperative shutdown: the flag is observed on the
// worker's own goroutine at its next tick, never acted on synchronously
// here, so the caller never races the worker's store.
func (w *Worker) Terminate() {
	w.terminating.Store(true)
	w.wake()
}

// Join blocks until the worker has run do_terminate.
func (w *Worker) Join() {
	<-w.doneCh
}

// wake coalesces redundant external reschedule requests into a single
// extra tick, via the fetch-add pattern named for reschedule_counter.
// Terminate is its only caller; posting a message does not call it.
func (w *Worker) wake() {
	if w.rescheduleCounter.Add(1) == 1 {
		w.scheduleSelf()
	}
}

func (w *Worker) scheduleSelf() {
	if w.terminated.Load() {
		return
	}
	if err := w.pool.Async(w.tick); err != nil {
		w.logger.Error("island worker failed to reschedule", "worker", w.ID, "error", err)
	}
}

// tick and checkSplit are the only functions a dispatch.Pool goroutine
// ever runs against this worker; w.mu serialises them so the worker
// remains single-threaded with respect to its own store even though the
// pool may pick either job up on any of its goroutines.
func (w *Worker) tick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rescheduleCounter.Store(0)

	if w.terminating.Load() && w.state != StateTerminating && w.state != StateTerminated {
		w.state = StateTerminating
	}

	switch w.state {
	case StateInit:
		w.runInit()
		w.scheduleSelf()
	case StateStep:
		w.runStep()
	case StateBeginStep:
		w.runBeginStep()
		w.scheduleSelf()
	case StateBroadphase:
		w.runBroadphase()
		w.scheduleSelf()
	case StateNarrowphase:
		w.runNarrowphase()
		w.scheduleSelf()
	case StateSolve:
		w.runSolve()
		w.scheduleSelf()
	case StateFinishStep:
		w.runFinishStep()
		w.scheduleSelf()
	case StateSplitting:
		return
	case StateTerminating:
		w.doTerminate()
	case StateTerminated:
		return
	}
}

func (w *Worker) runInit() {
	w.drainInbox()
	w.rebuildAABBs()
	w.state = StateStep
}

// shouldStep implements the step gate: not paused, not sleeping, and
// wall-clock time has advanced by at least the fixed dt since the last
// simulated instant.
func (w *Worker) shouldStep(now time.Time) bool {
	if w.asleep {
		return false
	}
	if w.paused && !w.forceStep {
		return false
	}
	return w.forceStep || now.Sub(w.lastSimulated) >= w.cfg.FixedDt
}

func (w *Worker) runStep() {
	w.drainInbox()
	if w.terminating.Load() {
		w.state = StateTerminating
		w.scheduleSelf()
		return
	}
	now := time.Now()
	if !w.shouldStep(now) {
		if err := w.pool.AsyncAfter(time.Millisecond, w.tick); err != nil {
			w.logger.Error("island worker failed to reschedule delayed step", "worker", w.ID, "error", err)
		}
		return
	}
	w.forceStep = false
	w.state = StateBeginStep
	w.scheduleSelf()
}

func (w *Worker) runBeginStep() {
	if w.PreStep != nil {
		w.PreStep(w.Store)
	}
	w.state = StateBroadphase
}

// runBroadphase refreshes the AABB of every body, in parallel across the
// pool whatever the body count, then transitions
// straight to narrowphase: the pool's ParallelFor already blocks this
// tick to completion, so there is no separate *_async wait state here.
func (w *Worker) runBroadphase() {
	w.rebuildAABBs()
	w.state = StateNarrowphase
}

// rebuildAABBs recomputes every body's AABB. The per-body math reads the
// store only, so it runs across the pool in parallel; the store write is
// not safe for concurrent access (Store is documented single-threaded
// per instance), so results are collected into a local slice first and
// applied with a serial pass afterward.
func (w *Worker) rebuildAABBs() {
	nodes := w.Graph.Nodes()
	results := make([]struct {
		h    handle.Handle
		aabb bodycomp.AABB
		ok   bool
	}, len(nodes))

	_ = w.pool.ParallelFor(0, len(nodes), 1, func(i int) {
		h, ok := w.Graph.NodeEntity(nodes[i])
		if !ok {
			return
		}
		pos, ok := ecs.Get[bodycomp.Position](w.Store, h)
		if !ok {
			return
		}
		shape, ok := ecs.Get[bodycomp.Shape](w.Store, h)
		radius := shape.Radius
		if !ok || radius <= 0 {
			radius = 0.5
		}
		extent := vecmath.Vec3{X: radius, Y: radius, Z: radius}
		results[i] = struct {
			h    handle.Handle
			aabb bodycomp.AABB
			ok   bool
		}{h: h, aabb: bodycomp.AABB{Min: pos.Vec3.Sub(extent), Max: pos.Vec3.Add(extent)}, ok: true}
	})

	for _, r := range results {
		if r.ok {
			ecs.Replace(w.Store, r.h, r.aabb)
		}
	}
}

// runNarrowphase tests every pair of graph nodes, maintains persistent
// manifolds by feature matching for pairs whose AABBs overlap, and drops
// the manifold of a pair that no longer collides. A dropped manifold is
// destroyed from the store at once; its removal reaches the outbound
// delta only at this step's finish_step.
func (w *Worker) runNarrowphase() {
	nodes := w.Graph.Nodes()
	seen := make(map[pairKey]bool)
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			ea, ok := w.Graph.NodeEntity(nodes[i])
			if !ok {
				continue
			}
			eb, ok := w.Graph.NodeEntity(nodes[j])
			if !ok {
				continue
			}
			key := canonicalPair(ea, eb)
			if seen[key] {
				continue
			}
			seen[key] = true
			w.testPair(key.A, key.B)
		}
	}
	w.state = StateSolve
}

func (w *Worker) testPair(a, b handle.Handle) {
	aabbA, okA := ecs.Get[bodycomp.AABB](w.Store, a)
	aabbB, okB := ecs.Get[bodycomp.AABB](w.Store, b)
	key := canonicalPair(a, b)
	if !okA || !okB || !aabbOverlap(aabbA, aabbB) {
		w.dropManifold(key)
		return
	}
	shapeA, _ := ecs.Get[bodycomp.Shape](w.Store, a)
	shapeB, _ := ecs.Get[bodycomp.Shape](w.Store, b)
	posA, _ := ecs.Get[bodycomp.Position](w.Store, a)
	posB, _ := ecs.Get[bodycomp.Position](w.Store, b)
	orientA, _ := ecs.Get[bodycomp.Orientation](w.Store, a)
	orientB, _ := ecs.Get[bodycomp.Orientation](w.Store, b)

	result, hit := w.collider.Collide(shapeA, shapeB,
		collide.Pose{Position: posA.Vec3, Orientation: orientA.Quat},
		collide.Pose{Position: posB.Vec3, Orientation: orientB.Quat})
	if !hit || len(result.Points) == 0 {
		w.dropManifold(key)
		return
	}

	manifoldEntity, exists := w.manifoldOwner[key]
	var manifold bodycomp.ContactManifold
	if exists {
		manifold, _ = ecs.Get[bodycomp.ContactManifold](w.Store, manifoldEntity)
	} else {
		manifoldEntity = w.Store.CreateEntity()
		manifold = bodycomp.ContactManifold{BodyA: key.A, BodyB: key.B}
		w.manifoldOwner[key] = manifoldEntity
	}
	for _, p := range result.Points {
		manifold.Points = collide.MaybeAddPoint(manifold.Points, bodycomp.ContactPoint{
			FeatureID:   p.FeatureID,
			LocalA:      p.LocalA,
			LocalB:      p.LocalB,
			Normal:      p.Normal,
			Penetration: p.Penetration,
		})
	}
	if exists {
		ecs.Replace(w.Store, manifoldEntity, manifold)
	} else {
		ecs.Emplace(w.Store, manifoldEntity, manifold)
	}
}

// dropManifold removes and destroys a manifold that is no longer
// colliding. No delta is flushed before the destruction: Remove marks a
// Destroyed dirty bit, and finish_step ships the destroy in this step's
// outbound delta. The manifold's creation went out with the delta of the
// earlier step that created it, since every step emits one.
func (w *Worker) dropManifold(key pairKey) {
	manifoldEntity, ok := w.manifoldOwner[key]
	if !ok {
		return
	}
	delete(w.manifoldOwner, key)
	ecs.Remove[bodycomp.ContactManifold](w.Store, manifoldEntity)
	w.Store.DestroyEntity(manifoldEntity)
}

func aabbOverlap(a, b bodycomp.AABB) bool {
	return a.Min.X <= b.Max.X && a.Max.X >= b.Min.X &&
		a.Min.Y <= b.Max.Y && a.Max.Y >= b.Min.Y &&
		a.Min.Z <= b.Max.Z && a.Max.Z >= b.Min.Z
}

// runSolve integrates acceleration into velocity, runs the configured
// number of sequential-impulse iterations over every manifold, then
// integrates velocity into position. Contacts are the only constraint
// kind currently wired; bodycomp.SolveOrder documents where a distance
// constraint pass would be inserted ahead of them.
func (w *Worker) runSolve() {
	dt := w.cfg.FixedDt.Seconds()
	for _, node := range w.Graph.Nodes() {
		h, ok := w.Graph.NodeEntity(node)
		if !ok || !w.Graph.IsConnecting(node) {
			continue
		}
		accel, hasAccel := ecs.Get[bodycomp.LinearAcceleration](w.Store, h)
		if !hasAccel {
			continue
		}
		vel, ok := ecs.Get[bodycomp.LinearVelocity](w.Store, h)
		if !ok {
			continue
		}
		ecs.Replace(w.Store, h, bodycomp.LinearVelocity{Vec3: vel.Vec3.Add(accel.Vec3.Scale(dt))})
	}

	if err := w.solver.PrepareConstraints(w.Store, &w.rows, w.cfg.FixedDt); err != nil {
		w.logger.Error("island worker failed to prepare constraints", "worker", w.ID, "error", err)
	} else {
		iterations := w.cfg.SolverIterations
		if iterations < 1 {
			iterations = 1
		}
		for i := 0; i < iterations; i++ {
			if err := w.solver.IterateConstraints(w.Store, &w.rows); err != nil {
				w.logger.Error("island worker failed to iterate constraints", "worker", w.ID, "error", err)
				break
			}
		}
	}

	for _, node := range w.Graph.Nodes() {
		h, ok := w.Graph.NodeEntity(node)
		if !ok || !w.Graph.IsConnecting(node) {
			continue
		}
		pos, okPos := ecs.Get[bodycomp.Position](w.Store, h)
		vel, okVel := ecs.Get[bodycomp.LinearVelocity](w.Store, h)
		if okPos && okVel {
			ecs.Replace(w.Store, h, bodycomp.Position{Vec3: pos.Vec3.Add(vel.Vec3.Scale(dt))})
		}
		orient, okOrient := ecs.Get[bodycomp.Orientation](w.Store, h)
		angvel, okAngvel := ecs.Get[bodycomp.AngularVelocity](w.Store, h)
		if okOrient && okAngvel {
			ecs.Replace(w.Store, h, bodycomp.Orientation{Quat: vecmath.Integrate(orient.Quat, angvel.Vec3, dt)})
		}
	}

	w.state = StateFinishStep
}

// runFinishStep advances the island clock (clamped to avoid unbounded
// catch-up), considers sleep, arms the split-debounce timer if topology
// changed this step, runs the post-step hook, and emits the outbound
// delta.
func (w *Worker) runFinishStep() {
	now := time.Now()
	maxLag := time.Duration(w.cfg.MaxLaggingSteps) * w.cfg.FixedDt
	w.lastSimulated = w.lastSimulated.Add(w.cfg.FixedDt)
	if now.Sub(w.lastSimulated) > maxLag {
		w.lastSimulated = now.Add(-maxLag)
	}

	w.considerSleep(now)

	if w.topologyChanged && !w.splitTimerArmed {
		w.splitTimerArmed = true
		if err := w.pool.AsyncAfter(w.cfg.SplitDebounce, w.checkSplit); err != nil {
			w.logger.Error("island worker failed to arm split debounce", "worker", w.ID, "error", err)
		}
	}

	if w.PostStep != nil {
		w.PostStep(w.Store)
	}

	w.sweepOrphanedNonProcedural()
	w.emitDelta()

	w.state = StateStep
}

// considerSleep implements the sleep rule: every procedural member under
// both thresholds, continuously, for island_time_to_sleep, tags the
// island asleep and zeroes member velocities.
func (w *Worker) considerSleep(now time.Time) {
	if w.asleep {
		return
	}
	allStill := true
	for _, node := range w.Graph.Nodes() {
		if !w.Graph.IsConnecting(node) {
			continue
		}
		h, ok := w.Graph.NodeEntity(node)
		if !ok {
			continue
		}
		if ecs.Has[bodycomp.SleepingDisabled](w.Store, h) {
			allStill = false
			break
		}
		vel, _ := ecs.Get[bodycomp.LinearVelocity](w.Store, h)
		angvel, _ := ecs.Get[bodycomp.AngularVelocity](w.Store, h)
		if vel.Vec3.Length() >= w.cfg.SleepLinearThresh || angvel.Vec3.Length() >= w.cfg.SleepAngularThresh {
			allStill = false
			break
		}
	}

	if !allStill {
		w.stillSince = time.Time{}
		return
	}
	if w.stillSince.IsZero() {
		w.stillSince = now
		return
	}
	if now.Sub(w.stillSince) < w.cfg.IslandTimeToSleep {
		return
	}

	w.asleep = true
	for _, node := range w.Graph.Nodes() {
		if !w.Graph.IsConnecting(node) {
			continue
		}
		h, ok := w.Graph.NodeEntity(node)
		if !ok {
			continue
		}
		ecs.Emplace(w.Store, h, bodycomp.Sleeping{})
		ecs.Replace(w.Store, h, bodycomp.LinearVelocity{})
		ecs.Replace(w.Store, h, bodycomp.AngularVelocity{})
	}
}

// WakeUp clears the sleep tag; called from drainInbox on a WakeUpIsland
// message or implicitly whenever an inbound delta updates a member.
func (w *Worker) WakeUp() {
	if !w.asleep {
		return
	}
	w.asleep = false
	w.stillSince = time.Time{}
	for _, node := range w.Graph.Nodes() {
		if !w.Graph.IsConnecting(node) {
			continue
		}
		h, ok := w.Graph.NodeEntity(node)
		if !ok {
			continue
		}
		ecs.Remove[bodycomp.Sleeping](w.Store, h)
	}
}

func (w *Worker) sweepOrphanedNonProcedural() {
	for _, node := range w.Graph.Nodes() {
		if w.Graph.IsConnecting(node) {
			continue
		}
		hasNeighbour := false
		w.Graph.VisitNeighbours(node, func(graph.NodeIndex) { hasNeighbour = true })
		if hasNeighbour {
			continue
		}
		h, ok := w.Graph.NodeEntity(node)
		w.Graph.RemoveNode(node)
		if ok {
			delete(w.nodeOf, h)
			w.Store.DestroyEntity(h)
		}
	}
}

// emitDelta builds this step's outbound delta per the fixed inclusion
// rules, always shipping AABBs and contact manifolds plus every
// continuous-set component, on top of whatever the dirty set accumulated,
// then clears the dirty set.
func (w *Worker) emitDelta() {
	b := delta.NewBuilder()
	touched := make(map[handle.Handle]bool)

	for _, h := range w.Store.DirtyEntities() {
		ds, ok := w.Store.Dirty(h)
		if !ok {
			continue
		}
		touched[h] = true
		w.appendDirtyOps(b, h, ds)
	}

	for _, node := range w.Graph.Nodes() {
		h, ok := w.Graph.NodeEntity(node)
		if !ok || touched[h] {
			continue
		}
		if aabb, ok := ecs.Get[bodycomp.AABB](w.Store, h); ok {
			b.Update(remoteOf(w.entityMap, h), delta.Set(bodycomp.IdxAABB, aabb))
		}
		for _, idx := range w.Store.Continuous(h) {
			if kops, ok := w.Store.KindOps(idx); ok {
				if v, ok := kops.Get(w.Store, h); ok {
					b.Update(remoteOf(w.entityMap, h), delta.Set(idx, w.translateOutboundRefs(idx, v)))
				}
			}
		}
	}

	d := b.Build()
	if !d.IsEmpty() {
		w.link.ToCoordinator.Post(mailbox.IslandDelta{Delta: d})
	}
	w.Store.ClearDirty()
}

func (w *Worker) appendDirtyOps(b *delta.Builder, h handle.Handle, ds *ecs.DirtySet) {
	remote := remoteOf(w.entityMap, h)
	var createOps, updateOps []delta.ComponentOp
	var destroyed bool
	for i := 0; i < w.Store.Reg.Len(); i++ {
		idx := component.Index(i)
		kops, ok := w.Store.KindOps(idx)
		if !ok {
			continue
		}
		switch {
		case ds.CreatedSet.Test(uint16(idx)):
			if v, ok := kops.Get(w.Store, h); ok {
				createOps = append(createOps, delta.Set(idx, w.translateOutboundRefs(idx, v)))
			}
		case ds.UpdatedSet.Test(uint16(idx)):
			if v, ok := kops.Get(w.Store, h); ok {
				updateOps = append(updateOps, delta.Set(idx, w.translateOutboundRefs(idx, v)))
			}
		case ds.DestroyedSet.Test(uint16(idx)):
			destroyed = true
		}
	}
	if len(createOps) > 0 {
		b.Create(remote, createOps...)
	}
	if len(updateOps) > 0 {
		b.Update(remote, updateOps...)
	}
	if destroyed && !w.Store.EntityExists(h) {
		b.Destroy(remote)
	}
}

// translateOutboundRefs rewrites the entity-reference fields of a
// Constraint or ContactManifold value from this worker's local handle
// space into the shared coordinator identity, symmetric to
// remapImportedReferences on ingress. It operates on a copy taken from
// the store, never on the stored component itself: the solver and
// narrowphase keep reading local handles from Store between ticks.
func (w *Worker) translateOutboundRefs(idx component.Index, v any) any {
	switch idx {
	case bodycomp.IdxConstraint:
		c := v.(bodycomp.Constraint)
		c.Body0 = remoteOf(w.entityMap, c.Body0)
		c.Body1 = remoteOf(w.entityMap, c.Body1)
		return c
	case bodycomp.IdxContactManifold:
		m := v.(bodycomp.ContactManifold)
		m.BodyA = remoteOf(w.entityMap, m.BodyA)
		m.BodyB = remoteOf(w.entityMap, m.BodyB)
		return m
	default:
		return v
	}
}

func remoteOf(m *delta.EntityMap, local handle.Handle) handle.Handle {
	if remote, ok := m.Remote(local); ok {
		return remote
	}
	return local
}

// drainInbox dispatches every queued coordinator->worker message,
// importing deltas and applying settings/pause/material updates.
func (w *Worker) drainInbox() {
	w.dispatcher.DrainAndDispatch(w.link.ToWorker)
}

// remapImportedReferences rewrites the entity-reference fields carried
// inside Constraint and ContactManifold payloads from the sender's handle
// space into this store's own, now that every handle named in d has a
// local mapping. Must run after Import and before reconcileGraph, which
// reads Constraint.Body0/Body1 expecting local handles.
func (w *Worker) remapImportedReferences(d delta.Delta) {
	translate := func(remote handle.Handle) handle.Handle {
		if local, ok := w.entityMap.Local(remote); ok {
			return local
		}
		return remote
	}
	for _, op := range d.Creates {
		if local, ok := w.entityMap.Local(op.Remote); ok {
			bodycomp.RemapEntityHandles(w.Store, local, translate)
		}
	}
	for _, op := range d.Updates {
		if local, ok := w.entityMap.Local(op.Remote); ok {
			bodycomp.RemapEntityHandles(w.Store, local, translate)
		}
	}
}

// reconcileGraph mirrors newly created/destroyed entities from a delta
// into this worker's local graph: a procedural body gets a connecting
// node, a constraint gets an edge between its bodies' nodes.
func (w *Worker) reconcileGraph(d delta.Delta) {
	for _, op := range d.Creates {
		local, ok := w.entityMap.Local(op.Remote)
		if !ok {
			continue
		}
		class, ok := ecs.Get[bodycomp.BodyClass](w.Store, local)
		if ok && class.Class.Procedural() {
			if _, exists := w.nodeOf[local]; !exists {
				w.nodeOf[local] = w.Graph.InsertNode(local, true)
				ecs.Emplace(w.Store, local, bodycomp.GraphNode{Node: w.nodeOf[local], Connecting: true})
			}
		}
		if c, ok := ecs.Get[bodycomp.Constraint](w.Store, local); ok {
			w.linkConstraint(local, c)
		}
	}
	for _, remote := range d.Destroys {
		local, ok := w.entityMap.Local(remote)
		if !ok {
			continue
		}
		if node, ok := w.nodeOf[local]; ok {
			w.topologyChanged = true
			for _, owner := range w.Graph.RemoveNode(node) {
				w.Store.DestroyEntity(owner)
			}
			delete(w.nodeOf, local)
		}
		if edge, ok := w.edgeOf[local]; ok {
			w.topologyChanged = true
			w.Graph.RemoveEdge(edge)
			delete(w.edgeOf, local)
		}
	}
}

func (w *Worker) linkConstraint(entity handle.Handle, c bodycomp.Constraint) {
	if _, exists := w.edgeOf[entity]; exists {
		return
	}
	n0, ok0 := w.nodeOf[c.Body0]
	n1, ok1 := w.nodeOf[c.Body1]
	if !ok0 || !ok1 {
		return
	}
	edge := w.Graph.InsertEdge(entity, n0, n1)
	w.edgeOf[entity] = edge
	ecs.Emplace(w.Store, entity, bodycomp.GraphEdge{Edge: edge})
	w.topologyChanged = true
}

// checkSplit runs after the debounce timer: if topology is still single
// connected-component, the split is aborted; otherwise the worker
// advertises it is splitting and notifies the coordinator, which alone
// may execute the split (a concurrent merge could otherwise race).
func (w *Worker) checkSplit() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.splitTimerArmed = false
	if !w.topologyChanged {
		return
	}
	if w.Graph.IsSingleConnectedComponent() {
		w.topologyChanged = false
		return
	}
	w.splitting.Store(true)
	w.emitDelta()
	w.link.ToCoordinator.Post(mailbox.SplitIsland{})
	w.state = StateSplitting
}

// ResumeAfterSplit clears the splitting state and resumes the normal step
// cycle. The coordinator calls this only once it has finished transferring
// every split-away component: the worker has been parked in StateSplitting
// since it posted SplitIsland, so touching its graph and store from the
// coordinator's goroutine up to this point, and calling this to hand
// control back, is safe without any additional synchronisation.
func (w *Worker) ResumeAfterSplit() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.splitting.Store(false)
	w.topologyChanged = false
	w.splitTimerArmed = false
	w.state = StateStep
	w.scheduleSelf()
}

// doTerminate runs the observed-terminating handler: sets terminated,
// closes doneCh so Join returns, and stops scheduling further ticks.
func (w *Worker) doTerminate() {
	w.state = StateTerminated
	w.terminated.Store(true)
	close(w.doneCh)
}
