package island

import (
	"sort"
	"time"

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

// islandRecord is the coordinator's bookkeeping for one live island: the
// worker driving it, the link connecting them, the entity map used to
// import the worker's own deltas, and the staged egress delta built up
// between two calls to Update.
type islandRecord struct {
	handle     handle.Handle
	worker     *Worker
	link       *mailbox.Link
	dispatcher *mailbox.Dispatcher
	entityMap  *delta.EntityMap
	outbox     *delta.Builder
	workerTime time.Time
}

// Coordinator owns the authoritative entity store and the coordinator-side
// mirror of the interaction graph used to decide placement and merges. It
// never runs physics on its own goroutine: every worker does that, driven
// through its mailbox.Link.
type Coordinator struct {
	Store *ecs.Store
	Graph *graph.Graph

	reg      *component.Registry
	pool     *dispatch.Pool
	cfg      Config
	collider collide.Collider
	solver   solve.Solver
	logger   axlog.Logger

	islands map[handle.Handle]*islandRecord

	nodeOf     map[handle.Handle]graph.NodeIndex // procedural entity -> coordinator graph node
	edgeOf     map[handle.Handle]graph.EdgeIndex // constraint entity -> coordinator graph edge
	residentOf map[handle.Handle]handle.Handle   // procedural entity -> island handle

	pendingSplits map[handle.Handle]bool

	paused bool
}

// NewCoordinator builds a coordinator with a fresh authoritative store
// whose component registry is built from component.StandardNames, the
// same declared list every Worker's store registers against.
func NewCoordinator(pool *dispatch.Pool, cfg Config, collider collide.Collider, solver solve.Solver, logger axlog.Logger) *Coordinator {
	if logger == nil {
		logger = axlog.Nop{}
	}
	reg := component.NewStandardRegistry()
	store := ecs.NewStore(reg, logger)
	bodycomp.RegisterAll(store)
	return &Coordinator{
		Store:         store,
		Graph:         graph.New(),
		reg:           reg,
		pool:          pool,
		cfg:           cfg,
		collider:      collider,
		solver:        solver,
		logger:        logger,
		islands:       make(map[handle.Handle]*islandRecord),
		nodeOf:        make(map[handle.Handle]graph.NodeIndex),
		edgeOf:        make(map[handle.Handle]graph.EdgeIndex),
		residentOf:    make(map[handle.Handle]handle.Handle),
		pendingSplits: make(map[handle.Handle]bool),
	}
}

func (c *Coordinator) createIsland() *islandRecord {
	h := c.Store.CreateEntity()
	link := mailbox.NewLink()
	w := NewWorker(c.reg, link, c.pool, c.cfg, c.collider, c.solver, c.logger)
	w.Island = h
	w.Run(time.Now())
	rec := &islandRecord{
		handle:     h,
		worker:     w,
		link:       link,
		entityMap:  delta.NewEntityMap(),
		outbox:     delta.NewBuilder(),
		workerTime: time.Now(),
	}
	rec.dispatcher = c.buildWorkerDispatcher(rec)
	c.islands[h] = rec
	return rec
}

// buildWorkerDispatcher registers this island's worker->coordinator
// message handlers, the real analog of the ad-hoc type switch it
// replaces: every worker->coordinator message named in messages.go gets
// exactly one sink here.
func (c *Coordinator) buildWorkerDispatcher(rec *islandRecord) *mailbox.Dispatcher {
	d := mailbox.NewDispatcher()
	mailbox.On(d, func(m mailbox.IslandDelta) {
		c.handleWorkerDelta(rec, m.Delta)
		rec.workerTime = time.Now()
	})
	mailbox.On(d, func(m mailbox.SplitIsland) {
		c.pendingSplits[rec.handle] = true
	})
	return d
}

// CreateBody creates a body entity with the given class and initial
// components. A freshly created procedural body starts its own island
// (placement-on-create, point 1: a brand-new body has no adjacent edges
// yet, so there is nothing to merge against).
func (c *Coordinator) CreateBody(class bodycomp.BodyClass, components ...ecs.Component) handle.Handle {
	h := c.Store.CreateEntity()
	ecs.Emplace(c.Store, h, class)
	for _, comp := range components {
		if kops, ok := c.Store.KindOps(comp.Index()); ok {
			kops.Emplace(c.Store, h, comp)
		}
	}

	if !class.Class.Procedural() {
		return h
	}

	node := c.Graph.InsertNode(h, true)
	c.nodeOf[h] = node
	rec := c.createIsland()
	c.residentOf[h] = rec.handle
	ecs.Emplace(c.Store, h, bodycomp.IslandResident{Island: rec.handle})
	c.stageCreate(rec, h)
	return h
}

// CreateConstraint creates a constraint entity linking Body0 and Body1,
// inserts the corresponding graph edge, and performs
// placement-on-edge-creation (point 2): if the two bodies resided in
// different islands, those islands are merged into one.
func (c *Coordinator) CreateConstraint(constraint bodycomp.Constraint) handle.Handle {
	h := c.Store.CreateEntity()
	ecs.Emplace(c.Store, h, constraint)

	if n0, ok0 := c.nodeOf[constraint.Body0]; ok0 {
		if n1, ok1 := c.nodeOf[constraint.Body1]; ok1 {
			edge := c.Graph.InsertEdge(h, n0, n1)
			c.edgeOf[h] = edge
			ecs.Emplace(c.Store, h, bodycomp.GraphEdge{Edge: edge})
		}
	}

	island0, resident0 := c.residentOf[constraint.Body0]
	island1, resident1 := c.residentOf[constraint.Body1]

	var target handle.Handle
	switch {
	case resident0 && resident1:
		target = c.mergeIslands(island0, island1)
	case resident0:
		target = island0
		c.attachNonProcedural(constraint.Body1, target)
	case resident1:
		target = island1
		c.attachNonProcedural(constraint.Body0, target)
	default:
		c.logger.Warn("island coordinator created a constraint between two bodies with no island yet", "entity", h.String())
		return h
	}

	if rec, ok := c.islands[target]; ok {
		c.stageCreate(rec, h)
	}
	return h
}

// attachNonProcedural records that a non-procedural body (static or
// kinematic) now also resides in island, appending to its
// MultiIslandResident set, and ships it to that island's worker if it
// was not already replicated there.
func (c *Coordinator) attachNonProcedural(h, islandHandle handle.Handle) {
	mr, existed := ecs.Get[bodycomp.MultiIslandResident](c.Store, h)
	for _, isl := range mr.Islands {
		if isl == islandHandle {
			return
		}
	}
	mr.Islands = append(mr.Islands, islandHandle)
	if existed {
		ecs.Replace(c.Store, h, mr)
	} else {
		ecs.Emplace(c.Store, h, mr)
	}
	if rec, ok := c.islands[islandHandle]; ok {
		c.stageCreate(rec, h)
	}
}

// islandMembers returns the procedural bodies and wholly-internal
// constraint edges currently assigned to island, read from the
// coordinator's own bookkeeping rather than a worker's replica.
func (c *Coordinator) islandMembers(islandHandle handle.Handle) (nodes, edges []handle.Handle) {
	for h, isl := range c.residentOf {
		if isl == islandHandle {
			nodes = append(nodes, h)
		}
	}
	for h, e := range c.edgeOf {
		n0, n1, ok := c.Graph.EdgeEndpoints(e)
		if !ok {
			continue
		}
		b0, ok0 := c.Graph.NodeEntity(n0)
		b1, ok1 := c.Graph.NodeEntity(n1)
		if ok0 && ok1 && c.residentOf[b0] == islandHandle && c.residentOf[b1] == islandHandle {
			edges = append(edges, h)
		}
	}
	return nodes, edges
}

func (c *Coordinator) multiResidentsOf(islandHandle handle.Handle) []handle.Handle {
	var out []handle.Handle
	for _, h := range c.Store.Query(ecs.NewView([]component.Index{bodycomp.IdxMultiIslandResident})) {
		mr, _ := ecs.Get[bodycomp.MultiIslandResident](c.Store, h)
		for _, isl := range mr.Islands {
			if isl == islandHandle {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

// mergeIslands implements 4.5.1: the smaller island's worker is paused,
// its entities are transferred to the bigger island's worker as a
// create-delta synthesized from the authoritative store, the smaller
// worker is terminated, and its island entity is destroyed. Returns the
// surviving island handle.
func (c *Coordinator) mergeIslands(a, b handle.Handle) handle.Handle {
	if a == b || a.IsNil() || b.IsNil() {
		return a
	}
	recA, okA := c.islands[a]
	recB, okB := c.islands[b]
	if !okA || !okB {
		return a
	}

	nodesA, _ := c.islandMembers(a)
	nodesB, _ := c.islandMembers(b)
	bigger, smaller := recA, recB
	if len(nodesB) > len(nodesA) {
		bigger, smaller = recB, recA
	}

	smaller.link.ToWorker.Post(mailbox.SetPaused{Paused: true})

	bodyEntities, edgeEntities := c.islandMembers(smaller.handle)
	multi := c.multiResidentsOf(smaller.handle)
	entities := make([]handle.Handle, 0, len(bodyEntities)+len(edgeEntities)+len(multi))
	entities = append(entities, bodyEntities...)
	entities = append(entities, edgeEntities...)
	entities = append(entities, multi...)

	if len(entities) > 0 {
		d := delta.BuildCreateDelta(c.Store, entities)
		for _, h := range entities {
			bigger.entityMap.Insert(h, h)
		}
		bigger.link.ToWorker.Post(mailbox.IslandDelta{Delta: d})
	}

	for _, h := range bodyEntities {
		c.residentOf[h] = bigger.handle
		ecs.Replace(c.Store, h, bodycomp.IslandResident{Island: bigger.handle})
	}
	for _, h := range multi {
		mr, ok := ecs.Get[bodycomp.MultiIslandResident](c.Store, h)
		if !ok {
			continue
		}
		mr.Islands = replaceIsland(mr.Islands, smaller.handle, bigger.handle)
		ecs.Replace(c.Store, h, mr)
	}

	smaller.worker.Terminate()
	smaller.worker.Join()
	delete(c.islands, smaller.handle)
	c.Store.DestroyEntity(smaller.handle)

	return bigger.handle
}

func replaceIsland(islands []handle.Handle, oldIsland, newIsland handle.Handle) []handle.Handle {
	out := make([]handle.Handle, 0, len(islands))
	seenNew := false
	for _, isl := range islands {
		if isl == oldIsland {
			isl = newIsland
		}
		if isl == newIsland {
			if seenNew {
				continue
			}
			seenNew = true
		}
		out = append(out, isl)
	}
	return out
}

// stageCreate seeds the identity mapping for h in rec's entity map (so a
// later update from this same entity round-trips against the right local
// handle on import) and appends its full current state to rec's outbox.
func (c *Coordinator) stageCreate(rec *islandRecord, h handle.Handle) {
	rec.entityMap.Insert(h, h)
	snap := delta.SnapshotEntity(c.Store, h)
	rec.outbox.Create(h, snap.Ops...)
}

func (c *Coordinator) stageUpdate(rec *islandRecord, h handle.Handle, ops ...delta.ComponentOp) {
	rec.outbox.Update(h, ops...)
}

func (c *Coordinator) stageDestroy(rec *islandRecord, h handle.Handle) {
	rec.outbox.Destroy(h)
}

// Refresh applies caller-mutated components directly to the authoritative
// store and stages the update for every island replicating the entity,
// implementing the refresh<Components...> external operation.
func (c *Coordinator) Refresh(h handle.Handle, components ...ecs.Component) error {
	if !c.Store.EntityExists(h) {
		return ErrUnknownEntity
	}
	var ops []delta.ComponentOp
	for _, comp := range components {
		kops, ok := c.Store.KindOps(comp.Index())
		if !ok {
			continue
		}
		if _, exists := kops.Get(c.Store, h); exists {
			kops.Replace(c.Store, h, comp)
		} else {
			kops.Emplace(c.Store, h, comp)
		}
		ops = append(ops, delta.Set(comp.Index(), comp))
	}
	if len(ops) == 0 {
		return nil
	}

	if islandHandle, ok := c.residentOf[h]; ok {
		if rec, ok := c.islands[islandHandle]; ok {
			c.stageUpdate(rec, h, ops...)
		}
		return nil
	}
	if mr, ok := ecs.Get[bodycomp.MultiIslandResident](c.Store, h); ok {
		for _, islandHandle := range mr.Islands {
			if rec, ok := c.islands[islandHandle]; ok {
				c.stageUpdate(rec, h, ops...)
			}
		}
	}
	return nil
}

// DestroyEntity removes h from the authoritative store, cascades graph
// node/edge removal, stages the corresponding destroy for every island
// that replicates it, and retires any island left with no procedural
// member.
func (c *Coordinator) DestroyEntity(h handle.Handle) {
	if !c.Store.EntityExists(h) {
		return
	}

	touched := make(map[handle.Handle]bool)
	if islandHandle, ok := c.residentOf[h]; ok {
		touched[islandHandle] = true
	}
	if mr, ok := ecs.Get[bodycomp.MultiIslandResident](c.Store, h); ok {
		for _, islandHandle := range mr.Islands {
			touched[islandHandle] = true
		}
	}

	if node, ok := c.nodeOf[h]; ok {
		for _, owner := range c.Graph.RemoveNode(node) {
			c.stageDestroyEverywhere(owner, touched)
			delete(c.edgeOf, owner)
			c.Store.DestroyEntity(owner)
		}
		delete(c.nodeOf, h)
		delete(c.residentOf, h)
	}
	if edge, ok := c.edgeOf[h]; ok {
		c.Graph.RemoveEdge(edge)
		delete(c.edgeOf, h)
	}

	c.Store.DestroyEntity(h)
	c.stageDestroyEverywhere(h, touched)

	for islandHandle := range touched {
		if !c.islandHasProceduralMember(islandHandle) {
			c.retireIsland(islandHandle)
		}
	}
}

func (c *Coordinator) stageDestroyEverywhere(h handle.Handle, islands map[handle.Handle]bool) {
	for islandHandle := range islands {
		if rec, ok := c.islands[islandHandle]; ok {
			c.stageDestroy(rec, h)
		}
	}
}

func (c *Coordinator) islandHasProceduralMember(islandHandle handle.Handle) bool {
	for _, isl := range c.residentOf {
		if isl == islandHandle {
			return true
		}
	}
	return false
}

func (c *Coordinator) retireIsland(islandHandle handle.Handle) {
	rec, ok := c.islands[islandHandle]
	if !ok {
		return
	}
	rec.worker.Terminate()
	rec.worker.Join()
	delete(c.islands, islandHandle)
	c.Store.DestroyEntity(islandHandle)
}

func (c *Coordinator) drainWorker(rec *islandRecord) {
	rec.dispatcher.DrainAndDispatch(rec.link.ToCoordinator)
}

// handleWorkerDelta implements delta ingress (point 3): import into the
// authoritative store through this island's own entity map. Entities the
// worker itself originated (e.g. contact manifolds) mint a fresh
// coordinator handle on first sight; entities the coordinator originated
// round-trip onto their existing handle via the identity mapping seeded
// at stageCreate.
func (c *Coordinator) handleWorkerDelta(rec *islandRecord, d delta.Delta) {
	res := delta.Import(c.Store, rec.entityMap, d)
	for _, remote := range res.UnknownRemote {
		c.logger.Warn("island coordinator dropped update for unmapped remote entity", "island", rec.handle.String(), "remote", remote.String())
	}

	translate := func(remote handle.Handle) handle.Handle {
		if local, ok := rec.entityMap.Local(remote); ok {
			return local
		}
		return remote
	}
	for _, op := range d.Creates {
		if local, ok := rec.entityMap.Local(op.Remote); ok {
			bodycomp.RemapEntityHandles(c.Store, local, translate)
		}
	}
	for _, op := range d.Updates {
		if local, ok := rec.entityMap.Local(op.Remote); ok {
			bodycomp.RemapEntityHandles(c.Store, local, translate)
		}
	}
}

// executeSplit implements point 5: the worker is parked in StateSplitting
// by the time SplitIsland reaches the coordinator, so its graph and
// internal entity map may be read directly. The largest connected
// component stays with the existing worker; every other component is
// handed to a freshly spawned island.
func (c *Coordinator) executeSplit(islandHandle handle.Handle) {
	rec, ok := c.islands[islandHandle]
	if !ok {
		return
	}
	components := rec.worker.Graph.ConnectedComponents()
	if len(components) <= 1 {
		rec.worker.ResumeAfterSplit()
		return
	}

	sort.Slice(components, func(i, j int) bool {
		return len(components[i].Nodes) > len(components[j].Nodes)
	})

	for _, comp := range components[1:] {
		entities := make([]handle.Handle, 0, len(comp.Nodes)+len(comp.Edges))
		for _, n := range comp.Nodes {
			if workerLocal, ok := rec.worker.Graph.NodeEntity(n); ok {
				if coordHandle, ok := rec.worker.entityMap.Remote(workerLocal); ok {
					entities = append(entities, coordHandle)
				}
			}
		}
		for _, e := range comp.Edges {
			if workerLocal, ok := rec.worker.Graph.EdgeEntity(e); ok {
				if coordHandle, ok := rec.worker.entityMap.Remote(workerLocal); ok {
					entities = append(entities, coordHandle)
				}
			}
		}
		if len(entities) == 0 {
			continue
		}

		newRec := c.createIsland()
		d := delta.BuildCreateDelta(c.Store, entities)
		for _, h := range entities {
			newRec.entityMap.Insert(h, h)
		}
		newRec.link.ToWorker.Post(mailbox.IslandDelta{Delta: d})

		for _, h := range entities {
			if _, isNode := c.nodeOf[h]; isNode {
				c.residentOf[h] = newRec.handle
				ecs.Replace(c.Store, h, bodycomp.IslandResident{Island: newRec.handle})
			}
		}

		rec.link.ToWorker.Post(mailbox.IslandDelta{Delta: delta.BuildDestroyDelta(entities)})
	}

	rec.worker.ResumeAfterSplit()
}

// Update drains every worker's inbox, executes any splits the workers
// advertised, and flushes staged egress deltas. It never runs physics
// itself; the caller's thread only ever touches the authoritative store
// and the mailbox links.
func (c *Coordinator) Update(now time.Time) {
	for _, rec := range c.islands {
		c.drainWorker(rec)
	}

	for islandHandle := range c.pendingSplits {
		c.executeSplit(islandHandle)
	}
	c.pendingSplits = make(map[handle.Handle]bool)

	for _, rec := range c.islands {
		if rec.outbox.IsEmpty() {
			continue
		}
		d := rec.outbox.Build()
		rec.link.ToWorker.Post(mailbox.IslandDelta{Delta: d})
	}
}

// Shutdown terminates and joins every live island's worker. The
// coordinator's authoritative store is left intact; callers that want a
// clean restart should discard the Coordinator and build a fresh one.
func (c *Coordinator) Shutdown() {
	for _, rec := range c.islands {
		rec.worker.Terminate()
	}
	for islandHandle, rec := range c.islands {
		rec.worker.Join()
		delete(c.islands, islandHandle)
	}
}

// Broadcast fans msg out to every live island's worker, used for
// process-wide tuning changes (set_settings, set_material_table).
func (c *Coordinator) Broadcast(msg mailbox.Message) {
	for _, rec := range c.islands {
		rec.link.ToWorker.Post(msg)
	}
}

func (c *Coordinator) settingsFromConfig() mailbox.Settings {
	return mailbox.Settings{
		FixedDt:            c.cfg.FixedDt,
		SleepLinearThresh:  c.cfg.SleepLinearThresh,
		SleepAngularThresh: c.cfg.SleepAngularThresh,
		IslandTimeToSleep:  c.cfg.IslandTimeToSleep,
		SplitDebounce:      c.cfg.SplitDebounce,
		MaxLaggingSteps:    c.cfg.MaxLaggingSteps,
	}
}

// SetPaused pauses or resumes every worker. A paused worker still accepts
// StepSimulation for single-step advancement.
func (c *Coordinator) SetPaused(paused bool) {
	c.paused = paused
	c.Broadcast(mailbox.SetPaused{Paused: paused})
}

func (c *Coordinator) IsPaused() bool { return c.paused }

// StepSimulation requests one step from every worker while paused.
func (c *Coordinator) StepSimulation() {
	c.Broadcast(mailbox.StepSimulation{})
}

func (c *Coordinator) SetFixedDt(dt time.Duration) {
	c.cfg.FixedDt = dt
	c.Broadcast(mailbox.SetSettings{Settings: c.settingsFromConfig()})
}

func (c *Coordinator) GetFixedDt() time.Duration { return c.cfg.FixedDt }

func (c *Coordinator) SetMaterialTable(table mailbox.MaterialTable) {
	c.Broadcast(mailbox.SetMaterialTable{Table: table})
}

// SetCOM overrides a body's centre-of-mass both in the authoritative
// store and, if it is already replicated, on its owning worker.
func (c *Coordinator) SetCOM(h handle.Handle, com vecmath.Vec3) {
	if mass, ok := ecs.Get[bodycomp.Mass](c.Store, h); ok {
		mass.COM = com
		ecs.Replace(c.Store, h, mass)
	}
	if islandHandle, ok := c.residentOf[h]; ok {
		if rec, ok := c.islands[islandHandle]; ok {
			rec.link.ToWorker.Post(mailbox.SetCOM{Entity: h, COM: com})
		}
	}
}

// ManifoldExists and GetManifoldEntity query the coordinator's own record
// of contact manifolds, reconciled from worker deltas during ingress.
func (c *Coordinator) ManifoldExists(a, b handle.Handle) bool {
	_, ok := c.GetManifoldEntity(a, b)
	return ok
}

func (c *Coordinator) GetManifoldEntity(a, b handle.Handle) (handle.Handle, bool) {
	for _, h := range c.Store.Query(ecs.NewView([]component.Index{bodycomp.IdxContactManifold})) {
		m, ok := ecs.Get[bodycomp.ContactManifold](c.Store, h)
		if !ok {
			continue
		}
		if (m.BodyA == a && m.BodyB == b) || (m.BodyA == b && m.BodyB == a) {
			return h, true
		}
	}
	return handle.Nil, false
}
