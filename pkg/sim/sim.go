// Package sim is the host-facing boundary described as EXTERNAL INTERFACES:
// a thin, package-level façade over island.Coordinator that a host
// application drives from its own update loop. The host never touches a
// Coordinator, a Worker, or a mailbox.Link directly; it calls Attach once
// per store it wants simulated, then Update every tick.
//
// There is deliberately no wire protocol here: serialization and
// networking are external collaborators layered on top of this package,
// never inside it.
package sim

import (
	"sync"
	"time"

	"github.com/solstice-phys/islands/pkg/axlog"
	"github.com/solstice-phys/islands/pkg/bodycomp"
	"github.com/solstice-phys/islands/pkg/collide"
	"github.com/solstice-phys/islands/pkg/dispatch"
	"github.com/solstice-phys/islands/pkg/ecs"
	"github.com/solstice-phys/islands/pkg/handle"
	"github.com/solstice-phys/islands/pkg/island"
	"github.com/solstice-phys/islands/pkg/mailbox"
	"github.com/solstice-phys/islands/pkg/solve"
	"github.com/solstice-phys/islands/pkg/vecmath"
)

var (
	mu       sync.RWMutex
	pool     *dispatch.Pool
	attached = map[*ecs.Store]struct{}{}
)

// Init starts the global job dispatcher every attached Coordinator shares.
// Calling Init twice without an intervening Deinit is a no-op.
func Init(workers int, logger axlog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if pool != nil {
		return
	}
	pool = dispatch.NewPool(workers, logger)
	pool.Start()
}

// Deinit tears down every attached context and stops the global
// dispatcher. The host calls this once, at shutdown.
func Deinit() {
	mu.Lock()
	defer mu.Unlock()
	for store := range attached {
		if c, ok := store.Attachment.(*island.Coordinator); ok {
			c.Shutdown()
		}
		store.Attachment = nil
		delete(attached, store)
	}
	if pool != nil {
		pool.Stop()
		pool.Wait()
		pool = nil
	}
}

// Attach builds a Coordinator and installs it as store.Attachment, the
// per-store context slot the store itself declares room for. A host
// never touches a Coordinator, a Worker, or a mailbox.Link directly; it
// looks up a store's simulation the same way every other function here
// does, through that one field.
func Attach(store *ecs.Store, cfg island.Config, collider collide.Collider, solver solve.Solver, logger axlog.Logger) *island.Coordinator {
	mu.Lock()
	defer mu.Unlock()
	c := island.NewCoordinator(pool, cfg, collider, solver, logger)
	store.Attachment = c
	attached[store] = struct{}{}
	return c
}

// Detach shuts down and forgets the coordinator attached to store, if any.
func Detach(store *ecs.Store) {
	mu.Lock()
	defer mu.Unlock()
	if c, ok := store.Attachment.(*island.Coordinator); ok {
		c.Shutdown()
	}
	store.Attachment = nil
	delete(attached, store)
}

func coordinatorFor(store *ecs.Store) (*island.Coordinator, bool) {
	c, ok := store.Attachment.(*island.Coordinator)
	return c, ok
}

// Update drains every worker attached to store and flushes staged deltas.
// It never blocks on physics: islands step on their own pool goroutines,
// scheduled independently of this call. The host calls this every tick
// regardless of whether the simulation is paused.
func Update(store *ecs.Store) {
	if c, ok := coordinatorFor(store); ok {
		c.Update(time.Now())
	}
}

func GetFixedDt(store *ecs.Store) time.Duration {
	if c, ok := coordinatorFor(store); ok {
		return c.GetFixedDt()
	}
	return 0
}

func SetFixedDt(store *ecs.Store, dt time.Duration) {
	if c, ok := coordinatorFor(store); ok {
		c.SetFixedDt(dt)
	}
}

func IsPaused(store *ecs.Store) bool {
	c, ok := coordinatorFor(store)
	return ok && c.IsPaused()
}

func SetPaused(store *ecs.Store, paused bool) {
	if c, ok := coordinatorFor(store); ok {
		c.SetPaused(paused)
	}
}

// StepSimulation requests one fixed step from every island while paused.
func StepSimulation(store *ecs.Store) {
	if c, ok := coordinatorFor(store); ok {
		c.StepSimulation()
	}
}

// Refresh ships host-mutated components to the entity's owning worker.
func Refresh(store *ecs.Store, h handle.Handle, components ...ecs.Component) error {
	c, ok := coordinatorFor(store)
	if !ok {
		return island.ErrUnknownEntity
	}
	return c.Refresh(h, components...)
}

func ManifoldExists(store *ecs.Store, a, b handle.Handle) bool {
	c, ok := coordinatorFor(store)
	return ok && c.ManifoldExists(a, b)
}

func GetManifoldEntity(store *ecs.Store, a, b handle.Handle) (handle.Handle, bool) {
	c, ok := coordinatorFor(store)
	if !ok {
		return handle.Nil, false
	}
	return c.GetManifoldEntity(a, b)
}

// CreateBody creates a procedural or non-procedural body on the
// coordinator attached to store.
func CreateBody(store *ecs.Store, class bodycomp.BodyClass, components ...ecs.Component) (handle.Handle, bool) {
	c, ok := coordinatorFor(store)
	if !ok {
		return handle.Nil, false
	}
	return c.CreateBody(class, components...), true
}

// CreateConstraint creates a joint between two existing bodies on the
// coordinator attached to store.
func CreateConstraint(store *ecs.Store, constraint bodycomp.Constraint) (handle.Handle, bool) {
	c, ok := coordinatorFor(store)
	if !ok {
		return handle.Nil, false
	}
	return c.CreateConstraint(constraint), true
}

func DestroyEntity(store *ecs.Store, h handle.Handle) {
	if c, ok := coordinatorFor(store); ok {
		c.DestroyEntity(h)
	}
}

func SetMaterialTable(store *ecs.Store, table mailbox.MaterialTable) {
	if c, ok := coordinatorFor(store); ok {
		c.SetMaterialTable(table)
	}
}

func SetCOM(store *ecs.Store, h handle.Handle, com vecmath.Vec3) {
	if c, ok := coordinatorFor(store); ok {
		c.SetCOM(h, com)
	}
}

// PresentPosition and PresentOrientation return the entity's
// interpolated, network-corrected pose for rendering at wall-clock time
// now, per the presentation rules in island.Coordinator.
func PresentPosition(store *ecs.Store, h handle.Handle, now time.Time) (vecmath.Vec3, bool) {
	c, ok := coordinatorFor(store)
	if !ok {
		return vecmath.Vec3{}, false
	}
	return c.PresentPosition(h, now)
}

func PresentOrientation(store *ecs.Store, h handle.Handle, now time.Time) (vecmath.Quat, bool) {
	c, ok := coordinatorFor(store)
	if !ok {
		return vecmath.Quat{}, false
	}
	return c.PresentOrientation(h, now)
}

func SnapPresentation(store *ecs.Store, h handle.Handle, now time.Time) {
	if c, ok := coordinatorFor(store); ok {
		c.SnapPresentation(h, now)
	}
}
