package delta

import (
	"github.com/solstice-phys/islands/pkg/component"
	"github.com/solstice-phys/islands/pkg/ecs"
	"github.com/solstice-phys/islands/pkg/handle"
)

// SnapshotEntity builds the EntityOp that would recreate h's full current
// component set, used by the coordinator to synthesize create-deltas for
// merges and splits directly from the authoritative store rather than
// asking a worker to report state it does not own.
func SnapshotEntity(store *ecs.Store, h handle.Handle) EntityOp {
	var ops []ComponentOp
	for i := 0; i < store.Reg.Len(); i++ {
		idx := component.Index(i)
		kops, ok := store.KindOps(idx)
		if !ok {
			continue
		}
		if v, ok := kops.Get(store, h); ok {
			ops = append(ops, ComponentOp{Index: idx, Value: v})
		}
	}
	return EntityOp{Remote: h, Ops: ops}
}

// BuildCreateDelta snapshots every entity in entities into one Delta's
// Creates section, in the given order, callers are responsible for
// construction ordering (nodes before edges, endpoints before
// constraints).
func BuildCreateDelta(store *ecs.Store, entities []handle.Handle) Delta {
	var d Delta
	for _, h := range entities {
		d.Creates = append(d.Creates, SnapshotEntity(store, h))
	}
	return d
}

// BuildDestroyDelta is the inverse: a Delta whose Destroys section names
// every entity, used when transferring entities away from a worker.
func BuildDestroyDelta(entities []handle.Handle) Delta {
	return Delta{Destroys: append([]handle.Handle{}, entities...)}
}
