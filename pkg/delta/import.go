package delta

import (
	"github.com/solstice-phys/islands/pkg/ecs"
	"github.com/solstice-phys/islands/pkg/handle"
)

// ImportResult reports recoverable conditions observed while importing a
// delta: remote handles the importer has never mapped, recorded
// so the caller can request a full resync for them later instead of
// raising an error.
type ImportResult struct {
	UnknownRemote []handle.Handle
}

// Import applies d into store, remapping every remote handle through m.
// UnknownRemoteEntity, DuplicateConstruction, and LateArrival are all
// treated as recoverable: the import never aborts on them.
func Import(store *ecs.Store, m *EntityMap, d Delta) ImportResult {
	var res ImportResult

	for _, mp := range d.Mappings {
		m.Insert(mp.Remote, mp.Local)
	}

	for _, op := range d.Creates {
		local, known := m.Local(op.Remote)
		coerced := false
		if known {
			// DuplicateConstruction: the local handle already exists,
			// coerce the create into an update rather than erroring.
			coerced = store.EntityExists(local)
		}
		if !known {
			local = store.CreateEntity()
			m.Insert(op.Remote, local)
		} else if !store.EntityExists(local) {
			// LateArrival: the local entity this remote used to map to
			// was destroyed already; treat the mapping as stale and
			// mint a fresh local entity instead of silently dropping a
			// legitimate create.
			local = store.CreateEntity()
			m.Insert(op.Remote, local)
			coerced = false
		}

		for _, cop := range op.Ops {
			ops, ok := store.KindOps(cop.Index)
			if !ok {
				continue
			}
			if coerced {
				ops.Replace(store, local, cop.Value)
			} else {
				ops.Emplace(store, local, cop.Value)
			}
		}
	}

	for _, op := range d.Updates {
		local, known := m.Local(op.Remote)
		if !known {
			res.UnknownRemote = append(res.UnknownRemote, op.Remote)
			continue
		}
		if !store.EntityExists(local) {
			// LateArrival: entity was destroyed between emission and
			// import; drop silently.
			continue
		}
		for _, cop := range op.Ops {
			ops, ok := store.KindOps(cop.Index)
			if !ok {
				continue
			}
			if cop.Value == nil {
				ops.Remove(store, local)
			} else {
				ops.Replace(store, local, cop.Value)
			}
		}
	}

	for _, remote := range d.Destroys {
		local, known := m.Local(remote)
		if !known {
			continue
		}
		if store.EntityExists(local) {
			store.DestroyEntity(local)
		}
		m.Remove(remote)
	}

	return res
}
