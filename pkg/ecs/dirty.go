package ecs

import (
	"github.com/solstice-phys/islands/pkg/bitset"
	"github.com/solstice-phys/islands/pkg/component"
	"github.com/solstice-phys/islands/pkg/handle"
)

type ChangeKind uint8

const (
	Created ChangeKind = iota
	Updated
	Destroyed
)

// DirtySet is the per-entity bitmap of created/updated/destroyed
// component indices accumulated during a step.
type DirtySet struct {
	CreatedSet   bitset.Set
	UpdatedSet   bitset.Set
	DestroyedSet bitset.Set
}

func (s *Store) markDirty(h handle.Handle, idx component.Index, kind ChangeKind) {
	ds, ok := s.dirty[h]
	if !ok {
		ds = &DirtySet{}
		s.dirty[h] = ds
	}
	switch kind {
	case Created:
		ds.CreatedSet.Set(uint16(idx))
	case Updated:
		ds.UpdatedSet.Set(uint16(idx))
	case Destroyed:
		ds.DestroyedSet.Set(uint16(idx))
	}
}

// Dirty returns the dirty set accumulated for h since the last ClearDirty.
func (s *Store) Dirty(h handle.Handle) (*DirtySet, bool) {
	ds, ok := s.dirty[h]
	return ds, ok
}

// DirtyEntities returns every entity with a non-empty dirty set.
func (s *Store) DirtyEntities() []handle.Handle {
	out := make([]handle.Handle, 0, len(s.dirty))
	for h := range s.dirty {
		out = append(out, h)
	}
	return out
}

// ClearDirty discards all accumulated dirty sets, called after a delta
// has been emitted.
func (s *Store) ClearDirty() {
	s.dirty = make(map[handle.Handle]*DirtySet)
}
