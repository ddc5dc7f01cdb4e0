// Package ecs implements the entity store: a
// columnar container keyed by generational entity handles, with
// emplace/replace/remove/has/get operations, construct/destroy signals,
// composable views, and per-entity dirty tracking. One Store instance
// exists per worker plus one in the coordinator; concurrency across
// stores is obtained by running one store per goroutine, never by sharing
// a store across goroutines.
//
// The design is grounded on the teacher's componentStore/World pair
// (pkg/world/world.go in the retrieval pack), adapted to key components by
// a stable component.Index instead of a reflect.Type so the index is
// usable as delta wire identity, and on the generational Entity{ID,
// Version} pattern from the lazyecs example.
package ecs

import (
	"github.com/solstice-phys/islands/pkg/axlog"
	"github.com/solstice-phys/islands/pkg/component"
	"github.com/solstice-phys/islands/pkg/handle"
)

// Component is implemented by every concrete component type; Index
// returns the stable, process-wide wire identity for the type.
type Component interface {
	Index() component.Index
}

type column struct {
	data map[handle.Handle]any
}

func newColumn() *column {
	return &column{data: make(map[handle.Handle]any)}
}

// KindOps is the index-keyed dispatch table that lets delta import and
// other type-erased callers mutate a store without a compile-time type
// parameter. It is the Design Notes' replacement for the source's
// variadic constraint-tuple style of type dispatch.
type KindOps struct {
	Emplace func(s *Store, h handle.Handle, v any)
	Replace func(s *Store, h handle.Handle, v any)
	Remove  func(s *Store, h handle.Handle)
	Get     func(s *Store, h handle.Handle) (any, bool)
}

type signalSlot struct {
	onConstruct []func(h handle.Handle, v any)
	onDestroy   []func(h handle.Handle, v any)
}

type Store struct {
	Reg    *component.Registry
	Logger axlog.Logger
	Alloc  *handle.Allocator

	columns  map[component.Index]*column
	kinds    map[component.Index]KindOps
	signals  map[component.Index]*signalSlot
	entities map[handle.Handle]struct{}

	dirty      map[handle.Handle]*DirtySet
	continuous map[handle.Handle][]component.Index

	// Attachment is set by a host engine facade (e.g. pkg/sim) at
	// attach-time and cleared at detach-time; the store never interprets
	// it itself. This is the Design Notes' per-store context struct,
	// accessed by field rather than by global type lookup.
	Attachment any
}

func NewStore(reg *component.Registry, logger axlog.Logger) *Store {
	if logger == nil {
		logger = axlog.Nop{}
	}
	return &Store{
		Reg:        reg,
		Logger:     logger,
		Alloc:      handle.NewAllocator(),
		columns:    make(map[component.Index]*column),
		kinds:      make(map[component.Index]KindOps),
		signals:    make(map[component.Index]*signalSlot),
		entities:   make(map[handle.Handle]struct{}),
		dirty:      make(map[handle.Handle]*DirtySet),
		continuous: make(map[handle.Handle][]component.Index),
	}
}

func (s *Store) CreateEntity() handle.Handle {
	h := s.Alloc.Alloc()
	s.entities[h] = struct{}{}
	return h
}

// adoptEntity installs h as a live entity without allocating a fresh
// index. Nothing in the module calls it; delta import allocates local
// handles through CreateEntity.
func (s *Store) adoptEntity(h handle.Handle) {
	s.entities[h] = struct{}{}
}

func (s *Store) DestroyEntity(h handle.Handle) {
	if !s.Alloc.IsAlive(h) {
		return
	}
	for idx, col := range s.columns {
		if v, ok := col.data[h]; ok {
			delete(col.data, h)
			s.fireDestroy(idx, h, v)
			s.markDirty(h, idx, Destroyed)
		}
	}
	delete(s.entities, h)
	delete(s.continuous, h)
	s.Alloc.Free(h)
}

func (s *Store) EntityExists(h handle.Handle) bool {
	_, ok := s.entities[h]
	return ok && s.Alloc.IsAlive(h)
}

func (s *Store) column(idx component.Index) *column {
	c, ok := s.columns[idx]
	if !ok {
		c = newColumn()
		s.columns[idx] = c
	}
	return c
}

func (s *Store) fireConstruct(idx component.Index, h handle.Handle, v any) {
	slot, ok := s.signals[idx]
	if !ok {
		return
	}
	for _, fn := range slot.onConstruct {
		fn(h, v)
	}
}

func (s *Store) fireDestroy(idx component.Index, h handle.Handle, v any) {
	slot, ok := s.signals[idx]
	if !ok {
		return
	}
	for _, fn := range slot.onDestroy {
		fn(h, v)
	}
}

// Emplace installs a brand-new component value for h, firing the
// construct signal and marking the write in h's dirty set.
func Emplace[T Component](s *Store, h handle.Handle, v T) {
	idx := v.Index()
	col := s.column(idx)
	col.data[h] = v
	s.fireConstruct(idx, h, v)
	s.markDirty(h, idx, Created)
}

// Replace overwrites an existing component value without firing the
// construct signal.
func Replace[T Component](s *Store, h handle.Handle, v T) {
	idx := v.Index()
	col := s.column(idx)
	col.data[h] = v
	s.markDirty(h, idx, Updated)
}

func Remove[T Component](s *Store, h handle.Handle) {
	var zero T
	idx := zero.Index()
	col, ok := s.columns[idx]
	if !ok {
		return
	}
	v, ok := col.data[h]
	if !ok {
		return
	}
	delete(col.data, h)
	s.fireDestroy(idx, h, v)
	s.markDirty(h, idx, Destroyed)
}

func Has[T Component](s *Store, h handle.Handle) bool {
	var zero T
	idx := zero.Index()
	col, ok := s.columns[idx]
	if !ok {
		return false
	}
	_, ok = col.data[h]
	return ok
}

func Get[T Component](s *Store, h handle.Handle) (T, bool) {
	var zero T
	idx := zero.Index()
	col, ok := s.columns[idx]
	if !ok {
		return zero, false
	}
	v, ok := col.data[h]
	if !ok {
		return zero, false
	}
	return v.(T), true
}

// Mutate reads, applies fn, and writes back a component in one step.
func Mutate[T Component](s *Store, h handle.Handle, fn func(*T)) bool {
	v, ok := Get[T](s, h)
	if !ok {
		return false
	}
	fn(&v)
	Replace(s, h, v)
	return true
}

// RegisterKind installs the index-keyed dispatch table for T, used by
// delta import and anything else that must mutate a store generically.
// Every store in the system must call this for the same set of types.
func RegisterKind[T Component](s *Store) component.Index {
	var zero T
	idx := zero.Index()
	s.kinds[idx] = KindOps{
		Emplace: func(s *Store, h handle.Handle, v any) { Emplace(s, h, v.(T)) },
		Replace: func(s *Store, h handle.Handle, v any) { Replace(s, h, v.(T)) },
		Remove:  func(s *Store, h handle.Handle) { Remove[T](s, h) },
		Get:     func(s *Store, h handle.Handle) (any, bool) { return Get[T](s, h) },
	}
	return idx
}

func (s *Store) KindOps(idx component.Index) (KindOps, bool) {
	ops, ok := s.kinds[idx]
	return ops, ok
}

// OnConstruct installs a callback invoked synchronously whenever a T is
// emplaced onto any entity.
func OnConstruct[T Component](s *Store, fn func(h handle.Handle, v T)) {
	var zero T
	idx := zero.Index()
	slot := s.signalSlot(idx)
	slot.onConstruct = append(slot.onConstruct, func(h handle.Handle, v any) { fn(h, v.(T)) })
}

// OnDestroy installs a callback invoked synchronously whenever a T is
// removed from any entity (including via DestroyEntity).
func OnDestroy[T Component](s *Store, fn func(h handle.Handle, v T)) {
	var zero T
	idx := zero.Index()
	slot := s.signalSlot(idx)
	slot.onDestroy = append(slot.onDestroy, func(h handle.Handle, v any) { fn(h, v.(T)) })
}

func (s *Store) signalSlot(idx component.Index) *signalSlot {
	slot, ok := s.signals[idx]
	if !ok {
		slot = &signalSlot{}
		s.signals[idx] = slot
	}
	return slot
}

// SetContinuous installs the bounded set of component indices the owning
// worker must ship back every step for h, regardless of whether it changed.
func (s *Store) SetContinuous(h handle.Handle, idxs ...component.Index) error {
	if len(idxs) > component.MaxContinuous {
		return ErrContinuousTooLarge
	}
	cp := make([]component.Index, len(idxs))
	copy(cp, idxs)
	s.continuous[h] = cp
	return nil
}

func (s *Store) Continuous(h handle.Handle) []component.Index {
	return s.continuous[h]
}
