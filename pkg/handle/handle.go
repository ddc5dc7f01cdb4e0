// Package handle defines the generational index used as the process-local
// identity of every live object in this module: store entities, graph
// nodes, graph edges, and islands. It is grounded on the ID+Version
// generational entity pattern used across the ECS examples in the
// retrieval pack (entity index paired with a generation counter bumped on
// reuse), generalized into one shared type instead of being redefined per
// subsystem.
package handle

import "fmt"

// Handle is an opaque (index, generation) pair. The zero value is Nil and
// never denotes a live object.
type Handle struct {
	Index      uint32
	Generation uint32
}

// Nil is the handle that never refers to a live object.
var Nil = Handle{}

func (h Handle) IsNil() bool { return h == Nil }

func (h Handle) String() string {
	return fmt.Sprintf("%d:%d", h.Index, h.Generation)
}

// Allocator assigns generational handles over a dense index space, reusing
// freed indices with a bumped generation so a stale handle can never alias
// a live object.
type Allocator struct {
	generations []uint32
	alive       []bool
	free        []uint32
}

func NewAllocator() *Allocator {
	return &Allocator{}
}

// Alloc returns a fresh handle. Indices are taken from the free list
// before growing.
func (a *Allocator) Alloc() Handle {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.alive[idx] = true
		return Handle{Index: idx, Generation: a.generations[idx]}
	}

	idx := uint32(len(a.generations))
	a.generations = append(a.generations, 1)
	a.alive = append(a.alive, true)
	return Handle{Index: idx, Generation: 1}
}

// Free releases a handle's index for reuse and bumps its generation so any
// outstanding copy of h becomes stale.
func (a *Allocator) Free(h Handle) {
	if !a.IsAlive(h) {
		return
	}
	a.alive[h.Index] = false
	a.generations[h.Index]++
	a.free = append(a.free, h.Index)
}

// IsAlive reports whether h refers to a currently live object at its
// generation.
func (a *Allocator) IsAlive(h Handle) bool {
	if int(h.Index) >= len(a.generations) {
		return false
	}
	return a.alive[h.Index] && a.generations[h.Index] == h.Generation
}

func (a *Allocator) Len() int {
	n := 0
	for _, alive := range a.alive {
		if alive {
			n++
		}
	}
	return n
}
