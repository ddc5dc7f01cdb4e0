package island

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownIsland names the condition of a worker delta referring to
	// an island handle the coordinator has never assigned, meaning the
	// worker and coordinator have diverged on island identity. No code in
	// this package returns it: the coordinator imports worker deltas
	// without checking the island handles they carry.
	ErrUnknownIsland = errors.New("island: worker referenced an island handle unknown to the coordinator")

	// ErrWorkerTerminated names an operation attempted against a worker
	// that has already completed termination. No code in this package
	// returns it.
	ErrWorkerTerminated = errors.New("island: worker has terminated")

	// ErrUnknownEntity is returned when a caller refreshes a handle the
	// coordinator's authoritative store has no record of.
	// Coordinator.DestroyEntity returns nothing and ignores such a handle.
	ErrUnknownEntity = errors.New("island: entity unknown to the coordinator")
)

// ComponentIndexMismatch is a fatal programmer error: the coordinator and
// a worker registered component types under different indices, so a
// delta exchanged between them would silently corrupt state. The caller
// should panic with this, not attempt recovery.
type ComponentIndexMismatch struct {
	Coordinator int
	Worker      int
}

func (e ComponentIndexMismatch) Error() string {
	return fmt.Sprintf("island: component registry mismatch, coordinator has %d types, worker has %d", e.Coordinator, e.Worker)
}

// DanglingEdgeError is a fatal programmer error: a graph node was
// destroyed while an incident edge was still attached rather than being
// drained first.
type DanglingEdgeError struct {
	Node string
}

func (e DanglingEdgeError) Error() string {
	return fmt.Sprintf("island: node %s destroyed with live adjacent edges", e.Node)
}
