package mailbox

import (
	"time"

	"github.com/solstice-phys/islands/pkg/delta"
	"github.com/solstice-phys/islands/pkg/handle"
	"github.com/solstice-phys/islands/pkg/vecmath"
)

// IslandDelta carries a delta in either direction between the
// coordinator and a worker.
type IslandDelta struct {
	Delta delta.Delta
}

// SetPaused pauses or resumes a worker's stepping (coordinator -> worker).
type SetPaused struct {
	Paused bool
}

// StepSimulation requests one step while paused.
type StepSimulation struct{}

// Settings are the per-island tunables a worker needs to run its step
// pipeline; see island.Config for the authoritative field set.
type Settings struct {
	FixedDt            time.Duration
	SleepLinearThresh  float64
	SleepAngularThresh float64
	IslandTimeToSleep  time.Duration
	SplitDebounce      time.Duration
	MaxLaggingSteps    int
}

type SetSettings struct {
	Settings Settings
}

// MaterialTable maps a material id to restitution/friction; out-of-scope
// collision math is not part of this module, but the table itself is
// addressable state a worker must hold.
type MaterialTable struct {
	Entries map[uint32]MaterialEntry
}

type MaterialEntry struct {
	Restitution float64
	Friction    float64
}

type SetMaterialTable struct {
	Table MaterialTable
}

// SetCOM pushes a user-authored centre-of-mass override for a specific
// entity to the owning worker.
type SetCOM struct {
	Entity handle.Handle
	COM    vecmath.Vec3
}

// WakeUpIsland clears a worker's sleep tag immediately.
type WakeUpIsland struct{}

// SplitIsland is the advisory, worker -> coordinator message sent when a
// worker's local graph is no longer single-connected after the split
// debounce timer elapses. The worker cannot execute the
// split itself; only the coordinator can, since a concurrent merge may
// race.
type SplitIsland struct{}
