package sim

import (
	"os"
	"testing"
	"time"

	"github.com/solstice-phys/islands/pkg/bodycomp"
	"github.com/solstice-phys/islands/pkg/collide"
	"github.com/solstice-phys/islands/pkg/component"
	"github.com/solstice-phys/islands/pkg/ecs"
	"github.com/solstice-phys/islands/pkg/handle"
	"github.com/solstice-phys/islands/pkg/island"
	"github.com/solstice-phys/islands/pkg/solve"
	"github.com/solstice-phys/islands/pkg/vecmath"
)

func newHostStore(t *testing.T) *ecs.Store {
	t.Helper()
	return ecs.NewStore(component.NewStandardRegistry(), nil)
}

func TestMain(m *testing.M) {
	Init(2, nil)
	code := m.Run()
	Deinit()
	os.Exit(code)
}

// Functions consulting a store that was never Attach-ed fail soft
// (zero value / false), never panic: the host may call Update before
// deciding to run a simulation on a given store at all.
func TestOperationsOnUnattachedStoreAreNoops(t *testing.T) {
	store := newHostStore(t)

	Update(store) // must not panic

	if IsPaused(store) {
		t.Fatalf("expected an unattached store to report not paused")
	}
	if _, ok := CreateBody(store, bodycomp.BodyClass{Class: bodycomp.ClassDynamic}); ok {
		t.Fatalf("expected CreateBody against an unattached store to fail")
	}
	if err := Refresh(store, handle.Nil, bodycomp.Position{}); err != island.ErrUnknownEntity {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
}

func TestAttachDetachLifecycle(t *testing.T) {
	store := newHostStore(t)
	Attach(store, island.DefaultConfig(), collide.SphereSphere{}, solve.NewSequentialImpulse(), nil)
	defer Detach(store)

	h, ok := CreateBody(store, bodycomp.BodyClass{Class: bodycomp.ClassDynamic},
		bodycomp.Position{Vec3: vecmath.Vec3{X: 1}},
		bodycomp.Mass{InverseMass: 1},
	)
	if !ok {
		t.Fatalf("expected CreateBody to succeed on an attached store")
	}

	if err := Refresh(store, h, bodycomp.Position{Vec3: vecmath.Vec3{X: 2}}); err != nil {
		t.Fatalf("unexpected error refreshing: %v", err)
	}

	pos, ok := PresentPosition(store, h, time.Now())
	if !ok {
		t.Fatalf("expected a presentable position")
	}
	if pos.X != 2 {
		t.Fatalf("expected refreshed position to be reflected in presentation, got %+v", pos)
	}

	Update(store)

	Detach(store)
	if _, ok := coordinatorFor(store); ok {
		t.Fatalf("expected Detach to remove the coordinator context")
	}
}

func TestSetPausedRoundTrips(t *testing.T) {
	store := newHostStore(t)
	Attach(store, island.DefaultConfig(), collide.SphereSphere{}, solve.NewSequentialImpulse(), nil)
	defer Detach(store)

	SetPaused(store, true)
	if !IsPaused(store) {
		t.Fatalf("expected store to report paused after SetPaused(true)")
	}
	SetPaused(store, false)
	if IsPaused(store) {
		t.Fatalf("expected store to report unpaused after SetPaused(false)")
	}
}
