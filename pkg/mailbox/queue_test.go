package mailbox

import "testing"

func TestDrainIsFIFOAndEmpties(t *testing.T) {
	q := NewQueue()
	q.Post(SetPaused{Paused: true})
	q.Post(StepSimulation{})
	q.Post(WakeUpIsland{})

	msgs := q.Drain()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if _, ok := msgs[0].(SetPaused); !ok {
		t.Fatalf("expected FIFO order, first message was %T", msgs[0])
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue empty after drain")
	}
}

func TestDispatcherRoutesByType(t *testing.T) {
	d := NewDispatcher()
	var paused []bool
	var steps int

	On(d, func(m SetPaused) { paused = append(paused, m.Paused) })
	On(d, func(m StepSimulation) { steps++ })

	q := NewQueue()
	q.Post(SetPaused{Paused: true})
	q.Post(StepSimulation{})
	q.Post(SetPaused{Paused: false})

	d.DrainAndDispatch(q)

	if len(paused) != 2 || paused[0] != true || paused[1] != false {
		t.Fatalf("unexpected paused sink calls: %+v", paused)
	}
	if steps != 1 {
		t.Fatalf("expected 1 step call, got %d", steps)
	}
}
