package mailbox

import "reflect"

// Dispatcher routes drained messages to sinks registered by concrete
// type, the generic analog of the teacher's reflect.Type-keyed message
// stores and router trees (pkg/ecs, pkg/server/router.go in the
// retrieval pack).
type Dispatcher struct {
	sinks map[reflect.Type][]func(Message)
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{sinks: make(map[reflect.Type][]func(Message))}
}

// On registers fn to run for every drained message of type T.
func On[T Message](d *Dispatcher, fn func(T)) {
	t := reflect.TypeFor[T]()
	d.sinks[t] = append(d.sinks[t], func(m Message) { fn(m.(T)) })
}

// Dispatch delivers m to every sink registered for its dynamic type.
// Unrecognised message types are silently ignored.
func (d *Dispatcher) Dispatch(m Message) {
	t := reflect.TypeOf(m)
	for _, fn := range d.sinks[t] {
		fn(m)
	}
}

// DrainAndDispatch drains q and dispatches every message in order.
func (d *Dispatcher) DrainAndDispatch(q *Queue) {
	for _, m := range q.Drain() {
		d.Dispatch(m)
	}
}
