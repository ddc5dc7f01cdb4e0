package component

// StandardNames is the declared, ordered list of component-type names
// every store in the system registers at process start. The coordinator
// and every island worker build their registry from this same slice, so
// index agreement is structural rather than negotiated at runtime.
var StandardNames = []string{
	"Position",
	"Orientation",
	"LinearVelocity",
	"AngularVelocity",
	"LinearAcceleration",
	"BodyClass",
	"Mass",
	"Shape",
	"AABB",
	"GraphNode",
	"GraphEdge",
	"IslandResident",
	"MultiIslandResident",
	"Sleeping",
	"SleepingDisabled",
	"Continuous",
	"Material",
	"ContactManifold",
	"DiscontinuityOffset",
	"Constraint",
}

// NewStandardRegistry builds a Registry from StandardNames, in order.
func NewStandardRegistry() *Registry {
	r := NewRegistry()
	for _, name := range StandardNames {
		r.Register(name)
	}
	return r
}
