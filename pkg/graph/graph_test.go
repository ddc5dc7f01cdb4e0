package graph

import (
	"testing"

	"github.com/solstice-phys/islands/pkg/handle"
)

func TestInsertRemoveNodeDrainsEdges(t *testing.T) {
	g := New()
	a := g.InsertNode(handle.Handle{Index: 1, Generation: 1}, true)
	b := g.InsertNode(handle.Handle{Index: 2, Generation: 1}, true)
	e := g.InsertEdge(handle.Handle{Index: 3, Generation: 1}, a, b)

	removed := g.RemoveNode(a)
	if len(removed) != 1 {
		t.Fatalf("expected 1 removed edge entity, got %d", len(removed))
	}
	if g.EdgeCount() != 0 {
		t.Fatalf("expected edge removed alongside node")
	}
	_, _, ok := g.EdgeEndpoints(e)
	if ok {
		t.Fatalf("expected edge to no longer exist")
	}
}

func TestConnectedComponentsTwoPairs(t *testing.T) {
	g := New()
	a1 := g.InsertNode(handle.Handle{Index: 1, Generation: 1}, true)
	a2 := g.InsertNode(handle.Handle{Index: 2, Generation: 1}, true)
	b1 := g.InsertNode(handle.Handle{Index: 3, Generation: 1}, true)
	b2 := g.InsertNode(handle.Handle{Index: 4, Generation: 1}, true)

	g.InsertEdge(handle.Handle{Index: 10, Generation: 1}, a1, a2)
	g.InsertEdge(handle.Handle{Index: 11, Generation: 1}, b1, b2)

	comps := g.ConnectedComponents()
	if len(comps) != 2 {
		t.Fatalf("expected 2 components, got %d", len(comps))
	}
	for _, c := range comps {
		if len(c.Nodes) != 2 || len(c.Edges) != 1 {
			t.Fatalf("expected 2 nodes/1 edge per component, got %d/%d", len(c.Nodes), len(c.Edges))
		}
	}
	if g.IsSingleConnectedComponent() {
		t.Fatalf("two disjoint pairs must not be single connected")
	}

	// Bridge the two pairs: one island.
	g.InsertEdge(handle.Handle{Index: 12, Generation: 1}, a2, b1)
	if !g.IsSingleConnectedComponent() {
		t.Fatalf("expected single connected component after bridging")
	}
	comps = g.ConnectedComponents()
	if len(comps) != 1 || len(comps[0].Nodes) != 4 || len(comps[0].Edges) != 3 {
		t.Fatalf("expected 1 component with 4 nodes/3 edges, got %+v", comps)
	}
}

func TestNonConnectingNodeJoinsTouchingComponents(t *testing.T) {
	g := New()
	dyn1 := g.InsertNode(handle.Handle{Index: 1, Generation: 1}, true)
	dyn2 := g.InsertNode(handle.Handle{Index: 2, Generation: 1}, true)
	static := g.InsertNode(handle.Handle{Index: 3, Generation: 1}, false)

	g.InsertEdge(handle.Handle{Index: 10, Generation: 1}, dyn1, static)
	g.InsertEdge(handle.Handle{Index: 11, Generation: 1}, dyn2, static)

	comps := g.ConnectedComponents()
	if len(comps) != 2 {
		t.Fatalf("expected 2 connecting components, got %d", len(comps))
	}
	for _, c := range comps {
		found := false
		for _, n := range c.Nodes {
			if n == static {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected static node to be replicated into every touching component")
		}
	}
}
