// Package graph implements the interaction graph: an
// undirected multigraph of bodies (nodes) and constraints/manifolds
// (edges), supporting incremental insert/remove and connected-component
// queries. Nodes and edges use the same generational handle scheme as the
// entity store (pkg/handle), so a stale index can never alias a live node
// or edge after removal.
//
// There is no direct teacher analog for a connectivity graph in the
// retrieval pack; this package follows the generational-index storage
// convention established by pkg/handle and pkg/ecs rather than
// introducing a separate identity scheme.
package graph

import "github.com/solstice-phys/islands/pkg/handle"

type NodeIndex = handle.Handle
type EdgeIndex = handle.Handle

type node struct {
	entity     handle.Handle
	connecting bool
	edges      []EdgeIndex // incident edges, multigraph permitted
}

type edge struct {
	entity handle.Handle
	n0, n1 NodeIndex
}

type Graph struct {
	nodeAlloc *handle.Allocator
	edgeAlloc *handle.Allocator
	nodes     map[NodeIndex]*node
	edges     map[EdgeIndex]*edge
}

func New() *Graph {
	return &Graph{
		nodeAlloc: handle.NewAllocator(),
		edgeAlloc: handle.NewAllocator(),
		nodes:     make(map[NodeIndex]*node),
		edges:     make(map[EdgeIndex]*edge),
	}
}

func (g *Graph) InsertNode(entity handle.Handle, connecting bool) NodeIndex {
	idx := g.nodeAlloc.Alloc()
	g.nodes[idx] = &node{entity: entity, connecting: connecting}
	return idx
}

// RemoveNode removes n and every incident edge first, returning the
// entities that owned those edges so the caller can signal their
// destruction: incident edges are drained before the node itself is
// removed, so every owning entity gets a destruction signal.
func (g *Graph) RemoveNode(n NodeIndex) []handle.Handle {
	nd, ok := g.nodes[n]
	if !ok {
		return nil
	}

	removedEntities := make([]handle.Handle, 0, len(nd.edges))
	for _, e := range append([]EdgeIndex{}, nd.edges...) {
		if ed, ok := g.edges[e]; ok {
			removedEntities = append(removedEntities, ed.entity)
		}
		g.removeEdgeIndex(e)
	}

	delete(g.nodes, n)
	g.nodeAlloc.Free(n)
	return removedEntities
}

func (g *Graph) InsertEdge(entity handle.Handle, n0, n1 NodeIndex) EdgeIndex {
	idx := g.edgeAlloc.Alloc()
	g.edges[idx] = &edge{entity: entity, n0: n0, n1: n1}
	if nd, ok := g.nodes[n0]; ok {
		nd.edges = append(nd.edges, idx)
	}
	if n1 != n0 {
		if nd, ok := g.nodes[n1]; ok {
			nd.edges = append(nd.edges, idx)
		}
	} else if nd, ok := g.nodes[n0]; ok {
		nd.edges = append(nd.edges, idx)
	}
	return idx
}

func (g *Graph) RemoveEdge(e EdgeIndex) {
	g.removeEdgeIndex(e)
}

func (g *Graph) removeEdgeIndex(e EdgeIndex) {
	ed, ok := g.edges[e]
	if !ok {
		return
	}
	detach := func(n NodeIndex) {
		nd, ok := g.nodes[n]
		if !ok {
			return
		}
		for i, inc := range nd.edges {
			if inc == e {
				nd.edges = append(nd.edges[:i], nd.edges[i+1:]...)
				break
			}
		}
	}
	detach(ed.n0)
	if ed.n1 != ed.n0 {
		detach(ed.n1)
	}
	delete(g.edges, e)
	g.edgeAlloc.Free(e)
}

func (g *Graph) VisitEdges(n NodeIndex, fn func(EdgeIndex)) {
	nd, ok := g.nodes[n]
	if !ok {
		return
	}
	for _, e := range nd.edges {
		fn(e)
	}
}

func (g *Graph) VisitNeighbours(n NodeIndex, fn func(NodeIndex)) {
	nd, ok := g.nodes[n]
	if !ok {
		return
	}
	for _, e := range nd.edges {
		ed := g.edges[e]
		if ed == nil {
			continue
		}
		if ed.n0 == n {
			fn(ed.n1)
		} else {
			fn(ed.n0)
		}
	}
}

func (g *Graph) HasAdjacency(n0, n1 NodeIndex) bool {
	found := false
	g.VisitNeighbours(n0, func(n NodeIndex) {
		if n == n1 {
			found = true
		}
	})
	return found
}

func (g *Graph) NodeEntity(n NodeIndex) (handle.Handle, bool) {
	nd, ok := g.nodes[n]
	if !ok {
		return handle.Nil, false
	}
	return nd.entity, true
}

func (g *Graph) EdgeEntity(e EdgeIndex) (handle.Handle, bool) {
	ed, ok := g.edges[e]
	if !ok {
		return handle.Nil, false
	}
	return ed.entity, true
}

func (g *Graph) EdgeEndpoints(e EdgeIndex) (NodeIndex, NodeIndex, bool) {
	ed, ok := g.edges[e]
	if !ok {
		return handle.Nil, handle.Nil, false
	}
	return ed.n0, ed.n1, true
}

func (g *Graph) IsConnecting(n NodeIndex) bool {
	nd, ok := g.nodes[n]
	return ok && nd.connecting
}

func (g *Graph) NodeCount() int { return len(g.nodes) }
func (g *Graph) EdgeCount() int { return len(g.edges) }

func (g *Graph) Nodes() []NodeIndex {
	out := make([]NodeIndex, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	return out
}
