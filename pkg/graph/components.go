package graph

// Component is a maximal connected piece of the graph: connecting nodes
// reachable from each other through edges whose endpoints are both
// connecting, plus every non-connecting node (and the edge that reaches
// it) that touches any of those connecting nodes. A non-connecting node
// adjacent to two different connecting components appears in both.
type Component struct {
	Nodes []NodeIndex
	Edges []EdgeIndex
}

// ConnectedComponents partitions the connecting node set by BFS over
// connecting-to-connecting edges, then attaches non-connecting nodes to
// every component that reaches them.
func (g *Graph) ConnectedComponents() []Component {
	visited := make(map[NodeIndex]bool)
	var components []Component

	for n, nd := range g.nodes {
		if !nd.connecting || visited[n] {
			continue
		}

		comp := Component{}
		queue := []NodeIndex{n}
		visited[n] = true
		coreNodes := make(map[NodeIndex]bool)
		coreEdges := make(map[EdgeIndex]bool)

		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			coreNodes[cur] = true

			for _, e := range g.nodes[cur].edges {
				ed := g.edges[e]
				if ed == nil {
					continue
				}
				other := ed.n1
				if other == cur {
					other = ed.n0
				}
				otherNode, ok := g.nodes[other]
				if !ok || !otherNode.connecting {
					continue
				}
				coreEdges[e] = true
				if !visited[other] {
					visited[other] = true
					queue = append(queue, other)
				}
			}
		}

		for cn := range coreNodes {
			comp.Nodes = append(comp.Nodes, cn)
		}
		for ce := range coreEdges {
			comp.Edges = append(comp.Edges, ce)
		}
		components = append(components, comp)
	}

	g.attachNonConnecting(components)
	return components
}

// attachNonConnecting adds every non-connecting node, and the edges that
// reach it, to each component containing one of its connecting neighbours.
func (g *Graph) attachNonConnecting(components []Component) {
	memberOf := make(map[NodeIndex][]int)
	for ci, comp := range components {
		for _, n := range comp.Nodes {
			memberOf[n] = append(memberOf[n], ci)
		}
	}

	for n, nd := range g.nodes {
		if nd.connecting {
			continue
		}
		touched := make(map[int]bool)
		touchedEdges := make(map[int][]EdgeIndex)
		for _, e := range nd.edges {
			ed := g.edges[e]
			if ed == nil {
				continue
			}
			other := ed.n1
			if other == n {
				other = ed.n0
			}
			for _, ci := range memberOf[other] {
				touched[ci] = true
				touchedEdges[ci] = append(touchedEdges[ci], e)
			}
		}
		for ci := range touched {
			components[ci].Nodes = append(components[ci].Nodes, n)
			components[ci].Edges = append(components[ci].Edges, touchedEdges[ci]...)
		}
	}
}

// IsSingleConnectedComponent is a fast-path early exit: it checks single
// connectivity of the connecting subgraph without materializing the
// full component list.
func (g *Graph) IsSingleConnectedComponent() bool {
	var start NodeIndex
	found := false
	total := 0
	for n, nd := range g.nodes {
		if nd.connecting {
			total++
			if !found {
				start = n
				found = true
			}
		}
	}
	if total <= 1 {
		return true
	}

	visited := make(map[NodeIndex]bool)
	queue := []NodeIndex{start}
	visited[start] = true
	count := 1

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.nodes[cur].edges {
			ed := g.edges[e]
			if ed == nil {
				continue
			}
			other := ed.n1
			if other == cur {
				other = ed.n0
			}
			otherNode, ok := g.nodes[other]
			if !ok || !otherNode.connecting || visited[other] {
				continue
			}
			visited[other] = true
			count++
			queue = append(queue, other)
		}
	}

	return count == total
}
