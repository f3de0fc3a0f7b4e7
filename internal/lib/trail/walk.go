package trail

// Step is one edge traversed in the direction of travel.
type Step struct {
	// EdgeID is NoEdge for the entry's synthetic edge.
	EdgeID EdgeID
	Edge   Edge
	From   Node
	To     Node
	ToID   NodeID
}

// Rise is the elevation change in the direction of travel.
func (s Step) Rise() float64 {
	return s.To.Elevation - s.From.Elevation
}

// Length is the corrected walking distance of the step.
func (s Step) Length() float64 {
	return s.Edge.Distance()
}

// Walk visits the entry's synthetic edge and then every graph edge beyond it
// in the entry's direction, stopping early if fn returns false.
func (g *Graph) Walk(entry *Entry, fn func(Step) bool) {
	if entry == nil {
		return
	}

	first := Step{
		EdgeID: NoEdge,
		Edge:   entry.Edge,
		From:   entry.Observer,
		To:     g.nodes[entry.Target],
		ToID:   entry.Target,
	}
	if !fn(first) {
		return
	}

	cur := entry.Target
	for {
		n := g.nodes[cur]
		eid := n.NextEdge
		if entry.Direction == TowardStart {
			eid = n.PrevEdge
		}
		if eid == NoEdge {
			return
		}

		e := g.edges[eid]
		next := e.Next
		if entry.Direction == TowardStart {
			next = e.Prev
		}
		if !fn(Step{EdgeID: eid, Edge: e, From: n, To: g.nodes[next], ToID: next}) {
			return
		}
		cur = next
	}
}
