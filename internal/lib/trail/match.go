package trail

import (
	"math"
	"slices"

	"go.uber.org/zap"

	"github.com/dpup/trailgraph/internal/lib/geo"
)

// InsertResult describes what InsertWaypoint did with a waypoint.
type InsertResult int

const (
	// Unmatched means the waypoint was too far from the trail; nothing changed.
	Unmatched InsertResult = iota
	// Merged means the waypoint's metadata was copied onto an existing node.
	Merged
	// Split means an edge was split around the waypoint.
	Split
)

// Ok reports whether the waypoint landed on the graph.
func (r InsertResult) Ok() bool {
	return r != Unmatched
}

func (r InsertResult) String() string {
	switch r {
	case Merged:
		return "merged"
	case Split:
		return "split"
	}
	return "unmatched"
}

// NearestNodeIndex returns the sequence position of the node closest to p by
// rough distance, or -1 for an empty graph. Ties go to the lower index.
func (g *Graph) NearestNodeIndex(p geo.Point) int {
	best := -1
	bestDist := math.Inf(1)
	for i, id := range g.sequence {
		d := geo.RoughDistance(g.nodes[id].Point(), p)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// NearestNode returns the node closest to p and its precise distance. ok is
// false for an empty graph.
func (g *Graph) NearestNode(p geo.Point) (node Node, distance float64, ok bool) {
	i := g.NearestNodeIndex(p)
	if i < 0 {
		return Node{}, math.Inf(1), false
	}
	node = g.nodes[g.sequence[i]]
	return node, geo.PreciseDistance(node.Point(), p), true
}

// closestEdge searches both edges of every node within the search window
// around sequence position idx and returns the edge nearest p by
// perpendicular distance. The distance is geo.NotPerpendicular when no edge
// in the window has p alongside it.
func (g *Graph) closestEdge(p geo.Point, idx int) (EdgeID, float64) {
	lo := max(idx-g.thresholds.SearchWindow, 0)
	hi := min(idx+g.thresholds.SearchWindow+1, len(g.sequence))

	best := NoEdge
	bestDist := geo.NotPerpendicular
	for _, id := range g.sequence[lo:hi] {
		n := g.nodes[id]
		for _, eid := range [2]EdgeID{n.PrevEdge, n.NextEdge} {
			if eid == NoEdge {
				continue
			}
			e := g.edges[eid]
			d := geo.PointToSegmentDistance(p, g.nodes[e.Prev].Point(), g.nodes[e.Next].Point())
			if d < bestDist {
				best, bestDist = eid, d
			}
		}
	}
	return best, bestDist
}

// InsertWaypoint places a waypoint on the trail. A waypoint within the node
// match threshold of an existing node only contributes its metadata.
// Otherwise, if it lies beside an edge within the edge match threshold, the
// edge is split in two around it. Anything else leaves the graph untouched.
func (g *Graph) InsertWaypoint(n Node) InsertResult {
	idx := g.NearestNodeIndex(n.Point())
	if idx < 0 {
		return Unmatched
	}

	nearID := g.sequence[idx]
	if g.nodes[nearID].IsNear(n, g.thresholds.NodeMatch) {
		g.nodes[nearID].mergeMetadata(n)
		return Merged
	}

	eid, d := g.closestEdge(n.Point(), idx)
	if eid == NoEdge || d >= g.thresholds.EdgeMatch {
		g.logger.Debug("waypoint not near graph",
			zap.String("graph", g.Name),
			zap.String("waypoint", n.Name),
			zap.Float64("distance", d))
		return Unmatched
	}

	g.split(eid, n)
	return Split
}

// split replaces edge eid (prev->next) with prev->n and n->next. The first
// half reuses eid so the edge arena stays dense.
func (g *Graph) split(eid EdgeID, n Node) {
	old := g.edges[eid]
	prevID, nextID := old.Prev, old.Next
	prev, next := g.nodes[prevID], g.nodes[nextID]

	// The halves share the old edge's run, which may have been supplied
	// rather than measured.
	h1 := geo.PreciseDistance(prev.Point(), n.Point())
	h2 := geo.PreciseDistance(n.Point(), next.Point())
	if sum := h1 + h2; sum > 0 && old.Horizontal > 0 {
		scale := old.Horizontal / sum
		h1, h2 = h1*scale, h2*scale
	}

	n = n.unlinked()
	lo := math.Min(prev.Elevation, next.Elevation) - g.thresholds.ElevationTolerance
	hi := math.Max(prev.Elevation, next.Elevation) + g.thresholds.ElevationTolerance
	if math.IsNaN(n.Elevation) || n.Elevation < lo || n.Elevation > hi {
		n.Elevation = ElevationAlong(prev, next, old, h1, TowardEnd)
	}

	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.extent.extend(n.Point())

	g.edges[eid] = NewEdgeWithDistance(prevID, id, prev, n, h1)
	g.checkSlope(eid)
	second := g.addEdge(NewEdgeWithDistance(id, nextID, n, next, h2))

	g.nodes[prevID].NextEdge = eid
	g.nodes[id].PrevEdge = eid
	g.nodes[id].NextEdge = second
	g.nodes[nextID].PrevEdge = second

	at := slices.Index(g.sequence, nextID)
	g.sequence = slices.Insert(g.sequence, at, id)
}

// Entry is where an observer joins the trail. It is derived for a single
// query and never becomes part of the graph.
type Entry struct {
	// Observer is the observer's position with a trail-consistent elevation.
	Observer Node
	// Edge joins the observer to Target in the direction of travel. Its
	// observer end is ObserverNode.
	Edge Edge
	// Target is the graph node the walk continues from.
	Target NodeID
	// Distance from the observer to the trail in meters.
	Distance  float64
	Direction Direction
	// OnNode is set when the observer matched an existing node.
	OnNode bool
}

// EntryEdge finds how an observer joins the trail when heading in dir.
// Observers further than snapMeters from the trail get a nil entry; the
// returned distance then tells the caller how far off they are.
//
// An observer elevation of exactly zero is treated as unknown and replaced
// with the nearest node's elevation.
func (g *Graph) EntryEdge(observer Node, snapMeters float64, dir Direction) (*Entry, float64) {
	idx := g.NearestNodeIndex(observer.Point())
	if idx < 0 {
		return nil, math.Inf(1)
	}

	observer = observer.unlinked()
	nearID := g.sequence[idx]
	near := g.nodes[nearID]
	if observer.Elevation == 0 {
		observer.Elevation = near.Elevation
	}
	nearDist := geo.PreciseDistance(observer.Point(), near.Point())

	if !g.extent.ContainsWithin(observer.Point(), snapMeters) {
		return nil, nearDist
	}

	if near.IsNear(observer, g.thresholds.NodeMatch) {
		anchor := near.unlinked()
		return &Entry{
			Observer:  anchor,
			Edge:      g.syntheticEdge(anchor, nearID, 0, dir),
			Target:    nearID,
			Distance:  nearDist,
			Direction: dir,
			OnNode:    true,
		}, nearDist
	}

	eid, edgeDist := g.closestEdge(observer.Point(), idx)
	if eid != NoEdge && edgeDist <= snapMeters {
		e := g.edges[eid]
		prev, next := g.nodes[e.Prev], g.nodes[e.Next]
		along := geo.PreciseDistance(prev.Point(), observer.Point())
		observer.Elevation = ElevationAlong(prev, next, e, along, TowardEnd)

		target := e.Next
		if dir == TowardStart {
			target = e.Prev
		}
		return g.entryTo(observer, target, edgeDist, dir), edgeDist
	}

	if nearDist <= snapMeters {
		return g.entryTo(observer, nearID, nearDist, dir), nearDist
	}

	return nil, math.Min(nearDist, edgeDist)
}

func (g *Graph) entryTo(observer Node, target NodeID, distance float64, dir Direction) *Entry {
	h := geo.PreciseDistance(observer.Point(), g.nodes[target].Point())
	return &Entry{
		Observer:  observer,
		Edge:      g.syntheticEdge(observer, target, h, dir),
		Target:    target,
		Distance:  distance,
		Direction: dir,
	}
}

// syntheticEdge orients the observer edge the same way graph edges are
// oriented: toward the end the observer is prev, toward the start it is next.
func (g *Graph) syntheticEdge(observer Node, target NodeID, h float64, dir Direction) Edge {
	if dir == TowardStart {
		return NewEdgeWithDistance(target, ObserverNode, g.nodes[target], observer, h)
	}
	return NewEdgeWithDistance(ObserverNode, target, observer, g.nodes[target], h)
}

// ElevationBetween interpolates the elevation distance meters into edge eid,
// measured from prev when heading toward the end and from next otherwise.
func (g *Graph) ElevationBetween(eid EdgeID, distance float64, dir Direction) float64 {
	e := g.edges[eid]
	return ElevationAlong(g.nodes[e.Prev], g.nodes[e.Next], e, distance, dir)
}
