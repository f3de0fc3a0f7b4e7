package trail

import (
	"encoding/json"
	"math"
	"slices"

	"go.uber.org/zap"

	"github.com/dpup/trailgraph/internal/lib/geo"
)

// Extent is the bounding box of a graph's nodes.
type Extent struct {
	MinLatitude  float64 `json:"min_lat"`
	MaxLatitude  float64 `json:"max_lat"`
	MinLongitude float64 `json:"min_lng"`
	MaxLongitude float64 `json:"max_lng"`
	set          bool
}

// Empty reports whether no point has been added.
func (e Extent) Empty() bool {
	return !e.set
}

// Contains reports whether p is inside the box, edges included.
func (e Extent) Contains(p geo.Point) bool {
	return e.ContainsWithin(p, 0)
}

// ContainsWithin reports whether p is inside the box grown by meters on every
// side. A straight north-south or east-west graph has a zero-width box, so
// matching needs the padding to reach observers beside it.
func (e Extent) ContainsWithin(p geo.Point, meters float64) bool {
	if !e.set {
		return false
	}
	latPad := meters / geo.MetersPerDegree
	lonPad := latPad / math.Max(math.Cos(p.Latitude*math.Pi/180), 1e-6)

	return p.Latitude >= e.MinLatitude-latPad && p.Latitude <= e.MaxLatitude+latPad &&
		p.Longitude >= e.MinLongitude-lonPad && p.Longitude <= e.MaxLongitude+lonPad
}

// UnmarshalJSON marks a decoded extent as non-empty.
func (e *Extent) UnmarshalJSON(b []byte) error {
	type plain Extent
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*e = Extent(v)
	e.set = true
	return nil
}

func (e *Extent) extend(p geo.Point) {
	if !e.set {
		*e = Extent{p.Latitude, p.Latitude, p.Longitude, p.Longitude, true}
		return
	}
	e.MinLatitude = math.Min(e.MinLatitude, p.Latitude)
	e.MaxLatitude = math.Max(e.MaxLatitude, p.Latitude)
	e.MinLongitude = math.Min(e.MinLongitude, p.Longitude)
	e.MaxLongitude = math.Max(e.MaxLongitude, p.Longitude)
}

// Graph is an ordered trail. Nodes and edges live in arenas and refer to each
// other by id; the sequence holds node ids in trail order. A Graph is not safe
// for concurrent use.
type Graph struct {
	Name             string
	StartDescription string
	EndDescription   string
	LocationCode     string

	nodes    []Node
	edges    []Edge
	sequence []NodeID
	extent   Extent

	thresholds Thresholds
	logger     *zap.Logger
}

// New creates an empty graph.
func New(name string, opts ...Option) *Graph {
	g := &Graph{
		Name:       name,
		thresholds: DefaultThresholds(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Len returns the number of nodes in the sequence.
func (g *Graph) Len() int {
	return len(g.sequence)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) Node {
	return g.nodes[id]
}

// NodeAt returns the id of the node at position i in trail order.
func (g *Graph) NodeAt(i int) NodeID {
	return g.sequence[i]
}

// Edge returns the edge with the given id.
func (g *Graph) Edge(id EdgeID) Edge {
	return g.edges[id]
}

// Sequence returns a copy of the node ids in trail order.
func (g *Graph) Sequence() []NodeID {
	return slices.Clone(g.sequence)
}

// Nodes returns copies of the nodes in trail order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.sequence))
	for i, id := range g.sequence {
		out[i] = g.nodes[id]
	}
	return out
}

// Points returns the node coordinates in trail order.
func (g *Graph) Points() []geo.Point {
	out := make([]geo.Point, len(g.sequence))
	for i, id := range g.sequence {
		out[i] = g.nodes[id].Point()
	}
	return out
}

// Extent returns the graph's bounding box.
func (g *Graph) Extent() Extent {
	return g.extent
}

// Thresholds returns the graph's matching thresholds.
func (g *Graph) Thresholds() Thresholds {
	return g.thresholds
}

// InExtent reports whether p lies within the bounding box.
func (g *Graph) InExtent(p geo.Point) bool {
	return g.extent.Contains(p)
}

// Append adds n to the end of the trail, measuring the new edge with the
// precise distance formula.
func (g *Graph) Append(n Node) NodeID {
	return g.appendNode(n, math.NaN())
}

// AppendWithDistance adds n to the end of the trail using a pre-measured
// horizontal distance for the new edge.
func (g *Graph) AppendWithDistance(n Node, meters float64) NodeID {
	return g.appendNode(n, meters)
}

func (g *Graph) appendNode(n Node, meters float64) NodeID {
	n = n.unlinked()
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.extent.extend(n.Point())

	if len(g.sequence) > 0 {
		last := g.sequence[len(g.sequence)-1]
		var e Edge
		if math.IsNaN(meters) {
			e = NewEdge(last, id, g.nodes[last], n)
		} else {
			e = NewEdgeWithDistance(last, id, g.nodes[last], n, meters)
		}
		eid := g.addEdge(e)
		g.nodes[last].NextEdge = eid
		g.nodes[id].PrevEdge = eid
	}

	g.sequence = append(g.sequence, id)
	return id
}

func (g *Graph) addEdge(e Edge) EdgeID {
	id := EdgeID(len(g.edges))
	g.edges = append(g.edges, e)
	g.checkSlope(id)
	return id
}

func (g *Graph) checkSlope(id EdgeID) {
	e := g.edges[id]
	if e.isExtreme() {
		g.logger.Debug("extreme slope on edge",
			zap.String("graph", g.Name),
			zap.Int("edge", int(id)),
			zap.Float64("horizontal", e.Horizontal),
			zap.Float64("slope", e.Slope()))
	}
}

// Bookend labels the first node "to end" and the last "to start".
func (g *Graph) Bookend() {
	if len(g.sequence) == 0 {
		return
	}
	g.nodes[g.sequence[0]].Name = "to end"
	g.nodes[g.sequence[len(g.sequence)-1]].Name = "to start"
}

// Summary holds totals for a whole graph walked start to end.
type Summary struct {
	Nodes    int     `json:"nodes"`
	Edges    int     `json:"edges"`
	Distance float64 `json:"distance_meters"`
	Gain     float64 `json:"gain_meters"`
	Loss     float64 `json:"loss_meters"`
}

// Summary walks the next edges from the first node and totals distance and
// elevation change.
func (g *Graph) Summary() Summary {
	s := Summary{Nodes: len(g.sequence), Edges: len(g.edges)}
	if len(g.sequence) == 0 {
		return s
	}
	for eid := g.nodes[g.sequence[0]].NextEdge; eid != NoEdge; {
		e := g.edges[eid]
		s.Distance += e.Distance()
		if e.Vertical > 0 {
			s.Gain += e.Vertical
		} else {
			s.Loss -= e.Vertical
		}
		eid = g.nodes[e.Next].NextEdge
	}
	return s
}
