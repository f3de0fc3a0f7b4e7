package trail

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrCorruptGraph is returned when a persisted graph fails validation.
var ErrCorruptGraph = errors.New("corrupt graph snapshot")

// SnapshotVersion is the current persisted layout version.
const SnapshotVersion = 1

var validate = validator.New()

// Snapshot is the persisted shape of a graph. Nodes and edges refer to each
// other by arena index.
type Snapshot struct {
	Version          int      `json:"version" validate:"eq=1"`
	Name             string   `json:"name" validate:"required"`
	StartDescription string   `json:"start_description,omitempty"`
	EndDescription   string   `json:"end_description,omitempty"`
	LocationCode     string   `json:"location_code,omitempty"`
	Nodes            []Node   `json:"nodes" validate:"required,min=1,dive"`
	Edges            []Edge   `json:"edges" validate:"dive"`
	Sequence         []NodeID `json:"sequence" validate:"required,min=1"`
}

// Snapshot captures the graph for persistence.
func (g *Graph) Snapshot() Snapshot {
	return Snapshot{
		Version:          SnapshotVersion,
		Name:             g.Name,
		StartDescription: g.StartDescription,
		EndDescription:   g.EndDescription,
		LocationCode:     g.LocationCode,
		Nodes:            append([]Node(nil), g.nodes...),
		Edges:            append([]Edge(nil), g.edges...),
		Sequence:         append([]NodeID(nil), g.sequence...),
	}
}

// FromSnapshot validates s and rebuilds the graph it describes.
func FromSnapshot(s Snapshot, opts ...Option) (*Graph, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	g := New(s.Name, opts...)
	g.StartDescription = s.StartDescription
	g.EndDescription = s.EndDescription
	g.LocationCode = s.LocationCode
	g.nodes = append([]Node(nil), s.Nodes...)
	g.edges = append([]Edge(nil), s.Edges...)
	g.sequence = append([]NodeID(nil), s.Sequence...)
	for _, n := range g.nodes {
		g.extent.extend(n.Point())
	}
	return g, nil
}

// Validate checks field ranges and that the node, edge and sequence arenas
// describe a single linked chain.
func (s Snapshot) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptGraph, err)
	}

	if len(s.Sequence) != len(s.Nodes) {
		return corrupt("sequence has %d nodes, arena has %d", len(s.Sequence), len(s.Nodes))
	}
	if len(s.Edges) != len(s.Nodes)-1 {
		return corrupt("%d nodes need %d edges, found %d", len(s.Nodes), len(s.Nodes)-1, len(s.Edges))
	}

	seen := make([]bool, len(s.Nodes))
	for i, id := range s.Sequence {
		if id < 0 || int(id) >= len(s.Nodes) {
			return corrupt("sequence[%d] refers to missing node %d", i, id)
		}
		if seen[id] {
			return corrupt("node %d appears twice in sequence", id)
		}
		seen[id] = true
	}

	last := len(s.Sequence) - 1
	for i, id := range s.Sequence {
		n := s.Nodes[id]

		if i == 0 {
			if n.PrevEdge != NoEdge {
				return corrupt("first node %d has a previous edge", id)
			}
		} else if err := s.checkLink(n.PrevEdge, s.Sequence[i-1], id); err != nil {
			return err
		}

		if i == last {
			if n.NextEdge != NoEdge {
				return corrupt("last node %d has a next edge", id)
			}
		} else if err := s.checkLink(n.NextEdge, id, s.Sequence[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func (s Snapshot) checkLink(eid EdgeID, prev, next NodeID) error {
	if eid < 0 || int(eid) >= len(s.Edges) {
		return corrupt("edge %d between nodes %d and %d is missing", eid, prev, next)
	}
	e := s.Edges[eid]
	if e.Prev != prev || e.Next != next {
		return corrupt("edge %d links %d->%d, expected %d->%d", eid, e.Prev, e.Next, prev, next)
	}
	return nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptGraph, fmt.Sprintf(format, args...))
}
