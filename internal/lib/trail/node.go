package trail

import (
	"github.com/dpup/trailgraph/internal/lib/geo"
)

// NodeID indexes a node in its graph's node arena.
type NodeID int

// EdgeID indexes an edge in its graph's edge arena.
type EdgeID int

const (
	// NoEdge marks an unset edge reference.
	NoEdge EdgeID = -1

	// ObserverNode stands in for the observer on a synthetic entry edge. It is
	// never a valid arena index.
	ObserverNode NodeID = -2
)

// Node is a point on a trail, optionally carrying waypoint metadata.
type Node struct {
	Latitude    float64 `json:"lat" validate:"gte=-90,lte=90"`
	Longitude   float64 `json:"lng" validate:"gte=-180,lte=180"`
	Elevation   float64 `json:"ele"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"desc,omitempty"`
	Symbol      string  `json:"sym,omitempty"`
	PrevEdge    EdgeID  `json:"prev"`
	NextEdge    EdgeID  `json:"next"`
}

// NewNode creates an unlinked node.
func NewNode(lat, lon, elevation float64) Node {
	return Node{
		Latitude:  lat,
		Longitude: lon,
		Elevation: elevation,
		PrevEdge:  NoEdge,
		NextEdge:  NoEdge,
	}
}

// NewWaypoint creates an unlinked node carrying metadata.
func NewWaypoint(lat, lon, elevation float64, name, description, symbol string) Node {
	n := NewNode(lat, lon, elevation)
	n.Name = name
	n.Description = description
	n.Symbol = symbol
	return n
}

// Point returns the node's coordinate.
func (n Node) Point() geo.Point {
	return geo.Point{Latitude: n.Latitude, Longitude: n.Longitude}
}

// ChangeLocation moves the node and clears its metadata and edges.
func (n *Node) ChangeLocation(lat, lon, elevation float64) {
	*n = NewNode(lat, lon, elevation)
}

// IsNear reports whether other lies closer than thresholdMeters to n by rough
// distance. Struct equality remains the exact identity.
func (n Node) IsNear(other Node, thresholdMeters float64) bool {
	return geo.RoughDistance(n.Point(), other.Point()) < thresholdMeters
}

// HasMetadata reports whether any of name, description or symbol is set.
func (n Node) HasMetadata() bool {
	return n.Name != "" || n.Description != "" || n.Symbol != ""
}

// mergeMetadata copies each non-empty metadata field from src.
func (n *Node) mergeMetadata(src Node) {
	if src.Name != "" {
		n.Name = src.Name
	}
	if src.Description != "" {
		n.Description = src.Description
	}
	if src.Symbol != "" {
		n.Symbol = src.Symbol
	}
}

func (n Node) unlinked() Node {
	n.PrevEdge = NoEdge
	n.NextEdge = NoEdge
	return n
}
