package routing

import (
	"context"
	"errors"

	"github.com/dpup/trailgraph/internal/lib/trail"
)

// ErrGraphNotFound is returned when a graph is neither active nor stored, or
// could not be loaded.
var ErrGraphNotFound = errors.New("graph not found")

// Classification describes how an observer relates to a graph.
type Classification string

const (
	OnTrail Classification = "on_trail" // within the snap distance
	Nearby  Classification = "nearby"   // within the maximum distance to graph
	Distant Classification = "distant"  // further away
)

// Match is one graph's relation to an observer.
type Match struct {
	Route          string         `json:"route"`
	Classification Classification `json:"classification"`
	Distance       float64        `json:"distance_meters"`
	Entry          *trail.Entry   `json:"entry,omitempty"`
}

// Store persists graph snapshots for the registry. Extents reports the
// bounding box of every stored graph without loading it.
type Store interface {
	List(ctx context.Context) ([]string, error)
	Extents(ctx context.Context) (map[string]trail.Extent, error)
	Load(ctx context.Context, name string) (trail.Snapshot, error)
	Save(ctx context.Context, snap trail.Snapshot) error
	Delete(ctx context.Context, name string) error
}
