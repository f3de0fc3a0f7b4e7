// Package export writes trail graphs in formats other tools can display.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/twpayne/go-kml"

	"github.com/dpup/trailgraph/internal/lib/trail"
)

// KML writes g as a KML document: one LineString placemark with absolute
// altitudes for the trail and a point placemark per node carrying metadata.
// A node with only a symbol is named by it.
func KML(w io.Writer, g *trail.Graph) error {
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return fmt.Errorf("graph %s has no nodes", g.Name)
	}

	coords := make([]kml.Coordinate, 0, len(nodes))
	for _, n := range nodes {
		coords = append(coords, kml.Coordinate{Lon: n.Longitude, Lat: n.Latitude, Alt: n.Elevation})
	}

	desc := describe(g)
	children := []kml.Element{kml.Name(g.Name)}
	if desc != "" {
		children = append(children, kml.Description(desc))
	}
	children = append(children, kml.Placemark(
		kml.Name(g.Name),
		kml.LineString(
			kml.AltitudeMode(kml.AltitudeModeAbsolute),
			kml.Coordinates(coords...),
		),
	))

	for _, n := range nodes {
		if !n.HasMetadata() {
			continue
		}
		name := n.Name
		if name == "" {
			name = n.Symbol
		}
		pm := []kml.Element{kml.Name(name)}
		if n.Description != "" {
			pm = append(pm, kml.Description(n.Description))
		}
		pm = append(pm, kml.Point(
			kml.AltitudeMode(kml.AltitudeModeAbsolute),
			kml.Coordinates(kml.Coordinate{Lon: n.Longitude, Lat: n.Latitude, Alt: n.Elevation}),
		))
		children = append(children, kml.Placemark(pm...))
	}

	return kml.KML(kml.Document(children...)).WriteIndent(w, "", "  ")
}

func describe(g *trail.Graph) string {
	parts := make([]string, 0, 2)
	for _, s := range []string{g.StartDescription, g.EndDescription} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " to ")
}
