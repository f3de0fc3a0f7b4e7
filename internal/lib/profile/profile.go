// Package profile walks a trail from an observer and accumulates what lies
// ahead: distance, time, elevation gain and loss, and notable waypoints.
package profile

import (
	"strings"

	"github.com/dpup/trailgraph/internal/lib/pace"
	"github.com/dpup/trailgraph/internal/lib/trail"
)

// Kind classifies a waypoint marker.
type Kind string

const (
	Water    Kind = "water"
	Campsite Kind = "campsite"
	Info     Kind = "info"
)

// KindOf classifies a waypoint by the codes in its name.
func KindOf(name string) Kind {
	switch {
	case strings.Contains(name, "WA"), strings.Contains(name, "WR"):
		return Water
	case strings.Contains(name, "CS"):
		return Campsite
	}
	return Info
}

// Totals are cumulative measures from the observer.
type Totals struct {
	Distance float64 `json:"distance_meters"`
	Time     float64 `json:"time_hours"`
	Gain     float64 `json:"gain_meters"`
	Loss     float64 `json:"loss_meters"`
}

// Segment is one edge of the profile.
type Segment struct {
	// Horizontal offsets from the observer
	Start float64 `json:"start_meters"`
	End   float64 `json:"end_meters"`

	StartElevation float64         `json:"start_elevation"`
	EndElevation   float64         `json:"end_elevation"`
	Length         float64         `json:"length_meters"`
	Pace           float64         `json:"pace_kmh"`
	Difficulty     pace.Difficulty `json:"difficulty"`

	// Approach marks the segment from the observer onto the trail.
	Approach bool `json:"approach,omitempty"`

	// Before holds the totals at the start of the segment.
	Before Totals `json:"before"`
}

func (s Segment) rise() float64 {
	return s.EndElevation - s.StartElevation
}

// Marker is a described waypoint ahead of the observer.
type Marker struct {
	Node   trail.Node `json:"node"`
	Kind   Kind       `json:"kind"`
	Offset float64    `json:"offset_meters"`
	Totals Totals     `json:"totals"`
}

// Profile is the trail ahead of an observer.
type Profile struct {
	Route     string    `json:"route"`
	Direction string    `json:"direction"`
	OffTrail  float64   `json:"off_trail_meters"`
	Segments  []Segment `json:"segments"`
	Markers   []Marker  `json:"markers"`
	Totals    Totals    `json:"totals"`
}

// Options control how far a profile reaches and how pace is estimated.
type Options struct {
	// Window is the horizontal reach in meters. Zero walks to the trail's end.
	Window float64
	Model  pace.Model
}

// Build walks g from entry, stopping once the horizontal window is covered.
func Build(g *trail.Graph, entry *trail.Entry, opts Options) Profile {
	p := Profile{Route: g.Name}
	if entry == nil {
		return p
	}
	p.Direction = entry.Direction.String()
	p.OffTrail = entry.Distance

	model := opts.Model
	if model.Bias == 0 {
		model = pace.NewModel(pace.DefaultBias)
	}

	var offset float64
	var totals Totals
	g.Walk(entry, func(step trail.Step) bool {
		if opts.Window > 0 && offset >= opts.Window {
			return false
		}

		h := step.Edge.Horizontal
		slope := 0.0
		if h > 0 {
			slope = step.Rise() / h
		}
		speed := model.Pace(slope, step.From.Elevation)

		seg := Segment{
			Start:          offset,
			End:            offset + h,
			StartElevation: step.From.Elevation,
			EndElevation:   step.To.Elevation,
			Length:         step.Length(),
			Pace:           speed,
			Difficulty:     pace.Classify(speed),
			Approach:       step.Edge.IsSynthetic(),
			Before:         totals,
		}
		p.Segments = append(p.Segments, seg)

		offset += h
		totals = advance(totals, seg, 1)

		if step.To.Description != "" {
			p.Markers = append(p.Markers, Marker{
				Node:   step.To,
				Kind:   KindOf(step.To.Name),
				Offset: offset,
				Totals: totals,
			})
		}
		return true
	})

	p.Totals = totals
	return p
}

// advance adds fraction of seg to t.
func advance(t Totals, seg Segment, fraction float64) Totals {
	t.Distance += seg.Length * fraction
	t.Time += pace.Duration(seg.Length*fraction, seg.Pace, 1)
	if rise := seg.rise(); rise > 0 {
		t.Gain += rise * fraction
	} else {
		t.Loss -= rise * fraction
	}
	return t
}

// Point is an interpolated position within a profile.
type Point struct {
	Offset    float64 `json:"offset_meters"`
	Elevation float64 `json:"elevation"`
	Totals    Totals  `json:"totals"`
}

// At interpolates the totals at a horizontal offset from the observer. ok is
// false for offsets outside the profile. The profile's far end is included.
func (p Profile) At(offset float64) (Point, bool) {
	for i, seg := range p.Segments {
		last := i == len(p.Segments)-1
		if offset < seg.Start || offset > seg.End || (offset == seg.End && !last) {
			continue
		}
		fraction := 1.0
		if span := seg.End - seg.Start; span > 0 {
			fraction = (offset - seg.Start) / span
		}
		return Point{
			Offset:    offset,
			Elevation: seg.StartElevation + seg.rise()*fraction,
			Totals:    advance(seg.Before, seg, fraction),
		}, true
	}
	return Point{}, false
}
