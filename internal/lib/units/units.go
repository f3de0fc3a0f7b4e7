// Package units converts metric measurements for display.
package units

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	KilometersToMiles = 0.621371
	MetersToFeet      = 3.28084
	YardsPerMile      = 1760.0
)

// System is a measurement system.
type System string

const (
	Metric   System = "metric"
	Imperial System = "imperial"
)

// ParseSystem accepts "metric" or "imperial" in any case.
func ParseSystem(s string) (System, error) {
	switch System(strings.ToLower(strings.TrimSpace(s))) {
	case Metric:
		return Metric, nil
	case Imperial:
		return Imperial, nil
	}
	return "", fmt.Errorf("unknown unit system %q", s)
}

// MetersToMiles converts meters to statute miles.
func MetersToMiles(m float64) float64 {
	return m / 1000 * KilometersToMiles
}

// Formatter renders distances, elevations, durations and speeds.
type Formatter struct {
	system  System
	printer *message.Printer
}

// NewFormatter creates a formatter with locale-aware digit grouping.
func NewFormatter(system System, tag language.Tag) *Formatter {
	return &Formatter{system: system, printer: message.NewPrinter(tag)}
}

// System returns the formatter's measurement system.
func (f *Formatter) System() System {
	return f.system
}

// Distance renders meters as km/m or mi/yds. Short imperial distances are
// shown in yards.
func (f *Formatter) Distance(meters float64) string {
	if f.system == Imperial {
		mi := MetersToMiles(meters)
		switch {
		case mi >= 1:
			return f.decimal(mi, 1, 1) + "mi"
		case mi >= 0.25:
			return f.decimal(mi, 0, 2) + "mi"
		default:
			return f.decimal(mi*YardsPerMile, 0, 0) + "yds"
		}
	}
	if meters >= 1000 {
		return f.decimal(meters/1000, 1, 1) + "km"
	}
	return f.decimal(meters, 0, 0) + "m"
}

// Elevation renders meters as m or ft.
func (f *Formatter) Elevation(meters float64) string {
	if f.system == Imperial {
		return f.decimal(meters*MetersToFeet, 0, 0) + "ft"
	}
	return f.decimal(meters, 0, 0) + "m"
}

// Duration renders hours as h:mm.
func (f *Formatter) Duration(hours float64) string {
	if math.IsInf(hours, 0) || math.IsNaN(hours) {
		return "--:--"
	}
	h := int(hours)
	m := int((hours - float64(h)) * 60)
	return fmt.Sprintf("%d:%02d", h, m)
}

// Speed renders km/h as km/h or mi/h.
func (f *Formatter) Speed(kmh float64) string {
	if f.system == Imperial {
		return f.decimal(kmh*KilometersToMiles, 1, 1) + "mi/h"
	}
	return f.decimal(kmh, 1, 1) + "km/h"
}

func (f *Formatter) decimal(v float64, minFrac, maxFrac int) string {
	return f.printer.Sprint(number.Decimal(v,
		number.MinFractionDigits(minFrac),
		number.MaxFractionDigits(maxFrac)))
}
