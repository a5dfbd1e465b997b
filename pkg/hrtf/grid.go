// ABOUTME: Azimuth/elevation grid geometry for the filter bank
// ABOUTME: Handles wraparound, clamping and nearest-cell quantisation
package hrtf

import "math"

// Grid describes the discretised directions covered by a Bank.
type Grid struct {
	AzimuthStep   float64
	ElevationMin  float64
	ElevationMax  float64
	ElevationStep float64
}

// DefaultGrid is 5 degree azimuth steps and 10 degree elevation steps from -40 to +90.
func DefaultGrid() Grid {
	return Grid{
		AzimuthStep:   5,
		ElevationMin:  -40,
		ElevationMax:  90,
		ElevationStep: 10,
	}
}

func (g Grid) valid() bool {
	return g.AzimuthStep > 0 && g.AzimuthStep <= 360 &&
		g.ElevationStep > 0 && g.ElevationMax >= g.ElevationMin &&
		g.ElevationMin >= -90 && g.ElevationMax <= 90
}

// Azimuths returns the number of azimuth cells per elevation ring.
func (g Grid) Azimuths() int {
	return int(math.Round(360 / g.AzimuthStep))
}

// Elevations returns the number of elevation rings. The top ring never
// lies above ElevationMax, so a step that does not divide the range stops short.
func (g Grid) Elevations() int {
	return int(math.Floor((g.ElevationMax-g.ElevationMin)/g.ElevationStep+1e-9)) + 1
}

// Size returns the total number of cells.
func (g Grid) Size() int {
	return g.Azimuths() * g.Elevations()
}

// WrapAzimuth maps any angle into [0, 360).
func WrapAzimuth(az float64) float64 {
	az = math.Mod(az, 360)
	if az < 0 {
		az += 360
	}
	// -1e-15 mod 360 rounds up to exactly 360.
	if az >= 360 {
		az = 0
	}
	return az
}

// ClampElevation limits el to the grid's measured range.
func (g Grid) ClampElevation(el float64) float64 {
	return math.Max(g.ElevationMin, math.Min(g.ElevationMax, el))
}

// Cell returns the azimuth and elevation indices nearest to (az, el).
func (g Grid) Cell(az, el float64) (ai, ei int) {
	if math.IsNaN(az) || math.IsInf(az, 0) {
		az = 0
	}
	if math.IsNaN(el) {
		el = 0
	}
	nAz := g.Azimuths()
	ai = int(math.Round(WrapAzimuth(az)/g.AzimuthStep)) % nAz
	ei = int(math.Round((g.ClampElevation(el) - g.ElevationMin) / g.ElevationStep))
	if last := g.Elevations() - 1; ei > last {
		ei = last
	}
	return ai, ei
}

// Index returns the flat cell index nearest to (az, el).
func (g Grid) Index(az, el float64) int {
	ai, ei := g.Cell(az, el)
	return ei*g.Azimuths() + ai
}

// Angles returns the centre direction of a flat cell index.
func (g Grid) Angles(index int) (az, el float64) {
	nAz := g.Azimuths()
	ai := index % nAz
	ei := index / nAz
	return float64(ai) * g.AzimuthStep, g.ElevationMin + float64(ei)*g.ElevationStep
}
