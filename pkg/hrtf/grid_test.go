// ABOUTME: Tests for grid geometry
// ABOUTME: Covers azimuth wraparound, elevation clamping and index round trips
package hrtf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultGridDimensions(t *testing.T) {
	g := DefaultGrid()
	assert.Equal(t, 72, g.Azimuths())
	assert.Equal(t, 14, g.Elevations())
	assert.Equal(t, 72*14, g.Size())
}

func TestGridRingsStayWithinRange(t *testing.T) {
	tests := []struct {
		name    string
		step    float64
		rings   int
		topRing float64
	}{
		{"divides range", 10, 14, 90},
		{"half step left over", 20, 7, 80},
		{"small remainder", 30, 5, 80},
		{"step wider than range", 200, 1, -40},
		{"coarse", 65, 3, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := DefaultGrid()
			g.ElevationStep = tt.step
			assert.Equal(t, tt.rings, g.Elevations())

			_, top := g.Angles(g.Size() - 1)
			assert.InDelta(t, tt.topRing, top, 1e-9)
			assert.LessOrEqual(t, top, 90.0)

			_, el := g.Angles(g.Index(0, 90))
			assert.InDelta(t, tt.topRing, el, 1e-9)
		})
	}
}

func TestWrapAzimuth(t *testing.T) {
	tests := []struct {
		in, out float64
	}{
		{0, 0},
		{360, 0},
		{-90, 270},
		{725, 5},
		{-1e-15, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.out, WrapAzimuth(tt.in), 1e-9, "wrap(%v)", tt.in)
	}
}

func TestGridIndex(t *testing.T) {
	g := DefaultGrid()

	tests := []struct {
		name   string
		az, el float64
		wantAz float64
		wantEl float64
	}{
		{"front", 0, 0, 0, 0},
		{"rounds to nearest", 7.6, 4, 10, 0},
		{"wraps near 360", 358, 0, 0, 0},
		{"negative azimuth", -90, 0, 270, 0},
		{"clamps low elevation", 45, -80, 45, -40},
		{"clamps high elevation", 45, 120, 45, 90},
		{"nan is front", math.NaN(), math.NaN(), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := g.Index(tt.az, tt.el)
			assert.GreaterOrEqual(t, idx, 0)
			assert.Less(t, idx, g.Size())
			az, el := g.Angles(idx)
			assert.InDelta(t, tt.wantAz, az, 1e-9)
			assert.InDelta(t, tt.wantEl, el, 1e-9)
		})
	}
}

func TestGridAnglesRoundTrip(t *testing.T) {
	g := DefaultGrid()
	for idx := 0; idx < g.Size(); idx++ {
		az, el := g.Angles(idx)
		if got := g.Index(az, el); got != idx {
			t.Fatalf("index %d -> (%v, %v) -> %d", idx, az, el, got)
		}
	}
}
