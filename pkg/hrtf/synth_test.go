// ABOUTME: Tests for minimum phase reconstruction and spherical-head synthesis
// ABOUTME: Checks known minimum-phase filters, ITD magnitude and lateral level cues
package hrtf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinimumPhaseRecoversMinimumPhaseFilter(t *testing.T) {
	// 1 + 0.5 z^-1 has its zero inside the unit circle already.
	mag := Magnitude([]float64{1, 0.5}, 1024)
	h := MinimumPhase(mag, 8)

	assert.InDelta(t, 1.0, h[0], 1e-3)
	assert.InDelta(t, 0.5, h[1], 1e-3)
	for i := 2; i < len(h); i++ {
		assert.InDelta(t, 0, h[i], 1e-3)
	}
}

func TestMinimumPhaseReflectsOutsideZero(t *testing.T) {
	// 0.5 + z^-1 is maximum phase with the same magnitude as 1 + 0.5 z^-1.
	mag := Magnitude([]float64{0.5, 1}, 1024)
	h := MinimumPhase(mag, 4)

	assert.InDelta(t, 1.0, h[0], 1e-3)
	assert.InDelta(t, 0.5, h[1], 1e-3)
}

func TestMinimumPhasePreservesMagnitude(t *testing.T) {
	mag := make([]float64, 257)
	for k := range mag {
		mag[k] = 1 + 0.5*math.Cos(float64(k)*math.Pi/256)
	}
	h := MinimumPhase(mag, 512)
	got := Magnitude(h, 512)
	for k := range mag {
		assert.InDelta(t, mag[k], got[k], 1e-3, "bin %d", k)
	}
}

func TestMinimumPhaseDelayedShiftsImpulse(t *testing.T) {
	mag := Magnitude([]float64{1, 0.5}, 1024)
	h := minimumPhaseDelayed(mag, 16, 3)
	assert.InDelta(t, 1.0, h[3], 1e-3)
	assert.InDelta(t, 0.5, h[4], 1e-3)
	assert.InDelta(t, 0, h[0], 1e-3)
}

func TestWoodworthITD(t *testing.T) {
	s := NewSynthesizer(DefaultConfig())
	want := 0.0875 / 343.0 * (math.Pi/2 + 1)

	assert.InDelta(t, want, s.ITD(90, 0), 1e-9)
	assert.InDelta(t, -want, s.ITD(-90, 0), 1e-9)
	assert.InDelta(t, 0, s.ITD(0, 0), 1e-12)
	// Elevation reduces the lateral angle.
	assert.Less(t, s.ITD(90, 60), s.ITD(90, 0))
}

func TestRenderFrontIsSymmetric(t *testing.T) {
	s := NewSynthesizer(testConfig())
	left, right := s.Render(0, 0)
	require.Len(t, left, 128)
	for i := range left {
		assert.InDelta(t, left[i], right[i], 1e-6)
	}
}

func TestRenderLateralLevels(t *testing.T) {
	s := NewSynthesizer(testConfig())

	l, r := energy(s.Render(-90, 0))
	assert.Greater(t, l, r, "source on the left should favour the left ear")

	l, r = energy(s.Render(90, 0))
	assert.Greater(t, r, l, "source on the right should favour the right ear")

	// Louder ear is normalised to unit energy.
	assert.InDelta(t, 1.0, math.Max(l, r), 1e-4)
}

func TestRenderILDMonotonicAcrossFront(t *testing.T) {
	s := NewSynthesizer(testConfig())

	prev := math.Inf(-1)
	for az := -90.0; az <= 90; az += 5 {
		l, r := energy(s.Render(az, 0))
		ild := 10 * math.Log10(r/l)
		assert.Greater(t, ild, prev, "azimuth %.0f", az)
		prev = ild
	}
}

func TestRenderFarEarIsDelayed(t *testing.T) {
	s := NewSynthesizer(testConfig())
	left, right := s.Render(90, 0)
	assert.Greater(t, onset(left), onset(right)+20)
}

func energy(left, right []float32) (float64, float64) {
	var l, r float64
	for i := range left {
		l += float64(left[i]) * float64(left[i])
		r += float64(right[i]) * float64(right[i])
	}
	return l, r
}

// onset returns the index of the largest-magnitude tap.
func onset(h []float32) int {
	best, idx := 0.0, 0
	for i, v := range h {
		if a := math.Abs(float64(v)); a > best {
			best, idx = a, i
		}
	}
	return idx
}
