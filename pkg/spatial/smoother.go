// ABOUTME: One-pole exponential smoothing of spatial targets
// ABOUTME: Targets are stored as atomic float bits so writers never block the audio thread
package spatial

import (
	"math"
	"sync/atomic"
)

// DefaultAlpha is the per-step retention factor.
const DefaultAlpha = 0.95

type atomicFloat struct{ bits atomic.Uint64 }

func (a *atomicFloat) Load() float64   { return math.Float64frombits(a.bits.Load()) }
func (a *atomicFloat) Store(v float64) { a.bits.Store(math.Float64bits(v)) }

// Smoother follows a target with current += (target-current)*(1-alpha) per
// step. UpdateTarget may be called from any goroutine; Step must only be
// called from one goroutine, normally the audio thread.
type Smoother struct {
	alpha float64

	targetAz, targetEl, targetDist atomicFloat
	hasTarget                      atomic.Bool

	// owned by the stepping goroutine
	current Target
	primed  bool

	// last stepped values, readable from any goroutine
	outAz, outEl, outDist atomicFloat
}

// NewSmoother returns a smoother with the given alpha in [0, 1).
// Out-of-range values fall back to DefaultAlpha.
func NewSmoother(alpha float64) *Smoother {
	if !(alpha >= 0 && alpha < 1) {
		alpha = DefaultAlpha
	}
	s := &Smoother{alpha: alpha}
	s.Reset()
	return s
}

// Alpha returns the retention factor.
func (s *Smoother) Alpha() float64 { return s.alpha }

// UpdateTarget stores a new target. Non-finite values are ignored.
func (s *Smoother) UpdateTarget(azimuth, elevation, distance float64) {
	if !finite(azimuth) || !finite(elevation) || !finite(distance) {
		return
	}
	s.targetAz.Store(WrapDegrees(azimuth))
	s.targetEl.Store(math.Max(-90, math.Min(90, elevation)))
	s.targetDist.Store(math.Max(0, distance))
	s.hasTarget.Store(true)
}

// SetTarget is UpdateTarget for a Target value.
func (s *Smoother) SetTarget(t Target) {
	s.UpdateTarget(t.Azimuth, t.Elevation, t.Distance)
}

// Target returns the most recently stored target.
func (s *Smoother) Target() Target {
	return Target{
		Azimuth:   s.targetAz.Load(),
		Elevation: s.targetEl.Load(),
		Distance:  s.targetDist.Load(),
	}
}

// Step advances the smoothed state by one block and returns it.
func (s *Smoother) Step() Target {
	if !s.hasTarget.Load() {
		return s.current
	}
	target := s.Target()

	if !s.primed {
		// Jump straight to the first target instead of sweeping from the default.
		s.current = target
		s.primed = true
	} else {
		k := 1 - s.alpha
		s.current.Azimuth = WrapDegrees(s.current.Azimuth + ShortestDelta(s.current.Azimuth, target.Azimuth)*k)
		s.current.Elevation += (target.Elevation - s.current.Elevation) * k
		s.current.Distance += (target.Distance - s.current.Distance) * k
	}

	s.outAz.Store(s.current.Azimuth)
	s.outEl.Store(s.current.Elevation)
	s.outDist.Store(s.current.Distance)
	return s.current
}

// Current returns the last stepped values. Safe from any goroutine.
func (s *Smoother) Current() Target {
	return Target{
		Azimuth:   s.outAz.Load(),
		Elevation: s.outEl.Load(),
		Distance:  s.outDist.Load(),
	}
}

// Reset returns to the initial state: straight ahead at one metre, with
// the next target applied immediately. Only call while not stepping.
func (s *Smoother) Reset() {
	s.current = Target{Azimuth: 0, Elevation: 0, Distance: 1}
	s.primed = false
	s.hasTarget.Store(false)
	s.targetAz.Store(0)
	s.targetEl.Store(0)
	s.targetDist.Store(1)
	s.outAz.Store(0)
	s.outEl.Store(0)
	s.outDist.Store(1)
}
