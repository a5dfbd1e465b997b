// ABOUTME: Inverse-distance gain law for source attenuation
// ABOUTME: Clamped so very near and very far sources stay bounded
package spatial

import "math"

// DistanceModel describes an inverse-distance attenuation law.
type DistanceModel struct {
	Reference float64 // distance with unity gain, metres
	Min       float64
	Max       float64
}

// DefaultDistanceModel is unity gain at 1 m, clamped to [0.25 m, 100 m].
func DefaultDistanceModel() DistanceModel {
	return DistanceModel{Reference: 1, Min: 0.25, Max: 100}
}

// Gain returns the linear gain for a source at distance metres.
func (m DistanceModel) Gain(distance float64) float64 {
	if !finite(distance) {
		distance = m.Reference
	}
	d := math.Max(m.Min, math.Min(m.Max, distance))
	if d <= 0 {
		return 1
	}
	return m.Reference / d
}
