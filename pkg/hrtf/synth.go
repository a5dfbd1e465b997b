// ABOUTME: Spherical-head model used when no measured dataset is available
// ABOUTME: Combines ITD, ILD, head shadow, pinna notch and rear shelf into minimum-phase taps
package hrtf

import (
	"math"
)

const (
	// Brown-Duda head shadow parameters
	shadowAlphaMin = 0.1
	shadowThetaMin = 150.0 // degrees

	maxILDdB        = 10.0
	ildCornerHz     = 1500.0
	pinnaLowHz      = 6000.0
	pinnaHighHz     = 10000.0
	pinnaDepthdB    = 15.0
	rearShelfdB     = 6.0
	rearShelfHz     = 3000.0
	taperFraction   = 0.25
	fftOversampling = 4
)

// Synthesizer renders filters from a spherical head model.
type Synthesizer struct {
	cfg  Config
	nfft int
}

// NewSynthesizer returns a synthesizer for cfg. cfg should already be validated.
func NewSynthesizer(cfg Config) *Synthesizer {
	return &Synthesizer{
		cfg:  cfg,
		nfft: fftOversampling * nextPow2(cfg.FilterLength),
	}
}

// ITD returns the Woodworth interaural time difference in seconds for a
// direction. Positive values mean the right ear leads.
func (s *Synthesizer) ITD(azimuth, elevation float64) float64 {
	theta := lateralAngle(azimuth, elevation)
	return s.cfg.HeadRadius / s.cfg.SpeedOfSound * (theta + math.Sin(theta))
}

// Render returns the left and right taps for a direction in degrees.
func (s *Synthesizer) Render(azimuth, elevation float64) (left, right []float32) {
	cfg := s.cfg
	bins := s.nfft/2 + 1

	azRad := azimuth * math.Pi / 180
	elRad := elevation * math.Pi / 180
	lateral := math.Sin(azRad) * math.Cos(elRad) // +1 right ear, -1 left ear
	theta := lateralAngle(azimuth, elevation)
	rear := -math.Cos(azRad) * math.Cos(elRad)

	// Incidence angle measured from the far ear's axis. Held at the deepest
	// shadow past shadowThetaMin so level falls monotonically with laterality.
	farPsi := math.Min(math.Acos(-math.Abs(lateral))*180/math.Pi, shadowThetaMin)

	omega0 := cfg.SpeedOfSound / cfg.HeadRadius

	near := make([]float64, bins)
	far := make([]float64, bins)
	for k := 0; k < bins; k++ {
		f := float64(k) * float64(cfg.SampleRate) / float64(s.nfft)

		common := dbToGain(pinnaNotch(f, elevation) + rearShelf(f, rear))
		ild := maxILDdB * math.Abs(math.Sin(theta)) * f / (f + ildCornerHz)

		near[k] = common * dbToGain(ild/2)
		// Shadow is relative to frontal incidence so both ears match straight ahead.
		far[k] = common * dbToGain(-ild/2) *
			headShadow(2*math.Pi*f, omega0, farPsi) / headShadow(2*math.Pi*f, omega0, 90)
	}

	taps := cfg.FilterLength
	nearIR := MinimumPhase(near, taps)
	// Minimum phase discards pure delay, so the ITD goes back in afterwards.
	delay := math.Abs(s.ITD(azimuth, elevation)) * float64(cfg.SampleRate)
	farIR := minimumPhaseDelayed(far, taps, delay)

	taper(nearIR, taperFraction)
	taper(farIR, taperFraction)

	if lateral >= 0 {
		left, right = toFloat32(farIR), toFloat32(nearIR)
	} else {
		left, right = toFloat32(nearIR), toFloat32(farIR)
	}
	normalize(left, right)
	return left, right
}

// lateralAngle is the angle from the median plane in radians, positive to the right.
func lateralAngle(azimuth, elevation float64) float64 {
	x := math.Sin(azimuth*math.Pi/180) * math.Cos(elevation*math.Pi/180)
	return math.Asin(math.Max(-1, math.Min(1, x)))
}

// headShadow is the Brown-Duda single-pole/single-zero magnitude at incidence psi degrees.
func headShadow(omega, omega0, psi float64) float64 {
	alpha := (1 + shadowAlphaMin/2) + (1-shadowAlphaMin/2)*math.Cos(psi/shadowThetaMin*math.Pi)
	x := omega / (2 * omega0)
	return math.Sqrt((1 + alpha*alpha*x*x) / (1 + x*x))
}

// pinnaNotch is a Gaussian notch in dB whose centre rises with elevation.
func pinnaNotch(f, elevation float64) float64 {
	pos := math.Max(0, math.Min(1, (elevation+40)/130))
	centre := pinnaLowHz + (pinnaHighHz-pinnaLowHz)*pos
	depth := pinnaDepthdB * (1 - 0.6*pos)
	width := 0.15 * centre
	d := (f - centre) / width
	return -depth * math.Exp(-0.5*d*d)
}

// rearShelf cuts high frequencies for sources behind the listener.
func rearShelf(f, rear float64) float64 {
	if rear <= 0 {
		return 0
	}
	return -rearShelfdB * rear * f * f / (f*f + rearShelfHz*rearShelfHz)
}

func dbToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

// taper applies a half-Hann fade to the final fraction of h.
func taper(h []float64, fraction float64) {
	n := int(float64(len(h)) * fraction)
	if n < 2 {
		return
	}
	start := len(h) - n
	for i := 0; i < n; i++ {
		h[start+i] *= 0.5 * (1 + math.Cos(math.Pi*float64(i)/float64(n-1)))
	}
}

// normalize scales both ears so the louder one has unit energy, keeping the ILD.
func normalize(left, right []float32) {
	var el, er float64
	for i := range left {
		el += float64(left[i]) * float64(left[i])
		er += float64(right[i]) * float64(right[i])
	}
	peak := math.Max(el, er)
	if peak == 0 {
		return
	}
	g := float32(1 / math.Sqrt(peak))
	for i := range left {
		left[i] *= g
		right[i] *= g
	}
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
