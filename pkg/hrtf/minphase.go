// ABOUTME: Minimum-phase reconstruction from a magnitude response
// ABOUTME: Uses the folded real cepstrum computed with go-dsp FFTs
package hrtf

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

const magnitudeFloor = 1e-6

// MinimumPhase returns the first taps samples of the minimum-phase impulse
// response whose magnitude matches the one-sided response mag (DC through
// Nyquist, so len(mag) = n/2+1 for an n-point transform).
func MinimumPhase(mag []float64, taps int) []float64 {
	return minimumPhaseDelayed(mag, taps, 0)
}

// minimumPhaseDelayed is MinimumPhase followed by a pure delay of delay
// samples applied as a linear phase term, so fractional delays keep the
// magnitude response intact.
func minimumPhaseDelayed(mag []float64, taps int, delay float64) []float64 {
	bins := len(mag)
	out := make([]float64, taps)
	if bins < 2 {
		if bins == 1 && taps > 0 {
			out[0] = mag[0]
		}
		return out
	}
	n := 2 * (bins - 1)

	logMag := make([]complex128, n)
	for k := 0; k < bins; k++ {
		v := complex(math.Log(math.Max(mag[k], magnitudeFloor)), 0)
		logMag[k] = v
		if k > 0 && k < bins-1 {
			logMag[n-k] = v
		}
	}

	cepstrum := fft.IFFT(logMag)

	// Fold the anti-causal half onto the causal half.
	folded := make([]complex128, n)
	folded[0] = complex(real(cepstrum[0]), 0)
	for i := 1; i < n/2; i++ {
		folded[i] = complex(2*real(cepstrum[i]), 0)
	}
	folded[n/2] = complex(real(cepstrum[n/2]), 0)

	spectrum := fft.FFT(folded)
	for k := range spectrum {
		spectrum[k] = cmplx.Exp(spectrum[k])
	}

	if delay != 0 {
		for k := 1; k < n/2; k++ {
			shift := cmplx.Exp(complex(0, -2*math.Pi*float64(k)*delay/float64(n)))
			spectrum[k] *= shift
			spectrum[n-k] = cmplx.Conj(spectrum[k])
		}
		// Nyquist must stay real for a real impulse response.
		spectrum[n/2] = complex(real(spectrum[n/2])*math.Cos(math.Pi*delay), 0)
	}

	impulse := fft.IFFT(spectrum)
	for i := 0; i < taps && i < n; i++ {
		out[i] = real(impulse[i])
	}
	return out
}

// Magnitude returns the one-sided magnitude response of h on an n-point grid.
func Magnitude(h []float64, n int) []float64 {
	buf := make([]complex128, n)
	for i := 0; i < len(h) && i < n; i++ {
		buf[i] = complex(h[i], 0)
	}
	spec := fft.FFT(buf)
	mag := make([]float64, n/2+1)
	for k := range mag {
		mag[k] = cmplx.Abs(spec[k])
	}
	return mag
}
