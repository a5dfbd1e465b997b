// ABOUTME: Sine test source
// ABOUTME: Phase-accumulator oscillator used when no input file is given
package decode

import "math"

// DefaultToneFrequency is the A4 reference pitch.
const DefaultToneFrequency = 440.0

// Tone generates a continuous sine wave. It is not safe for concurrent
// readers.
type Tone struct {
	step      float64
	phase     float64
	amplitude float32
}

// NewTone returns a half-scale sine at freq Hz for the given rate.
func NewTone(freq float64, sampleRate int) *Tone {
	if freq <= 0 {
		freq = DefaultToneFrequency
	}
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	return &Tone{
		step:      2 * math.Pi * freq / float64(sampleRate),
		amplitude: 0.5,
	}
}

// SetAmplitude sets the peak level, clamped to [0, 1].
func (t *Tone) SetAmplitude(a float32) {
	t.amplitude = max(0, min(a, 1))
}

// ReadFrames fills dst with the next samples and always returns len(dst).
func (t *Tone) ReadFrames(dst []float32) int {
	for i := range dst {
		dst[i] = t.amplitude * float32(math.Sin(t.phase))
		t.phase += t.step
		if t.phase >= 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
	return len(dst)
}
