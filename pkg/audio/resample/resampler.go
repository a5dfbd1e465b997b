// ABOUTME: Streaming linear resampler for interleaved float32 audio
// ABOUTME: Used by the engine when device and processing rates differ and by file sources
package resample

import "math"

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	// position is measured in input frames where frame 0 is lastFrame and
	// frame k >= 1 is input[k-1] of the current chunk.
	position  float64
	lastFrame []float32
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	if channels < 1 {
		channels = 1
	}
	r := &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		lastFrame:  make([]float32, channels),
	}
	r.Reset()
	return r
}

// InputRate returns the source sample rate
func (r *Resampler) InputRate() int { return r.inputRate }

// OutputRate returns the destination sample rate
func (r *Resampler) OutputRate() int { return r.outputRate }

// Channels returns the interleaved channel count
func (r *Resampler) Channels() int { return r.channels }

// Passthrough reports whether input and output rates are equal
func (r *Resampler) Passthrough() bool { return r.inputRate == r.outputRate }

// sample returns channel ch of virtual frame k.
func (r *Resampler) sample(input []float32, k, ch int) float32 {
	if k == 0 {
		return r.lastFrame[ch]
	}
	return input[(k-1)*r.channels+ch]
}

// Resample converts interleaved input at inputRate into interleaved output
// at outputRate and returns the number of samples written. Size output with
// MaxOutputFrames; input that does not fit is dropped.
func (r *Resampler) Resample(input []float32, output []float32) int {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return 0
	}

	if r.Passthrough() {
		n := min(inputFrames, len(output)/r.channels) * r.channels
		copy(output[:n], input[:n])
		copy(r.lastFrame, input[(inputFrames-1)*r.channels:inputFrames*r.channels])
		return n
	}

	outputFrames := len(output) / r.channels
	outIdx := 0

	for outIdx < outputFrames {
		idx := int(r.position)
		// Interpolation needs frame idx+1 which must exist in this chunk.
		if idx+1 > inputFrames {
			break
		}

		frac := float32(r.position - float64(idx))
		for ch := 0; ch < r.channels; ch++ {
			s1 := r.sample(input, idx, ch)
			s2 := r.sample(input, idx+1, ch)
			output[outIdx*r.channels+ch] = s1 + (s2-s1)*frac
		}

		outIdx++
		r.position += r.ratio
	}

	// The last input frame becomes virtual frame 0 of the next chunk.
	r.position -= float64(inputFrames)
	if r.position < 0 {
		r.position = 0
	}
	copy(r.lastFrame, input[(inputFrames-1)*r.channels:inputFrames*r.channels])

	return outIdx * r.channels
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	// Start on the first input frame rather than interpolating from silence.
	r.position = 1.0
	for i := range r.lastFrame {
		r.lastFrame[i] = 0
	}
}

// MaxOutputFrames returns an upper bound on frames produced from inputFrames
func (r *Resampler) MaxOutputFrames(inputFrames int) int {
	if r.Passthrough() {
		return inputFrames
	}
	return int(math.Ceil(float64(inputFrames)/r.ratio)) + 1
}

// InputFramesFor returns roughly how many input frames yield outputFrames
func (r *Resampler) InputFramesFor(outputFrames int) int {
	return int(math.Ceil(float64(outputFrames) * r.ratio))
}
