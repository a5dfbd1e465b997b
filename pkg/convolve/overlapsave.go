// ABOUTME: FFT overlap-save convolution with a per-filter spectrum cache
// ABOUTME: Uses an algo-fft real plan so each ear costs one half-size spectrum product
package convolve

import (
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/hrtf"
)

const spectrumCacheSize = 2

type filterSpectrum struct {
	filter *hrtf.Filter
	left   []complex64
	right  []complex64
	used   uint64
}

// OverlapSave is an FFT convolution engine. Not safe for concurrent use.
type OverlapSave struct {
	length   int
	maxBlock int
	size     int
	plan     *algofft.PlanRealT[float32, complex64]
	// scale undoes whatever normalisation Inverse applies.
	scale float32

	// history holds the newest length-1 input samples.
	history []float32

	frame    []float32   // [history | block | zeros]
	spectrum []complex64 // transform of frame
	product  []complex64
	taps     []float32
	outA     []float32
	outB     []float32

	cache [spectrumCacheSize]filterSpectrum
	clock uint64
}

// NewOverlapSave returns an engine for filterLength taps and blocks of up to maxBlock frames.
func NewOverlapSave(filterLength, maxBlock int) (*OverlapSave, error) {
	if filterLength < 1 || maxBlock < 1 {
		return nil, fmt.Errorf("filter length %d, max block %d: %w", filterLength, maxBlock, ErrInvalidConfig)
	}
	n := max(nextPow2(filterLength+maxBlock-1), 4)
	plan, err := algofft.NewPlanReal32(n)
	if err != nil {
		return nil, fmt.Errorf("failed to create FFT plan for size %d: %w", n, err)
	}

	bins := n/2 + 1
	o := &OverlapSave{
		length:   filterLength,
		maxBlock: maxBlock,
		size:     n,
		plan:     plan,
		history:  make([]float32, filterLength-1),
		frame:    make([]float32, n),
		spectrum: make([]complex64, bins),
		product:  make([]complex64, bins),
		taps:     make([]float32, n),
		outA:     make([]float32, n),
		outB:     make([]float32, n),
	}
	for i := range o.cache {
		o.cache[i].left = make([]complex64, bins)
		o.cache[i].right = make([]complex64, bins)
	}
	if err := o.calibrate(); err != nil {
		return nil, err
	}
	return o, nil
}

// calibrate round-trips a unit impulse to find the inverse gain.
func (o *OverlapSave) calibrate() error {
	o.frame[0] = 1
	if err := o.plan.Forward(o.spectrum, o.frame); err != nil {
		return fmt.Errorf("forward FFT failed: %w", err)
	}
	if err := o.plan.Inverse(o.outA, o.spectrum); err != nil {
		return fmt.Errorf("inverse FFT failed: %w", err)
	}
	if o.outA[0] == 0 {
		return fmt.Errorf("inverse FFT lost the impulse: %w", ErrInvalidConfig)
	}
	o.scale = 1 / o.outA[0]
	clear(o.frame)
	clear(o.outA)
	return nil
}

// Name identifies the algorithm.
func (o *OverlapSave) Name() string { return "overlap-save" }

// FFTSize returns the transform length.
func (o *OverlapSave) FFTSize() int { return o.size }

// Reset clears the overlap history. Cached spectra stay valid.
func (o *OverlapSave) Reset() {
	clear(o.history)
}

// filterSpectrum returns the cached spectra for f, transforming it on a miss.
func (o *OverlapSave) filterSpectrum(f *hrtf.Filter) *filterSpectrum {
	o.clock++
	victim := 0
	for i := range o.cache {
		c := &o.cache[i]
		if c.filter == f {
			c.used = o.clock
			return c
		}
		if c.used < o.cache[victim].used {
			victim = i
		}
	}

	c := &o.cache[victim]
	c.filter = f
	c.used = o.clock
	o.transformTaps(c.left, f.Left())
	o.transformTaps(c.right, f.Right())
	return c
}

// transformTaps zero-pads taps to the plan size. Plans of a valid size do
// not fail, so errors leave a silent spectrum.
func (o *OverlapSave) transformTaps(dst []complex64, taps []float32) {
	clear(o.taps)
	copy(o.taps, taps)
	if o.plan.Forward(dst, o.taps) != nil {
		clear(dst)
	}
}

// transformBlock loads history and in into the frame, transforms it and
// advances the history.
func (o *OverlapSave) transformBlock(in []float32) {
	h := len(o.history)
	copy(o.frame, o.history)
	copy(o.frame[h:], in)
	clear(o.frame[h+len(in):])

	// Slide the newest h samples of [history | in] into history.
	if len(in) >= h {
		copy(o.history, in[len(in)-h:])
	} else {
		copy(o.history, o.history[len(in):])
		copy(o.history[h-len(in):], in)
	}

	if o.plan.Forward(o.spectrum, o.frame) != nil {
		clear(o.spectrum)
	}
}

// filterInto writes the circular convolution of the frame with one ear's
// spectrum into dst.
func (o *OverlapSave) filterInto(dst []float32, ear []complex64) {
	for k, x := range o.spectrum {
		o.product[k] = x * ear[k]
	}
	if o.plan.Inverse(dst, o.product) != nil {
		clear(dst)
	}
}

// emit copies the valid, unaliased part of a filtered frame into out.
func (o *OverlapSave) emit(out, filtered []float32) {
	valid := filtered[len(o.history):]
	for i := range out {
		out[i] = valid[i] * o.scale
	}
}

// Process implements Engine. Blocks longer than the configured maximum are split.
func (o *OverlapSave) Process(in, left, right []float32, f *hrtf.Filter) {
	n := min(len(in), len(left), len(right))
	for start := 0; start < n; start += o.maxBlock {
		end := min(start+o.maxBlock, n)
		o.processBlock(in[start:end], left[start:end], right[start:end], f)
	}
}

func (o *OverlapSave) processBlock(in, left, right []float32, f *hrtf.Filter) {
	s := o.filterSpectrum(f)
	o.transformBlock(in)
	o.filterInto(o.outA, s.left)
	o.emit(left, o.outA)
	o.filterInto(o.outA, s.right)
	o.emit(right, o.outA)
}

// ProcessBlend implements Engine.
func (o *OverlapSave) ProcessBlend(in, left, right []float32, from, to *hrtf.Filter) {
	if from == nil || from == to {
		o.Process(in, left, right, to)
		return
	}
	n := min(len(in), len(left), len(right))
	step := 1 / float32(n)
	for start := 0; start < n; start += o.maxBlock {
		end := min(start+o.maxBlock, n)
		o.blendBlock(in[start:end], left[start:end], right[start:end], from, to, start, step)
	}
}

func (o *OverlapSave) blendBlock(in, left, right []float32, from, to *hrtf.Filter, offset int, step float32) {
	sFrom := o.filterSpectrum(from)
	sTo := o.filterSpectrum(to)
	o.transformBlock(in)

	h := len(o.history)
	mix := func(out []float32, a, b []complex64) {
		o.filterInto(o.outA, a)
		o.filterInto(o.outB, b)
		va, vb := o.outA[h:], o.outB[h:]
		for i := range out {
			g := float32(offset+i+1) * step
			out[i] = ((1-g)*va[i] + g*vb[i]) * o.scale
		}
	}
	mix(left, sFrom.left, sTo.left)
	mix(right, sFrom.right, sTo.right)
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
