// ABOUTME: Direct-form convolution against a doubled circular history
// ABOUTME: The doubled buffer makes every window contiguous so the inner loop has no wrap test
package convolve

import "github.com/Resonate-Protocol/resonate-binaural/pkg/hrtf"

// TimeDomain is a direct convolution engine. Not safe for concurrent use.
type TimeDomain struct {
	length  int
	history []float32 // 2*length, each sample written twice
	pos     int
}

// NewTimeDomain returns an engine for filters of filterLength taps.
func NewTimeDomain(filterLength int) *TimeDomain {
	return &TimeDomain{
		length:  filterLength,
		history: make([]float32, 2*filterLength),
	}
}

// Name identifies the algorithm.
func (td *TimeDomain) Name() string { return "time-domain" }

// Reset clears the history.
func (td *TimeDomain) Reset() {
	clear(td.history)
	td.pos = 0
}

// push stores x and returns the window of the newest length samples, oldest first.
func (td *TimeDomain) push(x float32) []float32 {
	td.history[td.pos] = x
	td.history[td.pos+td.length] = x
	start := td.pos + 1
	td.pos++
	if td.pos == td.length {
		td.pos = 0
	}
	return td.history[start : start+td.length]
}

// dot multiplies the newest taps of window with reversed taps.
func dot(window, rev []float32) float32 {
	n := min(len(window), len(rev))
	w := window[len(window)-n:]
	h := rev[len(rev)-n:]
	var acc float32
	for i := range w {
		acc += w[i] * h[i]
	}
	return acc
}

// Process implements Engine.
func (td *TimeDomain) Process(in, left, right []float32, f *hrtf.Filter) {
	n := min(len(in), len(left), len(right))
	revL, revR := f.ReversedLeft(), f.ReversedRight()
	for i := 0; i < n; i++ {
		w := td.push(in[i])
		left[i] = dot(w, revL)
		right[i] = dot(w, revR)
	}
}

// ProcessBlend implements Engine.
func (td *TimeDomain) ProcessBlend(in, left, right []float32, from, to *hrtf.Filter) {
	if from == nil || from == to {
		td.Process(in, left, right, to)
		return
	}
	n := min(len(in), len(left), len(right))
	fromL, fromR := from.ReversedLeft(), from.ReversedRight()
	toL, toR := to.ReversedLeft(), to.ReversedRight()
	step := 1 / float32(n)
	for i := 0; i < n; i++ {
		w := td.push(in[i])
		g := float32(i+1) * step
		left[i] = (1-g)*dot(w, fromL) + g*dot(w, toL)
		right[i] = (1-g)*dot(w, fromR) + g*dot(w, toR)
	}
}
