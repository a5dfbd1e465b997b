// ABOUTME: Immutable stereo impulse response pair for one grid direction
// ABOUTME: Keeps reversed taps alongside so direct convolution walks memory forwards
package hrtf

import "fmt"

// Origin records how a filter was obtained.
type Origin int

const (
	OriginSynthetic Origin = iota
	OriginMeasured
	OriginInterpolated
)

func (o Origin) String() string {
	switch o {
	case OriginSynthetic:
		return "synthetic"
	case OriginMeasured:
		return "measured"
	case OriginInterpolated:
		return "interpolated"
	default:
		return fmt.Sprintf("origin(%d)", int(o))
	}
}

// Filter is a left/right impulse response pair. It must not be modified
// after construction; banks hand the same pointer to every reader.
type Filter struct {
	Index     int
	Azimuth   float64
	Elevation float64
	Origin    Origin

	left, right       []float32
	leftRev, rightRev []float32
}

// NewFilter copies left and right into a new Filter. Both must have the same length.
func NewFilter(left, right []float32) (*Filter, error) {
	if len(left) == 0 || len(left) != len(right) {
		return nil, fmt.Errorf("left %d taps, right %d taps: %w", len(left), len(right), ErrMalformedDataset)
	}
	f := &Filter{
		left:     append([]float32(nil), left...),
		right:    append([]float32(nil), right...),
		leftRev:  make([]float32, len(left)),
		rightRev: make([]float32, len(right)),
	}
	n := len(left)
	for i := 0; i < n; i++ {
		f.leftRev[n-1-i] = f.left[i]
		f.rightRev[n-1-i] = f.right[i]
	}
	return f, nil
}

// Len returns the number of taps per ear.
func (f *Filter) Len() int { return len(f.left) }

// Left returns the left-ear taps. Callers must not modify the slice.
func (f *Filter) Left() []float32 { return f.left }

// Right returns the right-ear taps. Callers must not modify the slice.
func (f *Filter) Right() []float32 { return f.right }

// ReversedLeft returns the left taps in reverse order.
func (f *Filter) ReversedLeft() []float32 { return f.leftRev }

// ReversedRight returns the right taps in reverse order.
func (f *Filter) ReversedRight() []float32 { return f.rightRev }

// Energy returns the sum of squared taps for each ear.
func (f *Filter) Energy() (left, right float64) {
	for i := range f.left {
		left += float64(f.left[i]) * float64(f.left[i])
		right += float64(f.right[i]) * float64(f.right[i])
	}
	return left, right
}

// IsZero reports whether every tap of both ears is zero.
func (f *Filter) IsZero() bool {
	for i := range f.left {
		if f.left[i] != 0 || f.right[i] != 0 {
			return false
		}
	}
	return true
}

func (f *Filter) String() string {
	return fmt.Sprintf("hrtf[%d az=%.0f el=%.0f %s]", f.Index, f.Azimuth, f.Elevation, f.Origin)
}
