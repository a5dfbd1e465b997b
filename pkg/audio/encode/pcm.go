// ABOUTME: Float to integer PCM quantisation
// ABOUTME: Saturates out-of-range input and silences non-finite samples
package encode

import (
	"math"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
)

// maxInt returns the largest positive sample value at depth bits.
func maxInt(depth int) float64 {
	switch depth {
	case 16:
		return math.MaxInt16
	case 24:
		return audio.Max24Bit
	default:
		return float64(int64(1)<<(depth-1) - 1)
	}
}

// Quantize converts float32 samples in [-1, 1] to integers at depth bits,
// writing into dst. Values beyond full scale saturate and NaN or Inf
// become zero. Returns the number of samples written.
func Quantize(dst []int, src []float32, depth int) int {
	n := min(len(dst), len(src))
	full := maxInt(depth)
	for i := 0; i < n; i++ {
		x := float64(src[i])
		switch {
		case math.IsNaN(x) || math.IsInf(x, 0):
			dst[i] = 0
		case x >= 1:
			dst[i] = int(full)
		case x <= -1:
			dst[i] = int(-full - 1)
		default:
			dst[i] = int(math.Round(x * full))
		}
	}
	return n
}
