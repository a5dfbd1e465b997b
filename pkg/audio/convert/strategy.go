// ABOUTME: Runtime kernel strategy table selected from CPU feature detection
// ABOUTME: Exposes package-level Decode/Encode/Sanitize bound to the active strategy
package convert

import (
	"runtime"

	"golang.org/x/sys/cpu"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
)

type (
	decodeFunc   func(dst []float32, src []byte) int
	encodeFunc   func(dst []byte, src []float32)
	sanitizeFunc func(buf []float32) int
)

// Kernels is a table of conversion routines for every supported format.
// Tables are immutable after package initialisation.
type Kernels struct {
	name     string
	decode   [audio.SampleFormatFloat32 + 1]decodeFunc
	encode   [audio.SampleFormatFloat32 + 1]encodeFunc
	sanitize sanitizeFunc
}

var (
	scalarKernels = &Kernels{
		name: "scalar",
		decode: [...]decodeFunc{
			audio.SampleFormatInt16:   decodeS16Scalar,
			audio.SampleFormatInt24:   decodeS24Scalar,
			audio.SampleFormatInt32:   decodeS32Scalar,
			audio.SampleFormatFloat32: decodeF32Scalar,
		},
		encode: [...]encodeFunc{
			audio.SampleFormatInt16:   encodeS16Scalar,
			audio.SampleFormatInt24:   encodeS24Scalar,
			audio.SampleFormatInt32:   encodeS32Scalar,
			audio.SampleFormatFloat32: encodeF32Scalar,
		},
		sanitize: sanitizeScalar,
	}

	vectorKernels = &Kernels{
		name: "vector8",
		decode: [...]decodeFunc{
			audio.SampleFormatInt16:   decodeS16Vector,
			audio.SampleFormatInt24:   decodeS24Vector,
			audio.SampleFormatInt32:   decodeS32Vector,
			audio.SampleFormatFloat32: decodeF32Vector,
		},
		encode: [...]encodeFunc{
			audio.SampleFormatInt16:   encodeS16Vector,
			audio.SampleFormatInt24:   encodeS24Vector,
			audio.SampleFormatInt32:   encodeS32Vector,
			audio.SampleFormatFloat32: encodeF32Vector,
		},
		sanitize: sanitizeVector,
	}

	active = selectKernels()
)

// selectKernels picks the widest strategy the running CPU supports.
func selectKernels() *Kernels {
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasAVX2 || cpu.X86.HasSSE41 {
			return vectorKernels
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			return vectorKernels
		}
	}
	return scalarKernels
}

// Scalar returns the scalar reference kernels.
func Scalar() *Kernels { return scalarKernels }

// Vector returns the unrolled kernels regardless of CPU support.
func Vector() *Kernels { return vectorKernels }

// Active returns the kernels selected at startup.
func Active() *Kernels { return active }

// Strategy names the kernels selected at startup.
func Strategy() string { return active.name }

// Name returns the strategy name.
func (k *Kernels) Name() string { return k.name }

// Decode converts packed little-endian samples into float32 in [-1, 1).
// It returns the number of samples written and how many non-finite
// samples were replaced with silence.
func (k *Kernels) Decode(dst []float32, src []byte, format audio.SampleFormat) (n int, sanitized int) {
	if !format.Valid() {
		return 0, 0
	}
	n = min(len(dst), len(src)/format.BytesPerSample())
	sanitized = k.decode[format](dst[:n], src)
	return n, sanitized
}

// Encode converts float32 samples into packed little-endian samples,
// saturating out-of-range values. Returns the number of samples written.
func (k *Kernels) Encode(dst []byte, src []float32, format audio.SampleFormat) int {
	if !format.Valid() {
		return 0
	}
	n := min(len(src), len(dst)/format.BytesPerSample())
	k.encode[format](dst, src[:n])
	return n
}

// Sanitize replaces NaN and infinite samples with zero and returns the count.
func (k *Kernels) Sanitize(buf []float32) int {
	return k.sanitize(buf)
}

// Decode uses the active kernels.
func Decode(dst []float32, src []byte, format audio.SampleFormat) (int, int) {
	return active.Decode(dst, src, format)
}

// Encode uses the active kernels.
func Encode(dst []byte, src []float32, format audio.SampleFormat) int {
	return active.Encode(dst, src, format)
}

// Sanitize uses the active kernels.
func Sanitize(buf []float32) int {
	return active.Sanitize(buf)
}
