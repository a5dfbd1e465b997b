// ABOUTME: Scalar reference kernels for every supported sample format
// ABOUTME: Per-sample helpers here are shared with the unrolled kernels
package convert

import (
	"encoding/binary"
	"math"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
)

const (
	scale16 = 32768.0
	scale24 = 8388608.0
	scale32 = 2147483648.0
)

// finite is false for NaN and both infinities.
func finite(x float32) bool {
	return x-x == 0
}

func toS16(x float32) int16 {
	if !finite(x) {
		return 0
	}
	v := float64(x) * scale16
	if v >= math.MaxInt16 {
		return math.MaxInt16
	}
	if v <= math.MinInt16 {
		return math.MinInt16
	}
	return int16(math.Round(v))
}

func toS24(x float32) int32 {
	if !finite(x) {
		return 0
	}
	v := float64(x) * scale24
	if v >= audio.Max24Bit {
		return audio.Max24Bit
	}
	if v <= audio.Min24Bit {
		return audio.Min24Bit
	}
	return int32(math.Round(v))
}

func toS32(x float32) int32 {
	if !finite(x) {
		return 0
	}
	v := float64(x) * scale32
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	if v <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(math.Round(v))
}

func toF32(x float32) float32 {
	if !finite(x) {
		return 0
	}
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}

func fromS16(b []byte) float32 {
	return float32(int16(binary.LittleEndian.Uint16(b))) / scale16
}

func fromS24(b []byte) float32 {
	return float32(audio.SampleFrom24Bit([3]byte{b[0], b[1], b[2]})) / scale24
}

func fromS32(b []byte) float32 {
	return float32(float64(int32(binary.LittleEndian.Uint32(b))) / scale32)
}

func decodeS16Scalar(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := 0; i < n; i++ {
		dst[i] = fromS16(src[i*2:])
	}
	return 0
}

func decodeS24Scalar(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/3)
	for i := 0; i < n; i++ {
		dst[i] = fromS24(src[i*3:])
	}
	return 0
}

func decodeS32Scalar(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/4)
	for i := 0; i < n; i++ {
		dst[i] = fromS32(src[i*4:])
	}
	return 0
}

func decodeF32Scalar(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/4)
	bad := 0
	for i := 0; i < n; i++ {
		v := math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		if !finite(v) {
			v = 0
			bad++
		}
		dst[i] = v
	}
	return bad
}

func encodeS16Scalar(dst []byte, src []float32) {
	n := min(len(src), len(dst)/2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(toS16(src[i])))
	}
}

func encodeS24Scalar(dst []byte, src []float32) {
	n := min(len(src), len(dst)/3)
	for i := 0; i < n; i++ {
		b := audio.SampleTo24Bit(toS24(src[i]))
		dst[i*3] = b[0]
		dst[i*3+1] = b[1]
		dst[i*3+2] = b[2]
	}
}

func encodeS32Scalar(dst []byte, src []float32) {
	n := min(len(src), len(dst)/4)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], uint32(toS32(src[i])))
	}
}

func encodeF32Scalar(dst []byte, src []float32) {
	n := min(len(src), len(dst)/4)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(toF32(src[i])))
	}
}

func sanitizeScalar(buf []float32) int {
	bad := 0
	for i, v := range buf {
		if !finite(v) {
			buf[i] = 0
			bad++
		}
	}
	return bad
}
