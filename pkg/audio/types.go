// ABOUTME: Audio type definitions
// ABOUTME: Defines sample formats, stream formats and 24-bit packing helpers
package audio

import "fmt"

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// SampleFormat identifies how a single sample is laid out in memory
type SampleFormat int

const (
	SampleFormatUnknown SampleFormat = iota
	SampleFormatInt16
	SampleFormatInt24
	SampleFormatInt32
	SampleFormatFloat32
)

// BytesPerSample returns the packed size of one sample
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatInt16:
		return 2
	case SampleFormatInt24:
		return 3
	case SampleFormatInt32, SampleFormatFloat32:
		return 4
	default:
		return 0
	}
}

// BitDepth returns the nominal bit depth of the format
func (f SampleFormat) BitDepth() int {
	return f.BytesPerSample() * 8
}

// Valid reports whether the format is one of the supported representations
func (f SampleFormat) Valid() bool {
	return f.BytesPerSample() != 0
}

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatInt16:
		return "s16"
	case SampleFormatInt24:
		return "s24"
	case SampleFormatInt32:
		return "s32"
	case SampleFormatFloat32:
		return "f32"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// ParseSampleFormat maps a name such as "s16" or "f32" to a SampleFormat
func ParseSampleFormat(name string) (SampleFormat, error) {
	switch name {
	case "s16", "int16", "16":
		return SampleFormatInt16, nil
	case "s24", "int24", "24":
		return SampleFormatInt24, nil
	case "s32", "int32", "32":
		return SampleFormatInt32, nil
	case "f32", "float32", "float":
		return SampleFormatFloat32, nil
	}
	return SampleFormatUnknown, fmt.Errorf("unknown sample format: %q", name)
}

// Format describes an audio stream format
type Format struct {
	SampleRate   int
	Channels     int
	SampleFormat SampleFormat
}

// FrameBytes returns the size of one interleaved frame in bytes
func (f Format) FrameBytes() int {
	return f.Channels * f.SampleFormat.BytesPerSample()
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", f.SampleRate, f.Channels, f.SampleFormat)
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	// Take lower 24 bits, pack little-endian
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	// Reconstruct 24-bit value and sign-extend to 32-bit
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF // Set upper 8 bits to 1 for negative values
	}
	return val
}
