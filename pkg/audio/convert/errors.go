// ABOUTME: Sentinel errors for the conversion layer
// ABOUTME: Callers classify failures with errors.Is
package convert

import "errors"

var (
	// ErrUnsupportedFormat is returned for a sample format without kernels
	ErrUnsupportedFormat = errors.New("unsupported sample format")
	// ErrChannelCount is returned for a channel count below one
	ErrChannelCount = errors.New("invalid channel count")
	// ErrRateMismatch is returned when a Converter is asked to change sample rate
	ErrRateMismatch = errors.New("sample rate conversion not supported by converter")
	// ErrShortBuffer is returned when a destination cannot hold the requested frames
	ErrShortBuffer = errors.New("buffer too short")
)
