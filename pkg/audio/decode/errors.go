// ABOUTME: Sentinel errors for file decoding
// ABOUTME: Classified with errors.Is by callers
package decode

import "errors"

var (
	// ErrUnsupportedFormat is returned for file extensions with no decoder
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrInvalidFile is returned when a file does not parse as its container
	ErrInvalidFile = errors.New("invalid audio file")
	// ErrEmpty is returned when a file decodes to zero frames
	ErrEmpty = errors.New("audio file contains no samples")
	// ErrInvalidRate is returned for non-positive sample rates
	ErrInvalidRate = errors.New("invalid sample rate")
)
