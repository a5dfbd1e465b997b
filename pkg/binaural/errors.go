// ABOUTME: Sentinel errors for the spatializer
// ABOUTME: Returned from the audio path without allocation
package binaural

import "errors"

var (
	// ErrNotInitialized is returned by Process before Initialize succeeds
	ErrNotInitialized = errors.New("spatializer not initialized")
	// ErrInvalidChannels is returned for input channel counts other than 1 or 2
	ErrInvalidChannels = errors.New("input must be mono or stereo")
	// ErrShortBuffer is returned when input or output is smaller than frames
	ErrShortBuffer = errors.New("buffer shorter than frame count")
	// ErrInvalidConfig is returned when a Config fails validation
	ErrInvalidConfig = errors.New("invalid spatializer config")
)
