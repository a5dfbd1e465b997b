// ABOUTME: Sentinel errors for convolution engine construction
// ABOUTME: Processing itself never returns errors
package convolve

import "errors"

var (
	// ErrInvalidConfig is returned for non-positive lengths or an unknown mode
	ErrInvalidConfig = errors.New("invalid convolution config")
)
