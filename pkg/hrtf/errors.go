// ABOUTME: Sentinel errors for filter bank construction
// ABOUTME: Dataset absence is reported with ErrDatasetNotFound and is never fatal to Build
package hrtf

import "errors"

var (
	// ErrInvalidConfig is returned when a Config fails validation
	ErrInvalidConfig = errors.New("invalid hrtf config")
	// ErrDatasetNotFound is returned by loaders when no dataset exists at the path
	ErrDatasetNotFound = errors.New("hrtf dataset not found")
	// ErrMalformedDataset is returned for dataset entries that cannot be used
	ErrMalformedDataset = errors.New("malformed hrtf dataset")
)
