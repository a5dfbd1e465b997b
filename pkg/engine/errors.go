// ABOUTME: Sentinel errors for engine lifecycle and device setup
// ABOUTME: Callers classify failures with errors.Is
package engine

import "errors"

var (
	// ErrNoProcessor is returned by Initialize when no spatialization stage is attached
	ErrNoProcessor = errors.New("no processor attached")
	// ErrNoBackend is returned by Initialize when no audio backend is attached
	ErrNoBackend = errors.New("no audio backend attached")
	// ErrInvalidState is returned for operations not allowed in the current state
	ErrInvalidState = errors.New("operation not allowed in current engine state")
	// ErrInvalidConfig is returned when a Config fails validation
	ErrInvalidConfig = errors.New("invalid engine config")
	// ErrDeviceNotFound is returned when a named device does not exist
	ErrDeviceNotFound = errors.New("audio device not found")
	// ErrInvalidSampleRate is returned when a device rejects the sample rate
	ErrInvalidSampleRate = errors.New("invalid sample rate")
	// ErrInvalidBuffer is returned when a device rejects the buffer size
	ErrInvalidBuffer = errors.New("invalid buffer size")
	// ErrRecoveryFailed is returned when recovery exhausted its attempts
	ErrRecoveryFailed = errors.New("recovery failed")
)
