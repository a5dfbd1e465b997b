// ABOUTME: Head-related transfer function filter bank
// ABOUTME: Grid lookup, spherical-head synthesis and measured dataset loading
// Package hrtf builds and serves the grid of stereo impulse responses used for
// binaural rendering.
//
// A Bank covers every azimuth step around the listener and every elevation
// step in the supported range. It is populated once, from a measured dataset
// when one is available and from a spherical-head model otherwise, and is
// read-only afterwards. Lookups quantise a direction to the nearest cell and
// return a shared *Filter without copying or allocating.
//
// Angles use the listener frame: azimuth 0 is straight ahead, +90 is the right
// ear and 270 (or -90) the left ear; elevation is positive upwards.
//
// Example:
//
//	bank, err := hrtf.Build(ctx, hrtf.DefaultConfig(), nil, logger)
//	if err != nil {
//	    return err
//	}
//	f := bank.Filter(-90, 0) // left ear louder
package hrtf
