// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts float32 audio between sample rates across chunk boundaries
// Package resample provides streaming audio sample rate conversion.
//
// Uses linear interpolation for converting between sample rates and keeps the
// last input frame between calls, so a stream can be fed in arbitrary chunks
// without clicks at the seams. Output buffers are supplied by the caller and
// Resample never allocates, which makes it usable from an audio callback.
//
// Example:
//
//	r := resample.New(44100, 48000, 2)
//	out := make([]float32, r.MaxOutputFrames(len(in)/2)*2)
//	n := r.Resample(in, out)
package resample
