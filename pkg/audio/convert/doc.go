// ABOUTME: Sample format and channel conversion between device buffers and float32
// ABOUTME: Kernel strategy is chosen once at startup from runtime CPU capabilities
// Package convert moves audio between packed device sample formats and the
// float32 representation used by the spatialization pipeline.
//
// All conversions saturate instead of wrapping and replace non-finite samples
// with silence. Two kernel strategies exist: a scalar reference and an
// unrolled eight-wide variant selected when the CPU reports wide vector units.
// Both produce identical results for every sample.
package convert
