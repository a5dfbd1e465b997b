// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, SampleFormat and 24-bit sample packing helpers
// Package audio provides fundamental audio types shared by the binaural pipeline.
//
// This package defines core types used throughout the repository:
//   - Format: Describes a device or file stream (sample rate, channels, sample format)
//   - SampleFormat: The on-the-wire representation of one sample (int16, int24, int32, float32)
//
// It also provides helpers for packing and unpacking 24-bit little-endian samples,
// which the conversion layer uses for its scalar 24-bit path.
//
// Example:
//
//	format := audio.Format{
//	    SampleRate:   48000,
//	    Channels:     2,
//	    SampleFormat: audio.SampleFormatInt24,
//	}
//
//	frameBytes := format.FrameBytes() // 6
package audio
