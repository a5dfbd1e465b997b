// ABOUTME: Audio output encoding for offline renders
// ABOUTME: Writes stereo float32 blocks to 16 or 24-bit PCM WAV files
// Package encode writes rendered audio to disk.
//
// WAVWriter accepts interleaved float32 blocks, quantises them with
// saturation and streams them through go-audio/wav. The header is patched
// with the final length on Close.
//
// Example:
//
//	w, err := encode.CreateWAV("out.wav", 48000, 2, 24)
//	err = w.Write(block)
//	err = w.Close()
package encode
