// ABOUTME: File input sources for the live engine and offline renderer
// ABOUTME: Decodes WAV, AIFF, MP3, FLAC, Ogg Vorbis and raw PCM into mono float32
// Package decode turns audio files into mono float32 sources at the
// processing rate.
//
// Supported containers: WAV and AIFF (go-audio), MP3 (go-mp3), FLAC
// (mewkiz/flac), Ogg Vorbis (oggvorbis) and headerless PCM via OpenRaw.
//
// Files are decoded fully at open time, folded to mono and resampled once,
// so ReadFrames never touches the filesystem or allocates.
//
// Example:
//
//	src, err := decode.Open("voice.flac", 48000)
//	n := src.ReadFrames(block)
package decode
