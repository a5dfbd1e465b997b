// ABOUTME: WAV and AIFF decoding through go-audio
// ABOUTME: Normalises integer PCM by the file's bit depth
package decode

import (
	"fmt"
	"io"

	"github.com/go-audio/aiff"
	"github.com/go-audio/wav"
)

func decodeWAV(r io.ReadSeeker) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, fmt.Errorf("not a wav file: %w", ErrInvalidFile)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("wav decode error: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 {
		return Clip{}, fmt.Errorf("wav has no channel layout: %w", ErrInvalidFile)
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = buf.SourceBitDepth
	}
	// 8-bit WAV is unsigned.
	if depth == 8 {
		for i := range buf.Data {
			buf.Data[i] -= 128
		}
	}

	return Clip{
		Samples:    normalizeInts(buf.Data, depth),
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}

func decodeAIFF(r io.ReadSeeker) (Clip, error) {
	dec := aiff.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, fmt.Errorf("not an aiff file: %w", ErrInvalidFile)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("aiff decode error: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 {
		return Clip{}, fmt.Errorf("aiff has no channel layout: %w", ErrInvalidFile)
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = buf.SourceBitDepth
	}

	return Clip{
		Samples:    normalizeInts(buf.Data, depth),
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}
