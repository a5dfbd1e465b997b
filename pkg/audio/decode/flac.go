// ABOUTME: FLAC decoding through mewkiz/flac
// ABOUTME: Walks frames with ParseNext and interleaves the subframes
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

func decodeFLAC(r io.ReadSeeker) (Clip, error) {
	stream, err := flac.New(r)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to decode FLAC: %w", errors.Join(ErrInvalidFile, err))
	}
	defer stream.Close()

	info := stream.Info
	channels := int(info.NChannels)
	if channels < 1 {
		return Clip{}, fmt.Errorf("flac reports %d channels: %w", channels, ErrInvalidFile)
	}
	if info.BitsPerSample < 4 || info.BitsPerSample > 32 {
		return Clip{}, fmt.Errorf("flac bit depth %d: %w", info.BitsPerSample, ErrInvalidFile)
	}
	scale := float32(int64(1) << (info.BitsPerSample - 1))

	samples := make([]float32, 0, int(info.NSamples)*channels)
	for {
		frame, err := stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Clip{}, fmt.Errorf("flac decode error: %w", err)
		}
		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, float32(frame.Subframes[ch].Samples[i])/scale)
			}
		}
	}

	return Clip{
		Samples:    samples,
		SampleRate: int(info.SampleRate),
		Channels:   channels,
	}, nil
}
