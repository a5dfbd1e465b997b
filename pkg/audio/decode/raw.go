// ABOUTME: Headerless PCM decoding
// ABOUTME: The caller supplies the layout; conversion reuses the real-time kernels
package decode

import (
	"fmt"
	"os"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio/convert"
)

// DecodeRaw reads little-endian interleaved PCM laid out as format.
// Non-finite float samples are replaced with silence.
func DecodeRaw(path string, format audio.Format) (Clip, error) {
	if !format.SampleFormat.Valid() || format.Channels < 1 {
		return Clip{}, fmt.Errorf("raw layout %s: %w", format, ErrUnsupportedFormat)
	}
	if format.SampleRate <= 0 {
		return Clip{}, fmt.Errorf("raw layout %s: %w", format, ErrInvalidRate)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to read raw audio: %w", err)
	}

	frames := len(data) / format.FrameBytes()
	if frames == 0 {
		return Clip{}, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	samples := make([]float32, frames*format.Channels)
	convert.Decode(samples, data[:frames*format.FrameBytes()], format.SampleFormat)

	return Clip{
		Samples:    samples,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	}, nil
}
