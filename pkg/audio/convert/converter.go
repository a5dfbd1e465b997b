// ABOUTME: Preallocated format and channel converter between two stream formats
// ABOUTME: Convert never allocates once constructed
package convert

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
)

// Converter converts packed frames from one Format into another of the same rate.
type Converter struct {
	in, out   audio.Format
	kernels   *Kernels
	maxFrames int
	decoded   []float32
	remixed   []float32
}

// NewConverter allocates scratch for up to maxFrames frames per call.
func NewConverter(in, out audio.Format, maxFrames int) (*Converter, error) {
	if !in.SampleFormat.Valid() {
		return nil, fmt.Errorf("input %s: %w", in.SampleFormat, ErrUnsupportedFormat)
	}
	if !out.SampleFormat.Valid() {
		return nil, fmt.Errorf("output %s: %w", out.SampleFormat, ErrUnsupportedFormat)
	}
	if in.Channels < 1 || out.Channels < 1 {
		return nil, fmt.Errorf("%d -> %d channels: %w", in.Channels, out.Channels, ErrChannelCount)
	}
	if in.SampleRate != out.SampleRate {
		return nil, fmt.Errorf("%d -> %d Hz: %w", in.SampleRate, out.SampleRate, ErrRateMismatch)
	}
	return &Converter{
		in:        in,
		out:       out,
		kernels:   active,
		maxFrames: maxFrames,
		decoded:   make([]float32, maxFrames*in.Channels),
		remixed:   make([]float32, maxFrames*out.Channels),
	}, nil
}

// Convert converts frames frames from src into dst. It returns the number
// of non-finite samples that were silenced.
func (c *Converter) Convert(dst, src []byte, frames int) (int, error) {
	if frames > c.maxFrames {
		return 0, ErrShortBuffer
	}
	if len(src) < frames*c.in.FrameBytes() || len(dst) < frames*c.out.FrameBytes() {
		return 0, ErrShortBuffer
	}

	decoded := c.decoded[:frames*c.in.Channels]
	_, bad := c.kernels.Decode(decoded, src, c.in.SampleFormat)

	remixed := c.remixed[:frames*c.out.Channels]
	Remix(remixed, decoded, c.in.Channels, c.out.Channels, frames)

	c.kernels.Encode(dst, remixed, c.out.SampleFormat)
	return bad, nil
}
