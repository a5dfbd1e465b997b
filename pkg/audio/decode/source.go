// ABOUTME: Looping mono source built from a decoded clip
// ABOUTME: Feeds the oto and simulated backends as their capture input
package decode

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio/convert"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio/resample"
)

// Source plays a preloaded mono clip at a fixed rate. ReadFrames is meant
// for a single reader (the audio callback); Rewind and Position may be
// called from any goroutine.
type Source struct {
	name    string
	samples []float32
	rate    int
	loop    bool
	pos     atomic.Int64
}

// Open decodes the file at path and prepares it as a looping mono source
// at targetRate.
func Open(path string, targetRate int) (*Source, error) {
	clip, err := Decode(path)
	if err != nil {
		return nil, err
	}
	return NewSource(filepath.Base(path), clip, targetRate)
}

// OpenRaw is Open for headerless PCM described by format.
func OpenRaw(path string, format audio.Format, targetRate int) (*Source, error) {
	clip, err := DecodeRaw(path, format)
	if err != nil {
		return nil, err
	}
	return NewSource(filepath.Base(path), clip, targetRate)
}

// NewSource folds clip to mono and resamples it to targetRate.
func NewSource(name string, clip Clip, targetRate int) (*Source, error) {
	if targetRate <= 0 || clip.SampleRate <= 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrInvalidRate)
	}
	frames := clip.Frames()
	if frames == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmpty)
	}

	mono := make([]float32, frames)
	convert.Downmix(mono, clip.Samples, clip.Channels)
	convert.Sanitize(mono)

	if clip.SampleRate != targetRate {
		rs := resample.New(clip.SampleRate, targetRate, 1)
		out := make([]float32, rs.MaxOutputFrames(frames))
		n := rs.Resample(mono, out)
		if n == 0 {
			return nil, fmt.Errorf("%s resampled to nothing: %w", name, ErrEmpty)
		}
		mono = out[:n]
	}

	return &Source{
		name:    name,
		samples: mono,
		rate:    targetRate,
		loop:    true,
	}, nil
}

// Name returns the file name the source was opened from.
func (s *Source) Name() string { return s.name }

// SampleRate returns the rate ReadFrames produces.
func (s *Source) SampleRate() int { return s.rate }

// Frames returns the clip length in frames.
func (s *Source) Frames() int { return len(s.samples) }

// Duration returns the clip length.
func (s *Source) Duration() time.Duration {
	return time.Duration(len(s.samples)) * time.Second / time.Duration(s.rate)
}

// SetLoop controls whether the clip restarts at its end. Sources loop by
// default.
func (s *Source) SetLoop(loop bool) { s.loop = loop }

// Position returns the next frame ReadFrames will produce.
func (s *Source) Position() int { return int(s.pos.Load()) }

// Rewind restarts playback from the first frame.
func (s *Source) Rewind() { s.pos.Store(0) }

// Done reports whether a non-looping source has played to its end.
func (s *Source) Done() bool {
	return !s.loop && s.Position() >= len(s.samples)
}

// ReadFrames copies the next len(dst) frames into dst and returns how many
// were produced. A looping source always fills dst; otherwise the count
// drops below len(dst) at the end of the clip.
func (s *Source) ReadFrames(dst []float32) int {
	pos := int(s.pos.Load())
	written := 0
	for written < len(dst) {
		if pos >= len(s.samples) {
			if !s.loop {
				break
			}
			pos = 0
		}
		n := copy(dst[written:], s.samples[pos:])
		written += n
		pos += n
	}
	s.pos.Store(int64(pos))
	return written
}
