// ABOUTME: Ogg Vorbis decoding through oggvorbis
// ABOUTME: The decoder already yields interleaved float32
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"
)

func decodeOgg(r io.ReadSeeker) (Clip, error) {
	samples, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to decode Ogg Vorbis: %w", errors.Join(ErrInvalidFile, err))
	}
	return Clip{
		Samples:    samples,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	}, nil
}
