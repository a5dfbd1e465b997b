// ABOUTME: Clip type and extension-based decoder dispatch
// ABOUTME: Every container decodes to an interleaved float32 Clip
package decode

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Clip is a fully decoded file: interleaved float32 samples in [-1, 1].
type Clip struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of interleaved frames in the clip.
func (c Clip) Frames() int {
	if c.Channels < 1 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// decodeFunc decodes one container from a seekable reader.
type decodeFunc func(r io.ReadSeeker) (Clip, error)

var decoders = map[string]decodeFunc{
	".wav":  decodeWAV,
	".wave": decodeWAV,
	".aif":  decodeAIFF,
	".aiff": decodeAIFF,
	".mp3":  decodeMP3,
	".flac": decodeFLAC,
	".ogg":  decodeOgg,
	".oga":  decodeOgg,
}

// Extensions lists the file extensions Decode understands.
func Extensions() []string {
	return []string{".wav", ".aif", ".aiff", ".mp3", ".flac", ".ogg"}
}

// Decode reads and decodes the file at path, choosing the container by
// extension.
func Decode(path string) (Clip, error) {
	ext := strings.ToLower(filepath.Ext(path))
	fn, ok := decoders[ext]
	if !ok {
		return Clip{}, fmt.Errorf("%s: %w", ext, ErrUnsupportedFormat)
	}

	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	clip, err := fn(f)
	if err != nil {
		return Clip{}, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	if clip.SampleRate <= 0 {
		return Clip{}, fmt.Errorf("%s: %w", filepath.Base(path), ErrInvalidRate)
	}
	if clip.Frames() == 0 {
		return Clip{}, fmt.Errorf("%s: %w", filepath.Base(path), ErrEmpty)
	}
	return clip, nil
}

// fullScale returns the integer magnitude of a full-scale sample at depth bits.
func fullScale(depth int) float32 {
	switch depth {
	case 8:
		return 128.0
	case 24:
		return 8388608.0
	case 32:
		return 2147483648.0
	default:
		return 32768.0
	}
}

// normalizeInts scales integer PCM into float32 samples.
func normalizeInts(data []int, depth int) []float32 {
	scale := fullScale(depth)
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / scale
	}
	return out
}
