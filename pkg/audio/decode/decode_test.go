// ABOUTME: Tests for file decoding and the looping source
// ABOUTME: Writes fixtures with go-audio encoders into a temp dir
package decode

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/aiff"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
)

// stereoFixture holds frames of L=0.5, R=0 at 16 bits.
func stereoFixture(frames int) *goaudio.IntBuffer {
	data := make([]int, frames*2)
	for i := 0; i < frames; i++ {
		data[2*i] = 16384
	}
	return &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 44100},
		SourceBitDepth: 16,
	}
}

func writeWAV(t *testing.T, path string, buf *goaudio.IntBuffer) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	enc := wav.NewEncoder(f, buf.Format.SampleRate, 16, buf.Format.NumChannels, 1)
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func writeAIFF(t *testing.T, path string, buf *goaudio.IntBuffer) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	enc := aiff.NewEncoder(f, buf.Format.SampleRate, 16, buf.Format.NumChannels)
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func TestDecodeContainers(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name  string
		file  string
		write func(*testing.T, string, *goaudio.IntBuffer)
	}{
		{"wav", "clip.wav", writeWAV},
		{"aiff", "clip.aiff", writeAIFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			tt.write(t, path, stereoFixture(64))

			clip, err := Decode(path)
			require.NoError(t, err)
			assert.Equal(t, 44100, clip.SampleRate)
			assert.Equal(t, 2, clip.Channels)
			assert.Equal(t, 64, clip.Frames())
			assert.InDelta(t, 0.5, clip.Samples[0], 1e-6)
			assert.InDelta(t, 0.0, clip.Samples[1], 1e-6)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.wav")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not riff data"), 0o644))

	tests := []struct {
		name string
		path string
		want error
	}{
		{"unknown extension", filepath.Join(dir, "clip.xyz"), ErrUnsupportedFormat},
		{"not a wav", garbage, ErrInvalidFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.path)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Decode(filepath.Join(dir, "missing.flac"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestDecodeRaw(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.raw")
	values := []float32{0.25, -0.25, 0.5, 0, 1, -1, 0.125}
	data := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))

	format := audio.Format{SampleRate: 48000, Channels: 2, SampleFormat: audio.SampleFormatFloat32}
	clip, err := DecodeRaw(path, format)
	require.NoError(t, err)
	// The trailing half frame is dropped.
	assert.Equal(t, 3, clip.Frames())
	assert.Equal(t, values[:6], clip.Samples)

	src, err := OpenRaw(path, format, 48000)
	require.NoError(t, err)
	got := make([]float32, 3)
	assert.Equal(t, 3, src.ReadFrames(got))
	assert.Equal(t, []float32{0, 0.25, 0}, got)

	_, err = DecodeRaw(path, audio.Format{SampleRate: 48000, Channels: 1})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = DecodeRaw(path, audio.Format{Channels: 1, SampleFormat: audio.SampleFormatInt16})
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestSourceLoops(t *testing.T) {
	clip := Clip{Samples: []float32{0.1, 0.2, 0.3}, SampleRate: 48000, Channels: 1}
	src, err := NewSource("ramp", clip, 48000)
	require.NoError(t, err)

	dst := make([]float32, 7)
	assert.Equal(t, 7, src.ReadFrames(dst))
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.1, 0.2, 0.3, 0.1}, dst)
	assert.Equal(t, 1, src.Position())

	src.Rewind()
	assert.Equal(t, 0, src.Position())

	src.SetLoop(false)
	assert.Equal(t, 3, src.ReadFrames(dst))
	assert.True(t, src.Done())
	assert.Equal(t, 0, src.ReadFrames(dst))
}

func TestSourceResamples(t *testing.T) {
	clip := Clip{Samples: make([]float32, 200), SampleRate: 24000, Channels: 2}
	for i := range clip.Samples {
		clip.Samples[i] = 0.5
	}

	src, err := NewSource("dc", clip, 48000)
	require.NoError(t, err)
	assert.Equal(t, 48000, src.SampleRate())
	assert.InDelta(t, 198, src.Frames(), 2)
	assert.InDelta(t, float64(4*time.Millisecond), float64(src.Duration()), float64(200*time.Microsecond))

	dst := make([]float32, 16)
	src.ReadFrames(dst)
	for _, v := range dst {
		assert.InDelta(t, 0.5, v, 1e-6)
	}
}

func TestNewSourceRejects(t *testing.T) {
	_, err := NewSource("empty", Clip{SampleRate: 48000, Channels: 1}, 48000)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = NewSource("rate", Clip{Samples: []float32{1}, SampleRate: 48000, Channels: 1}, 0)
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestTone(t *testing.T) {
	tone := NewTone(12000, 48000)
	dst := make([]float32, 8)
	assert.Equal(t, 8, tone.ReadFrames(dst))

	want := []float32{0, 0.5, 0, -0.5, 0, 0.5, 0, -0.5}
	for i := range want {
		assert.InDelta(t, want[i], dst[i], 1e-5, "sample %d", i)
	}

	tone.SetAmplitude(2)
	tone.ReadFrames(dst)
	assert.InDelta(t, 1.0, dst[1], 1e-5)
}
