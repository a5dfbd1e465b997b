// ABOUTME: Tests for PCM quantisation and the WAV writer
// ABOUTME: Round-trips through the go-audio decoder
package encode

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantize(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	tests := []struct {
		name  string
		depth int
		in    []float32
		want  []int
	}{
		{"16-bit", 16, []float32{0, 0.5, -0.5, 1, -1}, []int{0, 16384, -16384, 32767, -32768}},
		{"16-bit saturates", 16, []float32{1.5, -3}, []int{32767, -32768}},
		{"24-bit", 24, []float32{0.5, 2, -2}, []int{4194304, 8388607, -8388608}},
		{"non-finite", 16, []float32{nan, inf, -inf}, []int{0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := make([]int, len(tt.in))
			assert.Equal(t, len(tt.in), Quantize(got, tt.in, tt.depth))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWAVWriterRoundTrip(t *testing.T) {
	tests := []struct {
		depth int
		scale float64
	}{
		{16, 32767},
		{24, 8388607},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d-bit", tt.depth), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out.wav")
			w, err := CreateWAV(path, 48000, 2, tt.depth)
			require.NoError(t, err)

			block := []float32{0.25, -0.25, 0.5, -0.5, 0.75}
			require.NoError(t, w.Write(block))
			require.NoError(t, w.Write(block[:4]))
			assert.Equal(t, 4, w.Frames())
			require.NoError(t, w.Close())
			require.NoError(t, w.Close())
			assert.ErrorIs(t, w.Write(block), ErrClosed)

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()

			dec := wav.NewDecoder(f)
			require.True(t, dec.IsValidFile())
			buf, err := dec.FullPCMBuffer()
			require.NoError(t, err)
			assert.Equal(t, 48000, buf.Format.SampleRate)
			assert.Equal(t, 2, buf.Format.NumChannels)
			require.Len(t, buf.Data, 8)
			assert.InDelta(t, 0.25*tt.scale, float64(buf.Data[0]), 1)
			assert.InDelta(t, -0.5*tt.scale, float64(buf.Data[3]), 1)
		})
	}
}

func TestWAVWriterRejects(t *testing.T) {
	dir := t.TempDir()

	_, err := CreateWAV(filepath.Join(dir, "a.wav"), 48000, 2, 8)
	assert.ErrorIs(t, err, ErrInvalidDepth)
	_, statErr := os.Stat(filepath.Join(dir, "a.wav"))
	assert.True(t, os.IsNotExist(statErr))

	_, err = CreateWAV(filepath.Join(dir, "b.wav"), 0, 2, 16)
	assert.ErrorIs(t, err, ErrInvalidLayout)
}
