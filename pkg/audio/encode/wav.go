// ABOUTME: Streaming WAV writer on top of go-audio/wav
// ABOUTME: Converts float32 blocks to PCM and finalises the header on Close
package encode

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	// ErrInvalidDepth is returned for bit depths other than 16 and 24
	ErrInvalidDepth = errors.New("unsupported bit depth (supported: 16, 24)")
	// ErrInvalidLayout is returned for non-positive rates or channel counts
	ErrInvalidLayout = errors.New("invalid sample rate or channel count")
	// ErrClosed is returned when writing after Close
	ErrClosed = errors.New("writer closed")
)

// wavFormatPCM is the WAVE_FORMAT_PCM tag.
const wavFormatPCM = 1

// WAVWriter streams interleaved float32 audio into a PCM WAV file.
type WAVWriter struct {
	enc      *wav.Encoder
	closer   io.Closer
	buf      *goaudio.IntBuffer
	channels int
	depth    int
	frames   int
	closed   bool
}

// NewWAVWriter writes to w, which must be seekable so the header can be
// finalised.
func NewWAVWriter(w io.WriteSeeker, sampleRate, channels, depth int) (*WAVWriter, error) {
	if depth != 16 && depth != 24 {
		return nil, fmt.Errorf("%d: %w", depth, ErrInvalidDepth)
	}
	if sampleRate <= 0 || channels < 1 {
		return nil, fmt.Errorf("%d Hz, %d channels: %w", sampleRate, channels, ErrInvalidLayout)
	}
	return &WAVWriter{
		enc: wav.NewEncoder(w, sampleRate, depth, channels, wavFormatPCM),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: depth,
		},
		channels: channels,
		depth:    depth,
	}, nil
}

// CreateWAV creates path and returns a writer that closes the file on Close.
func CreateWAV(path string, sampleRate, channels, depth int) (*WAVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	w, err := NewWAVWriter(f, sampleRate, channels, depth)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	w.closer = f
	return w, nil
}

// Write appends interleaved samples. A trailing partial frame is dropped.
func (w *WAVWriter) Write(samples []float32) error {
	if w.closed {
		return ErrClosed
	}
	n := len(samples) / w.channels * w.channels
	if n == 0 {
		return nil
	}
	if cap(w.buf.Data) < n {
		w.buf.Data = make([]int, n)
	}
	w.buf.Data = w.buf.Data[:n]
	Quantize(w.buf.Data, samples[:n], w.depth)

	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("wav write error: %w", err)
	}
	w.frames += n / w.channels
	return nil
}

// Frames returns the number of frames written so far.
func (w *WAVWriter) Frames() int { return w.frames }

// Close finalises the header and closes the file when the writer owns it.
func (w *WAVWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.enc.Close()
	if w.closer != nil {
		err = errors.Join(err, w.closer.Close())
	}
	if err != nil {
		return fmt.Errorf("failed to finalise wav: %w", err)
	}
	return nil
}
