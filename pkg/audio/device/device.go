// ABOUTME: Backend factory and helpers shared by the device backends
// ABOUTME: Source feeds playback-only and simulated streams with input audio
package device

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio/convert"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/engine"
)

var (
	// ErrUnknownBackend is returned by New for unregistered names
	ErrUnknownBackend = errors.New("unknown audio backend")
	// ErrNotSupported is returned when a backend cannot do what was asked
	ErrNotSupported = errors.New("not supported by backend")
	// ErrClosed is returned by operations on a closed backend
	ErrClosed = errors.New("backend closed")
)

// Source produces mono input at the stream rate. ReadFrames fills dst and
// returns how many frames were written; fewer than len(dst) means the
// remainder is silence.
type Source interface {
	ReadFrames(dst []float32) int
}

// Options configures backend construction.
type Options struct {
	// Input replaces the capture device for backends without one (oto) and
	// drives the simulated microphone.
	Input Source
	// Speed is the simulated clock rate relative to real time. Zero runs
	// callbacks back to back.
	Speed float64
}

type factory func(Options, logrus.FieldLogger) (engine.Backend, error)

var (
	registryMu sync.Mutex
	registry   = map[string]factory{}
)

func register(name string, f factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

func init() {
	register("malgo", func(o Options, l logrus.FieldLogger) (engine.Backend, error) {
		m, err := NewMalgo(l)
		if err != nil {
			return nil, err
		}
		return m, nil
	})
	register("oto", func(o Options, l logrus.FieldLogger) (engine.Backend, error) { return NewOto(o.Input, l), nil })
	register("sim", func(o Options, l logrus.FieldLogger) (engine.Backend, error) {
		cfg := DefaultSimulatedConfig()
		cfg.Speed = o.Speed
		cfg.Input = o.Input
		return NewSimulated(cfg, l), nil
	})
}

// Names lists the registered backends.
func Names() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs the named backend.
func New(name string, opts Options, logger logrus.FieldLogger) (engine.Backend, error) {
	registryMu.Lock()
	f, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownBackend, name, Names())
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return f(opts, logger.WithField("backend", name))
}

// feeder turns a mono Source into interleaved input bytes for a stream.
// Buffers are allocated once for the largest period.
type feeder struct {
	src  Source
	in   audio.Format
	out  audio.Format
	conv *convert.Converter
	max  int
	mono []float32
	raw  []byte
}

// newFeeder builds a feeder producing params' input layout. A nil src or a
// stream without input channels yields silence.
func newFeeder(src Source, params engine.StreamParams, maxFrames int) (*feeder, error) {
	f := &feeder{
		src: src,
		in:  audio.Format{SampleRate: params.SampleRate, Channels: 1, SampleFormat: audio.SampleFormatFloat32},
		out: params.InputFormat(),
	}
	if src == nil || params.InputChannels < 1 {
		f.src = nil
		return f, nil
	}
	if err := f.grow(maxFrames); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *feeder) grow(frames int) error {
	conv, err := convert.NewConverter(f.in, f.out, frames)
	if err != nil {
		return fmt.Errorf("input feeder: %w", err)
	}
	f.conv = conv
	f.max = frames
	f.mono = make([]float32, frames)
	f.raw = make([]byte, frames*f.in.FrameBytes())
	return nil
}

// fill writes frames frames into dst, growing the scratch buffers only
// when a backend delivers a longer period than announced.
func (f *feeder) fill(dst []byte, frames int) {
	if f.src == nil {
		clear(dst)
		return
	}
	if frames > f.max && f.grow(frames) != nil {
		clear(dst)
		return
	}
	mono := f.mono[:frames]
	n := f.src.ReadFrames(mono)
	clear(mono[n:])
	convert.Encode(f.raw, mono, audio.SampleFormatFloat32)
	if _, err := f.conv.Convert(dst, f.raw, frames); err != nil {
		clear(dst)
	}
}
