// ABOUTME: Oto playback-only backend
// ABOUTME: oto pulls rendered audio through an io.Reader; input comes from a Source
package device

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/engine"
)

const otoDeviceID = "oto-default"

// Oto plays through the system default output. oto allows one context per
// process, so the first stream fixes the rate and channel count and later
// streams are granted the same.
type Oto struct {
	input  Source
	logger logrus.FieldLogger

	mu       sync.Mutex
	ctx      *oto.Context
	rate     int
	channels int
}

// NewOto creates an oto backend fed by input, which may be nil for silence.
func NewOto(input Source, logger logrus.FieldLogger) *Oto {
	return &Oto{input: input, logger: logger}
}

func (o *Oto) Name() string { return "oto" }

// Devices reports one output and a virtual input backed by the Source.
func (o *Oto) Devices() ([]engine.DeviceInfo, error) {
	return []engine.DeviceInfo{{
		ID:                otoDeviceID,
		Name:              "System default (oto)",
		HostAPI:           "oto",
		MaxInputChannels:  1,
		MaxOutputChannels: 2,
		DefaultSampleRate: 48000,
		Formats:           []audio.SampleFormat{audio.SampleFormatFloat32},
		IsDefaultInput:    true,
		IsDefaultOutput:   true,
	}}, nil
}

func (o *Oto) Open(params engine.StreamParams, cb engine.Callback, onFault func(engine.Fault)) (engine.Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	granted := params
	granted.Format = audio.SampleFormatFloat32
	if o.ctx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   params.SampleRate,
			ChannelCount: params.OutputChannels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   time.Duration(params.FramesPerBuffer) * time.Second / time.Duration(params.SampleRate),
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			return nil, fmt.Errorf("failed to create oto context: %w", err)
		}
		<-ready
		o.ctx, o.rate, o.channels = ctx, params.SampleRate, params.OutputChannels
		o.logger.WithFields(logrus.Fields{
			"sample_rate": o.rate,
			"channels":    o.channels,
		}).Info("oto context created")
	} else if o.rate != params.SampleRate || o.channels != params.OutputChannels {
		o.logger.WithFields(logrus.Fields{
			"requested": fmt.Sprintf("%dHz/%dch", params.SampleRate, params.OutputChannels),
			"granted":   fmt.Sprintf("%dHz/%dch", o.rate, o.channels),
		}).Warn("oto cannot reinitialize, keeping existing format")
	}
	granted.SampleRate = o.rate
	granted.OutputChannels = o.channels

	feed, err := newFeeder(o.input, granted, granted.FramesPerBuffer*4)
	if err != nil {
		return nil, err
	}
	st := &otoStream{
		params: granted,
		cb:     cb,
		feeder: feed,
		input:  make([]byte, granted.FramesPerBuffer*4*granted.InputFormat().FrameBytes()),
	}
	st.player = o.ctx.NewPlayer(st)
	return st, nil
}

// Close suspends the context; oto cannot release it.
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx == nil {
		return nil
	}
	return o.ctx.Suspend()
}

// otoStream is the io.Reader oto pulls from. Read is the engine callback.
type otoStream struct {
	params engine.StreamParams
	cb     engine.Callback
	feeder *feeder
	input  []byte
	player *oto.Player

	running  atomic.Bool
	inFlight atomic.Int32
}

func (s *otoStream) Params() engine.StreamParams { return s.params }

// Read renders as many whole frames as fit in p.
func (s *otoStream) Read(p []byte) (int, error) {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	if !s.running.Load() {
		clear(p)
		return len(p), nil
	}
	outBytes := s.params.OutputFormat().FrameBytes()
	frames := len(p) / outBytes
	inBytes := s.params.InputFormat().FrameBytes()
	if frames*inBytes > len(s.input) {
		frames = len(s.input) / inBytes
	}
	if frames == 0 {
		clear(p)
		return len(p), nil
	}
	in := s.input[:frames*inBytes]
	s.feeder.fill(in, frames)
	s.cb(in, p[:frames*outBytes], frames, 0)
	return frames * outBytes, nil
}

func (s *otoStream) Start() error {
	s.running.Store(true)
	s.player.Play()
	return nil
}

// Stop pauses playback and waits out any Read in progress.
func (s *otoStream) Stop() error {
	s.running.Store(false)
	s.player.Pause()
	for s.inFlight.Load() != 0 {
		runtime.Gosched()
	}
	return nil
}

func (s *otoStream) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}
	return s.player.Close()
}
