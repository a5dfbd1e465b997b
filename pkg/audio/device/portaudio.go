//go:build portaudio

// ABOUTME: PortAudio duplex backend
// ABOUTME: Float32 streams with device underflow and overflow status flags
package device

import (
	"fmt"
	"strconv"
	"sync"
	"unsafe"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/engine"
)

func init() {
	register("portaudio", func(o Options, l logrus.FieldLogger) (engine.Backend, error) {
		p, err := NewPortAudio(l)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

// PortAudio is a duplex backend. Streams always run float32 samples.
type PortAudio struct {
	logger logrus.FieldLogger

	mu      sync.Mutex
	devices map[string]*portaudio.DeviceInfo
	open    bool
}

// NewPortAudio initializes the PortAudio library.
func NewPortAudio(logger logrus.FieldLogger) (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	logger.WithField("version", portaudio.VersionText()).Debug("PortAudio initialized")
	return &PortAudio{logger: logger, devices: make(map[string]*portaudio.DeviceInfo), open: true}, nil
}

func (p *PortAudio) Name() string { return "portaudio" }

func (p *PortAudio) Devices() ([]engine.DeviceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return nil, ErrClosed
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	out := make([]engine.DeviceInfo, 0, len(infos))
	for _, info := range infos {
		id := strconv.Itoa(info.Index)
		p.devices[id] = info
		d := engine.DeviceInfo{
			ID:                id,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: int(info.DefaultSampleRate),
			Formats:           []audio.SampleFormat{audio.SampleFormatFloat32},
		}
		if api := info.HostApi; api != nil {
			d.HostAPI = api.Name
			d.IsDefaultInput = api.DefaultInputDevice != nil && api.DefaultInputDevice.Index == info.Index
			d.IsDefaultOutput = api.DefaultOutputDevice != nil && api.DefaultOutputDevice.Index == info.Index
		}
		out = append(out, d)
	}
	return out, nil
}

func (p *PortAudio) lookup(id string, input bool) (*portaudio.DeviceInfo, error) {
	if id == "" {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}
	info, ok := p.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", engine.ErrDeviceNotFound, id)
	}
	return info, nil
}

func (p *PortAudio) Open(params engine.StreamParams, cb engine.Callback, onFault func(engine.Fault)) (engine.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return nil, ErrClosed
	}
	in, err := p.lookup(params.InputDevice, true)
	if err != nil {
		return nil, err
	}
	out, err := p.lookup(params.OutputDevice, false)
	if err != nil {
		return nil, err
	}

	granted := params
	granted.Format = audio.SampleFormatFloat32
	sp := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   in,
			Channels: params.InputChannels,
			Latency:  in.DefaultLowInputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Device:   out,
			Channels: params.OutputChannels,
			Latency:  out.DefaultLowOutputLatency,
		},
		SampleRate:      float64(params.SampleRate),
		FramesPerBuffer: params.FramesPerBuffer,
	}

	process := func(inBuf, outBuf []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		frames := len(outBuf) / max(granted.OutputChannels, 1)
		cb(floatBytes(inBuf), floatBytes(outBuf), frames, statusFlags(flags))
	}
	stream, err := portaudio.OpenStream(sp, process)
	if err != nil {
		if err == portaudio.InvalidSampleRate {
			return nil, fmt.Errorf("%w: %v", engine.ErrInvalidSampleRate, err)
		}
		if err == portaudio.DeviceUnavailable {
			return nil, fmt.Errorf("%w: %v", engine.ErrDeviceNotFound, err)
		}
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	return &paStream{params: granted, stream: stream}, nil
}

// Close terminates the PortAudio library.
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return nil
	}
	p.open = false
	return portaudio.Terminate()
}

// floatBytes views a float32 slice as little-endian bytes without copying.
func floatBytes(buf []float32) []byte {
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&buf[0])), len(buf)*4)
}

func statusFlags(f portaudio.StreamCallbackFlags) engine.StatusFlags {
	var out engine.StatusFlags
	if f&portaudio.InputUnderflow != 0 {
		out |= engine.StatusInputUnderflow
	}
	if f&portaudio.InputOverflow != 0 {
		out |= engine.StatusInputOverflow
	}
	if f&portaudio.OutputUnderflow != 0 {
		out |= engine.StatusOutputUnderflow
	}
	if f&portaudio.OutputOverflow != 0 {
		out |= engine.StatusOutputOverflow
	}
	return out
}

type paStream struct {
	params engine.StreamParams
	stream *portaudio.Stream
}

func (s *paStream) Params() engine.StreamParams { return s.params }
func (s *paStream) Start() error                { return s.stream.Start() }
func (s *paStream) Stop() error                 { return s.stream.Stop() }
func (s *paStream) Close() error                { return s.stream.Close() }
