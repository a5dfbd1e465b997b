// ABOUTME: Malgo (miniaudio) duplex backend
// ABOUTME: Enumerates devices and runs the engine callback on miniaudio's device thread
package device

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/engine"
)

// miniaudio converts channel counts and rates itself, so every device
// accepts any layout the engine asks for.
const malgoMaxChannels = 8

// Malgo is a duplex backend on miniaudio.
type Malgo struct {
	logger logrus.FieldLogger

	mu  sync.Mutex
	ctx *malgo.AllocatedContext
	ids map[string]malgo.DeviceID
}

// NewMalgo initializes a miniaudio context.
func NewMalgo(logger logrus.FieldLogger) (*Malgo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		logger.Debug(strings.TrimSpace(msg))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	return &Malgo{
		logger: logger,
		ctx:    ctx,
		ids:    make(map[string]malgo.DeviceID),
	}, nil
}

func (m *Malgo) Name() string { return "malgo" }

// Devices lists capture and playback devices. IDs are prefixed by direction.
func (m *Malgo) Devices() ([]engine.DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return nil, ErrClosed
	}

	var out []engine.DeviceInfo
	for _, kind := range []malgo.DeviceType{malgo.Capture, malgo.Playback} {
		infos, err := m.ctx.Devices(kind)
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate devices: %w", err)
		}
		for _, info := range infos {
			id := deviceKey(kind, info.ID)
			m.ids[id] = info.ID
			d := engine.DeviceInfo{
				ID:      id,
				Name:    info.Name(),
				HostAPI: "miniaudio",
				Formats: []audio.SampleFormat{
					audio.SampleFormatInt16, audio.SampleFormatInt24,
					audio.SampleFormatInt32, audio.SampleFormatFloat32,
				},
			}
			if kind == malgo.Capture {
				d.MaxInputChannels = malgoMaxChannels
				d.IsDefaultInput = info.IsDefault != 0
			} else {
				d.MaxOutputChannels = malgoMaxChannels
				d.IsDefaultOutput = info.IsDefault != 0
			}
			out = append(out, d)
		}
	}
	return out, nil
}

func deviceKey(kind malgo.DeviceType, id malgo.DeviceID) string {
	prefix := "out:"
	if kind == malgo.Capture {
		prefix = "in:"
	}
	return prefix + hex.EncodeToString(bytes.TrimRight(id[:], "\x00"))
}

// Open initializes a duplex device. Empty device IDs select the defaults.
func (m *Malgo) Open(params engine.StreamParams, cb engine.Callback, onFault func(engine.Fault)) (engine.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return nil, ErrClosed
	}

	format, err := malgoFormat(params.Format)
	if err != nil {
		return nil, err
	}
	cfg := malgo.DefaultDeviceConfig(malgo.Duplex)
	cfg.Capture.Format = format
	cfg.Capture.Channels = uint32(params.InputChannels)
	cfg.Playback.Format = format
	cfg.Playback.Channels = uint32(params.OutputChannels)
	cfg.SampleRate = uint32(params.SampleRate)
	cfg.PeriodSizeInFrames = uint32(params.FramesPerBuffer)
	cfg.Alsa.NoMMap = 1

	if params.InputDevice != "" {
		id, ok := m.ids[params.InputDevice]
		if !ok {
			return nil, fmt.Errorf("%w: input %q", engine.ErrDeviceNotFound, params.InputDevice)
		}
		cfg.Capture.DeviceID = id.Pointer()
	}
	if params.OutputDevice != "" {
		id, ok := m.ids[params.OutputDevice]
		if !ok {
			return nil, fmt.Errorf("%w: output %q", engine.ErrDeviceNotFound, params.OutputDevice)
		}
		cfg.Playback.DeviceID = id.Pointer()
	}

	st := &malgoStream{params: params}
	callbacks := malgo.DeviceCallbacks{
		Data: func(out, in []byte, frames uint32) {
			cb(in, out, int(frames), 0)
		},
		// miniaudio stops a device on its own when it disappears.
		Stop: func() {
			if !st.stopping.Load() && onFault != nil {
				onFault(engine.FaultDeviceLost)
			}
		},
	}
	dev, err := malgo.InitDevice(m.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize duplex device: %w", err)
	}
	st.device = dev

	m.logger.WithFields(logrus.Fields{
		"format":      formatName(format),
		"sample_rate": params.SampleRate,
		"period":      params.FramesPerBuffer,
	}).Debug("Duplex device initialized")
	return st, nil
}

// Close releases the miniaudio context.
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return nil
	}
	if err := m.ctx.Uninit(); err != nil {
		m.logger.WithError(err).Warn("malgo context uninit error")
	}
	m.ctx.Free()
	m.ctx = nil
	return nil
}

type malgoStream struct {
	params   engine.StreamParams
	device   *malgo.Device
	stopping atomic.Bool
}

func (s *malgoStream) Params() engine.StreamParams { return s.params }

func (s *malgoStream) Start() error {
	s.stopping.Store(false)
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to start device: %w", err)
	}
	return nil
}

// Stop blocks until miniaudio has returned from the data callback.
func (s *malgoStream) Stop() error {
	s.stopping.Store(true)
	if !s.device.IsStarted() {
		return nil
	}
	return s.device.Stop()
}

func (s *malgoStream) Close() error {
	s.stopping.Store(true)
	s.device.Uninit()
	return nil
}

func malgoFormat(f audio.SampleFormat) (malgo.FormatType, error) {
	switch f {
	case audio.SampleFormatInt16:
		return malgo.FormatS16, nil
	case audio.SampleFormatInt24:
		return malgo.FormatS24, nil
	case audio.SampleFormatInt32:
		return malgo.FormatS32, nil
	case audio.SampleFormatFloat32:
		return malgo.FormatF32, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("%w: sample format %v", ErrNotSupported, f)
	}
}

// formatName returns human-readable format name
func formatName(format malgo.FormatType) string {
	switch format {
	case malgo.FormatS16:
		return "S16"
	case malgo.FormatS24:
		return "S24"
	case malgo.FormatS32:
		return "S32"
	case malgo.FormatF32:
		return "F32"
	default:
		return fmt.Sprintf("Unknown(%d)", format)
	}
}
