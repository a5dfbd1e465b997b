// ABOUTME: Engine configuration with defaults and validation
// ABOUTME: Buffer bounds, device selection, controller and recovery tuning
package engine

import (
	"fmt"
	"time"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
)

// Buffer size bounds in frames per callback.
const (
	MinBufferSize     = 64
	MaxBufferSize     = 4096
	DefaultBufferSize = 256
)

// Config holds everything the engine needs to open and run a stream.
type Config struct {
	// SampleRate is the processing rate the Processor runs at.
	SampleRate int
	// DeviceSampleRate is the rate requested from the device. Zero means SampleRate.
	DeviceSampleRate int
	BufferSize       int
	InputChannels    int
	OutputChannels   int
	Format           audio.SampleFormat
	InputDevice      string
	OutputDevice     string
	// RingBlocks is the ring buffer depth in processing blocks.
	RingBlocks      int
	MonitorInterval time.Duration
	Controller      ControllerConfig
	Recovery        RecoveryConfig
}

// DefaultConfig returns a mono-in, stereo-out float32 configuration at 48 kHz.
func DefaultConfig() Config {
	return Config{
		SampleRate:      48000,
		BufferSize:      DefaultBufferSize,
		InputChannels:   1,
		OutputChannels:  2,
		Format:          audio.SampleFormatFloat32,
		RingBlocks:      4,
		MonitorInterval: time.Second,
		Controller:      DefaultControllerConfig(),
		Recovery:        DefaultRecoveryConfig(),
	}
}

// deviceRate returns the rate to request from the device.
func (c Config) deviceRate() int {
	if c.DeviceSampleRate > 0 {
		return c.DeviceSampleRate
	}
	return c.SampleRate
}

// streamParams maps the config onto backend stream parameters.
func (c Config) streamParams() StreamParams {
	return StreamParams{
		InputDevice:     c.InputDevice,
		OutputDevice:    c.OutputDevice,
		SampleRate:      c.deviceRate(),
		FramesPerBuffer: c.BufferSize,
		InputChannels:   c.InputChannels,
		OutputChannels:  c.OutputChannels,
		Format:          c.Format,
	}
}

// Validate checks the config for values the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, c.SampleRate)
	case c.DeviceSampleRate < 0:
		return fmt.Errorf("%w: device sample rate %d", ErrInvalidConfig, c.DeviceSampleRate)
	case c.BufferSize < MinBufferSize || c.BufferSize > MaxBufferSize:
		return fmt.Errorf("%w: buffer size %d outside [%d, %d]", ErrInvalidConfig, c.BufferSize, MinBufferSize, MaxBufferSize)
	case c.InputChannels < 1 || c.InputChannels > 8:
		return fmt.Errorf("%w: input channels %d", ErrInvalidConfig, c.InputChannels)
	case c.OutputChannels < 1 || c.OutputChannels > 8:
		return fmt.Errorf("%w: output channels %d", ErrInvalidConfig, c.OutputChannels)
	case !c.Format.Valid():
		return fmt.Errorf("%w: sample format %v", ErrInvalidConfig, c.Format)
	case c.RingBlocks < 2:
		return fmt.Errorf("%w: ring depth %d blocks", ErrInvalidConfig, c.RingBlocks)
	case c.MonitorInterval <= 0:
		return fmt.Errorf("%w: monitor interval %v", ErrInvalidConfig, c.MonitorInterval)
	}
	if err := c.Controller.Validate(); err != nil {
		return err
	}
	return c.Recovery.Validate()
}
