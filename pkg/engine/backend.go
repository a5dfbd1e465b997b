// ABOUTME: Contract between the engine and native audio I/O backends
// ABOUTME: Devices, stream parameters, status flags and fault codes
package engine

import (
	"fmt"
	"strings"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
)

// StatusFlags report device-side starvation for one callback.
type StatusFlags uint32

const (
	StatusInputUnderflow StatusFlags = 1 << iota
	StatusInputOverflow
	StatusOutputUnderflow
	StatusOutputOverflow
)

func (f StatusFlags) String() string {
	if f == 0 {
		return "ok"
	}
	var parts []string
	names := []struct {
		flag StatusFlags
		name string
	}{
		{StatusInputUnderflow, "input-underflow"},
		{StatusInputOverflow, "input-overflow"},
		{StatusOutputUnderflow, "output-underflow"},
		{StatusOutputOverflow, "output-overflow"},
	}
	for _, n := range names {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Fault is a transient device fault code. Several may be pending at once.
type Fault uint32

const (
	FaultDeviceLost Fault = 1 << iota
	FaultInvalidSampleRate
	FaultInvalidBuffer
	FaultUnknown
)

func (f Fault) String() string {
	switch f {
	case FaultDeviceLost:
		return "device-lost"
	case FaultInvalidSampleRate:
		return "invalid-sample-rate"
	case FaultInvalidBuffer:
		return "invalid-buffer"
	case FaultUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("faults(%#x)", uint32(f))
	}
}

// Callback is invoked by a stream for every period. input and output hold
// frames interleaved frames in the negotiated format. Implementations must
// not block.
type Callback func(input, output []byte, frames int, flags StatusFlags)

// DeviceInfo describes one audio device.
type DeviceInfo struct {
	ID                string
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate int
	SampleRates       []int
	Formats           []audio.SampleFormat
	IsDefaultInput    bool
	IsDefaultOutput   bool
}

// SupportsRate reports whether rate is listed, treating an empty list as any rate.
func (d DeviceInfo) SupportsRate(rate int) bool {
	if len(d.SampleRates) == 0 {
		return true
	}
	for _, r := range d.SampleRates {
		if r == rate {
			return true
		}
	}
	return false
}

// StreamParams are the parameters a stream is opened with. Empty device IDs
// select the backend default.
type StreamParams struct {
	InputDevice     string
	OutputDevice    string
	SampleRate      int
	FramesPerBuffer int
	InputChannels   int
	OutputChannels  int
	Format          audio.SampleFormat
}

// InputFormat returns the capture side format.
func (p StreamParams) InputFormat() audio.Format {
	return audio.Format{SampleRate: p.SampleRate, Channels: p.InputChannels, SampleFormat: p.Format}
}

// OutputFormat returns the playback side format.
func (p StreamParams) OutputFormat() audio.Format {
	return audio.Format{SampleRate: p.SampleRate, Channels: p.OutputChannels, SampleFormat: p.Format}
}

// Stream is an open duplex stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
	// Params returns the parameters the device actually accepted.
	Params() StreamParams
}

// Backend opens streams on a native audio API. onFault may be called from
// any goroutine, including the callback, and must not block.
type Backend interface {
	Name() string
	Devices() ([]DeviceInfo, error)
	Open(params StreamParams, cb Callback, onFault func(Fault)) (Stream, error)
	Close() error
}

// Processor is the spatialization stage run inside the callback.
type Processor interface {
	Process(input, output []float32, frames, inputChannels int) error
	Reset()
}
