// ABOUTME: Simulated audio backend driven by a goroutine clock
// ABOUTME: Runs at any speed factor and injects faults, flags and device loss for tests
package device

import (
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/engine"
)

// SimulatedConfig describes the simulated host.
type SimulatedConfig struct {
	Devices []engine.DeviceInfo
	// Speed is the clock rate relative to real time. Zero or less runs
	// callbacks back to back.
	Speed float64
	Input Source
	// Output, when set, receives every rendered period on the stream goroutine.
	Output func(out []byte, frames int)
}

// DefaultSimulatedConfig returns a host with two devices on one host API
// and a third on another.
func DefaultSimulatedConfig() SimulatedConfig {
	rates := []int{32000, 44100, 48000, 96000}
	formats := []audio.SampleFormat{audio.SampleFormatInt16, audio.SampleFormatInt24, audio.SampleFormatInt32, audio.SampleFormatFloat32}
	return SimulatedConfig{
		Speed: 1,
		Devices: []engine.DeviceInfo{
			{ID: "sim-0", Name: "Simulated Duplex", HostAPI: "sim", MaxInputChannels: 2, MaxOutputChannels: 2,
				DefaultSampleRate: 48000, SampleRates: rates, Formats: formats, IsDefaultInput: true, IsDefaultOutput: true},
			{ID: "sim-1", Name: "Simulated Headset", HostAPI: "sim", MaxInputChannels: 1, MaxOutputChannels: 2,
				DefaultSampleRate: 48000, SampleRates: rates, Formats: formats},
			{ID: "net-0", Name: "Simulated Network Sink", HostAPI: "net", MaxOutputChannels: 8,
				DefaultSampleRate: 48000, SampleRates: rates, Formats: formats},
		},
	}
}

// Simulated is an engine.Backend without hardware.
type Simulated struct {
	cfg    SimulatedConfig
	logger logrus.FieldLogger

	mu       sync.Mutex
	devices  []engine.DeviceInfo
	streams  []*simStream
	failOpen int
	closed   bool

	// pendingFlags are reported on the next callback of every stream.
	pendingFlags atomic.Uint32
	callbacks    atomic.Uint64
}

// NewSimulated creates a simulated backend.
func NewSimulated(cfg SimulatedConfig, logger logrus.FieldLogger) *Simulated {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Simulated{
		cfg:     cfg,
		logger:  logger.WithField("component", "simulated"),
		devices: slices.Clone(cfg.Devices),
	}
}

func (s *Simulated) Name() string { return "sim" }

func (s *Simulated) Devices() ([]engine.DeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return slices.Clone(s.devices), nil
}

// Open validates params against the simulated devices and returns a stopped stream.
func (s *Simulated) Open(params engine.StreamParams, cb engine.Callback, onFault func(engine.Fault)) (engine.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.failOpen != 0 {
		if s.failOpen > 0 {
			s.failOpen--
		}
		return nil, fmt.Errorf("simulated open failure")
	}

	in, ok := s.lookup(params.InputDevice, true)
	if !ok {
		return nil, fmt.Errorf("%w: input %q", engine.ErrDeviceNotFound, params.InputDevice)
	}
	out, ok := s.lookup(params.OutputDevice, false)
	if !ok {
		return nil, fmt.Errorf("%w: output %q", engine.ErrDeviceNotFound, params.OutputDevice)
	}
	if !out.SupportsRate(params.SampleRate) || !in.SupportsRate(params.SampleRate) {
		return nil, fmt.Errorf("%w: %d Hz", engine.ErrInvalidSampleRate, params.SampleRate)
	}
	if params.FramesPerBuffer <= 0 {
		return nil, fmt.Errorf("%w: %d frames", engine.ErrInvalidBuffer, params.FramesPerBuffer)
	}

	feed, err := newFeeder(s.cfg.Input, params, params.FramesPerBuffer)
	if err != nil {
		return nil, err
	}
	st := &simStream{
		backend:  s,
		params:   params,
		inputID:  in.ID,
		outputID: out.ID,
		cb:       cb,
		onFault:  onFault,
		input:    make([]byte, params.FramesPerBuffer*params.InputFormat().FrameBytes()),
		output:   make([]byte, params.FramesPerBuffer*params.OutputFormat().FrameBytes()),
		feeder:   feed,
		sink:     s.cfg.Output,
		speed:    s.cfg.Speed,
	}
	s.streams = append(s.streams, st)
	return st, nil
}

func (s *Simulated) lookup(id string, input bool) (engine.DeviceInfo, bool) {
	for _, d := range s.devices {
		if id == d.ID || (id == "" && ((input && d.IsDefaultInput) || (!input && d.IsDefaultOutput))) {
			return d, true
		}
	}
	return engine.DeviceInfo{}, false
}

// Close stops every stream.
func (s *Simulated) Close() error {
	s.mu.Lock()
	streams := slices.Clone(s.streams)
	s.closed = true
	s.mu.Unlock()
	for _, st := range streams {
		_ = st.Close()
	}
	return nil
}

// RemoveDevice unplugs a device. Streams using it stop calling back and
// report engine.FaultDeviceLost.
func (s *Simulated) RemoveDevice(id string) {
	s.mu.Lock()
	s.devices = slices.DeleteFunc(s.devices, func(d engine.DeviceInfo) bool { return d.ID == id })
	var lost []*simStream
	for _, st := range s.streams {
		if st.inputID == id || st.outputID == id {
			lost = append(lost, st)
		}
	}
	s.mu.Unlock()

	for _, st := range lost {
		st.lost.Store(true)
		if st.onFault != nil {
			st.onFault(engine.FaultDeviceLost)
		}
	}
	s.logger.WithField("device", id).Info("Simulated device removed")
}

// AddDevice plugs a device in.
func (s *Simulated) AddDevice(d engine.DeviceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = append(s.devices, d)
}

// InjectFault reports f from every open stream.
func (s *Simulated) InjectFault(f engine.Fault) {
	for _, st := range s.openStreams() {
		if st.onFault != nil {
			st.onFault(f)
		}
	}
}

// InjectFlags marks the next callback of every stream with flags.
func (s *Simulated) InjectFlags(flags engine.StatusFlags) {
	s.pendingFlags.Or(uint32(flags))
}

// FailNextOpens makes the next n Open calls fail; negative fails until reset.
func (s *Simulated) FailNextOpens(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOpen = n
}

// Callbacks returns the callbacks run by all streams so far.
func (s *Simulated) Callbacks() uint64 {
	return s.callbacks.Load()
}

// Active returns the most recently opened stream that is running.
func (s *Simulated) Active() (engine.StreamParams, bool) {
	streams := s.openStreams()
	for i := len(streams) - 1; i >= 0; i-- {
		if streams[i].running.Load() {
			return streams[i].params, true
		}
	}
	return engine.StreamParams{}, false
}

func (s *Simulated) openStreams() []*simStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*simStream, 0, len(s.streams))
	for _, st := range s.streams {
		if !st.closed.Load() {
			out = append(out, st)
		}
	}
	return out
}

func (s *Simulated) forget(st *simStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = slices.DeleteFunc(s.streams, func(x *simStream) bool { return x == st })
}

type simStream struct {
	backend  *Simulated
	params   engine.StreamParams
	inputID  string
	outputID string
	cb       engine.Callback
	onFault  func(engine.Fault)
	input    []byte
	output   []byte
	feeder   *feeder
	sink     func([]byte, int)
	speed    float64

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running atomic.Bool
	closed  atomic.Bool
	lost    atomic.Bool
}

func (st *simStream) Params() engine.StreamParams { return st.params }

func (st *simStream) Start() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed.Load() {
		return ErrClosed
	}
	if st.stop != nil {
		return nil
	}
	st.stop = make(chan struct{})
	st.done = make(chan struct{})
	st.running.Store(true)
	go st.run(st.stop, st.done)
	return nil
}

// Stop returns once no callback is in flight.
func (st *simStream) Stop() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.stop == nil {
		return nil
	}
	close(st.stop)
	<-st.done
	st.stop, st.done = nil, nil
	st.running.Store(false)
	return nil
}

func (st *simStream) Close() error {
	err := st.Stop()
	if st.closed.CompareAndSwap(false, true) {
		st.backend.forget(st)
	}
	return err
}

func (st *simStream) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	frames := st.params.FramesPerBuffer
	var period time.Duration
	if st.speed > 0 {
		period = time.Duration(float64(frames) * float64(time.Second) / float64(st.params.SampleRate) / st.speed)
	}
	next := time.Now()
	for {
		select {
		case <-stop:
			return
		default:
		}
		if st.lost.Load() {
			// A removed device never calls back again.
			<-stop
			return
		}

		flags := engine.StatusFlags(st.backend.pendingFlags.Swap(0))
		st.feeder.fill(st.input, frames)
		st.cb(st.input, st.output, frames, flags)
		st.backend.callbacks.Add(1)
		if st.sink != nil {
			st.sink(st.output, frames)
		}

		if period > 0 {
			next = next.Add(period)
			if wait := time.Until(next); wait > 0 {
				select {
				case <-stop:
					return
				case <-time.After(wait):
				}
			} else if wait < -10*period {
				// Fell far behind; resynchronise instead of bursting.
				next = time.Now()
			}
		}
	}
}
