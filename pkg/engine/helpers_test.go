// ABOUTME: Test doubles for the engine: a scriptable backend and processor
// ABOUTME: The fake stream fires callbacks only while started, like a device
package engine

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio/convert"
)

var errTest = errors.New("test failure")

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(ev string) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}

type fakeBackend struct {
	log *eventLog

	mu       sync.Mutex
	devices  []DeviceInfo
	opens    []StreamParams
	streams  []*fakeStream
	failOpen int // negative fails forever
	// grant, when set, replaces the negotiated parameters.
	grant func(StreamParams) StreamParams
}

func newFakeBackend(log *eventLog) *fakeBackend {
	return &fakeBackend{
		log: log,
		devices: []DeviceInfo{
			{ID: "mic", Name: "Mic", HostAPI: "alsa", MaxInputChannels: 2, IsDefaultInput: true},
			{ID: "a-out", Name: "Speakers", HostAPI: "alsa", MaxOutputChannels: 2, IsDefaultOutput: true,
				DefaultSampleRate: 48000, SampleRates: []int{48000, 44100}},
			{ID: "b-out", Name: "Headphones", HostAPI: "alsa", MaxOutputChannels: 2},
			{ID: "c-out", Name: "Network", HostAPI: "pulse", MaxOutputChannels: 2},
		},
	}
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Devices() ([]DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.devices), nil
}

func (b *fakeBackend) Open(params StreamParams, cb Callback, onFault func(Fault)) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log.add("open")
	if b.failOpen != 0 {
		if b.failOpen > 0 {
			b.failOpen--
		}
		return nil, errTest
	}
	granted := params
	if b.grant != nil {
		granted = b.grant(params)
	}
	b.opens = append(b.opens, params)
	s := &fakeStream{backend: b, params: granted, cb: cb, onFault: onFault}
	s.input = make([]byte, 4*granted.FramesPerBuffer*granted.InputFormat().FrameBytes())
	s.output = make([]byte, 4*granted.FramesPerBuffer*granted.OutputFormat().FrameBytes())
	b.streams = append(b.streams, s)
	return s, nil
}

func (b *fakeBackend) Close() error { return nil }

func (b *fakeBackend) removeDevice(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = slices.DeleteFunc(b.devices, func(d DeviceInfo) bool { return d.ID == id })
}

func (b *fakeBackend) setFailOpen(n int) {
	b.mu.Lock()
	b.failOpen = n
	b.mu.Unlock()
}

func (b *fakeBackend) lastOpen() StreamParams {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.opens) == 0 {
		return StreamParams{}
	}
	return b.opens[len(b.opens)-1]
}

func (b *fakeBackend) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.opens)
}

func (b *fakeBackend) current() *fakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}

type fakeStream struct {
	backend *fakeBackend
	params  StreamParams
	cb      Callback
	onFault func(Fault)

	mu      sync.Mutex
	started bool
	closed  bool
	input   []byte
	output  []byte
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend.log.add("start")
	s.started = true
	return nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend.log.add("stop")
	s.started = false
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend.log.add("close")
	s.started = false
	s.closed = true
	return nil
}

func (s *fakeStream) Params() StreamParams { return s.params }

// fire runs one callback of frames silent frames with flags if the stream
// is started. It reports whether the callback ran.
func (s *fakeStream) fire(frames int, flags StatusFlags) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return false
	}
	in := s.input[:frames*s.params.InputFormat().FrameBytes()]
	out := s.output[:frames*s.params.OutputFormat().FrameBytes()]
	s.cb(in, out, frames, flags)
	return true
}

// passthrough writes the input to the left channel and half of it to the right.
type passthrough struct {
	log    *eventLog
	fail   atomic.Bool
	blocks atomic.Int64
	frames atomic.Int64
}

func (p *passthrough) Process(input, output []float32, frames, inputChannels int) error {
	if p.fail.Load() {
		return errTest
	}
	p.blocks.Add(1)
	p.frames.Store(int64(frames))
	for i := 0; i < frames; i++ {
		output[2*i] = input[i]
		output[2*i+1] = 0.5 * input[i]
	}
	return nil
}

func (p *passthrough) Reset() {
	if p.log != nil {
		p.log.add("reset")
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MonitorInterval = 2 * time.Millisecond
	cfg.Controller.Enabled = false
	cfg.Controller.Cooldown = 0
	return cfg
}

type harness struct {
	engine    *Engine
	backend   *fakeBackend
	processor *passthrough
	log       *eventLog
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	log := &eventLog{}
	h := &harness{log: log, backend: newFakeBackend(log), processor: &passthrough{log: log}}
	h.engine = New(h.backend, h.processor, cfg, nil)
	t.Cleanup(func() { _ = h.engine.Stop() })
	return h
}

func encodeF32(t *testing.T, samples []float32) []byte {
	t.Helper()
	out := make([]byte, len(samples)*4)
	require.Equal(t, len(samples), convert.Encode(out, samples, audio.SampleFormatFloat32))
	return out
}

func decodeAs(t *testing.T, data []byte, format audio.SampleFormat) []float32 {
	t.Helper()
	out := make([]float32, len(data)/format.BytesPerSample())
	n, _ := convert.Decode(out, data, format)
	require.Equal(t, len(out), n)
	return out
}
