// ABOUTME: Tests for engine lifecycle, the audio callback and fault recovery
// ABOUTME: Callbacks are driven directly so results are deterministic
package engine

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
)

const eventually = 2 * time.Second

func TestInitializeFailsFast(t *testing.T) {
	t.Run("no processor", func(t *testing.T) {
		e := New(newFakeBackend(&eventLog{}), nil, testConfig(), nil)
		assert.ErrorIs(t, e.Initialize(), ErrNoProcessor)
		assert.Equal(t, StateUninitialized, e.State())
		assert.Nil(t, e.rt.Load())
	})

	t.Run("no backend", func(t *testing.T) {
		e := New(nil, &passthrough{}, testConfig(), nil)
		assert.ErrorIs(t, e.Initialize(), ErrNoBackend)
		assert.Equal(t, StateUninitialized, e.State())
	})

	t.Run("missing device", func(t *testing.T) {
		cfg := testConfig()
		cfg.OutputDevice = "nope"
		h := newHarness(t, cfg)
		assert.ErrorIs(t, h.engine.Initialize(), ErrDeviceNotFound)
		assert.Equal(t, StateUninitialized, h.engine.State())
		assert.Nil(t, h.engine.rt.Load())
	})

	t.Run("unsupported rate", func(t *testing.T) {
		cfg := testConfig()
		cfg.DeviceSampleRate = 96000
		h := newHarness(t, cfg)
		assert.ErrorIs(t, h.engine.Initialize(), ErrInvalidSampleRate)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig()
		cfg.BufferSize = 8
		h := newHarness(t, cfg)
		assert.ErrorIs(t, h.engine.Initialize(), ErrInvalidConfig)
	})

	t.Run("failed reconfigure keeps previous state", func(t *testing.T) {
		h := newHarness(t, testConfig())
		require.NoError(t, h.engine.Initialize())
		before := h.engine.rt.Load()

		bad := testConfig()
		bad.InputDevice = "missing"
		assert.ErrorIs(t, h.engine.Configure(bad), ErrDeviceNotFound)
		assert.Equal(t, StateInitialized, h.engine.State())
		assert.Same(t, before, h.engine.rt.Load())
		assert.Equal(t, "", h.engine.Config().InputDevice)
	})
}

func TestLifecycle(t *testing.T) {
	h := newHarness(t, testConfig())
	e := h.engine

	assert.ErrorIs(t, e.Start(), ErrInvalidState)
	require.NoError(t, e.Initialize())
	assert.Equal(t, StateInitialized, e.State())

	require.NoError(t, e.Start())
	assert.Equal(t, StateRunning, e.State())
	assert.ErrorIs(t, e.Start(), ErrInvalidState)
	assert.ErrorIs(t, e.Configure(testConfig()), ErrInvalidState)

	require.NoError(t, e.Stop())
	assert.Equal(t, StateInitialized, e.State())
	require.NoError(t, e.Stop())

	// The stream halts before buffers and processor state are released.
	events := h.log.list()
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, []string{"stop", "close", "reset"}, events[len(events)-3:])

	// Restart with changed parameters.
	cfg := testConfig()
	cfg.BufferSize = 512
	require.NoError(t, e.Configure(cfg))
	require.NoError(t, e.Start())
	assert.Equal(t, 512, h.backend.lastOpen().FramesPerBuffer)
	require.NoError(t, e.Stop())
}

func TestStartFailureLeavesInitialized(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.engine.Initialize())
	h.backend.setFailOpen(1)

	assert.ErrorIs(t, h.engine.Start(), errTest)
	assert.Equal(t, StateInitialized, h.engine.State())
	require.NoError(t, h.engine.Start())
	assert.Equal(t, StateRunning, h.engine.State())
}

func TestConcurrentStop(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.engine.Initialize())
	require.NoError(t, h.engine.Start())

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			_ = h.engine.Stop()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(eventually):
			t.Fatal("Stop did not return")
		}
	}
	require.Eventually(t, func() bool { return h.engine.State() == StateInitialized }, eventually, time.Millisecond)
}

func TestCallbackPassthrough(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.engine.Initialize())

	const frames = 256
	for call := 0; call < 5; call++ {
		in := make([]float32, frames)
		for i := range in {
			in[i] = float32(call*frames+i) / 4096
		}
		out := make([]byte, frames*2*4)
		h.engine.callback(encodeF32(t, in), out, frames, 0)

		got := decodeAs(t, out, audio.SampleFormatFloat32)
		for i := range in {
			require.Equal(t, in[i], got[2*i], "left frame %d of call %d", i, call)
			require.Equal(t, 0.5*in[i], got[2*i+1], "right frame %d of call %d", i, call)
		}
	}

	s := h.engine.Stats()
	assert.EqualValues(t, 5, s.Callbacks)
	assert.EqualValues(t, 5*frames, s.FramesProcessed)
	assert.EqualValues(t, 5, s.BlocksProcessed)
	assert.Zero(t, s.Underruns)
	assert.Zero(t, s.Overruns)
	assert.InDelta(t, float32(5*frames-1)/4096, s.PeakInput, 1e-6)
	assert.Greater(t, s.MaxCallback, time.Duration(0))
	assert.Equal(t, 48000, s.SampleRate)
	assert.Equal(t, 256, s.BufferSize)
}

func TestCallbackSmallPeriodsUnderrunOnce(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.engine.Initialize())

	const frames = 128
	var outputs [][]float32
	for call := 0; call < 6; call++ {
		in := make([]float32, frames)
		for i := range in {
			in[i] = float32(call + 1)
		}
		out := make([]byte, frames*2*4)
		h.engine.callback(encodeF32(t, in), out, frames, 0)
		outputs = append(outputs, decodeAs(t, out, audio.SampleFormatFloat32))
	}

	assert.EqualValues(t, 1, h.engine.Stats().Underruns)
	for _, v := range outputs[0] {
		require.Zero(t, v)
	}
	// One period of latency after the first block fills.
	for call := 1; call < 6; call++ {
		assert.Equal(t, float32(call), outputs[call][0], "call %d", call)
	}
}

func TestCallbackInt16StereoInput(t *testing.T) {
	cfg := testConfig()
	cfg.Format = audio.SampleFormatInt16
	cfg.InputChannels = 2
	h := newHarness(t, cfg)
	require.NoError(t, h.engine.Initialize())

	const frames = 256
	in := make([]byte, frames*2*2)
	for i := 0; i < frames; i++ {
		l, r := int16(16384), int16(8192)
		in[4*i], in[4*i+1] = byte(l), byte(l>>8)
		in[4*i+2], in[4*i+3] = byte(r), byte(r>>8)
	}
	out := make([]byte, frames*2*2)
	h.engine.callback(in, out, frames, 0)

	got := decodeAs(t, out, audio.SampleFormatInt16)
	for i := 0; i < frames; i++ {
		require.InDelta(t, 0.375, got[2*i], 1e-4)
		require.InDelta(t, 0.1875, got[2*i+1], 1e-4)
	}
}

func TestCallbackResamplesToProcessingRate(t *testing.T) {
	cfg := testConfig()
	cfg.DeviceSampleRate = 44100
	h := newHarness(t, cfg)
	require.NoError(t, h.engine.Initialize())

	const frames = 256
	in := make([]float32, frames)
	for i := range in {
		in[i] = 0.5
	}
	src := encodeF32(t, in)
	out := make([]byte, frames*2*4)
	for call := 0; call < 200; call++ {
		h.engine.callback(src, out, frames, 0)
		for i, v := range decodeAs(t, out, audio.SampleFormatFloat32) {
			if v != 0 {
				want := float32(0.5)
				if i%2 == 1 {
					want = 0.25
				}
				require.InDelta(t, want, v, 1e-5, "call %d sample %d", call, i)
			}
		}
	}

	s := h.engine.Stats()
	assert.Equal(t, 44100, s.SampleRate)
	assert.Equal(t, 48000, s.ProcessingRate)
	assert.LessOrEqual(t, s.Underruns, uint64(2))
	assert.Zero(t, s.Overruns)
	assert.EqualValues(t, (frames*48000+44099)/44100, h.processor.frames.Load())
}

func TestCallbackCountsDeviceFlags(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.engine.Initialize())

	in := make([]byte, 256*4)
	out := make([]byte, 256*2*4)
	h.engine.callback(in, out, 256, StatusOutputUnderflow|StatusInputOverflow)
	h.engine.callback(in, out, 256, StatusInputUnderflow)

	s := h.engine.Stats()
	assert.EqualValues(t, 1, s.OutputUnderflows)
	assert.EqualValues(t, 1, s.InputOverflows)
	assert.EqualValues(t, 1, s.InputUnderflows)
	assert.EqualValues(t, 1, s.Underruns)
	assert.EqualValues(t, 1, s.Overruns)
}

func TestCallbackInvalidBuffers(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.engine.Initialize())

	out := make([]byte, 10)
	h.engine.callback(make([]byte, 256*4), out, 256, 0)
	assert.EqualValues(t, 1, h.engine.Stats().BufferFaults)
	assert.NotZero(t, Fault(h.engine.faults.Load())&FaultInvalidBuffer)

	// Missing input is rendered as silence.
	h.engine.faults.Store(0)
	full := make([]byte, 256*2*4)
	h.engine.callback(nil, full, 256, 0)
	assert.EqualValues(t, 2, h.engine.Stats().BufferFaults)
	for _, v := range decodeAs(t, full, audio.SampleFormatFloat32) {
		require.Zero(t, v)
	}
}

func TestCallbackSanitizesInput(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.engine.Initialize())

	// Encoding would already sanitize, so write the bits directly.
	in := make([]byte, 256*4)
	binary.LittleEndian.PutUint32(in[3*4:], math.Float32bits(float32(math.NaN())))
	binary.LittleEndian.PutUint32(in[7*4:], math.Float32bits(float32(math.Inf(1))))
	binary.LittleEndian.PutUint32(in[9*4:], math.Float32bits(0.25))
	out := make([]byte, 256*2*4)
	h.engine.callback(in, out, 256, 0)

	assert.EqualValues(t, 2, h.engine.Stats().Sanitized)
	got := decodeAs(t, out, audio.SampleFormatFloat32)
	for _, v := range got {
		require.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0))
	}
	assert.Equal(t, float32(0.25), got[18])
}

func TestCallbackProcessorErrorEmitsSilence(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.engine.Initialize())
	h.processor.fail.Store(true)

	in := make([]float32, 256)
	for i := range in {
		in[i] = 1
	}
	out := make([]byte, 256*2*4)
	h.engine.callback(encodeF32(t, in), out, 256, 0)

	assert.EqualValues(t, 1, h.engine.Stats().ProcessErrors)
	for _, v := range decodeAs(t, out, audio.SampleFormatFloat32) {
		require.Zero(t, v)
	}
}

func TestCallbackLongPeriodIsChunked(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.engine.Initialize())

	const frames = 256 * 5
	in := make([]float32, frames)
	for i := range in {
		in[i] = float32(i) / frames
	}
	out := make([]byte, frames*2*4)
	h.engine.callback(encodeF32(t, in), out, frames, 0)

	got := decodeAs(t, out, audio.SampleFormatFloat32)
	for i := range in {
		require.Equal(t, in[i], got[2*i])
	}
	assert.Zero(t, h.engine.Stats().Underruns)
}

func TestCallbackDoesNotAllocate(t *testing.T) {
	cfg := testConfig()
	cfg.DeviceSampleRate = 44100
	h := newHarness(t, cfg)
	require.NoError(t, h.engine.Initialize())

	in := make([]byte, 256*4)
	out := make([]byte, 256*2*4)
	allocs := testing.AllocsPerRun(200, func() {
		h.engine.callback(in, out, 256, 0)
	})
	assert.Zero(t, allocs)
}

func TestResizeStep(t *testing.T) {
	h := newHarness(t, testConfig())
	e := h.engine
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Start())
	start := e.Stats().BufferSize

	require.NoError(t, e.ResizeStep(true))
	grown := e.Stats().BufferSize
	assert.Greater(t, grown, start)
	assert.LessOrEqual(t, float64(grown), float64(start)*1.5)
	assert.Equal(t, grown, h.backend.lastOpen().FramesPerBuffer)

	require.NoError(t, e.ResizeStep(false))
	assert.Less(t, e.Stats().BufferSize, grown)

	for e.Stats().BufferSize > e.Config().Controller.Min {
		require.NoError(t, e.ResizeStep(false))
	}
	assert.ErrorIs(t, e.ResizeStep(false), ErrInvalidBuffer)
	require.NoError(t, e.Stop())
}

func TestNegotiatedParametersRebuildBuffers(t *testing.T) {
	h := newHarness(t, testConfig())
	h.backend.grant = func(p StreamParams) StreamParams {
		p.FramesPerBuffer = 480
		return p
	}
	require.NoError(t, h.engine.Initialize())
	require.NoError(t, h.engine.Start())

	assert.Equal(t, 480, h.engine.Stats().BufferSize)
	require.True(t, h.backend.current().fire(480, 0))
	assert.Zero(t, h.engine.Stats().BufferFaults)
}

func TestResize(t *testing.T) {
	h := newHarness(t, testConfig())
	e := h.engine

	assert.ErrorIs(t, e.Resize(16), ErrInvalidBuffer)
	require.NoError(t, e.Resize(128))
	require.NoError(t, e.Initialize())
	assert.Equal(t, 128, e.Stats().BufferSize)

	require.NoError(t, e.Resize(192))
	assert.Equal(t, 192, e.Stats().BufferSize)

	require.NoError(t, e.Start())
	opens := h.backend.openCount()
	require.NoError(t, e.Resize(288))
	assert.Equal(t, opens+1, h.backend.openCount())
	assert.Equal(t, 288, h.backend.lastOpen().FramesPerBuffer)

	s := e.Stats()
	assert.Equal(t, 288, s.BufferSize)
	assert.EqualValues(t, 1, s.BufferChanges)
	assert.EqualValues(t, 1, s.Restarts)
	assert.Equal(t, StateRunning, s.State)

	require.NoError(t, e.Stop())
	assert.ErrorIs(t, e.mon.request(256), ErrInvalidState)
}

func TestAdaptiveGrowOnUnderruns(t *testing.T) {
	cfg := testConfig()
	cfg.Controller.Enabled = true
	h := newHarness(t, cfg)
	require.NoError(t, h.engine.Initialize())
	require.NoError(t, h.engine.Start())

	stream := h.backend.current()
	for i := 0; i < 5; i++ {
		stream.fire(256, StatusOutputUnderflow)
	}
	require.Eventually(t, func() bool {
		return h.backend.lastOpen().FramesPerBuffer == 384
	}, eventually, time.Millisecond)
	assert.Equal(t, StateRunning, h.engine.State())
}

func TestRecoveryDeviceLost(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.engine.Initialize())
	require.NoError(t, h.engine.Start())

	h.backend.removeDevice("a-out")
	h.backend.current().onFault(FaultDeviceLost)

	require.Eventually(t, func() bool {
		return h.backend.lastOpen().OutputDevice == "b-out" &&
			h.engine.RecoveryState() == RecoveryHealthy
	}, eventually, time.Millisecond)
	assert.Equal(t, "b-out", h.engine.Config().OutputDevice)
	assert.EqualValues(t, 1, h.engine.Stats().Restarts)
}

func TestRecoverySampleRateFallback(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.engine.Initialize())
	require.NoError(t, h.engine.Start())

	h.engine.ReportFault(FaultInvalidSampleRate)
	require.Eventually(t, func() bool {
		return h.backend.lastOpen().SampleRate == 44100 &&
			h.engine.RecoveryState() == RecoveryHealthy
	}, eventually, time.Millisecond)

	s := h.engine.Stats()
	assert.Equal(t, 44100, s.SampleRate)
	assert.Equal(t, 48000, s.ProcessingRate)
	require.True(t, h.backend.current().fire(256, 0))
}

func TestRecoveryGivesUp(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.engine.Initialize())
	require.NoError(t, h.engine.Start())

	h.backend.setFailOpen(-1)
	h.engine.ReportFault(FaultUnknown)
	require.Eventually(t, func() bool {
		return h.engine.RecoveryState() == RecoveryFailed
	}, eventually, time.Millisecond)

	// Three restarts were tried with the safe block size.
	assert.Equal(t, 1+3, len(filter(h.log.list(), "open")))
	assert.Equal(t, StateStopped, h.engine.State())
	assert.Equal(t, StateStopped, h.engine.Stats().State)
	assert.ErrorIs(t, h.engine.Resize(512), ErrInvalidState)
	assert.ErrorIs(t, h.engine.Start(), ErrInvalidState)

	h.backend.setFailOpen(0)
	require.NoError(t, h.engine.Stop())
	assert.Equal(t, StateInitialized, h.engine.State())
	require.NoError(t, h.engine.Start())
	assert.Equal(t, RecoveryHealthy, h.engine.RecoveryState())
}

func filter(events []string, name string) []string {
	var out []string
	for _, ev := range events {
		if ev == name {
			out = append(out, ev)
		}
	}
	return out
}
