// ABOUTME: Engine lifecycle: initialize, start, stop, resize and fault intake
// ABOUTME: Control operations serialize on a mutex the callback never touches
package engine

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Engine runs a Processor inside an audio backend's callback.
type Engine struct {
	id        uuid.UUID
	backend   Backend
	processor Processor
	logger    logrus.FieldLogger

	// mu serializes control operations. The callback never takes it.
	mu         sync.Mutex
	cfg        Config
	devices    devicePair
	stream     Stream
	controller *BufferController
	mon        *monitor

	state    atomic.Int32
	recovery atomic.Int32
	faults   atomic.Uint32
	rt       atomic.Pointer[rtState]
	stats    stats
}

// New creates an engine. Nothing is validated until Initialize.
func New(backend Backend, processor Processor, cfg Config, logger logrus.FieldLogger) *Engine {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	id := uuid.New()
	return &Engine{
		id:        id,
		backend:   backend,
		processor: processor,
		cfg:       cfg,
		logger: logger.WithFields(logrus.Fields{
			"component": "engine",
			"engine_id": id.String()[:8],
		}),
	}
}

// ID identifies this engine instance in logs.
func (e *Engine) ID() uuid.UUID { return e.id }

// State returns the lifecycle state.
func (e *Engine) State() State { return State(e.state.Load()) }

// RecoveryState returns the fault recovery state.
func (e *Engine) RecoveryState() RecoveryState { return RecoveryState(e.recovery.Load()) }

// Config returns the active configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Initialize validates the configuration and devices and allocates the
// real-time buffers. On error the engine is left exactly as it was.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initializeLocked(e.cfg)
}

// Configure replaces the configuration. It is allowed before Initialize
// and after Stop; an initialized engine is re-initialized with cfg.
func (e *Engine) Configure(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.State() {
	case StateUninitialized:
		if err := cfg.Validate(); err != nil {
			return err
		}
		e.cfg = cfg
		return nil
	case StateInitialized:
		return e.initializeLocked(cfg)
	default:
		return fmt.Errorf("%w: configure while %s", ErrInvalidState, e.State())
	}
}

func (e *Engine) initializeLocked(cfg Config) error {
	if s := e.State(); s != StateUninitialized && s != StateInitialized {
		return fmt.Errorf("%w: initialize while %s", ErrInvalidState, s)
	}
	if e.processor == nil {
		return ErrNoProcessor
	}
	if e.backend == nil {
		return ErrNoBackend
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	devices, err := e.backend.Devices()
	if err != nil {
		return fmt.Errorf("enumerate %s devices: %w", e.backend.Name(), err)
	}
	pair, err := resolveDevices(devices, cfg)
	if err != nil {
		return err
	}
	if !pair.output.SupportsRate(cfg.deviceRate()) {
		return fmt.Errorf("%w: %q does not support %d Hz", ErrInvalidSampleRate, pair.output.Name, cfg.deviceRate())
	}

	e.cfg = cfg
	e.devices = pair
	e.controller = NewBufferController(cfg.Controller)
	e.rt.Store(newRTState(cfg.streamParams(), cfg.SampleRate, cfg.RingBlocks, e.processor))
	e.state.Store(int32(StateInitialized))

	e.logger.WithFields(logrus.Fields{
		"backend":     e.backend.Name(),
		"input":       pair.input.Name,
		"output":      pair.output.Name,
		"device_rate": cfg.deviceRate(),
		"proc_rate":   cfg.SampleRate,
		"buffer_size": cfg.BufferSize,
		"format":      cfg.Format.String(),
	}).Info("Engine initialized")
	return nil
}

// Start opens the device stream and spawns the monitor.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s := e.State(); s != StateInitialized {
		return fmt.Errorf("%w: start while %s", ErrInvalidState, s)
	}

	e.stats.reset()
	e.faults.Store(0)
	e.recovery.Store(int32(RecoveryHealthy))
	e.controller.Reset()
	e.processor.Reset()

	if err := e.openLocked(e.cfg); err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	e.state.Store(int32(StateRunning))

	e.mon = newMonitor()
	go e.runMonitor(e.mon, e.cfg.MonitorInterval)

	e.logger.Info("Engine started")
	return nil
}

// Stop halts the stream, then the monitor, then releases buffered audio.
// It is idempotent and safe from any goroutine except the callback. After
// failed recovery it reaps the monitor and returns the engine to Initialized.
func (e *Engine) Stop() error {
	e.mu.Lock()
	state := e.State()
	if state != StateRunning && (state != StateStopped || e.mon == nil) {
		e.mu.Unlock()
		return nil
	}
	e.state.Store(int32(StateStopped))
	err := e.closeStreamLocked()
	mon := e.mon
	e.mon = nil
	e.mu.Unlock()

	// The monitor may be waiting on mu; it sees StateStopped and backs off.
	if mon != nil {
		mon.halt()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if rt := e.rt.Load(); rt != nil {
		rt.reset()
	}
	e.processor.Reset()
	e.state.Store(int32(StateInitialized))

	s := e.stats.snapshot()
	e.logger.WithFields(logrus.Fields{
		"frames":    s.FramesProcessed,
		"underruns": s.Underruns,
		"overruns":  s.Overruns,
		"restarts":  s.Restarts,
	}).Info("Engine stopped")
	return err
}

// Resize changes the block size. While running the change is carried out
// by the monitor as a full stop, rebuild, reset and restart.
func (e *Engine) Resize(frames int) error {
	e.mu.Lock()
	if frames < e.cfg.Controller.Min || frames > e.cfg.Controller.Max {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d frames outside [%d, %d]", ErrInvalidBuffer, frames, e.cfg.Controller.Min, e.cfg.Controller.Max)
	}
	switch e.State() {
	case StateUninitialized:
		e.cfg.BufferSize = frames
		e.mu.Unlock()
		return nil
	case StateInitialized:
		cfg := e.cfg
		cfg.BufferSize = frames
		err := e.initializeLocked(cfg)
		e.mu.Unlock()
		return err
	case StateRunning:
		mon := e.mon
		e.mu.Unlock()
		return mon.request(frames)
	default:
		e.mu.Unlock()
		return fmt.Errorf("%w: resize while %s", ErrInvalidState, e.State())
	}
}

// ResizeStep grows or shrinks the block by one manual step, never by more
// than the controller's MaxStep.
func (e *Engine) ResizeStep(grow bool) error {
	e.mu.Lock()
	current := e.cfg.BufferSize
	if rt := e.rt.Load(); rt != nil {
		current = rt.params.FramesPerBuffer
	}
	next := e.cfg.Controller.Step(current, grow)
	e.mu.Unlock()
	if next == current {
		return fmt.Errorf("%w: %d frames is already at the limit", ErrInvalidBuffer, current)
	}
	return e.Resize(next)
}

// ReportFault queues a transient device fault for the monitor. It only
// touches an atomic and may be called from the callback.
func (e *Engine) ReportFault(f Fault) {
	e.faults.Or(uint32(f))
}

// Stats returns a telemetry snapshot.
func (e *Engine) Stats() Stats {
	s := e.stats.snapshot()
	s.State = e.State()
	s.Recovery = e.RecoveryState()
	if e.backend != nil {
		s.Backend = e.backend.Name()
	}
	if rt := e.rt.Load(); rt != nil {
		s.SampleRate = rt.params.SampleRate
		s.ProcessingRate = rt.procRate
		s.BufferSize = rt.params.FramesPerBuffer
		s.InputFill, s.OutputFill = rt.fill()
	}
	return s
}

// openLocked builds real-time state for cfg and starts a stream on it.
// The state is published before the stream exists so the first callback
// finds it, and rebuilt if the device negotiated different parameters.
func (e *Engine) openLocked(cfg Config) error {
	params := cfg.streamParams()
	rt := newRTState(params, cfg.SampleRate, cfg.RingBlocks, e.processor)
	e.rt.Store(rt)

	stream, err := e.backend.Open(params, e.callback, e.ReportFault)
	if err != nil {
		return err
	}
	if got := stream.Params(); got != params {
		if got.SampleRate <= 0 || got.FramesPerBuffer <= 0 || !got.Format.Valid() {
			_ = stream.Close()
			return fmt.Errorf("%w: device negotiated %+v", ErrInvalidConfig, got)
		}
		e.logger.WithFields(logrus.Fields{
			"requested": fmt.Sprintf("%dHz/%d", params.SampleRate, params.FramesPerBuffer),
			"granted":   fmt.Sprintf("%dHz/%d", got.SampleRate, got.FramesPerBuffer),
		}).Info("Device adjusted stream parameters")
		e.rt.Store(newRTState(got, cfg.SampleRate, cfg.RingBlocks, e.processor))
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return err
	}
	e.stream = stream
	return nil
}

// closeStreamLocked stops and closes the stream. Buffers are untouched.
func (e *Engine) closeStreamLocked() error {
	if e.stream == nil {
		return nil
	}
	stream := e.stream
	e.stream = nil
	err := stream.Stop()
	if cerr := stream.Close(); err == nil {
		err = cerr
	}
	return err
}

// restartLocked runs the stop, rebuild, reset and restart cycle with cfg.
// On success cfg becomes the active configuration.
func (e *Engine) restartLocked(cfg Config) error {
	if err := e.closeStreamLocked(); err != nil {
		e.logger.WithError(err).Warn("Error closing stream before restart")
	}
	if rt := e.rt.Load(); rt != nil {
		rt.reset()
	}
	e.processor.Reset()
	if err := e.openLocked(cfg); err != nil {
		return err
	}
	e.cfg = cfg
	e.stats.restarts.Add(1)
	return nil
}
