// ABOUTME: Live renderer application orchestration
// ABOUTME: Wires backend, engine, spatializer, pose server and TUI together
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/resonate-binaural/internal/ui"
	"github.com/Resonate-Protocol/resonate-binaural/internal/version"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio/convert"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio/device"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/binaural"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/engine"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/pose"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/spatial"
)

// Config holds renderer configuration
type Config struct {
	Backend string
	// Dataset is a directory of measured HRIRs; empty synthesises the bank.
	Dataset string
	// InputFile replaces the capture device for oto and sim. Files ending
	// in .raw or .pcm are read with RawFormat.
	InputFile string
	RawFormat audio.Format
	// ToneHz drives oto and sim with a sine when InputFile is empty.
	ToneHz float64
	// Speed is the simulated clock rate for the sim backend.
	Speed float64

	Engine  engine.Config
	Spatial binaural.Config

	PoseEnabled bool
	Pose        pose.ServerConfig
	// Orbit moves the source around the listener with this period while no
	// tracker is connected. Zero leaves the source where the keys put it.
	Orbit time.Duration

	UseTUI bool
	// StatsInterval is how often stats are logged without the TUI.
	StatsInterval time.Duration
}

// DefaultConfig returns the live defaults: malgo at 48 kHz, pose server on,
// TUI on
func DefaultConfig() Config {
	return Config{
		Backend:       "malgo",
		RawFormat:     audio.Format{SampleRate: 48000, Channels: 1, SampleFormat: audio.SampleFormatInt16},
		ToneHz:        decode.DefaultToneFrequency,
		Speed:         1,
		Engine:        engine.DefaultConfig(),
		Spatial:       binaural.DefaultConfig(),
		PoseEnabled:   true,
		Pose:          pose.DefaultServerConfig(),
		UseTUI:        true,
		StatsInterval: 5 * time.Second,
	}
}

// Renderer is the live binaural renderer
type Renderer struct {
	cfg    Config
	logger logrus.FieldLogger

	spatializer *binaural.Spatializer
	backend     engine.Backend
	engine      *engine.Engine
	hub         *pose.Hub
	poseServer  *pose.Server
	inputName   string

	mu     sync.Mutex
	manual spatial.Target
}

// New builds the renderer without touching the audio device
func New(cfg Config, logger logrus.FieldLogger) (*Renderer, error) {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	cfg.Engine.SampleRate = cfg.Spatial.SampleRate

	r := &Renderer{
		cfg:    cfg,
		logger: logger.WithField("component", "renderer"),
		hub:    pose.NewHub(),
		manual: spatial.Target{Azimuth: 0, Elevation: 0, Distance: 1},
	}

	input, name, err := openInput(cfg)
	if err != nil {
		return nil, err
	}
	r.inputName = name

	backend, err := device.New(cfg.Backend, device.Options{Input: input, Speed: cfg.Speed}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", cfg.Backend, err)
	}
	r.backend = backend

	r.spatializer = binaural.New(cfg.Spatial, logger)
	r.engine = engine.New(backend, r.spatializer, cfg.Engine, logger)

	if cfg.PoseEnabled {
		r.poseServer = pose.NewServer(cfg.Pose, r.hub, logger)
	}
	return r, nil
}

// openInput prepares the file or tone fed to backends without a capture
// device. The rate matches what the stream is opened at.
func openInput(cfg Config) (device.Source, string, error) {
	rate := cfg.Engine.DeviceSampleRate
	if rate == 0 {
		rate = cfg.Spatial.SampleRate
	}

	if cfg.InputFile == "" {
		return decode.NewTone(cfg.ToneHz, rate), fmt.Sprintf("%.0f Hz tone", cfg.ToneHz), nil
	}

	var (
		src *decode.Source
		err error
	)
	switch strings.ToLower(filepath.Ext(cfg.InputFile)) {
	case ".raw", ".pcm":
		src, err = decode.OpenRaw(cfg.InputFile, cfg.RawFormat, rate)
	default:
		src, err = decode.Open(cfg.InputFile, rate)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to open input: %w", err)
	}
	return src, fmt.Sprintf("%s (%s)", src.Name(), src.Duration().Round(time.Millisecond)), nil
}

// Engine returns the audio engine
func (r *Renderer) Engine() *engine.Engine { return r.engine }

// Spatializer returns the processor
func (r *Renderer) Spatializer() *binaural.Spatializer { return r.spatializer }

// Hub returns the pose hub feeding the spatializer
func (r *Renderer) Hub() *pose.Hub { return r.hub }

// Start builds the filter bank, starts the engine and the pose server
func (r *Renderer) Start(ctx context.Context) error {
	r.logger.WithFields(logrus.Fields{
		"version":  version.Version,
		"backend":  r.cfg.Backend,
		"strategy": convert.Strategy(),
		"input":    r.inputName,
	}).Info("Starting renderer")

	if err := r.spatializer.Initialize(ctx, r.cfg.Dataset); err != nil {
		return fmt.Errorf("failed to build HRTF bank: %w", err)
	}
	r.applyManual()
	r.hub.SetObserver(r.spatializer.UpdateSpatialPosition)

	if err := r.engine.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	if err := r.engine.Start(); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	if r.poseServer != nil {
		if err := r.poseServer.Start(); err != nil {
			r.engine.Stop()
			return fmt.Errorf("failed to start pose server: %w", err)
		}
	}
	return nil
}

// Stop shuts everything down in reverse order
func (r *Renderer) Stop() error {
	r.hub.SetObserver(nil)

	var errs []error
	if r.poseServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, r.poseServer.Stop(ctx))
		cancel()
	}
	errs = append(errs, r.engine.Stop(), r.backend.Close())

	r.logger.WithField("stats", summary(r.engine.Stats())).Info("Renderer stopped")
	return errors.Join(errs...)
}

// Run starts the renderer and blocks until ctx ends or the TUI quits
func (r *Renderer) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		r.backend.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if r.cfg.Orbit > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.orbitLoop(ctx)
		}()
	}

	var runErr error
	if r.cfg.UseTUI {
		model := ui.NewModel(version.String(), r.Status, ui.Controls{
			Nudge:         r.Nudge,
			ResetPosition: r.ResetPosition,
			Resize:        r.engine.ResizeStep,
		}, 250*time.Millisecond)
		runErr = ui.Run(ctx, model)
	} else {
		r.logLoop(ctx)
	}

	cancel()
	wg.Wait()
	return errors.Join(runErr, r.Stop())
}

// orbitLoop publishes orbit poses while no tracker is connected
func (r *Renderer) orbitLoop(ctx context.Context) {
	orbit := pose.DefaultOrbit()
	orbit.Period = r.cfg.Orbit
	orbit.Start = time.Now()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if r.poseServer != nil && len(r.poseServer.Sessions()) > 0 {
				continue
			}
			listener, source := orbit.At(now.Sub(orbit.Start))
			r.hub.Publish(pose.Update{Listener: listener, Source: source})
		}
	}
}

// logLoop logs a stats line every StatsInterval
func (r *Renderer) logLoop(ctx context.Context) {
	interval := r.cfg.StatsInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := r.Status()
			r.logger.WithFields(logrus.Fields{
				"azimuth":   fmt.Sprintf("%.1f", st.Spatial.Azimuth),
				"elevation": fmt.Sprintf("%.1f", st.Spatial.Elevation),
				"distance":  fmt.Sprintf("%.2f", st.Spatial.Distance),
				"filter":    st.Spatial.ActiveFilterIndex,
				"stats":     summary(st.Engine),
			}).Info("Renderer status")
		}
	}
}

// Status gathers a snapshot for the TUI
func (r *Renderer) Status() ui.Status {
	st := ui.Status{
		Engine:       r.engine.Stats(),
		Spatial:      r.spatializer.Stats(),
		Strategy:     convert.Strategy(),
		Input:        r.inputName,
		PoseSessions: -1,
	}
	if bank := r.spatializer.Bank(); bank != nil {
		if i := st.Spatial.ActiveFilterIndex; i >= 0 && i < bank.Len() {
			f := bank.At(i)
			st.Filter = fmt.Sprintf("%s (%.0f°, %.0f°)", f.Origin, f.Azimuth, f.Elevation)
		}
	}
	if r.poseServer != nil {
		sessions := r.poseServer.Sessions()
		st.PoseSessions = len(sessions)
		for _, s := range sessions {
			st.PoseAccepted += s.Accepted
		}
	}
	return st
}

// Nudge moves the manual target
func (r *Renderer) Nudge(dAzimuth, dElevation float64) {
	r.mu.Lock()
	r.manual.Azimuth = spatial.WrapDegrees(r.manual.Azimuth + dAzimuth)
	r.manual.Elevation = max(-90, min(90, r.manual.Elevation+dElevation))
	r.mu.Unlock()
	r.applyManual()
}

// ResetPosition returns the manual target to straight ahead at one metre
func (r *Renderer) ResetPosition() {
	r.mu.Lock()
	r.manual = spatial.Target{Distance: 1}
	r.mu.Unlock()
	r.applyManual()
}

func (r *Renderer) applyManual() {
	r.mu.Lock()
	t := r.manual
	r.mu.Unlock()
	r.spatializer.SetTarget(t.Azimuth, t.Elevation, t.Distance)
}

// summary formats the counters worth a log line
func summary(s engine.Stats) string {
	return fmt.Sprintf("state=%s recovery=%s rate=%d buffer=%d load=%.2f underruns=%d overruns=%d restarts=%d",
		s.State, s.Recovery, s.SampleRate, s.BufferSize, s.CPULoad, s.Underruns, s.Overruns, s.Restarts)
}
