// ABOUTME: Spatializer lifecycle, pose updates and per-block rendering
// ABOUTME: Crossfades between filters and ramps distance gain so direction changes stay click free
package binaural

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio/convert"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/convolve"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/hrtf"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/spatial"
)

// Config controls a Spatializer.
type Config struct {
	SampleRate      int
	FilterLength    int
	MaxBlock        int
	Alpha           float64
	Grid            hrtf.Grid
	Distance        spatial.DistanceModel
	ConvolutionMode convolve.Mode
}

// DefaultConfig returns the live-engine configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:      48000,
		FilterLength:    256,
		MaxBlock:        512,
		Alpha:           spatial.DefaultAlpha,
		Grid:            hrtf.DefaultGrid(),
		Distance:        spatial.DefaultDistanceModel(),
		ConvolutionMode: convolve.ModeAuto,
	}
}

// Stats is a snapshot of the rendering state.
type Stats struct {
	Azimuth           float64
	Elevation         float64
	Distance          float64
	ActiveFilterIndex int
}

// state is everything built by Initialize. Process reads it through an
// atomic pointer so a finished Initialize is published in one step.
type state struct {
	bank   *hrtf.Bank
	engine convolve.Engine

	mono, left, right []float32

	active *hrtf.Filter
	gain   float32
}

// Spatializer renders binaural audio. Process must only be called from one
// goroutine at a time.
type Spatializer struct {
	cfg    Config
	logger logrus.FieldLogger

	smoother *spatial.Smoother
	st       atomic.Pointer[state]

	activeIndex atomic.Int64
	poseUpdates atomic.Uint64
	poseIgnored atomic.Uint64
}

// New returns an uninitialised Spatializer.
func New(cfg Config, logger logrus.FieldLogger) *Spatializer {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	s := &Spatializer{
		cfg:      cfg,
		logger:   logger.WithField("component", "spatializer"),
		smoother: spatial.NewSmoother(cfg.Alpha),
	}
	s.activeIndex.Store(-1)
	return s
}

// Config returns the configuration.
func (s *Spatializer) Config() Config { return s.cfg }

// Initialize builds the filter bank, loading measured filters from
// datasetDir when it is non-empty and synthesising everything else.
// On failure the Spatializer is left unchanged.
func (s *Spatializer) Initialize(ctx context.Context, datasetDir string) error {
	var loader hrtf.DatasetLoader
	if datasetDir != "" {
		loader = hrtf.NewWAVDirLoader(datasetDir, s.logger)
	}
	return s.InitializeWith(ctx, loader)
}

// InitializeWith is Initialize with an explicit dataset loader, which may be nil.
func (s *Spatializer) InitializeWith(ctx context.Context, loader hrtf.DatasetLoader) error {
	cfg := s.cfg
	if cfg.MaxBlock < 1 {
		return fmt.Errorf("max block %d: %w", cfg.MaxBlock, ErrInvalidConfig)
	}

	bankCfg := hrtf.DefaultConfig()
	bankCfg.SampleRate = cfg.SampleRate
	bankCfg.FilterLength = cfg.FilterLength
	bankCfg.Grid = cfg.Grid

	bank, err := hrtf.Build(ctx, bankCfg, loader, s.logger)
	if err != nil {
		return fmt.Errorf("building filter bank: %w", err)
	}
	return s.InitializeWithBank(bank)
}

// InitializeWithBank uses an existing bank, which may be shared between
// spatializers since banks are read-only.
func (s *Spatializer) InitializeWithBank(bank *hrtf.Bank) error {
	cfg := s.cfg
	if cfg.MaxBlock < 1 {
		return fmt.Errorf("max block %d: %w", cfg.MaxBlock, ErrInvalidConfig)
	}
	if bank == nil {
		return fmt.Errorf("nil filter bank: %w", ErrInvalidConfig)
	}
	if bank.SampleRate() != cfg.SampleRate {
		return fmt.Errorf("bank rate %d, spatializer rate %d: %w", bank.SampleRate(), cfg.SampleRate, ErrInvalidConfig)
	}

	engine, err := convolve.New(convolve.Config{
		FilterLength: bank.FilterLength(),
		MaxBlock:     cfg.MaxBlock,
		Mode:         cfg.ConvolutionMode,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("creating convolution engine: %w", err)
	}

	st := &state{
		bank:   bank,
		engine: engine,
		mono:   make([]float32, cfg.MaxBlock),
		left:   make([]float32, cfg.MaxBlock),
		right:  make([]float32, cfg.MaxBlock),
	}
	s.st.Store(st)

	s.logger.WithFields(logrus.Fields{
		"engine":      engine.Name(),
		"cells":       bank.Len(),
		"sample_rate": cfg.SampleRate,
		"max_block":   cfg.MaxBlock,
	}).Info("Spatializer initialized")
	return nil
}

// Initialized reports whether Initialize has succeeded.
func (s *Spatializer) Initialized() bool { return s.st.Load() != nil }

// Bank returns the filter bank, or nil before Initialize.
func (s *Spatializer) Bank() *hrtf.Bank {
	if st := s.st.Load(); st != nil {
		return st.bank
	}
	return nil
}

// EngineName returns the convolution algorithm in use.
func (s *Spatializer) EngineName() string {
	if st := s.st.Load(); st != nil {
		return st.engine.Name()
	}
	return ""
}

// UpdateSpatialPosition recomputes the target from two poses. Invalid
// poses are ignored and the previous target is kept. Never blocks.
func (s *Spatializer) UpdateSpatialPosition(listener, source spatial.Pose) {
	t, ok := spatial.TargetFromPoses(listener, source)
	if !ok {
		s.poseIgnored.Add(1)
		return
	}
	s.poseUpdates.Add(1)
	s.smoother.SetTarget(t)
}

// SetTarget sets the direction and distance directly.
func (s *Spatializer) SetTarget(azimuth, elevation, distance float64) {
	s.smoother.UpdateTarget(azimuth, elevation, distance)
}

// Process renders frames frames of input with inputChannels channels (1 or
// 2, interleaved) into interleaved stereo output.
func (s *Spatializer) Process(input, output []float32, frames, inputChannels int) error {
	st := s.st.Load()
	if st == nil {
		return ErrNotInitialized
	}
	if inputChannels != 1 && inputChannels != 2 {
		return ErrInvalidChannels
	}
	if frames < 0 || len(input) < frames*inputChannels || len(output) < frames*2 {
		return ErrShortBuffer
	}

	maxBlock := len(st.mono)
	for done := 0; done < frames; {
		n := min(maxBlock, frames-done)
		in := input[done*inputChannels : (done+n)*inputChannels]
		out := output[done*2 : (done+n)*2]
		s.processBlock(st, in, out, n, inputChannels)
		done += n
	}
	return nil
}

func (s *Spatializer) processBlock(st *state, in, out []float32, n, channels int) {
	mono := st.mono[:n]
	if channels == 2 {
		convert.StereoToMono(mono, in)
	} else {
		copy(mono, in)
	}

	target := s.smoother.Step()
	f := st.bank.Filter(target.Azimuth, target.Elevation)

	left, right := st.left[:n], st.right[:n]
	if st.active == nil || st.active == f {
		st.engine.Process(mono, left, right, f)
	} else {
		st.engine.ProcessBlend(mono, left, right, st.active, f)
	}
	if st.active != f {
		st.active = f
		s.activeIndex.Store(int64(f.Index))
	}

	// Ramp from last block's gain so distance changes do not step.
	gain := float32(s.cfg.Distance.Gain(target.Distance))
	start := st.gain
	if start == 0 {
		start = gain
	}
	step := (gain - start) / float32(n)
	for i := 0; i < n; i++ {
		g := start + step*float32(i+1)
		out[2*i] = left[i] * g
		out[2*i+1] = right[i] * g
	}
	st.gain = gain
}

// Stats returns the current smoothed direction and active filter.
func (s *Spatializer) Stats() Stats {
	cur := s.smoother.Current()
	return Stats{
		Azimuth:           cur.Azimuth,
		Elevation:         cur.Elevation,
		Distance:          cur.Distance,
		ActiveFilterIndex: int(s.activeIndex.Load()),
	}
}

// ResetPosition returns the smoother to straight ahead at one metre.
func (s *Spatializer) ResetPosition() {
	s.smoother.Reset()
}

// PoseCounts returns how many pose updates were applied and ignored.
func (s *Spatializer) PoseCounts() (applied, ignored uint64) {
	return s.poseUpdates.Load(), s.poseIgnored.Load()
}

// Reset clears convolution history, the active filter and the gain ramp.
// The spatial target is kept so a restarted stream resumes in place.
// Only call while Process is not running.
func (s *Spatializer) Reset() {
	s.activeIndex.Store(-1)
	if st := s.st.Load(); st != nil {
		st.engine.Reset()
		st.active = nil
		st.gain = 0
	}
}
