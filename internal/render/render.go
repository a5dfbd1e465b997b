// ABOUTME: Offline binaural render of a file along an orbit
// ABOUTME: Drives the spatializer block by block and writes a stereo WAV
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio/encode"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/binaural"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/pose"
)

// ErrNoInput is returned when Config.Input is empty
var ErrNoInput = errors.New("no input file")

// Config holds offline render settings
type Config struct {
	Input  string
	Output string
	// RawFormat describes .raw and .pcm inputs.
	RawFormat audio.Format
	Dataset   string
	// Depth is the output bit depth, 16 or 24.
	Depth int
	// BlockSize is the number of frames processed per pose update.
	BlockSize int
	// Duration renders this long, looping the input. Zero renders the
	// input once.
	Duration time.Duration
	Orbit    pose.Orbit
	Spatial  binaural.Config
}

// DefaultConfig returns 24-bit output, 256-frame blocks and the default orbit
func DefaultConfig() Config {
	return Config{
		RawFormat: audio.Format{SampleRate: 48000, Channels: 1, SampleFormat: audio.SampleFormatInt16},
		Depth:     24,
		BlockSize: 256,
		Orbit:     pose.DefaultOrbit(),
		Spatial:   binaural.DefaultConfig(),
	}
}

// Result summarises a finished render
type Result struct {
	Frames   int
	Duration time.Duration
	Engine   string
	Elapsed  time.Duration
}

// Speedup returns how many times faster than real time the render ran
func (r Result) Speedup() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Duration) / float64(r.Elapsed)
}

// Render spatializes cfg.Input into cfg.Output
func Render(ctx context.Context, cfg Config, logger logrus.FieldLogger) (Result, error) {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	logger = logger.WithField("component", "render")

	if cfg.Input == "" {
		return Result{}, ErrNoInput
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 256
	}
	rate := cfg.Spatial.SampleRate

	src, err := openSource(cfg, rate)
	if err != nil {
		return Result{}, err
	}
	total := src.Frames()
	if cfg.Duration > 0 {
		total = int(cfg.Duration * time.Duration(rate) / time.Second)
	} else {
		src.SetLoop(false)
	}

	sp := binaural.New(cfg.Spatial, logger)
	if err := sp.Initialize(ctx, cfg.Dataset); err != nil {
		return Result{}, fmt.Errorf("failed to build HRTF bank: %w", err)
	}

	w, err := encode.CreateWAV(cfg.Output, rate, 2, cfg.Depth)
	if err != nil {
		return Result{}, err
	}

	logger.WithFields(logrus.Fields{
		"input":  src.Name(),
		"output": cfg.Output,
		"frames": total,
		"engine": sp.EngineName(),
	}).Info("Rendering")

	started := time.Now()
	in := make([]float32, cfg.BlockSize)
	out := make([]float32, 2*cfg.BlockSize)
	for done := 0; done < total; {
		if err := ctx.Err(); err != nil {
			_ = w.Close()
			return Result{}, err
		}
		n := min(cfg.BlockSize, total-done)

		t := time.Duration(done) * time.Second / time.Duration(rate)
		sp.UpdateSpatialPosition(cfg.Orbit.At(t))

		got := src.ReadFrames(in[:n])
		clear(in[got:n])
		if err := sp.Process(in[:n], out[:2*n], n, 1); err != nil {
			_ = w.Close()
			return Result{}, fmt.Errorf("process at frame %d: %w", done, err)
		}
		if err := w.Write(out[:2*n]); err != nil {
			_ = w.Close()
			return Result{}, err
		}
		done += n
	}

	if err := w.Close(); err != nil {
		return Result{}, err
	}
	res := Result{
		Frames:   w.Frames(),
		Duration: time.Duration(w.Frames()) * time.Second / time.Duration(rate),
		Engine:   sp.EngineName(),
		Elapsed:  time.Since(started),
	}
	logger.WithFields(logrus.Fields{
		"frames":  res.Frames,
		"elapsed": res.Elapsed.Round(time.Millisecond),
		"speedup": fmt.Sprintf("%.1fx", res.Speedup()),
	}).Info("Render complete")
	return res, nil
}

func openSource(cfg Config, rate int) (*decode.Source, error) {
	switch strings.ToLower(filepath.Ext(cfg.Input)) {
	case ".raw", ".pcm":
		return decode.OpenRaw(cfg.Input, cfg.RawFormat, rate)
	default:
		return decode.Open(cfg.Input, rate)
	}
}
