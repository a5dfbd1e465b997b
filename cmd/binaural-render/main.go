// ABOUTME: Offline binaural renderer
// ABOUTME: Spatializes an audio file along an orbit into a stereo WAV
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/resonate-binaural/internal/render"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/convolve"
)

var (
	input       = flag.String("in", "", "Input audio file (wav, aiff, mp3, flac, ogg, raw)")
	output      = flag.String("out", "binaural.wav", "Output WAV file")
	dataset     = flag.String("dataset", "", "Directory of measured HRIR WAV files (default: synthesised bank)")
	rate        = flag.Int("rate", 48000, "Render sample rate")
	depth       = flag.Int("depth", 24, "Output bit depth (16 or 24)")
	block       = flag.Int("block", 256, "Frames per pose update")
	duration    = flag.Duration("duration", 0, "Render length, looping the input (default: input length)")
	period      = flag.Duration("period", 8*time.Second, "Orbit period")
	radius      = flag.Float64("radius", 2, "Orbit radius in metres")
	elevation   = flag.Float64("elevation", 0, "Orbit elevation in degrees")
	convolution = flag.String("convolution", "auto", "Convolution algorithm: auto, time, fft")
	rawFormat   = flag.String("raw-format", "s16", "Sample format of raw input")
	rawRate     = flag.Int("raw-rate", 48000, "Sample rate of raw input")
	rawChannels = flag.Int("raw-channels", 1, "Channel count of raw input")
	verbose     = flag.Bool("v", false, "Debug logging")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if *input == "" {
		fmt.Fprintln(os.Stderr, "usage: binaural-render -in FILE [-out FILE] [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	format, err := audio.ParseSampleFormat(*rawFormat)
	if err != nil {
		logger.WithError(err).Fatal("Invalid -raw-format")
	}

	cfg := render.DefaultConfig()
	cfg.Input = *input
	cfg.Output = *output
	cfg.Dataset = *dataset
	cfg.Depth = *depth
	cfg.BlockSize = *block
	cfg.Duration = *duration
	cfg.RawFormat = audio.Format{SampleRate: *rawRate, Channels: *rawChannels, SampleFormat: format}
	cfg.Orbit.Period = *period
	cfg.Orbit.Radius = *radius
	cfg.Orbit.Elevation = *elevation
	cfg.Spatial.SampleRate = *rate
	cfg.Spatial.ConvolutionMode = convolve.Mode(*convolution)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := render.Render(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Render failed")
	}
	fmt.Printf("Wrote %s: %s (%d frames, %s engine, %.1fx real time)\n",
		cfg.Output, res.Duration.Round(time.Millisecond), res.Frames, res.Engine, res.Speedup())
}
