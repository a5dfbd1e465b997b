// ABOUTME: Entry point for the live binaural renderer
// ABOUTME: Parses CLI flags, configures logging and runs the renderer
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/resonate-binaural/internal/app"
	"github.com/Resonate-Protocol/resonate-binaural/internal/version"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio/device"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/convolve"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/pose"
)

var (
	backend      = flag.String("backend", "malgo", "Audio backend: "+strings.Join(device.Names(), ", "))
	dataset      = flag.String("dataset", "", "Directory of measured HRIR WAV files (default: synthesised bank)")
	bufferSize   = flag.Int("buffer", 256, "Callback buffer size in frames")
	rate         = flag.Int("rate", 48000, "Processing sample rate")
	deviceRate   = flag.Int("device-rate", 0, "Device sample rate (default: same as -rate)")
	inputDevice  = flag.String("input-device", "", "Input device ID (default: system default)")
	outputDevice = flag.String("output-device", "", "Output device ID (default: system default)")
	inputFile    = flag.String("input-file", "", "Audio file fed to oto and sim instead of a microphone")
	rawFormat    = flag.String("raw-format", "s16", "Sample format of .raw/.pcm input files")
	rawRate      = flag.Int("raw-rate", 48000, "Sample rate of .raw/.pcm input files")
	rawChannels  = flag.Int("raw-channels", 1, "Channel count of .raw/.pcm input files")
	tone         = flag.Float64("tone", 440, "Test tone frequency when no input file is given")
	convolution  = flag.String("convolution", "auto", "Convolution algorithm: auto, time, fft")
	posePort     = flag.Int("pose-port", pose.DefaultPort, "Pose server port (0 disables)")
	noMDNS       = flag.Bool("no-mdns", false, "Do not advertise the pose server over mDNS")
	orbit        = flag.Duration("orbit", 0, "Orbit the source with this period while no tracker is connected")
	adaptive     = flag.Bool("adaptive", true, "Let the engine resize its buffer on underruns and overruns")
	speed        = flag.Float64("speed", 1, "Clock speed of the sim backend relative to real time")
	listDevices  = flag.Bool("list-devices", false, "List devices of the selected backend and exit")
	logFile      = flag.String("log-file", "resonate-binaural.log", "Log file path")
	logLevel     = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	noTUI        = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	streamLogs   = flag.Bool("stream-logs", false, "Alias for -no-tui")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	useTUI := !(*noTUI || *streamLogs)

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level: %v\n", err)
		os.Exit(2)
	}
	logger.SetLevel(level)

	if *listDevices {
		logger.SetOutput(os.Stderr)
		if err := app.ListDevices(os.Stdout, *backend, logger); err != nil {
			logger.WithError(err).Fatal("Failed to list devices")
		}
		return
	}

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI owns the terminal, so logs only go to the file
		logger.SetOutput(f)
	} else {
		logger.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	cfg, err := buildConfig(useTUI)
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	renderer, err := app.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create renderer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !useTUI {
		logger.Info("TUI disabled - streaming logs")
	}
	if err := renderer.Run(ctx); err != nil {
		logger.WithError(err).Error("Renderer exited with error")
		os.Exit(1)
	}
}

// buildConfig maps flags onto the renderer configuration
func buildConfig(useTUI bool) (app.Config, error) {
	cfg := app.DefaultConfig()
	cfg.Backend = *backend
	cfg.Dataset = *dataset
	cfg.InputFile = *inputFile
	cfg.ToneHz = *tone
	cfg.Speed = *speed
	cfg.Orbit = *orbit
	cfg.UseTUI = useTUI

	format, err := audio.ParseSampleFormat(*rawFormat)
	if err != nil {
		return cfg, fmt.Errorf("-raw-format: %w", err)
	}
	cfg.RawFormat = audio.Format{SampleRate: *rawRate, Channels: *rawChannels, SampleFormat: format}

	switch mode := convolve.Mode(*convolution); mode {
	case convolve.ModeAuto, convolve.ModeTime, convolve.ModeFFT:
		cfg.Spatial.ConvolutionMode = mode
	default:
		return cfg, fmt.Errorf("-convolution: unknown algorithm %q", *convolution)
	}

	cfg.Spatial.SampleRate = *rate
	cfg.Engine.SampleRate = *rate
	cfg.Engine.DeviceSampleRate = *deviceRate
	cfg.Engine.BufferSize = *bufferSize
	cfg.Engine.InputDevice = *inputDevice
	cfg.Engine.OutputDevice = *outputDevice
	cfg.Engine.Controller.Enabled = *adaptive

	cfg.PoseEnabled = *posePort > 0
	cfg.Pose.Addr = fmt.Sprintf(":%d", *posePort)
	cfg.Pose.EnableMDNS = !*noMDNS
	if host, err := os.Hostname(); err == nil {
		cfg.Pose.Name = host + "-binaural"
	}
	return cfg, nil
}
