// ABOUTME: Engine interface, configuration and path selection
// ABOUTME: New chooses time-domain or overlap-save once from filter length and block size
package convolve

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/hrtf"
)

// Engine convolves mono input with a stereo filter.
type Engine interface {
	// Process writes len(in) samples to left and right using f.
	Process(in, left, right []float32, f *hrtf.Filter)
	// ProcessBlend crossfades linearly from filter from to filter to across the block.
	ProcessBlend(in, left, right []float32, from, to *hrtf.Filter)
	// Reset clears the signal history.
	Reset()
	// Name identifies the algorithm.
	Name() string
}

// Mode forces a particular algorithm.
type Mode string

const (
	ModeAuto Mode = "auto"
	ModeTime Mode = "time"
	ModeFFT  Mode = "fft"
)

// DefaultFFTThreshold is the filter length above which the FFT path is considered.
const DefaultFFTThreshold = 128

// Config describes the filters and blocks an Engine will see.
type Config struct {
	FilterLength int
	MaxBlock     int
	FFTThreshold int
	Mode         Mode
}

// DefaultConfig matches the default filter bank and a 512-frame block.
func DefaultConfig() Config {
	return Config{
		FilterLength: 256,
		MaxBlock:     512,
		FFTThreshold: DefaultFFTThreshold,
		Mode:         ModeAuto,
	}
}

// UseFFT reports whether overlap-save is preferred for the given sizes:
// long filters with blocks at least half the filter length.
func UseFFT(filterLength, block, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultFFTThreshold
	}
	return filterLength > threshold && block*2 >= filterLength
}

// New builds the engine selected by cfg.
func New(cfg Config, logger logrus.FieldLogger) (Engine, error) {
	if cfg.FilterLength < 1 || cfg.MaxBlock < 1 {
		return nil, fmt.Errorf("filter length %d, max block %d: %w", cfg.FilterLength, cfg.MaxBlock, ErrInvalidConfig)
	}

	mode := cfg.Mode
	if mode == "" {
		mode = ModeAuto
	}

	useFFT := false
	switch mode {
	case ModeAuto:
		useFFT = UseFFT(cfg.FilterLength, cfg.MaxBlock, cfg.FFTThreshold)
	case ModeTime:
	case ModeFFT:
		useFFT = true
	default:
		return nil, fmt.Errorf("mode %q: %w", mode, ErrInvalidConfig)
	}

	var e Engine = NewTimeDomain(cfg.FilterLength)
	if useFFT {
		ols, err := NewOverlapSave(cfg.FilterLength, cfg.MaxBlock)
		if err != nil {
			return nil, err
		}
		e = ols
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"component":     "convolve",
			"engine":        e.Name(),
			"filter_length": cfg.FilterLength,
			"max_block":     cfg.MaxBlock,
		}).Debug("Selected convolution engine")
	}
	return e, nil
}
