// ABOUTME: Measured HRIR dataset loading
// ABOUTME: WAVDirLoader reads one stereo WAV per direction named azi_<az>_ele_<el>.wav
package hrtf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
)

// Measurement is one measured impulse response pair tagged with its direction.
type Measurement struct {
	Azimuth    float64
	Elevation  float64
	SampleRate int
	Left       []float32
	Right      []float32
}

// DatasetLoader supplies measured impulse responses. Returning an error
// wrapping ErrDatasetNotFound means no dataset is present, which Build treats
// as a request to synthesise the whole grid.
type DatasetLoader interface {
	Load(ctx context.Context) ([]Measurement, error)
}

var measurementName = regexp.MustCompile(`^azi_(-?\d+(?:\.\d+)?)_ele_(-?\d+(?:\.\d+)?)\.wav$`)

// WAVDirLoader loads a directory of stereo WAV impulse responses.
type WAVDirLoader struct {
	dir    string
	logger logrus.FieldLogger
}

// NewWAVDirLoader returns a loader for dir. An empty dir loads nothing.
func NewWAVDirLoader(dir string, logger logrus.FieldLogger) *WAVDirLoader {
	if logger == nil {
		logger = discardLogger()
	}
	return &WAVDirLoader{
		dir:    dir,
		logger: logger.WithField("component", "hrtf_loader"),
	}
}

// Load reads every matching file in the directory. Files that fail to decode
// are skipped with a warning; the grid fill step covers the gaps.
func (l *WAVDirLoader) Load(ctx context.Context) ([]Measurement, error) {
	if l.dir == "" {
		return nil, ErrDatasetNotFound
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", l.dir, ErrDatasetNotFound)
		}
		return nil, fmt.Errorf("reading dataset directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && measurementName.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		return nil, fmt.Errorf("%s has no azi_*_ele_*.wav files: %w", l.dir, ErrDatasetNotFound)
	}

	measurements := make([]Measurement, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m, err := l.loadFile(name)
		if err != nil {
			l.logger.WithFields(logrus.Fields{
				"file":  name,
				"error": err,
			}).Warn("Skipping dataset entry")
			continue
		}
		measurements = append(measurements, m)
	}

	l.logger.WithFields(logrus.Fields{
		"dir":     l.dir,
		"entries": len(measurements),
		"skipped": len(names) - len(measurements),
	}).Info("Loaded HRTF dataset")

	return measurements, nil
}

func (l *WAVDirLoader) loadFile(name string) (Measurement, error) {
	match := measurementName.FindStringSubmatch(name)
	az, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return Measurement{}, fmt.Errorf("azimuth %q: %w", match[1], ErrMalformedDataset)
	}
	el, err := strconv.ParseFloat(match[2], 64)
	if err != nil {
		return Measurement{}, fmt.Errorf("elevation %q: %w", match[2], ErrMalformedDataset)
	}

	f, err := os.Open(filepath.Join(l.dir, name))
	if err != nil {
		return Measurement{}, fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Measurement{}, fmt.Errorf("%s is not a valid wav file: %w", name, ErrMalformedDataset)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Measurement{}, fmt.Errorf("decoding %s: %w", name, err)
	}
	if buf.Format == nil || buf.Format.NumChannels != 2 {
		return Measurement{}, fmt.Errorf("%s must be stereo: %w", name, ErrMalformedDataset)
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = buf.SourceBitDepth
	}
	scale := fullScale(depth)
	// 8-bit WAV samples are unsigned around 128.
	bias := 0
	if depth == 8 {
		bias = 128
	}

	frames := len(buf.Data) / 2
	if frames == 0 {
		return Measurement{}, fmt.Errorf("%s has no samples: %w", name, ErrMalformedDataset)
	}
	m := Measurement{
		Azimuth:    az,
		Elevation:  el,
		SampleRate: int(dec.SampleRate),
		Left:       make([]float32, frames),
		Right:      make([]float32, frames),
	}
	for i := 0; i < frames; i++ {
		m.Left[i] = float32(buf.Data[2*i]-bias) / scale
		m.Right[i] = float32(buf.Data[2*i+1]-bias) / scale
	}
	return m, nil
}

// fullScale returns the integer magnitude of a full-scale sample at depth bits.
func fullScale(depth int) float32 {
	switch depth {
	case 8:
		return 128.0
	case 24:
		return 8388608.0
	case 32:
		return 2147483648.0
	default:
		return 32768.0
	}
}

// MemoryLoader serves a fixed set of measurements.
type MemoryLoader []Measurement

// Load returns the measurements, or ErrDatasetNotFound when empty.
func (m MemoryLoader) Load(context.Context) ([]Measurement, error) {
	if len(m) == 0 {
		return nil, ErrDatasetNotFound
	}
	return m, nil
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
