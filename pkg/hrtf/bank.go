// ABOUTME: Filter bank construction and lookup
// ABOUTME: Build loads measured data, fills gaps from neighbours and synthesises the rest
package hrtf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio/convert"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/audio/resample"
)

// maxUnityEnergy is the per-ear filter energy above which broadband input
// comes out louder than it went in.
const maxUnityEnergy = 1.0

// Bank is a complete, read-only grid of filters. Every cell holds a
// non-zero filter, so lookups never fail.
type Bank struct {
	cfg     Config
	filters []*Filter
	counts  map[Origin]int
}

// Build populates a bank. A nil loader or one that reports
// ErrDatasetNotFound yields a fully synthetic bank. Other loader errors are
// logged and also fall back to synthesis.
func Build(ctx context.Context, cfg Config, loader DatasetLoader, logger logrus.FieldLogger) (*Bank, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = discardLogger()
	}
	logger = logger.WithField("component", "hrtf_bank")

	b := &Bank{
		cfg:     cfg,
		filters: make([]*Filter, cfg.Grid.Size()),
		counts:  make(map[Origin]int),
	}
	synth := NewSynthesizer(cfg)

	var measured []Measurement
	if loader != nil {
		var err error
		measured, err = loader.Load(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrDatasetNotFound):
			logger.WithField("reason", err).Info("No measured HRTF dataset, synthesising")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			logger.WithError(err).Warn("Failed to load HRTF dataset, synthesising")
			measured = nil
		}
	}

	if len(measured) > 0 {
		b.place(measured, logger)
		b.fillFromNeighbours()
	}

	if err := b.synthesiseMissing(ctx, synth); err != nil {
		return nil, err
	}

	for _, f := range b.filters {
		b.counts[f.Origin]++
	}

	peak := b.MaxEnergy()
	logger.WithFields(logrus.Fields{
		"cells":        len(b.filters),
		"measured":     b.counts[OriginMeasured],
		"interpolated": b.counts[OriginInterpolated],
		"synthetic":    b.counts[OriginSynthetic],
		"taps":         cfg.FilterLength,
		"sample_rate":  cfg.SampleRate,
		"max_energy":   fmt.Sprintf("%.3f", peak),
	}).Info("HRTF filter bank ready")
	if peak > maxUnityEnergy {
		logger.WithField("max_energy", fmt.Sprintf("%.3f", peak)).Warn("HRTF filters amplify, loud sources may clip")
	}

	return b, nil
}

// place puts each measurement into its nearest cell, conforming rate and length.
func (b *Bank) place(measured []Measurement, logger logrus.FieldLogger) {
	g := b.cfg.Grid
	for _, m := range measured {
		left, right := b.conform(m)
		f, err := NewFilter(left, right)
		if err != nil {
			logger.WithError(err).Warn("Dropping measurement")
			continue
		}
		idx := g.Index(m.Azimuth, m.Elevation)
		f.Index = idx
		f.Azimuth, f.Elevation = g.Angles(idx)
		f.Origin = OriginMeasured
		b.filters[idx] = f
	}
}

// conform resamples a measurement to the bank rate and fits it to the filter length.
func (b *Bank) conform(m Measurement) (left, right []float32) {
	left, right = m.Left, m.Right
	if m.SampleRate > 0 && m.SampleRate != b.cfg.SampleRate && len(left) > 0 {
		r := resample.New(m.SampleRate, b.cfg.SampleRate, 2)
		in := make([]float32, 2*len(left))
		convert.Interleave(in, left, right)
		out := make([]float32, 2*r.MaxOutputFrames(len(left)))
		n := r.Resample(in, out) / 2
		left, right = make([]float32, n), make([]float32, n)
		for i := 0; i < n; i++ {
			left[i] = out[2*i]
			right[i] = out[2*i+1]
		}
	}

	taps := b.cfg.FilterLength
	l := make([]float64, taps)
	r := make([]float64, taps)
	for i := 0; i < taps && i < len(left) && i < len(right); i++ {
		l[i] = float64(left[i])
		r[i] = float64(right[i])
	}
	if len(left) > taps {
		taper(l, taperFraction)
		taper(r, taperFraction)
	}
	return toFloat32(l), toFloat32(r)
}

// fillFromNeighbours interpolates empty cells, first along each elevation
// ring that has any data, then across rings for rings that had none.
func (b *Bank) fillFromNeighbours() {
	g := b.cfg.Grid
	nAz, nEl := g.Azimuths(), g.Elevations()
	at := func(ai, ei int) *Filter { return b.filters[ei*nAz+ai] }

	populated := make([]bool, nEl)
	for ei := 0; ei < nEl; ei++ {
		known := make([]int, 0, nAz)
		for ai := 0; ai < nAz; ai++ {
			if at(ai, ei) != nil {
				known = append(known, ai)
			}
		}
		if len(known) == 0 {
			continue
		}
		populated[ei] = true
		for ai := 0; ai < nAz; ai++ {
			if at(ai, ei) != nil {
				continue
			}
			lo, hi, dLo, dHi := ringNeighbours(known, ai, nAz)
			b.setInterpolated(ei*nAz+ai, at(lo, ei), at(hi, ei), dLo, dHi)
		}
	}

	for ei := 0; ei < nEl; ei++ {
		if populated[ei] {
			continue
		}
		below, above := -1, -1
		for d := ei - 1; d >= 0; d-- {
			if populated[d] {
				below = d
				break
			}
		}
		for u := ei + 1; u < nEl; u++ {
			if populated[u] {
				above = u
				break
			}
		}
		for ai := 0; ai < nAz; ai++ {
			switch {
			case below >= 0 && above >= 0:
				b.setInterpolated(ei*nAz+ai, at(ai, below), at(ai, above), ei-below, above-ei)
			case below >= 0:
				b.setInterpolated(ei*nAz+ai, at(ai, below), at(ai, below), 1, 1)
			case above >= 0:
				b.setInterpolated(ei*nAz+ai, at(ai, above), at(ai, above), 1, 1)
			}
		}
	}
}

// ringNeighbours finds the nearest known azimuth cells on either side of ai.
func ringNeighbours(known []int, ai, nAz int) (lo, hi, dLo, dHi int) {
	dLo, dHi = nAz+1, nAz+1
	for _, k := range known {
		below := (ai - k + nAz) % nAz
		above := (k - ai + nAz) % nAz
		if below < dLo {
			lo, dLo = k, below
		}
		if above < dHi {
			hi, dHi = k, above
		}
	}
	return lo, hi, dLo, dHi
}

// setInterpolated writes a distance-weighted blend of a and b into idx.
func (b *Bank) setInterpolated(idx int, a, c *Filter, dA, dC int) {
	wA := float32(dC) / float32(dA+dC)
	wC := 1 - wA
	n := a.Len()
	left := make([]float32, n)
	right := make([]float32, n)
	for i := 0; i < n; i++ {
		left[i] = wA*a.left[i] + wC*c.left[i]
		right[i] = wA*a.right[i] + wC*c.right[i]
	}
	f, _ := NewFilter(left, right)
	f.Index = idx
	f.Azimuth, f.Elevation = b.cfg.Grid.Angles(idx)
	f.Origin = OriginInterpolated
	b.filters[idx] = f
}

// synthesiseMissing renders every empty or all-zero cell in parallel.
func (b *Bank) synthesiseMissing(ctx context.Context, synth *Synthesizer) error {
	workers := b.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for idx := range b.filters {
		if f := b.filters[idx]; f != nil && !f.IsZero() {
			continue
		}
		idx := idx
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			az, el := b.cfg.Grid.Angles(idx)
			left, right := synth.Render(az, el)
			f, err := NewFilter(left, right)
			if err != nil {
				return fmt.Errorf("synthesising cell %d: %w", idx, err)
			}
			f.Index = idx
			f.Azimuth, f.Elevation = az, el
			f.Origin = OriginSynthetic
			// Each goroutine owns a distinct index.
			b.filters[idx] = f
			return nil
		})
	}
	return g.Wait()
}

// Filter returns the filter for the cell nearest to (azimuth, elevation).
// Safe for concurrent use and allocation free.
func (b *Bank) Filter(azimuth, elevation float64) *Filter {
	return b.filters[b.cfg.Grid.Index(azimuth, elevation)]
}

// Index returns the flat cell index nearest to (azimuth, elevation).
func (b *Bank) Index(azimuth, elevation float64) int {
	return b.cfg.Grid.Index(azimuth, elevation)
}

// At returns the filter at a flat index.
func (b *Bank) At(index int) *Filter {
	return b.filters[index]
}

// Len returns the number of cells.
func (b *Bank) Len() int { return len(b.filters) }

// Grid returns the bank geometry.
func (b *Bank) Grid() Grid { return b.cfg.Grid }

// FilterLength returns the number of taps per ear.
func (b *Bank) FilterLength() int { return b.cfg.FilterLength }

// SampleRate returns the rate the filters were built for.
func (b *Bank) SampleRate() int { return b.cfg.SampleRate }

// Count returns how many cells came from origin o.
func (b *Bank) Count(o Origin) int { return b.counts[o] }

// MaxEnergy returns the largest per-ear energy in the bank, useful for headroom checks.
func (b *Bank) MaxEnergy() float64 {
	var peak float64
	for _, f := range b.filters {
		l, r := f.Energy()
		peak = math.Max(peak, math.Max(l, r))
	}
	return peak
}
