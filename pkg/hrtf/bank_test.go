// ABOUTME: Tests for filter bank construction and lookup
// ABOUTME: Completeness over the whole sphere, dataset placement and gap filling
package hrtf

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FilterLength = 128
	return cfg
}

var (
	sharedBank     *Bank
	sharedBankErr  error
	sharedBankOnce sync.Once
)

func syntheticBank(t *testing.T) *Bank {
	t.Helper()
	sharedBankOnce.Do(func() {
		sharedBank, sharedBankErr = Build(context.Background(), testConfig(), nil, nil)
	})
	require.NoError(t, sharedBankErr)
	return sharedBank
}

func TestBuildSyntheticIsComplete(t *testing.T) {
	bank := syntheticBank(t)

	assert.Equal(t, bank.Grid().Size(), bank.Len())
	assert.Equal(t, bank.Len(), bank.Count(OriginSynthetic))
	assert.Zero(t, bank.Count(OriginMeasured))

	for az := 0.0; az < 360; az += 2.5 {
		for el := -40.0; el <= 90; el += 5 {
			f := bank.Filter(az, el)
			require.NotNil(t, f, "az=%v el=%v", az, el)
			require.False(t, f.IsZero(), "az=%v el=%v", az, el)
			require.Equal(t, 128, f.Len())
		}
	}
}

func TestBankFilterMatchesIndex(t *testing.T) {
	bank := syntheticBank(t)

	f := bank.Filter(-90, 0)
	assert.Equal(t, bank.Index(-90, 0), f.Index)
	assert.Same(t, f, bank.At(f.Index))
	assert.InDelta(t, 270, f.Azimuth, 1e-9)
	assert.Same(t, f, bank.Filter(270, 3), "nearby angles share a cell")
}

func TestBankLateralEnergy(t *testing.T) {
	bank := syntheticBank(t)

	l, r := bank.Filter(-90, 0).Energy()
	assert.Greater(t, l, r)

	l, r = bank.Filter(90, 0).Energy()
	assert.Greater(t, r, l)
}

func TestBankNeighbouringCellsDiffer(t *testing.T) {
	bank := syntheticBank(t)

	for az := -85.0; az <= 90; az += 5 {
		a := bank.Filter(az-5, 0)
		b := bank.Filter(az, 0)
		la, ra := a.Energy()
		lb, rb := b.Energy()
		assert.False(t, la == lb && ra == rb, "azimuth %.0f matches its neighbour", az)
	}
}

func TestBankReversedTaps(t *testing.T) {
	f := syntheticBank(t).Filter(30, 10)
	n := f.Len()
	for i := 0; i < n; i++ {
		assert.Equal(t, f.Left()[i], f.ReversedLeft()[n-1-i])
		assert.Equal(t, f.Right()[i], f.ReversedRight()[n-1-i])
	}
}

func impulseMeasurement(az, el float64, rate int) Measurement {
	left := make([]float32, 64)
	right := make([]float32, 64)
	left[0] = 1
	right[4] = 0.5
	return Measurement{Azimuth: az, Elevation: el, SampleRate: rate, Left: left, Right: right}
}

func TestBuildFromSparseDatasetFillsGaps(t *testing.T) {
	loader := MemoryLoader{impulseMeasurement(0, 0, 48000)}

	bank, err := Build(context.Background(), testConfig(), loader, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, bank.Count(OriginMeasured))
	assert.Equal(t, bank.Len()-1, bank.Count(OriginInterpolated))
	assert.Zero(t, bank.Count(OriginSynthetic))

	front := bank.Filter(0, 0)
	assert.Equal(t, OriginMeasured, front.Origin)
	assert.Equal(t, float32(1), front.Left()[0])
	assert.Equal(t, float32(0.5), front.Right()[4])

	for i := 0; i < bank.Len(); i++ {
		require.False(t, bank.At(i).IsZero(), "cell %d", i)
	}
}

func TestBuildReplacesZeroFilters(t *testing.T) {
	zero := Measurement{Azimuth: 90, Elevation: 0, SampleRate: 48000,
		Left: make([]float32, 64), Right: make([]float32, 64)}
	loader := MemoryLoader{impulseMeasurement(0, 0, 48000), zero}

	bank, err := Build(context.Background(), testConfig(), loader, nil)
	require.NoError(t, err)

	f := bank.Filter(90, 0)
	assert.Equal(t, OriginSynthetic, f.Origin)
	assert.False(t, f.IsZero())
	// The zero column propagates to every ring before synthesis replaces it.
	assert.Equal(t, bank.Grid().Elevations(), bank.Count(OriginSynthetic))
}

func TestBuildResamplesMeasurements(t *testing.T) {
	loader := MemoryLoader{impulseMeasurement(0, 0, 44100)}

	bank, err := Build(context.Background(), testConfig(), loader, nil)
	require.NoError(t, err)

	f := bank.Filter(0, 0)
	assert.Equal(t, 128, f.Len())
	assert.False(t, f.IsZero())
}

func TestBuildLogsFilterEnergy(t *testing.T) {
	tests := []struct {
		name     string
		gain     float32
		energy   float64
		wantWarn bool
	}{
		{"quiet", 0.5, 0.25, false},
		{"just under unity", 0.9, 0.81, false},
		{"amplifying", 2, 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Measurement{Azimuth: 0, Elevation: 0, SampleRate: 48000,
				Left: make([]float32, 64), Right: make([]float32, 64)}
			m.Left[0] = tt.gain
			m.Right[3] = tt.gain / 2

			logger, hook := logtest.NewNullLogger()
			bank, err := Build(context.Background(), testConfig(), MemoryLoader{m}, logger)
			require.NoError(t, err)
			assert.InDelta(t, tt.energy, bank.MaxEnergy(), 1e-6)

			var ready, warned bool
			for _, e := range hook.AllEntries() {
				switch e.Message {
				case "HRTF filter bank ready":
					ready = true
					assert.Equal(t, fmt.Sprintf("%.3f", tt.energy), e.Data["max_energy"])
				case "HRTF filters amplify, loud sources may clip":
					warned = true
					assert.Equal(t, logrus.WarnLevel, e.Level)
				}
			}
			assert.True(t, ready)
			assert.Equal(t, tt.wantWarn, warned)
		})
	}
}

func TestBuildInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.FilterLength = 4
	_, err := Build(context.Background(), cfg, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, testConfig(), nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"low sample rate", func(c *Config) { c.SampleRate = 100 }},
		{"short filter", func(c *Config) { c.FilterLength = 1 }},
		{"bad grid", func(c *Config) { c.Grid.AzimuthStep = 0 }},
		{"no head", func(c *Config) { c.HeadRadius = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
	assert.NoError(t, DefaultConfig().Validate())
}

func TestNewFilterRejectsMismatch(t *testing.T) {
	_, err := NewFilter([]float32{1, 2}, []float32{1})
	assert.ErrorIs(t, err, ErrMalformedDataset)
	_, err = NewFilter(nil, nil)
	assert.ErrorIs(t, err, ErrMalformedDataset)
}

func BenchmarkBankLookup(b *testing.B) {
	bank, err := Build(context.Background(), testConfig(), nil, nil)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = bank.Filter(float64(i%360), float64(i%130-40))
	}
}
