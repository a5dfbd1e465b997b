// ABOUTME: Tests for the spatializer
// ABOUTME: Lateral energy, ILD monotonicity, distance attenuation, chunking and pose handling
package binaural

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/hrtf"
	"github.com/Resonate-Protocol/resonate-binaural/pkg/spatial"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FilterLength = 128
	cfg.MaxBlock = 256
	return cfg
}

var (
	bankOnce sync.Once
	bank     *hrtf.Bank
	bankErr  error
)

func sharedBank(t *testing.T) *hrtf.Bank {
	t.Helper()
	bankOnce.Do(func() {
		cfg := hrtf.DefaultConfig()
		cfg.FilterLength = 128
		bank, bankErr = hrtf.Build(context.Background(), cfg, nil, nil)
	})
	require.NoError(t, bankErr)
	return bank
}

func newSpatializer(t *testing.T) *Spatializer {
	t.Helper()
	s := New(testConfig(), nil)
	require.NoError(t, s.InitializeWithBank(sharedBank(t)))
	return s
}

func noise(n int, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(rng.Float64()*2-1) * 0.5
	}
	return out
}

// render processes a mono signal at a fixed target and returns per-ear RMS,
// skipping the first block so filter history has filled.
func render(t *testing.T, s *Spatializer, az, el, dist float64) (float64, float64) {
	t.Helper()
	s.SetTarget(az, el, dist)
	in := noise(4096, 42)
	out := make([]float32, 2*len(in))
	require.NoError(t, s.Process(in, out, len(in), 1))

	var l, r float64
	skip := 256
	for i := skip; i < len(in); i++ {
		l += float64(out[2*i]) * float64(out[2*i])
		r += float64(out[2*i+1]) * float64(out[2*i+1])
	}
	n := float64(len(in) - skip)
	return math.Sqrt(l / n), math.Sqrt(r / n)
}

func TestProcessBeforeInitialize(t *testing.T) {
	s := New(testConfig(), nil)
	err := s.Process(make([]float32, 8), make([]float32, 16), 8, 1)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.False(t, s.Initialized())
}

func TestProcessValidatesBuffers(t *testing.T) {
	s := newSpatializer(t)
	assert.ErrorIs(t, s.Process(make([]float32, 8), make([]float32, 16), 8, 3), ErrInvalidChannels)
	assert.ErrorIs(t, s.Process(make([]float32, 4), make([]float32, 16), 8, 1), ErrShortBuffer)
	assert.ErrorIs(t, s.Process(make([]float32, 8), make([]float32, 8), 8, 1), ErrShortBuffer)
	assert.NoError(t, s.Process(nil, nil, 0, 1))
}

func TestLateralSourcesFavourNearEar(t *testing.T) {
	l, r := render(t, newSpatializer(t), -90, 0, 1)
	assert.Greater(t, l, r, "source at -90 should be louder on the left")

	l, r = render(t, newSpatializer(t), 90, 0, 1)
	assert.Greater(t, r, l, "source at +90 should be louder on the right")
}

func TestILDMonotonicSweep(t *testing.T) {
	prev := math.Inf(-1)
	for az := -90.0; az <= 90; az += 15 {
		l, r := render(t, newSpatializer(t), az, 0, 1)
		ild := 20 * math.Log10(r/l)
		assert.Greater(t, ild, prev, "azimuth %.0f", az)
		prev = ild
	}
}

func TestDistanceAttenuation(t *testing.T) {
	nearL, nearR := render(t, newSpatializer(t), 30, 0, 0.5)
	farL, farR := render(t, newSpatializer(t), 30, 0, 5)

	near := math.Hypot(nearL, nearR)
	far := math.Hypot(farL, farR)
	assert.Greater(t, near/far, 2.0)
}

func TestStereoInputIsDownmixed(t *testing.T) {
	mono := noise(512, 7)
	stereo := make([]float32, 1024)
	for i, v := range mono {
		stereo[2*i] = v
		stereo[2*i+1] = v
	}

	a := newSpatializer(t)
	b := newSpatializer(t)
	a.SetTarget(45, 0, 1)
	b.SetTarget(45, 0, 1)

	outA := make([]float32, 1024)
	outB := make([]float32, 1024)
	require.NoError(t, a.Process(mono, outA, 512, 1))
	require.NoError(t, b.Process(stereo, outB, 512, 2))
	assert.Equal(t, outA, outB)
}

func TestLargeBlocksAreChunked(t *testing.T) {
	in := noise(1000, 9)

	whole := newSpatializer(t)
	whole.SetTarget(120, 10, 2)
	outWhole := make([]float32, 2000)
	require.NoError(t, whole.Process(in, outWhole, 1000, 1))

	pieces := newSpatializer(t)
	pieces.SetTarget(120, 10, 2)
	outPieces := make([]float32, 2000)
	for start := 0; start < 1000; start += 256 {
		end := min(start+256, 1000)
		require.NoError(t, pieces.Process(in[start:end], outPieces[2*start:2*end], end-start, 1))
	}

	for i := range outWhole {
		require.InDelta(t, outWhole[i], outPieces[i], 1e-6, "sample %d", i)
	}
}

func TestStatsReportActiveFilter(t *testing.T) {
	s := newSpatializer(t)
	assert.Equal(t, -1, s.Stats().ActiveFilterIndex)

	s.SetTarget(90, 20, 3)
	require.NoError(t, s.Process(make([]float32, 64), make([]float32, 128), 64, 1))

	st := s.Stats()
	assert.InDelta(t, 90, st.Azimuth, 1e-9)
	assert.InDelta(t, 20, st.Elevation, 1e-9)
	assert.InDelta(t, 3, st.Distance, 1e-9)
	assert.Equal(t, s.Bank().Index(90, 20), st.ActiveFilterIndex)
}

func TestUpdateSpatialPositionIgnoresInvalidPoses(t *testing.T) {
	s := newSpatializer(t)
	listener := spatial.Pose{Orientation: spatial.Identity, Valid: true}
	source := spatial.Pose{Position: spatial.Vec3{X: 2}, Orientation: spatial.Identity, Valid: true}

	s.UpdateSpatialPosition(listener, source)
	invalid := source
	invalid.Valid = false
	invalid.Position = spatial.Vec3{X: -2}
	s.UpdateSpatialPosition(listener, invalid)

	applied, ignored := s.PoseCounts()
	assert.Equal(t, uint64(1), applied)
	assert.Equal(t, uint64(1), ignored)

	require.NoError(t, s.Process(make([]float32, 32), make([]float32, 64), 32, 1))
	assert.InDelta(t, 90, s.Stats().Azimuth, 1e-9, "invalid pose must not move the target")
	assert.InDelta(t, 2, s.Stats().Distance, 1e-9)
}

func TestResetKeepsTarget(t *testing.T) {
	s := newSpatializer(t)
	s.SetTarget(200, 0, 1)
	require.NoError(t, s.Process(make([]float32, 32), make([]float32, 64), 32, 1))

	s.Reset()
	assert.Equal(t, -1, s.Stats().ActiveFilterIndex)

	require.NoError(t, s.Process(make([]float32, 32), make([]float32, 64), 32, 1))
	assert.InDelta(t, 200, s.Stats().Azimuth, 1e-9)
}

func TestInitializeWithBankValidates(t *testing.T) {
	s := New(testConfig(), nil)
	assert.ErrorIs(t, s.InitializeWithBank(nil), ErrInvalidConfig)

	cfg := testConfig()
	cfg.SampleRate = 44100
	assert.ErrorIs(t, New(cfg, nil).InitializeWithBank(sharedBank(t)), ErrInvalidConfig)

	cfg = testConfig()
	cfg.MaxBlock = 0
	assert.ErrorIs(t, New(cfg, nil).InitializeWithBank(sharedBank(t)), ErrInvalidConfig)
}

func TestInitializeSynthesisesWithoutDataset(t *testing.T) {
	cfg := testConfig()
	cfg.Grid.AzimuthStep = 30
	cfg.Grid.ElevationStep = 65
	s := New(cfg, nil)

	require.NoError(t, s.Initialize(context.Background(), ""))
	assert.True(t, s.Initialized())
	assert.Equal(t, s.Bank().Len(), s.Bank().Count(hrtf.OriginSynthetic))
	assert.NotEmpty(t, s.EngineName())
}

func TestProcessDoesNotAllocate(t *testing.T) {
	s := newSpatializer(t)
	in := noise(256, 3)
	out := make([]float32, 512)
	az := 0.0

	allocs := testing.AllocsPerRun(50, func() {
		az += 7
		s.SetTarget(az, 0, 1.5)
		_ = s.Process(in, out, 256, 1)
	})
	assert.Zero(t, allocs)
}
