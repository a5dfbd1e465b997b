// ABOUTME: Sender clock tracking with drift compensation
// ABOUTME: Maps remote timestamps to local time and rejects stale or reordered updates
package pose

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Quality represents how well a sender's clock is tracked
type Quality int

const (
	QualityLost Quality = iota
	QualityGood
	QualityDegraded
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDegraded:
		return "degraded"
	default:
		return "lost"
	}
}

// ClockConfig tunes a ClockTracker
type ClockConfig struct {
	// MaxAge is the oldest an update may be, after offset correction.
	MaxAge time.Duration
	// SmoothingRate is the weight given to each new residual.
	SmoothingRate float64
	// OutlierThreshold marks residuals that look like clock jumps.
	OutlierThreshold time.Duration
	// ReseedAfter consecutive outliers re-initialises the offset.
	ReseedAfter int
	// LostAfter without samples drops quality to lost.
	LostAfter time.Duration
}

// DefaultClockConfig returns the default tracking parameters
func DefaultClockConfig() ClockConfig {
	return ClockConfig{
		MaxAge:           500 * time.Millisecond,
		SmoothingRate:    0.1,
		OutlierThreshold: 50 * time.Millisecond,
		ReseedAfter:      3,
		LostAfter:        5 * time.Second,
	}
}

// ClockTracker estimates offset (local - remote) and drift of one sender
type ClockTracker struct {
	mu          sync.Mutex
	cfg         ClockConfig
	logger      logrus.FieldLogger
	offset      int64   // microseconds, local - remote
	drift       float64 // μs/μs
	lastRemote  int64
	lastLocal   int64
	lastAge     int64
	sampleCount int
	outliers    int
	quality     Quality
}

// NewClockTracker creates a tracker with cfg
func NewClockTracker(cfg ClockConfig, logger logrus.FieldLogger) *ClockTracker {
	if logger == nil {
		logger = discardLogger()
	}
	return &ClockTracker{cfg: cfg, logger: logger, quality: QualityLost}
}

// Observe checks an update sent at remote (sender μs) and received at
// local (local μs). It returns ErrOutOfOrder or ErrStale for updates the
// caller should drop; accepted updates refine the offset estimate.
func (c *ClockTracker) Observe(remote, local int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sampleCount > 0 && remote < c.lastRemote {
		return fmt.Errorf("%w: sent %dμs before previous", ErrOutOfOrder, c.lastRemote-remote)
	}

	measured := local - remote

	// First sample: initialise offset, no drift yet
	if c.sampleCount == 0 {
		c.seed(remote, local, measured)
		c.logger.WithField("offset_us", c.offset).Debug("Initial pose clock sync")
		return nil
	}

	dt := float64(local - c.lastLocal)
	predicted := c.offset
	if dt > 0 {
		predicted += int64(c.drift * dt)
	}
	residual := measured - predicted

	// Positive residual means extra transit delay.
	if residual > c.cfg.OutlierThreshold.Microseconds() || residual < -c.cfg.OutlierThreshold.Microseconds() {
		c.outliers++
		if c.outliers >= c.cfg.ReseedAfter {
			c.logger.WithFields(logrus.Fields{
				"residual_us": residual,
				"outliers":    c.outliers,
			}).Info("Pose clock jumped, reseeding")
			c.seed(remote, local, measured)
			return nil
		}
		if residual > c.cfg.MaxAge.Microseconds() {
			c.quality = QualityDegraded
			return fmt.Errorf("%w: %dμs late", ErrStale, residual)
		}
		// A negative jump or a modest delay is accepted without moving the
		// estimate.
		c.lastRemote = remote
		c.lastAge = residual
		return nil
	}
	c.outliers = 0

	c.offset = predicted + int64(c.cfg.SmoothingRate*float64(residual))
	if dt > 0 {
		c.drift += c.cfg.SmoothingRate * float64(residual) / dt
	}
	c.lastRemote = remote
	c.lastLocal = local
	c.lastAge = residual
	c.sampleCount++

	if residual < c.cfg.OutlierThreshold.Microseconds()/2 {
		c.quality = QualityGood
	} else {
		c.quality = QualityDegraded
	}
	return nil
}

func (c *ClockTracker) seed(remote, local, measured int64) {
	c.offset = measured
	c.drift = 0
	c.lastRemote = remote
	c.lastLocal = local
	c.lastAge = 0
	c.outliers = 0
	c.sampleCount = 1
	c.quality = QualityGood
}

// ToLocal converts a remote timestamp to local time
func (c *ClockTracker) ToLocal(remote int64) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sampleCount == 0 {
		return time.UnixMicro(remote)
	}
	return time.UnixMicro(remote + c.offset)
}

// Stats returns the current offset, the last update's age and the quality
func (c *ClockTracker) Stats() (offset, age time.Duration, quality Quality) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Duration(c.offset) * time.Microsecond, time.Duration(c.lastAge) * time.Microsecond, c.quality
}

// CheckQuality updates quality based on time since the last sample
func (c *ClockTracker) CheckQuality(now time.Time) Quality {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sampleCount == 0 || now.UnixMicro()-c.lastLocal > c.cfg.LostAfter.Microseconds() {
		c.quality = QualityLost
	}
	return c.quality
}
