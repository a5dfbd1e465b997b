// ABOUTME: Adaptive buffer-size controller driven by starvation counters
// ABOUTME: Grows on underruns or high ring fill, shrinks when overruns dominate with headroom
package engine

import (
	"fmt"
	"math"
	"time"
)

// ControllerConfig tunes the adaptive buffer-size controller.
type ControllerConfig struct {
	Enabled bool
	Min     int
	Max     int
	// GrowFactor and ShrinkFactor scale the block size per step.
	GrowFactor   float64
	ShrinkFactor float64
	// MaxStep bounds any single change as a fraction of the current size.
	MaxStep float64
	// HighFill is the ring fill ratio treated as approaching capacity.
	HighFill float64
	// LowLoad is the CPU load and callback duration fraction below which
	// there is headroom to shrink.
	LowLoad float64
	// MinEvents is the starvation count per period that counts as sustained.
	MinEvents uint64
	Cooldown  time.Duration
	// Granularity rounds new sizes to a multiple of this many frames.
	Granularity int
}

// DefaultControllerConfig returns the thresholds used by the live engine.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Enabled:      true,
		Min:          MinBufferSize,
		Max:          MaxBufferSize,
		GrowFactor:   1.5,
		ShrinkFactor: 0.75,
		MaxStep:      0.5,
		HighFill:     0.85,
		LowLoad:      0.3,
		MinEvents:    2,
		Cooldown:     5 * time.Second,
		Granularity:  16,
	}
}

// Validate checks the controller thresholds.
func (c ControllerConfig) Validate() error {
	switch {
	case c.Min < MinBufferSize || c.Max > MaxBufferSize || c.Min > c.Max:
		return fmt.Errorf("%w: controller bounds [%d, %d]", ErrInvalidConfig, c.Min, c.Max)
	case c.GrowFactor <= 1:
		return fmt.Errorf("%w: grow factor %g", ErrInvalidConfig, c.GrowFactor)
	case c.ShrinkFactor <= 0 || c.ShrinkFactor >= 1:
		return fmt.Errorf("%w: shrink factor %g", ErrInvalidConfig, c.ShrinkFactor)
	case c.MaxStep <= 0 || c.MaxStep > 0.5:
		return fmt.Errorf("%w: max step %g", ErrInvalidConfig, c.MaxStep)
	case c.HighFill <= 0 || c.HighFill > 1:
		return fmt.Errorf("%w: high fill %g", ErrInvalidConfig, c.HighFill)
	case c.Granularity < 1:
		return fmt.Errorf("%w: granularity %d", ErrInvalidConfig, c.Granularity)
	}
	return nil
}

// ControllerInput is what the monitor observed over one period.
type ControllerInput struct {
	BufferSize int
	// Underruns and Overruns are counts since the previous evaluation.
	Underruns uint64
	Overruns  uint64
	// FillRatio is the fuller of the two rings, 0..1.
	FillRatio float64
	CPULoad   float64
	// CallbackLoad is the longest recent callback over the callback period.
	CallbackLoad float64
	Now          time.Time
}

// Decision is the controller's verdict for one evaluation.
type Decision struct {
	BufferSize int
	Reason     string
}

// Changed reports whether the decision differs from current.
func (d Decision) Changed(current int) bool {
	return d.BufferSize != current
}

// BufferController decides when the stream block size should change. It is
// owned by the monitor goroutine.
type BufferController struct {
	cfg        ControllerConfig
	lastChange time.Time
}

// NewBufferController returns a controller with the given thresholds.
func NewBufferController(cfg ControllerConfig) *BufferController {
	return &BufferController{cfg: cfg}
}

// Evaluate returns the block size to run with next.
func (c *BufferController) Evaluate(in ControllerInput) Decision {
	keep := Decision{BufferSize: in.BufferSize}
	if !c.cfg.Enabled {
		return keep
	}
	if !c.lastChange.IsZero() && in.Now.Sub(c.lastChange) < c.cfg.Cooldown {
		keep.Reason = "cooldown"
		return keep
	}

	var target float64
	switch {
	case in.Underruns >= c.cfg.MinEvents && in.Underruns > in.Overruns:
		target = float64(in.BufferSize) * c.cfg.GrowFactor
		keep.Reason = "underruns"
	case in.FillRatio >= c.cfg.HighFill:
		target = float64(in.BufferSize) * c.cfg.GrowFactor
		keep.Reason = "ring near capacity"
	case in.Overruns >= c.cfg.MinEvents && in.Overruns > in.Underruns &&
		in.CPULoad < c.cfg.LowLoad && in.CallbackLoad < c.cfg.LowLoad:
		target = float64(in.BufferSize) * c.cfg.ShrinkFactor
		keep.Reason = "overruns with headroom"
	default:
		return keep
	}

	size := c.cfg.clamp(in.BufferSize, target)
	if size == in.BufferSize {
		keep.Reason += ", at bound"
		return keep
	}
	c.lastChange = in.Now
	return Decision{BufferSize: size, Reason: keep.Reason}
}

// Step returns the block size one manual step away from current. Manual
// steps take the largest change MaxStep allows and are rounded and bounded
// like controller decisions.
func (c ControllerConfig) Step(current int, grow bool) int {
	target := float64(current) / 2
	if grow {
		target = float64(current) * 2
	}
	return c.clamp(current, target)
}

// clamp bounds target to the per-step limit, the granularity and [Min, Max].
func (c ControllerConfig) clamp(current int, target float64) int {
	lo := float64(current) * (1 - c.MaxStep)
	hi := float64(current) * (1 + c.MaxStep)
	target = math.Min(math.Max(target, lo), hi)

	g := c.Granularity
	size := int(math.Round(target/float64(g))) * g
	// Rounding must not push the step past the limit.
	if float64(size) > hi {
		size -= g
	}
	if float64(size) < lo {
		size += g
	}
	return min(max(size, c.Min), c.Max)
}

// Reset forgets the cooldown.
func (c *BufferController) Reset() {
	c.lastChange = time.Time{}
}
