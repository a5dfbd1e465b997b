// ABOUTME: Monitor goroutine sampling telemetry once per interval
// ABOUTME: Runs fault recovery and the buffer controller, the only place streams restart
package engine

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type resizeRequest struct {
	frames int
	reply  chan error
}

// monitor is the handle for one monitor goroutine.
type monitor struct {
	stop     chan struct{}
	done     chan struct{}
	requests chan resizeRequest
	attempts int
}

func newMonitor() *monitor {
	return &monitor{
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		requests: make(chan resizeRequest),
	}
}

// halt signals the goroutine and waits for it to exit.
func (m *monitor) halt() {
	close(m.stop)
	<-m.done
}

// request hands a resize to the goroutine and waits for its outcome.
func (m *monitor) request(frames int) error {
	if m == nil {
		return ErrInvalidState
	}
	req := resizeRequest{frames: frames, reply: make(chan error, 1)}
	select {
	case m.requests <- req:
	case <-m.done:
		return fmt.Errorf("%w: engine stopped", ErrInvalidState)
	}
	select {
	case err := <-req.reply:
		return err
	case <-m.done:
		return fmt.Errorf("%w: engine stopped", ErrInvalidState)
	}
}

func (e *Engine) runMonitor(m *monitor, interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := e.stats.snapshot()
	for {
		select {
		case <-m.stop:
			return
		case req := <-m.requests:
			req.reply <- e.resize(req.frames, "requested")
			prev = e.stats.snapshot()
		case now := <-ticker.C:
			if e.handleFaults(m) {
				prev = e.stats.snapshot()
				continue
			}
			prev = e.evaluate(prev, now)
		}
	}
}

// handleFaults drains pending faults and runs one recovery attempt. It
// reports whether a recovery was attempted.
func (e *Engine) handleFaults(m *monitor) bool {
	pending := Fault(e.faults.Swap(0))
	if pending == 0 || e.RecoveryState() == RecoveryFailed {
		return false
	}

	e.recovery.Store(int32(RecoveryRecovering))
	m.attempts++
	log := e.logger.WithFields(logrus.Fields{
		"faults":  faultNames(pending),
		"attempt": m.attempts,
	})
	log.Warn("Device fault, recovering")

	err := e.recover(pending)
	if err == nil {
		m.attempts = 0
		e.recovery.Store(int32(RecoveryHealthy))
		log.Info("Recovered")
		return true
	}

	e.mu.Lock()
	maxAttempts := e.cfg.Recovery.MaxAttempts
	e.mu.Unlock()
	if m.attempts >= maxAttempts {
		e.recovery.Store(int32(RecoveryFailed))
		e.mu.Lock()
		if cerr := e.closeStreamLocked(); cerr != nil {
			log.WithError(cerr).Warn("Error closing failed stream")
		}
		// Stop still owns the monitor and returns the engine to Initialized.
		if e.State() == StateRunning {
			e.state.Store(int32(StateStopped))
		}
		e.mu.Unlock()
		log.WithError(err).Error("Recovery failed, stream closed")
		return true
	}
	// Retry on the next tick.
	e.faults.Or(uint32(pending))
	log.WithError(err).Warn("Recovery attempt failed")
	return true
}

// recover applies the strategy for the most severe pending fault.
func (e *Engine) recover(pending Fault) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.State() != StateRunning {
		return nil
	}
	devices, err := e.backend.Devices()
	if err != nil {
		return fmt.Errorf("enumerate devices: %w", err)
	}
	plan, err := planRecovery(pending, e.cfg, e.devices, devices, e.cfg.Recovery)
	if err != nil {
		return err
	}
	e.logger.WithFields(logrus.Fields{
		"action":      plan.action,
		"input":       plan.devices.input.Name,
		"output":      plan.devices.output.Name,
		"device_rate": plan.cfg.deviceRate(),
		"buffer_size": plan.cfg.BufferSize,
	}).Info("Applying recovery")
	if err := e.restartLocked(plan.cfg); err != nil {
		return fmt.Errorf("%s: %w", plan.action, err)
	}
	e.devices = plan.devices
	return nil
}

// evaluate logs what happened since prev and lets the controller act.
func (e *Engine) evaluate(prev Stats, now time.Time) Stats {
	cur := e.Stats()
	under := cur.Underruns - prev.Underruns
	over := cur.Overruns - prev.Overruns

	if d := cur.Sanitized - prev.Sanitized; d > 0 {
		e.logger.WithField("samples", d).Debug("Replaced non-finite input samples")
	}
	if d := cur.ProcessErrors - prev.ProcessErrors; d > 0 {
		e.logger.WithField("blocks", d).Warn("Processor errors, emitted silence")
	}
	if d := cur.BufferFaults - prev.BufferFaults; d > 0 {
		e.logger.WithField("callbacks", d).Warn("Invalid device buffers")
	}
	if under > 0 || over > 0 {
		e.logger.WithFields(logrus.Fields{
			"underruns": under,
			"overruns":  over,
			"cpu_load":  fmt.Sprintf("%.2f", cur.CPULoad),
		}).Debug("Starvation")
	}

	if e.RecoveryState() != RecoveryHealthy || cur.SampleRate == 0 {
		return cur
	}
	period := time.Duration(cur.BufferSize) * time.Second / time.Duration(cur.SampleRate)
	in := ControllerInput{
		BufferSize: cur.BufferSize,
		Underruns:  under,
		Overruns:   over,
		FillRatio:  max(cur.InputFill, cur.OutputFill),
		CPULoad:    cur.CPULoad,
		Now:        now,
	}
	if period > 0 {
		in.CallbackLoad = float64(cur.MaxCallback) / float64(period)
	}

	e.mu.Lock()
	decision := e.controller.Evaluate(in)
	e.mu.Unlock()
	if !decision.Changed(cur.BufferSize) {
		return cur
	}
	if err := e.resize(decision.BufferSize, decision.Reason); err != nil {
		e.logger.WithError(err).Warn("Adaptive resize failed")
	}
	return e.Stats()
}

// resize restarts the running stream with a new block size.
func (e *Engine) resize(frames int, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.State() != StateRunning {
		return fmt.Errorf("%w: resize while %s", ErrInvalidState, e.State())
	}
	if frames == e.cfg.BufferSize {
		return nil
	}
	old := e.cfg.BufferSize
	cfg := e.cfg
	cfg.BufferSize = frames
	if err := e.restartLocked(cfg); err != nil {
		// Leave the broken stream to recovery.
		e.ReportFault(FaultInvalidBuffer)
		return fmt.Errorf("resize to %d: %w", frames, err)
	}
	e.stats.bufferChanges.Add(1)
	e.logger.WithFields(logrus.Fields{
		"from":   old,
		"to":     frames,
		"reason": reason,
	}).Info("Buffer size changed")
	return nil
}

func faultNames(f Fault) string {
	var names string
	for bit := FaultDeviceLost; bit <= FaultUnknown; bit <<= 1 {
		if f&bit == 0 {
			continue
		}
		if names != "" {
			names += "|"
		}
		names += bit.String()
	}
	return names
}
