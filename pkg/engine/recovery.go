// ABOUTME: Fault-specific recovery strategies for transient device faults
// ABOUTME: Device reselection, sample-rate fallback and restart with safer defaults
package engine

import (
	"fmt"
	"slices"
)

// RecoveryConfig bounds and tunes fault recovery.
type RecoveryConfig struct {
	// MaxAttempts is how many restarts one fault episode may try before failing.
	MaxAttempts int
	// FallbackRates are tried in order when the device rejects its rate.
	FallbackRates []int
	// SafeBufferSize is the minimum block size used by a generic restart.
	SafeBufferSize int
}

// DefaultRecoveryConfig returns the recovery policy used by the live engine.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		MaxAttempts:    3,
		FallbackRates:  []int{48000, 44100, 96000, 32000},
		SafeBufferSize: 1024,
	}
}

// Validate checks the recovery policy.
func (r RecoveryConfig) Validate() error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("%w: recovery attempts %d", ErrInvalidConfig, r.MaxAttempts)
	}
	if r.SafeBufferSize < MinBufferSize || r.SafeBufferSize > MaxBufferSize {
		return fmt.Errorf("%w: safe buffer size %d", ErrInvalidConfig, r.SafeBufferSize)
	}
	for _, rate := range r.FallbackRates {
		if rate <= 0 {
			return fmt.Errorf("%w: fallback rate %d", ErrInvalidConfig, rate)
		}
	}
	return nil
}

// devicePair is the resolved input and output device of a stream.
type devicePair struct {
	input  DeviceInfo
	output DeviceInfo
}

// resolveDevices finds the devices a config names, or the defaults.
func resolveDevices(devices []DeviceInfo, cfg Config) (devicePair, error) {
	var pair devicePair
	in, ok := findDevice(devices, cfg.InputDevice, true)
	if !ok {
		return pair, fmt.Errorf("%w: input %q", ErrDeviceNotFound, cfg.InputDevice)
	}
	out, ok := findDevice(devices, cfg.OutputDevice, false)
	if !ok {
		return pair, fmt.Errorf("%w: output %q", ErrDeviceNotFound, cfg.OutputDevice)
	}
	if in.MaxInputChannels > 0 && in.MaxInputChannels < cfg.InputChannels {
		return pair, fmt.Errorf("%w: input %q has %d channels, need %d",
			ErrInvalidConfig, in.Name, in.MaxInputChannels, cfg.InputChannels)
	}
	if out.MaxOutputChannels > 0 && out.MaxOutputChannels < cfg.OutputChannels {
		return pair, fmt.Errorf("%w: output %q has %d channels, need %d",
			ErrInvalidConfig, out.Name, out.MaxOutputChannels, cfg.OutputChannels)
	}
	pair.input, pair.output = in, out
	return pair, nil
}

// findDevice returns the device with the given ID, or the default device
// for the direction when id is empty.
func findDevice(devices []DeviceInfo, id string, input bool) (DeviceInfo, bool) {
	for _, d := range devices {
		if id != "" && d.ID == id {
			return d, true
		}
		if id == "" && ((input && d.IsDefaultInput) || (!input && d.IsDefaultOutput)) {
			return d, true
		}
	}
	if id == "" {
		// No device flagged as default: take the first capable one.
		for _, d := range devices {
			if (input && d.MaxInputChannels > 0) || (!input && d.MaxOutputChannels > 0) {
				return d, true
			}
		}
	}
	return DeviceInfo{}, false
}

// reselect picks an alternative to lost on the same host API, preferring
// the default device. It returns false when nothing suitable exists.
func reselect(devices []DeviceInfo, lost DeviceInfo, input bool, channels int) (DeviceInfo, bool) {
	var fallback *DeviceInfo
	for i := range devices {
		d := &devices[i]
		if d.ID == lost.ID || d.HostAPI != lost.HostAPI {
			continue
		}
		if input && d.MaxInputChannels < channels || !input && d.MaxOutputChannels < channels {
			continue
		}
		if (input && d.IsDefaultInput) || (!input && d.IsDefaultOutput) {
			return *d, true
		}
		if fallback == nil {
			fallback = d
		}
	}
	if fallback == nil {
		return DeviceInfo{}, false
	}
	return *fallback, true
}

// present reports whether a device with id is still enumerated.
func present(devices []DeviceInfo, id string) bool {
	return slices.ContainsFunc(devices, func(d DeviceInfo) bool { return d.ID == id })
}

// recoveryPlan is the stream configuration a recovery attempt restarts with.
type recoveryPlan struct {
	cfg     Config
	devices devicePair
	action  string
}

// planRecovery chooses a strategy for the most severe pending fault.
func planRecovery(faults Fault, cfg Config, current devicePair, devices []DeviceInfo, policy RecoveryConfig) (recoveryPlan, error) {
	plan := recoveryPlan{cfg: cfg, devices: current}
	switch {
	case faults&FaultDeviceLost != 0:
		plan.action = "reselect device"
		// A device that is still enumerated keeps its slot unless it is the
		// only one that could have been lost.
		outLost := !present(devices, current.output.ID)
		inLost := !present(devices, current.input.ID)
		if !outLost && !inLost {
			outLost = true
		}
		if outLost {
			d, ok := reselect(devices, current.output, false, cfg.OutputChannels)
			if !ok {
				return plan, fmt.Errorf("%w: no output device on host API %q", ErrDeviceNotFound, current.output.HostAPI)
			}
			plan.cfg.OutputDevice, plan.devices.output = d.ID, d
		}
		if inLost {
			d, ok := reselect(devices, current.input, true, cfg.InputChannels)
			if !ok {
				return plan, fmt.Errorf("%w: no input device on host API %q", ErrDeviceNotFound, current.input.HostAPI)
			}
			plan.cfg.InputDevice, plan.devices.input = d.ID, d
		}

	case faults&FaultInvalidSampleRate != 0:
		plan.action = "fall back sample rate"
		rate, ok := fallbackRate(cfg.deviceRate(), current.output, policy.FallbackRates)
		if !ok {
			return plan, fmt.Errorf("%w: no fallback for %d Hz", ErrInvalidSampleRate, cfg.deviceRate())
		}
		plan.cfg.DeviceSampleRate = rate

	default:
		plan.action = "restart with safe defaults"
		size := max(cfg.BufferSize, policy.SafeBufferSize)
		plan.cfg.BufferSize = min(max(size, cfg.Controller.Min), cfg.Controller.Max)
	}
	return plan, nil
}

// fallbackRate returns the first rate other than current that the device supports.
func fallbackRate(current int, dev DeviceInfo, policy []int) (int, bool) {
	candidates := append(slices.Clone(dev.SampleRates), policy...)
	if dev.DefaultSampleRate > 0 {
		candidates = append([]int{dev.DefaultSampleRate}, candidates...)
	}
	for _, r := range candidates {
		if r != current && r > 0 && dev.SupportsRate(r) {
			return r, true
		}
	}
	return 0, false
}
