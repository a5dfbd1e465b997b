// ABOUTME: Audio device backends for the real-time engine
// ABOUTME: Malgo, PortAudio, Oto and a simulated backend with fault injection
// Package device implements engine.Backend on native audio APIs.
//
// Malgo (miniaudio) is the default duplex backend. PortAudio requires the
// portaudio build tag and reports device underflow and overflow flags.
// Oto is playback only and takes its input from a Source. Simulated runs
// the callback from a goroutine clock at any speed and can inject faults.
//
// Example:
//
//	backend, err := device.New("malgo", device.Options{}, logger)
//	eng := engine.New(backend, spatializer, engine.DefaultConfig(), logger)
package device
