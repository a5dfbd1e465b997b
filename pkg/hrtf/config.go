// ABOUTME: Configuration for filter bank construction and synthesis
// ABOUTME: DefaultConfig matches a 48 kHz pipeline with 256-tap filters
package hrtf

import "fmt"

// Config controls how a Bank is built.
type Config struct {
	SampleRate   int
	FilterLength int
	Grid         Grid

	// Spherical head model parameters
	HeadRadius   float64 // metres
	SpeedOfSound float64 // metres per second

	// Workers bounds parallel synthesis; zero means GOMAXPROCS.
	Workers int
}

// DefaultConfig returns the configuration used by the live engine.
func DefaultConfig() Config {
	return Config{
		SampleRate:   48000,
		FilterLength: 256,
		Grid:         DefaultGrid(),
		HeadRadius:   0.0875,
		SpeedOfSound: 343.0,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SampleRate < 8000 {
		return fmt.Errorf("sample rate %d: %w", c.SampleRate, ErrInvalidConfig)
	}
	if c.FilterLength < 16 {
		return fmt.Errorf("filter length %d: %w", c.FilterLength, ErrInvalidConfig)
	}
	if !c.Grid.valid() {
		return fmt.Errorf("grid %+v: %w", c.Grid, ErrInvalidConfig)
	}
	if c.HeadRadius <= 0 || c.SpeedOfSound <= 0 {
		return fmt.Errorf("head radius %.4f, speed of sound %.1f: %w", c.HeadRadius, c.SpeedOfSound, ErrInvalidConfig)
	}
	return nil
}
