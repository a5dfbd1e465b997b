// ABOUTME: Deterministic orbit trajectory
// ABOUTME: Moves a source clockwise around a fixed listener
package pose

import (
	"math"
	"time"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/spatial"
)

// Orbit describes a circular path around a listener at the origin facing
// -Z. At t=0 the source is straight ahead; a quarter period later it is
// on the right.
type Orbit struct {
	Radius    float64
	Period    time.Duration
	Elevation float64 // degrees
	Start     time.Time
}

// DefaultOrbit circles at two metres every eight seconds
func DefaultOrbit() Orbit {
	return Orbit{Radius: 2, Period: 8 * time.Second}
}

// Azimuth returns the source azimuth in degrees at offset t
func (o Orbit) Azimuth(t time.Duration) float64 {
	if o.Period <= 0 {
		return 0
	}
	return spatial.WrapDegrees(360 * float64(t) / float64(o.Period))
}

// At returns the listener and source poses at offset t from Start
func (o Orbit) At(t time.Duration) (listener, source spatial.Pose) {
	az := o.Azimuth(t) * math.Pi / 180
	el := o.Elevation * math.Pi / 180
	ts := o.Start.Add(t)

	listener = spatial.Pose{
		Orientation: spatial.Identity,
		Valid:       true,
		Timestamp:   ts,
	}
	source = spatial.Pose{
		Position: spatial.Vec3{
			X: o.Radius * math.Cos(el) * math.Sin(az),
			Y: o.Radius * math.Sin(el),
			Z: -o.Radius * math.Cos(el) * math.Cos(az),
		},
		Orientation: spatial.Identity,
		Valid:       true,
		Timestamp:   ts,
	}
	return listener, source
}
