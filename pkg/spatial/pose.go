// ABOUTME: Pose types and conversion from two world poses to a spatial target
// ABOUTME: The source position is rotated into the listener's frame by the inverse orientation
package spatial

import (
	"math"
	"time"
)

// Vec3 is a position in metres.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Length returns the Euclidean norm.
func (v Vec3) Length() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Quat is a rotation quaternion.
type Quat struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Identity is the zero rotation.
var Identity = Quat{W: 1}

// FromYaw returns a rotation of deg degrees about +Y. Positive yaw turns
// the listener to the left, matching the right-handed Y-up convention.
func FromYaw(deg float64) Quat {
	half := deg * math.Pi / 360
	return Quat{W: math.Cos(half), Y: math.Sin(half)}
}

// normalized returns q scaled to unit length, or Identity for a zero quaternion.
func (q Quat) normalized() Quat {
	n := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if n < 1e-12 || math.IsNaN(n) {
		return Identity
	}
	return Quat{q.W / n, q.X / n, q.Y / n, q.Z / n}
}

// Conjugate returns the inverse of a unit quaternion.
func (q Quat) Conjugate() Quat { return Quat{q.W, -q.X, -q.Y, -q.Z} }

// Rotate applies q to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	// v' = v + 2w(u x v) + 2(u x (u x v)) with u the vector part
	ux, uy, uz := q.X, q.Y, q.Z
	cx := uy*v.Z - uz*v.Y
	cy := uz*v.X - ux*v.Z
	cz := ux*v.Y - uy*v.X
	ccx := uy*cz - uz*cy
	ccy := uz*cx - ux*cz
	ccz := ux*cy - uy*cx
	return Vec3{
		X: v.X + 2*(q.W*cx+ccx),
		Y: v.Y + 2*(q.W*cy+ccy),
		Z: v.Z + 2*(q.W*cz+ccz),
	}
}

// Pose is a tracked position and orientation.
type Pose struct {
	Position    Vec3      `json:"position"`
	Orientation Quat      `json:"orientation"`
	Valid       bool      `json:"valid"`
	Timestamp   time.Time `json:"timestamp"`
}

// Target is a direction and distance relative to the listener.
type Target struct {
	Azimuth   float64 // degrees in [0, 360)
	Elevation float64 // degrees in [-90, 90]
	Distance  float64 // metres
}

// TargetFromPoses computes where source sits relative to listener. The
// second return is false when either pose is invalid or non-finite, in
// which case callers keep their previous target.
func TargetFromPoses(listener, source Pose) (Target, bool) {
	if !listener.Valid || !source.Valid {
		return Target{}, false
	}
	rel := source.Position.Sub(listener.Position)
	if !finite(rel.X) || !finite(rel.Y) || !finite(rel.Z) {
		return Target{}, false
	}

	local := listener.Orientation.normalized().Conjugate().Rotate(rel)
	dist := local.Length()
	if dist < 1e-9 {
		return Target{Azimuth: 0, Elevation: 0, Distance: 0}, true
	}

	horizontal := math.Hypot(local.X, local.Z)
	az := 0.0
	// Straight up or down has no meaningful azimuth.
	if horizontal > 1e-9*dist {
		az = math.Atan2(local.X, -local.Z) * 180 / math.Pi
	}
	el := math.Atan2(local.Y, horizontal) * 180 / math.Pi
	return Target{Azimuth: WrapDegrees(az), Elevation: el, Distance: dist}, true
}

// WrapDegrees maps an angle into [0, 360).
func WrapDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a = 0
	}
	return a
}

// ShortestDelta returns to-from normalised into [-180, 180].
func ShortestDelta(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d > 180 {
		d -= 360
	} else if d < -180 {
		d += 360
	}
	return d
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
