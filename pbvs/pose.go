package pbvs

import (
	"math"

	"github.com/pkg/errors"
)

const twoPi = 2 * math.Pi

// ErrMalformedPose reports an orientation or position that cannot be converted.
var ErrMalformedPose = errors.New("malformed pose")

// Quaternion is a 3D orientation in x, y, z, w order.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Validate rejects non-finite components and zero-norm quaternions.
func (q Quaternion) Validate() error {
	for _, v := range []float64{q.X, q.Y, q.Z, q.W} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrap(ErrMalformedPose, "non-finite quaternion component")
		}
	}
	if q.X*q.X+q.Y*q.Y+q.Z*q.Z+q.W*q.W < 1e-12 {
		return errors.Wrap(ErrMalformedPose, "zero-norm quaternion")
	}
	return nil
}

func (q Quaternion) normalized() Quaternion {
	n := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	return Quaternion{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
}

// Yaw returns the rotation about the z axis in (-π, π] (static xyz Euler order).
func Yaw(q Quaternion) float64 {
	q = q.normalized()
	return math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))
}

// Pitch returns the rotation about the y axis in [-π/2, π/2] (static xyz Euler order).
func Pitch(q Quaternion) float64 {
	q = q.normalized()
	s := 2 * (q.W*q.Y - q.Z*q.X)
	return math.Asin(clamp(s, -1, 1))
}

// NormalizeAngle maps theta into [0, 2π).
func NormalizeAngle(theta float64) float64 {
	theta = math.Mod(theta, twoPi)
	if theta < 0 {
		theta += twoPi
	}
	if theta >= twoPi {
		theta = 0
	}
	return theta
}

// wrapDelta brings a heading difference into (-π, π] with a single 2π correction.
// Inputs are differences of two angles in [0, 2π), so one correction is enough.
func wrapDelta(d float64) float64 {
	if d > math.Pi {
		return d - twoPi
	}
	if d <= -math.Pi {
		return d + twoPi
	}
	return d
}

// clamp keeps value inside [lo, hi].
func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
