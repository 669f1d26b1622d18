package pbvs

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func yawQuaternion(yaw float64) Quaternion {
	return Quaternion{Z: math.Sin(yaw / 2), W: math.Cos(yaw / 2)}
}

func pitchQuaternion(pitch float64) Quaternion {
	return Quaternion{Y: math.Sin(pitch / 2), W: math.Cos(pitch / 2)}
}

func TestYaw(t *testing.T) {
	for _, yaw := range []float64{0, 0.5, math.Pi / 2, 3, -1.2, -3} {
		assert.InDelta(t, yaw, Yaw(yawQuaternion(yaw)), 1e-9, "yaw %v", yaw)
	}
	assert.InDelta(t, 0, Yaw(pitchQuaternion(0.4)), 1e-9)
}

func TestYawIgnoresScale(t *testing.T) {
	q := yawQuaternion(1.1)
	scaled := Quaternion{X: q.X * 3, Y: q.Y * 3, Z: q.Z * 3, W: q.W * 3}
	assert.InDelta(t, 1.1, Yaw(scaled), 1e-9)
}

func TestPitch(t *testing.T) {
	for _, pitch := range []float64{0, 0.3, -0.7, 1.2} {
		assert.InDelta(t, pitch, Pitch(pitchQuaternion(pitch)), 1e-9, "pitch %v", pitch)
	}
}

func TestNormalizeAngle(t *testing.T) {
	cases := map[float64]float64{
		0:               0,
		1:               1,
		-math.Pi / 2:    3 * math.Pi / 2,
		twoPi:           0,
		twoPi + 0.25:    0.25,
		-twoPi - 0.25:   twoPi - 0.25,
		5*math.Pi + 0.1: math.Pi + 0.1,
	}
	for in, want := range cases {
		got := NormalizeAngle(in)
		assert.InDelta(t, want, got, 1e-9, "normalize %v", in)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.Less(t, got, twoPi)
	}
}

func TestWrapDelta(t *testing.T) {
	assert.InDelta(t, 0.2, wrapDelta(0.2), 1e-12)
	assert.InDelta(t, -0.2, wrapDelta(twoPi-0.2), 1e-12)
	assert.InDelta(t, 0.2, wrapDelta(0.2-twoPi), 1e-12)
	assert.InDelta(t, math.Pi, wrapDelta(math.Pi), 1e-12)
	assert.InDelta(t, math.Pi, wrapDelta(-math.Pi), 1e-12)
}

func TestQuaternionValidate(t *testing.T) {
	require.NoError(t, yawQuaternion(0.3).Validate())

	err := Quaternion{}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedPose)

	err = Quaternion{X: math.NaN(), W: 1}.Validate()
	assert.ErrorIs(t, err, ErrMalformedPose)

	err = Quaternion{W: math.Inf(1)}.Validate()
	assert.ErrorIs(t, err, ErrMalformedPose)
}
