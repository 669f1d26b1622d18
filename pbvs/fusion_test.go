package pbvs

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTargetFusionSnapshotBeforeSamples(t *testing.T) {
	f := NewTargetFusion(0, nil, nil)
	assert.Equal(t, TargetObservation{}, f.Snapshot())
}

func TestTargetFusionRemapsCameraFrame(t *testing.T) {
	f := NewTargetFusion(0.05, nil, nil)
	f.UpdatePose(CameraPose{
		Position:    r3.Vector{X: 0.1, Y: 0.025, Z: 0.4},
		Orientation: pitchQuaternion(0.3),
	})

	obs := f.Snapshot()
	assert.InDelta(t, -0.4, obs.Position.X, 1e-12)
	assert.InDelta(t, 0.15, obs.Position.Y, 1e-12)
	assert.InDelta(t, 0.025, obs.Position.Z, 1e-12)
	assert.InDelta(t, -0.3, obs.Theta, 1e-9)
	assert.False(t, obs.Detected)
}

func TestTargetFusionKeepsPreviousPoseOnMalformedInput(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	f := NewTargetFusion(0, nil, metrics)
	f.UpdatePose(CameraPose{Position: r3.Vector{Z: 0.5}, Orientation: Quaternion{W: 1}})
	before := f.Snapshot()

	f.UpdatePose(CameraPose{Position: r3.Vector{Z: 0.2}, Orientation: Quaternion{}})
	f.UpdatePose(CameraPose{Position: r3.Vector{X: math.NaN()}, Orientation: Quaternion{W: 1}})

	assert.Equal(t, before, f.Snapshot())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.DroppedSamples.WithLabelValues(streamTargetPose)))
}

func TestTargetFusionConfidence(t *testing.T) {
	f := NewTargetFusion(0, nil, nil)
	f.UpdatePose(CameraPose{Position: r3.Vector{Z: 0.5}, Orientation: Quaternion{W: 1}})
	f.UpdateConfidence(0.8, true)

	obs := f.Snapshot()
	assert.Equal(t, 0.8, obs.Confidence)
	assert.True(t, obs.Detected)
	assert.InDelta(t, -0.5, obs.Position.X, 1e-12)

	f.UpdateConfidence(1.7, true)
	assert.Equal(t, 1.0, f.Snapshot().Confidence)

	f.UpdateConfidence(math.NaN(), false)
	assert.Equal(t, 1.0, f.Snapshot().Confidence)
	assert.True(t, f.Snapshot().Detected)
}
