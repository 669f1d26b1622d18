package pbvs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStatusServer(t *testing.T) (*StatusServer, *StateEstimator, *TargetFusion, *ArmCommandGate, *Metrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	estimator := NewStateEstimator()
	fusion := NewTargetFusion(0, nil, metrics)
	gate := NewArmCommandGate(1, &recordingDispatcher{}, nil, metrics)
	return NewStatusServer("", reg, estimator, fusion, gate, nil), estimator, fusion, gate, metrics
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatusHealthz(t *testing.T) {
	srv, _, _, _, _ := newTestStatusServer(t)

	rec := get(t, srv.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusDebugStateBeforeInputs(t *testing.T) {
	srv, _, _, _, _ := newTestStatusServer(t)

	rec := get(t, srv.Handler(), "/debug/state")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap stateSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Nil(t, snap.Pose)
	assert.Nil(t, snap.ArmObserved)
	assert.False(t, snap.Target.Detected)
	assert.Equal(t, unsetArmState, snap.ArmLastIssued)
}

func TestStatusDebugState(t *testing.T) {
	srv, estimator, fusion, gate, _ := newTestStatusServer(t)
	estimator.Update(yawQuaternion(0.5), r2.Point{X: 1, Y: 2})
	fusion.UpdatePose(CameraPose{Position: r3.Vector{Z: 0.4}, Orientation: Quaternion{W: 1}})
	fusion.UpdateConfidence(0.9, true)
	gate.Observe(ArmState{Height: 30, Length: 40})

	rec := get(t, srv.Handler(), "/debug/state")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap stateSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.NotNil(t, snap.Pose)
	assert.InDelta(t, 0.5, snap.Pose.Theta, 1e-9)
	assert.Equal(t, 1.0, snap.Pose.X)
	require.NotNil(t, snap.ArmObserved)
	assert.Equal(t, 40.0, snap.ArmObserved.Length)
	assert.True(t, snap.Target.Detected)
	assert.InDelta(t, -0.4, snap.Target.Position.X, 1e-12)
}

func TestStatusMetrics(t *testing.T) {
	srv, _, _, _, metrics := newTestStatusServer(t)
	metrics.dropped(streamOdometry)
	metrics.goal(CommandOdomFront, GoalSucceeded)

	rec := get(t, srv.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `pbvs_samples_dropped_total{stream="odometry"} 1`)
	assert.Contains(t, body, `pbvs_goals_total{command="odom_front",status="succeeded"} 1`)
}
