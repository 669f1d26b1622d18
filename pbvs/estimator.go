package pbvs

import (
	"sync/atomic"

	"github.com/golang/geo/r2"
)

// StateEstimator turns odometry samples into a PlanarPose with a continuous heading.
//
// Update must be called from a single goroutine (the odometry stream). Pose is
// safe to call from anywhere.
type StateEstimator struct {
	started bool
	prevRaw float64
	total   float64

	current atomic.Pointer[PlanarPose]
}

// NewStateEstimator returns an estimator that has not seen any sample yet.
func NewStateEstimator() *StateEstimator {
	return &StateEstimator{}
}

// Update ingests one odometry sample and returns the new pose.
func (e *StateEstimator) Update(orientation Quaternion, position r2.Point) PlanarPose {
	raw := NormalizeAngle(Yaw(orientation))

	if !e.started {
		e.started = true
		e.total = raw
	} else {
		e.total += wrapDelta(raw - e.prevRaw)
	}
	e.prevRaw = raw

	pose := PlanarPose{X: position.X, Y: position.Y, Theta: e.total}
	e.current.Store(&pose)
	return pose
}

// Pose returns the latest pose and whether any sample has been received.
func (e *StateEstimator) Pose() (PlanarPose, bool) {
	p := e.current.Load()
	if p == nil {
		return PlanarPose{}, false
	}
	return *p, true
}
