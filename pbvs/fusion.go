package pbvs

import (
	"sync/atomic"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CameraPose is a raw target pose in the camera optical frame.
type CameraPose struct {
	Position    r3.Vector
	Orientation Quaternion
}

type targetPose struct {
	position r3.Vector
	theta    float64
}

type detectionConfidence struct {
	confidence float64
	detected   bool
}

// TargetFusion holds the latest target pose and detection confidence.
//
// Pose and confidence arrive on independent streams and are replaced
// wholesale; there is no history and no staleness tracking. Consumers apply
// their own confidence threshold.
type TargetFusion struct {
	cameraOffset float64
	logger       *zap.Logger
	metrics      *Metrics

	pose atomic.Pointer[targetPose]
	conf atomic.Pointer[detectionConfidence]
}

// NewTargetFusion constructs a fusion buffer. cameraOffset is added to the
// lateral axis of every pose.
func NewTargetFusion(cameraOffset float64, logger *zap.Logger, metrics *Metrics) *TargetFusion {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TargetFusion{
		cameraOffset: cameraOffset,
		logger:       logger.Named("fusion"),
		metrics:      metrics,
	}
}

// UpdatePose remaps a camera-frame pose into the robot frame and stores it.
// Malformed poses are dropped and the previous snapshot is kept.
func (f *TargetFusion) UpdatePose(raw CameraPose) {
	pose, err := remapCameraPose(raw, f.cameraOffset)
	if err != nil {
		f.logger.Debug("dropping target pose", zap.Error(err))
		f.metrics.dropped(streamTargetPose)
		return
	}
	f.pose.Store(&pose)
}

// UpdateConfidence stores the latest detector confidence.
func (f *TargetFusion) UpdateConfidence(confidence float64, detected bool) {
	if !finite(confidence) {
		f.logger.Debug("dropping non-finite confidence")
		f.metrics.dropped(streamTargetConfidence)
		return
	}
	f.conf.Store(&detectionConfidence{confidence: clamp(confidence, 0, 1), detected: detected})
}

// Snapshot returns the latest fused observation. Before any sample it
// returns the zero observation (not detected).
func (f *TargetFusion) Snapshot() TargetObservation {
	var obs TargetObservation
	if p := f.pose.Load(); p != nil {
		obs.Position = p.position
		obs.Theta = p.theta
	}
	if c := f.conf.Load(); c != nil {
		obs.Confidence = c.confidence
		obs.Detected = c.detected
	}
	return obs
}

// remapCameraPose converts camera axes into the robot planar frame.
// Forward is the negated camera depth, lateral is camera x plus offset and the
// heading flips sign with the frame handedness.
func remapCameraPose(raw CameraPose, offset float64) (targetPose, error) {
	if !finite(raw.Position.X, raw.Position.Y, raw.Position.Z) {
		return targetPose{}, errors.Wrap(ErrMalformedPose, "non-finite position")
	}
	if err := raw.Orientation.Validate(); err != nil {
		return targetPose{}, err
	}
	return targetPose{
		position: r3.Vector{
			X: -raw.Position.Z,
			Y: raw.Position.X + offset,
			Z: raw.Position.Y,
		},
		theta: -Pitch(raw.Orientation),
	}, nil
}
