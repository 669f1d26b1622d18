package pbvs

import "context"

// BaseMotion moves the platform. Every call blocks until the primitive has
// made its move for this tick and reports whether the phase is complete.
type BaseMotion interface {
	MarkerDistanceValid(ctx context.Context) bool
	ApproachTarget(ctx context.Context, distThreshold float64) bool
	AlignHeading(ctx context.Context, horizonThreshold, tolerance float64) bool
	// Decide re-checks both thresholds: advance, retry from MoveNearby, or pending.
	Decide(ctx context.Context, distThreshold, horizonThreshold float64) Decision
	DriveDistance(ctx context.Context, meters float64) bool
	TurnAngle(ctx context.Context, radians float64) bool
}

// ArmMotion moves the claw arm.
type ArmMotion interface {
	AlignClawZX(ctx context.Context) bool
	ExtendClaw(ctx context.Context, length float64) bool
	SetClaw(ctx context.Context, closed bool) bool
	LiftArm(ctx context.Context, height float64) bool
	RetractArm(ctx context.Context, length float64) bool
}

// MotionExecutor is the full set of primitives a sequence can delegate to.
type MotionExecutor interface {
	BaseMotion
	ArmMotion
}

// DetectionSignal tells the perception side whether to keep publishing target poses.
type DetectionSignal interface {
	SetDetection(ctx context.Context, allowed bool, layer float64) error
}

type motionExecutor struct {
	BaseMotion
	ArmMotion
}

// NewMotionExecutor combines a platform and an arm implementation.
func NewMotionExecutor(base BaseMotion, arm ArmMotion) MotionExecutor {
	return motionExecutor{BaseMotion: base, ArmMotion: arm}
}
