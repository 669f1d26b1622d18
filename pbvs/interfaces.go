package pbvs

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// PlanarPose is the platform pose produced by the StateEstimator.
//
// Theta is the unwrapped heading in radians and may leave [0, 2π).
type PlanarPose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// TargetObservation is the fused target estimate in the robot frame.
//
// Conventions:
//   - Position.X is forward distance (negated camera depth).
//   - Position.Y is lateral offset including the configured camera offset.
//   - Position.Z is the camera vertical axis, kept for claw alignment.
type TargetObservation struct {
	Position   r3.Vector `json:"position"`
	Theta      float64   `json:"theta"`
	Confidence float64   `json:"confidence"`
	Detected   bool      `json:"detected"`
}

// ArmMode is the motion mode carried by every arm command.
type ArmMode int

const (
	ArmModeUnset   ArmMode = -1
	ArmModeExtend  ArmMode = 0
	ArmModeRetract ArmMode = 1
	ArmModeIdle    ArmMode = 2
)

func (m ArmMode) String() string {
	switch m {
	case ArmModeUnset:
		return "UNSET"
	case ArmModeExtend:
		return "EXTEND"
	case ArmModeRetract:
		return "RETRACT"
	case ArmModeIdle:
		return "IDLE"
	default:
		return fmt.Sprintf("ArmMode(%d)", int(m))
	}
}

// ArmState is a claw arm configuration, either observed or commanded.
type ArmState struct {
	Height     float64 `json:"height"`
	Length     float64 `json:"length"`
	ClawClosed bool    `json:"claw_closed"`
	Mode       ArmMode `json:"mode"`
}

// unsetArmState is the lastIssued sentinel before any command was sent.
var unsetArmState = ArmState{Height: -1, Length: -1, Mode: ArmModeUnset}

// ArmCommand is the validated command sent on the arm control channel.
type ArmCommand struct {
	ArmID       int
	State       ArmState
	EnableMotor bool
}

// DockingPhase is one step of the fruit docking sequence.
type DockingPhase int

const (
	PhaseInitialMarker DockingPhase = iota + 1
	PhaseMoveNearby
	PhaseParking
	PhaseDecide
	PhaseClawAlignZX
	PhaseExtendClaw
	PhaseCloseClaw
	PhaseLiftArm
	PhaseRetractArm
	PhaseStop
	PhaseError
)

func (p DockingPhase) String() string {
	switch p {
	case PhaseInitialMarker:
		return "INITIAL_MARKER"
	case PhaseMoveNearby:
		return "MOVE_NEARBY"
	case PhaseParking:
		return "PARKING"
	case PhaseDecide:
		return "DECIDE"
	case PhaseClawAlignZX:
		return "CLAW_ALIGN_ZX"
	case PhaseExtendClaw:
		return "EXTEND_CLAW"
	case PhaseCloseClaw:
		return "CLOSE_CLAW"
	case PhaseLiftArm:
		return "LIFT_ARM"
	case PhaseRetractArm:
		return "RETRACT_ARM"
	case PhaseStop:
		return "STOP"
	case PhaseError:
		return "ERROR"
	default:
		return fmt.Sprintf("DockingPhase(%d)", int(p))
	}
}

// MotionPhase is one step of the odom_front and odom_turn sequences.
type MotionPhase int

const (
	MotionMove MotionPhase = iota + 1
	MotionTurn
	MotionStop
	MotionError
)

func (p MotionPhase) String() string {
	switch p {
	case MotionMove:
		return "FRONT"
	case MotionTurn:
		return "TURN"
	case MotionStop:
		return "STOP"
	case MotionError:
		return "ERROR"
	default:
		return fmt.Sprintf("MotionPhase(%d)", int(p))
	}
}

// Decision is the tri-state answer of a motion primitive.
type Decision int

const (
	// DecisionPending means the phase is not done yet; poll again.
	DecisionPending Decision = iota
	// DecisionAdvance means the phase completed.
	DecisionAdvance
	// DecisionRetry asks the sequence to fall back to an earlier phase.
	DecisionRetry
)

func (d Decision) String() string {
	switch d {
	case DecisionPending:
		return "pending"
	case DecisionAdvance:
		return "advance"
	case DecisionRetry:
		return "retry"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// decisionOf maps a boolean phase completion onto a Decision.
func decisionOf(done bool) Decision {
	if done {
		return DecisionAdvance
	}
	return DecisionPending
}
