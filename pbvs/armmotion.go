package pbvs

import (
	"context"
	"math"

	"go.uber.org/zap"
)

// ArmSequencer implements ArmMotion on top of the ArmCommandGate.
//
// Every method is level-triggered: it submits the command for the desired
// arm state (the gate suppresses repeats) and reports completion once the
// observed arm state is within tolerance. One sequencer serves one goal.
type ArmSequencer struct {
	cfg           ClawConfig
	minConfidence float64
	gate          *ArmCommandGate
	target        *TargetFusion
	logger        *zap.Logger

	// extendTo latches the blind extension target on the first ExtendClaw call.
	extendTo *float64
}

// NewArmSequencer builds a sequencer for a single goal.
func NewArmSequencer(cfg ClawConfig, minConfidence float64, gate *ArmCommandGate, target *TargetFusion, logger *zap.Logger) *ArmSequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArmSequencer{
		cfg:           cfg,
		minConfidence: minConfidence,
		gate:          gate,
		target:        target,
		logger:        logger.Named("arm"),
	}
}

// AlignClawZX steps the claw height, then its length, until the target sits
// inside the configured z band and x window. A bound that cannot move
// further counts as aligned.
func (s *ArmSequencer) AlignClawZX(ctx context.Context) bool {
	obs := s.target.Snapshot()
	if !obs.Detected || obs.Confidence < s.minConfidence {
		return false
	}
	arm, ok := s.gate.Observed()
	if !ok || !s.settled(arm) {
		return false
	}

	cmd := s.commandBase(arm)
	switch {
	case obs.Position.Z < s.cfg.LowerZ:
		cmd.Height = clamp(cmd.Height+s.cfg.HeightIncrement, s.cfg.MinHeight, s.cfg.MaxHeight)
	case obs.Position.Z > s.cfg.UpperZ:
		cmd.Height = clamp(cmd.Height-s.cfg.HeightIncrement, s.cfg.MinHeight, s.cfg.MaxHeight)
	}
	if cmd.Height != arm.Height && !s.reached(cmd.Height, arm.Height) {
		s.submit(ctx, cmd, ArmModeExtend)
		return false
	}

	mode := ArmModeExtend
	switch {
	case obs.Position.X < s.cfg.TargetX-s.cfg.XTolerance:
		cmd.Length = clamp(cmd.Length+s.cfg.LengthIncrement, 0, s.cfg.MaxLength)
	case obs.Position.X > s.cfg.TargetX+s.cfg.XTolerance:
		cmd.Length = clamp(cmd.Length-s.cfg.LengthIncrement, 0, s.cfg.MaxLength)
		mode = ArmModeRetract
	}
	if cmd.Length != arm.Length && !s.reached(cmd.Length, arm.Length) {
		s.submit(ctx, cmd, mode)
		return false
	}

	s.logger.Info("claw aligned",
		zap.Float64("target_x", obs.Position.X),
		zap.Float64("target_z", obs.Position.Z),
		zap.Float64("height", arm.Height),
		zap.Float64("length", arm.Length),
	)
	return true
}

// ExtendClaw pushes the claw forward by length from where it was when the
// phase started.
func (s *ArmSequencer) ExtendClaw(ctx context.Context, length float64) bool {
	arm, ok := s.gate.Observed()
	if !ok {
		return false
	}
	if s.extendTo == nil {
		to := clamp(arm.Length+length, 0, s.cfg.MaxLength)
		s.extendTo = &to
	}

	cmd := s.commandBase(arm)
	cmd.Length = *s.extendTo
	s.submit(ctx, cmd, ArmModeExtend)

	if s.reached(arm.Length, *s.extendTo) {
		s.extendTo = nil
		return true
	}
	return false
}

// SetClaw opens or closes the claw.
func (s *ArmSequencer) SetClaw(ctx context.Context, closed bool) bool {
	arm, ok := s.gate.Observed()
	if !ok {
		return false
	}
	cmd := s.commandBase(arm)
	cmd.ClawClosed = closed
	s.submit(ctx, cmd, ArmModeExtend)
	return arm.ClawClosed == closed
}

// LiftArm raises or lowers the claw to an absolute height.
func (s *ArmSequencer) LiftArm(ctx context.Context, height float64) bool {
	arm, ok := s.gate.Observed()
	if !ok {
		return false
	}
	height = clamp(height, s.cfg.MinHeight, s.cfg.MaxHeight)
	cmd := s.commandBase(arm)
	cmd.Height = height
	s.submit(ctx, cmd, ArmModeExtend)
	return s.reached(arm.Height, height)
}

// RetractArm pulls the claw back to length.
func (s *ArmSequencer) RetractArm(ctx context.Context, length float64) bool {
	arm, ok := s.gate.Observed()
	if !ok {
		return false
	}
	if arm.Length <= length+s.cfg.Tolerance {
		return true
	}
	cmd := s.commandBase(arm)
	cmd.Length = length
	s.submit(ctx, cmd, ArmModeRetract)
	return false
}

// commandBase is the state new commands are derived from: the last command
// when one was sent, the observed arm otherwise.
func (s *ArmSequencer) commandBase(arm ArmState) ArmState {
	last := s.gate.LastIssued()
	if last.Mode == ArmModeUnset {
		return ArmState{Height: arm.Height, Length: arm.Length, ClawClosed: arm.ClawClosed}
	}
	return last
}

// settled reports whether the arm has caught up with the last command.
func (s *ArmSequencer) settled(arm ArmState) bool {
	last := s.gate.LastIssued()
	if last.Mode == ArmModeUnset {
		return true
	}
	return s.reached(arm.Height, last.Height) && s.reached(arm.Length, last.Length)
}

func (s *ArmSequencer) reached(actual, want float64) bool {
	return math.Abs(actual-want) <= s.cfg.Tolerance
}

func (s *ArmSequencer) submit(ctx context.Context, cmd ArmState, mode ArmMode) {
	if _, err := s.gate.Submit(ctx, cmd, mode); err != nil {
		s.logger.Debug("arm submit failed", zap.Error(err))
	}
}
