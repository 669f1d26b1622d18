package pbvs

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSequencer(t *testing.T) (*ArmSequencer, *ArmCommandGate, *TargetFusion, *recordingDispatcher) {
	t.Helper()
	cfg := DefaultConfig()
	gate, d := newTestGate(t)
	fusion := NewTargetFusion(0, nil, nil)
	return NewArmSequencer(cfg.Claw, cfg.Topics.ConfidenceMinimum, gate, fusion, nil), gate, fusion, d
}

func TestArmSequencerWaitsForFeedback(t *testing.T) {
	seq, _, _, d := newTestSequencer(t)
	ctx := context.Background()

	assert.False(t, seq.ExtendClaw(ctx, 78))
	assert.False(t, seq.SetClaw(ctx, true))
	assert.False(t, seq.LiftArm(ctx, 120))
	assert.False(t, seq.RetractArm(ctx, 10))
	assert.Empty(t, d.sent())
}

func TestArmSequencerExtendClaw(t *testing.T) {
	seq, gate, _, d := newTestSequencer(t)
	ctx := context.Background()
	gate.Observe(ArmState{Height: 40, Length: 100})

	assert.False(t, seq.ExtendClaw(ctx, 78))
	gate.Observe(ArmState{Height: 40, Length: 140})
	assert.False(t, seq.ExtendClaw(ctx, 78))

	sent := d.sent()
	require.Len(t, sent, 1, "repeated extend must be suppressed")
	assert.Equal(t, 178.0, sent[0].State.Length)
	assert.Equal(t, 40.0, sent[0].State.Height)
	assert.Equal(t, ArmModeExtend, sent[0].State.Mode)

	gate.Observe(ArmState{Height: 40, Length: 177.5})
	assert.True(t, seq.ExtendClaw(ctx, 78))
}

func TestArmSequencerExtendClampsToMaxLength(t *testing.T) {
	seq, gate, _, d := newTestSequencer(t)
	gate.Observe(ArmState{Length: 400})

	assert.False(t, seq.ExtendClaw(context.Background(), 78))
	require.Len(t, d.sent(), 1)
	assert.Equal(t, 440.0, d.sent()[0].State.Length)
}

func TestArmSequencerClawLiftRetract(t *testing.T) {
	seq, gate, _, d := newTestSequencer(t)
	ctx := context.Background()
	gate.Observe(ArmState{Height: 40, Length: 178})

	assert.False(t, seq.SetClaw(ctx, true))
	gate.Observe(ArmState{Height: 40, Length: 178, ClawClosed: true})
	assert.True(t, seq.SetClaw(ctx, true))

	assert.False(t, seq.LiftArm(ctx, 120))
	gate.Observe(ArmState{Height: 120, Length: 178, ClawClosed: true})
	assert.True(t, seq.LiftArm(ctx, 120))

	assert.False(t, seq.RetractArm(ctx, 10))
	gate.Observe(ArmState{Height: 120, Length: 10.4, ClawClosed: true})
	assert.True(t, seq.RetractArm(ctx, 10))

	sent := d.sent()
	require.Len(t, sent, 3)
	assert.True(t, sent[0].State.ClawClosed)
	assert.Equal(t, 120.0, sent[1].State.Height)
	assert.Equal(t, ArmModeRetract, sent[2].State.Mode)
	assert.Equal(t, 10.0, sent[2].State.Length)
	assert.True(t, sent[2].State.ClawClosed)
}

func TestArmSequencerAlignClawZX(t *testing.T) {
	seq, gate, fusion, d := newTestSequencer(t)
	ctx := context.Background()
	gate.Observe(ArmState{Height: 100, Length: 50})

	// Target below the z band and too far: first height, then length.
	fusion.UpdatePose(CameraPose{Position: r3.Vector{Y: 0.01, Z: 0.2}, Orientation: Quaternion{W: 1}})
	assert.False(t, seq.AlignClawZX(ctx), "no detection yet")
	assert.Empty(t, d.sent())

	fusion.UpdateConfidence(0.3, true)
	assert.False(t, seq.AlignClawZX(ctx), "confidence below minimum")
	assert.Empty(t, d.sent())

	fusion.UpdateConfidence(0.9, true)
	assert.False(t, seq.AlignClawZX(ctx))
	require.Len(t, d.sent(), 1)
	assert.Equal(t, 110.0, d.sent()[0].State.Height)

	// Arm still moving: no new step.
	assert.False(t, seq.AlignClawZX(ctx))
	assert.Len(t, d.sent(), 1)

	gate.Observe(ArmState{Height: 110, Length: 50})
	fusion.UpdatePose(CameraPose{Position: r3.Vector{Y: 0.025, Z: 0.2}, Orientation: Quaternion{W: 1}})
	assert.False(t, seq.AlignClawZX(ctx))
	require.Len(t, d.sent(), 2)
	assert.Equal(t, 60.0, d.sent()[1].State.Length)
	assert.Equal(t, ArmModeExtend, d.sent()[1].State.Mode)

	gate.Observe(ArmState{Height: 110, Length: 60})
	fusion.UpdatePose(CameraPose{Position: r3.Vector{Y: 0.025, Z: 0.1}, Orientation: Quaternion{W: 1}})
	assert.False(t, seq.AlignClawZX(ctx))
	require.Len(t, d.sent(), 3)
	assert.Equal(t, 50.0, d.sent()[2].State.Length)
	assert.Equal(t, ArmModeRetract, d.sent()[2].State.Mode)

	gate.Observe(ArmState{Height: 110, Length: 50})
	fusion.UpdatePose(CameraPose{Position: r3.Vector{Y: 0.025, Z: 0.13}, Orientation: Quaternion{W: 1}})
	assert.True(t, seq.AlignClawZX(ctx))
	assert.Len(t, d.sent(), 3)
}

func TestArmSequencerAlignClawAtBoundCountsAsAligned(t *testing.T) {
	seq, gate, fusion, d := newTestSequencer(t)
	gate.Observe(ArmState{Height: 280, Length: 440})
	fusion.UpdateConfidence(0.9, true)
	fusion.UpdatePose(CameraPose{Position: r3.Vector{Y: 0.0, Z: 0.5}, Orientation: Quaternion{W: 1}})

	assert.True(t, seq.AlignClawZX(context.Background()))
	assert.Empty(t, d.sent())
}
