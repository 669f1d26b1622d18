package pbvs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrArmUnobserved is returned when a command is submitted before any arm feedback arrived.
var ErrArmUnobserved = errors.New("arm state not observed yet")

// SubmitResult is the outcome of ArmCommandGate.Submit.
type SubmitResult int

const (
	SubmitSent SubmitResult = iota + 1
	SubmitSuppressed
	SubmitRejected
)

func (r SubmitResult) String() string {
	switch r {
	case SubmitSent:
		return "sent"
	case SubmitSuppressed:
		return "suppressed"
	case SubmitRejected:
		return "rejected"
	default:
		return fmt.Sprintf("SubmitResult(%d)", int(r))
	}
}

// ArmDispatcher delivers a validated command to the arm.
type ArmDispatcher interface {
	DispatchArmCommand(ctx context.Context, cmd ArmCommand) error
}

// ArmCommandGate filters every outgoing arm command.
//
// Checks run in strict priority order: unobserved arm, retract that would not
// shrink the observed length, extend that regresses below the last command,
// then duplicate suppression. Safety checks always win over redundancy.
type ArmCommandGate struct {
	armID      int
	dispatcher ArmDispatcher
	logger     *zap.Logger
	metrics    *Metrics

	observed atomic.Pointer[ArmState]

	mu         sync.Mutex
	lastIssued ArmState
}

// NewArmCommandGate constructs a gate that sends through dispatcher.
func NewArmCommandGate(armID int, dispatcher ArmDispatcher, logger *zap.Logger, metrics *Metrics) *ArmCommandGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArmCommandGate{
		armID:      armID,
		dispatcher: dispatcher,
		logger:     logger.Named("arm_gate"),
		metrics:    metrics,
		lastIssued: unsetArmState,
	}
}

// Observe replaces the mirrored physical arm state.
func (g *ArmCommandGate) Observe(state ArmState) {
	g.observed.Store(&state)
}

// Observed returns the mirrored arm state and whether feedback was ever received.
func (g *ArmCommandGate) Observed() (ArmState, bool) {
	s := g.observed.Load()
	if s == nil {
		return ArmState{}, false
	}
	return *s, true
}

// LastIssued returns the last command actually sent, or the unset sentinel.
func (g *ArmCommandGate) LastIssued() ArmState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastIssued
}

// Submit validates candidate with the given mode and dispatches it when allowed.
//
// A rejected or suppressed command never reaches the dispatcher. A dispatch
// failure leaves lastIssued unchanged and reports SubmitRejected with the error.
func (g *ArmCommandGate) Submit(ctx context.Context, candidate ArmState, mode ArmMode) (SubmitResult, error) {
	candidate.Mode = mode

	g.mu.Lock()
	defer g.mu.Unlock()

	result, reason := g.check(ctx, candidate)
	switch result {
	case SubmitRejected:
		g.logger.Warn("arm command rejected",
			zap.String("reason", reason),
			zap.Float64("height", candidate.Height),
			zap.Float64("length", candidate.Length),
			zap.Bool("claw_closed", candidate.ClawClosed),
			zap.Stringer("mode", mode),
		)
		g.metrics.armSubmit(result)
		if reason == reasonUnobserved {
			return result, ErrArmUnobserved
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		return result, nil
	case SubmitSuppressed:
		g.logger.Debug("arm command unchanged, not resent")
		g.metrics.armSubmit(result)
		return result, nil
	}

	previous := g.lastIssued
	g.lastIssued = candidate
	cmd := ArmCommand{ArmID: g.armID, State: candidate, EnableMotor: true}
	if err := g.dispatcher.DispatchArmCommand(ctx, cmd); err != nil {
		g.lastIssued = previous
		g.metrics.armSubmit(SubmitRejected)
		return SubmitRejected, errors.Wrap(err, "dispatch arm command")
	}

	g.logger.Info("arm command sent",
		zap.Float64("height", candidate.Height),
		zap.Float64("length", candidate.Length),
		zap.Bool("claw_closed", candidate.ClawClosed),
		zap.Stringer("mode", mode),
	)
	g.metrics.armSubmit(SubmitSent)
	return SubmitSent, nil
}

const (
	reasonCanceled        = "goal canceled"
	reasonUnobserved      = "arm state not observed"
	reasonRetractGrows    = "retract does not shrink observed length"
	reasonExtendRegresses = "extend is shorter than last command"
)

// check returns SubmitSent when candidate may be dispatched. Caller holds mu.
func (g *ArmCommandGate) check(ctx context.Context, candidate ArmState) (SubmitResult, string) {
	if ctx.Err() != nil {
		return SubmitRejected, reasonCanceled
	}
	observed, ok := g.Observed()
	if !ok {
		return SubmitRejected, reasonUnobserved
	}
	if candidate.Mode == ArmModeRetract && candidate.Length >= observed.Length {
		return SubmitRejected, reasonRetractGrows
	}
	if candidate.Mode == ArmModeExtend && candidate.Length < g.lastIssued.Length {
		return SubmitRejected, reasonExtendRegresses
	}
	if candidate == g.lastIssued {
		return SubmitSuppressed, ""
	}
	return SubmitSent, ""
}
