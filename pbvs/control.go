package pbvs

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RetryCeiling is how many idle or unhandled ticks a sequence tolerates
// before it gives control back.
const RetryCeiling = 15

var (
	// ErrRetryExhausted ends a goal stuck on a phase without a handler.
	ErrRetryExhausted = errors.New("retry budget exhausted")
	// ErrGoalCanceled ends a goal canceled between two ticks.
	ErrGoalCanceled = errors.New("goal canceled")
)

// RetryBudget counts idle ticks and resets on every phase transition.
type RetryBudget struct {
	ceiling int
	spent   int
}

// NewRetryBudget returns a budget that allows ceiling+1 spends.
func NewRetryBudget(ceiling int) *RetryBudget {
	return &RetryBudget{ceiling: ceiling}
}

// Spend consumes one tick. It returns false once more than ceiling ticks
// were spent.
func (b *RetryBudget) Spend() bool {
	if b.spent > b.ceiling {
		return false
	}
	b.spent++
	return true
}

// Reset refills the budget.
func (b *RetryBudget) Reset() { b.spent = 0 }

// Spent returns the ticks consumed since the last reset.
func (b *RetryBudget) Spent() int { return b.spent }

type phaseKey interface {
	comparable
	fmt.Stringer
}

type detectionMode int

const (
	detectionKeep detectionMode = iota
	detectionOn
	detectionOff
)

// phaseStep is one row of a sequence's transition table.
type phaseStep[P phaseKey] struct {
	run     func(ctx context.Context) Decision
	advance P
	// retreat is taken on DecisionRetry when hasRetreat is set.
	retreat    P
	hasRetreat bool
	// terminal steps end the sequence once they advance.
	terminal bool
	// idle steps do nothing but spend the budget; exhaustion completes the sequence.
	idle      bool
	detection detectionMode
}

// sequence is a polled state machine. Phases missing from steps are
// unhandled: they disable detection and spend the budget until it runs out.
type sequence[P phaseKey] struct {
	name      string
	start     P
	steps     map[P]phaseStep[P]
	everyTick detectionMode
}

// next returns the phase following current after decision d.
func (s sequence[P]) next(current P, d Decision) P {
	step, ok := s.steps[current]
	if !ok {
		return current
	}
	switch d {
	case DecisionAdvance:
		return step.advance
	case DecisionRetry:
		if step.hasRetreat {
			return step.retreat
		}
	}
	return current
}

// Orchestrator drives the docking, front and turn sequences for one goal.
type Orchestrator struct {
	cfg     AppConfig
	exec    MotionExecutor
	detect  DetectionSignal
	logger  *zap.Logger
	metrics *Metrics
}

// NewOrchestrator constructs an orchestrator delegating motion to exec.
func NewOrchestrator(cfg AppConfig, exec MotionExecutor, detect DetectionSignal, logger *zap.Logger, metrics *Metrics) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:     cfg,
		exec:    exec,
		detect:  detect,
		logger:  logger.Named("orchestrator"),
		metrics: metrics,
	}
}

// FruitDocking parks in front of the target, grabs it and retracts the arm.
func (o *Orchestrator) FruitDocking(ctx context.Context, layer float64) error {
	return runSequence(ctx, o, o.dockingSequence(layer), layer)
}

// OdomFront drives straight by -layer meters without visual feedback.
func (o *Orchestrator) OdomFront(ctx context.Context, layer float64) error {
	return runSequence(ctx, o, o.frontSequence(layer), layer)
}

// OdomTurn turns in place by layer radians without visual feedback.
func (o *Orchestrator) OdomTurn(ctx context.Context, layer float64) error {
	return runSequence(ctx, o, o.turnSequence(layer), layer)
}

func (o *Orchestrator) dockingSequence(layer float64) sequence[DockingPhase] {
	cam := o.cfg.Camera
	claw := o.cfg.Claw
	return sequence[DockingPhase]{
		name:  "fruit_docking",
		start: PhaseInitialMarker,
		steps: map[DockingPhase]phaseStep[DockingPhase]{
			PhaseInitialMarker: {
				detection: detectionOn,
				advance:   PhaseMoveNearby,
				run: func(ctx context.Context) Decision {
					return decisionOf(o.exec.MarkerDistanceValid(ctx))
				},
			},
			PhaseMoveNearby: {
				advance: PhaseParking,
				run: func(ctx context.Context) Decision {
					return decisionOf(o.exec.ApproachTarget(ctx, cam.DesiredDistThreshold))
				},
			},
			PhaseParking: {
				advance: PhaseDecide,
				run: func(ctx context.Context) Decision {
					return decisionOf(o.exec.AlignHeading(ctx, cam.HorizonAlignmentThreshold, cam.ParkingTolerance))
				},
			},
			PhaseDecide: {
				advance:    PhaseClawAlignZX,
				retreat:    PhaseMoveNearby,
				hasRetreat: true,
				run: func(ctx context.Context) Decision {
					return o.exec.Decide(ctx, cam.DesiredDistThreshold, cam.HorizonAlignmentThreshold)
				},
			},
			PhaseClawAlignZX: {
				advance: PhaseExtendClaw,
				run: func(ctx context.Context) Decision {
					return decisionOf(o.exec.AlignClawZX(ctx))
				},
			},
			PhaseExtendClaw: {
				advance: PhaseCloseClaw,
				run: func(ctx context.Context) Decision {
					return decisionOf(o.exec.ExtendClaw(ctx, claw.BlindExtendLength))
				},
			},
			PhaseCloseClaw: {
				advance: PhaseLiftArm,
				run: func(ctx context.Context) Decision {
					return decisionOf(o.exec.SetClaw(ctx, true))
				},
			},
			PhaseLiftArm: {
				advance: PhaseRetractArm,
				run: func(ctx context.Context) Decision {
					return decisionOf(o.exec.LiftArm(ctx, claw.LiftHeight))
				},
			},
			// RetractArm loops onto itself and hands control back once done.
			PhaseRetractArm: {
				advance:  PhaseRetractArm,
				terminal: true,
				run: func(ctx context.Context) Decision {
					return decisionOf(o.exec.RetractArm(ctx, claw.RetractLength))
				},
			},
		},
	}
}

func (o *Orchestrator) frontSequence(layer float64) sequence[MotionPhase] {
	return sequence[MotionPhase]{
		name:      "odom_front",
		start:     MotionMove,
		everyTick: detectionOff,
		steps: map[MotionPhase]phaseStep[MotionPhase]{
			MotionMove: {
				advance: MotionStop,
				run: func(ctx context.Context) Decision {
					return decisionOf(o.exec.DriveDistance(ctx, -layer))
				},
			},
			MotionStop: {idle: true},
		},
	}
}

func (o *Orchestrator) turnSequence(layer float64) sequence[MotionPhase] {
	return sequence[MotionPhase]{
		name:      "odom_turn",
		start:     MotionTurn,
		everyTick: detectionOff,
		steps: map[MotionPhase]phaseStep[MotionPhase]{
			MotionTurn: {
				advance: MotionStop,
				run: func(ctx context.Context) Decision {
					return decisionOf(o.exec.TurnAngle(ctx, layer))
				},
			},
			MotionStop: {idle: true},
		},
	}
}

// runSequence polls seq at the configured rate until it finishes, runs out
// of budget or ctx is done. Detection is always disabled on the way out.
func runSequence[P phaseKey](ctx context.Context, o *Orchestrator, seq sequence[P], layer float64) error {
	logger := o.logger.With(zap.String("sequence", seq.name), zap.Float64("layer", layer))
	defer o.setDetectionDetached(layer)

	limiter := rate.NewLimiter(rate.Limit(o.cfg.Hz), 1)
	budget := NewRetryBudget(RetryCeiling)
	current := seq.start
	// Phase enums start at 1, so the zero value never matches a real phase.
	var previous P

	for {
		if err := limiter.Wait(ctx); err != nil {
			logger.Warn("sequence canceled", zap.Stringer("phase", current), zap.Error(err))
			return errors.Wrapf(ErrGoalCanceled, "%s at %s", seq.name, current)
		}

		if current != previous {
			logger.Info("phase transition", zap.Stringer("from", previous), zap.Stringer("to", current))
			o.metrics.transition(seq.name, current.String())
			previous = current
		}

		step, ok := seq.steps[current]
		if !ok {
			if budget.Spent() == 0 {
				logger.Error("phase has no handler", zap.Stringer("phase", current))
			}
			o.setDetection(ctx, false, layer)
			if !budget.Spend() {
				return errors.Wrapf(ErrRetryExhausted, "%s stuck at %s", seq.name, current)
			}
			continue
		}

		if seq.everyTick != detectionKeep {
			o.setDetection(ctx, seq.everyTick == detectionOn, layer)
		}
		if step.detection != detectionKeep {
			o.setDetection(ctx, step.detection == detectionOn, layer)
		}

		if step.idle {
			if !budget.Spend() {
				logger.Info("sequence finished", zap.Stringer("phase", current))
				return nil
			}
			continue
		}

		d := step.run(ctx)
		if d == DecisionAdvance && step.terminal {
			logger.Info("sequence finished", zap.Stringer("phase", current))
			return nil
		}
		if next := seq.next(current, d); next != current {
			budget.Reset()
			current = next
		}
	}
}

func (o *Orchestrator) setDetection(ctx context.Context, allowed bool, layer float64) {
	if o.detect == nil {
		return
	}
	if err := o.detect.SetDetection(ctx, allowed, layer); err != nil {
		o.logger.Warn("set detection failed", zap.Bool("allowed", allowed), zap.Error(err))
	}
}

// setDetectionDetached disables detection even when the goal context is done.
func (o *Orchestrator) setDetectionDetached(layer float64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	o.setDetection(ctx, false, layer)
}
