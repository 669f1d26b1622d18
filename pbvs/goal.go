package pbvs

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Goal command names accepted by GoalService.
const (
	CommandFruitDocking = "fruit_docking"
	CommandOdomFront    = "odom_front"
	CommandOdomTurn     = "odom_turn"
)

var (
	// ErrUnknownCommand rejects a goal whose command has no routine.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrGoalPreempted is reported for a goal replaced before it started.
	ErrGoalPreempted = errors.New("goal preempted")
)

var goalRoutines = map[string]func(*Orchestrator, context.Context, float64) error{
	CommandFruitDocking: (*Orchestrator).FruitDocking,
	CommandOdomFront:    (*Orchestrator).OdomFront,
	CommandOdomTurn:     (*Orchestrator).OdomTurn,
}

// GoalStatus is the final state of a goal.
type GoalStatus int

const (
	GoalSucceeded GoalStatus = iota + 1
	GoalFailed
	GoalCanceled
)

func (s GoalStatus) String() string {
	switch s {
	case GoalSucceeded:
		return "succeeded"
	case GoalFailed:
		return "failed"
	case GoalCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("GoalStatus(%d)", int(s))
	}
}

// MarshalText encodes the status by name.
func (s GoalStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *GoalStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "succeeded":
		*s = GoalSucceeded
	case "failed":
		*s = GoalFailed
	case "canceled":
		*s = GoalCanceled
	default:
		return errors.Errorf("unknown goal status %q", string(b))
	}
	return nil
}

// GoalRequest names the routine to run and its numeric parameter
// (a distance for odom_front, an angle for odom_turn, the layer for docking).
type GoalRequest struct {
	Command   string  `json:"command"`
	LayerDist float64 `json:"layer_dist"`
}

// GoalResult reports how a goal ended.
type GoalResult struct {
	ID      uuid.UUID  `json:"id"`
	Command string     `json:"command"`
	Status  GoalStatus `json:"status"`
	Reason  string     `json:"reason,omitempty"`
}

// GoalService runs one goal at a time. A new goal preempts the active one.
type GoalService struct {
	cfg         AppConfig
	newExecutor func() MotionExecutor
	detect      DetectionSignal
	logger      *zap.Logger
	metrics     *Metrics

	mu     sync.Mutex
	latest uint64
	cancel context.CancelFunc

	running sync.Mutex
}

// NewGoalService builds a service. newExecutor is called once per accepted goal.
func NewGoalService(cfg AppConfig, newExecutor func() MotionExecutor, detect DetectionSignal, logger *zap.Logger, metrics *Metrics) *GoalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoalService{
		cfg:         cfg,
		newExecutor: newExecutor,
		detect:      detect,
		logger:      logger.Named("goal"),
		metrics:     metrics,
	}
}

// Execute runs req to completion and reports the outcome. Unknown commands
// fail immediately without touching any state machine.
func (s *GoalService) Execute(ctx context.Context, req GoalRequest) GoalResult {
	result := GoalResult{ID: uuid.New(), Command: req.Command}
	logger := s.logger.With(
		zap.Stringer("goal_id", result.ID),
		zap.String("command", req.Command),
		zap.Float64("layer_dist", req.LayerDist),
	)
	logger.Info("goal received")

	routine, ok := goalRoutines[req.Command]
	if !ok {
		logger.Warn("unknown command")
		return s.finish(logger, result, GoalFailed, ErrUnknownCommand)
	}

	s.mu.Lock()
	s.latest++
	ticket := s.latest
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.running.Lock()
	defer s.running.Unlock()

	s.mu.Lock()
	if ticket != s.latest {
		s.mu.Unlock()
		return s.finish(logger, result, GoalCanceled, ErrGoalPreempted)
	}
	goalCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		if ticket == s.latest {
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	orch := NewOrchestrator(s.cfg, s.newExecutor(), s.detect, logger, s.metrics)
	err := routine(orch, goalCtx, req.LayerDist)
	switch {
	case err == nil:
		return s.finish(logger, result, GoalSucceeded, nil)
	case errors.Is(err, ErrGoalCanceled):
		return s.finish(logger, result, GoalCanceled, err)
	default:
		return s.finish(logger, result, GoalFailed, err)
	}
}

// Cancel stops the active goal at its next tick.
func (s *GoalService) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *GoalService) finish(logger *zap.Logger, result GoalResult, status GoalStatus, err error) GoalResult {
	result.Status = status
	if err != nil {
		result.Reason = err.Error()
	}
	label := result.Command
	if _, ok := goalRoutines[label]; !ok {
		label = "unknown"
	}
	s.metrics.goal(label, status)
	if status == GoalSucceeded {
		logger.Info("goal succeeded")
	} else {
		logger.Warn("goal ended", zap.Stringer("status", status), zap.Error(err))
	}
	return result
}
