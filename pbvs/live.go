package pbvs

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type vector2Message struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type vector3Message struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type odometryMessage struct {
	Orientation Quaternion     `json:"orientation"`
	Position    vector2Message `json:"position"`
}

type targetPoseMessage struct {
	Position    vector3Message `json:"position"`
	Orientation Quaternion     `json:"orientation"`
}

type confidenceMessage struct {
	ObjectConfidence float64 `json:"object_confidence"`
	ModelDetection   bool    `json:"model_detection"`
}

type armStatusMessage struct {
	Height1 float64 `json:"height1"`
	Length1 float64 `json:"length1"`
	Claw1   bool    `json:"claw1"`
	Mode    int     `json:"mode"`
}

// Ingestor turns stream payloads into estimator, fusion and gate updates.
// Each handler does a bounded parse and a single value replacement; bad
// payloads are counted and dropped.
type Ingestor struct {
	estimator *StateEstimator
	fusion    *TargetFusion
	gate      *ArmCommandGate
	logger    *zap.Logger
	metrics   *Metrics
}

// NewIngestor wires the input handlers to their owners.
func NewIngestor(estimator *StateEstimator, fusion *TargetFusion, gate *ArmCommandGate, logger *zap.Logger, metrics *Metrics) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		estimator: estimator,
		fusion:    fusion,
		gate:      gate,
		logger:    logger.Named("ingest"),
		metrics:   metrics,
	}
}

// HandleOdometry updates the StateEstimator.
func (in *Ingestor) HandleOdometry(data []byte) {
	var msg odometryMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		in.drop(streamOdometry, err)
		return
	}
	if err := msg.Orientation.Validate(); err != nil {
		in.drop(streamOdometry, err)
		return
	}
	pose := in.estimator.Update(msg.Orientation, r2.Point{X: msg.Position.X, Y: msg.Position.Y})
	in.metrics.sample(streamOdometry)
	in.metrics.heading(pose.Theta)
}

// HandleTargetPose updates the fusion buffer pose.
func (in *Ingestor) HandleTargetPose(data []byte) {
	var msg targetPoseMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		in.drop(streamTargetPose, err)
		return
	}
	in.fusion.UpdatePose(CameraPose{
		Position:    r3.Vector{X: msg.Position.X, Y: msg.Position.Y, Z: msg.Position.Z},
		Orientation: msg.Orientation,
	})
	in.metrics.sample(streamTargetPose)
}

// HandleConfidence updates the fusion buffer confidence.
func (in *Ingestor) HandleConfidence(data []byte) {
	var msg confidenceMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		in.drop(streamTargetConfidence, err)
		return
	}
	in.fusion.UpdateConfidence(msg.ObjectConfidence, msg.ModelDetection)
	in.metrics.sample(streamTargetConfidence)
}

// HandleArmStatus mirrors the physical arm state into the gate.
func (in *Ingestor) HandleArmStatus(data []byte) {
	var msg armStatusMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		in.drop(streamArmStatus, err)
		return
	}
	if !finite(msg.Height1, msg.Length1) {
		in.drop(streamArmStatus, errors.New("non-finite arm status"))
		return
	}
	in.gate.Observe(ArmState{
		Height:     msg.Height1,
		Length:     msg.Length1,
		ClawClosed: msg.Claw1,
		Mode:       ArmMode(msg.Mode),
	})
	in.metrics.sample(streamArmStatus)
}

func (in *Ingestor) drop(stream string, err error) {
	in.logger.Debug("dropping sample", zap.String("stream", stream), zap.Error(err))
	in.metrics.dropped(stream)
}

// Subscribe attaches every handler to its subject. Each subscription gets
// its own delivery goroutine, so every stream has exactly one writer.
func (in *Ingestor) Subscribe(nc *nats.Conn, topics TopicsConfig) ([]*nats.Subscription, error) {
	routes := []struct {
		subject string
		handle  func([]byte)
	}{
		{topics.Odom, in.HandleOdometry},
		{topics.PoseSubject(), in.HandleTargetPose},
		{topics.ConfidenceSubject(), in.HandleConfidence},
		{topics.ArmStatusTopic, in.HandleArmStatus},
	}

	subs := make([]*nats.Subscription, 0, len(routes))
	for _, r := range routes {
		handle := r.handle
		sub, err := nc.Subscribe(r.subject, func(m *nats.Msg) { handle(m.Data) })
		if err != nil {
			unsubscribeAll(subs)
			return nil, errors.Wrapf(err, "subscribe %s", r.subject)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func unsubscribeAll(subs []*nats.Subscription) {
	for _, s := range subs {
		_ = s.Unsubscribe()
	}
}

// serveGoals answers goal requests on cfg.Subject and cancellations on
// cfg.CancelSubject until ctx is done. Requests run on their own goroutine
// so a later goal can preempt an earlier one.
func serveGoals(ctx context.Context, nc *nats.Conn, cfg GoalConfig, goals *GoalService, logger *zap.Logger) error {
	var inflight sync.WaitGroup

	goalSub, err := nc.Subscribe(cfg.Subject, func(m *nats.Msg) {
		var req GoalRequest
		if err := json.Unmarshal(m.Data, &req); err != nil {
			logger.Warn("malformed goal request", zap.Error(err))
			respondGoal(m, GoalResult{Status: GoalFailed, Reason: "malformed request"}, logger)
			return
		}
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			respondGoal(m, goals.Execute(ctx, req), logger)
		}()
	})
	if err != nil {
		return errors.Wrapf(err, "subscribe %s", cfg.Subject)
	}
	cancelSub, err := nc.Subscribe(cfg.CancelSubject(), func(*nats.Msg) {
		logger.Info("goal cancel requested")
		goals.Cancel()
	})
	if err != nil {
		_ = goalSub.Unsubscribe()
		return errors.Wrapf(err, "subscribe %s", cfg.CancelSubject())
	}

	<-ctx.Done()
	unsubscribeAll([]*nats.Subscription{goalSub, cancelSub})
	goals.Cancel()
	inflight.Wait()
	return nil
}

func respondGoal(m *nats.Msg, result GoalResult, logger *zap.Logger) {
	if m.Reply == "" {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		logger.Error("encode goal result", zap.Error(err))
		return
	}
	if err := m.Respond(data); err != nil {
		logger.Warn("respond goal result", zap.Error(err))
	}
}

// Run connects to NATS, wires every component and serves goals until ctx is done.
func Run(ctx context.Context, cfg AppConfig, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := NewMetrics(reg)

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name("pbvs"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
	)
	if err != nil {
		return errors.Wrapf(err, "connect to NATS at %s", cfg.NATS.URL)
	}
	defer nc.Close()
	logger.Info("connected to NATS", zap.String("url", cfg.NATS.URL))

	pub := NewPublisher(nc, cfg.Topics)
	estimator := NewStateEstimator()
	fusion := NewTargetFusion(cfg.Camera.TagOffsetX, logger, metrics)
	gate := NewArmCommandGate(cfg.Topics.ArmID, pub, logger, metrics)

	ingest := NewIngestor(estimator, fusion, gate, logger, metrics)
	subs, err := ingest.Subscribe(nc, cfg.Topics)
	if err != nil {
		return err
	}
	defer unsubscribeAll(subs)

	base := NewRemoteBase(nc, cfg.Motion, logger)
	goals := NewGoalService(cfg, func() MotionExecutor {
		arm := NewArmSequencer(cfg.Claw, cfg.Topics.ConfidenceMinimum, gate, fusion, logger)
		return NewMotionExecutor(base, arm)
	}, pub, logger, metrics)

	if err := pub.SetDetection(ctx, false, 0); err != nil {
		logger.Warn("initial detection disable failed", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveGoals(gctx, nc, cfg.Goal, goals, logger)
	})
	if cfg.Status.Enabled {
		status := NewStatusServer(cfg.Status.Addr, reg, estimator, fusion, gate, logger)
		g.Go(func() error {
			return status.Run(gctx)
		})
	}

	logger.Info("pbvs server ready",
		zap.String("goal_subject", cfg.Goal.Subject),
		zap.String("pose_subject", cfg.Topics.PoseSubject()),
	)
	return g.Wait()
}
