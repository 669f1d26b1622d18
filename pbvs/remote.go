package pbvs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Motion primitive names, appended to the configured subject prefix.
const (
	primitiveMarkerDistanceValid = "marker_distance_valid"
	primitiveApproachTarget      = "approach_target"
	primitiveAlignHeading        = "align_heading"
	primitiveDecide              = "decide"
	primitiveDriveDistance       = "drive_distance"
	primitiveTurnAngle           = "turn_angle"
)

type motionRequest struct {
	Primitive string             `json:"primitive"`
	Params    map[string]float64 `json:"params,omitempty"`
}

type motionReply struct {
	Result string `json:"result"`
}

// RemoteBase delegates platform primitives to an external executor over
// NATS request/reply. Each call blocks until the executor answers or the
// request times out; timeouts and bad replies read as pending.
type RemoteBase struct {
	nc      *nats.Conn
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRemoteBase constructs a RemoteBase on an established connection.
func NewRemoteBase(nc *nats.Conn, cfg MotionConfig, logger *zap.Logger) *RemoteBase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteBase{
		nc:      nc,
		prefix:  cfg.SubjectPrefix,
		timeout: cfg.RequestTimeout,
		logger:  logger.Named("motion"),
	}
}

func (b *RemoteBase) MarkerDistanceValid(ctx context.Context) bool {
	return b.call(ctx, primitiveMarkerDistanceValid, nil) == DecisionAdvance
}

func (b *RemoteBase) ApproachTarget(ctx context.Context, distThreshold float64) bool {
	return b.call(ctx, primitiveApproachTarget, map[string]float64{"dist_threshold": distThreshold}) == DecisionAdvance
}

func (b *RemoteBase) AlignHeading(ctx context.Context, horizonThreshold, tolerance float64) bool {
	return b.call(ctx, primitiveAlignHeading, map[string]float64{
		"horizon_threshold": horizonThreshold,
		"tolerance":         tolerance,
	}) == DecisionAdvance
}

func (b *RemoteBase) Decide(ctx context.Context, distThreshold, horizonThreshold float64) Decision {
	return b.call(ctx, primitiveDecide, map[string]float64{
		"dist_threshold":    distThreshold,
		"horizon_threshold": horizonThreshold,
	})
}

func (b *RemoteBase) DriveDistance(ctx context.Context, meters float64) bool {
	return b.call(ctx, primitiveDriveDistance, map[string]float64{"meters": meters}) == DecisionAdvance
}

func (b *RemoteBase) TurnAngle(ctx context.Context, radians float64) bool {
	return b.call(ctx, primitiveTurnAngle, map[string]float64{"radians": radians}) == DecisionAdvance
}

func (b *RemoteBase) call(ctx context.Context, primitive string, params map[string]float64) Decision {
	data, err := json.Marshal(motionRequest{Primitive: primitive, Params: params})
	if err != nil {
		b.logger.Error("encode motion request", zap.String("primitive", primitive), zap.Error(err))
		return DecisionPending
	}

	reqCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	msg, err := b.nc.RequestWithContext(reqCtx, b.prefix+"."+primitive, data)
	if err != nil {
		b.logger.Debug("motion request failed", zap.String("primitive", primitive), zap.Error(err))
		return DecisionPending
	}
	return parseMotionReply(msg.Data)
}

// parseMotionReply maps executor replies onto a Decision. Anything other
// than done or retry is pending.
func parseMotionReply(data []byte) Decision {
	var reply motionReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return DecisionPending
	}
	switch reply.Result {
	case "done":
		return DecisionAdvance
	case "retry":
		return DecisionRetry
	default:
		return DecisionPending
	}
}
