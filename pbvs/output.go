package pbvs

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// armCommandMessage is the wire form of an ArmCommand.
type armCommandMessage struct {
	ArmID        int     `json:"arm_id"`
	Height1      float64 `json:"height1"`
	Length1      float64 `json:"length1"`
	Claw1        bool    `json:"claw1"`
	EnableMotor1 bool    `json:"enable_motor1"`
	Mode         int     `json:"mode"`
}

type detectionMessage struct {
	DetectionAllowed bool    `json:"detection_allowed"`
	Layer            float64 `json:"layer"`
}

// Publisher sends arm commands and the detection signal over NATS.
// A nil Publisher, or one without a connection, drops everything.
type Publisher struct {
	nc     *nats.Conn
	topics TopicsConfig
}

// NewPublisher creates a publisher on an established connection.
func NewPublisher(nc *nats.Conn, topics TopicsConfig) *Publisher {
	return &Publisher{nc: nc, topics: topics}
}

// DispatchArmCommand publishes cmd on the arm control subject.
func (p *Publisher) DispatchArmCommand(_ context.Context, cmd ArmCommand) error {
	if p == nil || p.nc == nil {
		return nil
	}
	return p.publish(p.topics.ArmControlTopic, armCommandMessage{
		ArmID:        cmd.ArmID,
		Height1:      cmd.State.Height,
		Length1:      cmd.State.Length,
		Claw1:        cmd.State.ClawClosed,
		EnableMotor1: cmd.EnableMotor,
		Mode:         int(cmd.State.Mode),
	})
}

// SetDetection publishes the detection-enable signal.
func (p *Publisher) SetDetection(_ context.Context, allowed bool, layer float64) error {
	if p == nil || p.nc == nil {
		return nil
	}
	return p.publish(p.topics.DetectionSubject(), detectionMessage{DetectionAllowed: allowed, Layer: layer})
}

func (p *Publisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", subject)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return errors.Wrapf(err, "publish %s", subject)
	}
	return nil
}
