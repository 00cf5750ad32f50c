package rosbridge

import (
	"context"

	"github.com/teslashibe/go-pupper/pkg/robot"
)

// CmdVelSink publishes velocity commands as geometry_msgs/Twist.
type CmdVelSink struct {
	client *Client
	topic  string
}

var _ robot.Sink = (*CmdVelSink)(nil)

// NewCmdVelSink advertises topic (TopicCmdVel when empty) on c.
func NewCmdVelSink(c *Client, topic string) (*CmdVelSink, error) {
	if topic == "" {
		topic = TopicCmdVel
	}
	if err := c.Advertise(topic, TypeTwist); err != nil {
		return nil, err
	}
	return &CmdVelSink{client: c, topic: topic}, nil
}

// Publish implements robot.Sink.
func (s *CmdVelSink) Publish(ctx context.Context, cmd robot.VelocityCommand) error {
	return s.client.Publish(ctx, s.topic, TwistFrom(cmd))
}
