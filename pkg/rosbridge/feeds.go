package rosbridge

import (
	"encoding/json"
	"time"

	"github.com/teslashibe/go-pupper/pkg/perception"
	"github.com/teslashibe/go-pupper/pkg/robot"
)

// FeedDetections subscribes to a Detection2DArray topic and stores every
// decoded message in buf. Messages without a header stamp are stamped on
// arrival.
func FeedDetections(c *Client, topic string, classes *perception.ClassTable, buf *perception.Buffer) error {
	if topic == "" {
		topic = TopicDetections
	}
	return c.Subscribe(topic, TypeDetection2DArray, func(msg json.RawMessage) {
		set, err := DecodeDetections(msg, classes)
		if err != nil {
			c.logger.Debug("bad detection message", "error", err)
			return
		}
		if set.Stamp.IsZero() {
			set.Stamp = time.Now()
		}
		buf.Update(set)
	})
}

// FeedYaw subscribes to an Odometry or Imu topic and keeps h current.
func FeedYaw(c *Client, topic, msgType string, h *robot.Heading) error {
	if topic == "" {
		topic = TopicOdometry
	}
	if msgType == "" {
		msgType = TypeOdometry
	}
	decode := DecodeOdometryYaw
	if msgType == TypeImu {
		decode = DecodeImuYaw
	}
	return c.Subscribe(topic, msgType, func(msg json.RawMessage) {
		yaw, err := decode(msg)
		if err != nil {
			c.logger.Debug("bad yaw message", "topic", topic, "error", err)
			return
		}
		h.Set(yaw)
	})
}
