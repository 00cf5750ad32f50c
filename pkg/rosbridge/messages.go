package rosbridge

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/teslashibe/go-pupper/pkg/perception"
	"github.com/teslashibe/go-pupper/pkg/robot"
)

// Default topics and message types.
const (
	TopicCmdVel     = "/cmd_vel"
	TopicDetections = "/detections"
	TopicOdometry   = "/odom"

	TypeTwist            = "geometry_msgs/msg/Twist"
	TypeDetection2DArray = "vision_msgs/msg/Detection2DArray"
	TypeOdometry         = "nav_msgs/msg/Odometry"
	TypeImu              = "sensor_msgs/msg/Imu"
)

// envelope is one rosbridge v2 protocol frame.
type envelope struct {
	Op           string          `json:"op"`
	ID           string          `json:"id,omitempty"`
	Topic        string          `json:"topic,omitempty"`
	Type         string          `json:"type,omitempty"`
	Msg          json.RawMessage `json:"msg,omitempty"`
	QueueLength  int             `json:"queue_length,omitempty"`
	ThrottleRate int             `json:"throttle_rate,omitempty"`
	Level        string          `json:"level,omitempty"`
}

// Twist is geometry_msgs/Twist.
type Twist struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// Vector3 is geometry_msgs/Vector3.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// TwistFrom converts a velocity command to its ROS message.
func TwistFrom(cmd robot.VelocityCommand) Twist {
	return Twist{
		Linear:  Vector3{cmd.Linear.X, cmd.Linear.Y, cmd.Linear.Z},
		Angular: Vector3{cmd.Angular.X, cmd.Angular.Y, cmd.Angular.Z},
	}
}

type stamp struct {
	Sec     int64 `json:"sec"`
	Nanosec int64 `json:"nanosec"`
	Secs    int64 `json:"secs"`
	Nsecs   int64 `json:"nsecs"`
}

// Time returns the stamp, accepting both ROS 2 and ROS 1 field names.
func (s stamp) Time() time.Time {
	switch {
	case s.Sec != 0 || s.Nanosec != 0:
		return time.Unix(s.Sec, s.Nanosec)
	case s.Secs != 0 || s.Nsecs != 0:
		return time.Unix(s.Secs, s.Nsecs)
	}
	return time.Time{}
}

type header struct {
	Stamp stamp `json:"stamp"`
}

type quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

type detection2DArray struct {
	Header     header        `json:"header"`
	Detections []detection2D `json:"detections"`
}

type detection2D struct {
	Results []hypothesisResult `json:"results"`
	BBox    struct {
		Center struct {
			X        *float64 `json:"x"`
			Position *struct {
				X float64 `json:"x"`
			} `json:"position"`
		} `json:"center"`
	} `json:"bbox"`
}

// hypothesisResult covers ObjectHypothesisWithPose before and after
// vision_msgs 3.x moved the id under "hypothesis".
type hypothesisResult struct {
	ID         json.RawMessage `json:"id"`
	Hypothesis *struct {
		ClassID json.RawMessage `json:"class_id"`
	} `json:"hypothesis"`
}

func (r hypothesisResult) rawID() json.RawMessage {
	if r.Hypothesis != nil && len(r.Hypothesis.ClassID) > 0 {
		return r.Hypothesis.ClassID
	}
	return r.ID
}

// DecodeDetections converts a Detection2DArray message. Class ids may be
// numbers, numeric strings or class names (resolved through classes, which
// may be nil). Detections without results or with an unknown class are
// skipped; order is preserved.
func DecodeDetections(msg json.RawMessage, classes *perception.ClassTable) (perception.DetectionSet, error) {
	var arr detection2DArray
	if err := json.Unmarshal(msg, &arr); err != nil {
		return perception.DetectionSet{}, fmt.Errorf("decode Detection2DArray: %w", err)
	}

	set := perception.DetectionSet{Stamp: arr.Header.Stamp.Time()}
	for _, d := range arr.Detections {
		if len(d.Results) == 0 {
			continue
		}
		id, err := parseClassID(d.Results[0].rawID(), classes)
		if err != nil {
			continue
		}
		var x float64
		switch {
		case d.BBox.Center.Position != nil:
			x = d.BBox.Center.Position.X
		case d.BBox.Center.X != nil:
			x = *d.BBox.Center.X
		}
		set.Detections = append(set.Detections, perception.Detection{ClassID: id, BBoxCenterX: x})
	}
	return set, nil
}

func parseClassID(raw json.RawMessage, classes *perception.ClassTable) (int, error) {
	if len(raw) == 0 {
		return 0, ErrNoResults
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("class id %s: %w", raw, err)
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	return classes.Lookup(s)
}

type odometry struct {
	Pose struct {
		Pose struct {
			Orientation quaternion `json:"orientation"`
		} `json:"pose"`
	} `json:"pose"`
}

type imu struct {
	Orientation quaternion `json:"orientation"`
}

// DecodeOdometryYaw extracts yaw from a nav_msgs/Odometry message.
func DecodeOdometryYaw(msg json.RawMessage) (float64, error) {
	var o odometry
	if err := json.Unmarshal(msg, &o); err != nil {
		return 0, fmt.Errorf("decode Odometry: %w", err)
	}
	q := o.Pose.Pose.Orientation
	return robot.YawFromQuaternion(q.X, q.Y, q.Z, q.W), nil
}

// DecodeImuYaw extracts yaw from a sensor_msgs/Imu message.
func DecodeImuYaw(msg json.RawMessage) (float64, error) {
	var m imu
	if err := json.Unmarshal(msg, &m); err != nil {
		return 0, fmt.Errorf("decode Imu: %w", err)
	}
	q := m.Orientation
	return robot.YawFromQuaternion(q.X, q.Y, q.Z, q.W), nil
}
