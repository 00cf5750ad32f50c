// Package config loads the pupper host configuration from YAML, the
// environment and command-line flags, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-pupper/pkg/tracking"
)

// Sink kinds.
const (
	SinkRosbridge = "rosbridge"
	SinkHTTP      = "http"
	SinkSerial    = "serial"
	SinkDryRun    = "dry-run"
)

// Detection sources.
const (
	DetectionsRosbridge = "rosbridge"
	DetectionsYOLO      = "yolo"
	DetectionsNone      = "none"
)

// DefaultRobotPort is the HTTP daemon port on the robot.
const DefaultRobotPort = 8000

// maxFileSize caps config files.
const maxFileSize = 1 << 20

// Config is the full host configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Robot      RobotConfig      `yaml:"robot"`
	Tracking   tracking.Config  `yaml:"tracking"`
	Perception PerceptionConfig `yaml:"perception"`
	Web        WebConfig        `yaml:"web"`
	Speech     SpeechConfig     `yaml:"speech"`
	Gesture    GestureConfig    `yaml:"gesture"`

	// Secrets come from the environment only.
	OpenAIKey string `yaml:"-"`
	GoogleKey string `yaml:"-"`
}

// RobotConfig selects and configures the velocity transport.
type RobotConfig struct {
	Sink string `yaml:"sink"`

	RosbridgeURL    string `yaml:"rosbridge_url"`
	CmdVelTopic     string `yaml:"cmd_vel_topic"`
	DetectionsTopic string `yaml:"detections_topic"`
	YawTopic        string `yaml:"yaw_topic"`
	YawType         string `yaml:"yaw_type"`

	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`

	SerialPort string `yaml:"serial_port"`
	Baud       int    `yaml:"baud"`

	PulseDuration time.Duration `yaml:"pulse_duration"`
}

// PerceptionConfig configures where detections come from.
type PerceptionConfig struct {
	Source         string        `yaml:"source"`
	ClassFile      string        `yaml:"class_file"` // Empty means the built-in COCO table
	ModelPath      string        `yaml:"model_path"`
	Confidence     float32       `yaml:"confidence"`
	SnapshotURL    string        `yaml:"snapshot_url"`
	DetectInterval time.Duration `yaml:"detect_interval"`
}

// WebConfig configures the control API.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// SpeechConfig configures the voice command loop.
type SpeechConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Device          string        `yaml:"device"`
	RecordFor       time.Duration `yaml:"record_for"`
	Pause           time.Duration `yaml:"pause"`
	Velocity        float64       `yaml:"velocity"`
	AngularVelocity float64       `yaml:"angular_velocity"`
}

// GestureConfig configures the hand gesture loop.
type GestureConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Prompt   string        `yaml:"prompt"`
	Velocity float64       `yaml:"velocity"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel: "info",
		Robot: RobotConfig{
			Sink:            SinkRosbridge,
			RosbridgeURL:    "ws://localhost:9090",
			CmdVelTopic:     "/cmd_vel",
			DetectionsTopic: "/detections",
			YawTopic:        "/odom",
			YawType:         "nav_msgs/msg/Odometry",
			Port:            DefaultRobotPort,
			Baud:            115200,
			PulseDuration:   time.Second,
		},
		Tracking: tracking.DefaultConfig(),
		Perception: PerceptionConfig{
			Source:         DetectionsRosbridge,
			ModelPath:      "models/yolov8n.onnx",
			Confidence:     0.5,
			DetectInterval: 200 * time.Millisecond,
		},
		Web: WebConfig{Enabled: true, Addr: ":8080"},
		Speech: SpeechConfig{
			Device:          "default",
			RecordFor:       5 * time.Second,
			Pause:           900 * time.Millisecond,
			Velocity:        1.0,
			AngularVelocity: 1.5,
		},
		Gesture: GestureConfig{
			Interval: time.Second,
			Prompt:   "Is the fist open or closed?",
			Velocity: 1.0,
		},
	}
}

// Load reads path over the defaults and applies the environment. An empty
// path skips the file. The result is not validated; call Validate after
// applying flags.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		clean := filepath.Clean(path)
		info, err := os.Stat(clean)
		if err != nil {
			return cfg, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxFileSize {
			return cfg, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
		}
		data, err := os.ReadFile(clean)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", clean, err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() {
	if ip := os.Getenv("ROBOT_IP"); ip != "" {
		c.Robot.IP = ip
	}
	if url := os.Getenv("PUPPER_ROSBRIDGE_URL"); url != "" {
		c.Robot.RosbridgeURL = url
	}
	if lvl := os.Getenv("PUPPER_LOG_LEVEL"); lvl != "" {
		c.LogLevel = lvl
	}
	c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	c.GoogleKey = os.Getenv("GOOGLE_API_KEY")
}

// Validate checks the configuration for missing or inconsistent values.
func (c Config) Validate() error {
	switch c.Robot.Sink {
	case SinkRosbridge:
		if c.Robot.RosbridgeURL == "" {
			return &ConfigError{Field: "robot.rosbridge_url", Message: "required for the rosbridge sink"}
		}
	case SinkHTTP:
		if c.Robot.IP == "" {
			return &ConfigError{Field: "robot.ip", Message: "ROBOT_IP environment variable is required for the http sink"}
		}
	case SinkSerial:
		if c.Robot.SerialPort == "" {
			return &ConfigError{Field: "robot.serial_port", Message: "required for the serial sink"}
		}
		if c.Robot.Baud <= 0 {
			return &ConfigError{Field: "robot.baud", Message: "must be positive"}
		}
	case SinkDryRun:
	default:
		return &ConfigError{Field: "robot.sink", Message: fmt.Sprintf("unknown sink %q", c.Robot.Sink)}
	}

	if err := c.Tracking.Validate(); err != nil {
		return &ConfigError{Field: "tracking", Message: err.Error()}
	}

	switch c.Perception.Source {
	case DetectionsRosbridge:
		if c.Robot.Sink != SinkRosbridge && c.Robot.RosbridgeURL == "" {
			return &ConfigError{Field: "robot.rosbridge_url", Message: "required for rosbridge detections"}
		}
	case DetectionsYOLO:
		if c.Perception.SnapshotURL == "" {
			return &ConfigError{Field: "perception.snapshot_url", Message: "required for yolo detections"}
		}
	case DetectionsNone:
	default:
		return &ConfigError{Field: "perception.source", Message: fmt.Sprintf("unknown source %q", c.Perception.Source)}
	}

	if c.Speech.Enabled && c.OpenAIKey == "" {
		return &ConfigError{Field: "OpenAIKey", Message: "OPENAI_API_KEY environment variable is required for speech commands"}
	}
	if c.Gesture.Enabled {
		if c.GoogleKey == "" {
			return &ConfigError{Field: "GoogleKey", Message: "GOOGLE_API_KEY environment variable is required for gesture control"}
		}
		if c.Perception.SnapshotURL == "" {
			return &ConfigError{Field: "perception.snapshot_url", Message: "required for gesture control"}
		}
	}
	return nil
}

// RobotAPIURL returns the robot HTTP daemon URL.
func (c Config) RobotAPIURL() string {
	return fmt.Sprintf("http://%s:%d", c.Robot.IP, c.Robot.Port)
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
