package tracking

import (
	"fmt"
	"time"
)

// Config holds the tunable parameters shared by the controllers.
type Config struct {
	// Timing
	LoopRate time.Duration `yaml:"loop_rate" json:"loop_rate"` // Tick period (100ms = 10 Hz)

	// Perception
	//
	// ImageWidth is the camera frame width in pixels used to normalize the
	// horizontal offset of a detection. It is fixed configuration and is not
	// read from incoming frames, so it must be kept in sync with the camera.
	ImageWidth float64 `yaml:"image_width" json:"image_width"`

	// Defaults for callers that do not pass explicit values
	HeadingTolerance float64       `yaml:"heading_tolerance" json:"heading_tolerance"` // Radians
	CenterTolerance  float64       `yaml:"center_tolerance" json:"center_tolerance"`   // Normalized offset
	AngularVelocity  float64       `yaml:"angular_velocity" json:"angular_velocity"`   // rad/s
	SearchTimeout    time.Duration `yaml:"search_timeout" json:"search_timeout"`
}

// DefaultConfig returns the configuration the robot ships with.
func DefaultConfig() Config {
	return Config{
		LoopRate:         100 * time.Millisecond,
		ImageWidth:       1400,
		HeadingTolerance: 0.01,
		CenterTolerance:  0.01,
		AngularVelocity:  1.0,
		SearchTimeout:    5 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.LoopRate <= 0 {
		return fmt.Errorf("loop_rate must be positive, got %v", c.LoopRate)
	}
	if c.ImageWidth <= 0 {
		return fmt.Errorf("image_width must be positive, got %v", c.ImageWidth)
	}
	if c.HeadingTolerance < 0 || c.CenterTolerance < 0 {
		return fmt.Errorf("tolerances must not be negative")
	}
	if c.SearchTimeout <= 0 {
		return fmt.Errorf("search_timeout must be positive, got %v", c.SearchTimeout)
	}
	return nil
}
