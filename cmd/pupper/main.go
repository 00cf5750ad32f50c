// pupper runs the robot host: velocity transport, detection and heading
// feeds, the turning controllers, the HTTP control API and the optional
// voice and gesture loops.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-pupper/internal/config"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(2)
	}

	app := New(cfg)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Initialization failed: %v\n", err)
		app.Shutdown()
		os.Exit(1)
	}
	defer app.Shutdown()

	if err := app.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Runtime error: %v\n", err)
		app.Shutdown()
		os.Exit(1)
	}
}

// parseFlags loads the config file and lets flags override it.
func parseFlags() (config.Config, error) {
	path := flag.String("config", "", "YAML config file")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	robotIP := flag.String("robot-ip", "", "Robot IP address (overrides ROBOT_IP env var)")
	sink := flag.String("sink", "", "Velocity sink: rosbridge, http, serial, dry-run")
	rosbridgeURL := flag.String("rosbridge", "", "rosbridge websocket URL")
	serialPort := flag.String("serial", "", "Serial port for the serial sink")
	detections := flag.String("detections", "", "Detection source: rosbridge, yolo, none")
	snapshotURL := flag.String("snapshot-url", "", "Camera snapshot URL for YOLO and gestures")
	webAddr := flag.String("web", "", "Control API listen address")
	noWeb := flag.Bool("no-web", false, "Disable the control API")
	speech := flag.Bool("speech", false, "Enable voice commands")
	gesture := flag.Bool("gesture", false, "Enable gesture control")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return cfg, err
	}

	if *debug {
		cfg.LogLevel = "debug"
	}
	if *robotIP != "" {
		cfg.Robot.IP = *robotIP
	}
	if *sink != "" {
		cfg.Robot.Sink = *sink
	}
	if *rosbridgeURL != "" {
		cfg.Robot.RosbridgeURL = *rosbridgeURL
	}
	if *serialPort != "" {
		cfg.Robot.SerialPort = *serialPort
	}
	if *detections != "" {
		cfg.Perception.Source = *detections
	}
	if *snapshotURL != "" {
		cfg.Perception.SnapshotURL = *snapshotURL
	}
	if *webAddr != "" {
		cfg.Web.Addr = *webAddr
	}
	if *noWeb {
		cfg.Web.Enabled = false
	}
	cfg.Speech.Enabled = cfg.Speech.Enabled || *speech
	cfg.Gesture.Enabled = cfg.Gesture.Enabled || *gesture

	return cfg, cfg.Validate()
}
