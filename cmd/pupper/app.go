package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-pupper/internal/config"
	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/pkg/hub"
	"github.com/teslashibe/go-pupper/pkg/perception"
	"github.com/teslashibe/go-pupper/pkg/perception/yolo"
	"github.com/teslashibe/go-pupper/pkg/pilot"
	"github.com/teslashibe/go-pupper/pkg/robot"
	"github.com/teslashibe/go-pupper/pkg/rosbridge"
	"github.com/teslashibe/go-pupper/pkg/speech"
	"github.com/teslashibe/go-pupper/pkg/tracking"
	"github.com/teslashibe/go-pupper/pkg/vision"
	"github.com/teslashibe/go-pupper/pkg/web"
)

// finalStopTimeout bounds the stop sent on the way out.
const finalStopTimeout = 2 * time.Second

// App owns every long-lived component of the host process.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	bridge    *rosbridge.Client
	closers   []io.Closer
	commander *robot.Commander
	heading   *robot.Heading
	buffer    *perception.Buffer
	classes   *perception.ClassTable
	telemetry *hub.Hub
	pilot     *pilot.Pilot
	web       *web.Server

	loops []func(context.Context) error

	shutdownOnce sync.Once
}

// New creates an app; nothing is connected until Init.
func New(cfg config.Config) *App {
	return &App{
		cfg:     cfg,
		heading: &robot.Heading{},
		buffer:  perception.NewBuffer(),
	}
}

// Init connects transports and builds the controllers.
func (a *App) Init(ctx context.Context) error {
	log.Init(a.cfg.LogLevel)
	a.logger = log.Component("host")

	classes, err := a.loadClasses()
	if err != nil {
		return err
	}
	a.classes = classes

	sink, err := a.openSink(ctx)
	if err != nil {
		return err
	}
	a.commander = robot.NewCommander(sink, robot.WithPulseDuration(a.cfg.Robot.PulseDuration))

	if err := a.initPerception(ctx); err != nil {
		return err
	}

	a.telemetry = hub.New("telemetry")
	deps := tracking.Deps{
		Commander:  a.commander,
		Yaw:        a.heading,
		Detections: a.buffer,
		Classes:    a.classes,
		Logger:     log.Component("tracking"),
	}
	a.pilot = pilot.New(deps, a.cfg.Tracking, pilot.WithObserver(a.telemetry))

	if a.cfg.Web.Enabled {
		a.web = web.NewServer(a.cfg.Web.Addr, a.pilot, a.telemetry)
		a.loops = append(a.loops, a.web.Start)
	} else {
		a.loops = append(a.loops, func(ctx context.Context) error {
			a.telemetry.Run(ctx)
			return nil
		})
	}

	if a.cfg.Speech.Enabled {
		l := &speech.Listener{
			Recorder:        speech.NewArecord(a.cfg.Speech.Device),
			Transcriber:     speech.NewWhisper(a.cfg.OpenAIKey),
			Actions:         a.pilot,
			RecordFor:       a.cfg.Speech.RecordFor,
			Pause:           a.cfg.Speech.Pause,
			Velocity:        a.cfg.Speech.Velocity,
			AngularVelocity: a.cfg.Speech.AngularVelocity,
		}
		a.loops = append(a.loops, l.Run)
	}

	if a.cfg.Gesture.Enabled {
		g := &vision.GestureLoop{
			Source:   vision.NewSnapshotSource(a.cfg.Perception.SnapshotURL),
			Vision:   vision.NewGemini(a.cfg.GoogleKey),
			Robot:    a.pilot,
			Prompt:   a.cfg.Gesture.Prompt,
			Velocity: a.cfg.Gesture.Velocity,
			Interval: a.cfg.Gesture.Interval,
		}
		a.loops = append(a.loops, g.Run)
	}

	a.logger.Info("initialized",
		"sink", a.cfg.Robot.Sink,
		"detections", a.cfg.Perception.Source,
		"classes", a.classes.Len(),
		"web", a.cfg.Web.Enabled,
		"speech", a.cfg.Speech.Enabled,
		"gesture", a.cfg.Gesture.Enabled,
	)
	return nil
}

func (a *App) loadClasses() (*perception.ClassTable, error) {
	if a.cfg.Perception.ClassFile == "" {
		return perception.COCOClassTable(), nil
	}
	return perception.LoadClassFile(a.cfg.Perception.ClassFile)
}

// rosbridgeClient dials on first use.
func (a *App) rosbridgeClient(ctx context.Context) (*rosbridge.Client, error) {
	if a.bridge != nil {
		return a.bridge, nil
	}
	c, err := rosbridge.Dial(ctx, a.cfg.Robot.RosbridgeURL)
	if err != nil {
		return nil, err
	}
	a.bridge = c
	a.closers = append(a.closers, c)
	return c, nil
}

func (a *App) openSink(ctx context.Context) (robot.Sink, error) {
	switch a.cfg.Robot.Sink {
	case config.SinkRosbridge:
		c, err := a.rosbridgeClient(ctx)
		if err != nil {
			return nil, err
		}
		return rosbridge.NewCmdVelSink(c, a.cfg.Robot.CmdVelTopic)
	case config.SinkHTTP:
		return robot.NewHTTPSink(a.cfg.Robot.IP, a.cfg.Robot.Port), nil
	case config.SinkSerial:
		s, err := robot.OpenSerialSink(a.cfg.Robot.SerialPort, a.cfg.Robot.Baud)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		return s, nil
	case config.SinkDryRun:
		rec := &robot.RecordingSink{}
		dry := log.Component("dry-run")
		rec.OnPublish = func(cmd robot.VelocityCommand) { dry.Info("cmd_vel", "cmd", cmd.String()) }
		return rec, nil
	}
	return nil, fmt.Errorf("unknown sink %q", a.cfg.Robot.Sink)
}

func (a *App) initPerception(ctx context.Context) error {
	// Yaw always comes over rosbridge when one is configured.
	if a.cfg.Robot.RosbridgeURL != "" && (a.cfg.Robot.Sink == config.SinkRosbridge || a.cfg.Perception.Source == config.DetectionsRosbridge) {
		c, err := a.rosbridgeClient(ctx)
		if err != nil {
			return err
		}
		if err := rosbridge.FeedYaw(c, a.cfg.Robot.YawTopic, a.cfg.Robot.YawType, a.heading); err != nil {
			return err
		}
		if a.cfg.Perception.Source == config.DetectionsRosbridge {
			if err := rosbridge.FeedDetections(c, a.cfg.Robot.DetectionsTopic, a.classes, a.buffer); err != nil {
				return err
			}
		}
	}

	if a.cfg.Perception.Source != config.DetectionsYOLO {
		return nil
	}

	ycfg := yolo.DefaultConfig()
	ycfg.ModelPath = a.cfg.Perception.ModelPath
	if a.cfg.Perception.Confidence > 0 {
		ycfg.ConfidenceThresh = a.cfg.Perception.Confidence
	}
	det, err := yolo.New(ycfg, a.classes.Names())
	if err != nil {
		return err
	}
	a.closers = append(a.closers, det)

	pump := &perception.Pump{
		Source:   vision.NewSnapshotSource(a.cfg.Perception.SnapshotURL),
		Detector: det,
		Buffer:   a.buffer,
		Interval: a.cfg.Perception.DetectInterval,
	}
	a.loops = append(a.loops, pump.Run)
	return nil
}

// Run starts every loop and blocks until ctx is done or the rosbridge
// connection drops.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, loop := range a.loops {
		wg.Add(1)
		go func(run func(context.Context) error) {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				a.logger.Error("loop failed", "error", err)
			}
		}(loop)
	}

	var bridgeDone <-chan struct{}
	if a.bridge != nil {
		bridgeDone = a.bridge.Done()
	}
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case <-bridgeDone:
		mu.Lock()
		errs = append(errs, a.bridge.Err())
		mu.Unlock()
	}
	cancel()
	wg.Wait()

	return errors.Join(errs...)
}

// Shutdown cancels runs, sends a final stop and closes transports.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		if a.pilot != nil {
			a.pilot.Close()
		}
		if a.commander != nil {
			ctx, cancel := context.WithTimeout(context.Background(), finalStopTimeout)
			if err := a.commander.Stop(ctx); err != nil && a.logger != nil {
				a.logger.Warn("final stop failed", "error", err)
			}
			cancel()
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			a.closers[i].Close()
		}
	})
}
