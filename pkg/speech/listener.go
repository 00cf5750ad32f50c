package speech

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/internal/timeutil"
	"github.com/teslashibe/go-pupper/pkg/pilot"
	"github.com/teslashibe/go-pupper/pkg/tracking"
)

// Actions is what spoken commands can drive.
type Actions interface {
	TurnToHeading(ctx context.Context, req pilot.HeadingRequest) (tracking.Result, error)
	TurnToClass(ctx context.Context, req pilot.ClassRequest) (tracking.Result, error)
	Move(ctx context.Context, velocity float64) error
	Turn(ctx context.Context, angularVelocity float64) error
	Stop(ctx context.Context) error
}

// Defaults for the listen loop.
const (
	DefaultRecordFor       = 5 * time.Second
	DefaultPause           = 900 * time.Millisecond
	DefaultVelocity        = 1.0
	DefaultAngularVelocity = 1.5
)

// Listener is the record, transcribe, act loop.
type Listener struct {
	Recorder    Recorder
	Transcriber Transcriber
	Actions     Actions

	RecordFor       time.Duration
	Pause           time.Duration
	Velocity        float64 // Forward speed for "move"
	AngularVelocity float64 // Spin rate for "turn left/right"

	Clock  timeutil.Clock
	Logger *slog.Logger

	// OnCommand, if set, sees every interpreted phrase before it runs.
	OnCommand func(Command)
}

// Run listens until ctx is done or someone says "exit". Recording and
// transcription errors are logged and the loop carries on.
func (l *Listener) Run(ctx context.Context) error {
	l.defaults()
	l.Logger.Info("listening for commands", "record_for", l.RecordFor)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		cmd, err := l.listenOnce(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.Logger.Warn("listen failed", "error", err)
		case cmd.Action == ActionExit:
			l.Logger.Info("exit requested")
			return nil
		case cmd.Action != ActionNone:
			if err := l.Execute(ctx, cmd); err != nil {
				l.Logger.Warn("command failed", "action", cmd.Action, "error", err)
			}
		}

		select {
		case <-ctx.Done():
		case <-l.Clock.After(l.Pause):
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context) (Command, error) {
	wav, err := l.Recorder.Record(ctx, l.RecordFor)
	if err != nil {
		return Command{}, err
	}

	start := l.Clock.Now()
	text, err := l.Transcriber.Transcribe(ctx, wav)
	if err != nil {
		return Command{}, err
	}
	l.Logger.Debug("transcribed", "text", text, "took", l.Clock.Since(start))

	if IsNoise(text) {
		return Command{}, nil
	}
	cmd := Interpret(text)
	l.Logger.Info("heard", "text", text, "action", cmd.Action)
	if l.OnCommand != nil {
		l.OnCommand(cmd)
	}
	return cmd, nil
}

// Execute runs one command and waits for it to finish.
func (l *Listener) Execute(ctx context.Context, cmd Command) error {
	l.defaults()
	switch cmd.Action {
	case ActionStop:
		return l.Actions.Stop(ctx)
	case ActionMove:
		return l.Actions.Move(ctx, l.Velocity)
	case ActionTurn:
		w := -l.AngularVelocity
		if cmd.Left {
			w = l.AngularVelocity
		}
		return l.Actions.Turn(ctx, w)
	case ActionHeading:
		_, err := l.Actions.TurnToHeading(ctx, pilot.HeadingRequest{Target: cmd.Yaw})
		return err
	case ActionFaceClass:
		_, err := l.Actions.TurnToClass(ctx, pilot.ClassRequest{Class: cmd.Class})
		return err
	case ActionNone, ActionExit:
		return nil
	}
	return errors.New("speech: unknown action " + string(cmd.Action))
}

func (l *Listener) defaults() {
	if l.RecordFor <= 0 {
		l.RecordFor = DefaultRecordFor
	}
	if l.Pause <= 0 {
		l.Pause = DefaultPause
	}
	if l.Velocity == 0 {
		l.Velocity = DefaultVelocity
	}
	if l.AngularVelocity == 0 {
		l.AngularVelocity = DefaultAngularVelocity
	}
	if l.Clock == nil {
		l.Clock = timeutil.RealClock{}
	}
	if l.Logger == nil {
		l.Logger = log.Component("speech")
	}
}
