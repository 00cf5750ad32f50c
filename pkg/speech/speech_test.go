package speech

import (
	"context"
	"errors"
	"io"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/internal/timeutil"
	"github.com/teslashibe/go-pupper/pkg/pilot"
	"github.com/teslashibe/go-pupper/pkg/tracking"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		text string
		want Command
	}{
		{"Exit.", Command{Action: ActionExit}},
		{"exit the program", Command{Action: ActionNone}},
		{"Stop!", Command{Action: ActionStop}},
		{"Please stop turning to the dog", Command{Action: ActionStop}},
		{"Turn to 90 degrees.", Command{Action: ActionHeading, Yaw: math.Pi / 2}},
		{"rotate to -45 degrees", Command{Action: ActionHeading, Yaw: -math.Pi / 4}},
		{"Turn left", Command{Action: ActionTurn, Left: true}},
		{"turn to the right.", Command{Action: ActionTurn}},
		{"Turn to the dog.", Command{Action: ActionFaceClass, Class: "dog"}},
		{"Find a teddy bear", Command{Action: ActionFaceClass, Class: "teddy bear"}},
		{"look at the person", Command{Action: ActionFaceClass, Class: "person"}},
		{"Move forward", Command{Action: ActionMove}},
		{"what a nice day", Command{Action: ActionNone}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := Interpret(tt.text)
			assert.Equal(t, tt.want.Action, got.Action)
			assert.Equal(t, tt.want.Class, got.Class)
			assert.Equal(t, tt.want.Left, got.Left)
			assert.InDelta(t, tt.want.Yaw, got.Yaw, 1e-12)
			assert.Equal(t, tt.text, got.Text)
		})
	}
}

func TestIsNoise(t *testing.T) {
	assert.True(t, IsNoise("Thank you."))
	assert.True(t, IsNoise(""))
	assert.True(t, IsNoise("..."))
	assert.False(t, IsNoise("turn to the dog"))
}

func TestWhisper_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		mr := multipart.NewReader(r.Body, params["boundary"])
		fields := map[string]string{}
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			data, _ := io.ReadAll(p)
			fields[p.FormName()] = string(data)
		}
		assert.Equal(t, "whisper-1", fields["model"])
		assert.Equal(t, "text", fields["response_format"])
		assert.Equal(t, "RIFF", fields["file"])

		w.Write([]byte("Turn to the dog.\n"))
	}))
	defer srv.Close()

	wh := NewWhisper("sk-test")
	wh.URL = srv.URL
	text, err := wh.Transcribe(context.Background(), []byte("RIFF"))
	require.NoError(t, err)
	assert.Equal(t, "Turn to the dog.", text)

	_, err = (&Whisper{}).Transcribe(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

type call struct {
	name string
	arg  any
}

type recordingActions struct {
	calls []call
}

func (r *recordingActions) TurnToHeading(_ context.Context, req pilot.HeadingRequest) (tracking.Result, error) {
	r.calls = append(r.calls, call{"heading", req.Target})
	return tracking.Result{}, nil
}

func (r *recordingActions) TurnToClass(_ context.Context, req pilot.ClassRequest) (tracking.Result, error) {
	r.calls = append(r.calls, call{"class", req.Class})
	return tracking.Result{}, nil
}

func (r *recordingActions) Move(_ context.Context, v float64) error {
	r.calls = append(r.calls, call{"move", v})
	return nil
}

func (r *recordingActions) Turn(_ context.Context, w float64) error {
	r.calls = append(r.calls, call{"turn", w})
	return nil
}

func (r *recordingActions) Stop(context.Context) error {
	r.calls = append(r.calls, call{"stop", nil})
	return nil
}

type silentRecorder struct{}

func (silentRecorder) Record(context.Context, time.Duration) ([]byte, error) { return []byte("wav"), nil }

// scriptTranscriber returns one phrase per call.
type scriptTranscriber struct {
	phrases []string
	errs    map[int]error
	n       int
}

func (s *scriptTranscriber) Transcribe(context.Context, []byte) (string, error) {
	i := s.n
	s.n++
	if err := s.errs[i]; err != nil {
		return "", err
	}
	return s.phrases[i], nil
}

func TestListener_RunsUntilExit(t *testing.T) {
	actions := &recordingActions{}
	tr := &scriptTranscriber{
		phrases: []string{"Turn to the dog.", "", "thank you", "turn right", "move", "Stop.", "", "Exit."},
		errs:    map[int]error{6: errors.New("api down")},
	}
	l := &Listener{
		Recorder:    silentRecorder{},
		Transcriber: tr,
		Actions:     actions,
		Velocity:    0.5,
		Clock:       timeutil.NewStepClock(time.Unix(0, 0)),
		Logger:      log.Discard(),
	}

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, []call{
		{"class", "dog"},
		{"turn", -DefaultAngularVelocity},
		{"move", 0.5},
		{"stop", nil},
	}, actions.calls)
	assert.Equal(t, 8, tr.n)
}

func TestListener_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := &Listener{Recorder: silentRecorder{}, Transcriber: &scriptTranscriber{}, Actions: &recordingActions{}, Logger: log.Discard()}
	assert.ErrorIs(t, l.Run(ctx), context.Canceled)
}
