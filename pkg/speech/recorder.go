// Package speech turns spoken phrases into robot commands: record a short
// clip, transcribe it with Whisper, interpret the text and run it.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// Recorder captures a mono WAV clip.
type Recorder interface {
	Record(ctx context.Context, d time.Duration) ([]byte, error)
}

// Arecord records with the ALSA arecord tool.
type Arecord struct {
	Device     string // e.g. "default" or "plughw:1,0"
	SampleRate int
}

// NewArecord returns a 16 kHz recorder on the default device.
func NewArecord(device string) *Arecord {
	if device == "" {
		device = "default"
	}
	return &Arecord{Device: device, SampleRate: 16000}
}

// Record captures d of audio. arecord only takes whole seconds, so d is
// rounded up.
func (a *Arecord) Record(ctx context.Context, d time.Duration) ([]byte, error) {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "arecord",
		"-q",
		"-D", a.Device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(a.SampleRate),
		"-c", "1",
		"-t", "wav",
		"-d", strconv.Itoa(secs),
		"-",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("arecord: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}
