package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", false)

	l.Info("hidden")
	l.Warn("shown", "yaw", 0.5)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line leaked through warn logger: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "yaw=0.5") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "info", true).Info("tick", "state", "searching")

	if !strings.Contains(buf.String(), `"state":"searching"`) {
		t.Errorf("expected JSON output, got %q", buf.String())
	}
}
