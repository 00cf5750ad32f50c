// Package hub fans telemetry frames out to websocket subscribers.
package hub

import (
	"encoding/json"

	"github.com/teslashibe/go-pupper/pkg/tracking"
)

// Telemetry frame types.
const (
	TelemetryRunEvent = "run_event"
	TelemetryStatus   = "status"
)

// Telemetry is the JSON frame sent on /ws/telemetry.
type Telemetry struct {
	Type   string          `json:"type"`
	Event  *tracking.Event `json:"event,omitempty"`
	Status any             `json:"status,omitempty"`
}

// StatusFrame wraps a status snapshot as a telemetry frame.
func StatusFrame(status any) Telemetry {
	return Telemetry{Type: TelemetryStatus, Status: status}
}

func encode(t Telemetry) ([]byte, error) {
	return json.Marshal(t)
}
