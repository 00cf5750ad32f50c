package robot

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/teslashibe/go-pupper/internal/httpc"
)

// httpClient is a short-timeout client shared by all HTTPSink instances so a
// hung daemon cannot stall a control tick for long.
var httpClient = httpc.NewClient(2 * time.Second)

// HTTPSink posts velocity commands to the robot daemon's HTTP API.
type HTTPSink struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPSink creates a sink for the daemon at robotIP:port.
func NewHTTPSink(robotIP string, port int) *HTTPSink {
	return &HTTPSink{
		BaseURL: fmt.Sprintf("http://%s:%d", robotIP, port),
		Client:  httpClient,
	}
}

// Publish sends cmd to /api/cmd_vel.
func (s *HTTPSink) Publish(ctx context.Context, cmd VelocityCommand) error {
	if err := httpc.PostJSON(ctx, s.Client, s.BaseURL+"/api/cmd_vel", cmd, nil); err != nil {
		return fmt.Errorf("cmd_vel request failed: %w", err)
	}
	return nil
}
