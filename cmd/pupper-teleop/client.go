package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-pupper/internal/httpc"
	"github.com/teslashibe/go-pupper/pkg/pilot"
	"github.com/teslashibe/go-pupper/pkg/web"
)

// apiClient talks to the pupper control API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		// Move and Turn hold for a pulse before answering
		http: httpc.NewClient(10 * time.Second),
	}
}

func (c *apiClient) move(ctx context.Context, v float64) error {
	return httpc.PostJSON(ctx, c.http, c.base+"/api/move", web.MoveRequest{Velocity: v}, nil)
}

func (c *apiClient) turn(ctx context.Context, w float64) error {
	return httpc.PostJSON(ctx, c.http, c.base+"/api/turn", web.TurnRequest{AngularVelocity: w}, nil)
}

func (c *apiClient) stop(ctx context.Context) error {
	return httpc.PostJSON(ctx, c.http, c.base+"/api/stop", struct{}{}, nil)
}

func (c *apiClient) faceClass(ctx context.Context, class string) (string, error) {
	var resp web.RunResponse
	err := httpc.PostJSON(ctx, c.http, c.base+"/api/class", pilot.ClassRequest{Class: class}, &resp)
	return resp.RunID, err
}

func (c *apiClient) status(ctx context.Context) (pilot.Status, error) {
	var st pilot.Status
	body, err := httpc.Get(ctx, c.http, c.base+"/api/status")
	if err != nil {
		return st, err
	}
	err = json.Unmarshal(body, &st)
	return st, err
}
