// Package web serves the robot's HTTP control API and the telemetry
// websocket.
package web

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/pkg/hub"
	"github.com/teslashibe/go-pupper/pkg/pilot"
	"github.com/teslashibe/go-pupper/pkg/tracking"
)

// Pilot is the control surface the server drives.
type Pilot interface {
	TurnToHeading(ctx context.Context, req pilot.HeadingRequest) (tracking.Result, error)
	TurnToClass(ctx context.Context, req pilot.ClassRequest) (tracking.Result, error)
	StartHeading(req pilot.HeadingRequest) string
	StartClass(req pilot.ClassRequest) (string, error)
	Move(ctx context.Context, velocity float64) error
	Turn(ctx context.Context, angularVelocity float64) error
	Stop(ctx context.Context) error
	Cancel(id string) error
	Run(id string) (pilot.RunInfo, error)
	Runs() []pilot.RunInfo
	Classes() []string
	Status() pilot.Status
}

var _ Pilot = (*pilot.Pilot)(nil)

// Server is the control API server
type Server struct {
	app    *fiber.App
	addr   string
	pilot  Pilot
	hub    *hub.Hub
	logger *slog.Logger
}

// NewServer creates a server for p listening on addr (e.g. ":8080").
// Run events fed to telemetry reach websocket clients; nil creates a
// private hub.
func NewServer(addr string, p Pilot, telemetry *hub.Hub) *Server {
	if telemetry == nil {
		telemetry = hub.New("telemetry")
	}
	s := &Server{
		addr:   addr,
		pilot:  p,
		hub:    telemetry,
		logger: log.Component("web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "pupper",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/classes", s.handleClasses)
	api.Get("/runs", s.handleRuns)
	api.Get("/runs/:id", s.handleRun)
	api.Delete("/runs/:id", s.handleCancelRun)
	api.Post("/heading", s.handleHeading)
	api.Post("/class", s.handleClass)
	api.Post("/move", s.handleMove)
	api.Post("/turn", s.handleTurn)
	api.Post("/stop", s.handleStop)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/telemetry", websocket.New(s.handleTelemetryWS))

	s.app = app
	return s
}

// Telemetry returns the hub that fans run events out to websocket clients.
func (s *Server) Telemetry() *hub.Hub {
	return s.hub
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hub and serves until Shutdown or ctx is done.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	go func() {
		<-ctx.Done()
		s.app.Shutdown()
	}()

	s.logger.Info("control API listening", "addr", s.addr)
	if err := s.app.Listen(s.addr); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
