package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-pupper/pkg/hub"
	"github.com/teslashibe/go-pupper/pkg/pilot"
	"github.com/teslashibe/go-pupper/pkg/tracking"
)

// RunResponse is returned by the heading and class endpoints.
type RunResponse struct {
	RunID  string           `json:"run_id"`
	Result *tracking.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// MoveRequest is the body of POST /api/move.
type MoveRequest struct {
	Velocity float64 `json:"velocity"`
}

// TurnRequest is the body of POST /api/turn.
type TurnRequest struct {
	AngularVelocity float64 `json:"angular_velocity"`
}

// handleError renders every error as {"error": "..."}.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, tracking.ErrConfiguration):
		code = fiber.StatusBadRequest
	case errors.Is(err, tracking.ErrNoHeading):
		code = fiber.StatusConflict
	case errors.Is(err, pilot.ErrUnknownRun):
		code = fiber.StatusNotFound
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.pilot.Status())
}

func (s *Server) handleClasses(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"classes": s.pilot.Classes()})
}

func (s *Server) handleRuns(c *fiber.Ctx) error {
	return c.JSON(s.pilot.Runs())
}

func (s *Server) handleRun(c *fiber.Ctx) error {
	run, err := s.pilot.Run(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(run)
}

func (s *Server) handleCancelRun(c *fiber.Ctx) error {
	if err := s.pilot.Cancel(c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleHeading turns to an absolute yaw. Without ?wait=true it answers
// 202 with the run id straight away.
func (s *Server) handleHeading(c *fiber.Ctx) error {
	var req pilot.HeadingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}

	if !c.QueryBool("wait") {
		id := s.pilot.StartHeading(req)
		return c.Status(fiber.StatusAccepted).JSON(RunResponse{RunID: id})
	}

	res, err := s.pilot.TurnToHeading(c.UserContext(), req)
	return s.finished(c, res, err)
}

func (s *Server) handleClass(c *fiber.Ctx) error {
	var req pilot.ClassRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	if req.Class == "" {
		return fiber.NewError(fiber.StatusBadRequest, "class is required")
	}

	if !c.QueryBool("wait") {
		id, err := s.pilot.StartClass(req)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusAccepted).JSON(RunResponse{RunID: id})
	}

	res, err := s.pilot.TurnToClass(c.UserContext(), req)
	return s.finished(c, res, err)
}

// finished reports a completed run. Runs that ended on their own (timeout,
// cancellation, transport failure) are still 200 with the error attached;
// calls that never started map through handleError.
func (s *Server) finished(c *fiber.Ctx, res tracking.Result, err error) error {
	if err != nil && (errors.Is(err, tracking.ErrConfiguration) || errors.Is(err, tracking.ErrNoHeading)) {
		return err
	}
	resp := RunResponse{RunID: res.RunID, Result: &res}
	if err != nil {
		resp.Error = err.Error()
	}
	return c.JSON(resp)
}

func (s *Server) handleMove(c *fiber.Ctx) error {
	var req MoveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	if err := s.pilot.Move(c.UserContext(), req.Velocity); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) handleTurn(c *fiber.Ctx) error {
	var req TurnRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	if err := s.pilot.Turn(c.UserContext(), req.AngularVelocity); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.pilot.Stop(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true})
}

// handleTelemetryWS streams run events. The first frame is the current
// status.
func (s *Server) handleTelemetryWS(c *websocket.Conn) {
	s.hub.Serve(c, hub.StatusFrame(s.pilot.Status()))
}
