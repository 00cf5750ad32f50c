package robot

import "fmt"

// Vector3 is a three-axis value (m/s for linear, rad/s for angular).
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// VelocityCommand is a six-field twist. The controllers only ever set
// Linear.X and Angular.Z; the other axes stay zero.
type VelocityCommand struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// Zero returns the all-zero stop command.
func Zero() VelocityCommand {
	return VelocityCommand{}
}

// Forward returns a command driving straight at v m/s.
func Forward(v float64) VelocityCommand {
	return VelocityCommand{Linear: Vector3{X: v}}
}

// Rotate returns a command spinning in place at w rad/s (positive is left).
func Rotate(w float64) VelocityCommand {
	return VelocityCommand{Angular: Vector3{Z: w}}
}

// IsZero reports whether all six fields are zero.
func (c VelocityCommand) IsZero() bool {
	return c == VelocityCommand{}
}

func (c VelocityCommand) String() string {
	return fmt.Sprintf("lin=(%.3f,%.3f,%.3f) ang=(%.3f,%.3f,%.3f)",
		c.Linear.X, c.Linear.Y, c.Linear.Z, c.Angular.X, c.Angular.Y, c.Angular.Z)
}
