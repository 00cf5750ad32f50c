package robot

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the base controller firmware.
const DefaultBaudRate = 115200

// SerialSink writes commands to a microcontroller as text lines:
//
//	V <lin.x> <lin.y> <lin.z> <ang.x> <ang.y> <ang.z>\n
type SerialSink struct {
	mu     sync.Mutex
	port   io.WriteCloser
	closed bool
}

// OpenSerialSink opens portName at baud (8N1).
func OpenSerialSink(portName string, baud int) (*SerialSink, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", portName, err)
	}
	return NewSerialSink(port), nil
}

// NewSerialSink wraps an already open port.
func NewSerialSink(port io.WriteCloser) *SerialSink {
	return &SerialSink{port: port}
}

// FormatSerialCommand renders cmd in the line protocol.
func FormatSerialCommand(cmd VelocityCommand) string {
	return fmt.Sprintf("V %.4f %.4f %.4f %.4f %.4f %.4f\n",
		cmd.Linear.X, cmd.Linear.Y, cmd.Linear.Z,
		cmd.Angular.X, cmd.Angular.Y, cmd.Angular.Z)
}

// Publish writes one command line.
func (s *SerialSink) Publish(_ context.Context, cmd VelocityCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	if _, err := io.WriteString(s.port, FormatSerialCommand(cmd)); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

// Close closes the port.
func (s *SerialSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}
