package robot

import (
	"context"
	"sync"
)

// RecordingSink keeps every command it receives. It backs the dry-run mode
// and doubles as the test sink across packages.
type RecordingSink struct {
	mu       sync.Mutex
	commands []VelocityCommand

	// OnPublish, if set, runs after each successful publish (outside the lock).
	OnPublish func(VelocityCommand)

	// When Err is set, every publish after the first FailAfter successful
	// ones returns Err.
	FailAfter int
	Err       error
}

// Publish records cmd.
func (s *RecordingSink) Publish(_ context.Context, cmd VelocityCommand) error {
	s.mu.Lock()
	if s.Err != nil && len(s.commands) >= s.FailAfter {
		s.mu.Unlock()
		return s.Err
	}
	s.commands = append(s.commands, cmd)
	hook := s.OnPublish
	s.mu.Unlock()

	if hook != nil {
		hook(cmd)
	}
	return nil
}

// Commands returns a copy of everything recorded so far.
func (s *RecordingSink) Commands() []VelocityCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]VelocityCommand, len(s.commands))
	copy(out, s.commands)
	return out
}

// Len returns the number of recorded commands.
func (s *RecordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commands)
}

// Last returns the most recent command.
func (s *RecordingSink) Last() (VelocityCommand, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.commands) == 0 {
		return VelocityCommand{}, false
	}
	return s.commands[len(s.commands)-1], true
}

// Reset drops recorded commands.
func (s *RecordingSink) Reset() {
	s.mu.Lock()
	s.commands = nil
	s.mu.Unlock()
}
