package console

import (
	"sync"
	"time"
)

// Session is one console command execution. It lives for a single RunCommand
// call and is never shared.
type Session struct {
	DeviceID string
	Handle   Handle
	Command  string

	output  outputBuffer
	started time.Time

	channel   Channel
	closeOnce sync.Once
	closeErr  error
}

func newSession(deviceID, command string, h Handle) *Session {
	return &Session{
		DeviceID: deviceID,
		Handle:   h,
		Command:  command,
		started:  time.Now(),
	}
}

// Output returns the output captured so far.
func (s *Session) Output() string {
	return s.output.String()
}

// Elapsed returns the time since the session started.
func (s *Session) Elapsed() time.Duration {
	return time.Since(s.started)
}

// Close releases the channel. Only the first call reaches the channel.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.channel != nil {
			s.closeErr = s.channel.Close()
		}
	})
	return s.closeErr
}
