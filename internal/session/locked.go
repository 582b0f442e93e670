package session

import "sync"

// Runner runs operations against a shared session. *Locked implements it.
type Runner interface {
	Do(fn func(s *Session) error) error
	Status() Status
}

// Locked serializes access to a Session shared by several callers (CLI,
// REST API, background jobs). At most one operation runs at a time.
type Locked struct {
	mu sync.Mutex
	s  *Session
}

// NewLocked wraps s.
func NewLocked(s *Session) *Locked {
	return &Locked{s: s}
}

// Do runs fn with exclusive access to the session.
func (l *Locked) Do(fn func(s *Session) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.s)
}

// Status returns the session status once any in-flight operation finishes.
func (l *Locked) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.s.Status()
}
