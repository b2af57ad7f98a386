package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a caller asks for an operation the
	// current status does not allow. It is a declined result, not a failure.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrSessionExpired marks operations declined because the session expired.
	ErrSessionExpired = fmt.Errorf("session expired: %w", ErrInvalidTransition)
	// ErrSessionEnded is returned for any command sent after End.
	ErrSessionEnded = errors.New("session ended")
	// ErrNotReady is returned for input sent while a sub-session is connecting.
	ErrNotReady = errors.New("view is not ready")
	// ErrViewInactive is returned for input sent to the view that is not selected.
	ErrViewInactive = errors.New("view is not active")
	// ErrRateLimited is returned when terminal commands arrive too quickly.
	ErrRateLimited = errors.New("command rate limit exceeded")
	// ErrNotFound is returned by the Manager for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrDuplicateSession is returned when opening a session id that is in use.
	ErrDuplicateSession = errors.New("session already exists")
	// ErrInvalidRequest wraps validation failures on OpenRequest.
	ErrInvalidRequest = errors.New("invalid session request")
	// ErrManagerClosed is returned by Open after StopAll.
	ErrManagerClosed = errors.New("session manager stopped")
)

// TransitionError describes a declined operation.
type TransitionError struct {
	Op     string
	Status Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a session in status %q", e.Op, e.Status)
}

// Unwrap lets errors.Is match ErrInvalidTransition and, for expired
// sessions, ErrSessionExpired.
func (e *TransitionError) Unwrap() []error {
	if e.Status == StatusExpired {
		return []error{ErrSessionExpired, ErrInvalidTransition}
	}
	return []error{ErrInvalidTransition}
}
