package chat

import (
	"errors"
)

var (
	ErrPortUnavailable = errors.New("chat: port already in use")
	ErrInvalidConfig   = errors.New("chat: invalid config")
	ErrSendFailed      = errors.New("chat: send failed")
	ErrNotStarted      = errors.New("chat: transport not started")
	ErrStopped         = errors.New("chat: transport stopped")
	ErrSocketClosed    = errors.New("chat: socket no longer usable")
)

// SendError is returned by Send when the datagram could not be written.
// The transport keeps running.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return "chat: send failed: " + e.Err.Error()
}

func (e *SendError) Unwrap() []error {
	return []error{ErrSendFailed, e.Err}
}
