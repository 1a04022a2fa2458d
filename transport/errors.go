package transport

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected  = errors.New("transport: channel is not connected")
	ErrCanceled      = errors.New("transport: connect canceled by disconnect")
	ErrChannelClosed = errors.New("transport: channel already used, create a new one")
	ErrUnsupported   = errors.New("transport: operation not supported by backend")
)

// Error reports an abnormal close of the socket by the remote side.
type Error struct {
	StatusCode StatusCode
	Reason     string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transport: closed with %s (%d)", e.StatusCode, e.StatusCode.Code())
	}
	return fmt.Sprintf("transport: closed with %s (%d): %s", e.StatusCode, e.StatusCode.Code(), e.Reason)
}

// FailureError wraps an error raised by the native socket layer.
type FailureError struct {
	Err error
}

func (e *FailureError) Error() string { return "transport: " + e.Err.Error() }
func (e *FailureError) Unwrap() error { return e.Err }
