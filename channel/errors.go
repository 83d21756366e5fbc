package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrClosed is returned by operations on a closed channel, including a
// Receive that was blocked when Close ran.
var ErrClosed = errors.New("channel: closed")

var errNotReady = errors.New("not bound or connected")

// TimeoutError means nothing arrived (or could be written) in time.
// The channel stays usable and keeps its send/receive turn.
type TimeoutError struct {
	Op    string
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("channel: %s: timed out after %s", e.Op, e.After)
	}
	if e.Err != nil {
		return fmt.Sprintf("channel: %s: timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("channel: %s: timed out", e.Op)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Timeout lets callers treat it like a net.Error.
func (e *TimeoutError) Timeout() bool { return true }

// ProtocolViolationError is an out-of-turn Send or Receive.
type ProtocolViolationError struct {
	Role   string
	Op     string
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("channel: %s %s: %s", e.Role, e.Op, e.Reason)
}

// TransportError is a bind, connect or socket failure.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("channel: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("channel: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ioErr classifies a socket error from op.
func ioErr(op, addr string, closed bool, err error) error {
	if closed {
		return ErrClosed
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TimeoutError{Op: op, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}
	return &TransportError{Op: op, Addr: addr, Err: err}
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
