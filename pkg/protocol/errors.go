// ABOUTME: Error taxonomy for relay sessions
// ABOUTME: Connect, protocol, transport and command-send failures
package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

// ErrTransportTimeout marks a receive deadline expiring. It is a cue to
// recheck the running flag, never a session failure.
var ErrTransportTimeout = errors.New("transport timeout")

// ConnectError reports that the server could not be reached
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s failed: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed or missing stream header
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TransportError reports a connection that was reset or closed underneath a worker
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// CommandError reports a directive that could not be delivered
type CommandError struct {
	Directive Directive
	Err       error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("send %s failed: %v", e.Directive, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a read/write deadline expiring
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTransportTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsClosed reports whether err means the connection is gone
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe)
}
