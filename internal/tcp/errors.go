package tcp

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when a bounded wait elapses without the socket
// becoming ready. It satisfies net.Error-style Timeout checks.
var ErrTimeout error = timeoutError{}

// ErrWouldBlock is returned by WriteOnce when a non-blocking socket cannot
// accept any bytes right now.
var ErrWouldBlock = errors.New("tcp: operation would block")

// ErrLineTooLong is returned by StreamBuf.ReadLine when a line exceeds the
// caller's limit.
var ErrLineTooLong = errors.New("tcp: line too long")

type timeoutError struct{}

func (timeoutError) Error() string   { return "tcp: timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// TransportError reports an OS-level socket failure. Op names the failing
// call (socket, bind, listen, connect, accept, read, write, poll, ...).
type TransportError struct {
	Op  string
	Err error
}

func newError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return "tcp: error in " + e.Op
	}
	return fmt.Sprintf("tcp: error in %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ResolveError reports a host name that could not be turned into an IPv4
// address. It is kept apart from TransportError so an unknown host can be
// told apart from a failing system call.
type ResolveError struct {
	Host string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("tcp: invalid address %q: %v", e.Host, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}
