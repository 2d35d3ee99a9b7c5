package http

import (
	"fmt"

	"github.com/wesleyorama2/netwire/internal/tcp"
)

// ErrTimeout is returned when a bounded connect or read elapses.
var ErrTimeout = tcp.ErrTimeout

// TransportError reports an OS-level socket failure.
type TransportError = tcp.TransportError

// ResolveError reports a host name that could not be resolved.
type ResolveError = tcp.ResolveError

// ProtocolError reports a reply that does not follow HTTP/1.x framing: a
// malformed status line or header block, or a body cut short.
type ProtocolError struct {
	Msg string
	Err error
}

func protocolError(msg string, err error) *ProtocolError {
	return &ProtocolError{Msg: msg, Err: err}
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("http: %s: %v", e.Msg, e.Err)
	}
	return "http: " + e.Msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// UsageError reports a call that is not valid in the client's current
// state, such as starting a request while another one is in flight.
type UsageError struct {
	Op  string
	Msg string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("http: %s: %s", e.Op, e.Msg)
}
