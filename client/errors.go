package client

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is wrapped by every construction failure.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrUnsupportedTransport is returned when a Unix socket transport is
	// requested on a platform without Unix domain sockets.
	ErrUnsupportedTransport = errors.New("unix socket transport not supported on this platform")
	// ErrBuildURL is wrapped when a request path cannot be resolved against the base URL.
	ErrBuildURL = errors.New("invalid request url")
	// ErrInvalidHeader is a client-side validation failure for a header name or value.
	ErrInvalidHeader = errors.New("invalid header")
	// ErrInvalidMethod is a client-side validation failure for the request method.
	ErrInvalidMethod = errors.New("invalid method")
	// ErrTransport is wrapped by every failure of the network exchange itself.
	ErrTransport = errors.New("transport error")
	// ErrConsumed is returned when a response body was already consumed, or when a
	// stream or session is in use by another operation or has reached its end.
	ErrConsumed = errors.New("already consumed")
	// ErrSessionClosed is returned by sends on a closed Session.
	ErrSessionClosed = errors.New("session closed")
)

// Op identifies the stage that failed.
type Op string

const (
	OpBuildURL Op = "build-url"
	OpRequest  Op = "request"
	OpSend     Op = "send"
	OpRead     Op = "read"
	OpStream   Op = "stream"
	OpUpgrade  Op = "upgrade"
	OpReceive  Op = "receive"
)

// OpError reports the failing stage along with the URL involved.
// It matches both its Kind sentinel and the underlying cause with [errors.Is].
type OpError struct {
	Op   Op
	URL  string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}

	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.URL, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func opErr(op Op, rawURL string, kind, err error) error {
	return &OpError{Op: op, URL: rawURL, Kind: kind, Err: err}
}
