package client

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"nhooyr.io/websocket"
)

// closedMarkers are matched against error text when no structured signal
// is available. websocket reports some close paths, such as an oversized
// message, only as plain strings.
var closedMarkers = []string{
	"websocket closed",
	"use of closed network connection",
	"connection closed",
	"already closed",
	"broken pipe",
	"connection reset",
	"read limited",
}

// isEndOfStream reports whether err means the peer ended the session in
// an orderly way: a close frame or the stream running out.
func isEndOfStream(err error) bool {
	return websocket.CloseStatus(err) != -1 ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed)
}

// isTerminal reports whether err leaves the connection unusable.
// Context errors count: the websocket connection is torn down when the
// context of a read or write ends.
func isTerminal(err error) bool {
	switch {
	case err == nil:
		return false
	case isEndOfStream(err),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range closedMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}

	return false
}
