package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"nhooyr.io/websocket"
)

// defaultReadLimit caps a single received message unless WithReadLimit is given.
const defaultReadLimit = 32 << 20 // 32MB

// MessageKind tags a received WebSocket message.
type MessageKind int

const (
	// KindNone means no message: the session ended.
	KindNone MessageKind = iota
	KindText
	KindBinary
)

func (k MessageKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	default:
		return "none"
	}
}

// Message is one received WebSocket message.
type Message struct {
	Kind MessageKind
	Data []byte
}

// Text returns the payload as a string.
func (m Message) Text() string {
	return string(m.Data)
}

// Connect upgrades path to a WebSocket session through the Client's
// transport, so Unix socket, user agent and throttle settings apply.
// The scheme becomes wss when WithSecure is given or the resolved URL is
// https, and ws otherwise.
func (c *Client) Connect(ctx context.Context, path string, optFns ...ConnectOption) (*Session, error) {
	opts := connectOpts{readLimit: defaultReadLimit}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying connect option: %w", err)
		}
	}

	u, err := c.BuildURL(path)
	if err != nil {
		return nil, err
	}
	switch {
	case opts.secure, u.Scheme == "https", u.Scheme == "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	rawURL := u.String()

	ctx, span := c.startSpan(ctx, "fastclient.connect", attribute.String("url.full", rawURL))
	defer span.End()

	header := http.Header{}
	if opts.headers != nil {
		header = opts.headers.Clone()
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))

	c.log.log(ctx, LevelInfo, "ws connect", "url", rawURL)

	conn, resp, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{
		HTTPClient:   c.c,
		HTTPHeader:   header,
		Subprotocols: opts.subprotocols,
	})
	if err != nil {
		if resp != nil {
			span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "upgrade failure")
		c.log.log(ctx, LevelError, "ws upgrade error", "url", rawURL, "error", err)
		return nil, opErr(OpUpgrade, rawURL, ErrTransport, err)
	}
	conn.SetReadLimit(opts.readLimit)

	id := uuid.NewString()
	span.SetAttributes(attribute.String("fastclient.session_id", id))

	life, end := context.WithCancel(context.Background())
	s := &Session{
		id:    id,
		url:   rawURL,
		conn:  newSlot(conn),
		inbox: make(chan inbound),
		life:  life,
		end:   end,
		log:   c.log.with("session_id", id),
	}
	go s.pump(conn)
	s.log.log(ctx, LevelInfo, "ws open", "url", rawURL)

	return s, nil
}

// Session is one upgraded WebSocket connection.
//
// Every operation takes the connection for its duration, so a send,
// receive or iteration attempted while another is in flight fails with
// [ErrConsumed]. Once closed, by Close, a close frame, end of stream or a
// terminal error, the session never touches the network again.
//
// A context that ends during a send tears the connection down, which
// closes the session. A receive whose context ends leaves the session open
// and the next message waiting for a later Receive. Close aborts an
// operation in flight.
type Session struct {
	id     string
	url    string
	conn   *slot[*websocket.Conn]
	inbox  chan inbound
	closed atomic.Bool
	life   context.Context
	end    context.CancelFunc
	log    logger
}

// inbound is one result of the session's reader.
type inbound struct {
	typ websocket.MessageType
	p   []byte
	err error
}

// ID returns the session identifier used in log lines.
func (s *Session) ID() string {
	return s.id
}

// Closed reports whether the session has permanently ended.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// SendText sends a text message.
func (s *Session) SendText(ctx context.Context, text string) error {
	s.log.log(ctx, LevelTrace, "ws send text", "chars", len(text))
	return s.send(ctx, websocket.MessageText, []byte(text))
}

// SendBinary sends a binary message.
func (s *Session) SendBinary(ctx context.Context, p []byte) error {
	s.log.log(ctx, LevelDebug, "ws send binary", "bytes", len(p))
	return s.send(ctx, websocket.MessageBinary, p)
}

// send fails fast with ErrSessionClosed on a closed session. A terminal
// error closes the session; a transient one leaves it usable for a retry.
func (s *Session) send(ctx context.Context, typ websocket.MessageType, p []byte) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	if err := ctx.Err(); err != nil {
		return opErr(OpSend, s.url, ErrTransport, err)
	}

	conn, err := s.acquire()
	if err != nil {
		return err
	}

	opCtx, done := s.bind(ctx)
	err = conn.Write(opCtx, typ, p)
	done()
	if err == nil {
		s.release(ctx, conn)
		return nil
	}

	switch {
	case s.closed.Load():
		s.terminate(ctx, conn, "closed during send")
		return opErr(OpSend, s.url, ErrSessionClosed, err)
	case isTerminal(err):
		s.terminate(ctx, conn, "send failed")
	default:
		s.release(ctx, conn)
	}
	s.log.log(ctx, LevelError, "ws send error", "error", err)

	return opErr(OpSend, s.url, ErrTransport, err)
}

// Receive waits for the next message. It returns a Message of KindNone
// and a nil error when the peer sent a close frame, the stream ended, or
// the session was already closed.
func (s *Session) Receive(ctx context.Context) (Message, error) {
	if s.closed.Load() {
		return Message{}, nil
	}

	if err := ctx.Err(); err != nil {
		return Message{}, opErr(OpReceive, s.url, ErrTransport, err)
	}

	conn, err := s.acquire()
	if errors.Is(err, ErrSessionClosed) {
		return Message{}, nil
	}
	if err != nil {
		return Message{}, err
	}

	for {
		select {
		case in, ok := <-s.inbox:
			if !ok {
				s.terminate(ctx, conn, "end of stream")
				return Message{}, nil
			}
			if in.err != nil {
				return Message{}, s.readFailed(ctx, conn, in.err)
			}

			msg, ok := toMessage(in.typ, in.p)
			if !ok {
				continue
			}
			s.release(ctx, conn)
			s.log.log(ctx, LevelTrace, "ws receive", "kind", msg.Kind.String(), "bytes", len(msg.Data))

			return msg, nil

		case <-s.life.Done():
			s.terminate(ctx, conn, "closed during receive")
			return Message{}, nil

		case <-ctx.Done():
			s.release(ctx, conn)
			s.log.log(ctx, LevelDebug, "ws receive abandoned", "error", ctx.Err())
			return Message{}, opErr(OpReceive, s.url, ErrTransport, ctx.Err())
		}
	}
}

// Next waits for the next text or binary message and returns io.EOF once
// the session has ended.
func (s *Session) Next(ctx context.Context) (Message, error) {
	msg, err := s.Receive(ctx)
	if err != nil {
		return Message{}, err
	}
	if msg.Kind == KindNone {
		return Message{}, io.EOF
	}

	return msg, nil
}

// All adapts the session for range-over-func. Iteration stops when the
// session ends or after yielding the first error.
func (s *Session) All(ctx context.Context) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		for {
			msg, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(msg, err) || err != nil {
				return
			}
		}
	}
}

// Close marks the session closed and performs a best-effort close
// handshake. It is idempotent and never fails. An operation in flight
// during Close is aborted and releases the connection itself.
func (s *Session) Close() error {
	s.closed.Store(true)

	defer s.end()

	conn, ok := s.conn.seal()
	if !ok {
		return nil
	}

	s.log.log(context.Background(), LevelInfo, "ws close")
	_ = conn.Close(websocket.StatusNormalClosure, "")

	return nil
}

// bind derives the context for one network operation; it is cancelled
// when ctx ends or the session is closed.
func (s *Session) bind(ctx context.Context) (context.Context, func()) {
	opCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.life, cancel)

	return opCtx, func() {
		stop()
		cancel()
	}
}

// acquire takes the connection out of the slot.
func (s *Session) acquire() (*websocket.Conn, error) {
	conn, ok := s.conn.take()
	if !ok {
		if s.closed.Load() {
			return nil, ErrSessionClosed
		}
		return nil, ErrConsumed
	}

	return conn, nil
}

// release returns conn to the slot unless the session was closed while
// conn was out, in which case conn is shut down instead.
func (s *Session) release(ctx context.Context, conn *websocket.Conn) {
	if !s.closed.Load() && s.conn.restore(conn) {
		return
	}
	s.conn.seal()
	s.log.log(ctx, LevelDebug, "ws released after close")
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// terminate closes the session for good, drops conn and stops the reader.
func (s *Session) terminate(ctx context.Context, conn *websocket.Conn, reason string) {
	if s.closed.CompareAndSwap(false, true) {
		s.log.log(ctx, LevelInfo, "ws closed", "reason", reason)
	}
	s.conn.seal()
	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.end()
}

// pump is the session's only reader and runs for the session's lifetime,
// so a peer that goes away is noticed even while nobody receives. That also
// fails a write stuck on the dead connection. Results are handed to Receive
// one at a time; pump stops after the first read error.
func (s *Session) pump(conn *websocket.Conn) {
	defer close(s.inbox)

	for {
		typ, p, err := conn.Read(s.life)
		select {
		case s.inbox <- inbound{typ: typ, p: p, err: err}:
		case <-s.life.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// readFailed ends the session: the reader has stopped, so no read error
// leaves it usable.
func (s *Session) readFailed(ctx context.Context, conn *websocket.Conn, err error) error {
	switch {
	case s.closed.Load():
		s.terminate(ctx, conn, "closed during receive")
		return nil

	case isEndOfStream(err):
		reason := "end of stream"
		if websocket.CloseStatus(err) != -1 {
			reason = "close frame"
		}
		s.terminate(ctx, conn, reason)
		return nil
	}

	s.terminate(ctx, conn, "receive failed")
	s.log.log(ctx, LevelError, "ws receive error", "error", err)

	return opErr(OpReceive, s.url, ErrTransport, err)
}

func toMessage(typ websocket.MessageType, p []byte) (Message, bool) {
	switch typ {
	case websocket.MessageText:
		return Message{Kind: KindText, Data: p}, true
	case websocket.MessageBinary:
		return Message{Kind: KindBinary, Data: p}, true
	default:
		return Message{}, false
	}
}
