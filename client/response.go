package client

import (
	"context"
	"io"
	"net/http"
	"time"
)

// maxDrainSize caps how much of an unconsumed body Close reads so the
// connection can return to the pool.
const maxDrainSize = 64 << 10 // 64KB

// Response is one completed HTTP exchange. Its status and headers are
// available at any time; its body can be consumed exactly once, either
// with Read or with Stream. A second attempt fails with [ErrConsumed].
type Response struct {
	status    int
	header    http.Header
	requestID string
	body      *slot[io.ReadCloser]
	log       logger
}

func newResponse(resp *http.Response, requestID string, log logger) *Response {
	return &Response{
		status:    resp.StatusCode,
		header:    resp.Header,
		requestID: requestID,
		body:      newSlot[io.ReadCloser](resp.Body),
		log:       log,
	}
}

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int {
	return r.status
}

// Header returns a copy of the response headers. Duplicate values are kept.
func (r *Response) Header() http.Header {
	return r.header.Clone()
}

// RequestID returns the identifier logged with every line about this exchange.
func (r *Response) RequestID() string {
	return r.requestID
}

// Read consumes the body and returns it in full. Cancelling ctx aborts
// the read and closes the body.
func (r *Response) Read(ctx context.Context) ([]byte, error) {
	body, ok := r.body.seal()
	if !ok {
		return nil, ErrConsumed
	}
	defer body.Close()

	stop := context.AfterFunc(ctx, func() {
		body.Close()
	})
	defer stop()

	start := time.Now()
	b, err := io.ReadAll(body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		r.log.log(ctx, LevelError, "read error", "error", err)
		return nil, opErr(OpRead, "", ErrTransport, err)
	}

	r.log.log(ctx, LevelInfo, "read body", "bytes", len(b), "elapsed", time.Since(start).Round(time.Millisecond))

	return b, nil
}

// Stream consumes the body and returns it as a ChunkStream.
func (r *Response) Stream() (*ChunkStream, error) {
	body, ok := r.body.seal()
	if !ok {
		return nil, ErrConsumed
	}

	return newChunkStream(body, r.log), nil
}

// Close discards an unconsumed body. It is a no-op once the body was
// consumed, and Read or Stream fail with [ErrConsumed] afterwards.
func (r *Response) Close() error {
	body, ok := r.body.seal()
	if !ok {
		return nil
	}

	if _, err := io.Copy(io.Discard, io.LimitReader(body, maxDrainSize)); err != nil {
		r.log.log(context.Background(), LevelWarn, "failed to discard unused body", "error", err)
	}

	return body.Close()
}
