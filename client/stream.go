package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"sync/atomic"
)

// chunkSize bounds a single chunk returned by ChunkStream.Next.
const chunkSize = 32 << 10 // 32KB

// maxEmptyReads mirrors bufio's guard against readers that never progress.
const maxEmptyReads = 100

type chunkResult struct {
	p   []byte
	err error
}

// chunkReader is the value moved in and out of a ChunkStream's slot.
// rc, buf and err belong to whoever reads, which is the reader goroutine
// once it started; the remaining fields belong to the slot's current owner.
type chunkReader struct {
	rc  io.ReadCloser
	buf []byte
	err error // deferred error that arrived together with data

	reqs    chan struct{}
	results chan chunkResult
	stop    chan struct{}

	started     bool
	outstanding bool // a requested read has not been collected yet
	stopped     bool
}

func (cr *chunkReader) read() chunkResult {
	if cr.err != nil {
		return chunkResult{err: cr.err}
	}

	for range maxEmptyReads {
		n, err := cr.rc.Read(cr.buf)
		if n > 0 {
			cr.err = err
			return chunkResult{p: bytes.Clone(cr.buf[:n])}
		}
		if err != nil {
			return chunkResult{err: err}
		}
	}

	return chunkResult{err: io.ErrNoProgress}
}

// run reads one chunk per request until a read fails or stop is closed.
func (cr *chunkReader) run() {
	for {
		select {
		case <-cr.reqs:
		case <-cr.stop:
			return
		}

		res := cr.read()
		select {
		case cr.results <- res:
		case <-cr.stop:
			return
		}
		if res.err != nil {
			return
		}
	}
}

// request makes sure a read is in flight, starting the reader on first use.
func (cr *chunkReader) request() {
	if !cr.started {
		cr.reqs = make(chan struct{}, 1)
		cr.results = make(chan chunkResult)
		cr.stop = make(chan struct{})
		cr.started = true
		go cr.run()
	}
	if !cr.outstanding {
		cr.reqs <- struct{}{}
		cr.outstanding = true
	}
}

// shutdown stops the reader and closes the body.
func (cr *chunkReader) shutdown() error {
	if cr.started && !cr.stopped {
		close(cr.stop)
		cr.stopped = true
	}

	return cr.rc.Close()
}

// ChunkStream is a single-pass sequence of response body chunks.
//
// Only one Next may run at a time; a concurrent call fails with
// [ErrConsumed] rather than interleaving reads. After io.EOF or an error
// the stream is finished and every further Next fails with ErrConsumed.
type ChunkStream struct {
	src     *slot[*chunkReader]
	started atomic.Bool
	log     logger
}

func newChunkStream(rc io.ReadCloser, log logger) *ChunkStream {
	return &ChunkStream{
		src: newSlot(&chunkReader{rc: rc, buf: make([]byte, chunkSize)}),
		log: log,
	}
}

// Next returns the next chunk, or io.EOF once the body is exhausted.
//
// If ctx ends first Next returns ctx.Err() while the underlying read keeps
// going; the following Next collects its result, so no data is lost.
func (s *ChunkStream) Next(ctx context.Context) ([]byte, error) {
	if s.started.CompareAndSwap(false, true) {
		s.log.log(ctx, LevelTrace, "stream start")
	}

	cr, ok := s.src.take()
	if !ok {
		return nil, ErrConsumed
	}

	if err := ctx.Err(); err != nil {
		s.putBack(cr)
		return nil, err
	}

	if !cr.started && ctx.Done() == nil {
		return s.finish(ctx, cr, cr.read())
	}

	cr.request()

	select {
	case res := <-cr.results:
		cr.outstanding = false
		return s.finish(ctx, cr, res)
	case <-ctx.Done():
		s.putBack(cr)
		return nil, ctx.Err()
	}
}

// All adapts the stream for range-over-func. Iteration stops at the end
// of the body or after yielding the first error.
func (s *ChunkStream) All(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			p, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(p, err) || err != nil {
				return
			}
		}
	}
}

// Close releases the body. A Next in flight finishes its read and then
// releases the body itself; a read left running by a cancelled Next is
// cut short.
func (s *ChunkStream) Close() error {
	cr, ok := s.src.seal()
	if !ok {
		return nil
	}

	return cr.shutdown()
}

func (s *ChunkStream) finish(ctx context.Context, cr *chunkReader, res chunkResult) ([]byte, error) {
	switch {
	case res.err == nil:
		s.putBack(cr)
		s.log.log(ctx, LevelTrace, "stream chunk", "bytes", len(res.p))
		return res.p, nil

	case errors.Is(res.err, io.EOF):
		s.src.seal()
		cr.shutdown()
		s.log.log(ctx, LevelTrace, "stream end")
		return nil, io.EOF

	default:
		s.src.seal()
		cr.shutdown()
		s.log.log(ctx, LevelError, "stream error", "error", res.err)
		return nil, opErr(OpStream, "", ErrTransport, res.err)
	}
}

// putBack returns cr to the slot, closing the body if the stream was
// closed while cr was out.
func (s *ChunkStream) putBack(cr *chunkReader) {
	if !s.src.restore(cr) {
		cr.shutdown()
	}
}
