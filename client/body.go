package client

import (
	"bytes"
	"io"
	"strings"
)

// Body is a request payload. It is one of [Bytes], [Text] or [Reader],
// and is resolved to a reader once when the request is built.
type Body interface {
	open() (r io.Reader, size int64)
}

type bytesBody []byte

func (b bytesBody) open() (io.Reader, int64) { return bytes.NewReader(b), int64(len(b)) }

type textBody string

func (b textBody) open() (io.Reader, int64) { return strings.NewReader(string(b)), int64(len(b)) }

type readerBody struct{ r io.Reader }

// Length is unknown, so the request is sent chunked.
func (b readerBody) open() (io.Reader, int64) { return b.r, -1 }

// Bytes sends p as the request body.
func Bytes(p []byte) Body { return bytesBody(p) }

// Text sends s as the request body.
func Text(s string) Body { return textBody(s) }

// Reader streams r as the request body. r is read once.
func Reader(r io.Reader) Body { return readerBody{r: r} }
