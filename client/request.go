package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/net/http/httpguts"
)

// Request sends one HTTP request and returns the Response once headers
// arrive. Any completed exchange is returned, whatever its status code;
// only a failed exchange (dial, timeout, protocol) is an error, and it is
// never retried. ctx bounds the whole exchange including the body.
func (c *Client) Request(ctx context.Context, method, path string, optFns ...RequestOption) (*Response, error) {
	var opts requestOpts
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying request option: %w", err)
		}
	}

	method = strings.ToUpper(method)
	if !httpguts.ValidHeaderFieldName(method) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}

	u, err := c.BuildURL(path, opts.query...)
	if err != nil {
		return nil, err
	}
	rawURL := u.String()

	cookie, err := cookieHeader(opts.cookies)
	if err != nil {
		return nil, err
	}

	var (
		body io.Reader
		size int64
	)
	if opts.body != nil {
		body, size = opts.body.open()
	}

	reqID := uuid.NewString()
	log := c.log.with("request_id", reqID)

	ctx, span := c.startSpan(ctx, "fastclient.request",
		attribute.String("http.request.method", method),
		attribute.String("url.full", rawURL),
		attribute.String("fastclient.request_id", reqID),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, opErr(OpRequest, rawURL, ErrBuildURL, err)
	}

	if body != nil {
		req.ContentLength = size
	}

	for k, vs := range opts.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	log.log(ctx, LevelInfo, "http request", "method", method, "url", rawURL)
	start := time.Now()

	resp, err := c.c.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		log.log(ctx, LevelError, "http error", "method", method, "url", rawURL, "error", err)
		return nil, opErr(OpSend, rawURL, ErrTransport, err)
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	log.log(ctx, LevelInfo, "http response", "status", resp.StatusCode, "elapsed", time.Since(start).Round(time.Millisecond))

	return newResponse(resp, reqID, log), nil
}

// RequestStream is Request for callers that intend to consume the body
// with [Response.Stream].
func (c *Client) RequestStream(ctx context.Context, method, path string, optFns ...RequestOption) (*Response, error) {
	return c.Request(ctx, method, path, optFns...)
}

// cookieHeader joins cookies in order as name=value pairs separated by "; ".
func cookieHeader(cookies []Cookie) (string, error) {
	if len(cookies) == 0 {
		return "", nil
	}

	pairs := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		pairs = append(pairs, ck.Name+"="+ck.Value)
	}
	v := strings.Join(pairs, "; ")

	if err := validHeader("Cookie", v); err != nil {
		return "", err
	}

	return v, nil
}

func validHeader(name, value string) error {
	if !httpguts.ValidHeaderFieldName(name) {
		return fmt.Errorf("%w: name %q", ErrInvalidHeader, name)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return fmt.Errorf("%w: value for %q", ErrInvalidHeader, name)
	}

	return nil
}
