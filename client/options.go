package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/fastclient/client/throttle"
)

// Option is a functional option for configuring a [Client] via [New].
type Option func(*options) error
type options struct {
	client            *http.Client
	rt                http.RoundTripper
	timeout           *time.Duration
	userAgent         string
	throttle          *throttle.Config
	noFollowRedirects bool
	logger            *slog.Logger
	level             *Level
	socketPath        string
	tracer            trace.Tracer
}

// WithHTTPClient replaces the default [http.Client] used by the [Client].
// The client's Jar is replaced with the Client's own cookie store when nil.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *options) error {
		if hc == nil {
			return errors.New("client must not be nil")
		}
		c.client = hc
		return nil
	}
}

// WithTransport routes requests and upgrades through rt instead of a fresh
// pooled transport. It cannot be combined with [WithSocketPath].
func WithTransport(rt http.RoundTripper) Option {
	return func(c *options) error {
		if rt == nil {
			return errors.New("transport must not be nil")
		}
		c.rt = rt
		return nil
	}
}

// WithSocketPath dials every connection to the Unix domain socket at path
// instead of the base URL's host. The base URL still determines the
// scheme, Host header and request paths.
func WithSocketPath(path string) Option {
	return func(c *options) error {
		if path == "" {
			return errors.New("socket path must not be empty")
		}
		c.socketPath = path
		return nil
	}
}

// WithTimeout sets the overall HTTP request timeout. For WebSocket sessions
// it bounds only the upgrade; use a context deadline on each session call.
func WithTimeout(d time.Duration) Option {
	return func(c *options) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		c.timeout = &d
		return nil
	}
}

// WithUserAgent adds a persistent User-Agent header to all outgoing requests,
// including WebSocket upgrades.
func WithUserAgent(header string) Option {
	return func(c *options) error {
		c.userAgent = header
		return nil
	}
}

// WithThrottle caps traffic to the upstream at rps with the given burst.
// Requests and WebSocket upgrades share the budget.
func WithThrottle(rps, burst int) Option {
	return func(c *options) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, throttle.ErrMustNotBeZero)
		}
		c.throttle = &throttle.Config{RPS: rps, Burst: burst}
		return nil
	}
}

// WithNoFollowRedirects hands 3xx responses back to the caller as they are.
func WithNoFollowRedirects() Option {
	return func(c *options) error {
		c.noFollowRedirects = true
		return nil
	}
}

// WithLogger sends log lines to logger. What gets through is still decided
// by the Client's [Level].
func WithLogger(logger *slog.Logger) Option {
	return func(c *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithLogLevel sets the initial log level, skipping the [EnvLogLevel] lookup.
func WithLogLevel(lvl Level) Option {
	return func(c *options) error {
		if lvl > LevelTrace {
			return fmt.Errorf("%w: log level %d out of range", ErrInvalidConfig, lvl)
		}
		c.level = &lvl
		return nil
	}
}

// WithTracer records a span for every request and WebSocket upgrade.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		c.tracer = tracer
		return nil
	}
}

// userAgent stamps every outgoing request with a fixed User-Agent.
type userAgent struct {
	value string
	base  http.RoundTripper
}

func (ua userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	cpy := r.Clone(r.Context())
	cpy.Header.Set("User-Agent", ua.value)
	return ua.base.RoundTrip(cpy)
}

// QueryPair is a single query parameter. Pairs keep their order and
// duplicate keys are allowed.
type QueryPair struct {
	Key   string
	Value string
}

// Cookie is a name=value pair sent in the request's Cookie header.
type Cookie struct {
	Name  string
	Value string
}

// RequestOption is a functional option for [Client.Request].
type RequestOption func(options *requestOpts) error

type requestOpts struct {
	query   []QueryPair
	headers http.Header
	cookies []Cookie
	body    Body
}

// WithQuery appends query parameters in the given order.
func WithQuery(pairs ...QueryPair) RequestOption {
	return func(opts *requestOpts) error {
		opts.query = append(opts.query, pairs...)

		return nil
	}
}

// WithHeaders adds every value in headers. Names and values are validated
// before anything is sent.
func WithHeaders(headers map[string][]string) RequestOption {
	return func(opts *requestOpts) error {
		if opts.headers == nil {
			opts.headers = make(http.Header, len(headers))
		}
		for k, vs := range headers {
			for _, v := range vs {
				if err := validHeader(k, v); err != nil {
					return err
				}
				opts.headers[k] = append(opts.headers[k], v)
			}
		}

		return nil
	}
}

// WithHeader adds a single header value to the outgoing request.
func WithHeader(name, value string) RequestOption {
	return WithHeaders(map[string][]string{name: {value}})
}

// WithCookies attaches the given cookies to the outgoing request,
// serialized in order into a single Cookie header.
func WithCookies(cookies ...Cookie) RequestOption {
	return func(opts *requestOpts) error {
		opts.cookies = append(opts.cookies, cookies...)

		return nil
	}
}

// WithBody sets the request payload. See [Bytes], [Text] and [Reader].
func WithBody(body Body) RequestOption {
	return func(opts *requestOpts) error {
		if body == nil {
			return errors.New("body must not be nil")
		}
		opts.body = body

		return nil
	}
}

// ConnectOption is a functional option for [Client.Connect].
type ConnectOption func(options *connectOpts) error

type connectOpts struct {
	headers      http.Header
	secure       bool
	readLimit    int64
	subprotocols []string
}

// WithConnectHeaders adds headers to the WebSocket upgrade request.
func WithConnectHeaders(headers map[string][]string) ConnectOption {
	return func(opts *connectOpts) error {
		if opts.headers == nil {
			opts.headers = make(http.Header, len(headers))
		}
		for k, vs := range headers {
			for _, v := range vs {
				if err := validHeader(k, v); err != nil {
					return err
				}
				opts.headers[k] = append(opts.headers[k], v)
			}
		}

		return nil
	}
}

// WithSecure forces the wss scheme regardless of the base URL's scheme.
func WithSecure() ConnectOption {
	return func(opts *connectOpts) error {
		opts.secure = true

		return nil
	}
}

// WithReadLimit caps the size of a single received message.
func WithReadLimit(n int64) ConnectOption {
	return func(opts *connectOpts) error {
		if n <= 0 {
			return fmt.Errorf("read limit[%d] must be greater than zero", n)
		}
		opts.readLimit = n

		return nil
	}
}

// WithSubprotocols offers the given subprotocols during the upgrade.
func WithSubprotocols(protocols ...string) ConnectOption {
	return func(opts *connectOpts) error {
		opts.subprotocols = append(opts.subprotocols, protocols...)

		return nil
	}
}
