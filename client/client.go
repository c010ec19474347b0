package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/fastclient/client/throttle"
)

// Client is the connection configuration for one upstream: the parsed
// base URL, the HTTP transport (TCP or Unix socket) and a log level
// shared with everything the Client produces. A Client is safe for
// concurrent use and should be reused for the lifetime of the upstream.
type Client struct {
	c          *http.Client
	base       *url.URL
	socketPath string
	log        logger
	tracer     trace.Tracer
}

// New builds a Client for baseURL, which must be an absolute URL. When
// [WithSocketPath] is given, connections dial the Unix socket and baseURL
// only supplies the scheme, Host header and path prefix.
func New(baseURL string, optFns ...Option) (*Client, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	cfg := config{
		BaseURL:    baseURL,
		SocketPath: opts.socketPath,
		UserAgent:  opts.userAgent,
	}
	base, err := cfg.check()
	if err != nil {
		return nil, err
	}

	if opts.socketPath != "" && opts.rt != nil {
		return nil, fmt.Errorf("%w: socket path cannot be combined with a custom transport", ErrInvalidConfig)
	}

	hc := &http.Client{}
	if opts.client != nil {
		cpy := *opts.client
		hc = &cpy
	}

	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		hc.Jar = jar
	}

	if opts.timeout != nil {
		hc.Timeout = *opts.timeout
	}

	if opts.noFollowRedirects {
		hc.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	level := envLevel()
	if opts.level != nil {
		level = *opts.level
	}

	sl := slog.Default()
	if opts.logger != nil {
		sl = opts.logger
	}

	client := &Client{
		c:          hc,
		base:       base,
		socketPath: opts.socketPath,
		log:        newLogger(sl, level),
		tracer:     opts.tracer,
	}
	if client.tracer == nil {
		client.tracer = noop.NewTracerProvider().Tracer("fastclient")
	}

	var transport http.RoundTripper
	switch {
	case opts.socketPath != "":
		transport, err = socketTransport(opts.socketPath)
		if err != nil {
			return nil, err
		}
	case opts.rt != nil:
		transport = opts.rt
	case hc.Transport != nil:
		transport = hc.Transport
	default:
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	if opts.userAgent != "" {
		transport = userAgent{value: opts.userAgent, base: transport}
	}
	if opts.throttle != nil {
		logFn := func() *slog.Logger {
			if !client.log.enabled(LevelInfo) {
				return nil
			}
			return client.log.sl
		}
		rt, err := throttle.NewRoundTripper(*opts.throttle, logFn, transport)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		transport = rt
	}
	hc.Transport = transport

	if client.socketPath != "" {
		client.log.log(context.Background(), LevelInfo, "client created", "transport", "unix", "base", base.String(), "socket", client.socketPath)
	} else {
		client.log.log(context.Background(), LevelInfo, "client created", "transport", "tcp", "base", base.String())
	}

	return client, nil
}

// BaseURL returns a copy of the parsed base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// SocketPath returns the Unix socket path, or "" for TCP.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// BuildURL resolves path against the base URL and appends query in order.
// An absolute http(s) path is used verbatim. A single leading "/" is
// dropped so the path stays under the base URL instead of replacing its path.
func (c *Client) BuildURL(path string, query ...QueryPair) (*url.URL, error) {
	var (
		u   *url.URL
		err error
	)
	switch {
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		u, err = url.Parse(path)
	default:
		var ref *url.URL
		ref, err = url.Parse(strings.TrimPrefix(path, "/"))
		if err == nil {
			u = c.base.ResolveReference(ref)
		}
	}
	if err != nil {
		return nil, opErr(OpBuildURL, path, ErrBuildURL, err)
	}

	if len(query) > 0 {
		var sb strings.Builder
		sb.WriteString(u.RawQuery)
		for _, q := range query {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(q.Key))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(q.Value))
		}
		u.RawQuery = sb.String()
	}

	c.log.log(context.Background(), LevelDebug, "build url", "path", path, "url", u.String())

	return u, nil
}

// SetLogLevel changes the level for the Client and everything derived from it.
func (c *Client) SetLogLevel(lvl Level) {
	c.log.level.Store(uint32(lvl))
}

// SetLogLevelString parses lvl with [ParseLevel] and applies it.
func (c *Client) SetLogLevelString(lvl string) error {
	l, err := ParseLevel(lvl)
	if err != nil {
		return err
	}
	c.SetLogLevel(l)

	return nil
}

// LogLevel returns the active log level.
func (c *Client) LogLevel() Level {
	return Level(c.log.level.Load())
}

// Close releases idle pooled connections. In-flight responses and
// sessions are unaffected.
func (c *Client) Close() {
	c.c.CloseIdleConnections()
}

func (c *Client) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attrs...)

	return ctx, span
}
