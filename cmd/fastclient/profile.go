package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/adamwoolhether/fastclient/client"
)

// profile is the TOML file selected with -config. Flags given on the
// command line override its values.
type profile struct {
	BaseURL    string            `toml:"base_url"`
	SocketPath string            `toml:"socket_path"`
	LogLevel   string            `toml:"log_level"`
	Timeout    duration          `toml:"timeout"`
	UserAgent  string            `toml:"user_agent"`
	Headers    map[string]string `toml:"headers"`
	Throttle   throttleProfile   `toml:"throttle"`
	Tracing    tracingProfile    `toml:"tracing"`
}

type throttleProfile struct {
	RPS   int `toml:"rps"`
	Burst int `toml:"burst"`
}

type tracingProfile struct {
	Endpoint string `toml:"otlp_endpoint"`
	Insecure bool   `toml:"insecure"`
}

// duration reads Go duration strings such as "1m30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", b, err)
	}
	d.Duration = v

	return nil
}

func loadProfile(path string) (profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return profile{}, fmt.Errorf("opening profile: %w", err)
	}
	defer f.Close()

	return decodeProfile(f)
}

func decodeProfile(r io.Reader) (profile, error) {
	var p profile
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&p); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return profile{}, fmt.Errorf("decoding profile: %s", strict.String())
		}
		return profile{}, fmt.Errorf("decoding profile: %w", err)
	}

	return p, nil
}

// commonFlags are shared by every subcommand.
type commonFlags struct {
	config    string
	base      string
	socket    string
	level     string
	userAgent string
	timeout   time.Duration
	headers   multiFlag
	otlp      string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", "", "path to a TOML profile")
	fs.StringVar(&c.base, "base", "", "upstream base URL")
	fs.StringVar(&c.socket, "socket", "", "dial this Unix domain socket instead of TCP")
	fs.StringVar(&c.level, "log", "", "log level: off, error, warn, info, debug, trace")
	fs.StringVar(&c.userAgent, "user-agent", "", "User-Agent header")
	fs.DurationVar(&c.timeout, "timeout", 0, "request timeout")
	fs.Var(&c.headers, "H", "header as 'Name: value' (repeatable)")
	fs.StringVar(&c.otlp, "otlp", "", "export spans over plaintext OTLP gRPC to this endpoint")
}

// resolve loads the profile, if any, and applies the flags that were set.
func (c *commonFlags) resolve(fs *flag.FlagSet) (profile, error) {
	var (
		p   profile
		err error
	)
	if c.config != "" {
		if p, err = loadProfile(c.config); err != nil {
			return profile{}, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "base":
			p.BaseURL = c.base
		case "socket":
			p.SocketPath = c.socket
		case "log":
			p.LogLevel = c.level
		case "user-agent":
			p.UserAgent = c.userAgent
		case "timeout":
			p.Timeout.Duration = c.timeout
		case "otlp":
			p.Tracing.Endpoint = c.otlp
			p.Tracing.Insecure = true
		}
	})

	if p.BaseURL == "" {
		return profile{}, errors.New("a base URL is required: use -base or base_url in the profile")
	}

	return p, nil
}

// headerMap merges profile headers with -H flags; flags win.
func (c *commonFlags) headerMap(p profile) (map[string][]string, error) {
	out := make(map[string][]string, len(p.Headers)+len(c.headers))
	for k, v := range p.Headers {
		out[k] = []string{v}
	}

	fromFlags := map[string][]string{}
	for _, h := range c.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("header %q must look like 'Name: value'", h)
		}
		name = strings.TrimSpace(name)
		fromFlags[name] = append(fromFlags[name], strings.TrimSpace(value))
	}
	for k, vs := range fromFlags {
		out[k] = vs
	}

	return out, nil
}

// options turns p into client options.
func (p profile) options(stderr io.Writer) ([]client.Option, error) {
	lvl := client.LevelWarn
	if p.LogLevel != "" {
		var err error
		if lvl, err = client.ParseLevel(p.LogLevel); err != nil {
			return nil, err
		}
	}

	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug - 4}))
	opts := []client.Option{
		client.WithLogger(log),
		client.WithLogLevel(lvl),
	}

	if p.SocketPath != "" {
		opts = append(opts, client.WithSocketPath(p.SocketPath))
	}
	if p.Timeout.Duration > 0 {
		opts = append(opts, client.WithTimeout(p.Timeout.Duration))
	}
	if p.UserAgent != "" {
		opts = append(opts, client.WithUserAgent(p.UserAgent))
	}
	if p.Throttle.RPS > 0 || p.Throttle.Burst > 0 {
		opts = append(opts, client.WithThrottle(p.Throttle.RPS, p.Throttle.Burst))
	}

	return opts, nil
}

// multiFlag collects a repeatable string flag.
type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ", ")
}

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

// pairs splits "k=v" values.
func (m multiFlag) pairs() ([][2]string, error) {
	out := make([][2]string, 0, len(m))
	for _, s := range m {
		k, v, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("%q must look like key=value", s)
		}
		out = append(out, [2]string{k, v})
	}

	return out, nil
}
