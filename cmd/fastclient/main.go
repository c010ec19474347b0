// Command fastclient drives the client runtime from the shell: one HTTP
// request, optionally streamed, or a line-oriented WebSocket session.
//
//	fastclient [request] [flags] PATH
//	fastclient ws [flags] PATH [MESSAGE...]
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/adamwoolhether/fastclient"
	"github.com/adamwoolhether/fastclient/client"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "fastclient:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := "request"
	if len(args) > 0 && (args[0] == "request" || args[0] == "ws") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "ws":
		return runWS(ctx, args, stdin, stdout, stderr)
	default:
		return runRequest(ctx, args, stdin, stdout, stderr)
	}
}

// build resolves the shared flags and returns a ready Client along with
// the merged request headers.
func build(ctx context.Context, fs *flag.FlagSet, common *commonFlags, stderr io.Writer) (*client.Client, map[string][]string, func(context.Context) error, error) {
	p, err := common.resolve(fs)
	if err != nil {
		return nil, nil, nil, err
	}

	headers, err := common.headerMap(p)
	if err != nil {
		return nil, nil, nil, err
	}

	opts, err := p.options(stderr)
	if err != nil {
		return nil, nil, nil, err
	}

	tracer, shutdown, err := setupTracing(ctx, p.Tracing)
	if err != nil {
		return nil, nil, nil, err
	}
	if tracer != nil {
		opts = append(opts, client.WithTracer(tracer))
	}

	c, err := fastclient.New(p.BaseURL, opts...)
	if err != nil {
		shutdown(ctx)
		return nil, nil, nil, err
	}

	return c, headers, shutdown, nil
}

func runRequest(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("request", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		common  commonFlags
		method  string
		data    string
		query   multiFlag
		cookies multiFlag
		stream  bool
		include bool
		fail    bool
	)
	common.register(fs)
	fs.StringVar(&method, "X", "", "request method (default GET, or POST with -d)")
	fs.StringVar(&data, "d", "", "request body; '-' streams standard input")
	fs.Var(&query, "q", "query parameter as key=value (repeatable, order kept)")
	fs.Var(&cookies, "b", "cookie as name=value (repeatable)")
	fs.BoolVar(&stream, "stream", false, "print the body chunk by chunk as it arrives")
	fs.BoolVar(&include, "i", false, "print the status line and headers")
	fs.BoolVar(&fail, "fail", false, "exit non-zero on a 4xx or 5xx status")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("request: exactly one PATH argument is required")
	}

	c, headers, shutdown, err := build(ctx, fs, &common, stderr)
	if err != nil {
		return err
	}
	defer shutdown(context.WithoutCancel(ctx))
	defer c.Close()

	var reqOpts []client.RequestOption
	if len(headers) > 0 {
		reqOpts = append(reqOpts, client.WithHeaders(headers))
	}

	qs, err := query.pairs()
	if err != nil {
		return err
	}
	for _, q := range qs {
		reqOpts = append(reqOpts, client.WithQuery(client.QueryPair{Key: q[0], Value: q[1]}))
	}

	cs, err := cookies.pairs()
	if err != nil {
		return err
	}
	for _, ck := range cs {
		reqOpts = append(reqOpts, client.WithCookies(client.Cookie{Name: ck[0], Value: ck[1]}))
	}

	switch data {
	case "":
	case "-":
		reqOpts = append(reqOpts, client.WithBody(client.Reader(stdin)))
	default:
		reqOpts = append(reqOpts, client.WithBody(client.Text(data)))
	}

	if method == "" {
		method = http.MethodGet
		if data != "" {
			method = http.MethodPost
		}
	}

	resp, err := c.Request(ctx, method, fs.Arg(0), reqOpts...)
	if err != nil {
		return err
	}
	defer resp.Close()

	if include {
		printHead(stdout, resp)
	}

	if stream {
		s, err := resp.Stream()
		if err != nil {
			return err
		}
		defer s.Close()

		for chunk, err := range s.All(ctx) {
			if err != nil {
				return err
			}
			if _, err := stdout.Write(chunk); err != nil {
				return err
			}
		}
	} else {
		body, err := resp.Read(ctx)
		if err != nil {
			return err
		}
		if _, err := stdout.Write(body); err != nil {
			return err
		}
	}

	if fail && resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("upstream returned %d", resp.StatusCode())
	}

	return nil
}

func printHead(w io.Writer, resp *client.Response) {
	fmt.Fprintf(w, "%d %s\n", resp.StatusCode(), http.StatusText(resp.StatusCode()))

	h := resp.Header()
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		for _, v := range h[k] {
			fmt.Fprintf(w, "%s: %s\n", k, v)
		}
	}
	fmt.Fprintln(w)
}

func runWS(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("ws", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		common    commonFlags
		secure    bool
		protocols multiFlag
		listen    bool
	)
	common.register(fs)
	fs.BoolVar(&secure, "secure", false, "force wss")
	fs.Var(&protocols, "subprotocol", "offer a subprotocol (repeatable)")
	fs.BoolVar(&listen, "listen", false, "print incoming messages until the peer closes")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("ws: a PATH argument is required")
	}

	c, headers, shutdown, err := build(ctx, fs, &common, stderr)
	if err != nil {
		return err
	}
	defer shutdown(context.WithoutCancel(ctx))
	defer c.Close()

	var connOpts []client.ConnectOption
	if len(headers) > 0 {
		connOpts = append(connOpts, client.WithConnectHeaders(headers))
	}
	if secure {
		connOpts = append(connOpts, client.WithSecure())
	}
	if len(protocols) > 0 {
		connOpts = append(connOpts, client.WithSubprotocols(protocols...))
	}

	sess, err := c.Connect(ctx, fs.Arg(0), connOpts...)
	if err != nil {
		return err
	}
	defer sess.Close()

	if listen {
		return printMessages(ctx, stdout, sess)
	}

	messages := fs.Args()[1:]
	if len(messages) == 0 {
		sc := bufio.NewScanner(stdin)
		for sc.Scan() {
			messages = append(messages, sc.Text())
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("reading messages: %w", err)
		}
	}

	for _, m := range messages {
		if err := sess.SendText(ctx, m); err != nil {
			return err
		}

		msg, err := sess.Receive(ctx)
		if err != nil {
			return err
		}
		if msg.Kind == client.KindNone {
			return errors.New("session closed by peer")
		}
		printMessage(stdout, msg)
	}

	return nil
}

func printMessages(ctx context.Context, w io.Writer, sess *client.Session) error {
	for msg, err := range sess.All(ctx) {
		if err != nil {
			return err
		}
		printMessage(w, msg)
	}

	return nil
}

func printMessage(w io.Writer, msg client.Message) {
	if msg.Kind == client.KindBinary {
		fmt.Fprintf(w, "[binary] %s\n", base64.StdEncoding.EncodeToString(msg.Data))
		return
	}
	fmt.Fprintln(w, strings.TrimRight(msg.Text(), "\n"))
}
